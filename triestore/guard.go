package triestore

import "github.com/jrhy/cowtrie"

// ValueGuard holds a value read from a Store together with the snapshot it
// was read from. The snapshot keeps the value reachable, and unchanged, for
// as long as the guard is held, regardless of later writes to the Store.
//
// Guards are meant to extend a read, not to be kept around: holding one
// pins the whole version it came from.
type ValueGuard[T any] struct {
	snapshot cowtrie.Trie
	version  uint64
	value    T
}

// Value returns the guarded value.
func (g *ValueGuard[T]) Value() T {
	return g.value
}

// Version returns the Store version the value was read from.
func (g *ValueGuard[T]) Version() uint64 {
	return g.version
}

// Snapshot returns the version of the trie the value was read from.
func (g *ValueGuard[T]) Snapshot() cowtrie.Trie {
	return g.snapshot
}
