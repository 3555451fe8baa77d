/*
Package cowtrie provides a persistent, copy-on-write trie keyed by byte
sequences, whose values may be of any type.  Every update returns a new
version; old versions stay intact and valid, and share all the subtrees
the update didn't touch, so a Put or Remove costs time and space
proportional to the key length, not to the size of the trie.

Uses

- Snapshot-isolated reads under concurrent writes (see package triestore)

- Cheap versioning: keep as many old versions as you like

- Efficient copy-on-write alternative to Go builtin map

Typed values

Values are stored together with their type. Get[T] only returns values
that were Put as a T; asking for the wrong type is indistinguishable from
asking for a missing key:

	t := cowtrie.Put(cowtrie.Trie{}, []byte("a"), uint32(1))
	v, ok := cowtrie.Get[uint32](t, []byte("a"))  // v == 1, ok
	_, ok = cowtrie.Get[string](t, []byte("a"))   // !ok

Concurrency

A Trie is an immutable value; no node reachable from a Trie is ever
modified.  Tries can therefore be passed between goroutines and read
concurrently without synchronization.  Coordinating a single "current"
version between writers and readers is the job of triestore.Store.

Digests

A Digester computes a Merkle-style content hash of a version, so that two
versions can be compared for equality without walking them.  Values are
encoded for hashing by DefaultMarshal unless a Digester is given its own
marshaler; DefaultMarshal refuses values it cannot encode faithfully,
such as structs with unexported fields.  With a NodeCache, digests of
shared subtrees are reused across versions.
*/
package cowtrie
