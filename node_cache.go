package cowtrie

import lru "github.com/hashicorp/golang-lru"

// NodeCache memoizes per-node results, such as digests. Nodes are
// immutable, so an entry never goes stale; it only keeps its node
// reachable until evicted.
type NodeCache interface {
	// Add records the result computed for the given node.
	Add(key, value interface{})
	// Contains indicates a result for the given node is cached.
	Contains(key interface{}) bool
	// Get retrieves the result for the given node, if cached.
	Get(key interface{}) (value interface{}, ok bool)
	// Purge drops every entry.
	Purge()
}

// NewNodeCache creates a new LRU-based node cache of the given size. One cache
// can be shared by any number of digesters using the same marshaler.
func NewNodeCache(size int) NodeCache {
	cache, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}
	return cache
}
