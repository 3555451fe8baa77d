// Package triestore wraps a cowtrie.Trie in a thread-safe, versioned
// key-value store.
//
// The Store follows a read-copy-update discipline: readers copy the
// current version handle under a lock held only for that copy, then work
// on the immutable snapshot without any lock. Writers are serialized; each
// computes a new version from the latest one with no lock on the current
// handle, and publishes it with a single swap. Readers are therefore never
// blocked by a writer for longer than the swap, and never observe a
// partially-built version.
package triestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jrhy/cowtrie"
)

// DefaultDigestCacheSize is the number of node digests a Store memoizes
// when Config.DigestCacheSize is zero.
const DefaultDigestCacheSize = 4096

// ErrClosed is returned by writes to a Store after Close.
var ErrClosed = errors.New("triestore: closed")

// Config controls optional behaviour of a Store.
type Config struct {
	// Logger receives debug logs of writes. Nil means no logging.
	Logger *slog.Logger

	// DigestCacheSize is the number of node digests memoized for Digest.
	// 0 means DefaultDigestCacheSize; negative disables memoization.
	DigestCacheSize int

	// Marshal encodes values for Digest, defaults to cowtrie.DefaultMarshal.
	Marshal func(interface{}) ([]byte, error)
}

// Stats counts the operations served by a Store.
type Stats struct {
	Gets           uint64
	Hits           uint64
	Puts           uint64
	Removes        uint64
	NoOpRemoves    uint64
	RejectedWrites uint64
}

// Store holds the current version of a trie. Every Store is independent;
// the zero value is not usable, use New.
type Store struct {
	// rootLock guards root, version and closed. It is only held to copy or
	// replace them, never while walking or building a trie.
	rootLock sync.Mutex
	root     cowtrie.Trie
	version  uint64
	closed   bool

	// writer is a single-slot semaphore held for a whole Put or Remove.
	writer chan struct{}

	digester *cowtrie.Digester
	cache    cowtrie.NodeCache
	logger   *slog.Logger

	gets, hits, puts, removes, noOpRemoves, rejected atomic.Uint64
}

// New creates an empty Store. A nil config selects the defaults.
func New(config *Config) *Store {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var cache cowtrie.NodeCache
	switch {
	case config.DigestCacheSize == 0:
		cache = cowtrie.NewNodeCache(DefaultDigestCacheSize)
	case config.DigestCacheSize > 0:
		cache = cowtrie.NewNodeCache(config.DigestCacheSize)
	}
	return &Store{
		writer:   make(chan struct{}, 1),
		digester: cowtrie.NewDigester(config.Marshal, cache),
		cache:    cache,
		logger:   logger,
	}
}

// Get returns a guard over the value stored at key, if there is one and it
// was stored as a T.
func Get[T any](s *Store, key []byte) (*ValueGuard[T], bool) {
	s.gets.Add(1)
	snapshot, version := s.Snapshot()
	value, ok := cowtrie.Get[T](snapshot, key)
	if !ok {
		return nil, false
	}
	s.hits.Add(1)
	return &ValueGuard[T]{snapshot: snapshot, version: version, value: value}, true
}

// Put stores value at key, replacing any existing value. The context only
// bounds the wait for other writers to finish; once started, the write
// completes.
func Put[T any](ctx context.Context, s *Store, key []byte, value T) error {
	_, err := s.update(ctx, "put", key, func(t cowtrie.Trie) cowtrie.Trie {
		return cowtrie.Put(t, key, value)
	})
	if err != nil {
		return err
	}
	s.puts.Add(1)
	return nil
}

// Remove deletes the value at key. Removing a missing key is not an error
// and does not create a new version.
func (s *Store) Remove(ctx context.Context, key []byte) error {
	changed, err := s.update(ctx, "remove", key, func(t cowtrie.Trie) cowtrie.Trie {
		return t.Remove(key)
	})
	if err != nil {
		return err
	}
	s.removes.Add(1)
	if !changed {
		s.noOpRemoves.Add(1)
	}
	return nil
}

// Snapshot returns the current version of the trie and its version number.
// The snapshot is unaffected by later writes.
func (s *Store) Snapshot() (cowtrie.Trie, uint64) {
	s.rootLock.Lock()
	defer s.rootLock.Unlock()
	return s.root, s.version
}

// Version returns the number of versions published so far.
func (s *Store) Version() uint64 {
	s.rootLock.Lock()
	defer s.rootLock.Unlock()
	return s.version
}

// Digest returns the content digest of the current version, and the
// version it was computed for.
func (s *Store) Digest() ([32]byte, uint64, error) {
	snapshot, version := s.Snapshot()
	digest, err := s.digester.Digest(snapshot)
	if err != nil {
		return [32]byte{}, 0, fmt.Errorf("version %d: %w", version, err)
	}
	return digest, version, nil
}

// Stats returns the operation counters.
func (s *Store) Stats() Stats {
	return Stats{
		Gets:           s.gets.Load(),
		Hits:           s.hits.Load(),
		Puts:           s.puts.Load(),
		Removes:        s.removes.Load(),
		NoOpRemoves:    s.noOpRemoves.Load(),
		RejectedWrites: s.rejected.Load(),
	}
}

// Close waits for any write in progress, then drops the current version
// and the digest cache. Later writes fail with ErrClosed and later reads
// find nothing. Guards and snapshots taken before Close stay valid.
func (s *Store) Close() error {
	s.writer <- struct{}{}
	defer func() { <-s.writer }()
	s.rootLock.Lock()
	if s.closed {
		s.rootLock.Unlock()
		return nil
	}
	s.closed = true
	s.root = cowtrie.Trie{}
	version := s.version
	s.rootLock.Unlock()
	if s.cache != nil {
		s.cache.Purge()
	}
	s.logger.Debug("closed", "version", version)
	return nil
}

// update applies f to the current version as the only writer, and
// publishes the result unless f returned its argument unchanged.
func (s *Store) update(ctx context.Context, op string, key []byte, f func(cowtrie.Trie) cowtrie.Trie) (bool, error) {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		s.rejected.Add(1)
		return false, fmt.Errorf("%s %q: waiting for writer: %w", op, key, ctx.Err())
	}
	defer func() { <-s.writer }()

	s.rootLock.Lock()
	current, closed := s.root, s.closed
	s.rootLock.Unlock()
	if closed {
		s.rejected.Add(1)
		return false, fmt.Errorf("%s %q: %w", op, key, ErrClosed)
	}

	next := f(current)
	if next.Identical(current) {
		s.logger.DebugContext(ctx, "no change", "op", op, "key", string(key))
		return false, nil
	}

	s.rootLock.Lock()
	s.root = next
	s.version++
	version := s.version
	s.rootLock.Unlock()
	s.logger.DebugContext(ctx, "published", "op", op, "key", string(key), "version", version, "len", next.Len())
	return true, nil
}
