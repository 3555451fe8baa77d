package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jrhy/cowtrie/triestore"
	"golang.org/x/sync/errgroup"
)

// Stamp is the value writers store: each writer counts its own writes, so a
// reader can tell whether a value it sees is older than one it saw before.
type Stamp struct {
	Writer int
	Seq    uint64
}

type report struct {
	Reads      uint64
	Hits       uint64
	Writes     uint64
	Removes    uint64
	Violations uint64
	Version    uint64
	Len        uint64
	Digest     [32]byte
}

func stressKey(writer, key int) []byte {
	return fmt.Appendf(nil, "w%d/k%d", writer, key)
}

type stress struct {
	w      Workload
	store  *triestore.Store
	logger *slog.Logger

	reads, hits, writes, removes, violations atomic.Uint64
}

// runWorkload hammers a fresh Store with w for duration. Writers own
// disjoint keys; readers check that what they see never goes backwards.
func runWorkload(ctx context.Context, w Workload, duration time.Duration, logger *slog.Logger) (report, error) {
	s := &stress{
		w:      w,
		store:  triestore.New(&triestore.Config{Logger: logger.With("component", "store")}),
		logger: logger,
	}
	defer s.store.Close()

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < w.Writers; i++ {
		g.Go(func() error { return s.write(gctx, i) })
	}
	for i := 0; i < w.Readers; i++ {
		g.Go(func() error { return s.read(gctx, i) })
	}
	if err := g.Wait(); err != nil {
		return report{}, err
	}

	snapshot, version := s.store.Snapshot()
	digest, _, err := s.store.Digest()
	if err != nil {
		return report{}, fmt.Errorf("digest: %w", err)
	}
	return report{
		Reads:      s.reads.Load(),
		Hits:       s.hits.Load(),
		Writes:     s.writes.Load(),
		Removes:    s.removes.Load(),
		Violations: s.violations.Load(),
		Version:    version,
		Len:        snapshot.Len(),
		Digest:     digest,
	}, nil
}

func (s *stress) write(ctx context.Context, writer int) error {
	rng := rand.New(rand.NewSource(s.w.Seed + int64(writer)))
	var seq uint64
	for ctx.Err() == nil {
		seq++
		key := stressKey(writer, rng.Intn(s.w.Keys))
		remove := rng.Float64() < s.w.RemoveRatio
		var err error
		if remove {
			err = s.store.Remove(ctx, key)
		} else {
			err = triestore.Put(ctx, s.store, key, Stamp{Writer: writer, Seq: seq})
		}
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			return fmt.Errorf("writer %d: %w", writer, err)
		case remove:
			s.removes.Add(1)
		default:
			s.writes.Add(1)
		}
	}
	return nil
}

func (s *stress) read(ctx context.Context, reader int) error {
	rng := rand.New(rand.NewSource(-s.w.Seed - int64(reader) - 1))
	lastSeq := map[string]uint64{}
	var lastVersion uint64
	for ctx.Err() == nil {
		writer, k := rng.Intn(s.w.Writers), rng.Intn(s.w.Keys)
		key := stressKey(writer, k)
		s.reads.Add(1)
		guard, ok := triestore.Get[Stamp](s.store, key)
		if !ok {
			continue
		}
		s.hits.Add(1)
		stamp := guard.Value()
		switch {
		case stamp.Writer != writer:
			s.violation(ctx, reader, key, "foreign writer", "writer", stamp.Writer)
		case guard.Version() < lastVersion:
			s.violation(ctx, reader, key, "version went backwards", "was", lastVersion, "now", guard.Version())
		case stamp.Seq < lastSeq[string(key)]:
			s.violation(ctx, reader, key, "value went backwards", "was", lastSeq[string(key)], "now", stamp.Seq)
		}
		lastVersion = max(lastVersion, guard.Version())
		lastSeq[string(key)] = max(lastSeq[string(key)], stamp.Seq)
	}
	return nil
}

func (s *stress) violation(ctx context.Context, reader int, key []byte, msg string, args ...any) {
	s.violations.Add(1)
	s.logger.WarnContext(ctx, msg, append([]any{"reader", reader, "key", string(key)}, args...)...)
}
