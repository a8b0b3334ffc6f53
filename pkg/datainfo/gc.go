package datainfo

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/filekv/filekv/internal/logger"
	"github.com/filekv/filekv/pkg/timestamp"
)

// GC defaults: sweep period and the grace window a record must exceed
// before it is pruned. The grace window tolerates a delete-then-recreate
// race without losing the tombstone timestamp needed for write ordering.
const (
	DefaultGCPeriod    = 30 * time.Second
	DefaultGraceWindow = 5 * time.Second
)

// ExistsFunc reports whether the backing file for a key still exists.
// Supplied by the file store so conflict-renamed files count as present.
type ExistsFunc func(key string) bool

// SweepStats summarizes one garbage-collection sweep.
type SweepStats struct {
	Scanned int // records examined
	Pruned  int // records deleted
	Errors  int // per-key failures, logged and skipped
}

// Sweep enumerates every record, evaluates exists for each key, and
// deletes records whose file is gone and whose timestamp is older than
// grace. Individual key failures are logged and do not stop the sweep.
func (s *Store) Sweep(ctx context.Context, exists ExistsFunc, grace time.Duration) SweepStats {
	var stats SweepStats

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stats
	}

	limit := timestamp.NTP64(time.Now().Add(-grace))

	// Collect prune candidates under a read transaction, then delete in a
	// single write transaction.
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.Key())
			stats.Scanned++

			if exists(key) {
				continue
			}

			err := item.Value(func(val []byte) error {
				ts, _, decErr := decodeTimestamp(val)
				if decErr != nil {
					return decErr
				}
				if ts.Time < limit {
					stale = append(stale, item.KeyCopy(nil))
				}
				return nil
			})
			if err != nil {
				logger.Warn("gc: skipping undecodable record", "key", key, "error", err)
				stats.Errors++
			}
		}
		return nil
	})
	if err != nil {
		logger.Warn("gc: sweep aborted", "error", err)
		stats.Errors++
		return stats
	}

	for _, key := range stale {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			logger.Warn("gc: failed to prune record", "key", string(key), "error", err)
			stats.Errors++
			continue
		}
		logger.Debug("gc: pruned stale record", "key", string(key))
		stats.Pruned++
	}

	return stats
}

// StartGC launches the periodic sweep. It runs every period until the
// store is closed; kick can be signalled (e.g. by a filesystem watcher) to
// run a sweep ahead of schedule. Safe to call at most once per store.
func (s *Store) StartGC(exists ExistsFunc, period, grace time.Duration, kick <-chan struct{}) {
	if period <= 0 {
		period = DefaultGCPeriod
	}
	if grace <= 0 {
		grace = DefaultGraceWindow
	}

	s.gcStop = make(chan struct{})
	s.gcDone = make(chan struct{})

	go func() {
		defer close(s.gcDone)
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-s.gcStop:
				return
			case <-ticker.C:
			case <-kick:
			}
			stats := s.Sweep(context.Background(), exists, grace)
			if stats.Pruned > 0 || stats.Errors > 0 {
				logger.Info("gc: sweep complete",
					"scanned", stats.Scanned,
					"pruned", stats.Pruned,
					"errors", stats.Errors)
			}
		}
	}()
}

// stopGC stops the periodic runner and waits for an in-flight sweep to
// finish. No-op if GC was never started.
func (s *Store) stopGC() {
	if s.gcStop == nil {
		return
	}
	select {
	case <-s.gcStop:
		// already stopped
	default:
		close(s.gcStop)
	}
	<-s.gcDone
}
