// Package datainfo persists per-key metadata records (logical timestamp +
// encoding tag) in an embedded BadgerDB index colocated with the data.
//
// The index lives in a reserved subdirectory of the store root and is the
// out-of-band complement to the files themselves: file existence is the
// source of truth for "is this key populated", the index only qualifies it.
// A single mutex serializes every operation against the handle, including
// the garbage-collection sweep, so rename and sweep are atomic with
// respect to concurrent puts.
package datainfo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/filekv/filekv/internal/logger"
	"github.com/filekv/filekv/pkg/storage"
	"github.com/filekv/filekv/pkg/timestamp"
)

// DBDirName is the reserved subdirectory of the store root holding the
// index files. It is never user-configurable and is always excluded from
// key enumeration.
const DBDirName = ".filekv-index"

// Store is a BadgerDB-backed metadata index.
type Store struct {
	mu     sync.Mutex
	db     *badger.DB
	path   string
	closed bool

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open opens (creating if absent) the index under rootDir/DBDirName.
func Open(rootDir string) (*Store, error) {
	path := filepath.Join(rootDir, DBDirName)

	opts := badger.DefaultOptions(path)
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storage.NewIOError("failed to open metadata index", path, err)
	}

	logger.Debug("metadata index opened", "path", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the on-disk location of the index files.
func (s *Store) Path() string {
	return s.path
}

// Put upserts the record for key, overwriting any prior one.
func (s *Store) Put(ctx context.Context, key string, encoding string, ts timestamp.Timestamp) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &storage.StoreError{Code: storage.ErrClosed, Message: "metadata index closed", Path: key}
	}

	val, err := encodeRecord(Record{Timestamp: ts, Encoding: encoding})
	if err != nil {
		return &storage.StoreError{Code: storage.ErrEncode, Message: "failed to encode record", Path: key, Cause: err}
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
	if err != nil {
		return storage.NewIOError("failed to store record", key, err)
	}
	return nil
}

// Get returns the record for key, or nil if absent. Malformed bytes
// produce a decode error, never a panic.
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &storage.StoreError{Code: storage.ErrClosed, Message: "metadata index closed", Path: key}
	}

	var rec *Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			r, decErr := decodeRecord(val)
			if decErr != nil {
				return storage.NewDecodeError("malformed metadata record", key, decErr)
			}
			rec = r
			return nil
		})
	})
	if err != nil {
		if storage.CodeOf(err) == storage.ErrDecode {
			return nil, err
		}
		return nil, storage.NewIOError("failed to read record", key, err)
	}
	return rec, nil
}

// GetTimestamp decodes only the timestamp portion of the record for key.
// The boolean reports whether a record was present.
func (s *Store) GetTimestamp(ctx context.Context, key string) (timestamp.Timestamp, bool, error) {
	if err := ctx.Err(); err != nil {
		return timestamp.Timestamp{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return timestamp.Timestamp{}, false, &storage.StoreError{Code: storage.ErrClosed, Message: "metadata index closed", Path: key}
	}

	var ts timestamp.Timestamp
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			t, _, decErr := decodeTimestamp(val)
			if decErr != nil {
				return storage.NewDecodeError("malformed metadata record", key, decErr)
			}
			ts = t
			found = true
			return nil
		})
	})
	if err != nil {
		if storage.CodeOf(err) == storage.ErrDecode {
			return timestamp.Timestamp{}, false, err
		}
		return timestamp.Timestamp{}, false, storage.NewIOError("failed to read record", key, err)
	}
	return ts, found, nil
}

// Delete removes the record for key. Deleting an absent key is not an
// error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &storage.StoreError{Code: storage.ErrClosed, Message: "metadata index closed", Path: key}
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return storage.NewIOError("failed to delete record", key, err)
	}
	return nil
}

// Rename moves the record at from to to under a single lock acquisition:
// copy then delete. Fails if from has no record.
func (s *Store) Rename(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &storage.StoreError{Code: storage.ErrClosed, Message: "metadata index closed", Path: from}
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(from))
		if err == badger.ErrKeyNotFound {
			return storage.NewNotFoundError(from)
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Set([]byte(to), val); err != nil {
			return err
		}
		return txn.Delete([]byte(from))
	})
	if err != nil {
		if storage.IsNotFound(err) {
			return err
		}
		return storage.NewIOError(fmt.Sprintf("failed to rename record to %q", to), from, err)
	}
	return nil
}

// Close stops the GC runner, flushes pending writes and releases the
// handle. When destroy is true the on-disk index files are removed as
// well; removal failures are logged, not returned, so teardown cannot
// panic the caller.
func (s *Store) Close(destroy bool) error {
	s.stopGC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.db.Sync(); err != nil {
		logger.Warn("metadata index flush failed", "path", s.path, "error", err)
	}
	if err := s.db.Close(); err != nil {
		return storage.NewIOError("failed to close metadata index", s.path, err)
	}

	if destroy {
		if err := os.RemoveAll(s.path); err != nil {
			logger.Warn("failed to remove metadata index files", "path", s.path, "error", err)
		}
	}
	return nil
}
