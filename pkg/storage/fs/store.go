// Package fs implements the file-backed storage engine: keys map onto
// regular files under a root directory, qualified by a metadata index
// (pkg/datainfo) holding each key's logical timestamp and encoding tag.
//
// File existence is the source of truth for whether a key is populated.
// The index only orders writes and preserves encodings; a file dropped
// into the root out-of-band is still readable, with guessed metadata.
package fs

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/filekv/filekv/internal/logger"
	"github.com/filekv/filekv/pkg/datainfo"
	"github.com/filekv/filekv/pkg/keypath"
	"github.com/filekv/filekv/pkg/metrics"
	"github.com/filekv/filekv/pkg/pattern"
	"github.com/filekv/filekv/pkg/storage"
	"github.com/filekv/filekv/pkg/timestamp"
)

// ConflictSuffix is appended to a physical filename when the file's own
// key has descendants: "a" holding content while "a/b" exists is stored
// as "a__fkv__" so "a" can become a directory. Keys never contain it;
// enumeration strips it.
const ConflictSuffix = "__fkv__"

// DefaultMaxFileSize is the read ceiling applied when none is configured.
const DefaultMaxFileSize = 128 << 20

// OnClosePolicy selects what Close does with the on-disk state.
type OnClosePolicy int

const (
	// DoNothing leaves files and index in place.
	DoNothing OnClosePolicy = iota

	// DeleteAll destroys the index and recursively removes the root.
	DeleteAll
)

// Config carries the knobs for a file store.
type Config struct {
	// Dir is the root directory holding the files and the index.
	Dir string

	// ReadOnly rejects every mutation with a ReadOnly error.
	ReadOnly bool

	// FollowLinks disables symlink containment: when false (the default)
	// a file is ineligible if any path segment below the root is a
	// symbolic link.
	FollowLinks bool

	// KeepMime guesses an encoding from content when the index has no
	// record for a file. When false the fallback is DefaultEncoding.
	KeepMime bool

	// OnClose selects the teardown policy.
	OnClose OnClosePolicy

	// MaxFileSize caps reads; zero means DefaultMaxFileSize.
	MaxFileSize int64

	// GCPeriod and GraceWindow tune the index garbage collector; zero
	// values use the datainfo defaults.
	GCPeriod    time.Duration
	GraceWindow time.Duration

	// Watch kicks an early GC sweep when files vanish out-of-band.
	Watch bool

	// Matcher evaluates enumeration patterns; nil means glob matching.
	Matcher pattern.Matcher

	// Metrics is optional; nil records nothing.
	Metrics *metrics.StorageMetrics
}

// FileStore is the file-backed implementation of storage.Storage.
type FileStore struct {
	root        string
	readOnly    bool
	followLinks bool
	keepMime    bool
	onClose     OnClosePolicy
	maxFileSize int64
	grace       time.Duration
	matcher     pattern.Matcher
	metrics     *metrics.StorageMetrics

	meta    *datainfo.Store
	watcher *datainfo.Watcher
	closed  atomic.Bool
}

var _ storage.Storage = (*FileStore)(nil)

// New opens a file store rooted at cfg.Dir, creating the directory and
// the metadata index as needed. A writable store probes the root with a
// throwaway file so misconfigured permissions fail at construction, not
// on first put.
func New(cfg Config) (*FileStore, error) {
	if cfg.Dir == "" {
		return nil, storage.NewIOError("storage directory not configured", "", nil)
	}
	root, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, storage.NewIOError("failed to resolve storage directory", cfg.Dir, err)
	}

	if cfg.ReadOnly {
		fi, err := os.Stat(root)
		if err != nil {
			return nil, storage.NewIOError("storage directory not accessible", root, err)
		}
		if !fi.IsDir() {
			return nil, storage.NewIOError("storage path is not a directory", root, nil)
		}
	} else {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, storage.NewIOError("failed to create storage directory", root, err)
		}
		probe, err := os.CreateTemp(root, ".filekv-probe-*")
		if err != nil {
			return nil, storage.NewIOError("storage directory is not writable", root, err)
		}
		name := probe.Name()
		probe.Close()
		os.Remove(name)
	}

	meta, err := datainfo.Open(root)
	if err != nil {
		return nil, err
	}

	s := &FileStore{
		root:        root,
		readOnly:    cfg.ReadOnly,
		followLinks: cfg.FollowLinks,
		keepMime:    cfg.KeepMime,
		onClose:     cfg.OnClose,
		maxFileSize: cfg.MaxFileSize,
		grace:       cfg.GraceWindow,
		matcher:     cfg.Matcher,
		metrics:     cfg.Metrics,
		meta:        meta,
	}
	if s.maxFileSize <= 0 {
		s.maxFileSize = DefaultMaxFileSize
	}
	if s.grace <= 0 {
		s.grace = datainfo.DefaultGraceWindow
	}
	if s.matcher == nil {
		s.matcher = pattern.Glob{}
	}

	var kick <-chan struct{}
	if cfg.Watch {
		w, err := datainfo.NewWatcher(root)
		if err != nil {
			logger.Warn("filesystem watcher unavailable, relying on periodic gc only",
				"dir", root, "error", err)
		} else {
			s.watcher = w
			kick = w.Kick()
		}
	}
	meta.StartGC(s.fileExists, cfg.GCPeriod, cfg.GraceWindow, kick)

	logger.Info("file store opened",
		"dir", root,
		"read_only", cfg.ReadOnly,
		"follow_links", cfg.FollowLinks)
	return s, nil
}

// Root returns the absolute data directory.
func (s *FileStore) Root() string {
	return s.root
}

// Put stores value under key, last-writer-wins. An out-of-date timestamp
// drops the write silently; read-only mode rejects it.
func (s *FileStore) Put(ctx context.Context, key string, value storage.Value, ts timestamp.Timestamp) error {
	if s.closed.Load() {
		return &storage.StoreError{Code: storage.ErrClosed, Message: "store closed", Path: key}
	}
	if s.readOnly {
		logger.Debug("put ignored: store is read-only", "key", key)
		s.metrics.RecordOperation("put", "rejected")
		return storage.NewReadOnlyError("put", key)
	}

	ckey, err := cleanKey(key)
	if err != nil {
		return err
	}

	newer, err := s.isNewer(ctx, ckey, ts)
	if err != nil {
		return err
	}
	if !newer {
		logger.Debug("put dropped: newer version recorded", "key", ckey, "timestamp", ts)
		s.metrics.RecordOutOfDate("put")
		return nil
	}

	path, metaKey, err := s.resolveForWrite(ctx, ckey)
	if err != nil {
		s.metrics.RecordOperation("put", "error")
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.metrics.RecordOperation("put", "error")
		return storage.NewIOError("failed to create parent directories", path, err)
	}
	if err := os.WriteFile(path, value.Payload, 0o644); err != nil {
		s.metrics.RecordOperation("put", "error")
		return storage.NewIOError("failed to write file", path, err)
	}

	encoding := value.Encoding
	if encoding == "" {
		encoding = storage.DefaultEncoding
	}
	if err := s.meta.Put(ctx, metaKey, encoding, ts); err != nil {
		s.metrics.RecordOperation("put", "error")
		return err
	}

	// A key's record lives under exactly one of the two index keys at a
	// time. Clear the sibling so a leftover record there (a tombstone at
	// the canonical key after a write routed to the suffixed one, or the
	// reverse) cannot shadow this write's timestamp.
	sibling := ckey + ConflictSuffix
	if metaKey != ckey {
		sibling = ckey
	}
	if err := s.meta.Delete(ctx, sibling); err != nil {
		s.metrics.RecordOperation("put", "error")
		return err
	}

	s.metrics.RecordOperation("put", "ok")
	s.metrics.RecordBytesWritten(len(value.Payload))
	return nil
}

// Get reads the entry for key, retrying the conflict-renamed name before
// reporting NotFound. A missing or unreadable index record degrades to a
// guessed encoding and a filesystem-derived timestamp.
func (s *FileStore) Get(ctx context.Context, key string) (*storage.Entry, error) {
	if s.closed.Load() {
		return nil, &storage.StoreError{Code: storage.ErrClosed, Message: "store closed", Path: key}
	}

	ckey, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	path, metaKey, fi, err := s.resolveForRead(ckey)
	if err != nil {
		s.metrics.RecordOperation("get", "miss")
		return nil, err
	}

	if fi.Size() > s.maxFileSize {
		return nil, &storage.StoreError{
			Code:    storage.ErrTooLarge,
			Message: fmt.Sprintf("file size %d exceeds limit %d", fi.Size(), s.maxFileSize),
			Path:    path,
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.NewNotFoundError(ckey)
		}
		return nil, storage.NewIOError("failed to read file", path, err)
	}

	entry := &storage.Entry{Key: ckey, Value: storage.Value{Payload: data}}

	rec, recErr := s.meta.Get(ctx, metaKey)
	if recErr != nil {
		if storage.CodeOf(recErr) != storage.ErrDecode {
			return nil, recErr
		}
		logger.Warn("unreadable metadata record, falling back to file attributes",
			"key", ckey, "error", recErr)
		rec = nil
	}
	if rec != nil && !rec.Tombstone() {
		entry.Value.Encoding = rec.Encoding
		entry.Timestamp = rec.Timestamp
	} else {
		entry.Value.Encoding = s.guessEncoding(data)
		entry.Timestamp = fallbackTimestamp(fi)
	}

	s.metrics.RecordOperation("get", "ok")
	s.metrics.RecordBytesRead(len(data))
	return entry, nil
}

// GetTimestamp returns the logical timestamp ordering writes to key. The
// index record wins (tombstones included, so late writes to a deleted
// key order correctly); otherwise the file's own times are used with the
// low-priority fallback identity.
func (s *FileStore) GetTimestamp(ctx context.Context, key string) (timestamp.Timestamp, error) {
	if s.closed.Load() {
		return timestamp.Timestamp{}, &storage.StoreError{Code: storage.ErrClosed, Message: "store closed", Path: key}
	}

	ckey, err := cleanKey(key)
	if err != nil {
		return timestamp.Timestamp{}, err
	}

	ts, found, err := s.recordedTimestamp(ctx, ckey)
	if err != nil {
		return timestamp.Timestamp{}, err
	}
	if !found {
		return timestamp.Timestamp{}, storage.NewNotFoundError(ckey)
	}
	return ts, nil
}

// Delete removes the file for key, prunes emptied ancestor directories,
// and records a timestamped tombstone so late out-of-order writes are
// rejected. Deleting an absent key is not an error; an out-of-date
// timestamp drops the delete silently.
func (s *FileStore) Delete(ctx context.Context, key string, ts timestamp.Timestamp) error {
	if s.closed.Load() {
		return &storage.StoreError{Code: storage.ErrClosed, Message: "store closed", Path: key}
	}
	if s.readOnly {
		logger.Debug("delete ignored: store is read-only", "key", key)
		s.metrics.RecordOperation("delete", "rejected")
		return storage.NewReadOnlyError("delete", key)
	}

	ckey, err := cleanKey(key)
	if err != nil {
		return err
	}

	newer, err := s.isNewer(ctx, ckey, ts)
	if err != nil {
		return err
	}
	if !newer {
		logger.Debug("delete dropped: newer version recorded", "key", ckey, "timestamp", ts)
		s.metrics.RecordOutOfDate("delete")
		return nil
	}

	if path, _, _, err := s.resolveForRead(ckey); err == nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			s.metrics.RecordOperation("delete", "error")
			return storage.NewIOError("failed to remove file", path, rmErr)
		}
		s.pruneEmptyDirs(filepath.Dir(path))
	} else if !storage.IsNotFound(err) {
		return err
	}

	// Drop whichever record the file carried, then tombstone the
	// canonical key. An empty encoding marks the tombstone; GC prunes it
	// after the grace window.
	if err := s.meta.Delete(ctx, ckey+ConflictSuffix); err != nil {
		return err
	}
	if err := s.meta.Put(ctx, ckey, "", ts); err != nil {
		return err
	}

	s.metrics.RecordOperation("delete", "ok")
	return nil
}

// Matching lazily yields the keys of files under the root that intersect
// pattern. One filesystem pass, not restartable.
func (s *FileStore) Matching(ctx context.Context, pat string) iter.Seq[string] {
	return s.walk(ctx, pat)
}

// Sweep runs one garbage-collection pass over the index immediately.
func (s *FileStore) Sweep(ctx context.Context) datainfo.SweepStats {
	stats := s.meta.Sweep(ctx, s.fileExists, s.grace)
	s.metrics.RecordSweep(stats.Scanned, stats.Pruned, stats.Errors, float64(time.Now().Unix()))
	return stats
}

// Close stops the watcher and the garbage collector, flushes the index,
// and applies the on-close policy. With DeleteAll the root is removed
// recursively; removal failures are logged, not returned.
func (s *FileStore) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			logger.Warn("failed to close filesystem watcher", "error", err)
		}
	}

	destroy := s.onClose == DeleteAll
	if err := s.meta.Close(destroy); err != nil {
		return err
	}

	if destroy {
		if err := os.RemoveAll(s.root); err != nil {
			logger.Warn("failed to remove storage directory", "dir", s.root, "error", err)
		}
	}

	logger.Info("file store closed", "dir", s.root)
	return nil
}

// cleanKey validates and normalizes a logical key, mapping failures to
// the typed error surface.
func cleanKey(key string) (string, error) {
	ckey, err := keypath.Clean(key)
	if err != nil {
		return "", &storage.StoreError{Code: storage.ErrInvalidKey, Message: "invalid key", Path: key, Cause: err}
	}
	return ckey, nil
}

// isNewer reports whether ts is strictly newer than whatever timestamp is
// recorded for key. With nothing recorded anywhere, any timestamp wins.
func (s *FileStore) isNewer(ctx context.Context, ckey string, ts timestamp.Timestamp) (bool, error) {
	recorded, found, err := s.recordedTimestamp(ctx, ckey)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	return ts.After(recorded), nil
}

// recordedTimestamp resolves the ordering timestamp for a key: the
// newest index record under the key or its conflict-renamed sibling,
// else the backing file's own times. Both index keys are consulted so a
// record left behind on one side can never shadow a newer record on the
// other. The boolean reports whether anything was found.
func (s *FileStore) recordedTimestamp(ctx context.Context, ckey string) (timestamp.Timestamp, bool, error) {
	var best timestamp.Timestamp
	found := false
	for _, mk := range []string{ckey, ckey + ConflictSuffix} {
		ts, ok, err := s.meta.GetTimestamp(ctx, mk)
		if err != nil {
			if storage.CodeOf(err) == storage.ErrDecode {
				logger.Warn("unreadable metadata record, falling back to file attributes",
					"key", mk, "error", err)
				continue
			}
			return timestamp.Timestamp{}, false, err
		}
		if ok && (!found || ts.After(best)) {
			best = ts
			found = true
		}
	}
	if found {
		return best, true, nil
	}

	_, _, fi, err := s.resolveForRead(ckey)
	if err != nil {
		if storage.IsNotFound(err) {
			return timestamp.Timestamp{}, false, nil
		}
		return timestamp.Timestamp{}, false, err
	}
	return fallbackTimestamp(fi), true, nil
}

// resolveForRead locates the physical file for a key: the direct path
// first, the conflict-suffixed path second. Returns the path, the index
// key the file's record lives under, and the file info. NotFound when
// neither exists or the path is excluded by symlink containment.
func (s *FileStore) resolveForRead(ckey string) (string, string, os.FileInfo, error) {
	direct, err := keypath.ToPath(s.root, ckey)
	if err != nil {
		return "", "", nil, &storage.StoreError{Code: storage.ErrInvalidKey, Message: "invalid key", Path: ckey, Cause: err}
	}

	for _, cand := range []struct {
		path    string
		metaKey string
	}{
		{direct, ckey},
		{direct + ConflictSuffix, ckey + ConflictSuffix},
	} {
		fi, err := os.Lstat(cand.path)
		if err != nil {
			continue
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			if !s.followLinks {
				continue
			}
			fi, err = os.Stat(cand.path)
			if err != nil {
				continue
			}
		}
		if fi.IsDir() {
			continue
		}
		if !s.followLinks && !s.ancestorsContained(cand.path) {
			continue
		}
		return cand.path, cand.metaKey, fi, nil
	}
	return "", "", nil, storage.NewNotFoundError(ckey)
}

// ancestorsContained walks the directories between the root (exclusive)
// and path (exclusive) and reports whether none of them is a symlink.
func (s *FileStore) ancestorsContained(path string) bool {
	dir := filepath.Dir(path)
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		fi, err := os.Lstat(dir)
		if err != nil || fi.Mode()&os.ModeSymlink != 0 {
			return false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return true
}

// fileExists is the garbage collector's liveness predicate. Index keys
// already carry the conflict suffix when the file does, so a plain
// existence check suffices.
func (s *FileStore) fileExists(key string) bool {
	path, err := keypath.ToPath(s.root, key)
	if err != nil {
		return false
	}
	fi, err := os.Lstat(path)
	return err == nil && !fi.IsDir()
}

// guessEncoding produces the fallback encoding for a file with no index
// record.
func (s *FileStore) guessEncoding(data []byte) string {
	if !s.keepMime {
		return storage.DefaultEncoding
	}
	return mimetype.Detect(data).String()
}

// pruneEmptyDirs removes now-empty directories from dir up to (not
// including) the root. Stops at the first non-empty directory.
func (s *FileStore) pruneEmptyDirs(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
