package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filekv/filekv/pkg/storage"
	"github.com/filekv/filekv/pkg/timestamp"
)

func newTestStore(t *testing.T, cfg Config) *FileStore {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close(context.Background())
	})
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()
	clock := timestamp.NewClock()

	ts := clock.Now()
	val := storage.Value{Payload: []byte("hello"), Encoding: "text/plain"}
	require.NoError(t, s.Put(ctx, "store/logs/app", val, ts))

	entry, err := s.Get(ctx, "store/logs/app")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), entry.Value.Payload)
	assert.Equal(t, "text/plain", entry.Value.Encoding)
	assert.Equal(t, ts, entry.Timestamp)

	// The key maps onto a real file under the root.
	data, err := os.ReadFile(filepath.Join(s.Root(), "store", "logs", "app"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestPutDefaultEncoding(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", storage.Value{Payload: []byte("x")}, timestamp.NewClock().Now()))

	entry, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultEncoding, entry.Value.Encoding)
}

func TestGetAbsentKey(t *testing.T) {
	s := newTestStore(t, Config{})

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err))
}

func TestLeadingSlashNormalized(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "/a/b", storage.Value{Payload: []byte("v")}, timestamp.NewClock().Now()))

	entry, err := s.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), entry.Value.Payload)
}

func TestInvalidKeyRejected(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()
	ts := timestamp.NewClock().Now()

	for _, key := range []string{"", "/", "..", "../escape", "a/../../b"} {
		err := s.Put(ctx, key, storage.Value{Payload: []byte("x")}, ts)
		require.Error(t, err, "key %q", key)
		assert.Equal(t, storage.ErrInvalidKey, storage.CodeOf(err), "key %q", key)
	}
}

func TestLastWriterWins(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()
	clock := timestamp.NewClock()

	older := clock.Now()
	newer := clock.Now()

	require.NoError(t, s.Put(ctx, "k", storage.Value{Payload: []byte("new")}, newer))

	// An out-of-order write with the older timestamp is dropped silently.
	require.NoError(t, s.Put(ctx, "k", storage.Value{Payload: []byte("old")}, older))

	entry, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), entry.Value.Payload)
	assert.Equal(t, newer, entry.Timestamp)

	// Equal timestamps are not newer either.
	require.NoError(t, s.Put(ctx, "k", storage.Value{Payload: []byte("equal")}, newer))
	entry, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), entry.Value.Payload)
}

func TestDeleteOutOfDateDropped(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()
	clock := timestamp.NewClock()

	older := clock.Now()
	newer := clock.Now()

	require.NoError(t, s.Put(ctx, "k", storage.Value{Payload: []byte("v")}, newer))
	require.NoError(t, s.Delete(ctx, "k", older))

	entry, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), entry.Value.Payload)
}

func TestDeleteRemovesFileAndEmptyDirs(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()
	clock := timestamp.NewClock()

	require.NoError(t, s.Put(ctx, "a/b/c", storage.Value{Payload: []byte("v")}, clock.Now()))
	require.NoError(t, s.Delete(ctx, "a/b/c", clock.Now()))

	_, err := s.Get(ctx, "a/b/c")
	assert.True(t, storage.IsNotFound(err))

	// Emptied ancestors are pruned up to the root; the root stays.
	_, err = os.Stat(filepath.Join(s.Root(), "a"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(s.Root())
	assert.NoError(t, err)
}

func TestDeleteAbsentKeyIsNoError(t *testing.T) {
	s := newTestStore(t, Config{})

	err := s.Delete(context.Background(), "never/was", timestamp.NewClock().Now())
	assert.NoError(t, err)
}

func TestTombstoneBlocksLateWrite(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()
	clock := timestamp.NewClock()

	writeTS := clock.Now()
	deleteTS := clock.Now()
	lateTS := writeTS // older than the delete

	require.NoError(t, s.Put(ctx, "k", storage.Value{Payload: []byte("v")}, writeTS))
	require.NoError(t, s.Delete(ctx, "k", deleteTS))

	// A write that predates the delete must not resurrect the key.
	require.NoError(t, s.Put(ctx, "k", storage.Value{Payload: []byte("late")}, lateTS))
	_, err := s.Get(ctx, "k")
	assert.True(t, storage.IsNotFound(err))

	// The tombstone's timestamp is still observable for ordering.
	ts, err := s.GetTimestamp(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, deleteTS, ts)

	// A genuinely newer write goes through.
	require.NoError(t, s.Put(ctx, "k", storage.Value{Payload: []byte("fresh")}, clock.Now()))
	entry, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), entry.Value.Payload)
}

func TestReadOnlyRejectsMutations(t *testing.T) {
	dir := t.TempDir()

	rw := newTestStore(t, Config{Dir: dir})
	ctx := context.Background()
	clock := timestamp.NewClock()
	require.NoError(t, rw.Put(ctx, "k", storage.Value{Payload: []byte("v")}, clock.Now()))
	require.NoError(t, rw.Close(ctx))

	ro := newTestStore(t, Config{Dir: dir, ReadOnly: true})

	err := ro.Put(ctx, "k", storage.Value{Payload: []byte("w")}, clock.Now())
	assert.Equal(t, storage.ErrReadOnly, storage.CodeOf(err))

	err = ro.Delete(ctx, "k", clock.Now())
	assert.Equal(t, storage.ErrReadOnly, storage.CodeOf(err))

	// Reads still work.
	entry, err := ro.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), entry.Value.Payload)
}

func TestOutOfBandFileFallbackMetadata(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	// A file dropped into the root outside the store API is readable
	// with guessed metadata.
	path := filepath.Join(s.Root(), "dropped")
	require.NoError(t, os.WriteFile(path, []byte("surprise"), 0o644))
	fi, err := os.Stat(path)
	require.NoError(t, err)

	entry, err := s.Get(ctx, "dropped")
	require.NoError(t, err)
	assert.Equal(t, []byte("surprise"), entry.Value.Payload)
	assert.Equal(t, storage.DefaultEncoding, entry.Value.Encoding)
	assert.Equal(t, timestamp.FallbackID, entry.Timestamp.ID)
	assert.Equal(t, timestamp.NTP64(fi.ModTime()), entry.Timestamp.Time)
}

func TestKeepMimeGuessesEncoding(t *testing.T) {
	s := newTestStore(t, Config{KeepMime: true})
	ctx := context.Background()

	path := filepath.Join(s.Root(), "page")
	require.NoError(t, os.WriteFile(path, []byte("<html><body>hi</body></html>"), 0o644))

	entry, err := s.Get(ctx, "page")
	require.NoError(t, err)
	assert.Contains(t, entry.Value.Encoding, "text/html")
}

func TestFallbackTimestampLosesToRecorded(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	// Out-of-band file: its ordering timestamp carries the all-zero
	// identity, so a real write at the same wall-clock instant wins.
	path := filepath.Join(s.Root(), "k")
	require.NoError(t, os.WriteFile(path, []byte("oob"), 0o644))
	fi, err := os.Stat(path)
	require.NoError(t, err)

	ts := timestamp.Timestamp{Time: timestamp.NTP64(fi.ModTime()), ID: timestamp.NewID()}
	require.NoError(t, s.Put(ctx, "k", storage.Value{Payload: []byte("real")}, ts))

	entry, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("real"), entry.Value.Payload)
}

func TestMaxFileSizeCeiling(t *testing.T) {
	s := newTestStore(t, Config{MaxFileSize: 8})
	ctx := context.Background()
	clock := timestamp.NewClock()

	require.NoError(t, s.Put(ctx, "small", storage.Value{Payload: []byte("tiny")}, clock.Now()))
	require.NoError(t, s.Put(ctx, "big", storage.Value{Payload: []byte("way past the limit")}, clock.Now()))

	_, err := s.Get(ctx, "small")
	require.NoError(t, err)

	_, err = s.Get(ctx, "big")
	require.Error(t, err)
	assert.Equal(t, storage.ErrTooLarge, storage.CodeOf(err))
}

func TestGetTimestamp(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()
	clock := timestamp.NewClock()

	ts := clock.Now()
	require.NoError(t, s.Put(ctx, "k", storage.Value{Payload: []byte("v")}, ts))

	got, err := s.GetTimestamp(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, ts, got)

	_, err = s.GetTimestamp(ctx, "absent")
	assert.True(t, storage.IsNotFound(err))
}

func TestSymlinkContainment(t *testing.T) {
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("leak"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))

	s := newTestStore(t, Config{Dir: dir})
	ctx := context.Background()

	// A path crossing a symlinked directory is ineligible.
	_, err := s.Get(ctx, "link/secret")
	assert.True(t, storage.IsNotFound(err))

	// Direct symlinked files are ineligible too.
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret"), filepath.Join(dir, "alias")))
	_, err = s.Get(ctx, "alias")
	assert.True(t, storage.IsNotFound(err))
}

func TestFollowLinksEnablesSymlinks(t *testing.T) {
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("ok here"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))

	s := newTestStore(t, Config{Dir: dir, FollowLinks: true})

	entry, err := s.Get(context.Background(), "link/secret")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok here"), entry.Value.Payload)
}

func TestReadOnlyMissingDirFails(t *testing.T) {
	_, err := New(Config{Dir: filepath.Join(t.TempDir(), "nope"), ReadOnly: true})
	require.Error(t, err)
}

func TestCloseDeleteAllRemovesRoot(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{Dir: dir, OnClose: DeleteAll})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", storage.Value{Payload: []byte("v")}, timestamp.NewClock().Now()))
	require.NoError(t, s.Close(ctx))

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()
	require.NoError(t, s.Close(ctx))

	_, err := s.Get(ctx, "k")
	assert.Equal(t, storage.ErrClosed, storage.CodeOf(err))

	err = s.Put(ctx, "k", storage.Value{Payload: []byte("v")}, timestamp.NewClock().Now())
	assert.Equal(t, storage.ErrClosed, storage.CodeOf(err))

	// Close is idempotent.
	assert.NoError(t, s.Close(ctx))
}

func TestSweepPrunesOrphanedRecords(t *testing.T) {
	s := newTestStore(t, Config{GraceWindow: time.Millisecond, GCPeriod: time.Hour})
	ctx := context.Background()
	clock := timestamp.NewClock()

	require.NoError(t, s.Put(ctx, "live", storage.Value{Payload: []byte("v")}, clock.Now()))
	require.NoError(t, s.Put(ctx, "gone", storage.Value{Payload: []byte("v")}, clock.Now()))

	// Remove one file out-of-band; its record is now orphaned.
	require.NoError(t, os.Remove(filepath.Join(s.Root(), "gone")))
	time.Sleep(10 * time.Millisecond)

	stats := s.Sweep(ctx)
	assert.Equal(t, 1, stats.Pruned)
	assert.GreaterOrEqual(t, stats.Scanned, 2)

	// The live key's record survived.
	ts, err := s.GetTimestamp(ctx, "live")
	require.NoError(t, err)
	assert.NotZero(t, ts.Time)
}

func TestSweepHonorsGraceWindow(t *testing.T) {
	s := newTestStore(t, Config{GraceWindow: time.Hour, GCPeriod: time.Hour})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", storage.Value{Payload: []byte("v")}, timestamp.NewClock().Now()))
	require.NoError(t, os.Remove(filepath.Join(s.Root(), "k")))

	stats := s.Sweep(ctx)
	assert.Zero(t, stats.Pruned)
}
