package datainfo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filekv/filekv/pkg/storage"
	"github.com/filekv/filekv/pkg/timestamp"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close(false)
	})
	return s
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ts := timestamp.Timestamp{Time: 1000, ID: timestamp.NewID()}
	require.NoError(t, s.Put(ctx, "logs/app", "text/plain", ts))

	rec, err := s.Get(ctx, "logs/app")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "text/plain", rec.Encoding)
	assert.Equal(t, ts, rec.Timestamp)
}

func TestGetAbsent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, found, err := s.GetTimestamp(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := timestamp.NewID()
	require.NoError(t, s.Put(ctx, "k", "text/plain", timestamp.Timestamp{Time: 1, ID: id}))
	require.NoError(t, s.Put(ctx, "k", "application/json", timestamp.Timestamp{Time: 2, ID: id}))

	rec, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "application/json", rec.Encoding)
	assert.Equal(t, uint64(2), rec.Timestamp.Time)
}

func TestGetTimestampOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ts := timestamp.Timestamp{Time: 7, ID: timestamp.NewID()}
	require.NoError(t, s.Put(ctx, "k", "text/plain", ts))

	got, found, err := s.GetTimestamp(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, ts, got)
}

func TestDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Put(ctx, "k", "text/plain", timestamp.Timestamp{Time: 1}))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))

	rec, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ts := timestamp.Timestamp{Time: 5, ID: timestamp.NewID()}
	require.NoError(t, s.Put(ctx, "a", "text/plain", ts))
	require.NoError(t, s.Rename(ctx, "a", "a__fkv__"))

	rec, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, rec, "source record should be gone")

	rec, err = s.Get(ctx, "a__fkv__")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ts, rec.Timestamp)
}

func TestRenameMissingSource(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.Rename(ctx, "ghost", "elsewhere")
	assert.True(t, storage.IsNotFound(err), "expected NotFound, got %v", err)
}

// plantRaw writes foreign bytes straight into the index, bypassing the
// record codec.
func plantRaw(t *testing.T, s *Store, key string, val []byte) {
	t.Helper()
	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	}))
}

func TestDecodeErrorSurfaced(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	plantRaw(t, s, "corrupt", []byte{1, 2})

	_, err := s.Get(ctx, "corrupt")
	assert.Equal(t, storage.ErrDecode, storage.CodeOf(err))

	_, _, err = s.GetTimestamp(ctx, "corrupt")
	assert.Equal(t, storage.ErrDecode, storage.CodeOf(err))
}

func TestCloseDestroy(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "k", "text/plain", timestamp.Timestamp{Time: 1}))
	require.NoError(t, s.Close(true))

	_, err = os.Stat(filepath.Join(root, DBDirName))
	assert.True(t, os.IsNotExist(err), "index directory should be destroyed")
}

func TestClosedStoreRejectsOps(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)
	require.NoError(t, s.Close(false))

	err = s.Put(ctx, "k", "text/plain", timestamp.Timestamp{Time: 1})
	assert.Equal(t, storage.ErrClosed, storage.CodeOf(err))
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old := timestamp.New(time.Now().Add(-time.Minute), timestamp.NewID())
	fresh := timestamp.New(time.Now(), timestamp.NewID())

	require.NoError(t, s.Put(ctx, "gone-old", "text/plain", old))
	require.NoError(t, s.Put(ctx, "gone-fresh", "text/plain", fresh))
	require.NoError(t, s.Put(ctx, "alive", "text/plain", old))

	exists := func(key string) bool { return key == "alive" }
	stats := s.Sweep(ctx, exists, 5*time.Second)

	assert.Equal(t, 3, stats.Scanned)
	assert.Equal(t, 1, stats.Pruned)

	rec, err := s.Get(ctx, "gone-old")
	require.NoError(t, err)
	assert.Nil(t, rec, "stale record past the grace window should be pruned")

	rec, err = s.Get(ctx, "gone-fresh")
	require.NoError(t, err)
	assert.NotNil(t, rec, "record inside the grace window must survive")

	rec, err = s.Get(ctx, "alive")
	require.NoError(t, err)
	assert.NotNil(t, rec, "record with live file must survive")
}

func TestSweepSkipsUndecodable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old := timestamp.New(time.Now().Add(-time.Minute), timestamp.NewID())
	require.NoError(t, s.Put(ctx, "stale", "text/plain", old))
	plantRaw(t, s, "corrupt", []byte{0xde, 0xad})

	stats := s.Sweep(ctx, func(string) bool { return false }, 5*time.Second)

	// The corrupt record errors but the sweep still prunes the stale one.
	assert.Equal(t, 1, stats.Pruned)
	assert.Equal(t, 1, stats.Errors)
}

func TestStartGCStopsOnClose(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	s.StartGC(func(string) bool { return true }, 10*time.Millisecond, time.Millisecond, nil)

	// Close must stop the runner without deadlocking.
	done := make(chan struct{})
	go func() {
		s.Close(false)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked waiting for GC runner")
	}
}

func TestGCKick(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)
	defer s.Close(false)

	old := timestamp.New(time.Now().Add(-time.Minute), timestamp.NewID())
	require.NoError(t, s.Put(ctx, "stale", "text/plain", old))

	kick := make(chan struct{}, 1)
	s.StartGC(func(string) bool { return false }, time.Hour, time.Second, kick)

	kick <- struct{}{}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := s.Get(ctx, "stale")
		require.NoError(t, err)
		if rec == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("kicked sweep never pruned the stale record")
}
