// Package storage defines the capability surface a storage backend
// implements and the value types that flow through it.
//
// Callers depend only on the Storage interface; the file-backed engine in
// pkg/storage/fs is one implementation of it.
package storage

import (
	"context"
	"iter"

	"github.com/filekv/filekv/pkg/timestamp"
)

// DefaultEncoding is the encoding attached when none was recorded and
// guessing is disabled.
const DefaultEncoding = "application/octet-stream"

// Value is content plus its encoding tag (a MIME-like descriptor).
type Value struct {
	Payload  []byte
	Encoding string
}

// Entry is the full result of reading a key.
type Entry struct {
	Key       string
	Value     Value
	Timestamp timestamp.Timestamp
}

// Storage is the polymorphic backend capability. Implementations resolve
// write ordering by logical timestamp (last-writer-wins): a put or delete
// whose timestamp is not newer than the recorded one is silently dropped.
type Storage interface {
	// Put stores value under key. Read-only stores reject the call with a
	// ReadOnly error; out-of-date timestamps are dropped without error.
	Put(ctx context.Context, key string, value Value, ts timestamp.Timestamp) error

	// Get reads the entry for key, retrying the conflict-renamed name
	// before reporting NotFound. Missing metadata falls back to a guessed
	// encoding and a filesystem-derived timestamp.
	Get(ctx context.Context, key string) (*Entry, error)

	// GetTimestamp returns only the logical timestamp for key, decoding
	// just the timestamp portion of the metadata record when present.
	GetTimestamp(ctx context.Context, key string) (timestamp.Timestamp, error)

	// Delete removes the file for key and records a timestamped tombstone.
	// Deleting an absent key is not an error.
	Delete(ctx context.Context, key string, ts timestamp.Timestamp) error

	// Matching lazily yields the keys whose files exist under the store
	// and intersect pattern. The sequence is finite, one filesystem pass,
	// and not restartable.
	Matching(ctx context.Context, pattern string) iter.Seq[string]

	// Close flushes and releases the store, applying the configured
	// on-close policy.
	Close(ctx context.Context) error
}
