// Package timestamp implements the logical timestamps used to order
// concurrent writes without synchronized wall clocks.
//
// A Timestamp is a hybrid-logical-clock value: a 64-bit NTP64 time (32-bit
// seconds since the Unix epoch, 32-bit fraction) paired with a tie-break
// identity. The total order compares time first, then identity bytes, so
// two writers can never produce incomparable timestamps.
package timestamp

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDSize is the fixed size of a tie-break identity in bytes.
const IDSize = 16

// ID is the tie-break identity of a writer.
type ID [IDSize]byte

// FallbackID is the all-zero identity attached to timestamps derived from
// filesystem metadata. It orders below every genuine writer identity, so a
// real write with the same time always wins against a fallback.
var FallbackID ID

// NewID returns a random writer identity.
func NewID() ID {
	return ID(uuid.New())
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsFallback reports whether the identity is the reserved low-priority one.
func (id ID) IsFallback() bool {
	return id == FallbackID
}

// Timestamp is a logical point in time: NTP64 time plus writer identity.
type Timestamp struct {
	Time uint64
	ID   ID
}

// New builds a timestamp from a wall-clock instant and a writer identity.
func New(t time.Time, id ID) Timestamp {
	return Timestamp{Time: NTP64(t), ID: id}
}

// NTP64 converts a wall-clock instant into 64-bit NTP fixed-point form:
// the upper 32 bits hold whole seconds since the Unix epoch, the lower 32
// bits the fractional second.
func NTP64(t time.Time) uint64 {
	secs := uint64(t.Unix())
	frac := uint64(t.Nanosecond()) << 32 / uint64(time.Second)
	return secs<<32 | frac
}

// AsTime converts the NTP64 time value back to a wall-clock instant.
func (ts Timestamp) AsTime() time.Time {
	secs := int64(ts.Time >> 32)
	nanos := (ts.Time & 0xffffffff) * uint64(time.Second) >> 32
	return time.Unix(secs, int64(nanos))
}

// Compare returns -1, 0 or 1 ordering ts against other: time first, then
// identity bytes.
func (ts Timestamp) Compare(other Timestamp) int {
	switch {
	case ts.Time < other.Time:
		return -1
	case ts.Time > other.Time:
		return 1
	default:
		return bytes.Compare(ts.ID[:], other.ID[:])
	}
}

// After reports whether ts is strictly newer than other.
func (ts Timestamp) After(other Timestamp) bool {
	return ts.Compare(other) > 0
}

// Before reports whether ts is strictly older than other.
func (ts Timestamp) Before(other Timestamp) bool {
	return ts.Compare(other) < 0
}

func (ts Timestamp) String() string {
	return fmt.Sprintf("%s/%s", ts.AsTime().UTC().Format(time.RFC3339Nano), ts.ID)
}

// Clock issues monotonically increasing timestamps for one writer identity.
// If the wall clock stands still or moves backwards, the logical time is
// bumped past the last issued value instead.
type Clock struct {
	mu   sync.Mutex
	id   ID
	last uint64
}

// NewClock creates a clock with a fresh random identity.
func NewClock() *Clock {
	return &Clock{id: NewID()}
}

// NewClockWithID creates a clock bound to a fixed identity. Useful for
// deterministic tests.
func NewClockWithID(id ID) *Clock {
	return &Clock{id: id}
}

// ID returns the writer identity this clock stamps with.
func (c *Clock) ID() ID {
	return c.id
}

// Now returns a timestamp strictly greater than any previously issued by
// this clock.
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := NTP64(time.Now())
	if t <= c.last {
		t = c.last + 1
	}
	c.last = t
	return Timestamp{Time: t, ID: c.id}
}
