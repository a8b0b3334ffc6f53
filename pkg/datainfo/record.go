package datainfo

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/filekv/filekv/pkg/timestamp"
)

// Record wire format, decoded sequentially with no framing:
//
//	offset  size  field
//	0       8     timestamp time (NTP64, big-endian)
//	8       1     tie-break ID length
//	9       n     tie-break ID bytes
//	9+n     rest  encoding tag (UTF-8, may be empty for tombstones)
//
// The timestamp comes first so timestamp-only reads can stop before the
// encoding field.

var errTruncated = errors.New("record truncated")

// Record is the per-key metadata entry: logical timestamp plus encoding
// tag. A tombstone is a record with an empty encoding.
type Record struct {
	Timestamp timestamp.Timestamp
	Encoding  string
}

// Tombstone reports whether the record marks a deletion.
func (r *Record) Tombstone() bool {
	return r.Encoding == ""
}

func encodeRecord(r Record) ([]byte, error) {
	buf := make([]byte, 0, 8+1+timestamp.IDSize+len(r.Encoding))
	buf = binary.BigEndian.AppendUint64(buf, r.Timestamp.Time)
	buf = append(buf, byte(timestamp.IDSize))
	buf = append(buf, r.Timestamp.ID[:]...)
	buf = append(buf, r.Encoding...)
	return buf, nil
}

// decodeTimestamp reads only the timestamp prefix of a record. It returns
// the number of bytes consumed so decodeRecord can continue from there.
func decodeTimestamp(val []byte) (timestamp.Timestamp, int, error) {
	if len(val) < 9 {
		return timestamp.Timestamp{}, 0, fmt.Errorf("%w: %d bytes", errTruncated, len(val))
	}
	ts := timestamp.Timestamp{Time: binary.BigEndian.Uint64(val[:8])}
	idLen := int(val[8])
	if idLen == 0 || idLen > timestamp.IDSize {
		return timestamp.Timestamp{}, 0, fmt.Errorf("invalid tie-break ID length %d", idLen)
	}
	if len(val) < 9+idLen {
		return timestamp.Timestamp{}, 0, fmt.Errorf("%w: ID needs %d bytes, have %d", errTruncated, idLen, len(val)-9)
	}
	copy(ts.ID[:], val[9:9+idLen])
	return ts, 9 + idLen, nil
}

func decodeRecord(val []byte) (*Record, error) {
	ts, n, err := decodeTimestamp(val)
	if err != nil {
		return nil, err
	}
	return &Record{Timestamp: ts, Encoding: string(val[n:])}, nil
}
