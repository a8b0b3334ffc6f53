package fs

import (
	"os"
	"time"

	"github.com/filekv/filekv/pkg/timestamp"
)

// fallbackTimestamp derives an ordering timestamp for a file that has no
// index record: modification time, else access time, else change time,
// else now. The all-zero identity makes it lose ties against any real
// recorded timestamp.
func fallbackTimestamp(fi os.FileInfo) timestamp.Timestamp {
	t := fi.ModTime()
	if !usable(t) {
		atime, ctime := platformFileTimes(fi)
		switch {
		case usable(atime):
			t = atime
		case usable(ctime):
			t = ctime
		default:
			t = time.Now()
		}
	}
	return timestamp.New(t, timestamp.FallbackID)
}

func usable(t time.Time) bool {
	return !t.IsZero() && t.Unix() > 0
}
