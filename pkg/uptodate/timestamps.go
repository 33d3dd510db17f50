package uptodate

import (
	"errors"
	"io/fs"
	"os"
	"time"
)

// TimestampSource reports the last write time of a path in UTC.
// A missing path is reported as ok == false with a nil error.
type TimestampSource interface {
	LastWriteTimeUTC(path string) (t time.Time, ok bool, err error)
}

// OSTimestampSource reads write times from the local file system
type OSTimestampSource struct{}

func (OSTimestampSource) LastWriteTimeUTC(path string) (time.Time, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return info.ModTime().UTC(), true, nil
}

type stamp struct {
	t  time.Time
	ok bool
}

// timestampCache memoizes reads for the duration of one check
type timestampCache struct {
	source TimestampSource
	seen   map[string]stamp
}

func newTimestampCache(source TimestampSource) *timestampCache {
	return &timestampCache{source: source, seen: make(map[string]stamp)}
}

func (c *timestampCache) get(path string) (time.Time, bool, error) {
	if s, ok := c.seen[path]; ok {
		return s.t, s.ok, nil
	}
	t, ok, err := c.source.LastWriteTimeUTC(path)
	if err != nil {
		return time.Time{}, false, err
	}
	c.seen[path] = stamp{t: t, ok: ok}
	return t, ok, nil
}

// formatTime renders a timestamp for log lines in local time
func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05.000")
}
