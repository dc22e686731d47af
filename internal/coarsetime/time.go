// Package coarsetime provides a coarse wall clock to reduce the overhead
// of frequent time.Now() calls on connection hot paths. The cached time is
// refreshed every 50ms by a background goroutine, which is precise enough
// for last-used stamps and idle-staleness checks.
package coarsetime

import (
	"sync/atomic"
	"time"
)

const resolution = 50 * time.Millisecond

var now atomic.Value

func init() {
	now.Store(time.Now())

	ticker := time.NewTicker(resolution)
	go func() {
		for range ticker.C {
			now.Store(time.Now())
		}
	}()
}

// Now returns the cached wall-clock time, at most one resolution stale.
func Now() time.Time {
	return now.Load().(time.Time)
}

// Since returns the elapsed coarse time since t.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}
