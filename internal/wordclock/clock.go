package wordclock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrSyncTimeout is returned when the clock is still unsynchronized after the startup wait
var ErrSyncTimeout = errors.New("time synchronization timed out")

// minSyncedEpoch is the Unix time below which the clock is assumed to still
// be counting from boot rather than from a time server
const minSyncedEpoch = 10000

// TimeSource provides the displayed time on a 12 hour dial
type TimeSource interface {
	// Now returns the hour (1..12) and minute (0..59)
	Now() (hour, minute int)
	// Synchronized reports whether wall-clock time has been set
	Synchronized() bool
}

// SystemClock reads the host clock in a fixed time zone
type SystemClock struct {
	loc *time.Location
	now func() time.Time
}

// NewSystemClock creates a clock displaying time in loc
func NewSystemClock(loc *time.Location) *SystemClock {
	if loc == nil {
		loc = time.Local
	}
	return &SystemClock{loc: loc, now: time.Now}
}

// Now returns the current 12 hour time
func (c *SystemClock) Now() (int, int) {
	t := c.now().In(c.loc)
	return Hour12(t.Hour()), t.Minute()
}

// Synchronized reports whether the host clock has been set
func (c *SystemClock) Synchronized() bool {
	return c.now().Unix() >= minSyncedEpoch
}

// Hour12 converts a 0..23 hour to the 1..12 dial
func Hour12(h int) int {
	h %= 12
	if h == 0 {
		return 12
	}
	return h
}

// WaitForSync blocks until ts is synchronized, polling every interval, for at
// most timeout. It returns ErrSyncTimeout when the bound is reached.
func WaitForSync(ctx context.Context, ts TimeSource, timeout, interval time.Duration, logger *slog.Logger) error {
	if ts.Synchronized() {
		return nil
	}

	logger.Info("Waiting for time synchronization", "timeout", timeout)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if ts.Synchronized() {
				logger.Info("Time synchronized")
				return nil
			}
		case <-deadline.C:
			if ts.Synchronized() {
				return nil
			}
			return fmt.Errorf("after %s: %w", timeout, ErrSyncTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
