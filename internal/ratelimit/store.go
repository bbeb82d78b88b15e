package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable is returned when the window store cannot be reached
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Store holds the window counters. Implementations must make Increment atomic.
type Store interface {
	// Increment adds one request to the window starting at windowStart and
	// returns the count after the increment
	Increment(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error)

	// Count returns the count of a window without modifying it
	Count(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error)
}

// window is the counter for one (limitKey, windowStart) pair
type window struct {
	key      string
	start    time.Time
	duration time.Duration
	count    int64
}

func (w *window) expired(now time.Time) bool {
	// a window is kept for one extra period so the sliding strategy can weight it
	return !now.Before(w.start.Add(2 * w.duration))
}
