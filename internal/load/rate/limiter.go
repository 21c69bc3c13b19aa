// Package rate caps the request rate shared by all virtual users.
package rate

import (
	"context"
	"sync"
	"time"
)

// Limiter spaces requests evenly at a fixed rate using a leaky bucket.
//
// Each call to Wait reserves the next drip slot and blocks until it arrives.
// A caller that falls behind schedule proceeds immediately, but missed slots
// are not banked beyond a burst of one, so a stalled target cannot trigger a
// flood of requests once it recovers.
//
// Limiter is safe for concurrent use.
//
//	lim := rate.NewLimiter(100) // 100 requests per second across all VUs
//	if err := lim.Wait(ctx); err != nil {
//	    return err
//	}
type Limiter struct {
	interval time.Duration

	mu       sync.Mutex
	nextDrip time.Time
}

// NewLimiter returns a limiter allowing perSecond requests per second.
// A non-positive rate yields nil, which Wait treats as unlimited.
func NewLimiter(perSecond float64) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	return &Limiter{
		interval: time.Duration(float64(time.Second) / perSecond),
	}
}

// Rate returns the configured requests per second, or 0 when unlimited.
func (l *Limiter) Rate() float64 {
	if l == nil {
		return 0
	}
	return float64(time.Second) / float64(l.interval)
}

// reserve returns the start time of the next slot and advances the bucket.
func (l *Limiter) reserve(now time.Time) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot := l.nextDrip
	if slot.Before(now) {
		slot = now
	}
	l.nextDrip = slot.Add(l.interval)
	return slot
}

// Wait blocks until the caller may send its next request. It returns
// ctx.Err() if ctx is done first; the reserved slot is then lost.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	delay := time.Until(l.reserve(time.Now()))
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
