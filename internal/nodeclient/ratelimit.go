package nodeclient

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// RateLimiter enforces an rps ceiling per client by acquiring a
// single-permit semaphore and sleeping until now - lastCall >= 1/rps
// (spec.md §4.B). rps == 0 disables throttling entirely; in that case
// Wait never sleeps (spec.md §8 boundary property).
type RateLimiter struct {
	rps   float64
	sem   *semaphore.Weighted
	mu    sync.Mutex
	last  time.Time
	nowFn func() time.Time
}

// NewRateLimiter constructs a limiter for the given requests-per-second
// ceiling.
func NewRateLimiter(rps float64) *RateLimiter {
	return &RateLimiter{
		rps:   rps,
		sem:   semaphore.NewWeighted(1),
		nowFn: time.Now,
	}
}

// Wait blocks until it is this caller's turn under the rps ceiling,
// or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.rps <= 0 {
		return nil
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)

	r.mu.Lock()
	now := r.nowFn()
	minInterval := time.Duration(float64(time.Second) / r.rps)
	wait := time.Duration(0)
	if !r.last.IsZero() {
		elapsed := now.Sub(r.last)
		if elapsed < minInterval {
			wait = minInterval - elapsed
		}
	}
	r.last = now.Add(wait)
	r.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
