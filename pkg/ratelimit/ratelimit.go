package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter spaces operations at least one interval apart, optionally adding
// positive jitter. The first call never waits. Safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
	next     time.Time
}

// NewLimiter creates a limiter for rps operations per second. A non-positive
// rps disables limiting. Jitter is clamped to [0, 1].
func NewLimiter(rps float64, jitter float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	return Every(time.Duration(float64(time.Second)/rps), jitter)
}

// Every creates a limiter that allows one operation per interval.
func Every(interval time.Duration, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	return &Limiter{interval: interval, jitter: jitter}
}

// Wait blocks until the next slot or until ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l == nil || l.interval <= 0 {
		return nil
	}

	delay := l.reserve()
	if delay <= 0 {
		return nil
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

// reserve claims the next slot and returns how long the caller must wait for it.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	slot := l.next
	if slot.Before(now) {
		slot = now
	}

	step := l.interval
	if l.jitter > 0 {
		step += time.Duration(float64(l.interval) * l.jitter * rand.Float64())
	}
	l.next = slot.Add(step)

	return slot.Sub(now)
}
