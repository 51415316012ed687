// Package retry defines the bounded exponential backoff shared by chunk
// uploads and the delivery worker.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds how often an operation is attempted and how long to wait
// between attempts. The n-th wait is BaseDelay * 2^n, capped at MaxDelay
// when MaxDelay is positive.
type Policy struct {
	Ceiling   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// DefaultPolicy returns three attempts with 1s base delay.
func DefaultPolicy() Policy {
	return Policy{
		Ceiling:   3,
		BaseDelay: time.Second,
	}
}

// Backoff returns the wait that follows attempt n.
func (p Policy) Backoff(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 30 {
		n = 30
	}
	delay := p.BaseDelay * time.Duration(1<<uint(n))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Exhausted reports whether count has reached the ceiling.
func (p Policy) Exhausted(count int) bool {
	return count >= p.Ceiling
}

// Execute calls fn up to Ceiling times, numbering attempts from 1 and
// sleeping Backoff(attempt) after each failure except the last.
func (p Policy) Execute(ctx context.Context, sleep SleepFunc, fn func(ctx context.Context, attempt int) error) error {
	if sleep == nil {
		sleep = Sleep
	}
	ceiling := p.Ceiling
	if ceiling < 1 {
		ceiling = 1
	}

	var lastErr error
	for attempt := 1; attempt <= ceiling; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == ceiling {
			break
		}

		if err := sleep(ctx, p.Backoff(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", ceiling, lastErr)
}

// Sleep waits on a timer and honours ctx cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
