package util

import (
	"context"
	"time"
)

// Clock abstracts wall time so schedulers can be driven by tests.
type Clock interface {
	Now() time.Time
	// WaitUntil blocks until t or until ctx is done.
	WaitUntil(ctx context.Context, t time.Time) error
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

func (SystemClock) WaitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FixedClock always reports the same instant and never waits.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

func (c FixedClock) WaitUntil(ctx context.Context, _ time.Time) error {
	return ctx.Err()
}
