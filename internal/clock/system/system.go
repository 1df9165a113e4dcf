// Package system provides the wall clock the crawler runs on.
package system

import (
	"context"
	"fmt"
	"time"
)

// Clock implements crawler.Clock and crawler.Pauser with the real time.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Pause blocks for delay or until ctx ends.
func (Clock) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
