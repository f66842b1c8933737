package controller

import (
	"context"
	"time"

	"k8s.io/utils/clock"
)

// Schedule decides when the next reconcile tick runs and when the loop ends.
type Schedule interface {
	// Wait blocks until the next tick is due and reports whether it should run.
	Wait(ctx context.Context) bool
}

type forever struct {
	interval time.Duration
	clock    clock.Clock
}

// Forever sleeps for interval between ticks and only stops when ctx is done.
func Forever(interval time.Duration, c clock.Clock) Schedule {
	if c == nil {
		c = clock.RealClock{}
	}
	return &forever{interval: interval, clock: c}
}

func (f *forever) Wait(ctx context.Context) bool {
	t := f.clock.NewTimer(f.interval)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C():
		return true
	}
}

type countdown struct {
	remaining int
}

// Countdown runs exactly ticks ticks back to back, then stops.
func Countdown(ticks int) Schedule {
	return &countdown{remaining: ticks}
}

func (c *countdown) Wait(ctx context.Context) bool {
	c.remaining--
	return c.remaining > 0 && ctx.Err() == nil
}

// Remaining reports how many ticks are left.
func (c *countdown) Remaining() int {
	return c.remaining
}
