// Package scheduler provides the timer primitives the sniper engine paces itself with,
// plus a periodic ticker for housekeeping jobs.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop cancels the callback, reporting whether it was still pending.
	Stop() bool
}

// Clock schedules callbacks. Implementations run f on their own goroutine or, for Manual,
// on the goroutine that advances time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the wall clock.
type Real struct{}

// Now returns the current UTC time.
func (Real) Now() time.Time { return time.Now().UTC() }

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

var _ Clock = Real{}

// TickFunc is invoked on every tick.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune a Ticker.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
}

// Ticker runs a job at a fixed interval until its context is cancelled.
type Ticker struct {
	opts   Options
	logger zerolog.Logger
}

// NewTicker constructs a Ticker. The interval must be positive.
func NewTicker(opts Options, logger zerolog.Logger) *Ticker {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Ticker{opts: opts, logger: logger.With().Str("component", "ticker").Logger()}
}

// Run blocks, invoking tick every interval until ctx is cancelled. Tick errors are logged.
func (t *Ticker) Run(ctx context.Context, tick TickFunc) error {
	if t.opts.StartupDelay > 0 {
		if err := sleep(ctx, t.opts.StartupDelay); err != nil {
			return err
		}
	}

	next := t.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = t.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}

		if err := tick(ctx, next); err != nil {
			t.logger.Error().Err(err).Time("tick", next).Msg("tick failed")
		}
		next = next.Add(t.opts.Interval)
	}
}

func (t *Ticker) nextTick(now time.Time) time.Time {
	if !t.opts.AlignToStart {
		return now.Add(t.opts.Interval)
	}
	at := now.Truncate(t.opts.Interval)
	if !at.After(now) {
		at = at.Add(t.opts.Interval)
	}
	return at
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
