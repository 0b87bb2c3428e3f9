package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per interval with the scheduled tick time.
type TickFunc func(ctx context.Context, tick time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToClock bool // snap ticks to wall-clock multiples of Interval
	StartupDelay time.Duration
}

// Scheduler drives periodic execution of a single job. Tick errors are
// logged and the loop continues; only context cancellation stops it.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function once per interval until ctx is
// cancelled, then returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleepCtx(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	next := s.next(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			// Overslept past a whole tick; realign rather than burst.
			next = s.next(time.Now().UTC())
			delay = time.Until(next)
		}

		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}

		if err := tick(ctx, next); err != nil {
			s.logger.Error().Err(err).Time("tick", next).Msg("tick execution failed")
		}

		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) next(now time.Time) time.Time {
	if !s.opts.AlignToClock {
		return now.Add(s.opts.Interval)
	}
	aligned := now.Truncate(s.opts.Interval)
	if !aligned.After(now) {
		aligned = aligned.Add(s.opts.Interval)
	}
	return aligned
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
