// Package sweeper runs the overdue sweep on a fixed interval.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper is the operation run on each tick.
type Sweeper interface {
	SweepOverdue(ctx context.Context) (int, error)
}

// Runner calls a Sweeper periodically until its context is cancelled.
type Runner struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger
}

// New returns a Runner. A nil logger discards output.
func New(s Sweeper, interval time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{sweeper: s, interval: interval, logger: logger}
}

// Run sweeps once immediately and then on every tick. It returns when ctx
// is done. A non-positive interval disables the loop.
func (r *Runner) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.InfoContext(ctx, "overdue sweeper disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) sweepOnce(ctx context.Context) {
	n, err := r.sweeper.SweepOverdue(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.ErrorContext(ctx, "overdue sweep failed", "transitioned", n, "error", err)
		return
	}
	r.logger.DebugContext(ctx, "overdue sweep ran", "transitioned", n)
}
