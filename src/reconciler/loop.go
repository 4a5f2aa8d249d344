package reconciler

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
)

// Run drives periodic reconciliation until ctx is canceled. Cycles fire on
// the configured interval and additionally whenever the nudge channel
// signals (stream activity); a nudge that arrives mid-cycle is coalesced
// into a single follow-up run. Cycle errors are logged, never fatal.
func (e *Engine) Run(ctx context.Context, nudges <-chan struct{}) {
	interval := GetConfig().PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.WithField("interval", interval).Info("reconciliation loop started")

	// Initial catch-up pass before the first tick.
	e.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("reconciliation loop stopped")
			return
		case <-ticker.C:
			e.runOnce(ctx)
		case <-nudges:
			e.runOnce(ctx)
		}
	}
}

func (e *Engine) runOnce(ctx context.Context) {
	if err := e.RunCycle(ctx); err != nil {
		if errors.Is(err, ErrCycleInFlight) || errors.Is(err, context.Canceled) {
			return
		}
		logger.WithError(err).Warn("reconciliation cycle failed")
	}
}
