package maintenance

import (
	"context"
	"time"

	"session-auth/internal/observability"
)

// Sweeper purges expired refresh tokens on a fixed interval for deployments
// without an external scheduler.
type Sweeper struct {
	purger   Purger
	interval time.Duration
	logger   *observability.Logger
	metrics  *observability.Metrics
}

func NewSweeper(purger Purger, interval time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{purger: purger, interval: interval, logger: logger, metrics: metrics}
}

func (s *Sweeper) Enabled() bool {
	return s != nil && s.interval > 0
}

// Run blocks until ctx is cancelled. A failed pass is logged and the next
// tick tries again.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper_started", map[string]any{"interval": s.interval.String()})
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper_stopped", nil)
			return
		case <-ticker.C:
			_, _ = purge(ctx, s.purger, s.logger, s.metrics, "sweeper")
		}
	}
}
