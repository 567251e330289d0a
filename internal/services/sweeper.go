package services

import (
	"context"
	"time"

	"transitpay/internal/cache"
	"transitpay/internal/utils"

	"go.uber.org/zap"
)

type StaleReconciler interface {
	ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// Sweeper periodically reconciles payments whose clients stopped polling
// and drops expired cooldown entries.
type Sweeper struct {
	Engine   StaleReconciler
	Cooldown cache.CooldownStore
	Interval time.Duration
	MinAge   time.Duration
	Batch    int
	Now      func() time.Time
}

// Run blocks until ctx is cancelled.
func (s Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	utils.LogEvent("", "sweeper", "start", "stale payment sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			utils.LogEvent("", "sweeper", "stop", "stale payment sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s Sweeper) RunOnce(ctx context.Context) {
	minAge := s.MinAge
	if minAge <= 0 {
		minAge = 2 * time.Minute
	}
	n, err := s.Engine.ReconcileStale(ctx, minAge, s.Batch)
	if err != nil {
		utils.LogError("", "sweeper", "reconcile_stale", err)
	} else if n > 0 {
		utils.LogEvent("", "sweeper", "reconcile_stale", "stale payments settled", zap.Int("count", n))
	}

	if s.Cooldown != nil {
		// entries that closed a minute ago can no longer block anything
		s.Cooldown.Prune(nowOr(s.Now).Add(-time.Minute))
	}
}
