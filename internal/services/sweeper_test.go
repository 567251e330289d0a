package services

import (
	"context"
	"testing"
	"time"

	"transitpay/internal/cache"
)

type recordingReconciler struct {
	olderThan time.Duration
	limit     int
	calls     int
}

func (r *recordingReconciler) ReconcileStale(_ context.Context, olderThan time.Duration, limit int) (int, error) {
	r.calls++
	r.olderThan = olderThan
	r.limit = limit
	return 0, nil
}

func TestSweeperRunOncePollsAndPrunes(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	cd := cache.NewMemoryCooldown()
	cd.Allow("stk_query:old", now.Add(-10*time.Minute), 5*time.Second)
	cd.Allow("stk_query:live", now, 65*time.Second)

	rec := &recordingReconciler{}
	s := Sweeper{Engine: rec, Cooldown: cd, MinAge: 3 * time.Minute, Batch: 25, Now: func() time.Time { return now }}
	s.RunOnce(context.Background())

	if rec.calls != 1 || rec.olderThan != 3*time.Minute || rec.limit != 25 {
		t.Fatalf("reconciler got %+v", rec)
	}
	if cd.Len() != 1 {
		t.Fatalf("expired cooldowns should be pruned, len=%d", cd.Len())
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Sweeper{Engine: &recordingReconciler{}, Interval: time.Hour}.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop")
	}
}
