package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryCooldownAllowWindow(t *testing.T) {
	c := NewMemoryCooldown()
	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	if !c.Allow("ws_CO_1", t0, 5*time.Second) {
		t.Fatalf("first call should pass")
	}
	if c.Allow("ws_CO_1", t0.Add(4*time.Second), 5*time.Second) {
		t.Fatalf("call inside window should be blocked")
	}
	if !c.Allow("ws_CO_2", t0.Add(time.Second), 5*time.Second) {
		t.Fatalf("other keys are independent")
	}
	if !c.Allow("ws_CO_1", t0.Add(5*time.Second), 5*time.Second) {
		t.Fatalf("call at window end should pass")
	}
}

func TestMemoryCooldownExtendOnlyMovesForward(t *testing.T) {
	c := NewMemoryCooldown()
	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	c.Allow("k", t0, 5*time.Second)
	c.Extend("k", t0.Add(65*time.Second))
	c.Extend("k", t0.Add(10*time.Second))

	next, ok := c.NextAllowed("k")
	if !ok || !next.Equal(t0.Add(65*time.Second)) {
		t.Fatalf("next allowed = %v ok=%v", next, ok)
	}
	if c.Allow("k", t0.Add(30*time.Second), 5*time.Second) {
		t.Fatalf("extended window should block")
	}
}

func TestMemoryCooldownConcurrentAllowSingleWinner(t *testing.T) {
	c := NewMemoryCooldown()
	now := time.Now()

	var passed int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Allow("same", now, time.Minute) {
				atomic.AddInt32(&passed, 1)
			}
		}()
	}
	wg.Wait()

	if passed != 1 {
		t.Fatalf("expected exactly one caller through, got %d", passed)
	}
}

func TestMemoryCooldownPruneAndReset(t *testing.T) {
	c := NewMemoryCooldown()
	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	c.Allow("old", t0, time.Second)
	c.Allow("new", t0, time.Hour)
	if n := c.Prune(t0.Add(time.Minute)); n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d", c.Len())
	}
	c.Reset("new")
	if _, ok := c.NextAllowed("new"); ok {
		t.Fatalf("reset key should be gone")
	}
}
