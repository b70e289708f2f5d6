package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterAllow_WithinLimitThenRejects(t *testing.T) {
	rl := NewMemoryLimiter(2, time.Minute)
	ctx := context.Background()
	ip := "203.0.113.10"

	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow(ctx, ip); !ok {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	if ok, _ := rl.Allow(ctx, ip); ok {
		t.Fatal("expected third request to be rejected")
	}
	if ok, _ := rl.Allow(ctx, "203.0.113.11"); !ok {
		t.Fatal("keys must be limited independently")
	}
}

func TestMemoryLimiterAllow_PrunesExpiredAttempts(t *testing.T) {
	rl := NewMemoryLimiter(1, time.Minute)
	ip := "203.0.113.20"
	rl.attempts[ip] = []time.Time{time.Now().Add(-2 * time.Minute)}

	if ok, _ := rl.Allow(context.Background(), ip); !ok {
		t.Fatal("expected request to be allowed after expired attempt is pruned")
	}
	if got := len(rl.attempts[ip]); got != 1 {
		t.Fatalf("expected one retained attempt, got %d", got)
	}
}

func TestMemoryLimiterCleanup(t *testing.T) {
	rl := NewMemoryLimiter(5, time.Minute)
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.attempts["idle"] = []time.Time{now.Add(-5 * time.Minute)}
	rl.attempts["busy"] = []time.Time{now.Add(-10 * time.Second)}

	rl.cleanup()

	if _, ok := rl.attempts["idle"]; ok {
		t.Fatal("idle key should be dropped")
	}
	if got := len(rl.attempts["busy"]); got != 1 {
		t.Fatalf("busy key attempts = %d, want 1", got)
	}
}

func TestMemoryLimiterRunStopsOnCancel(t *testing.T) {
	rl := NewMemoryLimiter(1, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewMemoryLimiterDefaults(t *testing.T) {
	rl := NewMemoryLimiter(0, 0)
	if rl.limit != defaultLimit || rl.window != defaultWindow {
		t.Fatalf("defaults = %d/%s", rl.limit, rl.window)
	}
}
