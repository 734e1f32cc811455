package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingCounter struct{}

func (failingCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func newLimiterForTest(times int, now *time.Time) *Limiter {
	counter := &memoryCounter{entries: map[string]*memoryEntry{}, now: func() time.Time { return *now }}
	limiter := NewLimiter(counter, times, time.Minute)
	limiter.now = func() time.Time { return *now }
	return limiter
}

func TestThatRequestsAboveTheLimitAreRejected(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 10, 0, time.UTC)
	limiter := newLimiterForTest(2, &now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := limiter.Allow(ctx, "alice"); !ok {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}

	if ok, _ := limiter.Allow(ctx, "alice"); ok {
		t.Error("Third request within the window should be rejected")
	}

	if ok, _ := limiter.Allow(ctx, "bob"); !ok {
		t.Error("Another identity should have its own budget")
	}
}

func TestThatANewWindowResetsTheBudget(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 50, 0, time.UTC)
	limiter := newLimiterForTest(1, &now)
	ctx := context.Background()

	limiter.Allow(ctx, "alice")
	if ok, _ := limiter.Allow(ctx, "alice"); ok {
		t.Fatal("Second request should be rejected")
	}

	now = now.Add(15 * time.Second)
	if ok, _ := limiter.Allow(ctx, "alice"); !ok {
		t.Error("Request in the next window should be allowed")
	}
}

func TestThatCounterErrorsArePropagated(t *testing.T) {
	limiter := NewLimiter(failingCounter{}, 10, time.Minute)

	if _, err := limiter.Allow(context.Background(), "alice"); err == nil {
		t.Error("Expected the counter error to be returned")
	}
}

func TestThatExpiredCountersArePurged(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	counter := &memoryCounter{entries: map[string]*memoryEntry{}, now: func() time.Time { return now }}
	ctx := context.Background()

	counter.Incr(ctx, "a", time.Second)
	now = now.Add(2 * time.Second)
	counter.Incr(ctx, "b", time.Second)

	if len(counter.entries) != 1 {
		t.Errorf("Expected the expired counter to be purged, %d remain", len(counter.entries))
	}
}
