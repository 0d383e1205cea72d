package matching

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingExpirer struct {
	mu    sync.Mutex
	calls int
	ttls  []time.Duration
	err   error
}

func (c *countingExpirer) ExpireStale(_ context.Context, _ time.Time, pendingTTL time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.ttls = append(c.ttls, pendingTTL)
	if c.err != nil {
		return 0, c.err
	}
	return 1, nil
}

func (c *countingExpirer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestSweeperRunsPeriodically(t *testing.T) {
	store := &countingExpirer{}
	sweeper := NewSweeper(store, SweeperConfig{Interval: 5 * time.Millisecond, PendingTTL: time.Minute}, nil)

	deadline := time.After(2 * time.Second)
	for store.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 sweeps, got %d", store.count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sweeper.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	for _, ttl := range store.ttls {
		if ttl != time.Minute {
			t.Fatalf("expected configured ttl, got %v", ttl)
		}
	}
}

func TestSweeperSurvivesStoreErrors(t *testing.T) {
	store := &countingExpirer{err: errors.New("connection refused")}
	sweeper := NewSweeper(store, SweeperConfig{Interval: 5 * time.Millisecond, PendingTTL: time.Minute}, nil)

	deadline := time.After(2 * time.Second)
	for store.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("sweeper stopped after an error, %d sweeps", store.count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sweeper.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSweeperShutdownIsIdempotent(t *testing.T) {
	store := &countingExpirer{}
	sweeper := NewSweeper(store, SweeperConfig{Interval: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sweeper.Shutdown(ctx); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := sweeper.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
