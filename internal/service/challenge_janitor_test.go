package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestChallengeJanitorSweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryChallengeStore()

	old := sampleChallenge("old", clock.Now().Add(-20*time.Minute))
	recent := sampleChallenge("recent", clock.Now().Add(-5*time.Minute))
	live := sampleChallenge("live", clock.Now().Add(5*time.Minute))
	if err := store.Put(ctx, old); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, recent); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, live); err != nil {
		t.Fatalf("put: %v", err)
	}

	j := NewChallengeJanitor(zap.NewNop(), store, time.Minute, 10*time.Minute)
	j.now = clock.Now

	n, err := j.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one purged challenge, got %d", n)
	}
	if _, err := store.Get(ctx, "recent"); err != nil {
		t.Fatalf("expected recently expired challenge to be retained: %v", err)
	}
	if _, err := store.Get(ctx, "live"); err != nil {
		t.Fatalf("expected live challenge to be retained: %v", err)
	}
}

func TestChallengeJanitorRunStopsOnCancel(t *testing.T) {
	j := NewChallengeJanitor(zap.NewNop(), NewMemoryChallengeStore(), 10*time.Millisecond, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("janitor did not stop after cancel")
	}
}
