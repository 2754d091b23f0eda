package gate

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	g, err := New(filepath.Join(t.TempDir(), "gate.db"), 200*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	lease, err := g.Acquire(ctx, "rtr1", NewHolderID(), time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := g.Release(lease); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// Release on an already-released (unheld) lease is a no-op.
	if err := g.Release(lease); err != nil {
		t.Fatalf("second Release should be a no-op, got: %v", err)
	}
}

func TestSecondAcquireWaitsThenSucceedsAfterRelease(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	holderA := NewHolderID()
	leaseA, err := g.Acquire(ctx, "rtr1", holderA, time.Second)
	if err != nil {
		t.Fatalf("Acquire A: %v", err)
	}

	done := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = g.Release(leaseA)
		close(done)
	}()

	holderB := NewHolderID()
	start := time.Now()
	leaseB, err := g.Acquire(ctx, "rtr1", holderB, 2*time.Second)
	if err != nil {
		t.Fatalf("Acquire B: %v", err)
	}
	if leaseB.HolderID != holderB {
		t.Fatalf("unexpected holder: %s", leaseB.HolderID)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatalf("Acquire B returned suspiciously fast: %v", time.Since(start))
	}
	<-done
}

func TestAcquireFailsWithGatingErrorAfterMaxWait(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	holderA := NewHolderID()
	if _, err := g.Acquire(ctx, "rtr1", holderA, time.Second); err != nil {
		t.Fatalf("Acquire A: %v", err)
	}

	_, err := g.Acquire(ctx, "rtr1", NewHolderID(), 50*time.Millisecond)
	if err != ErrGating {
		t.Fatalf("expected ErrGating, got %v", err)
	}
}

func TestRenewFailsAfterReclaim(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	holderA := NewHolderID()
	lease, err := g.Acquire(ctx, "rtr1", holderA, time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	time.Sleep(250 * time.Millisecond) // outlast the 200ms TTL
	holderB := NewHolderID()
	if _, err := g.Acquire(ctx, "rtr1", holderB, time.Second); err != nil {
		t.Fatalf("Acquire B (reclaim): %v", err)
	}

	if err := g.Renew(lease); err == nil {
		t.Fatalf("expected renew to fail after reclaim")
	}
}
