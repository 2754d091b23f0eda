package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testPayload() Payload {
	return Payload{
		Host:             "rtr1",
		Port:             22,
		Adapter:          "A",
		AdapterDriver:    "cisco_ios",
		Commands:         []string{"show version"},
		CredentialRef:    "default",
		RetriesRemaining: 2,
		TimeoutS:         30,
	}
}

func TestEnqueueFetchComplete(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Enqueue(testPayload(), Metadata{DevicePlatform: "cisco_ios", Commands: []string{"show version"}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, err := store.Poll(id)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if job.Status != StatusQueued {
		t.Fatalf("expected QUEUED, got %s", job.Status)
	}

	ctx := context.Background()
	fetched, err := store.Fetch(ctx, "worker-1", time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fetched == nil || fetched.ID != id {
		t.Fatalf("expected to fetch job %s, got %+v", id, fetched)
	}
	if fetched.Status != StatusActive {
		t.Fatalf("expected ACTIVE after fetch, got %s", fetched.Status)
	}

	result := Result{Data: map[string]string{"show version": "IOS 15.1"}, Meta: map[string]CacheMeta{}}
	if err := store.Complete(id, result); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	job, err = store.Poll(id)
	if err != nil {
		t.Fatalf("Poll after complete: %v", err)
	}
	if job.Status != StatusComplete {
		t.Fatalf("expected COMPLETE, got %s", job.Status)
	}
	if job.Result == nil || job.Result.Data["show version"] != "IOS 15.1" {
		t.Fatalf("unexpected result: %+v", job.Result)
	}

	// Idempotence: a second Complete is a no-op.
	if err := store.Complete(id, Result{Data: map[string]string{"show version": "DIFFERENT"}}); err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	job, _ = store.Poll(id)
	if job.Result.Data["show version"] != "IOS 15.1" {
		t.Fatalf("result changed after second Complete: %+v", job.Result)
	}
}

func TestFetchReturnsNilOnTimeoutWhenQueueEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := time.Now()
	job, err := store.Fetch(ctx, "worker-1", 150*time.Millisecond)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no job, got %+v", job)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Fatalf("Fetch returned too early: %v", time.Since(start))
	}
}

func TestFailTransientRetriesThenGoesFailed(t *testing.T) {
	store := newTestStore(t)
	payload := testPayload()
	payload.RetriesRemaining = 1

	id, err := store.Enqueue(payload, Metadata{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Fetch(ctx, "worker-1", time.Second); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if err := store.Fail(id, JobError{Kind: "TRANSPORT_ERROR", Message: "reset"}, RetryTransient); err != nil {
		t.Fatalf("Fail (transient, retries remaining): %v", err)
	}
	job, _ := store.Poll(id)
	if job.Status != StatusQueued {
		t.Fatalf("expected re-queued, got %s", job.Status)
	}
	if job.Payload.RetriesRemaining != 0 {
		t.Fatalf("expected retries_remaining=0, got %d", job.Payload.RetriesRemaining)
	}

	if _, err := store.Fetch(ctx, "worker-1", time.Second); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if err := store.Fail(id, JobError{Kind: "TRANSPORT_ERROR", Message: "reset again"}, RetryTransient); err != nil {
		t.Fatalf("Fail (transient, zero retries): %v", err)
	}
	job, _ = store.Poll(id)
	if job.Status != StatusFailed {
		t.Fatalf("expected FAILED when retries exhausted, got %s", job.Status)
	}
}

func TestFailFatalSkipsRetryRegardless(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Enqueue(testPayload(), Metadata{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Fetch(ctx, "worker-1", time.Second); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if err := store.Fail(id, JobError{Kind: "AUTH_FAILURE", Message: "denied"}, RetryFatal); err != nil {
		t.Fatalf("Fail (fatal): %v", err)
	}
	job, _ := store.Poll(id)
	if job.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", job.Status)
	}
}

func TestWaitReturnsNonTerminalOnDeadlineWithoutAborting(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Enqueue(testPayload(), Metadata{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, err := store.Wait(context.Background(), id, time.Now().Add(100*time.Millisecond))
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if job.Status != StatusQueued {
		t.Fatalf("expected job to remain QUEUED after deadline, got %s", job.Status)
	}

	// A later poll can still observe the job; it was never cancelled.
	job, err = store.Poll(id)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if job.Status != StatusQueued {
		t.Fatalf("expected QUEUED on later poll, got %s", job.Status)
	}
}

func TestAbortQueuedJobIsRejected(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Enqueue(testPayload(), Metadata{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	// QUEUED is not ACTIVE/FAILED, so abort is rejected.
	if err := store.Abort(id); err == nil {
		t.Fatalf("expected error aborting a QUEUED job")
	}
}
