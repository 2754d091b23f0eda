package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tomnet/tom/internal/cache"
	"github.com/tomnet/tom/internal/config"
	"github.com/tomnet/tom/internal/credential"
	"github.com/tomnet/tom/internal/gate"
	"github.com/tomnet/tom/internal/queue"
	"github.com/tomnet/tom/internal/tomerr"
	"github.com/tomnet/tom/internal/transport"
)

var errTransportBoom = tomerr.New(tomerr.KindTransportError, "simulated transport failure")

type fakeCredentialPlugin struct{ pair *credential.Pair }

func (f *fakeCredentialPlugin) Get(string) (*credential.Pair, error) { return f.pair, nil }
func (f *fakeCredentialPlugin) ListIDs(context.Context) ([]string, error) {
	return []string{"default"}, nil
}

type fakeSession struct {
	outputs map[string]string
	sendErr error
	closed  bool
}

func (s *fakeSession) Send(_ context.Context, command string, _ time.Duration) (string, error) {
	if s.sendErr != nil {
		return "", s.sendErr
	}
	return s.outputs[command], nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeAdapter struct {
	session *fakeSession
	openErr error
	opened  bool
}

func (a *fakeAdapter) Open(context.Context, string, int, string, map[string]string, *credential.Pair) (transport.Session, error) {
	a.opened = true
	if a.openErr != nil {
		return nil, a.openErr
	}
	return a.session, nil
}

func newTestWorker(t *testing.T, adapter transport.Adapter) (*Worker, *queue.Store, *cache.Cache) {
	t.Helper()
	dir := t.TempDir()

	q, err := queue.NewStore(filepath.Join(dir, "queue.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	g, err := gate.New(filepath.Join(dir, "gate.db"), 5*time.Minute)
	if err != nil {
		t.Fatalf("gate.New: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })

	c, err := cache.New(filepath.Join(dir, "cache.db"), "cache:")
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	w := New(Deps{
		Config:     config.DefaultWorker(),
		Logger:     zap.NewNop(),
		Queue:      q,
		Gate:       g,
		Cache:      c,
		Credential: &fakeCredentialPlugin{pair: &credential.Pair{Username: "admin", Password: "secret"}},
		Adapters:   map[string]transport.Adapter{"A": adapter},
	})
	return w, q, c
}

func enqueueTestJob(t *testing.T, q *queue.Store, useCache bool) string {
	t.Helper()
	id, err := q.Enqueue(
		queue.Payload{
			Host:          "10.0.0.1",
			Port:          22,
			Adapter:       "A",
			AdapterDriver: "ios",
			Commands:      []string{"show version"},
			CredentialRef: "default",
			TimeoutS:      5,
		},
		queue.Metadata{
			DevicePlatform:  "ios",
			Commands:        []string{"show version"},
			CacheUseCache:   useCache,
			CacheTTLSeconds: 300,
		},
	)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return id
}

func TestProcessJobExecutesOnMissAndCaches(t *testing.T) {
	adapter := &fakeAdapter{session: &fakeSession{outputs: map[string]string{"show version": "Cisco IOS\n"}}}
	w, q, c := newTestWorker(t, adapter)
	jobID := enqueueTestJob(t, q, true)

	job, err := q.Fetch(context.Background(), "test-worker", time.Second)
	if err != nil || job == nil {
		t.Fatalf("Fetch: %v, job=%v", err, job)
	}
	w.processJob(job)

	done, err := q.Poll(jobID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if done.Status != queue.StatusComplete {
		t.Fatalf("expected COMPLETE, got %s (%v)", done.Status, done.Error)
	}
	if got := done.Result.Data["show version"]; got != "Cisco IOS\n" {
		t.Fatalf("unexpected output: %q", got)
	}
	if !adapter.opened {
		t.Fatal("expected adapter.Open to be called on a cache miss")
	}

	entries, err := c.ListDevice("10.0.0.1")
	if err != nil {
		t.Fatalf("ListDevice: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 cache entry after execution, got %d", len(entries))
	}
}

func TestProcessJobSkipsDeviceOnCacheHit(t *testing.T) {
	adapter := &fakeAdapter{session: &fakeSession{outputs: map[string]string{"show version": "should not be used"}}}
	w, q, c := newTestWorker(t, adapter)
	if err := c.Put("10.0.0.1", "show version", "cached output\n", 300); err != nil {
		t.Fatalf("Put: %v", err)
	}
	jobID := enqueueTestJob(t, q, true)

	job, err := q.Fetch(context.Background(), "test-worker", time.Second)
	if err != nil || job == nil {
		t.Fatalf("Fetch: %v, job=%v", err, job)
	}
	w.processJob(job)

	done, err := q.Poll(jobID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if done.Status != queue.StatusComplete {
		t.Fatalf("expected COMPLETE, got %s", done.Status)
	}
	if got := done.Result.Data["show version"]; got != "cached output\n" {
		t.Fatalf("unexpected output: %q", got)
	}
	if adapter.opened {
		t.Fatal("adapter.Open must not be called when every command is a cache hit")
	}
}

func TestProcessJobTransportFailureMarksJobFailed(t *testing.T) {
	adapter := &fakeAdapter{session: &fakeSession{sendErr: errTransportBoom}}
	w, q, _ := newTestWorker(t, adapter)
	jobID := enqueueTestJob(t, q, true)

	job, err := q.Fetch(context.Background(), "test-worker", time.Second)
	if err != nil || job == nil {
		t.Fatalf("Fetch: %v, job=%v", err, job)
	}
	w.processJob(job)

	done, err := q.Poll(jobID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if done.Status != queue.StatusFailed {
		t.Fatalf("expected FAILED, got %s", done.Status)
	}
	if done.Error == nil || done.Error.Kind != "TRANSPORT_ERROR" {
		t.Fatalf("expected TRANSPORT_ERROR, got %v", done.Error)
	}
}

func TestResolveCredentialPrefersInline(t *testing.T) {
	w, _, _ := newTestWorker(t, &fakeAdapter{session: &fakeSession{}})
	pair, err := w.resolveCredential(queue.Payload{InlineUsername: "raw", InlinePassword: "pw"})
	if err != nil {
		t.Fatalf("resolveCredential: %v", err)
	}
	if pair.Username != "raw" || pair.Password != "pw" {
		t.Fatalf("expected inline credential to win, got %+v", pair)
	}
}
