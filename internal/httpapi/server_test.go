package httpapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/tomnet/tom/internal/cache"
	"github.com/tomnet/tom/internal/config"
	"github.com/tomnet/tom/internal/credential/file"
	"github.com/tomnet/tom/internal/gate"
	"github.com/tomnet/tom/internal/inventory/yamlfile"
	"github.com/tomnet/tom/internal/queue"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	invPath := filepath.Join(dir, "inventory.yaml")
	invYAML := `
devices:
  switch-core-1:
    host: 10.0.0.1
    port: 22
    adapter: A
    adapter_driver: ios
    credential_id: default
  switch-edge-1:
    host: 10.0.0.2
    port: 22
    adapter: A
    adapter_driver: junos
    credential_id: default
named_filters:
  ios_only:
    adapter_driver: ios
`
	if err := os.WriteFile(invPath, []byte(invYAML), 0o600); err != nil {
		t.Fatalf("write inventory fixture: %v", err)
	}
	inv, err := yamlfile.Load(invPath)
	if err != nil {
		t.Fatalf("yamlfile.Load: %v", err)
	}

	credPath := filepath.Join(dir, "credentials.yaml")
	credYAML := `
credentials:
  default:
    username: admin
    password: secret
`
	if err := os.WriteFile(credPath, []byte(credYAML), 0o600); err != nil {
		t.Fatalf("write credential fixture: %v", err)
	}
	creds, err := file.Load(credPath)
	if err != nil {
		t.Fatalf("file.Load: %v", err)
	}

	q, err := queue.NewStore(filepath.Join(dir, "queue.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	g, err := gate.New(filepath.Join(dir, "gate.db"), 0)
	if err != nil {
		t.Fatalf("gate.New: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })

	c, err := cache.New(filepath.Join(dir, "cache.db"), "cache:")
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	return New(Deps{
		Config:     config.DefaultController(),
		Logger:     zap.NewNop(),
		Queue:      q,
		Gate:       g,
		Cache:      c,
		Inventory:  inv,
		Credential: creds,
	})
}

func TestSendCommandAsyncReturnsQueuedJob(t *testing.T) {
	s := newTestServer(t)
	body := `{"command":"show version"}`
	req := httptest.NewRequest(http.MethodPost, "/api/device/switch-core-1/send_command", strings.NewReader(body))
	req.SetPathValue("name", "switch-core-1")
	rec := httptest.NewRecorder()
	s.handleSendCommand(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSendCommandUnknownDeviceIsNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/device/ghost/send_command", strings.NewReader(`{"command":"show version"}`))
	req.SetPathValue("name", "ghost")
	rec := httptest.NewRecorder()
	s.handleSendCommand(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSendCommandRejectsEmptyCommandList(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/device/switch-core-1/send_command", strings.NewReader(`{}`))
	req.SetPathValue("name", "switch-core-1")
	rec := httptest.NewRecorder()
	s.handleSendCommand(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSendCommandRejectsMismatchedCredentials(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/device/switch-core-1/send_command", strings.NewReader(`{"command":"show version","username":"admin"}`))
	req.SetPathValue("name", "switch-core-1")
	rec := httptest.NewRecorder()
	s.handleSendCommand(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/job/does-not-exist", nil)
	req.SetPathValue("id", "does-not-exist")
	rec := httptest.NewRecorder()
	s.handleGetJob(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetJobReturnsQueuedSnapshot(t *testing.T) {
	s := newTestServer(t)
	jobID, err := s.queue.Enqueue(queue.Payload{Host: "10.0.0.1", Commands: []string{"show version"}}, queue.Metadata{Commands: []string{"show version"}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/job/"+jobID, nil)
	req.SetPathValue("id", jobID)
	rec := httptest.NewRecorder()
	s.handleGetJob(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCacheInspectAllEmpty(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/cache", nil)
	rec := httptest.NewRecorder()
	s.handleCacheInspectAll(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListCredentialsNamesOnly(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/credentials", nil)
	rec := httptest.NewRecorder()
	s.handleListCredentials(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("credential listing leaked a secret value: %s", rec.Body.String())
	}
}

func TestRawAdapterRejectsMissingHost(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/raw/send_via_adapter_A", strings.NewReader(`{"driver":"ios","command":"show version"}`))
	rec := httptest.NewRecorder()
	s.handleRawAdapterA(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
