package auth

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func newAuthedHandler(a *Authenticator) http.Handler {
	return a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestModeNoneAlwaysPasses(t *testing.T) {
	a := &Authenticator{Mode: ModeNone}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	newAuthedHandler(a).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestModeAPIKeyRejectsMissingKey(t *testing.T) {
	store, err := NewAPIKeyStore(filepath.Join(t.TempDir(), "apikeys.db"))
	if err != nil {
		t.Fatalf("NewAPIKeyStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	a := &Authenticator{Mode: ModeAPIKey, APIKeys: store}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	newAuthedHandler(a).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestModeAPIKeyAcceptsValidKey(t *testing.T) {
	store, err := NewAPIKeyStore(filepath.Join(t.TempDir(), "apikeys.db"))
	if err != nil {
		t.Fatalf("NewAPIKeyStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Register("ci", "k-12345", "ci-bot"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	a := &Authenticator{Mode: ModeAPIKey, APIKeys: store}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "k-12345")
	rec := httptest.NewRecorder()
	newAuthedHandler(a).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthDeniedDistinctFromAuthRequired(t *testing.T) {
	store, err := NewAPIKeyStore(filepath.Join(t.TempDir(), "apikeys.db"))
	if err != nil {
		t.Fatalf("NewAPIKeyStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Register("ci", "k-12345", "ci-bot"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	a := &Authenticator{
		Mode:    ModeAPIKey,
		APIKeys: store,
		Policy:  ProviderPolicy{AllowedUsers: []string{"someone-else"}},
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "k-12345")
	rec := httptest.NewRecorder()
	newAuthedHandler(a).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 AUTH_DENIED for policy mismatch, got %d", rec.Code)
	}
}

func TestHybridFallsThroughToJWTWhenAPIKeyMissing(t *testing.T) {
	store, err := NewAPIKeyStore(filepath.Join(t.TempDir(), "apikeys.db"))
	if err != nil {
		t.Fatalf("NewAPIKeyStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	a := &Authenticator{Mode: ModeHybrid, APIKeys: store, Providers: map[string]Provider{}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	newAuthedHandler(a).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after exhausting both api key and jwt, got %d", rec.Code)
	}
}
