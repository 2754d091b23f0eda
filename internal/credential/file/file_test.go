package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tomnet/tom/internal/tomerr"
)

const sampleCredentials = `
credentials:
  default:
    username: admin
    password: s3cret
  readonly:
    username: viewer
    password: viewonly
`

func writeCredentials(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	if err := os.WriteFile(path, []byte(sampleCredentials), 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}
	return path
}

func TestGetReturnsPair(t *testing.T) {
	p, err := Load(writeCredentials(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pair, err := p.Get("default")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if pair.Username != "admin" || pair.Password != "s3cret" {
		t.Fatalf("unexpected pair: %+v", pair)
	}
}

func TestGetUnknownIDIsNotFound(t *testing.T) {
	p, err := Load(writeCredentials(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = p.Get("missing")
	tomErr, ok := tomerr.As(err)
	if !ok || tomErr.Kind != tomerr.KindNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestListIDsReturnsNamesOnlySorted(t *testing.T) {
	p, err := Load(writeCredentials(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ids, err := p.ListIDs(context.Background())
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "default" || ids[1] != "readonly" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestListIDsRespectsCanceledContext(t *testing.T) {
	p, err := Load(writeCredentials(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.ListIDs(ctx); err == nil {
		t.Fatalf("expected error from canceled context")
	}
}
