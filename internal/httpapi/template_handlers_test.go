package httpapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomnet/tom/internal/parser"
)

func newServerWithTemplateIndex(t *testing.T) *Server {
	t.Helper()
	s := newTestServer(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "show-version.template"), []byte("Value NAME (\\S+)\n"), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	csvPath := filepath.Join(dir, "index.csv")
	if err := os.WriteFile(csvPath, []byte("Template,Hostname,Platform,Command\nshow-version.template,.*,ios,show version\n"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	idx, err := parser.LoadIndex(csvPath, dir, parser.SourceCustom)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	s.customIndex = idx
	return s
}

func TestParseTestResolvesExplicitTemplateFilename(t *testing.T) {
	s := newServerWithTemplateIndex(t)
	body := `{"raw_output":"device-a\n","template":"show-version.template"}`
	req := httptest.NewRequest(http.MethodPost, "/api/parse/test", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleParseTest(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "device-a") {
		t.Fatalf("expected parsed NAME field in body, got %s", rec.Body.String())
	}
}

func TestParseTestUnknownTemplateFilenameIsNotFound(t *testing.T) {
	s := newServerWithTemplateIndex(t)
	body := `{"raw_output":"device-a\n","template":"does-not-exist.template"}`
	req := httptest.NewRequest(http.MethodPost, "/api/parse/test", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleParseTest(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 TEMPLATE_NOT_FOUND, got %d: %s", rec.Code, rec.Body.String())
	}
}
