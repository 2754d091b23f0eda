package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	SetActiveLeases("switch-core-1", 2)
	CacheHitsTotal.Add(0)
	RecordJobTerminal("COMPLETE", 3*time.Second)
	QueueDepth.Set(5)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`tom_active_leases{device_key="switch-core-1"} 2`,
		`tom_queue_depth 5`,
		`tom_job_duration_seconds_count{status="COMPLETE"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing metric line %q in body:\n%s", want, body)
		}
	}

	ct := rec.Header().Get("Content-Type")
	if !strings.Contains(ct, "text/plain") {
		t.Errorf("expected text/plain content-type, got %s", ct)
	}
}

func TestCacheCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(CacheMissesTotal)
	CacheMissesTotal.Inc()
	after := testutil.ToFloat64(CacheMissesTotal)
	if after != before+1 {
		t.Fatalf("expected counter to increment by 1, got %v -> %v", before, after)
	}
}
