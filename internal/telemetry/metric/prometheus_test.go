package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r.registry == nil {
		t.Fatal("registry field is nil")
	}
	if r.RequestsTotal == nil || r.RequestDuration == nil {
		t.Error("request metrics are nil")
	}
	if r.SessionsCreated == nil || r.SigningKeysGenerated == nil || r.CronRuns == nil {
		t.Error("domain metrics are nil")
	}
}

func TestGlobal(t *testing.T) {
	if Global() != Global() {
		t.Error("Global() should return the same instance")
	}
}

func TestHandler_RuntimeMetrics(t *testing.T) {
	body := scrape(t, Handler())

	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected go_goroutines metric")
	}
}

func TestRecordingHelpers(t *testing.T) {
	r := NewRegistry()

	r.SessionCreated()
	r.SessionCreated()
	r.SessionRefreshed()
	r.SessionsRevokedAdd(3)
	r.SessionsRevokedAdd(0)
	r.TokenTheftDetected()
	r.SigningKeyGenerated("dynamic")
	r.CronRun("telemetry", "skipped")
	r.ObserveRequest("/recipe/session", http.MethodPost, 200, 5*time.Millisecond)

	body := scrape(t, r.Handler())
	for _, want := range []string{
		"authcore_sessions_created_total 2",
		"authcore_sessions_refreshed_total 1",
		"authcore_sessions_revoked_total 3",
		"authcore_token_theft_detected_total 1",
		`authcore_signing_keys_generated_total{kind="dynamic"} 1`,
		`authcore_cron_runs_total{result="skipped",task="telemetry"} 1`,
		`authcore_http_requests_total{endpoint="/recipe/session",method="POST",status="200"} 1`,
		`authcore_http_request_duration_seconds_count{endpoint="/recipe/session",method="POST"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilRegistry(t *testing.T) {
	var r *Registry

	// Must not panic.
	r.SessionCreated()
	r.SessionRefreshed()
	r.SessionsRevokedAdd(1)
	r.TokenTheftDetected()
	r.SigningKeyGenerated("static")
	r.CronRun("sweep", "ok")
	r.ObserveRequest("/hello", http.MethodGet, 200, time.Millisecond)
	if err := r.Register(NewCollector(nil, nil)); err != nil {
		t.Errorf("Register() on nil registry error = %v", err)
	}
}

func TestCollector(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewCollector(func() int { return 4 }, func() int { return 9 })); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	body := scrape(t, r.Handler())
	if !strings.Contains(body, "authcore_tenants_configured 4") {
		t.Error("expected authcore_tenants_configured 4")
	}
	if !strings.Contains(body, "authcore_tenant_resources 9") {
		t.Error("expected authcore_tenant_resources 9")
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.SessionCreated()
				r.ObserveRequest("/recipe/session/verify", http.MethodPost, 200, time.Microsecond)
			}
		}()
	}
	wg.Wait()

	if body := scrape(t, r.Handler()); !strings.Contains(body, "authcore_sessions_created_total 1000") {
		t.Error("expected authcore_sessions_created_total 1000")
	}
}
