package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/authcore-go/internal/server/httpserver/handler"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
	"github.com/yndnr/authcore-go/internal/telemetry/metric"
)

func TestChain(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mw("first"), mw("second"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := "first,second,handler"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated", "", false},
		{"propagated", "req-123", true},
		{"too long", strings.Repeat("x", maxRequestIDLength+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(HeaderRequestID, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(HeaderRequestID)
			if got != seen {
				t.Errorf("header %q != context %q", got, seen)
			}
			if tt.keep {
				if got != tt.incoming {
					t.Errorf("request id = %q, want %q", got, tt.incoming)
				}
				return
			}
			if _, err := ulid.Parse(got); err != nil {
				t.Errorf("request id %q is not a ULID: %v", got, err)
			}
		})
	}
}

func TestRecover(t *testing.T) {
	h := Recover(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if got := rec.Body.String(); got != "Internal Error" {
		t.Errorf("body = %q, want Internal Error", got)
	}
	if got := rec.Header().Get("Content-Type"); got != handler.ContentTypeText {
		t.Errorf("Content-Type = %q, want %q", got, handler.ContentTypeText)
	}
}

func TestInstrument(t *testing.T) {
	reg := metric.NewRegistry()
	h := Instrument(reg, "/x")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))

	if got := testutil.ToFloat64(reg.RequestsTotal.WithLabelValues("/x", "GET", "200")); got != 2 {
		t.Errorf("GET 200 count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(reg.RequestsTotal.WithLabelValues("/x", "POST", "400")); got != 1 {
		t.Errorf("POST 400 count = %v, want 1", got)
	}

	// A nil registry leaves the handler untouched.
	inner := http.NotFoundHandler()
	if got := Instrument(nil, "/x")(inner); got == nil {
		t.Error("Instrument(nil) returned nil handler")
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec}
	if rw.Status() != http.StatusOK {
		t.Errorf("Status() = %d before write, want 200", rw.Status())
	}
	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)
	if rw.Status() != http.StatusTeapot {
		t.Errorf("Status() = %d, want %d", rw.Status(), http.StatusTeapot)
	}
	if rw.Unwrap() != rec {
		t.Error("Unwrap() did not return the underlying writer")
	}
}

func TestNewRouter(t *testing.T) {
	reg := metric.NewRegistry()
	h := handler.New(handler.Config{BasePath: "/auth", Logger: logger.Discard()})
	router := NewRouter(RouterConfig{Handler: h, Metrics: reg, Logger: logger.Discard()})

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/auth/hello", http.StatusOK},
		{http.MethodGet, "/auth/health", http.StatusOK},
		{http.MethodGet, "/hello", http.StatusNotFound},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, "/metrics", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/auth/recipe/session", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/auth/t1/recipe/session", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if rec.Header().Get(HeaderRequestID) == "" {
				t.Error("X-Request-ID not set")
			}
		})
	}

	if got := testutil.ToFloat64(reg.RequestsTotal.WithLabelValues(handler.PathHello, "GET", "200")); got != 1 {
		t.Errorf("hello request count = %v, want 1", got)
	}
}
