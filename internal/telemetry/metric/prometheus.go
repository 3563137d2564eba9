package metric

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "authcore"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsCreated   prometheus.Counter
	SessionsRefreshed prometheus.Counter
	SessionsRevoked   prometheus.Counter
	TokenTheft        prometheus.Counter

	// Key metrics
	SigningKeysGenerated *prometheus.CounterVec

	// Cron metrics
	CronRuns *prometheus.CounterVec
}

// NewRegistry creates a registry with process and Go runtime collectors
// plus the application metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint, method and status.",
		}, []string{"endpoint", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "method"}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created.",
		}),
		SessionsRefreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_refreshed_total",
			Help:      "Successful refresh token rotations.",
		}),
		SessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_revoked_total",
			Help:      "Sessions revoked explicitly.",
		}),
		TokenTheft: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "token_theft_detected_total",
			Help:      "Refresh attempts with a token that is neither current nor parent.",
		}),
		SigningKeysGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "signing_keys_generated_total",
			Help:      "Signing keys generated, by kind.",
		}, []string{"kind"}),
		CronRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cron_runs_total",
			Help:      "Scheduled task runs by task and result.",
		}, []string{"task", "result"}),
	}

	reg.MustRegister(
		r.RequestsTotal,
		r.RequestDuration,
		r.SessionsCreated,
		r.SessionsRefreshed,
		r.SessionsRevoked,
		r.TokenTheft,
		r.SigningKeysGenerated,
		r.CronRuns,
	)
	return r
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry, creating it on first use.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// Handler returns an HTTP handler exposing r in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Register adds collectors owned by other components, such as the storage
// engine gauges.
func (r *Registry) Register(cs ...prometheus.Collector) error {
	if r == nil {
		return nil
	}
	for _, c := range cs {
		if err := r.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveRequest records one finished HTTP request.
func (r *Registry) ObserveRequest(endpoint, method string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	r.RequestDuration.WithLabelValues(endpoint, method).Observe(d.Seconds())
}

// SessionCreated counts a new session.
func (r *Registry) SessionCreated() {
	if r == nil {
		return
	}
	r.SessionsCreated.Inc()
}

// SessionRefreshed counts a refresh token rotation.
func (r *Registry) SessionRefreshed() {
	if r == nil {
		return
	}
	r.SessionsRefreshed.Inc()
}

// SessionsRevokedAdd counts n revoked sessions.
func (r *Registry) SessionsRevokedAdd(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.SessionsRevoked.Add(float64(n))
}

// TokenTheftDetected counts a refresh token reuse outside the retry window.
func (r *Registry) TokenTheftDetected() {
	if r == nil {
		return
	}
	r.TokenTheft.Inc()
}

// SigningKeyGenerated counts a generated key of the given kind.
func (r *Registry) SigningKeyGenerated(kind string) {
	if r == nil {
		return
	}
	r.SigningKeysGenerated.WithLabelValues(kind).Inc()
}

// CronRun counts one task run. result is "ok", "error" or "skipped".
func (r *Registry) CronRun(task, result string) {
	if r == nil {
		return
	}
	r.CronRuns.WithLabelValues(task, result).Inc()
}
