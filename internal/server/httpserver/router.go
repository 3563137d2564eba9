package httpserver

import (
	"net/http"

	"github.com/yndnr/authcore-go/internal/server/httpserver/handler"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
	"github.com/yndnr/authcore-go/internal/telemetry/metric"
)

// TenantSegment is the mux pattern segment that carries a tenant id.
const TenantSegment = "/{tenant}"

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Handler serves the recipe, hello and health endpoints.
	Handler *handler.Handler

	// Metrics is exposed at /metrics and records every request. Optional.
	Metrics *metric.Registry

	Logger logger.Logger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	mux := http.NewServeMux()
	base := cfg.Handler.BasePath()
	for _, rt := range cfg.Handler.Routes() {
		h := Instrument(cfg.Metrics, rt.Path)(rt.Handler)
		mux.Handle(base+rt.Path, h)
		if rt.Tenanted {
			mux.Handle(base+TenantSegment+rt.Path, h)
		}
	}

	if cfg.Metrics != nil {
		metrics := cfg.Metrics.Handler()
		mux.Handle(handler.PathMetrics, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				w.Header().Set("Content-Type", handler.ContentTypeText)
				w.WriteHeader(http.StatusMethodNotAllowed)
				_, _ = w.Write([]byte("Method not supported"))
				return
			}
			metrics.ServeHTTP(w, r)
		}))
	}

	return Chain(mux, RequestID(log), Recover(log))
}
