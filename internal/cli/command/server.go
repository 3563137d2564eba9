package command

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/core/tenant"
	"github.com/yndnr/authcore-go/internal/infra/buildinfo"
	"github.com/yndnr/authcore-go/internal/infra/confloader"
	"github.com/yndnr/authcore-go/internal/infra/cron"
	"github.com/yndnr/authcore-go/internal/infra/shutdown"
	"github.com/yndnr/authcore-go/internal/infra/tlsroots"
	"github.com/yndnr/authcore-go/internal/server/config"
	"github.com/yndnr/authcore-go/internal/server/httpserver"
	"github.com/yndnr/authcore-go/internal/server/httpserver/handler"
	"github.com/yndnr/authcore-go/internal/storage"
	"github.com/yndnr/authcore-go/internal/storage/memory"
	"github.com/yndnr/authcore-go/internal/storage/redisstore"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
	"github.com/yndnr/authcore-go/internal/telemetry/metric"
)

// Cron task names.
const (
	TaskTelemetry     = "telemetry"
	TaskSessionSweep  = "delete_expired_sessions"
	TaskKeyRetirement = "delete_expired_signing_keys"
)

// ServerOptions configures NewServer.
type ServerOptions struct {
	// ConfigPath is watched for changes when set.
	ConfigPath string

	// Overrides are re-applied on every reload.
	Overrides map[string]any

	// CronOptions are passed to the scheduler. Tests use them to shorten
	// intervals.
	CronOptions []cron.Option

	Logger logger.Logger
}

// Server owns every component of a running authcore-server.
type Server struct {
	opts      ServerOptions
	log       logger.Logger
	store     service.Store
	registry  *config.Registry
	resources *tenant.Distributor
	metrics   *metric.Registry
	scheduler *cron.Scheduler
	handler   http.Handler
	http      *httpserver.Server
	shutdown  *shutdown.Handler
	watcher   *confloader.Watcher
	certs     *tlsroots.Watcher
}

// storageConfig maps the storage section to storage.Config.
func storageConfig(cfg *config.ServerConfig) (storage.Config, error) {
	badger := storage.DefaultBadgerConfig(cfg.Storage.Badger.Dir)
	badger.InMemory = cfg.Storage.Badger.InMemory
	badger.GCInterval = cfg.Storage.Badger.GCInterval
	badger.GCThreshold = cfg.Storage.Badger.GCThreshold
	badger.SyncWrites = cfg.Storage.Badger.SyncWrites

	rc := cfg.Storage.Redis
	redis := redisstore.Config{
		Addr:      rc.Addr,
		Username:  rc.Username,
		Password:  rc.Password,
		DB:        rc.DB,
		KeyPrefix: rc.KeyPrefix,
		PoolSize:  rc.PoolSize,
	}
	if rc.TLS.Enabled && cfg.Storage.Type == redisstore.Kind {
		tlsCfg, err := tlsroots.ClientConfig(tlsroots.ClientOptions{
			CAFile:             rc.TLS.CAFile,
			CertFile:           rc.TLS.CertFile,
			KeyFile:            rc.TLS.KeyFile,
			ServerName:         rc.TLS.ServerName,
			InsecureSkipVerify: rc.TLS.InsecureSkipVerify,
		})
		if err != nil {
			return storage.Config{}, fmt.Errorf("redis tls: %w", err)
		}
		redis.TLSConfig = tlsCfg
	}

	return storage.Config{
		Kind:   cfg.Storage.Type,
		Badger: badger,
		Redis:  redis,
	}, nil
}

// NewServer opens storage and builds every service. Nothing listens until
// Run.
func NewServer(ctx context.Context, cfg *config.ServerConfig, opts ServerOptions) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	registry, err := config.NewRegistry(cfg)
	if err != nil {
		return nil, err
	}
	versions, err := service.NewVersionNegotiator(cfg.API.SupportedVersions)
	if err != nil {
		return nil, err
	}

	sc, err := storageConfig(cfg)
	if err != nil {
		return nil, err
	}
	var certs *tlsroots.Watcher
	if hc := cfg.Server.HTTP; hc.TLSCertFile != "" {
		certs, err = tlsroots.NewWatcher(hc.TLSCertFile, hc.TLSKeyFile, tlsroots.WithLogger(log))
		if err != nil {
			return nil, err
		}
	}

	store, err := storage.Open(ctx, sc, log)
	if err != nil {
		if certs != nil {
			_ = certs.Stop()
		}
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if store.Kind() == memory.Kind {
		log.Warn("using in-memory storage, data is lost on exit")
	}

	s := &Server{
		opts:      opts,
		log:       log,
		store:     store,
		registry:  registry,
		resources: tenant.NewDistributor(),
		metrics:   metric.NewRegistry(),
		shutdown:  shutdown.NewHandler(cfg.Server.HTTP.ShutdownTimeout, log),
		certs:     certs,
	}

	if err := s.registerMetrics(); err != nil {
		_ = s.close()
		return nil, err
	}

	keys := service.NewSigningKeyManager(store, store, s.resources, service.WithKeyMetrics(s.metrics))
	sessions := service.NewSessionService(store, keys,
		service.NewTokenCodec(cfg.Session.Issuer),
		service.NewRefreshSealer(store, s.resources),
		registry,
		service.WithSessionMetrics(s.metrics))

	var telemetryOpts []service.TelemetryOption
	if cfg.Core.TelemetryEndpoint != "" {
		telemetryOpts = append(telemetryOpts, service.WithTelemetryEndpoint(cfg.Core.TelemetryEndpoint))
	}
	telemetry := service.NewTelemetryReporter(store, registry, buildinfo.CoreVersion, telemetryOpts...)

	h := handler.New(handler.Config{
		Sessions: sessions,
		Metadata: service.NewMetadataService(store),
		Keys:     keys,
		Gate:     service.NewAccessGate(s.resources),
		Versions: versions,
		Resolver: tenant.NewResolver(portOf(cfg.Server.HTTP.Addr)),
		Tenants:  registry,
		Shutdown: s.shutdown,
		BasePath: cfg.API.BasePath,
		Logger:   log,
	})
	s.handler = httpserver.NewRouter(httpserver.RouterConfig{
		Handler: h,
		Metrics: s.metrics,
		Logger:  log,
	})
	httpOpts := httpserver.Options{
		Addr:              cfg.Server.HTTP.Addr,
		ReadHeaderTimeout: cfg.Server.HTTP.ReadHeaderTimeout,
	}
	if certs != nil {
		httpOpts.TLSConfig = certs.ServerConfig()
	}
	s.http = httpserver.New(httpOpts, s.handler)

	cronOpts := append([]cron.Option{cron.WithLogger(log), cron.WithMetrics(s.metrics)}, opts.CronOptions...)
	s.scheduler = cron.New(registry.Tenants, s.resources, cronOpts...)
	tasks := []cron.Task{
		{
			Name:              TaskTelemetry,
			Interval:          cfg.Cron.TelemetryInterval,
			DefaultTenantOnly: true,
			Run:               telemetry.Run,
		},
		{
			Name:         TaskSessionSweep,
			Interval:     cfg.Cron.SessionSweepInterval,
			InitialDelay: cfg.Cron.SessionSweepInterval,
			Run: func(ctx context.Context, t domain.TenantIdentity) error {
				_, err := sessions.DeleteExpired(ctx, t)
				return err
			},
		},
		{
			Name:         TaskKeyRetirement,
			Interval:     cfg.Cron.KeyRetirementInterval,
			InitialDelay: cfg.Cron.KeyRetirementInterval,
			Run: func(ctx context.Context, t domain.TenantIdentity) error {
				_, err := keys.RemoveExpired(ctx, t)
				return err
			},
		},
	}
	for _, task := range tasks {
		if err := s.scheduler.Register(task); err != nil {
			_ = s.close()
			return nil, err
		}
	}

	log.Info("services initialized",
		"storage", store.Kind(),
		"tenants", len(registry.Tenants()),
		"base_path", h.BasePath())
	return s, nil
}

func (s *Server) registerMetrics() error {
	collector := metric.NewCollector(
		func() int { return len(s.registry.Tenants()) },
		s.resources.Len,
	)
	if err := s.metrics.Register(collector); err != nil {
		return err
	}
	if bs, ok := s.store.(*storage.BadgerStore); ok {
		return bs.RegisterMetrics(s.metrics)
	}
	return nil
}

// portOf returns the port of a host:port listen address, or "".
func portOf(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	return port
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Registry returns the live tenant registry.
func (s *Server) Registry() *config.Registry { return s.registry }

// Shutdown returns the shutdown handler. Trigger on it makes Run return.
func (s *Server) Shutdown() *shutdown.Handler { return s.shutdown }

// Run serves on ln, or on the configured address when ln is nil, until a
// signal, a shutdown trigger or the end of ctx. It then stops every
// component in reverse start order.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.registry.Config().Server.HTTP.Addr)
		if err != nil {
			_ = s.close()
			return fmt.Errorf("listen: %w", err)
		}
	}

	s.shutdown.OnShutdown("storage", func(context.Context) error {
		return s.store.Close()
	})
	s.shutdown.OnShutdown("tenant resources", func(context.Context) error {
		return s.resources.Close()
	})
	s.scheduler.Start()
	s.shutdown.OnShutdown("cron", s.scheduler.Stop)

	if s.certs != nil {
		s.certs.StartAsync()
		s.shutdown.OnShutdown("certificate watcher", func(context.Context) error {
			return s.certs.Stop()
		})
	}

	if s.opts.ConfigPath != "" {
		w, err := confloader.NewWatcher(s.opts.ConfigPath, confloader.WithWatcherLogger(s.log))
		if err != nil {
			s.log.Warn("configuration hot reload disabled", "error", err)
		} else {
			s.watcher = w
			w.OnChange(s.reload)
			w.StartAsync()
			s.shutdown.OnShutdown("config watcher", func(context.Context) error {
				return w.Stop()
			})
		}
	}

	go func() {
		s.log.Info("HTTP server listening", "addr", ln.Addr().String(), "tls", s.http.TLSEnabled())
		if err := s.http.Serve(ln); err != nil {
			s.log.Error("HTTP server error", "error", err)
			s.shutdown.Trigger("http server: " + err.Error())
		}
	}()
	s.shutdown.OnShutdown("http server", s.http.Shutdown)

	err := s.shutdown.Wait(ctx)
	if err != nil {
		s.log.Error("shutdown error", "error", err)
		return err
	}
	s.log.Info("server stopped gracefully")
	return nil
}

// close releases what NewServer opened when Run never started.
func (s *Server) close() error {
	var certErr error
	if s.certs != nil {
		certErr = s.certs.Stop()
	}
	return errors.Join(certErr, s.resources.Close(), s.store.Close())
}

// reload re-reads the configuration file. Listener, storage and CDI
// version settings need a restart; tenants, API keys, token settings and
// the log level apply immediately. A broken file keeps the running
// configuration.
func (s *Server) reload(path string) {
	cfg, err := loadConfig(path, s.opts.Overrides)
	if err != nil {
		s.log.Error("configuration reload failed, keeping the current configuration", "error", err)
		return
	}
	removed, err := s.registry.Update(cfg)
	if err != nil {
		s.log.Error("configuration reload failed, keeping the current configuration", "error", err)
		return
	}
	logger.SetLevel(cfg.Log.Level)

	for _, t := range removed {
		n, err := s.resources.RemoveTenant(t)
		if err != nil {
			s.log.Warn("closing resources of removed tenant", "tenant", t.String(), "error", err)
		}
		s.log.Info("tenant removed", "tenant", t.String(), "resources", n)
	}
	s.log.Info("configuration reloaded",
		"tenants", len(s.registry.Tenants()),
		"log_level", cfg.Log.Level)
}
