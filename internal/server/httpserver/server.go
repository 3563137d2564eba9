package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"
)

// DefaultReadHeaderTimeout bounds header reads when Options leaves it unset.
const DefaultReadHeaderTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	Addr              string
	ReadHeaderTimeout time.Duration

	// TLSConfig enables HTTPS and takes precedence over the file pair.
	TLSConfig *tls.Config

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	opts       Options
}

// New creates a new HTTP server.
func New(opts Options, handler http.Handler) *Server {
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           handler,
			ReadHeaderTimeout: opts.ReadHeaderTimeout,
			TLSConfig:         opts.TLSConfig,
		},
		opts: opts,
	}
}

// TLSEnabled reports whether the server serves HTTPS.
func (s *Server) TLSEnabled() bool {
	return s.opts.TLSConfig != nil || (s.opts.TLSCertFile != "" && s.opts.TLSKeyFile != "")
}

// ListenAndServe serves until Shutdown. It returns nil after a graceful
// shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	var err error
	switch {
	case s.opts.TLSConfig != nil:
		err = s.httpServer.ServeTLS(ln, "", "")
	case s.TLSEnabled():
		err = s.httpServer.ServeTLS(ln, s.opts.TLSCertFile, s.opts.TLSKeyFile)
	default:
		err = s.httpServer.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
