package httpserver

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	s := New(Options{Addr: ":8080"}, http.NotFoundHandler())
	if s.httpServer.ReadHeaderTimeout != DefaultReadHeaderTimeout {
		t.Errorf("ReadHeaderTimeout = %v, want %v", s.httpServer.ReadHeaderTimeout, DefaultReadHeaderTimeout)
	}
	if s.TLSEnabled() {
		t.Error("TLSEnabled() = true without certificate files")
	}

	s = New(Options{ReadHeaderTimeout: time.Second, TLSCertFile: "c.pem", TLSKeyFile: "k.pem"}, http.NotFoundHandler())
	if s.httpServer.ReadHeaderTimeout != time.Second {
		t.Errorf("ReadHeaderTimeout = %v, want 1s", s.httpServer.ReadHeaderTimeout)
	}
	if !s.TLSEnabled() {
		t.Error("TLSEnabled() = false with certificate files")
	}

	s = New(Options{TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12}}, http.NotFoundHandler())
	if !s.TLSEnabled() || s.httpServer.TLSConfig == nil {
		t.Error("TLSConfig option not applied")
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	s := New(Options{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong" {
		t.Errorf("body = %q, want pong", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() = %v, want nil after shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for Serve to return")
	}
}
