package command

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/server/config"
	"github.com/yndnr/authcore-go/internal/storage"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

func newTestServer(t *testing.T, path string) *Server {
	t.Helper()
	cfg, err := loadConfig(path, nil)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	srv, err := NewServer(context.Background(), cfg, ServerOptions{
		ConfigPath: path,
		Logger:     logger.Discard(),
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

func get(t *testing.T, url string, headers map[string]string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestServer_RunAndShutdown(t *testing.T) {
	srv := newTestServer(t, writeConfig(t, memoryConfig))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	base := "http://" + ln.Addr().String()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(context.Background(), ln) }()

	status, body := get(t, base+"/hello", map[string]string{"api-key": testAPIKey})
	if status != http.StatusOK || body != "Hello" {
		t.Errorf("GET /hello = %d %q, want 200 Hello", status, body)
	}

	status, body = get(t, base+"/t1/recipe/jwt/jwks", map[string]string{"api-key": testAPIKey})
	if status != http.StatusOK || !strings.Contains(body, `"keys"`) {
		t.Errorf("GET /t1/recipe/jwt/jwks = %d %q", status, body)
	}

	status, _ = get(t, base+"/recipe/jwt/jwks", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("GET without api-key = %d, want 401", status)
	}

	status, body = get(t, base+"/metrics", nil)
	if status != http.StatusOK || !strings.Contains(body, "authcore_tenants_configured 2") {
		t.Errorf("GET /metrics = %d, missing tenant gauge", status)
	}

	srv.Shutdown().Trigger("test")
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after Trigger")
	}
}

func TestServer_RunStopsOnContext(t *testing.T) {
	srv := newTestServer(t, writeConfig(t, memoryConfig))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx, ln) }()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestServer_Reload(t *testing.T) {
	path := writeConfig(t, memoryConfig)
	srv := newTestServer(t, path)
	t.Cleanup(func() { _ = srv.close() })

	t2 := domain.NewTenantIdentity("", "", "t2")
	if _, _, err := srv.Registry().Lookup(t2); err == nil {
		t.Fatal("t2 should not exist before reload")
	}

	next := strings.Replace(memoryConfig, "  - tenant_id: t1", "  - tenant_id: t2", 1)
	if err := os.WriteFile(path, []byte(next), 0o644); err != nil {
		t.Fatal(err)
	}
	srv.reload(path)

	if _, _, err := srv.Registry().Lookup(t2); err != nil {
		t.Errorf("Lookup(t2) after reload error = %v", err)
	}
	t1 := domain.NewTenantIdentity("", "", "t1")
	if _, _, err := srv.Registry().Lookup(t1); err == nil {
		t.Error("t1 should be gone after reload")
	}

	// A broken file keeps the running configuration.
	if err := os.WriteFile(path, []byte("storage:\n  type: etcd\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv.reload(path)
	if _, _, err := srv.Registry().Lookup(t2); err != nil {
		t.Errorf("Lookup(t2) after failed reload error = %v", err)
	}
}

func TestStorageConfig(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, `
storage:
  type: redis
  badger:
    dir: /tmp/authcore
    gc_threshold: 0.7
  redis:
    addr: redis:6379
    db: 3
    key_prefix: ac
`), nil)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	sc, err := storageConfig(cfg)
	if err != nil {
		t.Fatalf("storageConfig() error = %v", err)
	}
	if sc.Kind != "redis" {
		t.Errorf("Kind = %q, want redis", sc.Kind)
	}
	if sc.Redis.Addr != "redis:6379" || sc.Redis.DB != 3 || sc.Redis.KeyPrefix != "ac" {
		t.Errorf("Redis = %+v", sc.Redis)
	}
	if sc.Badger.Dir != "/tmp/authcore" || sc.Badger.GCThreshold != 0.7 {
		t.Errorf("Badger = %+v", sc.Badger)
	}
	if sc.Badger.CacheSize != storage.DefaultBadgerConfig("").CacheSize {
		t.Errorf("Badger.CacheSize = %d, want the default", sc.Badger.CacheSize)
	}
	if sc.Redis.TLSConfig != nil {
		t.Error("Redis.TLSConfig set without tls.enabled")
	}

	cfg.Storage.Redis.TLS = config.RedisTLSSection{Enabled: true, ServerName: "redis.internal"}
	sc, err = storageConfig(cfg)
	if err != nil {
		t.Fatalf("storageConfig(tls) error = %v", err)
	}
	if sc.Redis.TLSConfig == nil || sc.Redis.TLSConfig.ServerName != "redis.internal" {
		t.Errorf("Redis.TLSConfig = %+v", sc.Redis.TLSConfig)
	}

	cfg.Storage.Redis.TLS.CAFile = "/nonexistent/ca.pem"
	if _, err := storageConfig(cfg); err == nil {
		t.Error("storageConfig() with a missing CA file error = nil")
	}
}

func TestPortOf(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"127.0.0.1:3567", "3567"},
		{":8080", "8080"},
		{"localhost", ""},
	}
	for _, tt := range tests {
		if got := portOf(tt.addr); got != tt.want {
			t.Errorf("portOf(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}
