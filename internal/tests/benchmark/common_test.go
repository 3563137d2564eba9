package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"testing"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/core/tenant"
	"github.com/yndnr/authcore-go/internal/server/config"
	"github.com/yndnr/authcore-go/internal/storage"
	"github.com/yndnr/authcore-go/internal/storage/memory"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

// SessionCounts for quick benchmarks.
var SessionCounts = []int{1000, 5000, 10000}

// env is a session service over one storage backend.
type env struct {
	store    service.Store
	sessions *service.SessionService
	sealer   *service.RefreshSealer
	tenant   domain.TenantIdentity
}

// backends lists the stores every benchmark runs against.
var backends = []struct {
	name string
	open func(b *testing.B) service.Store
}{
	{"memory", func(*testing.B) service.Store { return memory.New() }},
	{"badger", func(b *testing.B) service.Store {
		s, err := storage.OpenBadger(storage.BadgerConfig{InMemory: true}, logger.Discard())
		if err != nil {
			b.Fatalf("OpenBadger failed: %v", err)
		}
		b.Cleanup(func() { _ = s.Close() })
		return s
	}},
}

func newEnv(b *testing.B, store service.Store) *env {
	b.Helper()
	cfg := config.Default()
	// EdDSA keeps key generation out of the measured loops.
	cfg.Session.SigningAlgorithm = domain.AlgorithmEdDSA
	registry, err := config.NewRegistry(cfg)
	if err != nil {
		b.Fatalf("NewRegistry failed: %v", err)
	}

	resources := tenant.NewDistributor()
	b.Cleanup(func() { _ = resources.Close() })

	keys := service.NewSigningKeyManager(store, store, resources)
	sealer := service.NewRefreshSealer(store, resources)
	return &env{
		store:    store,
		sessions: service.NewSessionService(store, keys, service.NewTokenCodec(""), sealer, registry),
		sealer:   sealer,
		tenant:   domain.DefaultTenant(),
	}
}

func createRequest(userID string) *service.CreateSessionRequest {
	return &service.CreateSessionRequest{
		UserID:        userID,
		UserDataInJWT: json.RawMessage(`{"role":"member"}`),
		Version:       domain.CDIv2_17,
	}
}

// prefill creates count sessions spread over 1000 users.
func (e *env) prefill(b *testing.B, count int) []*service.SessionResult {
	b.Helper()
	ctx := context.Background()
	out := make([]*service.SessionResult, count)
	for i := 0; i < count; i++ {
		res, err := e.sessions.CreateSession(ctx, e.tenant, createRequest(fmt.Sprintf("user-%d", i%1000)))
		if err != nil {
			b.Fatalf("CreateSession failed: %v", err)
		}
		out[i] = res
	}
	return out
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runBackends runs benchFn against every backend with various session counts.
func runBackends(b *testing.B, counts []int, benchFn func(b *testing.B, e *env, count int)) {
	for _, be := range backends {
		for _, count := range counts {
			b.Run(fmt.Sprintf("%s/sessions_%d", be.name, count), func(b *testing.B) {
				benchFn(b, newEnv(b, be.open(b)), count)
			})
		}
	}
}
