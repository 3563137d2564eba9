package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/tenant"
)

// fakeStore is an in-memory Store with error injection.
type fakeStore struct {
	mu       sync.Mutex
	kind     string
	sessions map[string]*domain.Session
	keys     map[string][]*domain.SigningKey
	kv       map[string]*domain.KeyValue
	metadata map[string]json.RawMessage
	active   map[string]int64

	errGetSession error
	errActive     error
	addKeyCalls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		kind:     "fake",
		sessions: make(map[string]*domain.Session),
		keys:     make(map[string][]*domain.SigningKey),
		kv:       make(map[string]*domain.KeyValue),
		metadata: make(map[string]json.RawMessage),
		active:   make(map[string]int64),
	}
}

func scoped(t domain.TenantIdentity, key string) string {
	return t.StorageKey() + "|" + key
}

func (s *fakeStore) Kind() string { return s.kind }
func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) CreateSession(_ context.Context, t domain.TenantIdentity, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scoped(t, sess.Handle)
	if _, ok := s.sessions[k]; ok {
		return domain.ErrSessionConflict
	}
	s.sessions[k] = sess.Clone()
	return nil
}

func (s *fakeStore) GetSession(_ context.Context, t domain.TenantIdentity, handle string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errGetSession != nil {
		return nil, s.errGetSession
	}
	sess, ok := s.sessions[scoped(t, handle)]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *fakeStore) UpdateSession(_ context.Context, t domain.TenantIdentity, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scoped(t, sess.Handle)
	if _, ok := s.sessions[k]; !ok {
		return domain.ErrSessionNotFound
	}
	s.sessions[k] = sess.Clone()
	return nil
}

func (s *fakeStore) DeleteSession(_ context.Context, t domain.TenantIdentity, handle string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scoped(t, handle)
	_, ok := s.sessions[k]
	delete(s.sessions, k)
	return ok, nil
}

func (s *fakeStore) ListSessionHandles(_ context.Context, t domain.TenantIdentity, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k, sess := range s.sessions {
		if sess.UserID == userID && k == scoped(t, sess.Handle) {
			out = append(out, sess.Handle)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakeStore) DeleteExpiredSessions(_ context.Context, t domain.TenantIdentity, now int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, sess := range s.sessions {
		if k == scoped(t, sess.Handle) && sess.IsExpired(now) {
			delete(s.sessions, k)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ListSigningKeys(_ context.Context, t domain.TenantIdentity) ([]*domain.SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.SigningKey
	for _, k := range s.keys[t.StorageKey()] {
		out = append(out, k.Clone())
	}
	return out, nil
}

func (s *fakeStore) AddSigningKey(_ context.Context, t domain.TenantIdentity, key *domain.SigningKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addKeyCalls++
	s.keys[t.StorageKey()] = append(s.keys[t.StorageKey()], key.Clone())
	return nil
}

func (s *fakeStore) RemoveSigningKeysExpiredBefore(_ context.Context, t domain.TenantIdentity, now int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*domain.SigningKey
	n := 0
	for _, k := range s.keys[t.StorageKey()] {
		if k.ExpiresAt != 0 && k.ExpiresAt < now {
			n++
			continue
		}
		kept = append(kept, k)
	}
	s.keys[t.StorageKey()] = kept
	return n, nil
}

func (s *fakeStore) GetKeyValue(_ context.Context, t domain.TenantIdentity, key string) (*domain.KeyValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kv, ok := s.kv[scoped(t, key)]
	if !ok {
		return nil, domain.ErrKeyValueNotFound
	}
	c := *kv
	return &c, nil
}

func (s *fakeStore) SetKeyValue(_ context.Context, t domain.TenantIdentity, key string, kv *domain.KeyValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *kv
	s.kv[scoped(t, key)] = &c
	return nil
}

func (s *fakeStore) SetKeyValueIfAbsent(_ context.Context, t domain.TenantIdentity, key string, kv *domain.KeyValue) (*domain.KeyValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.kv[scoped(t, key)]; ok {
		c := *existing
		return &c, nil
	}
	c := *kv
	s.kv[scoped(t, key)] = &c
	out := c
	return &out, nil
}

func (s *fakeStore) GetUserMetadata(_ context.Context, t domain.TenantIdentity, userID string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata[scoped(t, userID)], nil
}

func (s *fakeStore) SetUserMetadata(_ context.Context, t domain.TenantIdentity, userID string, m json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[scoped(t, userID)] = append(json.RawMessage(nil), m...)
	return nil
}

func (s *fakeStore) DeleteUserMetadata(_ context.Context, t domain.TenantIdentity, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.metadata, scoped(t, userID))
	return nil
}

func (s *fakeStore) UpdateLastActive(_ context.Context, t domain.TenantIdentity, userID string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errActive != nil {
		return s.errActive
	}
	s.active[scoped(t, userID)] = at
	return nil
}

func (s *fakeStore) CountActiveUsersSince(_ context.Context, t domain.TenantIdentity, since int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, at := range s.active {
		if len(k) > len(t.StorageKey()) && k[:len(t.StorageKey())] == t.StorageKey() && at >= since {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv wires a SessionService over a fakeStore.
type testEnv struct {
	store     *fakeStore
	clock     *fakeClock
	cfg       *domain.TenantConfig
	resources *tenant.Distributor
	keys      *SigningKeyManager
	sessions  *SessionService
	tenant    domain.TenantIdentity
}

func testConfig() *domain.TenantConfig {
	return &domain.TenantConfig{
		AccessTokenValidity:             time.Hour,
		RefreshTokenValidity:            100 * 24 * time.Hour,
		DynamicSigningKeyUpdateInterval: 24 * time.Hour,
		AccessTokenSigningKeyDynamic:    true,
		SigningAlgorithm:                domain.AlgorithmEdDSA,
		MaxUserDataInJWTBytes:           4096,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:     newFakeStore(),
		clock:     newFakeClock(),
		cfg:       testConfig(),
		resources: tenant.NewDistributor(),
		tenant:    domain.DefaultTenant(),
	}
	configs := ConfigProviderFunc(func(tn domain.TenantIdentity) (*domain.TenantConfig, error) {
		if tn.TenantID == "missing" {
			return nil, domain.TenantNotFound(tn.TenantID)
		}
		return env.cfg, nil
	})

	env.keys = NewSigningKeyManager(env.store, env.store, env.resources, WithKeyClock(env.clock.Now))
	env.sessions = NewSessionService(
		env.store,
		env.keys,
		NewTokenCodec(""),
		NewRefreshSealer(env.store, env.resources),
		configs,
		WithSessionClock(env.clock.Now),
	)
	t.Cleanup(func() { _ = env.resources.Close() })
	return env
}
