package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/pkg/cmap"
)

// Kind is the value Store.Kind reports.
const Kind = "memory"

const sep = "\x00"

var _ service.Store = (*Store)(nil)

// Store is an in-memory service.Store.
type Store struct {
	sessions  *cmap.Map[string, *domain.Session]
	userIndex *UserIndex
	keys      *cmap.Map[string, []*domain.SigningKey]
	kv        *cmap.Map[string, domain.KeyValue]
	metadata  *cmap.Map[string, json.RawMessage]
	active    *cmap.Map[string, int64]

	// mu keeps sessions and userIndex consistent.
	mu sync.Mutex
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sessions:  cmap.New[string, *domain.Session](),
		userIndex: NewUserIndex(),
		keys:      cmap.New[string, []*domain.SigningKey](),
		kv:        cmap.New[string, domain.KeyValue](),
		metadata:  cmap.New[string, json.RawMessage](),
		active:    cmap.New[string, int64](),
	}
}

func scoped(t domain.TenantIdentity, key string) string {
	return t.StorageKey() + sep + key
}

// Kind implements service.Store.
func (s *Store) Kind() string { return Kind }

// Close implements service.Store.
func (s *Store) Close() error { return nil }

// ===== Sessions =====

// CreateSession implements service.SessionRepository.
func (s *Store) CreateSession(_ context.Context, t domain.TenantIdentity, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sessions.SetIfAbsent(scoped(t, sess.Handle), sess.Clone()) {
		return domain.ErrSessionConflict
	}
	s.userIndex.Add(scoped(t, sess.UserID), sess.Handle)
	return nil
}

// GetSession implements service.SessionRepository.
func (s *Store) GetSession(_ context.Context, t domain.TenantIdentity, handle string) (*domain.Session, error) {
	sess, ok := s.sessions.Get(scoped(t, handle))
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// UpdateSession implements service.SessionRepository.
func (s *Store) UpdateSession(_ context.Context, t domain.TenantIdentity, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scoped(t, sess.Handle)
	existing, ok := s.sessions.Get(key)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if existing.UserID != sess.UserID {
		s.userIndex.Remove(scoped(t, existing.UserID), sess.Handle)
		s.userIndex.Add(scoped(t, sess.UserID), sess.Handle)
	}
	s.sessions.Set(key, sess.Clone())
	return nil
}

// DeleteSession implements service.SessionRepository.
func (s *Store) DeleteSession(_ context.Context, t domain.TenantIdentity, handle string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Pop(scoped(t, handle))
	if !ok {
		return false, nil
	}
	s.userIndex.Remove(scoped(t, sess.UserID), handle)
	return true, nil
}

// ListSessionHandles implements service.SessionRepository.
func (s *Store) ListSessionHandles(_ context.Context, t domain.TenantIdentity, userID string) ([]string, error) {
	return s.userIndex.Get(scoped(t, userID)), nil
}

// DeleteExpiredSessions implements service.SessionRepository.
func (s *Store) DeleteExpiredSessions(_ context.Context, t domain.TenantIdentity, now int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := t.StorageKey() + sep
	return s.sessions.DeleteFunc(func(key string, sess *domain.Session) bool {
		if !strings.HasPrefix(key, prefix) || !sess.IsExpired(now) {
			return false
		}
		s.userIndex.Remove(scoped(t, sess.UserID), sess.Handle)
		return true
	}), nil
}

// SessionCount returns the number of stored sessions across all tenants.
func (s *Store) SessionCount() int {
	return s.sessions.Count()
}

// ===== Signing keys =====

// ListSigningKeys implements service.SigningKeyRepository.
func (s *Store) ListSigningKeys(_ context.Context, t domain.TenantIdentity) ([]*domain.SigningKey, error) {
	keys, _ := s.keys.Get(t.StorageKey())
	out := make([]*domain.SigningKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Clone())
	}
	return out, nil
}

// AddSigningKey implements service.SigningKeyRepository.
func (s *Store) AddSigningKey(_ context.Context, t domain.TenantIdentity, key *domain.SigningKey) error {
	s.keys.Update(t.StorageKey(), func(keys []*domain.SigningKey, _ bool) []*domain.SigningKey {
		next := append(append([]*domain.SigningKey(nil), keys...), key.Clone())
		sort.SliceStable(next, func(i, j int) bool { return next[i].CreatedAt < next[j].CreatedAt })
		return next
	})
	return nil
}

// RemoveSigningKeysExpiredBefore implements service.SigningKeyRepository.
func (s *Store) RemoveSigningKeysExpiredBefore(_ context.Context, t domain.TenantIdentity, now int64) (int, error) {
	removed := 0
	s.keys.Update(t.StorageKey(), func(keys []*domain.SigningKey, _ bool) []*domain.SigningKey {
		kept := make([]*domain.SigningKey, 0, len(keys))
		for _, k := range keys {
			if k.ExpiresAt != 0 && k.ExpiresAt < now {
				removed++
				continue
			}
			kept = append(kept, k)
		}
		return kept
	})
	return removed, nil
}

// ===== Key/value =====

// GetKeyValue implements service.KeyValueRepository.
func (s *Store) GetKeyValue(_ context.Context, t domain.TenantIdentity, key string) (*domain.KeyValue, error) {
	kv, ok := s.kv.Get(scoped(t, key))
	if !ok {
		return nil, domain.ErrKeyValueNotFound
	}
	return &kv, nil
}

// SetKeyValue implements service.KeyValueRepository.
func (s *Store) SetKeyValue(_ context.Context, t domain.TenantIdentity, key string, kv *domain.KeyValue) error {
	s.kv.Set(scoped(t, key), *kv)
	return nil
}

// SetKeyValueIfAbsent implements service.KeyValueRepository.
func (s *Store) SetKeyValueIfAbsent(_ context.Context, t domain.TenantIdentity, key string, kv *domain.KeyValue) (*domain.KeyValue, error) {
	stored, _ := s.kv.GetOrSet(scoped(t, key), *kv)
	return &stored, nil
}

// ===== User metadata =====

// GetUserMetadata implements service.UserMetadataRepository.
func (s *Store) GetUserMetadata(_ context.Context, t domain.TenantIdentity, userID string) (json.RawMessage, error) {
	m, ok := s.metadata.Get(scoped(t, userID))
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), m...), nil
}

// SetUserMetadata implements service.UserMetadataRepository.
func (s *Store) SetUserMetadata(_ context.Context, t domain.TenantIdentity, userID string, metadata json.RawMessage) error {
	s.metadata.Set(scoped(t, userID), append(json.RawMessage(nil), metadata...))
	return nil
}

// DeleteUserMetadata implements service.UserMetadataRepository.
func (s *Store) DeleteUserMetadata(_ context.Context, t domain.TenantIdentity, userID string) error {
	s.metadata.Delete(scoped(t, userID))
	return nil
}

// ===== Active users =====

// UpdateLastActive implements service.ActiveUserRepository.
func (s *Store) UpdateLastActive(_ context.Context, t domain.TenantIdentity, userID string, at int64) error {
	s.active.Set(scoped(t, userID), at)
	return nil
}

// CountActiveUsersSince implements service.ActiveUserRepository.
func (s *Store) CountActiveUsersSince(_ context.Context, t domain.TenantIdentity, since int64) (int, error) {
	prefix := t.StorageKey() + sep
	n := 0
	s.active.Range(func(key string, at int64) bool {
		if strings.HasPrefix(key, prefix) && at >= since {
			n++
		}
		return true
	})
	return n, nil
}
