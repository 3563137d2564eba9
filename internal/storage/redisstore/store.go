package redisstore

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
)

// Kind is the value Store.Kind reports.
const Kind = "redis"

// DefaultKeyPrefix namespaces every key the store writes.
const DefaultKeyPrefix = "authcore"

const maxTxRetries = 8

var _ service.Store = (*Store)(nil)

// Config holds Redis connection settings.
type Config struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int

	// TLSConfig enables TLS when set.
	TLSConfig *tls.Config
}

// Store is a Redis-backed service.Store.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		TLSConfig:    cfg.TLSConfig,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return New(rdb, cfg.KeyPrefix), nil
}

// New wraps an existing client. An empty prefix selects DefaultKeyPrefix.
func New(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Kind implements service.Store.
func (s *Store) Kind() string { return Kind }

// Close implements service.Store.
func (s *Store) Close() error { return s.rdb.Close() }

// Ping reports whether Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// ===== Keys =====

func (s *Store) base(t domain.TenantIdentity) string {
	return s.prefix + ":" + t.StorageKey()
}

func (s *Store) sessionKey(t domain.TenantIdentity, handle string) string {
	return s.base(t) + ":s:" + handle
}

func (s *Store) userKey(t domain.TenantIdentity, userID string) string {
	return s.base(t) + ":u:" + userID
}

func (s *Store) expiryKey(t domain.TenantIdentity) string   { return s.base(t) + ":exp" }
func (s *Store) signingKey(t domain.TenantIdentity) string  { return s.base(t) + ":k" }
func (s *Store) kvKey(t domain.TenantIdentity) string       { return s.base(t) + ":kv" }
func (s *Store) metadataKey(t domain.TenantIdentity) string { return s.base(t) + ":m" }
func (s *Store) activeKey(t domain.TenantIdentity) string   { return s.base(t) + ":a" }

// watch runs fn as an optimistic transaction over keys, retrying when a
// watched key changes underneath it.
func (s *Store) watch(ctx context.Context, op string, fn func(tx *redis.Tx) error, keys ...string) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = s.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return domain.StorageError(op, err)
		}
	}
	return domain.ErrStorageTransaction.WithDetails(op).WithCause(err)
}

// getter is satisfied by both the client and a watched transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readSession(ctx context.Context, c getter, key string) (*domain.Session, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// ===== Sessions =====

// CreateSession implements service.SessionRepository.
func (s *Store) CreateSession(ctx context.Context, t domain.TenantIdentity, sess *domain.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return domain.StorageError("create session", err)
	}
	key := s.sessionKey(t, sess.Handle)

	return s.watch(ctx, "create session", func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrSessionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.SAdd(ctx, s.userKey(t, sess.UserID), sess.Handle)
			if sess.ExpiresAt != 0 {
				pipe.ZAdd(ctx, s.expiryKey(t), redis.Z{Score: float64(sess.ExpiresAt), Member: sess.Handle})
			}
			return nil
		})
		return err
	}, key)
}

// GetSession implements service.SessionRepository.
func (s *Store) GetSession(ctx context.Context, t domain.TenantIdentity, handle string) (*domain.Session, error) {
	sess, err := readSession(ctx, s.rdb, s.sessionKey(t, handle))
	if err != nil {
		return nil, domain.StorageError("get session", err)
	}
	return sess, nil
}

// UpdateSession implements service.SessionRepository.
func (s *Store) UpdateSession(ctx context.Context, t domain.TenantIdentity, sess *domain.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return domain.StorageError("update session", err)
	}
	key := s.sessionKey(t, sess.Handle)

	return s.watch(ctx, "update session", func(tx *redis.Tx) error {
		existing, err := readSession(ctx, tx, key)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			if existing.UserID != sess.UserID {
				pipe.SRem(ctx, s.userKey(t, existing.UserID), sess.Handle)
				pipe.SAdd(ctx, s.userKey(t, sess.UserID), sess.Handle)
			}
			if sess.ExpiresAt != 0 {
				pipe.ZAdd(ctx, s.expiryKey(t), redis.Z{Score: float64(sess.ExpiresAt), Member: sess.Handle})
			} else {
				pipe.ZRem(ctx, s.expiryKey(t), sess.Handle)
			}
			return nil
		})
		return err
	}, key)
}

// DeleteSession implements service.SessionRepository.
func (s *Store) DeleteSession(ctx context.Context, t domain.TenantIdentity, handle string) (bool, error) {
	key := s.sessionKey(t, handle)
	var existed bool

	err := s.watch(ctx, "delete session", func(tx *redis.Tx) error {
		existed = false
		sess, err := readSession(ctx, tx, key)
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.deleteSession(ctx, pipe, t, sess)
			return nil
		})
		return err
	}, key)
	return existed, err
}

func (s *Store) deleteSession(ctx context.Context, pipe redis.Pipeliner, t domain.TenantIdentity, sess *domain.Session) {
	pipe.Del(ctx, s.sessionKey(t, sess.Handle))
	pipe.SRem(ctx, s.userKey(t, sess.UserID), sess.Handle)
	pipe.ZRem(ctx, s.expiryKey(t), sess.Handle)
}

// ListSessionHandles implements service.SessionRepository.
func (s *Store) ListSessionHandles(ctx context.Context, t domain.TenantIdentity, userID string) ([]string, error) {
	handles, err := s.rdb.SMembers(ctx, s.userKey(t, userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, domain.StorageError("list sessions", err)
	}
	sort.Strings(handles)
	return handles, nil
}

// DeleteExpiredSessions implements service.SessionRepository.
func (s *Store) DeleteExpiredSessions(ctx context.Context, t domain.TenantIdentity, now int64) (int, error) {
	handles, err := s.rdb.ZRangeByScore(ctx, s.expiryKey(t), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return 0, domain.StorageError("scan expired sessions", err)
	}

	removed := 0
	for _, handle := range handles {
		sess, err := readSession(ctx, s.rdb, s.sessionKey(t, handle))
		if errors.Is(err, domain.ErrSessionNotFound) {
			s.rdb.ZRem(ctx, s.expiryKey(t), handle)
			continue
		}
		if err != nil {
			return removed, domain.StorageError("delete expired sessions", err)
		}
		if !sess.IsExpired(now) {
			// Refreshed since the scan.
			continue
		}
		_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.deleteSession(ctx, pipe, t, sess)
			return nil
		})
		if err != nil {
			return removed, domain.StorageError("delete expired sessions", err)
		}
		removed++
	}
	return removed, nil
}

// ===== Signing keys =====

// ListSigningKeys implements service.SigningKeyRepository.
func (s *Store) ListSigningKeys(ctx context.Context, t domain.TenantIdentity) ([]*domain.SigningKey, error) {
	all, err := s.rdb.HGetAll(ctx, s.signingKey(t)).Result()
	if err != nil {
		return nil, domain.StorageError("list signing keys", err)
	}
	keys := make([]*domain.SigningKey, 0, len(all))
	for id, raw := range all {
		var k domain.SigningKey
		if err := json.Unmarshal([]byte(raw), &k); err != nil {
			return nil, domain.StorageError("list signing keys", fmt.Errorf("decode key %s: %w", id, err))
		}
		keys = append(keys, &k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CreatedAt != keys[j].CreatedAt {
			return keys[i].CreatedAt < keys[j].CreatedAt
		}
		return keys[i].KeyID < keys[j].KeyID
	})
	return keys, nil
}

// AddSigningKey implements service.SigningKeyRepository.
func (s *Store) AddSigningKey(ctx context.Context, t domain.TenantIdentity, key *domain.SigningKey) error {
	raw, err := json.Marshal(key)
	if err != nil {
		return domain.StorageError("add signing key", err)
	}
	return domain.StorageError("add signing key", s.rdb.HSet(ctx, s.signingKey(t), key.KeyID, raw).Err())
}

// RemoveSigningKeysExpiredBefore implements service.SigningKeyRepository.
func (s *Store) RemoveSigningKeysExpiredBefore(ctx context.Context, t domain.TenantIdentity, now int64) (int, error) {
	keys, err := s.ListSigningKeys(ctx, t)
	if err != nil {
		return 0, err
	}
	var stale []string
	for _, k := range keys {
		if k.ExpiresAt != 0 && k.ExpiresAt < now {
			stale = append(stale, k.KeyID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	n, err := s.rdb.HDel(ctx, s.signingKey(t), stale...).Result()
	if err != nil {
		return 0, domain.StorageError("remove signing keys", err)
	}
	return int(n), nil
}

// ===== Key/value =====

// GetKeyValue implements service.KeyValueRepository.
func (s *Store) GetKeyValue(ctx context.Context, t domain.TenantIdentity, key string) (*domain.KeyValue, error) {
	raw, err := s.rdb.HGet(ctx, s.kvKey(t), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrKeyValueNotFound
	}
	if err != nil {
		return nil, domain.StorageError("get key value", err)
	}
	var kv domain.KeyValue
	if err := json.Unmarshal(raw, &kv); err != nil {
		return nil, domain.StorageError("get key value", err)
	}
	return &kv, nil
}

// SetKeyValue implements service.KeyValueRepository.
func (s *Store) SetKeyValue(ctx context.Context, t domain.TenantIdentity, key string, kv *domain.KeyValue) error {
	raw, err := json.Marshal(kv)
	if err != nil {
		return domain.StorageError("set key value", err)
	}
	return domain.StorageError("set key value", s.rdb.HSet(ctx, s.kvKey(t), key, raw).Err())
}

// SetKeyValueIfAbsent implements service.KeyValueRepository.
func (s *Store) SetKeyValueIfAbsent(ctx context.Context, t domain.TenantIdentity, key string, kv *domain.KeyValue) (*domain.KeyValue, error) {
	raw, err := json.Marshal(kv)
	if err != nil {
		return nil, domain.StorageError("set key value", err)
	}
	set, err := s.rdb.HSetNX(ctx, s.kvKey(t), key, raw).Result()
	if err != nil {
		return nil, domain.StorageError("set key value", err)
	}
	if set {
		stored := *kv
		return &stored, nil
	}
	return s.GetKeyValue(ctx, t, key)
}

// ===== User metadata =====

// GetUserMetadata implements service.UserMetadataRepository.
func (s *Store) GetUserMetadata(ctx context.Context, t domain.TenantIdentity, userID string) (json.RawMessage, error) {
	raw, err := s.rdb.HGet(ctx, s.metadataKey(t), userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.StorageError("get user metadata", err)
	}
	return raw, nil
}

// SetUserMetadata implements service.UserMetadataRepository.
func (s *Store) SetUserMetadata(ctx context.Context, t domain.TenantIdentity, userID string, metadata json.RawMessage) error {
	return domain.StorageError("set user metadata",
		s.rdb.HSet(ctx, s.metadataKey(t), userID, []byte(metadata)).Err())
}

// DeleteUserMetadata implements service.UserMetadataRepository.
func (s *Store) DeleteUserMetadata(ctx context.Context, t domain.TenantIdentity, userID string) error {
	return domain.StorageError("delete user metadata", s.rdb.HDel(ctx, s.metadataKey(t), userID).Err())
}

// ===== Active users =====

// UpdateLastActive implements service.ActiveUserRepository.
func (s *Store) UpdateLastActive(ctx context.Context, t domain.TenantIdentity, userID string, at int64) error {
	return domain.StorageError("update last active",
		s.rdb.ZAdd(ctx, s.activeKey(t), redis.Z{Score: float64(at), Member: userID}).Err())
}

// CountActiveUsersSince implements service.ActiveUserRepository.
func (s *Store) CountActiveUsersSince(ctx context.Context, t domain.TenantIdentity, since int64) (int, error) {
	n, err := s.rdb.ZCount(ctx, s.activeKey(t), strconv.FormatInt(since, 10), "+inf").Result()
	if err != nil {
		return 0, domain.StorageError("count active users", err)
	}
	return int(n), nil
}
