package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
)

var _ service.Store = (*BadgerStore)(nil)

// Key layout: <tenant storage key> 0x00 <record kind> 0x00 <id...>
const (
	kindSession  = "s"
	kindUserIdx  = "u"
	kindKey      = "k"
	kindKV       = "v"
	kindMetadata = "m"
	kindActive   = "a"
)

const (
	maxTxnRetries = 5
	sweepBatch    = 1000
)

func recordKey(t domain.TenantIdentity, kind string, parts ...string) []byte {
	var b bytes.Buffer
	b.WriteString(t.StorageKey())
	b.WriteByte(0)
	b.WriteString(kind)
	for _, p := range parts {
		b.WriteByte(0)
		b.WriteString(p)
	}
	return b.Bytes()
}

func recordPrefix(t domain.TenantIdentity, kind string, parts ...string) []byte {
	return append(recordKey(t, kind, parts...), 0)
}

// signingKeyID orders keys by creation time under a prefix scan.
func signingKeyID(k *domain.SigningKey) string {
	return fmt.Sprintf("%016x", uint64(k.CreatedAt)) + k.KeyID
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *BadgerStore) update(op string, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt <= maxTxnRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	return storageErr(op, err)
}

func (s *BadgerStore) view(op string, fn func(txn *badger.Txn) error) error {
	return storageErr(op, s.db.View(fn))
}

func storageErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrConflict):
		return domain.ErrStorageTransaction.WithDetails(op).WithCause(err)
	case errors.Is(err, badger.ErrDBClosed):
		return domain.StorageError(op, ErrClosed)
	default:
		return domain.StorageError(op, err)
	}
}

func getJSON(txn *badger.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

// ===== Sessions =====

// CreateSession implements service.SessionRepository.
func (s *BadgerStore) CreateSession(_ context.Context, t domain.TenantIdentity, sess *domain.Session) error {
	key := recordKey(t, kindSession, sess.Handle)
	return s.update("create session", func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return domain.ErrSessionConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, key, sess); err != nil {
			return err
		}
		return txn.Set(recordKey(t, kindUserIdx, sess.UserID, sess.Handle), nil)
	})
}

// GetSession implements service.SessionRepository.
func (s *BadgerStore) GetSession(_ context.Context, t domain.TenantIdentity, handle string) (*domain.Session, error) {
	var sess domain.Session
	err := s.view("get session", func(txn *badger.Txn) error {
		found, err := getJSON(txn, recordKey(t, kindSession, handle), &sess)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrSessionNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// UpdateSession implements service.SessionRepository.
func (s *BadgerStore) UpdateSession(_ context.Context, t domain.TenantIdentity, sess *domain.Session) error {
	key := recordKey(t, kindSession, sess.Handle)
	return s.update("update session", func(txn *badger.Txn) error {
		var existing domain.Session
		found, err := getJSON(txn, key, &existing)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrSessionNotFound
		}
		if existing.UserID != sess.UserID {
			if err := txn.Delete(recordKey(t, kindUserIdx, existing.UserID, sess.Handle)); err != nil {
				return err
			}
			if err := txn.Set(recordKey(t, kindUserIdx, sess.UserID, sess.Handle), nil); err != nil {
				return err
			}
		}
		return setJSON(txn, key, sess)
	})
}

// DeleteSession implements service.SessionRepository.
func (s *BadgerStore) DeleteSession(_ context.Context, t domain.TenantIdentity, handle string) (bool, error) {
	var existed bool
	err := s.update("delete session", func(txn *badger.Txn) error {
		existed = false
		var sess domain.Session
		found, err := getJSON(txn, recordKey(t, kindSession, handle), &sess)
		if err != nil || !found {
			return err
		}
		existed = true
		return deleteSessionTxn(txn, t, &sess)
	})
	return existed, err
}

func deleteSessionTxn(txn *badger.Txn, t domain.TenantIdentity, sess *domain.Session) error {
	if err := txn.Delete(recordKey(t, kindSession, sess.Handle)); err != nil {
		return err
	}
	return txn.Delete(recordKey(t, kindUserIdx, sess.UserID, sess.Handle))
}

// ListSessionHandles implements service.SessionRepository.
func (s *BadgerStore) ListSessionHandles(_ context.Context, t domain.TenantIdentity, userID string) ([]string, error) {
	prefix := recordPrefix(t, kindUserIdx, userID)
	var handles []string
	err := s.view("list sessions", func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			handles = append(handles, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return handles, err
}

// DeleteExpiredSessions implements service.SessionRepository.
//
// Expired rows are collected in a read transaction and deleted in batches,
// so a large backlog never exceeds Badger's transaction size limit.
func (s *BadgerStore) DeleteExpiredSessions(_ context.Context, t domain.TenantIdentity, now int64) (int, error) {
	var expired []*domain.Session
	err := s.view("scan sessions", func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix(t, kindSession)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var sess domain.Session
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sess)
			}); err != nil {
				return err
			}
			if sess.IsExpired(now) {
				expired = append(expired, &sess)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for start := 0; start < len(expired); start += sweepBatch {
		end := min(start+sweepBatch, len(expired))
		batch := expired[start:end]
		err := s.update("delete expired sessions", func(txn *badger.Txn) error {
			for _, sess := range batch {
				if err := deleteSessionTxn(txn, t, sess); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return removed, err
		}
		removed += len(batch)
	}
	return removed, nil
}

// ===== Signing keys =====

// ListSigningKeys implements service.SigningKeyRepository.
func (s *BadgerStore) ListSigningKeys(_ context.Context, t domain.TenantIdentity) ([]*domain.SigningKey, error) {
	var keys []*domain.SigningKey
	err := s.view("list signing keys", func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix(t, kindKey)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var k domain.SigningKey
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &k)
			}); err != nil {
				return err
			}
			keys = append(keys, &k)
		}
		return nil
	})
	return keys, err
}

// AddSigningKey implements service.SigningKeyRepository.
func (s *BadgerStore) AddSigningKey(_ context.Context, t domain.TenantIdentity, key *domain.SigningKey) error {
	return s.update("add signing key", func(txn *badger.Txn) error {
		return setJSON(txn, recordKey(t, kindKey, signingKeyID(key)), key)
	})
}

// RemoveSigningKeysExpiredBefore implements service.SigningKeyRepository.
func (s *BadgerStore) RemoveSigningKeysExpiredBefore(_ context.Context, t domain.TenantIdentity, now int64) (int, error) {
	removed := 0
	err := s.update("remove signing keys", func(txn *badger.Txn) error {
		removed = 0
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix(t, kindKey)
		it := txn.NewIterator(opts)
		defer it.Close()

		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			var k domain.SigningKey
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &k)
			}); err != nil {
				return err
			}
			if k.ExpiresAt != 0 && k.ExpiresAt < now {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// ===== Key/value =====

// GetKeyValue implements service.KeyValueRepository.
func (s *BadgerStore) GetKeyValue(_ context.Context, t domain.TenantIdentity, key string) (*domain.KeyValue, error) {
	var kv domain.KeyValue
	err := s.view("get key value", func(txn *badger.Txn) error {
		found, err := getJSON(txn, recordKey(t, kindKV, key), &kv)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrKeyValueNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &kv, nil
}

// SetKeyValue implements service.KeyValueRepository.
func (s *BadgerStore) SetKeyValue(_ context.Context, t domain.TenantIdentity, key string, kv *domain.KeyValue) error {
	return s.update("set key value", func(txn *badger.Txn) error {
		return setJSON(txn, recordKey(t, kindKV, key), kv)
	})
}

// SetKeyValueIfAbsent implements service.KeyValueRepository.
func (s *BadgerStore) SetKeyValueIfAbsent(_ context.Context, t domain.TenantIdentity, key string, kv *domain.KeyValue) (*domain.KeyValue, error) {
	var stored domain.KeyValue
	err := s.update("set key value", func(txn *badger.Txn) error {
		k := recordKey(t, kindKV, key)
		found, err := getJSON(txn, k, &stored)
		if err != nil || found {
			return err
		}
		stored = *kv
		return setJSON(txn, k, kv)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// ===== User metadata =====

// GetUserMetadata implements service.UserMetadataRepository.
func (s *BadgerStore) GetUserMetadata(_ context.Context, t domain.TenantIdentity, userID string) (json.RawMessage, error) {
	var out json.RawMessage
	err := s.view("get user metadata", func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(t, kindMetadata, userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

// SetUserMetadata implements service.UserMetadataRepository.
func (s *BadgerStore) SetUserMetadata(_ context.Context, t domain.TenantIdentity, userID string, metadata json.RawMessage) error {
	return s.update("set user metadata", func(txn *badger.Txn) error {
		return txn.Set(recordKey(t, kindMetadata, userID), metadata)
	})
}

// DeleteUserMetadata implements service.UserMetadataRepository.
func (s *BadgerStore) DeleteUserMetadata(_ context.Context, t domain.TenantIdentity, userID string) error {
	return s.update("delete user metadata", func(txn *badger.Txn) error {
		return txn.Delete(recordKey(t, kindMetadata, userID))
	})
}

// ===== Active users =====

// UpdateLastActive implements service.ActiveUserRepository.
func (s *BadgerStore) UpdateLastActive(_ context.Context, t domain.TenantIdentity, userID string, at int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(at))
	return s.update("update last active", func(txn *badger.Txn) error {
		return txn.Set(recordKey(t, kindActive, userID), buf[:])
	})
}

// CountActiveUsersSince implements service.ActiveUserRepository.
func (s *BadgerStore) CountActiveUsersSince(_ context.Context, t domain.TenantIdentity, since int64) (int, error) {
	n := 0
	err := s.view("count active users", func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix(t, kindActive)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				if len(val) == 8 && int64(binary.BigEndian.Uint64(val)) >= since {
					n++
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return n, err
}
