package service

import (
	"context"
	"encoding/json"

	"github.com/yndnr/authcore-go/internal/core/domain"
)

// SessionRepository stores session rows.
//
// Get and Update return domain.ErrSessionNotFound for unknown handles. Other
// failures are reported as domain.ErrStorage.
type SessionRepository interface {
	// CreateSession inserts s. A duplicate handle is domain.ErrSessionConflict.
	CreateSession(ctx context.Context, tenant domain.TenantIdentity, s *domain.Session) error

	// GetSession returns the session stored under handle.
	GetSession(ctx context.Context, tenant domain.TenantIdentity, handle string) (*domain.Session, error)

	// UpdateSession replaces an existing session row.
	UpdateSession(ctx context.Context, tenant domain.TenantIdentity, s *domain.Session) error

	// DeleteSession removes a session and reports whether it existed.
	DeleteSession(ctx context.Context, tenant domain.TenantIdentity, handle string) (bool, error)

	// ListSessionHandles returns the handles of every session of userID.
	ListSessionHandles(ctx context.Context, tenant domain.TenantIdentity, userID string) ([]string, error)

	// DeleteExpiredSessions removes sessions whose expiry is before now
	// (Unix milliseconds) and returns how many were removed.
	DeleteExpiredSessions(ctx context.Context, tenant domain.TenantIdentity, now int64) (int, error)
}

// SigningKeyRepository stores dynamic signing keys.
type SigningKeyRepository interface {
	// ListSigningKeys returns every stored key ordered by CreatedAt, oldest first.
	ListSigningKeys(ctx context.Context, tenant domain.TenantIdentity) ([]*domain.SigningKey, error)

	// AddSigningKey appends a key.
	AddSigningKey(ctx context.Context, tenant domain.TenantIdentity, key *domain.SigningKey) error

	// RemoveSigningKeysExpiredBefore deletes keys with a non-zero ExpiresAt
	// before now and returns how many were removed.
	RemoveSigningKeysExpiredBefore(ctx context.Context, tenant domain.TenantIdentity, now int64) (int, error)
}

// KeyValueRepository stores small named values per tenant.
type KeyValueRepository interface {
	// GetKeyValue returns domain.ErrKeyValueNotFound when key is unset.
	GetKeyValue(ctx context.Context, tenant domain.TenantIdentity, key string) (*domain.KeyValue, error)

	// SetKeyValue stores kv under key, replacing any previous value.
	SetKeyValue(ctx context.Context, tenant domain.TenantIdentity, key string, kv *domain.KeyValue) error

	// SetKeyValueIfAbsent stores kv unless key is already set, and returns
	// the value that is stored afterwards.
	SetKeyValueIfAbsent(ctx context.Context, tenant domain.TenantIdentity, key string, kv *domain.KeyValue) (*domain.KeyValue, error)
}

// UserMetadataRepository stores one JSON object per user.
type UserMetadataRepository interface {
	// GetUserMetadata returns nil without error when the user has none.
	GetUserMetadata(ctx context.Context, tenant domain.TenantIdentity, userID string) (json.RawMessage, error)

	// SetUserMetadata replaces the user's metadata.
	SetUserMetadata(ctx context.Context, tenant domain.TenantIdentity, userID string, metadata json.RawMessage) error

	// DeleteUserMetadata removes the user's metadata.
	DeleteUserMetadata(ctx context.Context, tenant domain.TenantIdentity, userID string) error
}

// ActiveUserRepository tracks the last time each user was seen.
type ActiveUserRepository interface {
	UpdateLastActive(ctx context.Context, tenant domain.TenantIdentity, userID string, at int64) error
	CountActiveUsersSince(ctx context.Context, tenant domain.TenantIdentity, since int64) (int, error)
}

// Store is the full storage contract a backend implements.
type Store interface {
	SessionRepository
	SigningKeyRepository
	KeyValueRepository
	UserMetadataRepository
	ActiveUserRepository

	// Kind names the backend ("memory", "badger", "redis").
	Kind() string

	Close() error
}

// ConfigProvider returns the configuration of a tenant.
// Unknown tenants yield domain.ErrTenantNotFound.
type ConfigProvider interface {
	TenantConfig(tenant domain.TenantIdentity) (*domain.TenantConfig, error)
}

// ConfigProviderFunc adapts a function to ConfigProvider.
type ConfigProviderFunc func(tenant domain.TenantIdentity) (*domain.TenantConfig, error)

// TenantConfig implements ConfigProvider.
func (f ConfigProviderFunc) TenantConfig(tenant domain.TenantIdentity) (*domain.TenantConfig, error) {
	return f(tenant)
}
