// Package domain defines the core domain models for authcore.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling.
package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session constraints.
const (
	MaxUserIDLength = 256
)

// Session is the source of truth for one login. Access and refresh tokens
// are derived from it and never persisted on their own.
type Session struct {
	// Handle is the unique session identifier (uuid).
	Handle string `json:"handle"`

	// UserID identifies the user who owns this session.
	UserID string `json:"userId"`

	// UserDataInJWT is the opaque JSON object embedded in access tokens.
	UserDataInJWT json.RawMessage `json:"userDataInJWT"`

	// UserDataInDatabase is the opaque JSON object kept server side only.
	UserDataInDatabase json.RawMessage `json:"userDataInDatabase"`

	// AntiCsrfToken is set when anti-CSRF protection was requested.
	AntiCsrfToken string `json:"antiCsrfToken,omitempty"`

	// SigningKeyID is the kid of the key that signed the latest access token.
	SigningKeyID string `json:"signingKeyUsed"`

	// UseStaticKey records the key flavour chosen at creation; refresh keeps it.
	UseStaticKey bool `json:"useStaticKey"`

	// RefreshTokenHash is the hash of the current refresh token.
	RefreshTokenHash string `json:"refreshTokenHash"`

	// ParentRefreshTokenHash is the hash of the refresh token that was rotated
	// into the current one. Presenting it again is treated as a client retry.
	ParentRefreshTokenHash string `json:"parentRefreshTokenHash,omitempty"`

	// CreatedAt is the session creation timestamp (Unix milliseconds).
	CreatedAt int64 `json:"timeCreated"`

	// ExpiresAt is the absolute expiration timestamp (Unix milliseconds).
	ExpiresAt int64 `json:"expiry"`
}

// NewSessionHandle generates a new session handle.
func NewSessionHandle() string {
	return uuid.NewString()
}

// IsExpired reports whether the session is past its expiry at now (Unix ms).
func (s *Session) IsExpired(now int64) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return now > s.ExpiresAt
}

// TTL returns the remaining lifetime at now, or 0 when expired.
func (s *Session) TTL(now time.Time) time.Duration {
	remaining := s.ExpiresAt - now.UnixMilli()
	if s.ExpiresAt == 0 || remaining <= 0 {
		return 0
	}
	return time.Duration(remaining) * time.Millisecond
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.UserDataInJWT = cloneRaw(s.UserDataInJWT)
	clone.UserDataInDatabase = cloneRaw(s.UserDataInDatabase)
	return &clone
}

// Validate checks the session fields that callers control.
func (s *Session) Validate() error {
	var violations []string

	if s.Handle == "" {
		violations = append(violations, "handle is required")
	}
	if s.UserID == "" {
		violations = append(violations, "userId is required")
	}
	if len(s.UserID) > MaxUserIDLength {
		violations = append(violations, "userId exceeds 256 characters")
	}

	if len(violations) > 0 {
		return BadRequest(strings.Join(violations, "; "))
	}
	return nil
}

// KeyValue is a tenant-scoped key/value row (telemetry id, token secrets).
type KeyValue struct {
	Value     string `json:"value"`
	CreatedAt int64  `json:"createdAt"`
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
