package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// KeyKind distinguishes how a signing key is managed.
type KeyKind string

const (
	// KeyKindStatic is the single long-lived key of a tenant.
	KeyKindStatic KeyKind = "static"

	// KeyKindDynamic is one key of the tenant's rotating sequence.
	KeyKindDynamic KeyKind = "dynamic"

	// KeyKindLegacy is a configured, verification-only key.
	KeyKindLegacy KeyKind = "legacy"
)

// Key id prefixes.
const (
	StaticKeyIDPrefix  = "s-"
	DynamicKeyIDPrefix = "d-"
)

// Supported JWT signing algorithms.
const (
	AlgorithmRS256 = "RS256"
	AlgorithmEdDSA = "EdDSA"
)

// SigningKey is JWT key material owned by one tenant.
type SigningKey struct {
	KeyID      string  `json:"keyId"`
	Kind       KeyKind `json:"kind"`
	Algorithm  string  `json:"algorithm"`
	PublicKey  []byte  `json:"publicKey"`            // PKIX DER
	PrivateKey []byte  `json:"privateKey,omitempty"` // PKCS#8 DER, empty for legacy keys
	CreatedAt  int64   `json:"createdAt"`            // Unix milliseconds
	ExpiresAt  int64   `json:"expiresAt,omitempty"`  // Unix milliseconds, 0 = never
}

// NewKeyID returns a fresh key id for the given kind.
func NewKeyID(kind KeyKind) (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return "", ErrCrypto.WithDetails("generate key id").WithCause(err)
	}
	prefix := DynamicKeyIDPrefix
	if kind == KeyKindStatic {
		prefix = StaticKeyIDPrefix
	}
	return prefix + strings.ToLower(id.String()), nil
}

// IsVerifiable reports whether the key may still verify tokens at now (Unix ms).
func (k *SigningKey) IsVerifiable(now int64) bool {
	return k.ExpiresAt == 0 || now <= k.ExpiresAt
}

// CanSign reports whether the key holds private material.
func (k *SigningKey) CanSign() bool {
	return len(k.PrivateKey) > 0
}

// Clone returns a deep copy of the key.
func (k *SigningKey) Clone() *SigningKey {
	if k == nil {
		return nil
	}
	clone := *k
	clone.PublicKey = append([]byte(nil), k.PublicKey...)
	if k.PrivateKey != nil {
		clone.PrivateKey = append([]byte(nil), k.PrivateKey...)
	}
	return &clone
}

// KeyRotationPolicy decides when a dynamic key stops signing and when it
// leaves the verification set. The two deadlines are separate so a token
// signed at the very end of a key's signing window still verifies for its
// full lifetime.
type KeyRotationPolicy struct {
	// SigningLifetime is how long a dynamic key is used for new tokens.
	SigningLifetime time.Duration

	// VerificationGrace is how long a key keeps verifying after it stops signing.
	VerificationGrace time.Duration
}

// Enabled reports whether dynamic keys are available under this policy.
func (p KeyRotationPolicy) Enabled() bool {
	return p.SigningLifetime > 0
}

// SignableUntil returns the last instant (Unix ms) the key may sign.
func (p KeyRotationPolicy) SignableUntil(k *SigningKey) int64 {
	return k.CreatedAt + p.SigningLifetime.Milliseconds()
}

// VerifiableUntil returns the last instant (Unix ms) the key may verify.
func (p KeyRotationPolicy) VerifiableUntil(createdAt int64) int64 {
	return createdAt + p.SigningLifetime.Milliseconds() + p.VerificationGrace.Milliseconds()
}

// CanSignAt reports whether k is a dynamic key still inside its signing window.
func (p KeyRotationPolicy) CanSignAt(k *SigningKey, now int64) bool {
	return k.CanSign() && now < p.SignableUntil(k) && k.IsVerifiable(now)
}
