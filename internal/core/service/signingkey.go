package service

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/tenant"
	"github.com/yndnr/authcore-go/internal/telemetry/metric"
)

const (
	// staticKeyName is the key/value entry holding the tenant's static key.
	staticKeyName = "STATIC_SIGNING_KEY"

	signingKeysResource = "signing_keys"

	defaultRSABits = 2048
)

// SigningKeyManager owns the JWT signing keys of every tenant.
//
// Each tenant has one static key, created on first use and never rotated,
// and a sequence of dynamic keys governed by the tenant's KeyRotationPolicy.
// Configured legacy keys join the verification set until they expire.
type SigningKeyManager struct {
	keys      SigningKeyRepository
	kv        KeyValueRepository
	resources *tenant.Distributor
	metrics   *metric.Registry
	now       func() time.Time
	rsaBits   int
}

// SigningKeyOption configures a SigningKeyManager.
type SigningKeyOption func(*SigningKeyManager)

// WithKeyClock overrides the clock used for key lifetimes.
func WithKeyClock(now func() time.Time) SigningKeyOption {
	return func(m *SigningKeyManager) { m.now = now }
}

// WithKeyMetrics records generated keys in r.
func WithKeyMetrics(r *metric.Registry) SigningKeyOption {
	return func(m *SigningKeyManager) { m.metrics = r }
}

// WithRSABits sets the modulus size for new RS256 keys.
func WithRSABits(bits int) SigningKeyOption {
	return func(m *SigningKeyManager) { m.rsaBits = bits }
}

// NewSigningKeyManager creates a manager over the given repositories.
func NewSigningKeyManager(keys SigningKeyRepository, kv KeyValueRepository, resources *tenant.Distributor, opts ...SigningKeyOption) *SigningKeyManager {
	m := &SigningKeyManager{
		keys:      keys,
		kv:        kv,
		resources: resources,
		now:       time.Now,
		rsaBits:   defaultRSABits,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// keyRing caches a tenant's keys. mu makes "read newest, append new" a
// single step for the tenant.
type keyRing struct {
	mu      sync.Mutex
	static  *domain.SigningKey
	dynamic []*domain.SigningKey // oldest first
	loaded  bool
}

func (m *SigningKeyManager) ring(t domain.TenantIdentity) (*keyRing, error) {
	return tenant.Resource(m.resources, t, signingKeysResource, func() (*keyRing, error) {
		return &keyRing{}, nil
	})
}

// GetSigningKey returns the key to sign a new access token with.
//
// The static key is returned when preferStatic is set or the tenant has
// dynamic keys disabled. Otherwise the newest dynamic key still inside its
// signing window is returned, generating one if there is none.
func (m *SigningKeyManager) GetSigningKey(ctx context.Context, t domain.TenantIdentity, cfg *domain.TenantConfig, preferStatic bool) (*domain.SigningKey, error) {
	ring, err := m.ring(t)
	if err != nil {
		return nil, err
	}

	ring.mu.Lock()
	defer ring.mu.Unlock()

	policy := cfg.RotationPolicy()
	if preferStatic || !policy.Enabled() {
		k, err := m.staticLocked(ctx, t, cfg, ring)
		return k.Clone(), err
	}

	now := m.now().UnixMilli()
	if k := newestSignable(ring.dynamic, policy, now); k != nil {
		return k.Clone(), nil
	}

	// Another process sharing the store may have rotated already.
	if err := m.reloadLocked(ctx, t, ring); err != nil {
		return nil, err
	}
	if k := newestSignable(ring.dynamic, policy, now); k != nil {
		return k.Clone(), nil
	}

	k, err := m.generate(domain.KeyKindDynamic, cfg.SigningAlgorithm, now, policy.VerifiableUntil(now))
	if err != nil {
		return nil, err
	}
	if err := m.keys.AddSigningKey(ctx, t, k); err != nil {
		return nil, domain.StorageError("add signing key", err)
	}
	ring.dynamic = append(ring.dynamic, k)
	m.metrics.SigningKeyGenerated(string(domain.KeyKindDynamic))
	return k.Clone(), nil
}

// VerificationKeys returns every key that may verify a token at this moment:
// the static key, the dynamic keys that have not expired (newest first) and
// the legacy keys inside their window.
func (m *SigningKeyManager) VerificationKeys(ctx context.Context, t domain.TenantIdentity, cfg *domain.TenantConfig) ([]*domain.SigningKey, error) {
	ring, err := m.ring(t)
	if err != nil {
		return nil, err
	}

	ring.mu.Lock()
	defer ring.mu.Unlock()

	if !ring.loaded {
		if err := m.reloadLocked(ctx, t, ring); err != nil {
			return nil, err
		}
	}
	return m.verificationSetLocked(ctx, t, cfg, ring)
}

// VerificationKey looks up kid in the verification set. The dynamic keys are
// reloaded once when kid is unknown, so keys generated by another process are
// found. ok is false when kid is not (or no longer) usable.
func (m *SigningKeyManager) VerificationKey(ctx context.Context, t domain.TenantIdentity, cfg *domain.TenantConfig, kid string) (key *domain.SigningKey, ok bool, err error) {
	keys, err := m.VerificationKeys(ctx, t, cfg)
	if err != nil {
		return nil, false, err
	}
	if k := findKey(keys, kid); k != nil {
		return k, true, nil
	}
	if !strings.HasPrefix(kid, domain.DynamicKeyIDPrefix) {
		return nil, false, nil
	}

	ring, err := m.ring(t)
	if err != nil {
		return nil, false, err
	}
	ring.mu.Lock()
	defer ring.mu.Unlock()

	if err := m.reloadLocked(ctx, t, ring); err != nil {
		return nil, false, err
	}
	keys, err = m.verificationSetLocked(ctx, t, cfg, ring)
	if err != nil {
		return nil, false, err
	}
	if k := findKey(keys, kid); k != nil {
		return k, true, nil
	}
	return nil, false, nil
}

// RemoveExpired deletes dynamic keys whose verification window has closed
// and returns how many were removed.
func (m *SigningKeyManager) RemoveExpired(ctx context.Context, t domain.TenantIdentity) (int, error) {
	now := m.now().UnixMilli()
	n, err := m.keys.RemoveSigningKeysExpiredBefore(ctx, t, now)
	if err != nil {
		return 0, domain.StorageError("remove expired signing keys", err)
	}

	if v, ok := m.resources.Get(t, signingKeysResource); ok {
		ring := v.(*keyRing)
		ring.mu.Lock()
		kept := ring.dynamic[:0]
		for _, k := range ring.dynamic {
			if k.IsVerifiable(now) {
				kept = append(kept, k)
			}
		}
		ring.dynamic = kept
		ring.mu.Unlock()
	}
	return n, nil
}

// LegacyKeyEntry is one element of jwtSigningPublicKeyList.
type LegacyKeyEntry struct {
	PublicKey  string `json:"publicKey"`
	ExpiryTime int64  `json:"expiryTime"`
	CreatedAt  int64  `json:"createdAt"`
}

// LegacyKeyInfo carries the deprecated key fields old clients parse.
type LegacyKeyInfo struct {
	PublicKey  string
	ExpiryTime int64
	List       []LegacyKeyEntry
}

// LegacyKeyInfo returns the tenant's current default signing key in the
// deprecated format, plus the full verification list when includeList is set.
func (m *SigningKeyManager) LegacyKeyInfo(ctx context.Context, t domain.TenantIdentity, cfg *domain.TenantConfig, includeList bool) (*LegacyKeyInfo, error) {
	current, err := m.GetSigningKey(ctx, t, cfg, !cfg.AccessTokenSigningKeyDynamic)
	if err != nil {
		return nil, err
	}
	info := &LegacyKeyInfo{
		PublicKey:  encodePublicKey(current),
		ExpiryTime: legacyExpiry(current),
	}
	if !includeList {
		return info, nil
	}

	keys, err := m.VerificationKeys(ctx, t, cfg)
	if err != nil {
		return nil, err
	}
	info.List = make([]LegacyKeyEntry, 0, len(keys))
	for _, k := range keys {
		info.List = append(info.List, LegacyKeyEntry{
			PublicKey:  encodePublicKey(k),
			ExpiryTime: legacyExpiry(k),
			CreatedAt:  k.CreatedAt,
		})
	}
	return info, nil
}

func (m *SigningKeyManager) staticLocked(ctx context.Context, t domain.TenantIdentity, cfg *domain.TenantConfig, ring *keyRing) (*domain.SigningKey, error) {
	if ring.static != nil {
		return ring.static, nil
	}

	kv, err := m.kv.GetKeyValue(ctx, t, staticKeyName)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrKeyValueNotFound):
		kv, err = m.createStatic(ctx, t, cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, domain.StorageError("get static signing key", err)
	}

	var k domain.SigningKey
	if err := json.Unmarshal([]byte(kv.Value), &k); err != nil {
		return nil, domain.ErrCrypto.WithDetails("decode static signing key").WithCause(err)
	}
	ring.static = &k
	return ring.static, nil
}

func (m *SigningKeyManager) createStatic(ctx context.Context, t domain.TenantIdentity, cfg *domain.TenantConfig) (*domain.KeyValue, error) {
	now := m.now().UnixMilli()
	k, err := m.generate(domain.KeyKindStatic, cfg.SigningAlgorithm, now, 0)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(k)
	if err != nil {
		return nil, domain.ErrInternal.WithCause(err)
	}

	stored, err := m.kv.SetKeyValueIfAbsent(ctx, t, staticKeyName, &domain.KeyValue{Value: string(raw), CreatedAt: now})
	if err != nil {
		return nil, domain.StorageError("store static signing key", err)
	}
	if stored.Value == string(raw) {
		m.metrics.SigningKeyGenerated(string(domain.KeyKindStatic))
	}
	return stored, nil
}

func (m *SigningKeyManager) reloadLocked(ctx context.Context, t domain.TenantIdentity, ring *keyRing) error {
	keys, err := m.keys.ListSigningKeys(ctx, t)
	if err != nil {
		return domain.StorageError("list signing keys", err)
	}
	ring.dynamic = keys
	ring.loaded = true
	return nil
}

func (m *SigningKeyManager) verificationSetLocked(ctx context.Context, t domain.TenantIdentity, cfg *domain.TenantConfig, ring *keyRing) ([]*domain.SigningKey, error) {
	static, err := m.staticLocked(ctx, t, cfg, ring)
	if err != nil {
		return nil, err
	}

	now := m.now().UnixMilli()
	out := []*domain.SigningKey{static.Clone()}
	for i := len(ring.dynamic) - 1; i >= 0; i-- {
		if k := ring.dynamic[i]; k.IsVerifiable(now) {
			out = append(out, k.Clone())
		}
	}
	for _, lk := range cfg.LegacyKeys {
		if lk.ExpiresAt != 0 && now > lk.ExpiresAt {
			continue
		}
		out = append(out, &domain.SigningKey{
			KeyID:     lk.KeyID,
			Kind:      domain.KeyKindLegacy,
			Algorithm: lk.Algorithm,
			PublicKey: append([]byte(nil), lk.PublicKey...),
			ExpiresAt: lk.ExpiresAt,
		})
	}
	return out, nil
}

func (m *SigningKeyManager) generate(kind domain.KeyKind, algorithm string, createdAt, expiresAt int64) (*domain.SigningKey, error) {
	if algorithm == "" {
		algorithm = domain.AlgorithmRS256
	}
	pub, priv, err := generateKeyPair(algorithm, m.rsaBits)
	if err != nil {
		return nil, err
	}
	kid, err := domain.NewKeyID(kind)
	if err != nil {
		return nil, err
	}
	return &domain.SigningKey{
		KeyID:      kid,
		Kind:       kind,
		Algorithm:  algorithm,
		PublicKey:  pub,
		PrivateKey: priv,
		CreatedAt:  createdAt,
		ExpiresAt:  expiresAt,
	}, nil
}

func newestSignable(keys []*domain.SigningKey, policy domain.KeyRotationPolicy, now int64) *domain.SigningKey {
	for i := len(keys) - 1; i >= 0; i-- {
		if policy.CanSignAt(keys[i], now) {
			return keys[i]
		}
	}
	return nil
}

func findKey(keys []*domain.SigningKey, kid string) *domain.SigningKey {
	for _, k := range keys {
		if k.KeyID == kid {
			return k
		}
	}
	return nil
}

func encodePublicKey(k *domain.SigningKey) string {
	return base64.StdEncoding.EncodeToString(k.PublicKey)
}

// legacyExpiry reports a never-expiring key with the largest representable time.
func legacyExpiry(k *domain.SigningKey) int64 {
	if k.ExpiresAt == 0 {
		return math.MaxInt64
	}
	return k.ExpiresAt
}

// ============================================================================
// Key material
// ============================================================================

func generateKeyPair(algorithm string, rsaBits int) (pub, priv []byte, err error) {
	var public crypto.PublicKey
	var private any

	switch algorithm {
	case domain.AlgorithmRS256:
		k, err := rsa.GenerateKey(rand.Reader, rsaBits)
		if err != nil {
			return nil, nil, domain.ErrCrypto.WithDetails("generate rsa key").WithCause(err)
		}
		public, private = &k.PublicKey, k
	case domain.AlgorithmEdDSA:
		p, k, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, domain.ErrCrypto.WithDetails("generate ed25519 key").WithCause(err)
		}
		public, private = p, k
	default:
		return nil, nil, domain.ErrCrypto.WithDetails("unsupported signing algorithm " + algorithm)
	}

	pub, err = x509.MarshalPKIXPublicKey(public)
	if err != nil {
		return nil, nil, domain.ErrCrypto.WithDetails("encode public key").WithCause(err)
	}
	priv, err = x509.MarshalPKCS8PrivateKey(private)
	if err != nil {
		return nil, nil, domain.ErrCrypto.WithDetails("encode private key").WithCause(err)
	}
	return pub, priv, nil
}

func parsePublicKey(k *domain.SigningKey) (crypto.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(k.PublicKey)
	if err != nil {
		return nil, domain.ErrCrypto.WithDetails("parse public key " + k.KeyID).WithCause(err)
	}
	return pub, nil
}

func parsePrivateKey(k *domain.SigningKey) (crypto.Signer, error) {
	priv, err := x509.ParsePKCS8PrivateKey(k.PrivateKey)
	if err != nil {
		return nil, domain.ErrCrypto.WithDetails("parse private key " + k.KeyID).WithCause(err)
	}
	signer, ok := priv.(crypto.Signer)
	if !ok {
		return nil, domain.ErrCrypto.WithDetails("private key " + k.KeyID + " cannot sign")
	}
	return signer, nil
}
