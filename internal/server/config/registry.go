package config

import (
	"encoding/base64"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/yndnr/authcore-go/internal/core/domain"
)

// Registry serves per-tenant configuration built from a ServerConfig. It is
// safe for concurrent use, and Update swaps in a new configuration atomically.
type Registry struct {
	state atomic.Pointer[registryState]
}

type registryState struct {
	cfg       *ServerConfig
	tenants   map[domain.TenantIdentity]*domain.TenantConfig
	order     []domain.TenantIdentity
	threshold domain.ProtocolVersion
}

// NewRegistry builds a registry from cfg, which must already be verified.
func NewRegistry(cfg *ServerConfig) (*Registry, error) {
	r := &Registry{}
	if _, err := r.Update(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// Update replaces the configuration and returns the tenants that no longer
// exist. On error the previous configuration stays in effect.
func (r *Registry) Update(cfg *ServerConfig) (removed []domain.TenantIdentity, err error) {
	next, err := buildState(cfg)
	if err != nil {
		return nil, err
	}
	prev := r.state.Swap(next)
	if prev == nil {
		return nil, nil
	}
	for _, t := range prev.order {
		if _, ok := next.tenants[t]; !ok {
			removed = append(removed, t)
		}
	}
	return removed, nil
}

// Config returns the configuration currently in effect.
func (r *Registry) Config() *ServerConfig {
	return r.state.Load().cfg
}

// SigningKeyOverrideVersion is the CDI version from which requests pick
// their signing key with useDynamicSigningKey.
func (r *Registry) SigningKeyOverrideVersion() domain.ProtocolVersion {
	return r.state.Load().threshold
}

// Tenants returns every configured tenant, default tenant first.
func (r *Registry) Tenants() []domain.TenantIdentity {
	order := r.state.Load().order
	out := make([]domain.TenantIdentity, len(order))
	copy(out, order)
	return out
}

// TenantConfig implements service.ConfigProvider.
func (r *Registry) TenantConfig(t domain.TenantIdentity) (*domain.TenantConfig, error) {
	_, cfg, err := r.Lookup(t)
	return cfg, err
}

// Lookup returns the configured identity t resolves to, and its config.
// A domain without its own tenant declarations falls back to the default
// domain, so the identity returned may differ from t.
func (r *Registry) Lookup(t domain.TenantIdentity) (domain.TenantIdentity, *domain.TenantConfig, error) {
	st := r.state.Load()
	if cfg, ok := st.tenants[t]; ok {
		return t, cfg, nil
	}
	fallback := domain.TenantIdentity{AppID: t.AppID, TenantID: t.TenantID}
	if cfg, ok := st.tenants[fallback]; ok {
		return fallback, cfg, nil
	}
	return domain.TenantIdentity{}, nil, domain.TenantNotFound(t.TenantIDOrDefault())
}

func buildState(cfg *ServerConfig) (*registryState, error) {
	threshold, err := domain.ParseProtocolVersion(cfg.Session.SigningKeyOverrideVersion)
	if err != nil {
		return nil, fmt.Errorf("signing key override version: %w", err)
	}
	base, err := defaultTenantConfig(cfg)
	if err != nil {
		return nil, err
	}

	st := &registryState{
		cfg:       cfg,
		tenants:   map[domain.TenantIdentity]*domain.TenantConfig{domain.DefaultTenant(): base},
		threshold: threshold,
	}
	for _, ts := range cfg.Tenants {
		t := ts.Identity()
		if _, dup := st.tenants[t]; dup && !t.IsDefault() {
			return nil, fmt.Errorf("tenant %s declared twice", t)
		}
		st.tenants[t] = ts.apply(base)
	}

	for t := range st.tenants {
		st.order = append(st.order, t)
	}
	sort.Slice(st.order, func(i, j int) bool {
		a, b := st.order[i], st.order[j]
		if a.IsDefault() != b.IsDefault() {
			return a.IsDefault()
		}
		return a.StorageKey() < b.StorageKey()
	})
	return st, nil
}

func defaultTenantConfig(cfg *ServerConfig) (*domain.TenantConfig, error) {
	s := cfg.Session
	legacy := make([]domain.LegacyKey, 0, len(s.LegacyKeys))
	for _, k := range s.LegacyKeys {
		der, err := base64.StdEncoding.DecodeString(k.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("legacy key %s: %w", k.KeyID, err)
		}
		legacy = append(legacy, domain.LegacyKey{
			KeyID:     k.KeyID,
			Algorithm: k.Algorithm,
			PublicKey: der,
			ExpiresAt: k.ExpiresAt.UnixMilli(),
		})
	}

	return &domain.TenantConfig{
		APIKeys:                         SplitAPIKeys(cfg.Core.APIKeys),
		AccessTokenValidity:             s.AccessTokenValidity,
		RefreshTokenValidity:            s.RefreshTokenValidity,
		AccessTokenSigningKeyDynamic:    s.AccessTokenSigningKeyDynamic,
		DynamicSigningKeyUpdateInterval: s.DynamicSigningKeyUpdateInterval,
		SigningAlgorithm:                s.SigningAlgorithm,
		MaxUserDataInJWTBytes:           s.MaxUserDataInJWTBytes,
		LegacyKeys:                      legacy,
		TelemetryDisabled:               cfg.Core.TelemetryDisabled,
		RateLimit:                       cfg.Core.RateLimit,
	}, nil
}

// Identity returns the normalized identity the section declares.
func (ts TenantSection) Identity() domain.TenantIdentity {
	return domain.NewTenantIdentity(ts.ConnectionURIDomain, ts.AppID, ts.TenantID)
}

// apply overlays the section's set fields on a copy of base.
func (ts TenantSection) apply(base *domain.TenantConfig) *domain.TenantConfig {
	c := *base
	if ts.APIKeys != nil {
		c.APIKeys = SplitAPIKeys(*ts.APIKeys)
	}
	if ts.AccessTokenValidity != nil {
		c.AccessTokenValidity = *ts.AccessTokenValidity
	}
	if ts.RefreshTokenValidity != nil {
		c.RefreshTokenValidity = *ts.RefreshTokenValidity
	}
	if ts.AccessTokenSigningKeyDynamic != nil {
		c.AccessTokenSigningKeyDynamic = *ts.AccessTokenSigningKeyDynamic
	}
	if ts.DynamicSigningKeyUpdateInterval != nil {
		c.DynamicSigningKeyUpdateInterval = *ts.DynamicSigningKeyUpdateInterval
	}
	if ts.SigningAlgorithm != nil {
		c.SigningAlgorithm = *ts.SigningAlgorithm
	}
	if ts.MaxUserDataInJWTBytes != nil {
		c.MaxUserDataInJWTBytes = *ts.MaxUserDataInJWTBytes
	}
	if ts.TelemetryDisabled != nil {
		c.TelemetryDisabled = *ts.TelemetryDisabled
	}
	if ts.RateLimit != nil {
		c.RateLimit = *ts.RateLimit
	}
	return &c
}
