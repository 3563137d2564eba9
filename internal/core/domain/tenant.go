package domain

import (
	"strings"
	"time"
)

// DefaultTenantID is the public name of the default tenant.
const DefaultTenantID = "public"

// TenantIdentity addresses one tenant. Empty fields mean "default".
//
// Identities are comparable values and safe to use as map keys once built
// through NewTenantIdentity, which applies case normalization.
type TenantIdentity struct {
	ConnectionURIDomain string
	AppID               string
	TenantID            string
}

// NewTenantIdentity builds a normalized identity. Domain and tenant id are
// lowercased; "public" collapses to the default tenant.
func NewTenantIdentity(connectionURIDomain, appID, tenantID string) TenantIdentity {
	tenantID = strings.ToLower(strings.TrimSpace(tenantID))
	if tenantID == DefaultTenantID {
		tenantID = ""
	}
	appID = strings.TrimSpace(appID)
	if strings.EqualFold(appID, DefaultTenantID) {
		appID = ""
	}
	return TenantIdentity{
		ConnectionURIDomain: strings.ToLower(strings.TrimSpace(connectionURIDomain)),
		AppID:               appID,
		TenantID:            tenantID,
	}
}

// DefaultTenant returns the identity of the default tenant on the default domain.
func DefaultTenant() TenantIdentity {
	return TenantIdentity{}
}

// Equal reports whether two identities address the same tenant.
func (t TenantIdentity) Equal(other TenantIdentity) bool {
	return strings.EqualFold(t.ConnectionURIDomain, other.ConnectionURIDomain) &&
		t.AppID == other.AppID &&
		strings.EqualFold(t.TenantID, other.TenantID)
}

// IsDefault reports whether t is the default tenant on the default domain.
func (t TenantIdentity) IsDefault() bool {
	return t.ConnectionURIDomain == "" && t.AppID == "" && t.TenantID == ""
}

// TenantIDOrDefault returns the tenant id, or "public" for the default tenant.
func (t TenantIdentity) TenantIDOrDefault() string {
	if t.TenantID == "" {
		return DefaultTenantID
	}
	return t.TenantID
}

// StorageKey returns a stable, path-safe key used by storage adapters to
// namespace tenant data.
func (t TenantIdentity) StorageKey() string {
	app := t.AppID
	if app == "" {
		app = DefaultTenantID
	}
	return strings.ToLower(t.ConnectionURIDomain) + "|" + app + "|" + t.TenantIDOrDefault()
}

// String implements fmt.Stringer.
func (t TenantIdentity) String() string {
	domain := t.ConnectionURIDomain
	if domain == "" {
		domain = "default"
	}
	return domain + "/" + t.TenantIDOrDefault()
}

// LegacyKey is a verification-only public key accepted until ExpiresAt.
type LegacyKey struct {
	KeyID     string
	Algorithm string
	PublicKey []byte // PKIX DER
	ExpiresAt int64  // Unix milliseconds
}

// TenantConfig is the per-tenant view of configuration consumed by the core.
type TenantConfig struct {
	// APIKeys protects the tenant's recipe endpoints. Empty disables the check.
	APIKeys []string

	// AccessTokenValidity is the lifetime of an access token.
	AccessTokenValidity time.Duration

	// RefreshTokenValidity is the lifetime of a session and its refresh token.
	RefreshTokenValidity time.Duration

	// AccessTokenSigningKeyDynamic makes dynamic keys the default for new sessions.
	AccessTokenSigningKeyDynamic bool

	// DynamicSigningKeyUpdateInterval is how long a dynamic key signs new tokens.
	// Zero disables dynamic keys for the tenant.
	DynamicSigningKeyUpdateInterval time.Duration

	// SigningAlgorithm is the JWT algorithm for new keys (RS256 or EdDSA).
	SigningAlgorithm string

	// MaxUserDataInJWTBytes bounds the encoded userDataInJWT.
	MaxUserDataInJWTBytes int

	// LegacyKeys are accepted for verification until their expiry.
	LegacyKeys []LegacyKey

	// TelemetryDisabled turns off the telemetry task for the tenant.
	TelemetryDisabled bool

	// RateLimit is the request budget per second; zero means unlimited.
	RateLimit int
}

// RotationPolicy returns the dynamic key policy implied by the config.
func (c *TenantConfig) RotationPolicy() KeyRotationPolicy {
	return KeyRotationPolicy{
		SigningLifetime:   c.DynamicSigningKeyUpdateInterval,
		VerificationGrace: c.AccessTokenValidity,
	}
}
