package config

import "time"

// ServerConfig is the root configuration for authcore-server.
type ServerConfig struct {
	Server  ServerSection   `koanf:"server"`
	API     APISection      `koanf:"api"`
	Core    CoreSection     `koanf:"core"`
	Session SessionSection  `koanf:"session"`
	Storage StorageSection  `koanf:"storage"`
	Cron    CronSection     `koanf:"cron"`
	Log     LogSection      `koanf:"log"`
	Tenants []TenantSection `koanf:"tenants"`
}

// ServerSection configures listeners.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr              string        `koanf:"addr"`
	TLSCertFile       string        `koanf:"tls_cert_file"`
	TLSKeyFile        string        `koanf:"tls_key_file"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// APISection configures the request surface.
type APISection struct {
	// BasePath prefixes every recipe path, e.g. "/auth". Empty for none.
	BasePath string `koanf:"base_path"`

	// SupportedVersions is the CDI allow-list.
	SupportedVersions []string `koanf:"supported_versions"`
}

// CoreSection holds settings of the default tenant that are not about
// sessions.
type CoreSection struct {
	// APIKeys is a comma-separated list. Empty disables the API key check.
	APIKeys string `koanf:"api_keys"`

	TelemetryDisabled bool   `koanf:"telemetry_disabled"`
	TelemetryEndpoint string `koanf:"telemetry_endpoint"`

	// RateLimit is requests per second per tenant. Zero means unlimited.
	RateLimit int `koanf:"rate_limit"`
}

// SessionSection configures tokens and signing keys.
type SessionSection struct {
	AccessTokenValidity             time.Duration `koanf:"access_token_validity"`
	RefreshTokenValidity            time.Duration `koanf:"refresh_token_validity"`
	AccessTokenSigningKeyDynamic    bool          `koanf:"access_token_signing_key_dynamic"`
	DynamicSigningKeyUpdateInterval time.Duration `koanf:"dynamic_signing_key_update_interval"`
	SigningAlgorithm                string        `koanf:"signing_algorithm"`
	MaxUserDataInJWTBytes           int           `koanf:"max_user_data_in_jwt_bytes"`

	// SigningKeyOverrideVersion is the first CDI version whose requests
	// choose the signing key through useDynamicSigningKey.
	SigningKeyOverrideVersion string `koanf:"signing_key_override_version"`

	// Issuer is the "iss" claim of access tokens. Empty omits it.
	Issuer string `koanf:"issuer"`

	LegacyKeys []LegacyKeyConfig `koanf:"legacy_keys"`
}

// LegacyKeyConfig is a retired public key still accepted for verification.
type LegacyKeyConfig struct {
	KeyID     string    `koanf:"key_id"`
	Algorithm string    `koanf:"algorithm"`
	PublicKey string    `koanf:"public_key"` // base64 PKIX DER
	ExpiresAt time.Time `koanf:"expires_at"`
}

// StorageSection selects the storage backend.
type StorageSection struct {
	// Type is "badger", "redis" or "memory".
	Type   string        `koanf:"type"`
	Badger BadgerSection `koanf:"badger"`
	Redis  RedisSection  `koanf:"redis"`
}

// BadgerSection configures the embedded store.
type BadgerSection struct {
	Dir         string        `koanf:"dir"`
	InMemory    bool          `koanf:"in_memory"`
	GCInterval  time.Duration `koanf:"gc_interval"`
	GCThreshold float64       `koanf:"gc_threshold"`
	SyncWrites  bool          `koanf:"sync_writes"`
}

// RedisSection configures the shared Redis store.
type RedisSection struct {
	Addr      string `koanf:"addr"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
	PoolSize  int    `koanf:"pool_size"`

	TLS RedisTLSSection `koanf:"tls"`
}

// RedisTLSSection configures TLS to Redis. CAFile replaces the system roots;
// CertFile and KeyFile present a client certificate.
type RedisTLSSection struct {
	Enabled            bool   `koanf:"enabled"`
	CAFile             string `koanf:"ca_file"`
	CertFile           string `koanf:"cert_file"`
	KeyFile            string `koanf:"key_file"`
	ServerName         string `koanf:"server_name"`
	InsecureSkipVerify bool   `koanf:"insecure_skip_verify"`
}

// CronSection configures background task intervals.
type CronSection struct {
	TelemetryInterval     time.Duration `koanf:"telemetry_interval"`
	SessionSweepInterval  time.Duration `koanf:"session_sweep_interval"`
	KeyRetirementInterval time.Duration `koanf:"key_retirement_interval"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TenantSection declares a tenant. Unset fields inherit the default
// tenant's values.
type TenantSection struct {
	ConnectionURIDomain string `koanf:"connection_uri_domain"`
	AppID               string `koanf:"app_id"`
	TenantID            string `koanf:"tenant_id"`

	APIKeys                         *string        `koanf:"api_keys"`
	AccessTokenValidity             *time.Duration `koanf:"access_token_validity"`
	RefreshTokenValidity            *time.Duration `koanf:"refresh_token_validity"`
	AccessTokenSigningKeyDynamic    *bool          `koanf:"access_token_signing_key_dynamic"`
	DynamicSigningKeyUpdateInterval *time.Duration `koanf:"dynamic_signing_key_update_interval"`
	SigningAlgorithm                *string        `koanf:"signing_algorithm"`
	MaxUserDataInJWTBytes           *int           `koanf:"max_user_data_in_jwt_bytes"`
	TelemetryDisabled               *bool          `koanf:"telemetry_disabled"`
	RateLimit                       *int           `koanf:"rate_limit"`
}
