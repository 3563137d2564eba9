package config

import (
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
)

// Default configuration values.
const (
	DefaultHTTPAddr          = "127.0.0.1:3567"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second

	DefaultAccessTokenValidity             = time.Hour
	DefaultRefreshTokenValidity            = 100 * 24 * time.Hour
	DefaultDynamicSigningKeyUpdateInterval = 7 * 24 * time.Hour
	DefaultSigningAlgorithm                = domain.AlgorithmRS256
	DefaultMaxUserDataInJWTBytes           = 16 << 10
	DefaultSigningKeyOverrideVersion       = "2.21"

	DefaultStorageType      = "badger"
	DefaultBadgerDir        = "/var/lib/authcore/data"
	DefaultBadgerGCInterval = 10 * time.Minute
	DefaultRedisAddr        = "127.0.0.1:6379"
	DefaultRedisKeyPrefix   = "authcore"

	DefaultTelemetryInterval     = 24 * time.Hour
	DefaultSessionSweepInterval  = 12 * time.Hour
	DefaultKeyRetirementInterval = time.Hour

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:              DefaultHTTPAddr,
				ReadHeaderTimeout: DefaultReadHeaderTimeout,
				ShutdownTimeout:   DefaultShutdownTimeout,
			},
		},
		API: APISection{
			SupportedVersions: append([]string(nil), domain.DefaultSupportedVersions...),
		},
		Session: SessionSection{
			AccessTokenValidity:             DefaultAccessTokenValidity,
			RefreshTokenValidity:            DefaultRefreshTokenValidity,
			AccessTokenSigningKeyDynamic:    true,
			DynamicSigningKeyUpdateInterval: DefaultDynamicSigningKeyUpdateInterval,
			SigningAlgorithm:                DefaultSigningAlgorithm,
			MaxUserDataInJWTBytes:           DefaultMaxUserDataInJWTBytes,
			SigningKeyOverrideVersion:       DefaultSigningKeyOverrideVersion,
		},
		Storage: StorageSection{
			Type: DefaultStorageType,
			Badger: BadgerSection{
				Dir:         DefaultBadgerDir,
				GCInterval:  DefaultBadgerGCInterval,
				GCThreshold: 0.5,
				SyncWrites:  true,
			},
			Redis: RedisSection{
				Addr:      DefaultRedisAddr,
				KeyPrefix: DefaultRedisKeyPrefix,
			},
		},
		Cron: CronSection{
			TelemetryInterval:     DefaultTelemetryInterval,
			SessionSweepInterval:  DefaultSessionSweepInterval,
			KeyRetirementInterval: DefaultKeyRetirementInterval,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
