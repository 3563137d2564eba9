package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

var (
	apiKeyPattern   = regexp.MustCompile(`^[a-zA-Z0-9=-]{20,}$`)
	tenantIDPattern = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// Verify validates the configuration and returns every problem found.
func Verify(cfg *ServerConfig) error {
	var errs []error
	errs = append(errs, verifyServer(&cfg.Server)...)
	errs = append(errs, verifyAPI(&cfg.API)...)
	errs = append(errs, verifyAPIKeys("core.api_keys", cfg.Core.APIKeys)...)
	if cfg.Core.RateLimit < 0 {
		errs = append(errs, errors.New("core.rate_limit must not be negative"))
	}
	errs = append(errs, verifySession(&cfg.Session)...)
	errs = append(errs, verifyStorage(&cfg.Storage)...)
	errs = append(errs, verifyTenants(cfg)...)
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level))
	}
	return errors.Join(errs...)
}

func verifyServer(cfg *ServerSection) []error {
	var errs []error
	if cfg.HTTP.Addr == "" {
		errs = append(errs, errors.New("server.http.addr is required"))
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.http.tls_cert_file and tls_key_file must be set together"))
	}
	return errs
}

func verifyAPI(cfg *APISection) []error {
	var errs []error
	if cfg.BasePath != "" && (!strings.HasPrefix(cfg.BasePath, "/") || strings.HasSuffix(cfg.BasePath, "/")) {
		errs = append(errs, fmt.Errorf("api.base_path %q must start with / and not end with /", cfg.BasePath))
	}
	if len(cfg.SupportedVersions) == 0 {
		errs = append(errs, errors.New("api.supported_versions must not be empty"))
	}
	for _, v := range cfg.SupportedVersions {
		if _, err := domain.ParseProtocolVersion(v); err != nil {
			errs = append(errs, fmt.Errorf("api.supported_versions: %w", err))
		}
	}
	return errs
}

func verifyAPIKeys(field, keys string) []error {
	var errs []error
	for _, k := range SplitAPIKeys(keys) {
		if !apiKeyPattern.MatchString(k) {
			errs = append(errs, fmt.Errorf("%s: keys need at least 20 characters from a-z, A-Z, 0-9, '=' and '-'", field))
			break
		}
	}
	return errs
}

func verifySession(cfg *SessionSection) []error {
	var errs []error
	if cfg.AccessTokenValidity <= 0 {
		errs = append(errs, errors.New("session.access_token_validity must be positive"))
	}
	if cfg.RefreshTokenValidity <= cfg.AccessTokenValidity {
		errs = append(errs, errors.New("session.refresh_token_validity must be greater than access_token_validity"))
	}
	if cfg.DynamicSigningKeyUpdateInterval < 0 {
		errs = append(errs, errors.New("session.dynamic_signing_key_update_interval must not be negative"))
	}
	if !validAlgorithm(cfg.SigningAlgorithm) {
		errs = append(errs, fmt.Errorf("session.signing_algorithm %q is not RS256 or EdDSA", cfg.SigningAlgorithm))
	}
	if cfg.MaxUserDataInJWTBytes <= 0 {
		errs = append(errs, errors.New("session.max_user_data_in_jwt_bytes must be positive"))
	}
	if _, err := domain.ParseProtocolVersion(cfg.SigningKeyOverrideVersion); err != nil {
		errs = append(errs, fmt.Errorf("session.signing_key_override_version: %w", err))
	}
	for i, k := range cfg.LegacyKeys {
		if k.KeyID == "" {
			errs = append(errs, fmt.Errorf("session.legacy_keys[%d].key_id is required", i))
		}
		if !validAlgorithm(k.Algorithm) {
			errs = append(errs, fmt.Errorf("session.legacy_keys[%d].algorithm %q is not RS256 or EdDSA", i, k.Algorithm))
		}
		if _, err := base64.StdEncoding.DecodeString(k.PublicKey); err != nil || k.PublicKey == "" {
			errs = append(errs, fmt.Errorf("session.legacy_keys[%d].public_key must be base64 PKIX DER", i))
		}
	}
	return errs
}

func verifyStorage(cfg *StorageSection) []error {
	switch cfg.Type {
	case "memory":
	case "badger":
		if cfg.Badger.Dir == "" && !cfg.Badger.InMemory {
			return []error{errors.New("storage.badger.dir is required")}
		}
		if cfg.Badger.GCThreshold < 0 || cfg.Badger.GCThreshold >= 1 {
			return []error{errors.New("storage.badger.gc_threshold must be in [0, 1)")}
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			return []error{errors.New("storage.redis.addr is required")}
		}
		if tls := cfg.Redis.TLS; (tls.CertFile == "") != (tls.KeyFile == "") {
			return []error{errors.New("storage.redis.tls.cert_file and key_file must be set together")}
		}
	default:
		return []error{fmt.Errorf("storage.type %q is not badger, redis or memory", cfg.Type)}
	}
	return nil
}

func verifyTenants(cfg *ServerConfig) []error {
	var errs []error
	seen := make(map[domain.TenantIdentity]bool)
	for i, ts := range cfg.Tenants {
		id := strings.ToLower(strings.TrimSpace(ts.TenantID))
		if id != "" && !tenantIDPattern.MatchString(id) {
			errs = append(errs, fmt.Errorf("tenants[%d].tenant_id %q may only contain a-z, 0-9 and '-'", i, ts.TenantID))
			continue
		}
		t := ts.Identity()
		if seen[t] {
			errs = append(errs, fmt.Errorf("tenants[%d]: %s is declared twice", i, t))
		}
		seen[t] = true

		if ts.APIKeys != nil {
			errs = append(errs, verifyAPIKeys(fmt.Sprintf("tenants[%d].api_keys", i), *ts.APIKeys)...)
		}
		if ts.SigningAlgorithm != nil && !validAlgorithm(*ts.SigningAlgorithm) {
			errs = append(errs, fmt.Errorf("tenants[%d].signing_algorithm %q is not RS256 or EdDSA", i, *ts.SigningAlgorithm))
		}
		if ts.RateLimit != nil && *ts.RateLimit < 0 {
			errs = append(errs, fmt.Errorf("tenants[%d].rate_limit must not be negative", i))
		}
	}
	return errs
}

func validAlgorithm(alg string) bool {
	return alg == domain.AlgorithmRS256 || alg == domain.AlgorithmEdDSA
}

// SplitAPIKeys parses the comma-separated api_keys setting.
func SplitAPIKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
