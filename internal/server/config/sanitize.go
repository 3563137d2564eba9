package config

import "strings"

// Sanitize returns a copy of cfg with secrets masked, for logging and for
// "config check" output.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	sanitized.Core.APIKeys = maskList(cfg.Core.APIKeys)
	if sanitized.Storage.Redis.Password != "" {
		sanitized.Storage.Redis.Password = maskSecret(sanitized.Storage.Redis.Password)
	}

	sanitized.Tenants = make([]TenantSection, len(cfg.Tenants))
	for i, ts := range cfg.Tenants {
		if ts.APIKeys != nil {
			masked := maskList(*ts.APIKeys)
			ts.APIKeys = &masked
		}
		sanitized.Tenants[i] = ts
	}
	return &sanitized
}

func maskList(keys string) string {
	parts := SplitAPIKeys(keys)
	for i, k := range parts {
		parts[i] = maskSecret(k)
	}
	return strings.Join(parts, ",")
}

// maskSecret keeps the first and last two characters.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
