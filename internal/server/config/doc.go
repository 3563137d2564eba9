// Package config defines the authcore server configuration.
//
//   - spec.go: ServerConfig and its sections
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: masking secrets before the config is logged or printed
//   - registry.go: the per-tenant view consumed by the core services
//
// Values are loaded by internal/infra/confloader from YAML, AUTHCORE_*
// environment variables and CLI overrides.
package config
