// Package service implements the session and token core of authcore.
//
// Services hold the business rules and talk to storage only through the
// repository interfaces declared in repository.go. Tenant-scoped state that
// lives in process (signing key rings, rate limiters) is obtained through
// tenant.Distributor, never through package-level globals.
//
// This package contains:
//
//   - AccessGate: optional per-tenant API key check and rate limiting
//   - VersionNegotiator: CDI version allow-list and defaulting
//   - SigningKeyManager: static, dynamic and legacy JWT keys per tenant
//   - TokenCodec and RefreshSealer: access token JWTs and sealed refresh tokens
//   - SessionService: create, get, verify, refresh and revoke sessions
//   - MetadataService: per-user JSON metadata
//   - TelemetryReporter: the daily anonymous usage ping
//
// Services are safe for concurrent use.
package service
