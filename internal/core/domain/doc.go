// Package domain defines the core domain models for authcore.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - TenantIdentity and TenantConfig: tenant addressing and per-tenant settings
//   - Session: the persisted session row
//   - SigningKey and KeyRotationPolicy: JWT key material and its lifecycle
//   - ProtocolVersion: CDI versions and the feature predicates gated on them
//   - Errors: the error taxonomy mapped to transport responses
package domain
