// Package tenant holds the two pieces of per-tenant plumbing every request
// passes through.
//
// Resolver derives a domain.TenantIdentity from the request host and path.
// Resolution never fails: a path without a tenant segment, or with the
// segment "public", addresses the default tenant. Unknown tenants are
// rejected later by the tenant registry.
//
// Distributor is the process-wide registry of tenant-scoped resources
// (signing key rings, rate limiters, scheduled tasks). Each (tenant, key)
// pair is built at most once; construction is serialized per key so that
// unrelated tenants never wait on each other.
package tenant
