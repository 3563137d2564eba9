// Package handler implements the recipe endpoints of authcore-server.
//
// Every recipe endpoint runs through the same dispatcher:
//
//   - resolve the tenant from the Host header and path
//   - check the api-key header against the tenant's keys
//   - negotiate the cdi-version header
//   - run the endpoint and write exactly one response
//
// Failures are mapped to responses in one place (errors.go). Soft outcomes
// such as UNAUTHORISED or TRY_REFRESH_TOKEN are 200 responses with a status
// field; everything else is a text body with an HTTP error status.
//
// Files:
//
//   - session.go: create, get, remove, list and data update
//   - token.go: verify and refresh
//   - jwks.go: the tenant's JSON Web Key Set
//   - metadata.go: user metadata
//   - health.go: /hello and /health
package handler
