// Package logger provides structured logging for authcore.
//
// It wraps log/slog behind a small Logger interface:
//
//   - logger.go: construction, dynamic level and the process-wide default
//   - context.go: request ID and tenant propagation through context.Context
//   - redact.go: masking of access tokens, refresh tokens and secrets
//
// Every record passes through the redaction hook, so handlers may log request
// fields without pre-filtering them. Access tokens (JWTs) and sealed refresh
// tokens are partially masked; attributes whose key names a secret are fully
// replaced.
package logger
