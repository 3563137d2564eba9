// Package domain defines the core domain models for authcore.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DomainError represents a business domain error with a structured error code.
//
// Codes follow the format AC-<AREA>-<status><n>. The three digits after the
// area are the HTTP status the dispatcher answers with, except for the 2xxx
// family, which marks soft failures reported inside a 200 response.
type DomainError struct {
	Code    string // Error code (e.g., "AC-SESS-2001")
	Message string // Human-readable message, safe to return to callers
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// WithMessage returns a copy of the error with a different public message.
func (e *DomainError) WithMessage(message string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: message,
		Details: e.Details,
		Cause:   e.Cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// AsDomainError returns the outermost DomainError in err's chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// ErrorKind is the coarse class of a failure, used for the final status mapping.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindTenantNotFound
	KindRateLimited
	KindSoft
	KindStorage
	KindCrypto
	KindFatal
)

// String returns the kind name used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindTenantNotFound:
		return "tenant_not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindSoft:
		return "soft"
	case KindStorage:
		return "storage"
	case KindCrypto:
		return "crypto"
	case KindFatal:
		return "fatal"
	default:
		return "internal"
	}
}

// KindOf classifies err. Anything that is not a DomainError is internal.
func KindOf(err error) ErrorKind {
	de, ok := AsDomainError(err)
	if !ok {
		return KindInternal
	}

	switch {
	case de.Code == ErrTenantNotFound.Code:
		return KindTenantNotFound
	case de.Code == ErrFatal.Code:
		return KindFatal
	case strings.HasPrefix(de.Code, "AC-CRYP-"):
		return KindCrypto
	case de.Code == ErrStorage.Code || de.Code == ErrStorageTransaction.Code:
		return KindStorage
	case strings.HasSuffix(de.Code, "-4290"):
		return KindRateLimited
	case strings.Contains(de.Code, "-401"):
		return KindUnauthorized
	case strings.Contains(de.Code, "-400"):
		return KindBadRequest
	case strings.Contains(de.Code, "-200"):
		return KindSoft
	default:
		return KindInternal
	}
}

// ============================================================================
// Request Errors (REQ, CDI)
// ============================================================================

var (
	// ErrBadRequest indicates malformed or missing input.
	ErrBadRequest = NewDomainError("AC-REQ-4000", "bad request")

	// ErrVersionNotProvided indicates a blank cdi-version header.
	ErrVersionNotProvided = NewDomainError("AC-CDI-4000", "cdi-version not provided")

	// ErrUnsupportedVersion indicates a cdi-version outside the allow-list.
	ErrUnsupportedVersion = NewDomainError("AC-CDI-4001", "cdi-version not supported")
)

// BadRequest returns an ErrBadRequest carrying message as its public text.
func BadRequest(message string) *DomainError {
	return ErrBadRequest.WithMessage(message)
}

// UnsupportedVersion returns the error for a version outside the allow-list.
func UnsupportedVersion(version string) *DomainError {
	return ErrUnsupportedVersion.WithMessage("cdi-version " + version + " not supported")
}

// ============================================================================
// Authentication Errors (AUTH)
// ============================================================================

var (
	// ErrInvalidAPIKey indicates a missing or unknown api-key header.
	ErrInvalidAPIKey = NewDomainError("AC-AUTH-4010", "Invalid API key")

	// ErrRateLimited indicates the tenant exceeded its request budget.
	ErrRateLimited = NewDomainError("AC-AUTH-4290", "Too many requests")
)

// ============================================================================
// Tenant Errors (TNT)
// ============================================================================

var (
	// ErrTenantNotFound indicates the addressed tenant is not configured.
	// Details carries the tenant id.
	ErrTenantNotFound = NewDomainError("AC-TNT-4000", "Tenant not found")
)

// TenantNotFound returns ErrTenantNotFound for the given tenant id.
func TenantNotFound(tenantID string) *DomainError {
	return ErrTenantNotFound.WithDetails(tenantID)
}

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrSessionUnauthorised indicates the session is gone, expired, or its
	// signing key was retired. Reported as a soft failure.
	ErrSessionUnauthorised = NewDomainError("AC-SESS-2001", "Session does not exist or has expired")

	// ErrSessionNotFound is returned by repositories for unknown handles.
	ErrSessionNotFound = NewDomainError("AC-SESS-2002", "session not found")

	// ErrSessionConflict indicates the session handle already exists.
	ErrSessionConflict = NewDomainError("AC-SESS-5090", "session handle conflict")
)

// ============================================================================
// Token Errors (TOKN)
// ============================================================================

var (
	// ErrAccessTokenPayload indicates userDataInJWT cannot be embedded.
	ErrAccessTokenPayload = NewDomainError("AC-TOKN-4001", "invalid access token payload")

	// ErrTryRefreshToken indicates the access token is expired or cannot be
	// verified and the client should refresh.
	ErrTryRefreshToken = NewDomainError("AC-TOKN-2001", "Try refresh token")

	// ErrTokenTheftDetected indicates a refresh token that is neither the
	// current nor the parent token of its session.
	ErrTokenTheftDetected = NewDomainError("AC-TOKN-2002", "Token theft detected")

	// ErrRefreshTokenInvalid indicates a refresh token that does not unseal.
	ErrRefreshTokenInvalid = NewDomainError("AC-TOKN-2003", "Refresh token invalid")
)

// AccessTokenPayloadError returns ErrAccessTokenPayload with message as its public text.
func AccessTokenPayloadError(message string) *DomainError {
	return ErrAccessTokenPayload.WithMessage(message)
}

// ============================================================================
// Key/value Errors (KV)
// ============================================================================

var (
	// ErrKeyValueNotFound is returned by repositories for unknown keys.
	ErrKeyValueNotFound = NewDomainError("AC-KV-2004", "key not found")

	// ErrSigningKeyNotFound is returned when a tenant has no static key yet.
	ErrSigningKeyNotFound = NewDomainError("AC-KEYS-2004", "signing key not found")
)

// ============================================================================
// System Errors (SYS, CRYP)
// ============================================================================

var (
	// ErrInternal indicates an unclassified internal error.
	ErrInternal = NewDomainError("AC-SYS-5000", "Internal Error")

	// ErrStorage indicates the storage collaborator failed a query.
	ErrStorage = NewDomainError("AC-SYS-5001", "storage query failed")

	// ErrStorageTransaction indicates a storage transaction could not commit.
	ErrStorageTransaction = NewDomainError("AC-SYS-5002", "storage transaction failed")

	// ErrCrypto indicates a signing or verification failure not caused by input.
	ErrCrypto = NewDomainError("AC-CRYP-5000", "crypto operation failed")

	// ErrFatal indicates the process must shut down.
	ErrFatal = NewDomainError("AC-SYS-5990", "fatal condition")
)

// StorageError wraps a storage collaborator failure.
func StorageError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	if IsDomainError(cause, "") {
		return cause
	}
	return ErrStorage.WithDetails(op).WithCause(cause)
}
