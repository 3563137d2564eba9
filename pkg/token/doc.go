// Package token provides random token generation and hashing utilities.
//
// Generated values are Base64 RawURL encoded output of crypto/rand. Hashes are
// hex-encoded SHA-256. Comparisons of secrets (hashes, API keys) go through
// constant-time helpers.
//
// Refresh tokens are never persisted: the session row stores the hash of the
// hash of the token, while the access token carries the single hash. A leaked
// access token therefore cannot be turned into the stored value's preimage.
package token
