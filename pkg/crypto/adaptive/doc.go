// Package adaptive provides authenticated encryption with automatic
// algorithm selection.
//
// Supported algorithms:
//
//   - AES-256-GCM: preferred when hardware AES support is available
//   - ChaCha20-Poly1305: fallback for other architectures
//
// The nonce is generated per call and prepended to the ciphertext, so a
// sealed value is self-contained. NewDerived builds a cipher from a long-lived
// secret with HKDF-SHA256, binding the key to a purpose string; authcore uses
// it to seal refresh tokens with a per-tenant key.
//
// Usage:
//
//	c, err := adaptive.NewDerived(secret, []byte("tenant|public|public"), "refresh-token")
//	sealed, err := c.Encrypt(plaintext, aad)
//	plaintext, err := c.Decrypt(sealed, aad)
package adaptive
