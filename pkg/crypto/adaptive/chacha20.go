package adaptive

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ChaCha20 is ChaCha20-Poly1305.
type ChaCha20 struct {
	aeadCipher
}

// NewChaCha20 creates a ChaCha20-Poly1305 cipher. The key must be KeySize
// bytes.
func NewChaCha20(key []byte) (*ChaCha20, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("chacha20-poly1305: key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &ChaCha20{aeadCipher{aead: aead}}, nil
}

// Type implements Cipher.
func (c *ChaCha20) Type() CipherType { return CipherChaCha20 }
