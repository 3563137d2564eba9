package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// AESGCM is AES-256-GCM.
type AESGCM struct {
	aeadCipher
}

// NewAESGCM creates an AES-256-GCM cipher. The key must be KeySize bytes.
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("aes-gcm: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCM{aeadCipher{aead: aead}}, nil
}

// Type implements Cipher.
func (c *AESGCM) Type() CipherType { return CipherAESGCM }
