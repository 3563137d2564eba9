package adaptive

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the key size used by both supported ciphers.
const KeySize = 32

// DeriveKey expands secret into a KeySize key bound to salt and info.
func DeriveKey(secret, salt []byte, info string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty secret")
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// NewDerived creates an adaptive cipher keyed by DeriveKey(secret, salt, info).
func NewDerived(secret, salt []byte, info string) (Cipher, error) {
	key, err := DeriveKey(secret, salt, info)
	if err != nil {
		return nil, err
	}
	return New(key)
}
