package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/tenant"
	"github.com/yndnr/authcore-go/pkg/crypto/adaptive"
	"github.com/yndnr/authcore-go/pkg/token"
)

const (
	// RefreshTokenPrefix marks sealed refresh tokens.
	RefreshTokenPrefix = "acrt_"

	refreshKeyName        = "REFRESH_TOKEN_KEY"
	refreshCipherResource = "refresh_cipher"
	refreshCipherPurpose  = "refresh-token"
)

// RefreshPayload is the sealed content of a refresh token.
type RefreshPayload struct {
	SessionHandle string `json:"sessionHandle"`
	UserID        string `json:"userId"`
	AntiCsrfToken string `json:"antiCsrfToken,omitempty"`
	Nonce         string `json:"nonce"`
}

// RefreshSealer seals refresh tokens with a per-tenant AEAD key.
//
// The key is derived from a random secret kept in the tenant's key/value
// store, so every process sharing the store can open tokens issued by the
// others. Tokens sealed for one tenant do not open for another.
type RefreshSealer struct {
	kv        KeyValueRepository
	resources *tenant.Distributor
}

// NewRefreshSealer creates a sealer.
func NewRefreshSealer(kv KeyValueRepository, resources *tenant.Distributor) *RefreshSealer {
	return &RefreshSealer{kv: kv, resources: resources}
}

// Seal returns a new refresh token carrying p. A fresh nonce is always
// added, so sealing the same payload twice yields different tokens.
func (s *RefreshSealer) Seal(ctx context.Context, t domain.TenantIdentity, p RefreshPayload) (string, error) {
	c, err := s.cipher(ctx, t)
	if err != nil {
		return "", err
	}

	nonce, err := token.GenerateWithLength(16)
	if err != nil {
		return "", domain.ErrCrypto.WithDetails("refresh token nonce").WithCause(err)
	}
	p.Nonce = nonce

	plain, err := json.Marshal(p)
	if err != nil {
		return "", domain.ErrInternal.WithCause(err)
	}
	sealed, err := c.Encrypt(plain, []byte(t.StorageKey()))
	if err != nil {
		return "", domain.ErrCrypto.WithDetails("seal refresh token").WithCause(err)
	}
	return RefreshTokenPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decodes a refresh token. Anything that does not open is
// domain.ErrRefreshTokenInvalid.
func (s *RefreshSealer) Open(ctx context.Context, t domain.TenantIdentity, refreshToken string) (*RefreshPayload, error) {
	body, ok := strings.CutPrefix(refreshToken, RefreshTokenPrefix)
	if !ok {
		return nil, domain.ErrRefreshTokenInvalid
	}
	sealed, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, domain.ErrRefreshTokenInvalid
	}

	c, err := s.cipher(ctx, t)
	if err != nil {
		return nil, err
	}
	plain, err := c.Decrypt(sealed, []byte(t.StorageKey()))
	if err != nil {
		return nil, domain.ErrRefreshTokenInvalid
	}

	var p RefreshPayload
	if err := json.Unmarshal(plain, &p); err != nil || p.SessionHandle == "" {
		return nil, domain.ErrRefreshTokenInvalid
	}
	return &p, nil
}

func (s *RefreshSealer) cipher(ctx context.Context, t domain.TenantIdentity) (adaptive.Cipher, error) {
	return tenant.Resource(s.resources, t, refreshCipherResource, func() (adaptive.Cipher, error) {
		secret, err := token.Generate()
		if err != nil {
			return nil, domain.ErrCrypto.WithDetails("refresh secret").WithCause(err)
		}
		stored, err := s.kv.SetKeyValueIfAbsent(ctx, t, refreshKeyName, &domain.KeyValue{
			Value:     secret,
			CreatedAt: time.Now().UnixMilli(),
		})
		if err != nil {
			return nil, domain.StorageError("store refresh secret", err)
		}

		c, err := adaptive.NewDerived([]byte(stored.Value), []byte(t.StorageKey()), refreshCipherPurpose)
		if err != nil {
			return nil, domain.ErrCrypto.WithDetails("refresh cipher").WithCause(err)
		}
		return c, nil
	})
}
