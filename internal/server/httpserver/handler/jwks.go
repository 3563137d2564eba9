package handler

import (
	"crypto/x509"
	"encoding/json"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/yndnr/authcore-go/internal/core/domain"
)

// jwksCacheControl lets clients cache the key set for a minute; new dynamic
// keys sign only after they are published.
const jwksCacheControl = "max-age=60, must-revalidate"

// jwks handles GET /recipe/jwt/jwks.
func (h *Handler) jwks(w http.ResponseWriter, r *Request) error {
	keys, err := h.keys.VerificationKeys(r.Context(), r.Tenant, r.Config)
	if err != nil {
		return err
	}

	set, err := BuildKeySet(keys)
	if err != nil {
		return err
	}
	body, err := json.Marshal(set)
	if err != nil {
		return domain.ErrCrypto.WithDetails("encode jwks").WithCause(err)
	}

	w.Header().Set("Content-Type", ContentTypeJSON)
	w.Header().Set("Cache-Control", jwksCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return nil
}

// BuildKeySet converts verification keys to a JWK set, in order.
func BuildKeySet(keys []*domain.SigningKey) (jwk.Set, error) {
	set := jwk.NewSet()
	for _, k := range keys {
		pub, err := x509.ParsePKIXPublicKey(k.PublicKey)
		if err != nil {
			return nil, domain.ErrCrypto.WithDetails("parse public key " + k.KeyID).WithCause(err)
		}
		key, err := jwk.FromRaw(pub)
		if err != nil {
			return nil, domain.ErrCrypto.WithDetails("jwk from key " + k.KeyID).WithCause(err)
		}
		if err := key.Set(jwk.KeyIDKey, k.KeyID); err != nil {
			return nil, domain.ErrCrypto.WithCause(err)
		}
		if err := key.Set(jwk.AlgorithmKey, jwa.SignatureAlgorithm(k.Algorithm)); err != nil {
			return nil, domain.ErrCrypto.WithCause(err)
		}
		if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
			return nil, domain.ErrCrypto.WithCause(err)
		}
		if err := set.AddKey(key); err != nil {
			return nil, domain.ErrCrypto.WithDetails("add key " + k.KeyID).WithCause(err)
		}
	}
	return set, nil
}
