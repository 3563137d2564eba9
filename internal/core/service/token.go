package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yndnr/authcore-go/internal/core/domain"
)

// Access token payload formats.
const (
	// PayloadNested keeps user data under the "userData" claim (CDI < 2.21).
	PayloadNested = 2

	// PayloadFlat merges user data into the top-level claims (CDI >= 2.21).
	PayloadFlat = 3
)

// protectedClaims may not be set through userDataInJWT in the flat format.
var protectedClaims = []string{
	"sub", "iat", "exp", "iss",
	"sessionHandle", "refreshTokenHash1", "parentRefreshTokenHash1",
	"antiCsrfToken", "tId",
}

var errUnknownSigningKey = errors.New("signing key not in verification set")

// AccessTokenInfo is the content of an access token.
type AccessTokenInfo struct {
	SessionHandle           string
	UserID                  string
	RefreshTokenHash1       string
	ParentRefreshTokenHash1 string
	UserData                json.RawMessage
	AntiCsrfToken           string
	ExpiryTime              int64 // Unix milliseconds
	TimeCreated             int64 // Unix milliseconds
	TenantID                string
	KeyID                   string
	Format                  int
}

// KeyLookup resolves a key id to a verification key. ok is false when the
// key is not (or no longer) in the verification set.
type KeyLookup func(kid string) (key *domain.SigningKey, ok bool, err error)

// TokenCodec signs and parses access token JWTs.
type TokenCodec struct {
	issuer string
}

// NewTokenCodec creates a codec. issuer, when set, is added as the "iss"
// claim of flat tokens.
func NewTokenCodec(issuer string) *TokenCodec {
	return &TokenCodec{issuer: issuer}
}

// Sign encodes info as a JWT signed with key.
func (c *TokenCodec) Sign(info *AccessTokenInfo, key *domain.SigningKey) (string, error) {
	claims, err := c.claims(info)
	if err != nil {
		return "", err
	}

	method, err := signingMethod(key.Algorithm)
	if err != nil {
		return "", err
	}
	signer, err := parsePrivateKey(key)
	if err != nil {
		return "", err
	}

	tok := jwt.NewWithClaims(method, claims)
	tok.Header["kid"] = key.KeyID
	tok.Header["version"] = strconv.Itoa(info.Format)

	signed, err := tok.SignedString(signer)
	if err != nil {
		return "", domain.ErrCrypto.WithDetails("sign access token").WithCause(err)
	}
	return signed, nil
}

// Parse verifies the signature of tokenString and decodes its claims.
// Expiry is not checked here.
//
// Any verification failure is domain.ErrTryRefreshToken; failures of the key
// lookup itself pass through unchanged.
func (c *TokenCodec) Parse(tokenString string, lookup KeyLookup) (*AccessTokenInfo, error) {
	var lookupErr error
	keyFunc := func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok, err := lookup(kid)
		if err != nil {
			lookupErr = err
			return nil, err
		}
		if !ok {
			return nil, errUnknownSigningKey
		}
		if key.Algorithm != t.Method.Alg() {
			return nil, fmt.Errorf("key %s is %s, token is %s", kid, key.Algorithm, t.Method.Alg())
		}
		return parsePublicKey(key)
	}

	tok, err := jwt.Parse(tokenString, keyFunc,
		jwt.WithValidMethods([]string{domain.AlgorithmRS256, domain.AlgorithmEdDSA}),
		jwt.WithoutClaimsValidation(),
		jwt.WithJSONNumber(),
	)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if err != nil {
		return nil, domain.ErrTryRefreshToken.WithCause(err)
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, domain.ErrTryRefreshToken.WithDetails("unexpected claims type")
	}
	kid, _ := tok.Header["kid"].(string)
	version, _ := tok.Header["version"].(string)

	info, err := decodeClaims(claims, version == strconv.Itoa(PayloadFlat))
	if err != nil {
		return nil, domain.ErrTryRefreshToken.WithCause(err)
	}
	info.KeyID = kid
	return info, nil
}

func (c *TokenCodec) claims(info *AccessTokenInfo) (jwt.MapClaims, error) {
	if info.Format != PayloadFlat {
		claims := jwt.MapClaims{
			"sessionHandle":     info.SessionHandle,
			"userId":            info.UserID,
			"refreshTokenHash1": info.RefreshTokenHash1,
			"userData":          userDataOrEmpty(info.UserData),
			"expiryTime":        info.ExpiryTime,
			"timeCreated":       info.TimeCreated,
			"tId":               info.TenantID,
		}
		setIfNotEmpty(claims, "parentRefreshTokenHash1", info.ParentRefreshTokenHash1)
		setIfNotEmpty(claims, "antiCsrfToken", info.AntiCsrfToken)
		return claims, nil
	}

	var claims jwt.MapClaims
	if len(bytes.TrimSpace(info.UserData)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(info.UserData))
		dec.UseNumber()
		if err := dec.Decode(&claims); err != nil {
			return nil, domain.AccessTokenPayloadError("userDataInJWT must be a JSON object")
		}
	}
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	for _, name := range protectedClaims {
		if _, taken := claims[name]; taken {
			return nil, domain.AccessTokenPayloadError("The user payload contains protected field: " + name)
		}
	}

	claims["sub"] = info.UserID
	claims["iat"] = info.TimeCreated / 1000
	// Rounded up so the token does not expire before the millisecond expiry
	// reported to the client.
	claims["exp"] = (info.ExpiryTime + 999) / 1000
	claims["sessionHandle"] = info.SessionHandle
	claims["refreshTokenHash1"] = info.RefreshTokenHash1
	claims["tId"] = info.TenantID
	setIfNotEmpty(claims, "parentRefreshTokenHash1", info.ParentRefreshTokenHash1)
	setIfNotEmpty(claims, "antiCsrfToken", info.AntiCsrfToken)
	setIfNotEmpty(claims, "iss", c.issuer)
	return claims, nil
}

func decodeClaims(claims jwt.MapClaims, flat bool) (*AccessTokenInfo, error) {
	info := &AccessTokenInfo{
		SessionHandle:           stringClaim(claims, "sessionHandle"),
		RefreshTokenHash1:       stringClaim(claims, "refreshTokenHash1"),
		ParentRefreshTokenHash1: stringClaim(claims, "parentRefreshTokenHash1"),
		AntiCsrfToken:           stringClaim(claims, "antiCsrfToken"),
		TenantID:                stringClaim(claims, "tId"),
	}

	if !flat {
		info.Format = PayloadNested
		info.UserID = stringClaim(claims, "userId")
		info.ExpiryTime = intClaim(claims, "expiryTime")
		info.TimeCreated = intClaim(claims, "timeCreated")
		raw, err := json.Marshal(claims["userData"])
		if err != nil {
			return nil, err
		}
		info.UserData = raw
	} else {
		info.Format = PayloadFlat
		info.UserID = stringClaim(claims, "sub")
		info.ExpiryTime = intClaim(claims, "exp") * 1000
		info.TimeCreated = intClaim(claims, "iat") * 1000

		user := make(map[string]any, len(claims))
		for k, v := range claims {
			user[k] = v
		}
		for _, name := range protectedClaims {
			delete(user, name)
		}
		raw, err := json.Marshal(user)
		if err != nil {
			return nil, err
		}
		info.UserData = raw
	}

	if info.SessionHandle == "" || info.UserID == "" {
		return nil, errors.New("access token lacks session claims")
	}
	return info, nil
}

func signingMethod(algorithm string) (jwt.SigningMethod, error) {
	switch algorithm {
	case domain.AlgorithmRS256:
		return jwt.SigningMethodRS256, nil
	case domain.AlgorithmEdDSA:
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, domain.ErrCrypto.WithDetails("unsupported signing algorithm " + algorithm)
	}
}

func userDataOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}

func setIfNotEmpty(claims jwt.MapClaims, name, value string) {
	if value != "" {
		claims[name] = value
	}
}

func stringClaim(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

func intClaim(claims jwt.MapClaims, name string) int64 {
	switch v := claims[name].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, _ := v.Float64()
			return int64(f)
		}
		return n
	case float64:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}
