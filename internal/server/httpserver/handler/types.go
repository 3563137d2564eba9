package handler

import (
	"encoding/json"

	"github.com/yndnr/authcore-go/internal/core/service"
)

// ===== Requests =====

// CreateSessionRequest is the body of POST /recipe/session.
type CreateSessionRequest struct {
	UserID               string          `json:"userId"`
	EnableAntiCsrf       *bool           `json:"enableAntiCsrf"`
	UserDataInJWT        json.RawMessage `json:"userDataInJWT"`
	UserDataInDatabase   json.RawMessage `json:"userDataInDatabase"`
	UseDynamicSigningKey *bool           `json:"useDynamicSigningKey,omitempty"`
}

// VerifySessionRequest is the body of POST /recipe/session/verify.
type VerifySessionRequest struct {
	AccessToken     string `json:"accessToken"`
	AntiCsrfToken   string `json:"antiCsrfToken,omitempty"`
	DoAntiCsrfCheck bool   `json:"doAntiCsrfCheck"`
	EnableAntiCsrf  bool   `json:"enableAntiCsrf"`
	CheckDatabase   bool   `json:"checkDatabase"`
}

// RefreshSessionRequest is the body of POST /recipe/session/refresh.
type RefreshSessionRequest struct {
	RefreshToken   string `json:"refreshToken"`
	EnableAntiCsrf bool   `json:"enableAntiCsrf"`
	AntiCsrfToken  string `json:"antiCsrfToken,omitempty"`
}

// RemoveSessionsRequest is the body of POST /recipe/session/remove. One of
// UserID and SessionHandles must be set.
type RemoveSessionsRequest struct {
	UserID         string   `json:"userId,omitempty"`
	SessionHandles []string `json:"sessionHandles,omitempty"`
}

// UpdateSessionDataRequest is the body of PUT /recipe/session/data.
type UpdateSessionDataRequest struct {
	SessionHandle      string          `json:"sessionHandle"`
	UserDataInDatabase json.RawMessage `json:"userDataInDatabase"`
}

// UpdateUserMetadataRequest is the body of PUT /recipe/user/metadata.
type UpdateUserMetadataRequest struct {
	UserID         string                     `json:"userId"`
	MetadataUpdate map[string]json.RawMessage `json:"metadataUpdate"`
}

// RemoveUserMetadataRequest is the body of POST /recipe/user/metadata/remove.
type RemoveUserMetadataRequest struct {
	UserID string `json:"userId"`
}

// ===== Responses =====

type statusResponse struct {
	Status string `json:"status"`
}

type messageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type theftSession struct {
	Handle string `json:"handle"`
	UserID string `json:"userId"`
}

type tokenTheftResponse struct {
	Status  string       `json:"status"`
	Session theftSession `json:"session"`
}

// SessionInfo is the session object embedded in token responses.
type SessionInfo struct {
	Handle        string          `json:"handle"`
	UserID        string          `json:"userId"`
	UserDataInJWT json.RawMessage `json:"userDataInJWT"`
	TenantID      string          `json:"tenantId"`
}

// LegacyKeyFields are the deprecated signing key fields sent to clients
// older than CDI 2.21.
type LegacyKeyFields struct {
	JWTSigningPublicKey           string                   `json:"jwtSigningPublicKey,omitempty"`
	JWTSigningPublicKeyExpiryTime int64                    `json:"jwtSigningPublicKeyExpiryTime,omitempty"`
	JWTSigningPublicKeyList       []service.LegacyKeyEntry `json:"jwtSigningPublicKeyList,omitempty"`
}

// SessionTokensResponse answers create and refresh.
type SessionTokensResponse struct {
	Status         string             `json:"status"`
	Session        SessionInfo        `json:"session"`
	AccessToken    *service.TokenInfo `json:"accessToken"`
	RefreshToken   *service.TokenInfo `json:"refreshToken"`
	IDRefreshToken *service.TokenInfo `json:"idRefreshToken,omitempty"`
	AntiCsrfToken  string             `json:"antiCsrfToken,omitempty"`
	LegacyKeyFields
}

// VerifySessionResponse answers verify.
type VerifySessionResponse struct {
	Status  string      `json:"status"`
	Session SessionInfo `json:"session"`
	LegacyKeyFields
}

// GetSessionResponse answers GET /recipe/session.
type GetSessionResponse struct {
	Status             string          `json:"status"`
	SessionHandle      string          `json:"sessionHandle"`
	UserID             string          `json:"userId"`
	UserDataInDatabase json.RawMessage `json:"userDataInDatabase"`
	UserDataInJWT      json.RawMessage `json:"userDataInJWT"`
	Expiry             int64           `json:"expiry"`
	TimeCreated        int64           `json:"timeCreated"`
	TenantID           string          `json:"tenantId"`
}

// SessionHandlesResponse answers GET /recipe/session/user.
type SessionHandlesResponse struct {
	Status         string   `json:"status"`
	SessionHandles []string `json:"sessionHandles"`
}

// RemoveSessionsResponse answers POST /recipe/session/remove.
type RemoveSessionsResponse struct {
	Status                string   `json:"status"`
	SessionHandlesRevoked []string `json:"sessionHandlesRevoked"`
}

// UserMetadataResponse answers the metadata reads and updates.
type UserMetadataResponse struct {
	Status   string                     `json:"status"`
	Metadata map[string]json.RawMessage `json:"metadata"`
}
