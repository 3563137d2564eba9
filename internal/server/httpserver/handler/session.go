package handler

import (
	"net/http"
	"strings"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
)

// createSession handles POST /recipe/session.
func (h *Handler) createSession(w http.ResponseWriter, r *Request) error {
	var body CreateSessionRequest
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if strings.TrimSpace(body.UserID) == "" {
		return invalidField("userId")
	}
	if !isJSONObject(body.UserDataInJWT) {
		return invalidField("userDataInJWT")
	}
	if !isJSONObject(body.UserDataInDatabase) {
		return invalidField("userDataInDatabase")
	}
	if body.EnableAntiCsrf == nil {
		return invalidField("enableAntiCsrf")
	}

	useStatic := service.UseStaticSigningKey(r.Config, r.Version, h.tenants.SigningKeyOverrideVersion(), body.UseDynamicSigningKey)
	result, err := h.sessions.CreateSession(r.Context(), r.Tenant, &service.CreateSessionRequest{
		UserID:              body.UserID,
		UserDataInJWT:       body.UserDataInJWT,
		UserDataInDatabase:  body.UserDataInDatabase,
		EnableAntiCsrf:      *body.EnableAntiCsrf,
		UseStaticSigningKey: useStatic,
		Version:             r.Version,
	})
	if err != nil {
		return err
	}
	return h.writeSessionTokens(w, r, result)
}

// getSession handles GET /recipe/session?sessionHandle=.
func (h *Handler) getSession(w http.ResponseWriter, r *Request) error {
	handle := r.URL.Query().Get("sessionHandle")
	if handle == "" {
		return missingQuery("sessionHandle")
	}

	sess, err := h.sessions.GetSession(r.Context(), r.Tenant, handle)
	if err != nil {
		return err
	}

	writeJSON(w, GetSessionResponse{
		Status:             StatusOK,
		SessionHandle:      sess.Handle,
		UserID:             sess.UserID,
		UserDataInDatabase: sess.UserDataInDatabase,
		UserDataInJWT:      sess.UserDataInJWT,
		Expiry:             sess.ExpiresAt,
		TimeCreated:        sess.CreatedAt,
		TenantID:           r.Tenant.TenantIDOrDefault(),
	})
	return nil
}

// removeSessions handles POST /recipe/session/remove.
func (h *Handler) removeSessions(w http.ResponseWriter, r *Request) error {
	var body RemoveSessionsRequest
	if err := decodeBody(r, &body); err != nil {
		return err
	}

	var (
		revoked []string
		err     error
	)
	switch {
	case body.UserID != "":
		revoked, err = h.sessions.RevokeAllForUser(r.Context(), r.Tenant, body.UserID)
	case body.SessionHandles != nil:
		revoked, err = h.sessions.RevokeSessions(r.Context(), r.Tenant, body.SessionHandles)
	default:
		return domain.BadRequest("Invalid JSON input: userId or sessionHandles must be provided")
	}
	if err != nil {
		return err
	}

	writeJSON(w, RemoveSessionsResponse{Status: StatusOK, SessionHandlesRevoked: revoked})
	return nil
}

// userSessions handles GET /recipe/session/user?userId=.
func (h *Handler) userSessions(w http.ResponseWriter, r *Request) error {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		return missingQuery("userId")
	}

	handles, err := h.sessions.ListSessionHandles(r.Context(), r.Tenant, userID)
	if err != nil {
		return err
	}

	writeJSON(w, SessionHandlesResponse{Status: StatusOK, SessionHandles: handles})
	return nil
}

// updateSessionData handles PUT /recipe/session/data.
func (h *Handler) updateSessionData(w http.ResponseWriter, r *Request) error {
	var body UpdateSessionDataRequest
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if body.SessionHandle == "" {
		return invalidField("sessionHandle")
	}
	if len(body.UserDataInDatabase) == 0 {
		return invalidField("userDataInDatabase")
	}

	if err := h.sessions.UpdateSessionData(r.Context(), r.Tenant, body.SessionHandle, body.UserDataInDatabase); err != nil {
		return err
	}

	writeJSON(w, statusResponse{Status: StatusOK})
	return nil
}

// writeSessionTokens writes a create or refresh result, with the legacy key
// fields when the client expects them.
func (h *Handler) writeSessionTokens(w http.ResponseWriter, r *Request, result *service.SessionResult) error {
	legacy, err := h.legacyKeyFields(r)
	if err != nil {
		return err
	}

	writeJSON(w, SessionTokensResponse{
		Status: StatusOK,
		Session: SessionInfo{
			Handle:        result.Session.Handle,
			UserID:        result.Session.UserID,
			UserDataInJWT: result.Session.UserDataInJWT,
			TenantID:      r.Tenant.TenantIDOrDefault(),
		},
		AccessToken:     result.AccessToken,
		RefreshToken:    result.RefreshToken,
		IDRefreshToken:  result.IDRefreshToken,
		AntiCsrfToken:   result.AntiCsrfToken,
		LegacyKeyFields: legacy,
	})
	return nil
}

// legacyKeyFields returns the deprecated signing key fields for clients
// below CDI 2.21, and zero fields otherwise.
func (h *Handler) legacyKeyFields(r *Request) (LegacyKeyFields, error) {
	if !r.Version.EmbedsLegacySigningKey() {
		return LegacyKeyFields{}, nil
	}

	info, err := h.keys.LegacyKeyInfo(r.Context(), r.Tenant, r.Config, r.Version.EmbedsLegacySigningKeyList())
	if err != nil {
		return LegacyKeyFields{}, err
	}
	return LegacyKeyFields{
		JWTSigningPublicKey:           info.PublicKey,
		JWTSigningPublicKeyExpiryTime: info.ExpiryTime,
		JWTSigningPublicKeyList:       info.List,
	}, nil
}
