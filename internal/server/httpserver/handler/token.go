package handler

import (
	"net/http"

	"github.com/yndnr/authcore-go/internal/core/service"
)

// verifySession handles POST /recipe/session/verify.
func (h *Handler) verifySession(w http.ResponseWriter, r *Request) error {
	var body VerifySessionRequest
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if body.AccessToken == "" {
		return invalidField("accessToken")
	}

	result, err := h.sessions.VerifySession(r.Context(), r.Tenant, &service.VerifyRequest{
		AccessToken:     body.AccessToken,
		AntiCsrfToken:   body.AntiCsrfToken,
		DoAntiCsrfCheck: body.DoAntiCsrfCheck,
		CheckDatabase:   body.CheckDatabase,
	})
	if err != nil {
		return err
	}

	legacy, err := h.legacyKeyFields(r)
	if err != nil {
		return err
	}

	writeJSON(w, VerifySessionResponse{
		Status: StatusOK,
		Session: SessionInfo{
			Handle:        result.SessionHandle,
			UserID:        result.UserID,
			UserDataInJWT: result.UserDataInJWT,
			TenantID:      result.TenantID,
		},
		LegacyKeyFields: legacy,
	})
	return nil
}

// refreshSession handles POST /recipe/session/refresh.
func (h *Handler) refreshSession(w http.ResponseWriter, r *Request) error {
	var body RefreshSessionRequest
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if body.RefreshToken == "" {
		return invalidField("refreshToken")
	}

	result, err := h.sessions.RefreshSession(r.Context(), r.Tenant, &service.RefreshRequest{
		RefreshToken:   body.RefreshToken,
		AntiCsrfToken:  body.AntiCsrfToken,
		EnableAntiCsrf: body.EnableAntiCsrf,
		Version:        r.Version,
	})
	if err != nil {
		return err
	}
	return h.writeSessionTokens(w, r, result)
}
