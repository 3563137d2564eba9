package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

// Response content types.
const (
	ContentTypeText = "text/html; charset=UTF-8"
	ContentTypeJSON = "application/json; charset=UTF-8"
)

// Response statuses.
const (
	StatusOK                 = "OK"
	StatusUnauthorised       = "UNAUTHORISED"
	StatusTryRefreshToken    = "TRY_REFRESH_TOKEN"
	StatusTokenTheftDetected = "TOKEN_THEFT_DETECTED"
)

const (
	msgInternalError      = "Internal Error"
	msgMethodNotSupported = "Method not supported"
	msgTenantNotFound     = "Tenant not found: "
	msgTooManyRequests    = "Too many requests"
)

// writeError maps err to exactly one response.
//
//	TokenTheftError      200 TOKEN_THEFT_DETECTED
//	soft (AC-*-2xxx)     200 UNAUTHORISED or TRY_REFRESH_TOKEN
//	unauthorized         401 "Invalid API key"
//	bad request          400 with the error message
//	tenant not found     400 "Tenant not found: <id>"
//	rate limited         429 "Too many requests"
//	fatal                500, and the process shuts down
//	anything else        500 "Internal Error"
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.L(r.Context())

	var theft *service.TokenTheftError
	if errors.As(err, &theft) {
		writeJSON(w, tokenTheftResponse{
			Status: StatusTokenTheftDetected,
			Session: theftSession{
				Handle: theft.SessionHandle,
				UserID: theft.UserID,
			},
		})
		return
	}

	de, _ := domain.AsDomainError(err)
	switch domain.KindOf(err) {
	case domain.KindSoft:
		status := StatusUnauthorised
		if errors.Is(err, domain.ErrTryRefreshToken) {
			status = StatusTryRefreshToken
		}
		log.Debug("soft failure", "status", status, "error", err)
		writeJSON(w, messageResponse{Status: status, Message: de.Message})

	case domain.KindUnauthorized:
		writeText(w, http.StatusUnauthorized, de.Message)

	case domain.KindBadRequest:
		writeText(w, http.StatusBadRequest, de.Message)

	case domain.KindTenantNotFound:
		writeText(w, http.StatusBadRequest, msgTenantNotFound+de.Details)

	case domain.KindRateLimited:
		w.Header().Set("Retry-After", "1")
		writeText(w, http.StatusTooManyRequests, msgTooManyRequests)

	case domain.KindFatal:
		log.Error("fatal error, shutting down", "path", r.URL.Path, "error", err)
		if h.shutdown != nil {
			h.shutdown.Trigger(err.Error())
		}
		writeText(w, http.StatusInternalServerError, msgInternalError)

	default:
		log.Error("request failed", "path", r.URL.Path, "method", r.Method, "kind", domain.KindOf(err).String(), "error", err)
		writeText(w, http.StatusInternalServerError, msgInternalError)
	}
}

// writeJSON writes v as a 200 JSON response.
func writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeText(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// writeText writes a plain message with the given status.
func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", ContentTypeText)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
