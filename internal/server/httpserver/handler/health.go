package handler

import (
	"net/http"
)

// hello handles GET /hello.
func (h *Handler) hello(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "Hello")
}

// health handles GET /health.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, statusResponse{Status: StatusOK})
}
