package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

// maxBodyBytes bounds recipe request bodies.
const maxBodyBytes = 1 << 20

// Request is an incoming recipe request after tenant resolution, the access
// check and version negotiation.
type Request struct {
	*http.Request

	Tenant  domain.TenantIdentity
	Config  *domain.TenantConfig
	Version domain.ProtocolVersion
}

type apiFunc func(w http.ResponseWriter, req *Request) error

type methods map[string]apiFunc

// api dispatches one recipe path.
type api struct {
	h       *Handler
	path    string
	methods methods
}

// ServeHTTP runs start, access check, version check, handle and respond.
func (a *api) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.L(r.Context())
	called := "API called: " + r.RequestURI + ". Method: " + r.Method
	defer log.Info("API ended: " + r.RequestURI + ". Method: " + r.Method)

	fn, ok := a.methods[r.Method]
	if !ok {
		log.Info(called)
		writeText(w, http.StatusMethodNotAllowed, msgMethodNotSupported)
		return
	}
	req, err := a.h.prepare(r, a.path)
	if err != nil {
		log.Info(called)
		a.h.writeError(w, r, err)
		return
	}
	log.Info(called + ". Version: " + req.Version.String())
	if err := fn(w, req); err != nil {
		a.h.writeError(w, r, err)
	}
}

// prepare resolves the tenant and runs the access and version checks.
func (h *Handler) prepare(r *http.Request, path string) (*Request, error) {
	resolved := h.resolver.Resolve(r.Host, h.relativePath(r.URL.Path), path)
	t, cfg, err := h.tenants.Lookup(resolved)
	if err != nil {
		return nil, err
	}

	if err := h.gate.Check(r.Header.Get(HeaderAPIKey), cfg.APIKeys); err != nil {
		return nil, err
	}
	if err := h.gate.Allow(t, cfg.RateLimit); err != nil {
		return nil, err
	}

	values := r.Header.Values(HeaderCDIVersion)
	var header string
	if len(values) > 0 {
		header = values[0]
	}
	version, err := h.versions.Negotiate(header, len(values) > 0)
	if err != nil {
		return nil, err
	}

	ctx := logger.WithTenant(r.Context(), t.String())
	return &Request{
		Request: r.WithContext(ctx),
		Tenant:  t,
		Config:  cfg,
		Version: version,
	}, nil
}

// decodeBody reads a JSON object from the request body into v.
func decodeBody(r *Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return domain.BadRequest("Invalid Json Input")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return domain.BadRequest("Invalid Json Input")
	}
	return nil
}

// invalidField is the error for a missing or malformed body field.
func invalidField(name string) error {
	return domain.BadRequest("Field name '" + name + "' is invalid in JSON input")
}

// isJSONObject reports whether raw holds a JSON object. Absent fields and
// null do not count.
func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}

// missingQuery is the error for a missing query parameter.
func missingQuery(name string) error {
	return domain.BadRequest("Field name '" + name + "' is missing in GET request")
}
