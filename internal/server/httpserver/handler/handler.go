package handler

import (
	"net/http"
	"strings"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/core/tenant"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

// Request headers read by the dispatcher.
const (
	HeaderAPIKey     = "api-key"
	HeaderCDIVersion = "cdi-version"
)

// Recipe endpoint paths, relative to the API base path.
const (
	PathSession        = "/recipe/session"
	PathSessionVerify  = "/recipe/session/verify"
	PathSessionRefresh = "/recipe/session/refresh"
	PathSessionRemove  = "/recipe/session/remove"
	PathSessionUser    = "/recipe/session/user"
	PathSessionData    = "/recipe/session/data"
	PathJWKS           = "/recipe/jwt/jwks"
	PathUserMetadata   = "/recipe/user/metadata"
	PathRemoveMetadata = "/recipe/user/metadata/remove"
	PathHello          = "/hello"
	PathHealth         = "/health"
	PathMetrics        = "/metrics"
)

// TenantDirectory resolves configured tenants.
type TenantDirectory interface {
	// Lookup returns the configured identity t maps to and its config, or
	// domain.ErrTenantNotFound.
	Lookup(t domain.TenantIdentity) (domain.TenantIdentity, *domain.TenantConfig, error)

	// SigningKeyOverrideVersion is the first CDI version whose requests choose
	// their signing key through useDynamicSigningKey.
	SigningKeyOverrideVersion() domain.ProtocolVersion
}

// ShutdownTrigger starts an orderly process shutdown.
type ShutdownTrigger interface {
	Trigger(reason string)
}

// Config holds the collaborators of a Handler.
type Config struct {
	Sessions *service.SessionService
	Metadata *service.MetadataService
	Keys     *service.SigningKeyManager
	Gate     *service.AccessGate
	Versions *service.VersionNegotiator
	Resolver *tenant.Resolver
	Tenants  TenantDirectory

	// Shutdown is triggered by fatal errors. Optional.
	Shutdown ShutdownTrigger

	// BasePath prefixes every recipe path, e.g. "/auth".
	BasePath string

	Logger logger.Logger
}

// Handler serves the recipe endpoints.
type Handler struct {
	sessions *service.SessionService
	metadata *service.MetadataService
	keys     *service.SigningKeyManager
	gate     *service.AccessGate
	versions *service.VersionNegotiator
	resolver *tenant.Resolver
	tenants  TenantDirectory
	shutdown ShutdownTrigger
	basePath string
	logger   logger.Logger
}

// New creates a Handler.
func New(cfg Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = tenant.NewResolver("")
	}
	return &Handler{
		sessions: cfg.Sessions,
		metadata: cfg.Metadata,
		keys:     cfg.Keys,
		gate:     cfg.Gate,
		versions: cfg.Versions,
		resolver: resolver,
		tenants:  cfg.Tenants,
		shutdown: cfg.Shutdown,
		basePath: NormalizeBasePath(cfg.BasePath),
		logger:   log,
	}
}

// Route is one endpoint to mount.
type Route struct {
	// Path is relative to the base path.
	Path string

	// Tenanted routes are also mounted under /{tenant}.
	Tenanted bool

	Handler http.Handler
}

// Routes returns every endpoint the handler serves.
func (h *Handler) Routes() []Route {
	return []Route{
		h.recipe(PathSession, methods{
			http.MethodPost: h.createSession,
			http.MethodGet:  h.getSession,
		}),
		h.recipe(PathSessionVerify, methods{http.MethodPost: h.verifySession}),
		h.recipe(PathSessionRefresh, methods{http.MethodPost: h.refreshSession}),
		h.recipe(PathSessionRemove, methods{http.MethodPost: h.removeSessions}),
		h.recipe(PathSessionUser, methods{http.MethodGet: h.userSessions}),
		h.recipe(PathSessionData, methods{http.MethodPut: h.updateSessionData}),
		h.recipe(PathJWKS, methods{http.MethodGet: h.jwks}),
		h.recipe(PathUserMetadata, methods{
			http.MethodGet: h.getUserMetadata,
			http.MethodPut: h.updateUserMetadata,
		}),
		h.recipe(PathRemoveMetadata, methods{http.MethodPost: h.removeUserMetadata}),
		{Path: PathHello, Handler: getOnly(http.HandlerFunc(h.hello))},
		{Path: PathHealth, Handler: getOnly(http.HandlerFunc(h.health))},
	}
}

// BasePath returns the normalized base path every route is mounted under.
func (h *Handler) BasePath() string {
	return h.basePath
}

func (h *Handler) recipe(path string, m methods) Route {
	return Route{
		Path:     path,
		Tenanted: true,
		Handler:  &api{h: h, path: path, methods: m},
	}
}

// NormalizeBasePath returns p with one leading slash and no trailing slash,
// or "" for the root.
func NormalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// relativePath strips the base path from the request path.
func (h *Handler) relativePath(path string) string {
	if h.basePath == "" {
		return path
	}
	if rest, ok := strings.CutPrefix(path, h.basePath); ok && (rest == "" || rest[0] == '/') {
		return rest
	}
	return path
}

// getOnly answers every method other than GET and HEAD with 405.
func getOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeText(w, http.StatusMethodNotAllowed, msgMethodNotSupported)
			return
		}
		next.ServeHTTP(w, r)
	})
}
