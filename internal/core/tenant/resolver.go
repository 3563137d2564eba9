package tenant

import (
	"net"
	"regexp"
	"strings"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/pkg/cmap"
)

// Resolver maps request coordinates to a tenant identity.
type Resolver struct {
	defaultPort string
	patterns    *cmap.Map[string, *regexp.Regexp]
}

// NewResolver creates a resolver. defaultPort is used for the connection URI
// domain when the Host header carries no port.
func NewResolver(defaultPort string) *Resolver {
	if defaultPort == "" {
		defaultPort = "80"
	}
	return &Resolver{
		defaultPort: defaultPort,
		patterns:    cmap.New[string, *regexp.Regexp](),
	}
}

// Resolve returns the tenant addressed by host and path.
//
// apiBasePath is the fixed sub-path of the endpoint being served, for example
// "/recipe/session". A path of the form /<tenant><apiBasePath> (optionally
// with a trailing slash) selects <tenant>; anything else selects the default
// tenant on the request's domain.
func (r *Resolver) Resolve(host, path, apiBasePath string) domain.TenantIdentity {
	return domain.NewTenantIdentity(r.ConnectionURIDomain(host), "", r.TenantID(path, apiBasePath))
}

// TenantID extracts the lowercased tenant segment from path, or "" when the
// path does not carry one.
func (r *Resolver) TenantID(path, apiBasePath string) string {
	path = strings.ToLower(path)
	apiBasePath = strings.ToLower(apiBasePath)

	if !r.pattern(apiBasePath).MatchString(path) {
		return ""
	}
	segment := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(segment, '/'); i >= 0 {
		segment = segment[:i]
	}
	if segment == domain.DefaultTenantID {
		return ""
	}
	return segment
}

// ConnectionURIDomain returns "host:port" for a Host header value.
func (r *Resolver) ConnectionURIDomain(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if h, port, err := net.SplitHostPort(host); err == nil {
		return strings.ToLower(net.JoinHostPort(h, port))
	}
	return strings.ToLower(net.JoinHostPort(strings.Trim(host, "[]"), r.defaultPort))
}

func (r *Resolver) pattern(apiBasePath string) *regexp.Regexp {
	if re, ok := r.patterns.Get(apiBasePath); ok {
		return re
	}
	re := regexp.MustCompile("^/[a-z0-9-]+" + regexp.QuoteMeta(apiBasePath) + "/?$")
	re, _ = r.patterns.GetOrSet(apiBasePath, re)
	return re
}
