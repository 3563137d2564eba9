package service

import (
	"crypto/subtle"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/tenant"
)

// AccessGate enforces the optional per-tenant API key and request budget.
type AccessGate struct {
	resources *tenant.Distributor
}

// NewAccessGate creates an AccessGate. Rate limiters are kept in resources.
func NewAccessGate(resources *tenant.Distributor) *AccessGate {
	return &AccessGate{resources: resources}
}

// Check validates the api-key header value against the tenant's keys.
//
// A tenant without keys accepts any request. Otherwise the trimmed header
// must equal one of the keys. Every key is compared, each in constant time,
// so the time taken does not reveal which key (if any) matched.
func (g *AccessGate) Check(apiKey string, configured []string) error {
	if len(configured) == 0 {
		return nil
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return domain.ErrInvalidAPIKey
	}

	matched := 0
	for _, k := range configured {
		matched |= subtle.ConstantTimeCompare([]byte(apiKey), []byte(strings.TrimSpace(k)))
	}
	if matched != 1 {
		return domain.ErrInvalidAPIKey
	}
	return nil
}

// Allow consumes one request from the tenant's budget of limit requests per
// second. A limit of zero or less disables the check.
func (g *AccessGate) Allow(t domain.TenantIdentity, limit int) error {
	if limit <= 0 {
		return nil
	}

	limiter, err := tenant.Resource(g.resources, t, "rate_limiter/"+strconv.Itoa(limit), func() (*rate.Limiter, error) {
		return rate.NewLimiter(rate.Limit(limit), limit), nil
	})
	if err != nil {
		return err
	}

	if !limiter.Allow() {
		return domain.ErrRateLimited.WithDetails(t.String())
	}
	return nil
}
