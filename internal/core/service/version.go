package service

import (
	"strings"

	"github.com/yndnr/authcore-go/internal/core/domain"
)

// VersionNegotiator gates requests on an explicit allow-list of CDI versions.
type VersionNegotiator struct {
	supported map[string]domain.ProtocolVersion
	ordered   []string
	latest    domain.ProtocolVersion
}

// NewVersionNegotiator creates a negotiator for the given versions. Each entry
// must be a canonical "major.minor" string; the list must not be empty.
func NewVersionNegotiator(supported []string) (*VersionNegotiator, error) {
	if len(supported) == 0 {
		return nil, domain.BadRequest("supported version list is empty")
	}

	n := &VersionNegotiator{supported: make(map[string]domain.ProtocolVersion, len(supported))}
	var all []domain.ProtocolVersion
	for _, s := range supported {
		v, err := domain.ParseProtocolVersion(s)
		if err != nil {
			return nil, err
		}
		if _, dup := n.supported[v.String()]; dup {
			continue
		}
		n.supported[v.String()] = v
		n.ordered = append(n.ordered, v.String())
		all = append(all, v)
	}
	n.latest = domain.Latest(all)
	return n, nil
}

// Negotiate returns the version a request speaks.
//
// present reports whether the cdi-version header was sent at all. An absent
// header selects the latest supported version; a blank one is
// domain.ErrVersionNotProvided; anything not on the allow-list is
// domain.UnsupportedVersion.
func (n *VersionNegotiator) Negotiate(header string, present bool) (domain.ProtocolVersion, error) {
	if !present {
		return n.latest, nil
	}

	header = strings.TrimSpace(header)
	if header == "" {
		return domain.ProtocolVersion{}, domain.ErrVersionNotProvided
	}

	v, ok := n.supported[header]
	if !ok {
		return domain.ProtocolVersion{}, domain.UnsupportedVersion(header)
	}
	return v, nil
}

// Latest returns the newest supported version.
func (n *VersionNegotiator) Latest() domain.ProtocolVersion {
	return n.latest
}

// Supported returns the allow-list in configuration order.
func (n *VersionNegotiator) Supported() []string {
	return append([]string(nil), n.ordered...)
}
