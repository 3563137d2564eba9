package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ProtocolVersion is a CDI (core driver interface) version, major.minor.
type ProtocolVersion struct {
	Major int
	Minor int
}

// Well-known versions referenced by feature predicates.
var (
	CDIv2_7  = ProtocolVersion{2, 7}
	CDIv2_9  = ProtocolVersion{2, 9}
	CDIv2_17 = ProtocolVersion{2, 17}
	CDIv2_21 = ProtocolVersion{2, 21}
)

// DefaultSupportedVersions is the allow-list shipped with this release.
// Each version is listed on its own so dropping one is a one-line change.
var DefaultSupportedVersions = []string{
	"2.7",
	"2.8",
	"2.9",
	"2.10",
	"2.11",
	"2.12",
	"2.13",
	"2.14",
	"2.15",
	"2.16",
	"2.17",
}

// ParseProtocolVersion parses "major.minor".
func ParseProtocolVersion(s string) (ProtocolVersion, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 {
		return ProtocolVersion{}, fmt.Errorf("version %q: want major.minor", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return ProtocolVersion{}, fmt.Errorf("version %q: bad major", s)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil || minor < 0 {
		return ProtocolVersion{}, fmt.Errorf("version %q: bad minor", s)
	}
	return ProtocolVersion{Major: major, Minor: minor}, nil
}

// MustParseProtocolVersion is ParseProtocolVersion for constants.
func MustParseProtocolVersion(s string) ProtocolVersion {
	v, err := ParseProtocolVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String implements fmt.Stringer.
func (v ProtocolVersion) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// IsZero reports whether v is unset.
func (v ProtocolVersion) IsZero() bool {
	return v.Major == 0 && v.Minor == 0
}

// Compare returns -1, 0 or +1.
func (v ProtocolVersion) Compare(other ProtocolVersion) int {
	switch {
	case v.Major != other.Major:
		if v.Major < other.Major {
			return -1
		}
		return 1
	case v.Minor < other.Minor:
		return -1
	case v.Minor > other.Minor:
		return 1
	default:
		return 0
	}
}

// AtLeast reports v >= other.
func (v ProtocolVersion) AtLeast(other ProtocolVersion) bool {
	return v.Compare(other) >= 0
}

// Before reports v < other.
func (v ProtocolVersion) Before(other ProtocolVersion) bool {
	return v.Compare(other) < 0
}

// BetweenInclusive reports lo <= v <= hi.
func (v ProtocolVersion) BetweenInclusive(lo, hi ProtocolVersion) bool {
	return v.Compare(lo) >= 0 && v.Compare(hi) <= 0
}

// Latest returns the greatest version in vs.
func Latest(vs []ProtocolVersion) ProtocolVersion {
	sorted := append([]ProtocolVersion(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	if len(sorted) == 0 {
		return ProtocolVersion{}
	}
	return sorted[len(sorted)-1]
}

// ============================================================================
// Feature predicates. Each names the version that introduced the behaviour.
// ============================================================================

// AllowsSigningKeyOverride reports whether the client may pick the key flavour
// per session with useDynamicSigningKey. Introduced in 2.21; the threshold
// itself is configurable and passed in.
func (v ProtocolVersion) AllowsSigningKeyOverride(threshold ProtocolVersion) bool {
	return v.AtLeast(threshold)
}

// OmitsIDRefreshToken reports whether session responses drop idRefreshToken (2.21).
func (v ProtocolVersion) OmitsIDRefreshToken() bool {
	return v.AtLeast(CDIv2_21)
}

// EmbedsLegacySigningKey reports whether responses carry jwtSigningPublicKey
// and its expiry (every version before 2.21).
func (v ProtocolVersion) EmbedsLegacySigningKey() bool {
	return v.Before(CDIv2_21)
}

// EmbedsLegacySigningKeyList reports whether responses also carry
// jwtSigningPublicKeyList (2.9 through 2.21).
func (v ProtocolVersion) EmbedsLegacySigningKeyList() bool {
	return v.BetweenInclusive(CDIv2_9, CDIv2_21)
}

// UsesFlatAccessTokenPayload reports whether userDataInJWT is merged into the
// top level of the access token (2.21) instead of nested under userData.
func (v ProtocolVersion) UsesFlatAccessTokenPayload() bool {
	return v.AtLeast(CDIv2_21)
}
