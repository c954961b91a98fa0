// Package session captures the facts learned at login that drive
// compatibility branches throughout the client: cluster identity,
// platform version, org mode, and the authenticated user's privileges.
package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// User is the authenticated principal captured at login.
type User struct {
	GUID       string
	Username   string
	Privileges []string
}

// HasPrivilege reports whether the user holds the named privilege.
func (u User) HasPrivilege(name string) bool {
	for _, p := range u.Privileges {
		if p == name {
			return true
		}
	}
	return false
}

// Context is the immutable set of facts captured at login. It never
// changes for the life of a client; a new login produces a new
// Context rather than mutating this one.
type Context struct {
	ClusterID       string
	BaseURL         string
	PlatformVersion string
	Timezone        string
	CloudOnPrem     string // "cloud" or "on-prem"
	OrgsEnabled     bool
	OrgID           string // empty when orgs are disabled or none selected
	User            User
}

// IsAtLeast reports whether the connected platform's version is at
// least the given semver string, so compatibility branches can be
// isolated behind a single predicate rather than scattered string
// comparisons.
func (c Context) IsAtLeast(version string) bool {
	return compareSemver(c.PlatformVersion, version) >= 0
}

// compareSemver compares two "X.Y.Z"-shaped version strings
// numerically component by component. Missing components compare as
// zero; non-numeric components compare as zero. This module's
// dependency set carries no semver library (none of the example
// repos import one), so version comparison here is hand-rolled
// against the narrow "MAJOR.MINOR.PATCH" shape the platform reports.
func compareSemver(a, b string) int {
	ap := splitSemver(a)
	bp := splitSemver(b)
	for i := 0; i < 3; i++ {
		if ap[i] != bp[i] {
			if ap[i] < bp[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func splitSemver(v string) [3]int {
	var out [3]int
	parts := strings.SplitN(v, ".", 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			continue
		}
		out[i] = n
	}
	return out
}

// IntrospectClaims parses the claims of a platform-issued bearer token
// without verifying its signature. This module never mints or
// verifies its own tokens; introspection here is for heartbeat and
// expiry logging only, informational, never an authorization decision.
func IntrospectClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return nil, fmt.Errorf("session: parse token claims: %w", err)
	}
	return claims, nil
}
