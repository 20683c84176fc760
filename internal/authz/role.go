// Package authz holds the authorization core: the role model, the route
// classifier, the decision rules and the middleware that attaches the
// per-request authorization context.
package authz

import (
	"fmt"
	"strconv"
	"strings"
)

// Role is the ordered access level of a principal.
type Role int

const (
	// RoleViewer may only read catalog records.
	RoleViewer Role = iota
	// RoleEditor may read, create and update catalog records.
	RoleEditor
	// RoleAdmin has every permission and manages accounts.
	RoleAdmin
)

// Roles lists every role from least to most privileged.
func Roles() []Role {
	return []Role{RoleViewer, RoleEditor, RoleAdmin}
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	return r >= RoleViewer && r <= RoleAdmin
}

// AtLeast reports whether r ranks at or above min. Invalid roles rank below
// everything.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && min.Valid() && r >= min
}

func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleEditor:
		return "editor"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Label is the human readable role name used in forms.
func (r Role) Label() string {
	switch r {
	case RoleViewer:
		return "User"
	case RoleEditor:
		return "Editor"
	case RoleAdmin:
		return "Admin"
	default:
		return "Unknown"
	}
}

// ParseRole accepts the numeric form ("0".."2") or the role name.
func ParseRole(raw string) (Role, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		if r := Role(n); r.Valid() {
			return r, nil
		}
		return 0, fmt.Errorf("authz: role %d out of range", n)
	}
	for _, r := range Roles() {
		if strings.EqualFold(raw, r.String()) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("authz: unknown role %q", raw)
}
