package authz

// Decision is the tagged outcome of an authorization rule.
type Decision int

const (
	// Allow lets the request continue.
	Allow Decision = iota
	// DenyAuthRequired means the caller must log in first.
	DenyAuthRequired
	// DenyForbidden means the caller is logged in but not permitted.
	DenyForbidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyAuthRequired:
		return "deny_auth_required"
	case DenyForbidden:
		return "deny_forbidden"
	default:
		return "unknown"
	}
}

// Request is the input every rule sees.
type Request struct {
	Principal  *Principal
	Target     Target
	Classified bool
}

// Rule is a pure authorization check.
type Rule func(Request) Decision

// Evaluate runs rules in order and returns the first denial, or Allow.
func Evaluate(req Request, rules ...Rule) Decision {
	for _, rule := range rules {
		if d := rule(req); d != Allow {
			return d
		}
	}
	return Allow
}

// Authenticated denies anonymous callers.
func Authenticated(req Request) Decision {
	if req.Principal == nil {
		return DenyAuthRequired
	}
	return Allow
}

// RolePermits checks the classified operation against the role table.
// Unclassified requests are not its concern.
func RolePermits(req Request) Decision {
	if !req.Classified {
		return Allow
	}
	if req.Principal == nil {
		return DenyAuthRequired
	}
	if !Permits(req.Principal.Role, req.Target.Operation) {
		return DenyForbidden
	}
	return Allow
}

// OwnerOrAdmin allows the principal whose id is ownerID, or any admin.
func OwnerOrAdmin(ownerID string) Rule {
	return func(req Request) Decision {
		if req.Principal == nil {
			return DenyAuthRequired
		}
		if ownerID != "" && req.Principal.ID == ownerID {
			return Allow
		}
		if req.Principal.Role == RoleAdmin {
			return Allow
		}
		return DenyForbidden
	}
}

// MinRole allows principals ranked at or above min.
func MinRole(min Role) Rule {
	return func(req Request) Decision {
		if req.Principal == nil {
			return DenyAuthRequired
		}
		if !req.Principal.Role.AtLeast(min) {
			return DenyForbidden
		}
		return Allow
	}
}

// CatalogRules is the rule chain applied to classified catalog requests.
func CatalogRules() []Rule {
	return []Rule{Authenticated, RolePermits}
}
