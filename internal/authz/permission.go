package authz

import "strings"

// Operation is the action a request performs on a catalog resource.
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Operations lists every operation.
func Operations() []Operation {
	return []Operation{OpRead, OpCreate, OpUpdate, OpDelete}
}

func parseVerb(token string) (Operation, bool) {
	switch strings.ToLower(token) {
	case "update":
		return OpUpdate, true
	case "delete":
		return OpDelete, true
	case "create":
		return OpCreate, true
	default:
		return "", false
	}
}

// permissions is the static role table. Each row must be a superset of the
// row before it.
var permissions = map[Role][]Operation{
	RoleViewer: {OpRead},
	RoleEditor: {OpRead, OpCreate, OpUpdate},
	RoleAdmin:  {OpRead, OpCreate, OpUpdate, OpDelete},
}

// Permissions returns a copy of the operations granted to r.
func Permissions(r Role) []Operation {
	ops := permissions[r]
	out := make([]Operation, len(ops))
	copy(out, ops)
	return out
}

// Permits reports whether r is granted op. Unknown roles are granted nothing.
func Permits(r Role, op Operation) bool {
	for _, granted := range permissions[r] {
		if granted == op {
			return true
		}
	}
	return false
}
