package authz

import "context"

// Principal is the redacted view of an account holder. It carries no
// credential material and is the only principal shape handed to templates.
type Principal struct {
	ID       string
	Username string
	FullName string
	Email    string
	Role     Role
}

// URL is the profile page of the principal.
func (p Principal) URL() string {
	return "/users/" + p.ID
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Context is the per-request authorization state. Its fields are only
// reachable through accessors, so a value cannot change once built.
type Context struct {
	principal  *Principal
	target     Target
	classified bool
	decision   Decision
}

// NewContext builds a Context. The principal is copied.
func NewContext(p *Principal, target Target, classified bool, decision Decision) Context {
	c := Context{target: target, classified: classified, decision: decision}
	if p != nil {
		cp := *p
		c.principal = &cp
	}
	return c
}

// Principal returns a copy of the resolved principal, or nil when anonymous.
func (c Context) Principal() *Principal {
	if c.principal == nil {
		return nil
	}
	cp := *c.principal
	return &cp
}

// Authenticated reports whether a principal was resolved.
func (c Context) Authenticated() bool {
	return c.principal != nil
}

// Target returns the classified catalog target, if any.
func (c Context) Target() (Target, bool) {
	return c.target, c.classified
}

// Decision returns the outcome of the catalog rule chain.
func (c Context) Decision() Decision {
	return c.decision
}

// Request converts the context into rule input.
func (c Context) Request() Request {
	return Request{Principal: c.Principal(), Target: c.target, Classified: c.classified}
}

type contextKey struct{}

// WithContext stores c in ctx.
func WithContext(ctx context.Context, c Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the authorization context, or an anonymous one.
func FromContext(ctx context.Context) Context {
	c, _ := ctx.Value(contextKey{}).(Context)
	return c
}
