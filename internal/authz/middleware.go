package authz

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/locallibrary/locallibrary/internal/shared"
)

// Redirect targets and messages for denied requests.
const (
	LoginPath   = "/users/login"
	WarningPath = "/users/stop"

	MsgLoginRequired = "You need to login first!"
	MsgForbidden     = "You're not authorized to access this page!"
)

// IdentityResolver recovers the redacted principal bound to a session.
type IdentityResolver interface {
	Resolve(ctx context.Context, sess *shared.Session) (*Principal, error)
}

// DecisionObserver records authorization outcomes, typically as metrics.
type DecisionObserver interface {
	ObserveDecision(class ResourceClass, op Operation, d Decision)
}

// Middleware wires the authorization chain into HTTP handlers.
type Middleware struct {
	Resolver IdentityResolver
	Logger   *slog.Logger
	Observer DecisionObserver
}

// Handler resolves the caller, classifies the path, evaluates the catalog
// rules and attaches the resulting Context. Denied requests never reach next.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var principal *Principal
		if m.Resolver != nil {
			p, err := m.Resolver.Resolve(r.Context(), shared.SessionFromContext(r.Context()))
			if err != nil {
				m.logError("authz resolve identity", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			principal = p
		}

		target, classified := Classify(routingPath(r))
		decision := Allow
		if classified {
			decision = Evaluate(Request{Principal: principal, Target: target, Classified: true}, CatalogRules()...)
			if m.Observer != nil {
				m.Observer.ObserveDecision(target.Class, target.Operation, decision)
			}
		}

		if decision != Allow {
			if m.Logger != nil {
				m.Logger.Info("authz denied",
					slog.String("path", r.URL.Path),
					slog.String("class", string(target.Class)),
					slog.String("operation", string(target.Operation)),
					slog.String("decision", decision.String()))
			}
			Deny(w, r, decision)
			return
		}

		ctx := WithContext(r.Context(), NewContext(principal, target, classified, decision))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOwner applies the ownership rule to the account id in the named
// route parameter.
func (m Middleware) RequireOwner(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := FromContext(r.Context()).Request()
			if d := Evaluate(req, Authenticated, OwnerOrAdmin(chi.URLParam(r, param))); d != Allow {
				Deny(w, r, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole admits principals ranked at or above min.
func (m Middleware) RequireRole(min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := FromContext(r.Context()).Request()
			if d := Evaluate(req, Authenticated, MinRole(min)); d != Allow {
				Deny(w, r, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RedirectAuthenticated sends logged-in callers to location. Used on pages
// that only make sense for anonymous visitors.
func (m Middleware) RedirectAuthenticated(location string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if FromContext(r.Context()).Authenticated() {
				http.Redirect(w, r, location, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Deny turns a denial into its redirect. Allow is a no-op.
func Deny(w http.ResponseWriter, r *http.Request, d Decision) {
	switch d {
	case Allow:
		return
	case DenyAuthRequired:
		shared.RedirectWithFlash(w, r, LoginPath, shared.FlashError, MsgLoginRequired)
	default:
		shared.RedirectWithFlash(w, r, WarningPath, shared.FlashError, MsgForbidden)
	}
}

// routingPath is the path chi matches routes against: the route context's
// path when a middleware rewrote it, then the raw path when the request
// carried encoded separators, the decoded path otherwise.
func routingPath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePath != "" {
		return rctx.RoutePath
	}
	if r.URL.RawPath != "" {
		return r.URL.RawPath
	}
	return r.URL.Path
}

func (m Middleware) logError(msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
}
