package shared

import (
	"context"
	"net/http"
)

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// DrainFlashes empties the flash queue of the request session.
func DrainFlashes(ctx context.Context) []FlashMessage {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return nil
	}
	return sess.DrainFlashes()
}

// RedirectWithFlash queues a one-shot message and redirects with 303.
func RedirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := SessionFromContext(r.Context()); sess != nil && message != "" {
		sess.AddFlash(kind, message)
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
