package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locallibrary/locallibrary/internal/shared"
)

type mapResolver struct {
	principals map[string]Principal
	err        error
}

func (m mapResolver) Resolve(_ context.Context, sess *shared.Session) (*Principal, error) {
	if m.err != nil {
		return nil, m.err
	}
	if sess == nil {
		return nil, nil
	}
	p, ok := m.principals[sess.User()]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type observed struct {
	class    ResourceClass
	op       Operation
	decision Decision
}

type recordingObserver struct {
	seen []observed
}

func (o *recordingObserver) ObserveDecision(class ResourceClass, op Operation, d Decision) {
	o.seen = append(o.seen, observed{class: class, op: op, decision: d})
}

var testPrincipals = map[string]Principal{
	"viewer": {ID: "viewer", Username: "Read", Role: RoleViewer},
	"editor": {ID: "editor", Username: "Edit", Role: RoleEditor},
	"admin":  {ID: "admin", Username: "Root", Role: RoleAdmin},
}

// run sends a GET for path through m with a session owned by user.
func run(t *testing.T, m Middleware, next http.Handler, user, path string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess := &shared.Session{ID: "s1"}
	if user != "" {
		sess.SetUser(user)
	}
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	res := httptest.NewRecorder()
	m.Handler(next).ServeHTTP(res, req)
	return res, sess
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareAnonymousCreateRedirectsToLogin(t *testing.T) {
	obs := &recordingObserver{}
	m := Middleware{Resolver: mapResolver{principals: testPrincipals}, Observer: obs}

	res, sess := run(t, m, okHandler(), "", "/catalog/book/create")

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, LoginPath, res.Header().Get("Location"))
	flashes := sess.DrainFlashes()
	require.Len(t, flashes, 1)
	assert.Equal(t, MsgLoginRequired, flashes[0].Message)
	require.Len(t, obs.seen, 1)
	assert.Equal(t, observed{class: ClassBook, op: OpCreate, decision: DenyAuthRequired}, obs.seen[0])
}

func TestMiddlewareViewerIsForbidden(t *testing.T) {
	m := Middleware{Resolver: mapResolver{principals: testPrincipals}}

	res, sess := run(t, m, okHandler(), "viewer", "/catalog/book/create")

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, WarningPath, res.Header().Get("Location"))
	flashes := sess.DrainFlashes()
	require.Len(t, flashes, 1)
	assert.Equal(t, MsgForbidden, flashes[0].Message)
}

func TestMiddlewareRoleMatrix(t *testing.T) {
	cases := []struct {
		user string
		path string
		code int
	}{
		{user: "viewer", path: "/catalog/author/1", code: http.StatusOK},
		{user: "viewer", path: "/catalog/author/1/update", code: http.StatusSeeOther},
		{user: "editor", path: "/catalog/author/1/update", code: http.StatusOK},
		{user: "editor", path: "/catalog/author/1/delete", code: http.StatusSeeOther},
		{user: "admin", path: "/catalog/author/1/delete", code: http.StatusOK},
		{user: "", path: "/catalog/authors", code: http.StatusOK},
		{user: "", path: "/catalog", code: http.StatusOK},
		{user: "", path: "/catalog/author/1", code: http.StatusSeeOther},
	}
	m := Middleware{Resolver: mapResolver{principals: testPrincipals}}
	for _, tc := range cases {
		res, _ := run(t, m, okHandler(), tc.user, tc.path)
		assert.Equal(t, tc.code, res.Code, "%q %s", tc.user, tc.path)
	}
}

func TestMiddlewarePropagatesContext(t *testing.T) {
	m := Middleware{Resolver: mapResolver{principals: testPrincipals}}
	var got Context
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	})

	run(t, m, next, "editor", "/catalog/genre/g1/update")

	require.True(t, got.Authenticated())
	assert.Equal(t, "editor", got.Principal().ID)
	target, classified := got.Target()
	assert.True(t, classified)
	assert.Equal(t, Target{Class: ClassGenre, InstanceID: "g1", Operation: OpUpdate}, target)
	assert.Equal(t, Allow, got.Decision())
}

func TestMiddlewareSkipsObserverForUnclassifiedPaths(t *testing.T) {
	obs := &recordingObserver{}
	m := Middleware{Resolver: mapResolver{principals: testPrincipals}, Observer: obs}

	res, _ := run(t, m, okHandler(), "", "/catalog/books")

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, obs.seen)
}

func TestMiddlewareResolverFailure(t *testing.T) {
	m := Middleware{Resolver: mapResolver{err: errors.New("redis down")}}
	res, _ := run(t, m, okHandler(), "viewer", "/catalog/books")
	assert.Equal(t, http.StatusInternalServerError, res.Code)
}

func TestRequireOwnerAndRole(t *testing.T) {
	m := Middleware{Resolver: mapResolver{principals: testPrincipals}}
	r := chi.NewRouter()
	r.Use(m.Handler)
	r.With(m.RequireOwner("id")).Get("/users/{id}", okHandler().ServeHTTP)
	r.With(m.RequireRole(RoleAdmin)).Get("/users", okHandler().ServeHTTP)
	r.With(m.RedirectAuthenticated("/")).Get("/users/login", okHandler().ServeHTTP)

	cases := []struct {
		user     string
		path     string
		code     int
		location string
	}{
		{user: "viewer", path: "/users/viewer", code: http.StatusOK},
		{user: "viewer", path: "/users/editor", code: http.StatusSeeOther, location: WarningPath},
		{user: "admin", path: "/users/editor", code: http.StatusOK},
		{user: "", path: "/users/viewer", code: http.StatusSeeOther, location: LoginPath},
		{user: "editor", path: "/users", code: http.StatusSeeOther, location: WarningPath},
		{user: "admin", path: "/users", code: http.StatusOK},
		{user: "viewer", path: "/users/login", code: http.StatusSeeOther, location: "/"},
		{user: "", path: "/users/login", code: http.StatusOK},
	}
	for _, tc := range cases {
		sess := &shared.Session{ID: "s1"}
		sess.SetUser(tc.user)
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
		res := httptest.NewRecorder()
		r.ServeHTTP(res, req)
		assert.Equal(t, tc.code, res.Code, "%q %s", tc.user, tc.path)
		if tc.location != "" {
			assert.Equal(t, tc.location, res.Header().Get("Location"), "%q %s", tc.user, tc.path)
		}
	}
}

func TestMiddlewareClassifiesEncodedSeparatorsAsRouted(t *testing.T) {
	m := Middleware{Resolver: mapResolver{principals: testPrincipals}}
	var deleted []string
	r := chi.NewRouter()
	r.Use(chimw.CleanPath)
	r.Use(m.Handler)
	r.Get("/catalog/book/{id}/delete", func(w http.ResponseWriter, r *http.Request) {
		deleted = append(deleted, chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusOK)
	})

	cases := []struct {
		user     string
		path     string
		code     int
		location string
	}{
		{user: "", path: "/catalog/book/x%2F..%2F..%2F..%2Fy/delete", code: http.StatusSeeOther, location: LoginPath},
		{user: "viewer", path: "/catalog/book/x%2F%2E%2E/delete", code: http.StatusSeeOther, location: WarningPath},
		{user: "editor", path: "/catalog/book/x%2F..%2F..%2F..%2Fy/delete", code: http.StatusSeeOther, location: WarningPath},
		{user: "viewer", path: "/catalog/book/./delete", code: http.StatusNotFound},
		{user: "admin", path: "/catalog/book/x%2F..%2Fy/delete", code: http.StatusOK},
	}
	for _, tc := range cases {
		sess := &shared.Session{ID: "s1"}
		sess.SetUser(tc.user)
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
		res := httptest.NewRecorder()
		r.ServeHTTP(res, req)
		assert.Equal(t, tc.code, res.Code, "%q %s", tc.user, tc.path)
		if tc.location != "" {
			assert.Equal(t, tc.location, res.Header().Get("Location"), "%q %s", tc.user, tc.path)
		}
	}
	assert.Equal(t, []string{"x%2F..%2Fy"}, deleted)
}
