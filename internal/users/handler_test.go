package users

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locallibrary/locallibrary/internal/authz"
	"github.com/locallibrary/locallibrary/internal/shared"
	"github.com/locallibrary/locallibrary/internal/view"
)

// repoResolver resolves session principals straight from the test repo.
type repoResolver struct {
	repo *memoryRepo
}

func (r repoResolver) Resolve(ctx context.Context, sess *shared.Session) (*authz.Principal, error) {
	if sess == nil || sess.User() == "" {
		return nil, nil
	}
	p, err := r.repo.FindByID(ctx, sess.User())
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	redacted := p.Redact()
	return &redacted, nil
}

type handlerFixture struct {
	router   chi.Router
	repo     *memoryRepo
	sessions *shared.SessionManager
}

func newHandlerFixture(t *testing.T, seed ...Principal) handlerFixture {
	t.Helper()
	svc, repo, _ := newTestService(t, seed...)

	mr := miniredis.RunT(t)
	sessions := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test_session", time.Hour, false)
	templates, err := view.NewEngine()
	require.NoError(t, err)

	mw := authz.Middleware{Resolver: repoResolver{repo: repo}}
	h := NewHandler(nil, svc, templates, shared.NewCSRFManager("csrfsecret"), mw)

	r := chi.NewRouter()
	r.Use(mw.Handler)
	r.Route("/users", h.MountRoutes)
	return handlerFixture{router: r, repo: repo, sessions: sessions}
}

// serve runs req with a fresh session owned by user, empty for anonymous.
func (f handlerFixture) serve(t *testing.T, req *http.Request, user string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := f.sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	if user != "" {
		sess.SetUser(user)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	require.NoError(t, f.sessions.Commit(context.Background(), res, sess))
	return res, sess
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (f handlerFixture) has(id string) bool {
	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	_, ok := f.repo.byID[id]
	return ok
}

func TestRegisterHandlerStoresViewerWhateverRoleIsPosted(t *testing.T) {
	f := newHandlerFixture(t)
	form := url.Values{
		"username":         {"reader"},
		"fullname":         {"Reader One"},
		"email":            {"reader@example.com"},
		"password":         {"1111"},
		"password_confirm": {"1111"},
		"role":             {"2"},
	}

	res, sess := f.serve(t, postForm("/users/register", form), "")

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, authz.LoginPath, res.Header().Get("Location"))
	flashes := sess.DrainFlashes()
	require.Len(t, flashes, 1)
	assert.Equal(t, MsgRegistered, flashes[0].Message)

	stored, err := f.repo.FindByUsername(context.Background(), "reader")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleViewer, stored.Role)
}

func TestRegisterHandlerRejectsInvalidForm(t *testing.T) {
	f := newHandlerFixture(t)
	form := url.Values{"username": {"ab"}, "fullname": {"Someone"}, "email": {"bad"}, "password": {"1111"}, "password_confirm": {"2222"}}

	res, _ := f.serve(t, postForm("/users/register", form), "")

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), MsgPasswordsMismatch)
	_, err := f.repo.FindByUsername(context.Background(), "ab")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRegisterPageRedirectsAuthenticatedCaller(t *testing.T) {
	f := newHandlerFixture(t, principal(t, "v1", "viewer", authz.RoleViewer))

	res, _ := f.serve(t, httptest.NewRequest(http.MethodGet, "/users/register", nil), "v1")

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/", res.Header().Get("Location"))
}

func TestAccountRoutesRequireOwnerOrAdmin(t *testing.T) {
	cases := []struct {
		name     string
		method   string
		user     string
		path     string
		code     int
		location string
		message  string
	}{
		{name: "anonymous profile", method: http.MethodGet, path: "/users/v2", code: http.StatusSeeOther, location: authz.LoginPath, message: authz.MsgLoginRequired},
		{name: "other viewer profile", method: http.MethodGet, user: "v1", path: "/users/v2", code: http.StatusSeeOther, location: authz.WarningPath, message: authz.MsgForbidden},
		{name: "other viewer update form", method: http.MethodGet, user: "v1", path: "/users/v2/update_user", code: http.StatusSeeOther, location: authz.WarningPath, message: authz.MsgForbidden},
		{name: "other viewer delete", method: http.MethodPost, user: "v1", path: "/users/v2/delete", code: http.StatusSeeOther, location: authz.WarningPath, message: authz.MsgForbidden},
		{name: "viewer lists users", method: http.MethodGet, user: "v1", path: "/users/", code: http.StatusSeeOther, location: authz.WarningPath, message: authz.MsgForbidden},
		{name: "owner profile", method: http.MethodGet, user: "v2", path: "/users/v2", code: http.StatusOK},
		{name: "admin profile", method: http.MethodGet, user: "a1", path: "/users/v2", code: http.StatusOK},
		{name: "admin lists users", method: http.MethodGet, user: "a1", path: "/users/", code: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newHandlerFixture(t,
				principal(t, "v1", "viewer", authz.RoleViewer),
				principal(t, "v2", "other", authz.RoleViewer),
				principal(t, "a1", "admin", authz.RoleAdmin),
			)
			var req *http.Request
			if tc.method == http.MethodPost {
				req = postForm(tc.path, url.Values{})
			} else {
				req = httptest.NewRequest(tc.method, tc.path, nil)
			}

			res, sess := f.serve(t, req, tc.user)

			assert.Equal(t, tc.code, res.Code)
			assert.True(t, f.has("v2"))
			if tc.location == "" {
				return
			}
			assert.Equal(t, tc.location, res.Header().Get("Location"))
			flashes := sess.DrainFlashes()
			require.Len(t, flashes, 1)
			assert.Equal(t, tc.message, flashes[0].Message)
		})
	}
}

func TestDeleteLastAdminRerendersWithAdminCount(t *testing.T) {
	f := newHandlerFixture(t,
		principal(t, "a1", "admin", authz.RoleAdmin),
		principal(t, "v1", "viewer", authz.RoleViewer),
	)

	res, _ := f.serve(t, postForm("/users/a1/delete", url.Values{}), "a1")

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "This is the only admin account left and it cannot be deleted.")
	assert.NotContains(t, res.Body.String(), "Do you really want to delete this user?")
	assert.True(t, f.has("a1"))

	res, _ = f.serve(t, httptest.NewRequest(http.MethodGet, "/users/a1/delete", nil), "a1")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "only admin account left")
}

func TestDeleteAdminWhenAnotherRemains(t *testing.T) {
	f := newHandlerFixture(t,
		principal(t, "a1", "admin", authz.RoleAdmin),
		principal(t, "a2", "second", authz.RoleAdmin),
	)

	res, _ := f.serve(t, httptest.NewRequest(http.MethodGet, "/users/a1/delete", nil), "a2")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Do you really want to delete this user?")

	res, _ = f.serve(t, postForm("/users/a1/delete", url.Values{}), "a2")
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/users", res.Header().Get("Location"))
	assert.False(t, f.has("a1"))
}

func TestDeleteOwnAccountRedirectsHome(t *testing.T) {
	f := newHandlerFixture(t, principal(t, "v1", "viewer", authz.RoleViewer))

	res, _ := f.serve(t, postForm("/users/v1/delete", url.Values{}), "v1")

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/", res.Header().Get("Location"))
	assert.False(t, f.has("v1"))
}

func TestUpdateHandlerKeepsRoleForNonAdmin(t *testing.T) {
	f := newHandlerFixture(t, principal(t, "v1", "viewer", authz.RoleViewer))
	form := url.Values{
		"username": {"viewer"},
		"fullname": {"Viewer Renamed"},
		"email":    {"viewer@example.com"},
		"role":     {"2"},
	}

	res, _ := f.serve(t, postForm("/users/v1/update_user", form), "v1")

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/users/v1", res.Header().Get("Location"))
	stored, err := f.repo.FindByID(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleViewer, stored.Role)
	assert.Equal(t, "Viewer Renamed", stored.FullName)
}
