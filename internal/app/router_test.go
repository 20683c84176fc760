package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locallibrary/locallibrary/internal/auth"
	"github.com/locallibrary/locallibrary/internal/authz"
	"github.com/locallibrary/locallibrary/internal/observability"
	"github.com/locallibrary/locallibrary/internal/shared"
	"github.com/locallibrary/locallibrary/internal/users"
	"github.com/locallibrary/locallibrary/internal/view"
)

type principalStub map[string]*users.Principal

func (s principalStub) FindByID(_ context.Context, id string) (*users.Principal, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return nil, shared.ErrNotFound
}

func (s principalStub) FindByUsername(_ context.Context, username string) (*users.Principal, error) {
	for _, p := range s {
		if p.Username == username {
			return p, nil
		}
	}
	return nil, shared.ErrNotFound
}

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

type client struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	res := httptest.NewRecorder()
	c.handler.ServeHTTP(res, req)
	for _, ck := range res.Result().Cookies() {
		c.cookies[ck.Name] = ck
	}
	return res
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func newTestRouter(t *testing.T, checks map[string]HealthCheck) *client {
	t.Helper()
	digest, salt, err := users.HashPassword("1111")
	require.NoError(t, err)
	store := principalStub{"p1": {ID: "p1", Username: "Read", FullName: "Read Only", Email: "read@example.com", Digest: digest, Salt: salt, Role: authz.RoleViewer}}

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := shared.NewSessionManager(redisClient, "sessionId", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	templates, err := view.NewEngine()
	require.NoError(t, err)

	authService := auth.NewService(store)
	mw := authz.Middleware{Resolver: authService, Logger: logger}
	metrics := observability.NewMetrics()
	mw.Observer = metrics

	handler := NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "test", RateLimitPerMinute: 1000},
		Templates:      templates,
		SessionManager: sessions,
		CSRFManager:    csrf,
		Authz:          mw,
		AuthHandler:    auth.NewHandler(logger, authService, templates, sessions, csrf, mw),
		Metrics:        metrics,
		HealthChecks:   checks,
	})
	return &client{t: t, handler: handler, cookies: make(map[string]*http.Cookie)}
}

func TestRootRedirectsToCatalog(t *testing.T) {
	c := newTestRouter(t, nil)
	res := c.get("/")
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/catalog", res.Header().Get("Location"))
	assert.Equal(t, "DENY", res.Header().Get("X-Frame-Options"))
}

func TestAnonymousCreateShowsLoginMessageOnce(t *testing.T) {
	c := newTestRouter(t, nil)

	res := c.get("/catalog/book/create")
	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, authz.LoginPath, res.Header().Get("Location"))

	page := c.get(authz.LoginPath)
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), authz.MsgLoginRequired)

	again := c.get(authz.LoginPath)
	assert.NotContains(t, again.Body.String(), authz.MsgLoginRequired)
}

func TestLoginThenViewerIsForbiddenFromCreate(t *testing.T) {
	c := newTestRouter(t, nil)

	page := c.get(authz.LoginPath)
	match := csrfPattern.FindStringSubmatch(page.Body.String())
	require.Len(t, match, 2)
	before := c.cookies["sessionId"].Value

	res := c.post(authz.LoginPath, url.Values{"username": {"Read"}, "password": {"1111"}, "csrf_token": {match[1]}})
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/", res.Header().Get("Location"))
	assert.NotEqual(t, before, c.cookies["sessionId"].Value)

	denied := c.get("/catalog/book/create")
	assert.Equal(t, http.StatusSeeOther, denied.Code)
	assert.Equal(t, authz.WarningPath, denied.Header().Get("Location"))

	metrics := c.get("/metrics")
	assert.Contains(t, metrics.Body.String(), `locallibrary_authz_decisions_total{class="book",decision="deny_forbidden",operation="create"} 1`)
}

func TestPostWithoutCSRFTokenIsRejected(t *testing.T) {
	c := newTestRouter(t, nil)
	res := c.post(authz.LoginPath, url.Values{"username": {"Read"}, "password": {"1111"}})
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestHealthzReportsDegradedDependency(t *testing.T) {
	c := newTestRouter(t, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	res := c.get("/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"postgres":"up","redis":"down"}}`, res.Body.String())
}

func TestUnknownRouteRendersNotFoundPage(t *testing.T) {
	c := newTestRouter(t, nil)
	res := c.get("/nowhere")
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Contains(t, res.Body.String(), "could not be found")
}

func TestLoginInvalidatesAnonymousCSRFToken(t *testing.T) {
	c := newTestRouter(t, nil)

	page := c.get(authz.LoginPath)
	match := csrfPattern.FindStringSubmatch(page.Body.String())
	require.Len(t, match, 2)
	anonymousToken := match[1]

	res := c.post(authz.LoginPath, url.Values{"username": {"Read"}, "password": {"1111"}, "csrf_token": {anonymousToken}})
	require.Equal(t, http.StatusSeeOther, res.Code)

	stale := c.post("/users/logout", url.Values{"csrf_token": {anonymousToken}})
	assert.Equal(t, http.StatusForbidden, stale.Code)

	page = c.get("/nowhere")
	match = csrfPattern.FindStringSubmatch(page.Body.String())
	require.Len(t, match, 2)
	assert.NotEqual(t, anonymousToken, match[1])

	out := c.post("/users/logout", url.Values{"csrf_token": {match[1]}})
	assert.Equal(t, http.StatusSeeOther, out.Code)
	assert.Equal(t, -1, c.cookies["sessionId"].MaxAge)
}
