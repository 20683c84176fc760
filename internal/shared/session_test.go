package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewSessionManager(client, "sid", time.Hour, false), mr
}

// roundTrip commits sess and loads it back through the emitted cookie.
func roundTrip(t *testing.T, sm *SessionManager, sess *Session) *Session {
	t.Helper()
	res := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), res, sess))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range res.Result().Cookies() {
		req.AddCookie(c)
	}
	loaded, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	return loaded
}

func TestSessionPersistsValuesAndUser(t *testing.T) {
	sm, _ := newTestManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.Set("k", "v")
	sess.SetUser("p1")

	loaded := roundTrip(t, sm, sess)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "v", loaded.Get("k"))
	assert.Equal(t, "p1", loaded.User())
}

func TestFlashIsOneShot(t *testing.T) {
	sm, _ := newTestManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.AddFlash(FlashError, "first")
	sess.AddFlash(FlashSuccess, "second")

	next := roundTrip(t, sm, sess)
	flashes := next.DrainFlashes()
	require.Len(t, flashes, 2)
	assert.Equal(t, "first", flashes[0].Message)

	after := roundTrip(t, sm, next)
	assert.Empty(t, after.DrainFlashes())
}

func TestUnknownCookieIsNotAdopted(t *testing.T) {
	sm, _ := newTestManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "attacker-chosen"})

	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, "attacker-chosen", sess.ID)
	assert.Empty(t, sess.User())
}

func TestRenewRotatesIdentifier(t *testing.T) {
	sm, mr := newTestManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	loaded := roundTrip(t, sm, sess)
	oldID := loaded.ID

	loaded.SetUser("p1")
	sm.Renew(loaded)
	renewed := roundTrip(t, sm, loaded)

	assert.NotEqual(t, oldID, renewed.ID)
	assert.Equal(t, "p1", renewed.User())
	assert.False(t, mr.Exists("session:"+oldID))
	assert.True(t, mr.Exists("session:"+renewed.ID))
}

func TestDestroyClearsCookieAndStore(t *testing.T) {
	sm, mr := newTestManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	loaded := roundTrip(t, sm, sess)

	sm.Destroy(loaded)
	res := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), res, loaded))

	assert.False(t, mr.Exists("session:"+loaded.ID))
	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestCommitSlidesExpiry(t *testing.T) {
	sm, mr := newTestManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	loaded := roundTrip(t, sm, sess)

	mr.FastForward(50 * time.Minute)
	require.NoError(t, sm.Commit(context.Background(), httptest.NewRecorder(), loaded))
	assert.Equal(t, time.Hour, mr.TTL("session:"+loaded.ID))
}

func TestCSRFTokenBoundToSession(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := &Session{ID: "s1"}
	token, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	again, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	require.NoError(t, m.VerifyToken(context.Background(), sess, token))
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, token+"x"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, ""), ErrCSRFTokenMissing)
}
