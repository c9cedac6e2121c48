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

func newTestSessionManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "test_session", "secret", time.Hour, false), mr
}

func findCookie(res *http.Response, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}

func TestSessionCommitAndReload(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.SetUser("42")

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, req, sess))
	assert.True(t, mr.Exists("session:"+sess.ID))

	cookie := findCookie(rec.Result(), sm.CookieName())
	require.NotNil(t, cookie)
	assert.Equal(t, sess.ID, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: sess.ID})
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "42", loaded.User())
}

func TestSessionLoadIgnoresUnknownID(t *testing.T) {
	sm, _ := newTestSessionManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "attacker-chosen"})
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, "attacker-chosen", sess.ID)
	assert.Empty(t, sess.User())
}

func TestSessionClearRemovesStoredState(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.SetUser("7")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))

	logoutReq := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logoutReq.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: sess.ID})
	loaded, err := sm.Load(ctx, logoutReq)
	require.NoError(t, err)
	logoutCtx := ContextWithSession(ctx, loaded)

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Clear(logoutCtx, rec, logoutReq.WithContext(logoutCtx)))
	assert.False(t, mr.Exists("session:"+sess.ID))
	assert.True(t, loaded.Cleared())
	assert.Empty(t, loaded.User())

	cookie := findCookie(rec.Result(), sm.CookieName())
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Equal(t, -1, cookie.MaxAge)

	// Commit after Clear must not resurrect the session.
	commitRec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(logoutCtx, commitRec, logoutReq, loaded))
	assert.Empty(t, commitRec.Result().Cookies())
	assert.False(t, mr.Exists("session:"+sess.ID))
}

func TestSessionClearWithoutSessionOrCookie(t *testing.T) {
	sm, _ := newTestSessionManager(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Clear(context.Background(), rec, req))

	cookie := findCookie(rec.Result(), sm.CookieName())
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestSessionClearFailsWhenStoreUnavailable(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	mr.Close()

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "abc"})
	rec := httptest.NewRecorder()
	err := sm.Clear(context.Background(), rec, req)
	require.Error(t, err)
	assert.Empty(t, rec.Result().Cookies())
}

func TestSessionRenewRotatesID(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))
	oldID := sess.ID

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: oldID})
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)

	require.NoError(t, sm.Renew(ctx, loaded))
	assert.NotEqual(t, oldID, loaded.ID)
	assert.False(t, mr.Exists("session:"+oldID))

	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), next, loaded))
	assert.True(t, mr.Exists("session:"+loaded.ID))
}
