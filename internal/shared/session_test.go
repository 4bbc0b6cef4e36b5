package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/hashavatar/hashavatar/internal/kv"
)

func newTestSessions(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(kv.NewRedis(client), "hashavatar_session", "secret", time.Hour, false), mr
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	sm, mr := newTestSessions(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.Set("k", "v")
	sess.AddFlash(FlashMessage{Kind: "success", Message: "saved"})

	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, req, sess))
	require.True(t, mr.Exists("session:"+sess.ID))
	ttl := mr.TTL("session:" + sess.ID)
	require.Equal(t, time.Hour, ttl)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookies[0])
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	require.Equal(t, sess.ID, loaded.ID)
	require.Equal(t, "v", loaded.Get("k"))
	flash := loaded.PopFlash()
	require.NotNil(t, flash)
	require.Equal(t, "saved", flash.Message)
	require.Nil(t, loaded.PopFlash())
}

func TestSessionDestroy(t *testing.T) {
	ctx := context.Background()
	sm, mr := newTestSessions(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))
	require.True(t, mr.Exists("session:"+sess.ID))

	sm.Destroy(sess)
	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, req, sess))
	require.False(t, mr.Exists("session:"+sess.ID))
	require.Equal(t, -1, rr.Result().Cookies()[0].MaxAge)
}

func TestSessionMalformedPayloadStartsFresh(t *testing.T) {
	ctx := context.Background()
	sm, mr := newTestSessions(t)
	require.NoError(t, mr.Set("session:abc", "{broken"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "abc"})
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "abc", sess.ID)
	require.Empty(t, sess.Get("k"))
}

func TestCSRFTokens(t *testing.T) {
	ctx := context.Background()
	sm, _ := newTestSessions(t)
	csrf := NewCSRFManager("csrf-secret")

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	require.Equal(t, token, again)

	require.NoError(t, csrf.VerifyToken(ctx, sess, token))
	require.ErrorIs(t, csrf.VerifyToken(ctx, sess, "nope"), ErrCSRFTokenMismatch)
	require.ErrorIs(t, csrf.VerifyToken(ctx, sess, ""), ErrCSRFTokenMissing)
	require.ErrorIs(t, csrf.VerifyToken(ctx, nil, token), ErrCSRFTokenMissing)

	rotated, err := csrf.RotateToken(ctx, sess)
	require.NoError(t, err)
	require.NotEqual(t, token, rotated)
	require.ErrorIs(t, csrf.VerifyToken(ctx, sess, token), ErrCSRFTokenMismatch)
	require.NoError(t, csrf.VerifyToken(ctx, sess, rotated))
}

func TestCSRFTokenBoundToSession(t *testing.T) {
	ctx := context.Background()
	sm, _ := newTestSessions(t)
	csrf := NewCSRFManager("csrf-secret")

	a, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	token, err := csrf.EnsureToken(ctx, a)
	require.NoError(t, err)

	// A token copied into another session fails the signature check.
	b, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	b.Set(CSRFSessionKey, token)
	require.ErrorIs(t, csrf.VerifyToken(ctx, b, token), ErrCSRFTokenMismatch)

	// EnsureToken replaces a token that does not belong to the session.
	fresh, err := csrf.EnsureToken(ctx, b)
	require.NoError(t, err)
	require.NotEqual(t, token, fresh)
}

func TestTokenFromRequest(t *testing.T) {
	form := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(CSRFFormField+"=from-form"))
	form.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.Equal(t, "from-form", TokenFromRequest(form))

	header := httptest.NewRequest(http.MethodPost, "/", nil)
	header.Header.Set(CSRFHeader, "from-header")
	require.Equal(t, "from-header", TokenFromRequest(header))
}

func TestSessionIDOr(t *testing.T) {
	ctx := context.Background()
	require.Equal(t, "anon", SessionIDOr(ctx, "anon"))
	require.Equal(t, "s1", SessionIDOr(ContextWithSession(ctx, &Session{ID: "s1"}), "anon"))
}
