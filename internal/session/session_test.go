package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/socialauth/internal/cache"
)

func TestSession_ScopedKeys(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory("", time.Minute)
	a := New(store, "a", 0)
	b := New(store, "b", 0)

	require.NoError(t, a.Set(ctx, "state", "s1"))
	_, ok, err := b.Get(ctx, "state")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := a.Take(ctx, "state")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "s1", v)

	_, ok, err = a.Take(ctx, "state")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_IssuesAndReusesCookie(t *testing.T) {
	m := &Manager{Store: cache.NewMemory("", time.Minute)}

	rec := httptest.NewRecorder()
	s1, err := m.Load(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec2 := httptest.NewRecorder()
	s2, err := m.Load(rec2, req)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, s2.ID)
	assert.Empty(t, rec2.Result().Cookies())
}

func TestManager_RejectsForgedID(t *testing.T) {
	m := &Manager{Store: cache.NewMemory("", time.Minute), Secure: true}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "short"})
	rec := httptest.NewRecorder()

	s, err := m.Load(rec, req)
	require.NoError(t, err)
	assert.NotEqual(t, "short", s.ID)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, http.SameSiteNoneMode, rec.Result().Cookies()[0].SameSite)
}

func TestManager_RejectsUnissuedID(t *testing.T) {
	m := &Manager{Store: cache.NewMemory("", time.Minute)}
	sid, err := NewID()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: sid})
	rec := httptest.NewRecorder()
	s, err := m.Load(rec, req)
	require.NoError(t, err)
	assert.NotEqual(t, sid, s.ID)
	require.Len(t, rec.Result().Cookies(), 1)
}

func TestManager_Rotate(t *testing.T) {
	ctx := context.Background()
	m := &Manager{Store: cache.NewMemory("", time.Minute), TTL: 10 * time.Minute}

	rec := httptest.NewRecorder()
	first, err := m.Load(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	// emitida en este mismo request: no hace falta rotar
	same, err := m.Rotate(ctx, rec, first, "user_id")
	require.NoError(t, err)
	assert.Equal(t, first.ID, same.ID)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(rec.Result().Cookies()[0])
	old, err := m.Load(httptest.NewRecorder(), req)
	require.NoError(t, err)
	require.NoError(t, old.Set(ctx, "user_id", "u1"))
	require.NoError(t, old.Set(ctx, "state.google", "s"))

	rec2 := httptest.NewRecorder()
	next, err := m.Rotate(ctx, rec2, old, "user_id")
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, next.ID)

	v, ok, err := next.Get(ctx, "user_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u1", v)
	_, ok, err = next.Get(ctx, "state.google")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = old.Get(ctx, "user_id")
	require.NoError(t, err)
	assert.False(t, ok)

	cookies := rec2.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, next.ID, cookies[0].Value)
	assert.Equal(t, 600, cookies[0].MaxAge)

	// el id viejo ya no se acepta
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: old.ID})
	again, err := m.Load(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, again.ID)
}
