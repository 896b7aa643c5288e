package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	xoauth2 "golang.org/x/oauth2"

	"github.com/dropDatabas3/socialauth/internal/cache"
	healthctrl "github.com/dropDatabas3/socialauth/internal/http/controllers/health"
	socialctrl "github.com/dropDatabas3/socialauth/internal/http/controllers/social"
	svc "github.com/dropDatabas3/socialauth/internal/http/services/social"
	"github.com/dropDatabas3/socialauth/internal/login"
	"github.com/dropDatabas3/socialauth/internal/metrics"
	"github.com/dropDatabas3/socialauth/internal/observability/logger"
	"github.com/dropDatabas3/socialauth/internal/providers"
	"github.com/dropDatabas3/socialauth/internal/providers/builtin"
	"github.com/dropDatabas3/socialauth/internal/session"
	"github.com/dropDatabas3/socialauth/internal/store"
)

type fixture struct {
	app      *httptest.Server
	client   *http.Client
	links    *store.MemoryLinkStore
	users    *store.MemoryDirectory
	verified atomic.Bool
}

// fakeGoogle sirve /token y /v1/userinfo como lo haría Google.
func fakeGoogle(t *testing.T, f *fixture) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("client_secret") != "secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/v1/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":            "g-1",
			"name":           "Ada Lovelace",
			"email":          "ada@example.com",
			"email_verified": f.verified.Load(),
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{}
	f.verified.Store(true)
	idp := fakeGoogle(t, f)

	reg := prometheus.NewRegistry()
	rec, err := metrics.New(reg)
	require.NoError(t, err)

	f.links = store.NewMemoryLinkStore()
	f.users = store.NewMemoryDirectory(store.MemoryDirectoryOptions{RegistrationOpen: true})
	orch := login.New(login.Options{Links: f.links, Users: f.users, Metrics: rec})

	sessions := &session.Manager{Store: cache.NewMemory("test:", time.Minute), TTL: time.Minute}
	service := svc.NewService(svc.Deps{
		Registry: builtin.NewRegistry(),
		Login:    orch,
		Entries: map[string]svc.Entry{
			"google": {
				Config: providers.Config{
					ClientID:     "cid",
					ClientSecret: "secret",
					RedirectURI:  "http://app.test/auth/google/callback",
					Endpoint:     xoauth2.Endpoint{AuthURL: idp.URL + "/authorize", TokenURL: idp.URL + "/token"},
					APIBase:      idp.URL,
					HTTPClient:   idp.Client(),
				},
				Policy: login.DefaultPolicy(),
			},
		},
		ReturnHosts: []string{"app.example.com"},
	})

	f.app = httptest.NewServer(New(Deps{
		Social:   socialctrl.NewController(service, sessions),
		Health:   healthctrl.NewController(nil),
		Metrics:  rec,
		Gatherer: reg,
	}))
	t.Cleanup(f.app.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	f.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return f
}

func (f *fixture) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	return f.doWith(t, f.client, method, path, nil)
}

func (f *fixture) doWith(t *testing.T, client *http.Client, method, path string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.app.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// sid es el id de sesión que tiene hoy el navegador.
func (f *fixture) sid(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(f.app.URL)
	require.NoError(t, err)
	for _, c := range f.client.Jar.Cookies(u) {
		if c.Name == session.CookieName {
			return c.Value
		}
	}
	return ""
}

// meWithSID consulta /auth/me desde otro cliente que solo conoce sid.
func (f *fixture) meWithSID(t *testing.T, sid string) int {
	t.Helper()
	h := http.Header{}
	h.Set("Cookie", session.CookieName+"="+sid)
	return f.doWith(t, http.DefaultClient, http.MethodGet, "/auth/me", h).StatusCode
}

// start devuelve el state que viajó al proveedor.
func (f *fixture) start(t *testing.T, ret string) string {
	t.Helper()
	resp := f.do(t, http.MethodGet, "/auth/google/start?return="+url.QueryEscape(ret))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(loc.Path, "/authorize"))
	assert.Equal(t, "cid", loc.Query().Get("client_id"))
	assert.Equal(t, "openid email profile", loc.Query().Get("scope"))
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body["code"]
}

func TestSocialLogin_GoogleNewAccount(t *testing.T) {
	f := newFixture(t)

	state := f.start(t, "/dashboard")
	resp := f.do(t, http.MethodGet, "/auth/google/callback?code=good-code&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	acc, err := f.users.FindByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ada.lovelace", acc.Username)

	uid, err := f.links.FindUserByExternalID(context.Background(), "google", "g-1")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, uid)

	me := f.do(t, http.MethodGet, "/auth/me")
	require.Equal(t, http.StatusOK, me.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(me.Body).Decode(&body))
	assert.Equal(t, acc.ID, body["user_id"])

	// el state es de un solo uso
	replay := f.do(t, http.MethodGet, "/auth/google/callback?code=good-code&state="+url.QueryEscape(state))
	assert.Equal(t, http.StatusBadRequest, replay.StatusCode)
	assert.Equal(t, "INVALID_STATE", errorCode(t, replay))

	// logout + login de nuevo: mismo usuario, ahora por vínculo
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/auth/logout").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/auth/me").StatusCode)

	state = f.start(t, "")
	resp = f.do(t, http.MethodGet, "/auth/google/callback?code=good-code&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Len(t, f.users.Logins(), 2)

	unlink := f.do(t, http.MethodPost, "/auth/google/unlink")
	require.Equal(t, http.StatusNoContent, unlink.StatusCode)
	_, err = f.links.FindUserByExternalID(context.Background(), "google", "g-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	metricsResp := f.do(t, http.MethodGet, "/metrics")
	b, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `socialauth_login_outcomes_total{code="",outcome="logged_in",provider="google"} 2`)
}

func TestCallback_CompletionLogCarriesOutcome(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	defer logger.Replace(zap.New(core))()
	f := newFixture(t)

	state := f.start(t, "/")
	resp := f.do(t, http.MethodGet, "/auth/google/callback?code=good-code&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	acc, err := f.users.FindByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)

	var done []observer.LoggedEntry
	for _, e := range logs.FilterMessage("request completed").All() {
		if e.ContextMap()["path"] == "/auth/google/callback" {
			done = append(done, e)
		}
	}
	require.Len(t, done, 1)
	fields := done[0].ContextMap()
	assert.Equal(t, "google", fields["provider"])
	assert.Equal(t, "logged_in", fields["outcome"])
	assert.Equal(t, acc.ID, fields["user_id"])
	assert.NotContains(t, fields, "code")

	// sin state válido: el rechazo también queda con su provider
	bad := f.do(t, http.MethodGet, "/auth/google/callback?code=good-code&state=nope")
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)
	warned := logs.FilterMessage("request completed with client error").All()
	require.NotEmpty(t, warned)
	assert.Equal(t, "google", warned[len(warned)-1].ContextMap()["provider"])
}

func TestSession_RotatedAcrossLogin(t *testing.T) {
	f := newFixture(t)

	// id conseguido antes del login (p.ej. plantado por un tercero)
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/auth/me").StatusCode)
	planted := f.sid(t)
	require.NotEmpty(t, planted)

	state := f.start(t, "/")
	attempt := f.sid(t)
	assert.NotEqual(t, planted, attempt)

	resp := f.do(t, http.MethodGet, "/auth/google/callback?code=good-code&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loggedIn := f.sid(t)
	assert.NotEqual(t, attempt, loggedIn)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/auth/me").StatusCode)

	assert.Equal(t, http.StatusUnauthorized, f.meWithSID(t, planted))
	assert.Equal(t, http.StatusUnauthorized, f.meWithSID(t, attempt))
	assert.Equal(t, http.StatusOK, f.meWithSID(t, loggedIn))

	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/auth/logout").StatusCode)
	assert.NotEqual(t, loggedIn, f.sid(t))
	assert.Equal(t, http.StatusUnauthorized, f.meWithSID(t, loggedIn))
}

func TestSession_UnissuedIDIsReplaced(t *testing.T) {
	f := newFixture(t)
	forged := strings.Repeat("A", 43) // 32 bytes base64url, nunca emitido
	h := http.Header{}
	h.Set("Cookie", session.CookieName+"="+forged)
	resp := f.doWith(t, http.DefaultClient, http.MethodGet, "/auth/me", h)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var issued string
	for _, c := range resp.Cookies() {
		if c.Name == session.CookieName {
			issued = c.Value
		}
	}
	assert.NotEmpty(t, issued)
	assert.NotEqual(t, forged, issued)
}

func TestStateChangingPOST_RejectsCrossOrigin(t *testing.T) {
	f := newFixture(t)
	state := f.start(t, "/")
	require.Equal(t, http.StatusSeeOther, f.do(t, http.MethodGet, "/auth/google/callback?code=good-code&state="+url.QueryEscape(state)).StatusCode)

	evil := http.Header{}
	evil.Set("Origin", "https://evil.example")
	resp := f.doWith(t, f.client, http.MethodPost, "/auth/google/unlink", evil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "CROSS_ORIGIN_REQUEST", errorCode(t, resp))
	_, err := f.links.FindUserByExternalID(context.Background(), "google", "g-1")
	require.NoError(t, err)

	crossSite := http.Header{}
	crossSite.Set("Sec-Fetch-Site", "cross-site")
	assert.Equal(t, http.StatusForbidden, f.doWith(t, f.client, http.MethodPost, "/auth/logout", crossSite).StatusCode)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/auth/me").StatusCode)

	own := http.Header{}
	own.Set("Origin", f.app.URL)
	assert.Equal(t, http.StatusNoContent, f.doWith(t, f.client, http.MethodPost, "/auth/google/unlink", own).StatusCode)
	_, err = f.links.FindUserByExternalID(context.Background(), "google", "g-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSocialLogin_Rejections(t *testing.T) {
	f := newFixture(t)

	t.Run("state mismatch", func(t *testing.T) {
		f.start(t, "/")
		resp := f.do(t, http.MethodGet, "/auth/google/callback?code=good-code&state=forged")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_STATE", errorCode(t, resp))
	})

	t.Run("access denied", func(t *testing.T) {
		state := f.start(t, "/")
		resp := f.do(t, http.MethodGet, "/auth/google/callback?error=access_denied&state="+url.QueryEscape(state))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "ACCESS_DENIED", errorCode(t, resp))
	})

	t.Run("bad code", func(t *testing.T) {
		state := f.start(t, "/")
		resp := f.do(t, http.MethodGet, "/auth/google/callback?code=bad&state="+url.QueryEscape(state))
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, "PROVIDER_ERROR", errorCode(t, resp))
	})

	t.Run("unverified email", func(t *testing.T) {
		f.verified.Store(false)
		defer f.verified.Store(true)
		state := f.start(t, "/")
		resp := f.do(t, http.MethodGet, "/auth/google/callback?code=good-code&state="+url.QueryEscape(state))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "LOCAL_NOT_FOUND", errorCode(t, resp))
	})

	t.Run("unknown provider", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/auth/myspace/start")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "PROVIDER_NOT_FOUND", errorCode(t, resp))
	})

	t.Run("open redirect", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/auth/google/start?return="+url.QueryEscape("https://evil.test/"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unlink without session user", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/auth/google/unlink")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestHealthzAndProviders(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz").StatusCode)

	resp := f.do(t, http.MethodGet, "/auth/providers")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	var body map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"google"}, body["providers"])
}

func TestSafeReturn(t *testing.T) {
	s := svc.NewService(svc.Deps{ReturnHosts: []string{"App.Example.com"}})
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "/", true},
		{"/account?tab=1", "/account?tab=1", true},
		{"https://app.example.com/x", "https://app.example.com/x", true},
		{"//evil.test/x", "", false},
		{"/\\evil.test", "", false},
		{"javascript:alert(1)", "", false},
		{"https://evil.test/", "", false},
		{"relative/path", "", false},
	}
	for _, c := range cases {
		got, err := s.SafeReturn(c.in)
		if !c.ok {
			assert.ErrorIs(t, err, svc.ErrInvalidReturn, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got)
	}
}
