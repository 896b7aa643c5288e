package oauth2

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/socialauth/internal/oauth"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func clock() time.Time { return fixedNow }

func TestCreateURL_OrderAndRequiredOptions(t *testing.T) {
	c := New(Options{
		AuthURL:     "https://idp.example/auth",
		ClientID:    "cid",
		RedirectURI: "https://app.example/cb",
		Scope:       "openid email",
		State:       "xyz",
		RequestParams: []Param{
			{Key: "prompt", Value: "select_account"},
			{Key: "access_type", Value: "offline"},
		},
	})
	got, err := c.CreateURL()
	require.NoError(t, err)
	assert.Equal(t,
		"https://idp.example/auth?response_type=code&client_id=cid&redirect_uri=https%3A%2F%2Fapp.example%2Fcb&scope=openid+email&state=xyz&prompt=select_account&access_type=offline",
		got)

	_, err = New(Options{ClientID: "cid"}).CreateURL()
	assert.ErrorIs(t, err, ErrMissingAuthURL)
	_, err = New(Options{AuthURL: "https://idp.example/auth"}).CreateURL()
	assert.ErrorIs(t, err, ErrMissingClientID)
}

func TestCreateURL_ExistingQueryAndNoState(t *testing.T) {
	c := New(Options{AuthURL: "https://idp.example/auth?tenant=common", ClientID: "cid"})
	got, err := c.CreateURL()
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example/auth?tenant=common&response_type=code&client_id=cid&redirect_uri=&scope=", got)
}

func TestExchange_JSONResponse(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		form = r.PostForm
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600,"token_type":"Bearer","id_token":"idt","foo":"bar"}`))
	}))
	defer srv.Close()

	c := New(Options{
		TokenURL: srv.URL, ClientID: "cid", ClientSecret: "sec",
		RedirectURI: "https://app.example/cb", ExchangeScope: "email", Now: clock,
	})
	tok, err := c.Exchange(context.Background(), "the-code")
	require.NoError(t, err)

	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "the-code", form.Get("code"))
	assert.Equal(t, "https://app.example/cb", form.Get("redirect_uri"))
	assert.Equal(t, "cid", form.Get("client_id"))
	assert.Equal(t, "sec", form.Get("client_secret"))
	assert.Equal(t, "email", form.Get("scope"))

	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.EqualValues(t, 3600, tok.ExpiresIn)
	assert.Equal(t, fixedNow.Unix(), tok.Created)
	assert.Equal(t, "idt", tok.IDToken)
	assert.Equal(t, "bar", tok.Extra["foo"])
	assert.Same(t, tok, c.Token())
}

func TestExchange_FormResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("access_token=abc&expires_in=5183999&token_type=bearer"))
	}))
	defer srv.Close()

	tok, err := New(Options{TokenURL: srv.URL, Now: clock}).Exchange(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
	assert.EqualValues(t, 5183999, tok.ExpiresIn)
}

func TestExchange_ErrorsAreTyped(t *testing.T) {
	t.Run("transport", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		}))
		defer srv.Close()

		_, err := New(Options{TokenURL: srv.URL}).Exchange(context.Background(), "c")
		var te *oauth.TransportError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, http.StatusBadRequest, te.StatusCode)
		assert.Contains(t, string(te.Body), "invalid_grant")
	})

	t.Run("missing access token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"error":"bad_verification_code","error_description":"expired"}`))
		}))
		defer srv.Close()

		_, err := New(Options{TokenURL: srv.URL}).Exchange(context.Background(), "c")
		assert.ErrorIs(t, err, ErrInvalidTokenResponse)
		assert.Contains(t, err.Error(), "bad_verification_code")
	})
}

func TestIsAuthenticated_ExpiryMargin(t *testing.T) {
	cases := []struct {
		name string
		tok  *Token
		want bool
	}{
		{"no token", nil, false},
		{"no access token", &Token{ExpiresIn: 3600, Created: fixedNow.Unix()}, false},
		{"no expiry", &Token{AccessToken: "a", Created: fixedNow.Unix() - 100000}, true},
		{"expires in 21s", &Token{AccessToken: "a", Created: fixedNow.Unix(), ExpiresIn: 21}, true},
		{"expires in 20s", &Token{AccessToken: "a", Created: fixedNow.Unix(), ExpiresIn: 20}, false},
		{"expires in 19s", &Token{AccessToken: "a", Created: fixedNow.Unix(), ExpiresIn: 19}, false},
		{"already expired", &Token{AccessToken: "a", Created: fixedNow.Unix() - 100, ExpiresIn: 10}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(Options{Now: clock})
			c.SetToken(tc.tok)
			assert.Equal(t, tc.want, c.IsAuthenticated())
		})
	}
}

func TestQuery_RefreshDisabledFailsClosed(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(Options{TokenURL: srv.URL, Now: clock})
	c.SetToken(&Token{AccessToken: "old", RefreshToken: "rt", Created: fixedNow.Unix(), ExpiresIn: 10})

	_, err := c.Query(context.Background(), QueryRequest{URL: srv.URL + "/me"})
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.EqualValues(t, 0, atomic.LoadInt32(&hits))
}

func TestQuery_RefreshEnabledRefreshesThenQueries(t *testing.T) {
	var refreshForm url.Values
	var authHeader string
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		refreshForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new","expires_in":3600}`))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"id":"1"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Options{TokenURL: srv.URL + "/token", ClientID: "cid", ClientSecret: "sec", UseRefresh: true, Now: clock})
	c.SetToken(&Token{AccessToken: "old", RefreshToken: "rt", Created: fixedNow.Unix(), ExpiresIn: 5})

	resp, err := c.Query(context.Background(), QueryRequest{URL: srv.URL + "/me"})
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, string(resp.Body))
	assert.Equal(t, "refresh_token", refreshForm.Get("grant_type"))
	assert.Equal(t, "rt", refreshForm.Get("refresh_token"))
	assert.Equal(t, "Bearer new", authHeader)
	// refresh token survives a response that omits it
	assert.Equal(t, "rt", c.Token().RefreshToken)
}

func TestQuery_GetParamInsteadOfBearer(t *testing.T) {
	var gotQuery url.Values
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c := New(Options{GetParam: "access_token", Now: clock})
	c.SetToken(&Token{AccessToken: "tok", Created: fixedNow.Unix()})

	_, err := c.Query(context.Background(), QueryRequest{URL: srv.URL + "/me", Data: url.Values{"fields": {"id"}}})
	require.NoError(t, err)
	assert.Equal(t, "tok", gotQuery.Get("access_token"))
	assert.Equal(t, "id", gotQuery.Get("fields"))
	assert.Empty(t, gotAuth)
}

func TestQuery_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Options{Now: clock})
	c.SetToken(&Token{AccessToken: "tok", Created: fixedNow.Unix()})
	_, err := c.Get(context.Background(), srv.URL)
	assert.True(t, oauth.IsTransport(err))
}

func TestRefreshToken_Gating(t *testing.T) {
	c := New(Options{TokenURL: "http://unused"})
	_, err := c.RefreshToken(context.Background(), &Token{RefreshToken: "rt"})
	assert.ErrorIs(t, err, ErrRefreshDisabled)

	c = New(Options{TokenURL: "http://unused", UseRefresh: true})
	_, err = c.RefreshToken(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestAuthenticate_RedirectsWithoutCode(t *testing.T) {
	c := New(Options{AuthURL: "https://idp.example/auth", ClientID: "cid", SendHeaders: true})
	r := httptest.NewRequest(http.MethodGet, "/cb", nil)
	w := httptest.NewRecorder()

	tok, err := c.Authenticate(context.Background(), w, r)
	assert.Nil(t, tok)
	assert.ErrorIs(t, err, oauth.ErrRedirected)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "https://idp.example/auth?response_type=code")

	c = New(Options{AuthURL: "https://idp.example/auth", ClientID: "cid"})
	tok, err = c.Authenticate(context.Background(), httptest.NewRecorder(), r)
	assert.Nil(t, tok)
	assert.NoError(t, err)
}

func TestToken_MarshalRoundTripKeepsCreated(t *testing.T) {
	in := &Token{AccessToken: "a", Created: 42, ExpiresIn: 10}
	s, err := in.Marshal()
	require.NoError(t, err)
	out, err := UnmarshalToken(s)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(52, 0), out.ExpiresAt())
}
