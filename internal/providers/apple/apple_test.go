package apple

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xoauth2 "golang.org/x/oauth2"

	appleid "github.com/dropDatabas3/socialauth/internal/oauth/apple"
	"github.com/dropDatabas3/socialauth/internal/oauth/jwks"
	"github.com/dropDatabas3/socialauth/internal/providers"
)

func TestSignInWithApple(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	idTok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, jwtv5.MapClaims{
		"iss":             appleid.Issuer,
		"aud":             "com.example.web",
		"sub":             "000123.apple",
		"iat":             time.Now().Unix(),
		"exp":             time.Now().Add(5 * time.Minute).Unix(),
		"email":           "relay@privaterelay.appleid.com",
		"email_verified":  "true",
		"nonce_supported": true,
		"nonce":           "n-1",
	})
	idTok.Header["kid"] = "AK"
	signed, err := idTok.SignedString(key)
	require.NoError(t, err)

	var form url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/keys", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks.Set{Keys: []jwks.Key{jwks.FromRSA("AK", &key.PublicKey)}})
	})
	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "a", "id_token": signed, "expires_in": 3600})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := New()
	conn, err := p.Connector(providers.Config{
		ClientID: "com.example.web", ClientSecret: "static-secret", State: "st", Nonce: "n-1",
		Endpoint: xoauth2.Endpoint{AuthURL: srv.URL + "/auth/authorize", TokenURL: srv.URL + "/auth/token"},
		Extra:    map[string]string{"keys_url": srv.URL + "/auth/keys"},
	})
	require.NoError(t, err)

	authURL, err := conn.AuthURL(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(authURL, "&response_mode=form_post&nonce=n-1"), authURL)

	body := "code=c1&state=st&user=" + url.QueryEscape(`{"name":{"firstName":"Tim","lastName":"Apple"},"email":"relay@privaterelay.appleid.com"}`)
	r := httptest.NewRequest(http.MethodPost, "/cb", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.NoError(t, conn.Complete(context.Background(), r))
	assert.Equal(t, "static-secret", form.Get("client_secret"))

	prof, err := p.FetchProfile(context.Background(), conn, providers.Callback{Form: r.PostForm, Nonce: "n-1"})
	require.NoError(t, err)
	ud, err := p.MapProfile(prof)
	require.NoError(t, err)
	assert.Equal(t, "000123.apple", ud.ID)
	assert.Equal(t, "Tim Apple", ud.Name)
	assert.True(t, ud.Verified)

	_, err = p.FetchProfile(context.Background(), conn, providers.Callback{Form: r.PostForm, Nonce: "other"})
	assert.ErrorIs(t, err, appleid.ErrBadNonce)
}

func TestConnector_SignsClientSecret(t *testing.T) {
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(k)
	require.NoError(t, err)

	conn, err := New().Connector(providers.Config{
		ClientID: "com.example.web",
		Extra: map[string]string{
			"team_id":     "TEAM",
			"key_id":      "KID",
			"private_key": string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		},
	})
	require.NoError(t, err)
	oc, err := providers.AsOAuth2(conn)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(oc.Client.Options().ClientSecret, ".")+1)

	_, err = New().Connector(providers.Config{ClientID: "com.example.web"})
	assert.ErrorIs(t, err, providers.ErrConfig)
}
