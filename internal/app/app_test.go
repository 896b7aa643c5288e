package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/socialauth/internal/config"
	"github.com/dropDatabas3/socialauth/internal/metrics"
	"github.com/dropDatabas3/socialauth/internal/providers/builtin"
)

const testYAML = `
server:
  base_url: https://login.example.com
registration:
  open: true
providers:
  google:
    enabled: true
    client_id: gid
    client_secret: gsecret
    params:
      prompt: select_account
      access_type: online
    can_login_unlinked: true
  github:
    enabled: false
    client_id: ghid
`

func TestNew_MemoryStack(t *testing.T) {
	cfg, err := config.Parse([]byte(testYAML))
	require.NoError(t, err)

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/providers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"google"}, body["providers"])

	rec = httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google/start", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "redirect_uri=https%3A%2F%2Flogin.example.com%2Fauth%2Fgoogle%2Fcallback")
	// params en orden de clave
	assert.Contains(t, loc, "&access_type=online&prompt=select_account")
}

func TestEntries(t *testing.T) {
	cfg, err := config.Parse([]byte(testYAML))
	require.NoError(t, err)

	entries, err := Entries(cfg, builtin.NewRegistry(), metrics.Noop{})
	require.NoError(t, err)
	require.Contains(t, entries, "google")
	assert.NotContains(t, entries, "github")

	g := entries["google"]
	assert.True(t, g.Policy.CanLoginUnlinked)
	assert.True(t, g.Policy.CanCreateNewUsers)
	assert.Equal(t, "gid", g.Config.ClientID)
	assert.NotNil(t, g.Config.HTTPClient)
	assert.Equal(t, ProviderTimeout, g.Config.HTTPClient.Timeout)

	// falta el secret: falla al armar, no en el primer login
	p := cfg.Providers["google"]
	p.ClientSecret = ""
	cfg.Providers["google"] = p
	_, err = Entries(cfg, builtin.NewRegistry(), metrics.Noop{})
	assert.Error(t, err)
}
