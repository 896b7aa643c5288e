// Package providers defines the social login providers.
//
// Each provider is a strategy that knows:
// - which protocol it speaks (OAuth 1.0a or OAuth 2.0) and how to build its connector
// - how to fetch the raw profile once a token is held
// - how to map that profile into the common UserData shape
//
// Provider implementations live in one sub-package per provider and are
// registered at startup (see package builtin).
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	xoauth2 "golang.org/x/oauth2"

	"github.com/dropDatabas3/socialauth/internal/oauth/oauth1"
	"github.com/dropDatabas3/socialauth/internal/oauth/oauth2"
)

// Protocol indicates the authentication protocol.
type Protocol string

const (
	ProtocolOAuth1 Protocol = "oauth1"
	ProtocolOAuth2 Protocol = "oauth2"
)

var (
	ErrProfile         = errors.New("providers: profile")
	ErrUnknownProvider = errors.New("providers: unknown provider")
	ErrMissingCode     = errors.New("providers: callback without code")
	ErrAccessDenied    = errors.New("providers: access denied by user")
	ErrConnector       = errors.New("providers: unexpected connector type")
	ErrConfig          = errors.New("providers: invalid configuration")
)

// UserData is the normalized identity a provider hands to the login.
// ID is unique within the provider; the link key namespaces it.
type UserData struct {
	ID       string
	Name     string
	Email    string
	Verified bool
	Timezone string
	Picture  string
}

// Provider is implemented once per social network.
type Provider interface {
	Name() string
	Protocol() Protocol

	// Connector builds the per-request protocol client.
	Connector(cfg Config) (Connector, error)
	// FetchProfile loads the raw profile with the token the connector holds.
	FetchProfile(ctx context.Context, c Connector, cb Callback) (*Profile, error)
	// MapProfile normalizes the raw profile.
	MapProfile(p *Profile) (*UserData, error)
}

// Config is the per-request provider configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	Params       []oauth2.Param // extra authorization parameters, in order
	UseRefresh   bool

	// State and Nonce are generated per attempt and kept in the session.
	State string
	Nonce string

	// Store keeps the OAuth1 request token across the redirect.
	Store oauth1.TokenStore

	// Endpoint and APIBase override the provider defaults (tests, proxies).
	Endpoint xoauth2.Endpoint
	APIBase  string

	// Extra carries provider specific settings (apple team_id, microsoft tenant...).
	Extra map[string]string

	HTTPClient *http.Client
	UserAgent  string
}

// Callback is what the provider redirected back with.
type Callback struct {
	Form  url.Values
	Nonce string
}

// ScopeOr joins the configured scopes or returns def.
func (c Config) ScopeOr(def string) string {
	if len(c.Scopes) == 0 {
		return def
	}
	return strings.Join(c.Scopes, " ")
}

// EndpointOr returns the configured endpoint, filling blanks from def.
func (c Config) EndpointOr(def xoauth2.Endpoint) xoauth2.Endpoint {
	ep := def
	if c.Endpoint.AuthURL != "" {
		ep.AuthURL = c.Endpoint.AuthURL
	}
	if c.Endpoint.TokenURL != "" {
		ep.TokenURL = c.Endpoint.TokenURL
	}
	return ep
}

// API joins path to the configured API base or def.
func (c Config) API(def, path string) string {
	base := def
	if c.APIBase != "" {
		base = c.APIBase
	}
	return strings.TrimRight(base, "/") + path
}

// OAuth2Options assembles the client options for an OAuth 2.0 provider.
func (c Config) OAuth2Options(def xoauth2.Endpoint, defScope string) oauth2.Options {
	ep := c.EndpointOr(def)
	ua := c.UserAgent
	if ua == "" {
		ua = "socialauth"
	}
	return oauth2.Options{
		AuthURL:       ep.AuthURL,
		TokenURL:      ep.TokenURL,
		ClientID:      c.ClientID,
		ClientSecret:  c.ClientSecret,
		RedirectURI:   c.RedirectURI,
		Scope:         c.ScopeOr(defScope),
		State:         c.State,
		RequestParams: append([]oauth2.Param(nil), c.Params...),
		UseRefresh:    c.UseRefresh,
		HTTPClient:    c.HTTPClient,
		UserAgent:     ua,
	}
}

// RequireClient checks the credentials every provider needs.
func (c Config) RequireClient(provider string) error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: %s client_id required", ErrConfig, provider)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("%w: %s client_secret required", ErrConfig, provider)
	}
	return nil
}
