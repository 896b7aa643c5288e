package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dropDatabas3/socialauth/internal/oauth"
	"github.com/dropDatabas3/socialauth/internal/oauth/oauth1"
	"github.com/dropDatabas3/socialauth/internal/oauth/oauth2"
)

// Connector hides which OAuth version a provider speaks from the HTTP layer.
type Connector interface {
	// AuthURL returns where the user agent must be sent to log in.
	AuthURL(ctx context.Context) (string, error)
	// Complete consumes the callback request and keeps the resulting token.
	Complete(ctx context.Context, r *http.Request) error
	// SerializedToken returns the held token for storage next to the link.
	SerializedToken() (string, error)
}

// OAuth2Connector adapts *oauth2.Client and remembers the config it was built from.
type OAuth2Connector struct {
	Client *oauth2.Client
	Config Config
}

func NewOAuth2Connector(cfg Config, opts oauth2.Options) *OAuth2Connector {
	return &OAuth2Connector{Client: oauth2.New(opts), Config: cfg}
}

func (c *OAuth2Connector) AuthURL(context.Context) (string, error) { return c.Client.CreateURL() }

func (c *OAuth2Connector) Complete(ctx context.Context, r *http.Request) error {
	if e := r.FormValue("error"); e != "" {
		return fmt.Errorf("%w: %s %s", ErrAccessDenied, e, r.FormValue("error_description"))
	}
	code := strings.TrimSpace(r.FormValue("code"))
	if code == "" {
		return ErrMissingCode
	}
	_, err := c.Client.Exchange(ctx, code)
	return err
}

func (c *OAuth2Connector) SerializedToken() (string, error) {
	t := c.Client.Token()
	if t == nil {
		return "", oauth2.ErrNotAuthenticated
	}
	return t.Marshal()
}

// OAuth1Connector adapts *oauth1.Client and remembers the config it was built from.
type OAuth1Connector struct {
	Client *oauth1.Client
	Config Config
}

func NewOAuth1Connector(cfg Config, opts oauth1.Options) *OAuth1Connector {
	return &OAuth1Connector{Client: oauth1.New(opts), Config: cfg}
}

func (c *OAuth1Connector) AuthURL(ctx context.Context) (string, error) { return c.Client.Start(ctx) }

func (c *OAuth1Connector) Complete(ctx context.Context, r *http.Request) error {
	if r.FormValue("denied") != "" {
		return fmt.Errorf("%w: %v", ErrAccessDenied, oauth1.ErrAccessDenied)
	}
	_, err := c.Client.Finish(ctx, strings.TrimSpace(r.FormValue("oauth_token")), strings.TrimSpace(r.FormValue("oauth_verifier")))
	return err
}

func (c *OAuth1Connector) SerializedToken() (string, error) {
	t := c.Client.Token()
	if t == nil {
		return "", oauth1.ErrNotAuthenticated
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// AsOAuth2 unwraps an OAuth 2.0 connector.
func AsOAuth2(c Connector) (*OAuth2Connector, error) {
	oc, ok := c.(*OAuth2Connector)
	if !ok || oc.Client == nil {
		return nil, fmt.Errorf("%w: want oauth2, got %T", ErrConnector, c)
	}
	return oc, nil
}

// AsOAuth1 unwraps an OAuth 1.0a connector.
func AsOAuth1(c Connector) (*OAuth1Connector, error) {
	oc, ok := c.(*OAuth1Connector)
	if !ok || oc.Client == nil {
		return nil, fmt.Errorf("%w: want oauth1, got %T", ErrConnector, c)
	}
	return oc, nil
}

// Profile is the raw provider answer. Aux holds secondary documents
// (e.g. GitHub's email list).
type Profile struct {
	Body []byte
	Aux  map[string][]byte
}

// NewProfile wraps a response body, rejecting anything that is not JSON.
func NewProfile(resp *oauth.Response) (*Profile, error) {
	if resp == nil || !gjson.ValidBytes(resp.Body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrProfile)
	}
	return &Profile{Body: resp.Body}, nil
}

// Get reads path from the main document.
func (p *Profile) Get(path string) gjson.Result { return gjson.GetBytes(p.Body, path) }

// AuxGet reads path from the named secondary document.
func (p *Profile) AuxGet(name, path string) gjson.Result {
	return gjson.GetBytes(p.Aux[name], path)
}

// SetAux stores a secondary document.
func (p *Profile) SetAux(name string, b []byte) {
	if p.Aux == nil {
		p.Aux = map[string][]byte{}
	}
	p.Aux[name] = b
}

// FirstString returns the first non-empty string among paths.
func (p *Profile) FirstString(paths ...string) string {
	for _, path := range paths {
		if s := strings.TrimSpace(p.Get(path).String()); s != "" {
			return s
		}
	}
	return ""
}

// Truthy reads booleans that some providers send as strings.
func Truthy(r gjson.Result) bool {
	if r.Type == gjson.String {
		return strings.EqualFold(r.Str, "true")
	}
	return r.Bool()
}
