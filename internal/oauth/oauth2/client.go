// Package oauth2 implements the OAuth 2.0 authorization-code grant client used by
// the social login providers: authorization URL, code exchange, authenticated
// requests and refresh-token renewal.
package oauth2

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/socialauth/internal/oauth"
)

// Errors returned by the client.
var (
	ErrMissingAuthURL       = errors.New("oauth2: authurl option required")
	ErrMissingClientID      = errors.New("oauth2: clientid option required")
	ErrMissingTokenURL      = errors.New("oauth2: tokenurl option required")
	ErrInvalidTokenResponse = errors.New("oauth2: invalid token response")
	ErrNotAuthenticated     = errors.New("oauth2: no access token")
	ErrTokenExpired         = errors.New("oauth2: access token expired and refresh disabled")
	ErrRefreshDisabled      = errors.New("oauth2: refresh disabled")
	ErrNoRefreshToken       = errors.New("oauth2: no refresh token available")
)

// TransportError is the non 2xx/3xx answer of a token or API endpoint.
type TransportError = oauth.TransportError

// Param is an extra authorization request parameter. A slice keeps insertion order.
type Param struct {
	Key   string
	Value string
}

// Options configures a Client.
type Options struct {
	AuthURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
	State        string

	// RequestParams are appended to the authorization URL in order.
	RequestParams []Param

	// ExchangeScope, when set, is sent as scope in the code exchange.
	ExchangeScope string

	// GetParam sends the access token as a query parameter with this name
	// instead of an Authorization: Bearer header.
	GetParam string

	UseRefresh  bool
	SendHeaders bool

	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string

	// Now is the clock; tests override it.
	Now func() time.Time
}

// Client is an OAuth 2.0 client bound to one provider configuration.
type Client struct {
	opts Options

	mu    sync.RWMutex
	token *Token
}

// New creates a client. Options are copied.
func New(opts Options) *Client {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{opts: opts}
}

// Options returns a copy of the client options.
func (c *Client) Options() Options { return c.opts }

// Token returns the current token (nil when none).
func (c *Client) Token() *Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the current token.
func (c *Client) SetToken(t *Token) {
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()
}

// CreateURL builds the provider authorization URL.
func (c *Client) CreateURL() (string, error) {
	if c.opts.AuthURL == "" {
		return "", ErrMissingAuthURL
	}
	if c.opts.ClientID == "" {
		return "", ErrMissingClientID
	}

	var b strings.Builder
	b.WriteString("response_type=code")
	add := func(k, v string) {
		b.WriteByte('&')
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
	}
	add("client_id", c.opts.ClientID)
	add("redirect_uri", c.opts.RedirectURI)
	add("scope", c.opts.Scope)
	if c.opts.State != "" {
		add("state", c.opts.State)
	}
	for _, p := range c.opts.RequestParams {
		add(p.Key, p.Value)
	}

	sep := "?"
	if strings.Contains(c.opts.AuthURL, "?") {
		sep = "&"
	}
	return c.opts.AuthURL + sep + b.String(), nil
}

// Authenticate runs the callback leg of the flow. When the request carries a
// code it is exchanged for a token. Otherwise, if SendHeaders is set, the user
// agent is redirected to the authorization URL and (nil, oauth.ErrRedirected)
// is returned; without SendHeaders the result is (nil, nil).
func (c *Client) Authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Token, error) {
	code := ""
	if r != nil {
		code = strings.TrimSpace(r.FormValue("code"))
	}
	if code != "" {
		return c.Exchange(ctx, code)
	}
	if !c.opts.SendHeaders || w == nil {
		return nil, nil
	}
	authURL, err := c.CreateURL()
	if err != nil {
		return nil, err
	}
	http.Redirect(w, r, authURL, http.StatusSeeOther)
	return nil, oauth.ErrRedirected
}

// Exchange trades an authorization code for a token and stores it in the client.
func (c *Client) Exchange(ctx context.Context, code string) (*Token, error) {
	if c.opts.TokenURL == "" {
		return nil, ErrMissingTokenURL
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.opts.RedirectURI)
	form.Set("client_id", c.opts.ClientID)
	form.Set("client_secret", c.opts.ClientSecret)
	if c.opts.ExchangeScope != "" {
		form.Set("scope", c.opts.ExchangeScope)
	}

	tok, err := c.postToken(ctx, form)
	if err != nil {
		return nil, err
	}
	c.SetToken(tok)
	return tok, nil
}

// IsAuthenticated reports whether a usable token is held: it has an access token
// and either no expiry or an expiry more than 20 seconds away.
func (c *Client) IsAuthenticated() bool {
	t := c.Token()
	if !t.Valid() {
		return false
	}
	return !t.expiringAt(c.opts.Now())
}

// RefreshToken renews the token with its refresh token. When t is nil the
// stored token is used. The new token replaces the stored one.
func (c *Client) RefreshToken(ctx context.Context, t *Token) (*Token, error) {
	if !c.opts.UseRefresh {
		return nil, ErrRefreshDisabled
	}
	if t == nil {
		t = c.Token()
	}
	if t == nil || t.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	if c.opts.TokenURL == "" {
		return nil, ErrMissingTokenURL
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", t.RefreshToken)
	form.Set("client_id", c.opts.ClientID)
	form.Set("client_secret", c.opts.ClientSecret)

	nt, err := c.postToken(ctx, form)
	if err != nil {
		return nil, err
	}
	// Some providers only send a refresh token on the first exchange.
	if nt.RefreshToken == "" {
		nt.RefreshToken = t.RefreshToken
	}
	c.SetToken(nt)
	return nt, nil
}

func (c *Client) postToken(ctx context.Context, form url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("oauth2: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	c.setUserAgent(req)

	resp, err := oauth.Do(ctx, c.opts.HTTPClient, req, c.opts.Timeout)
	if err != nil {
		return nil, err
	}
	return parseTokenResponse(resp, c.opts.Now())
}

func (c *Client) setUserAgent(req *http.Request) {
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
}
