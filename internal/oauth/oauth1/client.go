// Package oauth1 implements the OAuth 1.0a three-legged handshake and HMAC-SHA1
// request signing (Twitter/X).
package oauth1

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/socialauth/internal/oauth"
)

const (
	Version1  = "1.0"
	Version1a = "1.0a"
)

var (
	ErrMissingStore         = errors.New("oauth1: token store required")
	ErrNoRequestToken       = errors.New("oauth1: no stored request token")
	ErrAccessDenied         = errors.New("oauth1: access denied by user")
	ErrTokenMismatch        = errors.New("oauth1: returned token does not match request token")
	ErrCallbackNotConfirmed = errors.New("oauth1: oauth_callback_confirmed missing")
	ErrInvalidTokenResponse = errors.New("oauth1: invalid token response")
	ErrNotAuthenticated     = errors.New("oauth1: no access token")
)

// TransportError is the non 2xx/3xx answer of an OAuth1 endpoint.
type TransportError = oauth.TransportError

// ProtocolError marks a violation of the handshake (possible tampering).
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string { return "oauth1 " + e.Op + ": " + e.Err.Error() }
func (e *ProtocolError) Unwrap() error { return e.Err }

// IsProtocol reports whether err is (or wraps) a *ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// Token is a request or access token pair. Verifier is only set on the callback leg.
type Token struct {
	Key      string `json:"key"`
	Secret   string `json:"secret"`
	Verifier string `json:"verifier,omitempty"`
}

// TokenStore persists the request token across the redirect round trip.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Validator is the provider hook Finish runs with the fresh access token, e.g.
// Twitter's verify_credentials. An error fails the handshake.
type Validator interface {
	ValidateResponse(ctx context.Context, c *Client) (*oauth.Response, error)
}

// ValidatorFunc adapts a func to Validator.
type ValidatorFunc func(ctx context.Context, c *Client) (*oauth.Response, error)

func (f ValidatorFunc) ValidateResponse(ctx context.Context, c *Client) (*oauth.Response, error) {
	return f(ctx, c)
}

type Options struct {
	ConsumerKey     string
	ConsumerSecret  string
	RequestTokenURL string
	AuthoriseURL    string
	AccessTokenURL  string
	CallbackURL     string
	Version         string // "1.0a" (default) or "1.0"

	Store TokenStore
	// Validator, if set, runs right after the access token exchange.
	Validator Validator

	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string

	Now   func() time.Time
	Nonce func() string
}

type Client struct {
	opts Options

	mu        sync.RWMutex
	token     *Token
	validated *oauth.Response
}

func New(opts Options) *Client {
	if opts.Version == "" {
		opts.Version = Version1a
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Nonce == nil {
		opts.Nonce = Nonce
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{opts: opts}
}

func (c *Client) Options() Options { return c.opts }

// Token returns the access token obtained by Authenticate (nil before).
func (c *Client) Token() *Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Validated returns the Validator's response from the last Finish (nil when
// no Validator is configured).
func (c *Client) Validated() *oauth.Response {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validated
}

func (c *Client) SetToken(t *Token) {
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()
}

// Signature signs params for method and rawURL with the consumer secret and tokenSecret.
func (c *Client) Signature(method, rawURL string, params url.Values, tokenSecret string) (string, error) {
	return Sign(method, rawURL, params, c.opts.ConsumerSecret, tokenSecret)
}

func (c *Client) storeKey() string { return "oauth1.request_token." + c.opts.ConsumerKey }

// Authenticate drives both legs. Without oauth_token/oauth_verifier in r it
// obtains a request token, stores it and redirects to the provider, returning
// oauth.ErrRedirected. On the callback it exchanges the stored request token
// for an access token.
func (c *Client) Authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Token, error) {
	if r.FormValue("denied") != "" {
		return nil, ErrAccessDenied
	}
	tok := strings.TrimSpace(r.FormValue("oauth_token"))
	verifier := strings.TrimSpace(r.FormValue("oauth_verifier"))
	if tok == "" && verifier == "" {
		authURL, err := c.Start(ctx)
		if err != nil {
			return nil, err
		}
		http.Redirect(w, r, authURL, http.StatusSeeOther)
		return nil, oauth.ErrRedirected
	}
	return c.Finish(ctx, tok, verifier)
}

// Start runs leg one: fetches a request token, persists it and returns the
// authorization URL the user agent must visit.
func (c *Client) Start(ctx context.Context) (string, error) {
	if c.opts.Store == nil {
		return "", ErrMissingStore
	}
	params := url.Values{}
	if c.opts.Version == Version1a {
		params.Set("oauth_callback", c.opts.CallbackURL)
	}
	resp, err := c.signedRequest(ctx, RequestOptions{URL: c.opts.RequestTokenURL, Method: http.MethodPost, Params: params}, nil)
	if err != nil {
		return "", fmt.Errorf("oauth1: request token: %w", err)
	}
	vals, err := url.ParseQuery(strings.TrimSpace(string(resp.Body)))
	if err != nil {
		return "", &ProtocolError{Op: "request_token", Err: fmt.Errorf("%w: %v", ErrInvalidTokenResponse, err)}
	}
	if c.opts.Version == Version1a && vals.Get("oauth_callback_confirmed") != "true" {
		return "", &ProtocolError{Op: "request_token", Err: ErrCallbackNotConfirmed}
	}
	rt := Token{Key: vals.Get("oauth_token"), Secret: vals.Get("oauth_token_secret")}
	if rt.Key == "" || rt.Secret == "" {
		return "", &ProtocolError{Op: "request_token", Err: ErrInvalidTokenResponse}
	}

	raw, _ := json.Marshal(rt)
	if err := c.opts.Store.Set(ctx, c.storeKey(), string(raw)); err != nil {
		return "", fmt.Errorf("oauth1: persist request token: %w", err)
	}

	q := url.Values{"oauth_token": {rt.Key}}
	if c.opts.Version == Version1 && c.opts.CallbackURL != "" {
		q.Set("oauth_callback", c.opts.CallbackURL)
	}
	sep := "?"
	if strings.Contains(c.opts.AuthoriseURL, "?") {
		sep = "&"
	}
	return c.opts.AuthoriseURL + sep + q.Encode(), nil
}

// Finish runs the callback leg. The returned token must equal the stored
// request token; a mismatch fails before any network call.
// The stored request token is left in place after a successful exchange.
func (c *Client) Finish(ctx context.Context, returnedToken, verifier string) (*Token, error) {
	if c.opts.Store == nil {
		return nil, ErrMissingStore
	}
	raw, ok, err := c.opts.Store.Get(ctx, c.storeKey())
	if err != nil {
		return nil, fmt.Errorf("oauth1: load request token: %w", err)
	}
	if !ok || raw == "" {
		return nil, ErrNoRequestToken
	}
	var rt Token
	if err := json.Unmarshal([]byte(raw), &rt); err != nil || rt.Key == "" {
		return nil, ErrNoRequestToken
	}
	if subtle.ConstantTimeCompare([]byte(rt.Key), []byte(returnedToken)) != 1 {
		return nil, &ProtocolError{Op: "access_token", Err: ErrTokenMismatch}
	}

	params := url.Values{}
	if c.opts.Version == Version1a {
		if verifier == "" {
			return nil, &ProtocolError{Op: "access_token", Err: errors.New("oauth_verifier missing")}
		}
		rt.Verifier = verifier
		params.Set("oauth_verifier", verifier)
	}
	resp, err := c.signedRequest(ctx, RequestOptions{URL: c.opts.AccessTokenURL, Method: http.MethodPost, Params: params}, &rt)
	if err != nil {
		return nil, fmt.Errorf("oauth1: access token: %w", err)
	}
	vals, err := url.ParseQuery(strings.TrimSpace(string(resp.Body)))
	if err != nil {
		return nil, &ProtocolError{Op: "access_token", Err: fmt.Errorf("%w: %v", ErrInvalidTokenResponse, err)}
	}
	at := &Token{Key: vals.Get("oauth_token"), Secret: vals.Get("oauth_token_secret")}
	if at.Key == "" || at.Secret == "" {
		return nil, &ProtocolError{Op: "access_token", Err: ErrInvalidTokenResponse}
	}
	c.SetToken(at)

	if c.opts.Validator != nil {
		resp, err := c.opts.Validator.ValidateResponse(ctx, c)
		if err != nil {
			c.SetToken(nil)
			return nil, fmt.Errorf("oauth1: validate: %w", err)
		}
		c.mu.Lock()
		c.validated = resp
		c.mu.Unlock()
	}
	return at, nil
}
