package oauth2

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/socialauth/internal/oauth"
)

// QueryRequest describes an authenticated call to a provider API.
type QueryRequest struct {
	URL     string
	Method  string // default GET
	Data    url.Values
	Body    []byte // raw body for POST/PUT; takes precedence over Data
	Headers map[string]string
	Timeout time.Duration
}

// Query performs an authenticated request. A token within 20 seconds of expiry
// is refreshed first when refresh is enabled; otherwise the call fails with
// ErrTokenExpired before touching the network.
func (c *Client) Query(ctx context.Context, q QueryRequest) (*oauth.Response, error) {
	tok := c.Token()
	if !tok.Valid() {
		return nil, ErrNotAuthenticated
	}
	if tok.expiringAt(c.opts.Now()) {
		if !c.opts.UseRefresh {
			return nil, ErrTokenExpired
		}
		var err error
		if tok, err = c.RefreshToken(ctx, tok); err != nil {
			return nil, fmt.Errorf("oauth2: refresh before query: %w", err)
		}
	}

	method := strings.ToUpper(q.Method)
	if method == "" {
		method = http.MethodGet
	}

	u, err := url.Parse(q.URL)
	if err != nil {
		return nil, fmt.Errorf("oauth2: parse url: %w", err)
	}
	query := u.Query()
	if c.opts.GetParam != "" {
		query.Set(c.opts.GetParam, tok.AccessToken)
	}

	var body io.Reader
	contentType := ""
	switch method {
	case http.MethodGet, http.MethodDelete:
		for k, vs := range q.Data {
			for _, v := range vs {
				query.Add(k, v)
			}
		}
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		if q.Body != nil {
			body = bytes.NewReader(q.Body)
		} else if len(q.Data) > 0 {
			body = strings.NewReader(q.Data.Encode())
			contentType = "application/x-www-form-urlencoded"
		}
	default:
		return nil, fmt.Errorf("oauth2: unsupported method %s", method)
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("oauth2: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.opts.GetParam == "" {
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	}
	req.Header.Set("Accept", "application/json")
	c.setUserAgent(req)
	for k, v := range q.Headers {
		req.Header.Set(k, v)
	}

	timeout := q.Timeout
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}
	return oauth.Do(ctx, c.opts.HTTPClient, req, timeout)
}

// Get is a shortcut for a GET Query.
func (c *Client) Get(ctx context.Context, rawURL string) (*oauth.Response, error) {
	return c.Query(ctx, QueryRequest{URL: rawURL})
}
