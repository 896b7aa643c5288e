package oauth1

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/socialauth/internal/oauth"
)

// RequestOptions describes a signed call.
//
// Params that start with oauth_ go to the Authorization header, the others to
// the query string. Data is the form body for POST/PUT/PATCH and extra query
// for GET/DELETE; it is signed unless Multipart is set, in which case Body is
// sent verbatim with ContentType.
type RequestOptions struct {
	URL         string
	Method      string
	Params      url.Values
	Data        url.Values
	Body        []byte
	ContentType string
	Multipart   bool
	Headers     map[string]string
	Timeout     time.Duration
}

// Request sends a call signed with the access token held by the client.
func (c *Client) Request(ctx context.Context, ro RequestOptions) (*oauth.Response, error) {
	tok := c.Token()
	if tok == nil || tok.Key == "" {
		return nil, ErrNotAuthenticated
	}
	return c.signedRequest(ctx, ro, tok)
}

// Get is a shortcut for a signed GET.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) (*oauth.Response, error) {
	return c.Request(ctx, RequestOptions{URL: rawURL, Params: params})
}

func (c *Client) standardParams(tok *Token) url.Values {
	p := url.Values{}
	p.Set("oauth_consumer_key", c.opts.ConsumerKey)
	p.Set("oauth_nonce", c.opts.Nonce())
	p.Set("oauth_signature_method", SignatureMethod)
	p.Set("oauth_timestamp", strconv.FormatInt(c.opts.Now().Unix(), 10))
	p.Set("oauth_version", Version1)
	if tok != nil && tok.Key != "" {
		p.Set("oauth_token", tok.Key)
	}
	return p
}

func (c *Client) signedRequest(ctx context.Context, ro RequestOptions, tok *Token) (*oauth.Response, error) {
	method := strings.ToUpper(ro.Method)
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, fmt.Errorf("oauth1: unsupported method %s", method)
	}

	u, err := url.Parse(ro.URL)
	if err != nil {
		return nil, fmt.Errorf("oauth1: parse url: %w", err)
	}

	header := c.standardParams(tok)
	query := u.Query()
	for k, vs := range ro.Params {
		if strings.HasPrefix(k, "oauth_") {
			header[k] = append([]string(nil), vs...)
			continue
		}
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	hasBody := method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
	if !hasBody {
		for k, vs := range ro.Data {
			for _, v := range vs {
				query.Add(k, v)
			}
		}
	}
	u.RawQuery = query.Encode()

	signing := url.Values{}
	for k, vs := range header {
		signing[k] = append(signing[k], vs...)
	}
	if hasBody && !ro.Multipart {
		for k, vs := range ro.Data {
			signing[k] = append(signing[k], vs...)
		}
	}

	tokenSecret := ""
	if tok != nil {
		tokenSecret = tok.Secret
	}
	sig, err := c.Signature(method, u.String(), signing, tokenSecret)
	if err != nil {
		return nil, err
	}
	header.Set("oauth_signature", sig)

	var body io.Reader
	contentType := ""
	switch {
	case hasBody && ro.Multipart:
		body = bytes.NewReader(ro.Body)
		contentType = ro.ContentType
	case hasBody && len(ro.Data) > 0:
		body = strings.NewReader(ro.Data.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("oauth1: build request: %w", err)
	}
	req.Header.Set("Authorization", AuthorizationHeader(header))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	for k, v := range ro.Headers {
		req.Header.Set(k, v)
	}

	timeout := ro.Timeout
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}
	return oauth.Do(ctx, c.opts.HTTPClient, req, timeout)
}
