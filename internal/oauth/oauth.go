// Package oauth holds the pieces shared by the OAuth 1.0a and OAuth 2.0 clients:
// the raw provider response, the transport error and the HTTP round trip helper.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout is used when neither the caller nor the client options set one.
const DefaultTimeout = 10 * time.Second

// maxBody caps how much of a provider response is read into memory.
const maxBody = 4 << 20

// ErrRedirected is returned by the three-legged flows after they wrote a redirect
// to the provider. The caller must not write anything else to the response.
var ErrRedirected = errors.New("oauth: redirected to provider")

// Response is the raw answer of a provider endpoint.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("oauth: decode response: %w", err)
	}
	return nil
}

// TransportError reports a non 2xx/3xx answer from a provider endpoint.
// Status and body are kept for diagnostics.
type TransportError struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *TransportError) Error() string {
	body := string(e.Body)
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("oauth: %s returned http %d: %s", e.URL, e.StatusCode, body)
}

// IsTransport reports whether err is (or wraps) a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Do sends req with the given client and timeout and reads the whole body.
// Any status outside 2xx/3xx becomes a *TransportError carrying the response.
func Do(ctx context.Context, client *http.Client, req *http.Request, timeout time.Duration) (*Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("oauth: %s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("oauth: read response: %w", err)
	}
	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return out, &TransportError{
			URL:        req.URL.Scheme + "://" + req.URL.Host + req.URL.Path,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
		}
	}
	return out, nil
}
