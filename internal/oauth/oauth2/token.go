package oauth2

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/socialauth/internal/oauth"
)

// expiryMargin is how long before the real expiry a token stops being usable.
// It absorbs clock skew and request latency and must stay at 20 seconds.
const expiryMargin = 20 * time.Second

// Token is the credential obtained from a token endpoint.
// Created is a unix timestamp stamped when the token was received.
type Token struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	ExpiresIn    int64          `json:"expires_in,omitempty"`
	Created      int64          `json:"created"`
	TokenType    string         `json:"token_type,omitempty"`
	IDToken      string         `json:"id_token,omitempty"`
	Scope        string         `json:"scope,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Valid reports whether the token carries an access token at all.
func (t *Token) Valid() bool {
	return t != nil && t.AccessToken != ""
}

// ExpiresAt returns the absolute expiry, or the zero time when the provider
// did not send expires_in.
func (t *Token) ExpiresAt() time.Time {
	if t == nil || t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return time.Unix(t.Created+t.ExpiresIn, 0)
}

// expiringAt reports whether the token is within the expiry margin at now.
func (t *Token) expiringAt(now time.Time) bool {
	if t.ExpiresIn <= 0 {
		return false
	}
	return t.Created+t.ExpiresIn <= now.Add(expiryMargin).Unix()
}

// Marshal serializes the token for storage next to the account link.
func (t *Token) Marshal() (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalToken is the inverse of Marshal.
func UnmarshalToken(s string) (*Token, error) {
	var t Token
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return nil, fmt.Errorf("oauth2: decode stored token: %w", err)
	}
	return &t, nil
}

// parseTokenResponse reads a token endpoint answer. JSON is tried first when the
// Content-Type says so, otherwise the body is parsed as form-urlencoded.
func parseTokenResponse(resp *oauth.Response, now time.Time) (*Token, error) {
	values := map[string]any{}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(resp.Body, &values); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTokenResponse, err)
		}
	} else {
		q, err := url.ParseQuery(strings.TrimSpace(string(resp.Body)))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTokenResponse, err)
		}
		for k := range q {
			values[k] = q.Get(k)
		}
	}

	tok := &Token{Created: now.Unix()}
	for k, v := range values {
		switch k {
		case "access_token":
			tok.AccessToken = asString(v)
		case "refresh_token":
			tok.RefreshToken = asString(v)
		case "expires_in":
			tok.ExpiresIn = asInt(v)
		case "token_type":
			tok.TokenType = asString(v)
		case "id_token":
			tok.IDToken = asString(v)
		case "scope":
			tok.Scope = asString(v)
		default:
			if tok.Extra == nil {
				tok.Extra = map[string]any{}
			}
			tok.Extra[k] = v
		}
	}

	if tok.AccessToken == "" {
		code := asString(values["error"])
		desc := asString(values["error_description"])
		if code == "" {
			code = "missing access_token"
		}
		return nil, fmt.Errorf("%w: %s %s", ErrInvalidTokenResponse, code, desc)
	}
	return tok, nil
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case float64:
		return int64(x)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n
	case json.Number:
		n, _ := x.Int64()
		return n
	default:
		return 0
	}
}
