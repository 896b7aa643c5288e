// Package apple validates Sign in with Apple identity tokens and builds the
// ES256 client secret Apple expects at its token endpoint.
package apple

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/socialauth/internal/oauth/jwks"
	"github.com/dropDatabas3/socialauth/internal/observability/logger"
)

const (
	Issuer    = "https://appleid.apple.com"
	ClockSkew = 30 * time.Second

	AuthURL  = "https://appleid.apple.com/auth/authorize"
	TokenURL = "https://appleid.apple.com/auth/token"
)

var (
	ErrBadSignature = errors.New("apple: identity token signature invalid")
	ErrBadIssuer    = errors.New("apple: unexpected issuer")
	ErrBadAudience  = errors.New("apple: audience mismatch")
	ErrExpired      = errors.New("apple: identity token outside validity window")
	ErrBadNonce     = errors.New("apple: nonce mismatch")
	ErrMalformed    = errors.New("apple: malformed identity token")
)

// Claims are the identity token members the login needs.
type Claims struct {
	Sub            string
	Email          string
	EmailVerified  bool
	IsPrivateEmail bool
	NonceSupported bool
	Nonce          string
	Audience       []string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	Raw            jwtv5.MapClaims
}

// IDTokenRequest carries everything ValidateIdentityToken checks against.
type IDTokenRequest struct {
	Token    string
	ClientID string
	Nonce    string // value stored in the session before the redirect
	Keys     *jwks.Set
	Now      func() time.Time
}

// ValidateIdentityToken checks, in order: signature, issuer, audience, the
// iat/exp window (30s skew both ways) and, when Apple says the device supports
// it, the nonce.
func ValidateIdentityToken(ctx context.Context, in IDTokenRequest) (*Claims, error) {
	log := logger.From(ctx).With(logger.Component("apple"))
	now := time.Now
	if in.Now != nil {
		now = in.Now
	}

	mc := jwtv5.MapClaims{}
	parsed, _, err := jwtv5.NewParser().ParseUnverified(in.Token, mc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if err := jwks.ValidateErr(in.Token, in.Keys); err != nil {
		log.Error("apple identity token signature rejected",
			logger.Err(err),
			logger.Any("header", parsed.Header),
			logger.Any("claims", mc),
		)
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	if iss, _ := mc["iss"].(string); iss != Issuer {
		return nil, fmt.Errorf("%w: %q", ErrBadIssuer, iss)
	}

	aud, _ := mc.GetAudience()
	audOK := false
	for _, a := range aud {
		if a == in.ClientID {
			audOK = true
			break
		}
	}
	if !audOK {
		return nil, ErrBadAudience
	}

	t := now()
	iat, _ := mc.GetIssuedAt()
	exp, _ := mc.GetExpirationTime()
	if iat == nil || exp == nil {
		return nil, fmt.Errorf("%w: iat/exp missing", ErrExpired)
	}
	if iat.Time.After(t.Add(ClockSkew)) || exp.Time.Before(t.Add(-ClockSkew)) {
		return nil, ErrExpired
	}

	out := &Claims{
		Sub:            str(mc, "sub"),
		Email:          str(mc, "email"),
		EmailVerified:  flag(mc, "email_verified"),
		IsPrivateEmail: flag(mc, "is_private_email"),
		Nonce:          str(mc, "nonce"),
		Audience:       aud,
		IssuedAt:       iat.Time,
		ExpiresAt:      exp.Time,
		Raw:            mc,
	}
	if _, ok := mc["nonce_supported"]; ok {
		out.NonceSupported = flag(mc, "nonce_supported")
		if subtle.ConstantTimeCompare([]byte(out.Nonce), []byte(in.Nonce)) != 1 {
			return nil, ErrBadNonce
		}
	}
	return out, nil
}

func str(m jwtv5.MapClaims, k string) string {
	s, _ := m[k].(string)
	return s
}

// flag reads Apple booleans, which arrive either as JSON bools or as "true"/"false".
func flag(m jwtv5.MapClaims, k string) bool {
	switch v := m[k].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}
