// Package jwks verifies JWT signatures against a JSON Web Key Set fetched live
// from the provider (Apple rotates its keys, so sets are never persisted).
package jwks

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/socialauth/internal/oauth"
)

// AppleKeysURL is Apple's public signing key set.
const AppleKeysURL = "https://appleid.apple.com/auth/keys"

var (
	ErrFetch          = errors.New("jwks: fetch failed")
	ErrMalformed      = errors.New("jwks: malformed token")
	ErrNoMatchingKey  = errors.New("jwks: no key verifies the token")
	ErrUnsupportedKey = errors.New("jwks: unsupported key")
)

// Key is one JWK. Only the members needed for RSA, EC and oct keys are kept.
type Key struct {
	Kid string `json:"kid,omitempty"`
	Kty string `json:"kty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	K   string `json:"k,omitempty"`
}

type Set struct {
	Keys []Key `json:"keys"`
}

// Parse decodes a JWKS document.
func Parse(b []byte) (*Set, error) {
	var s Set
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("jwks: decode: %w", err)
	}
	return &s, nil
}

var fetchGroup singleflight.Group

// Fetch downloads the key set at url. Concurrent fetches of the same url share
// one request.
func Fetch(ctx context.Context, client *http.Client, url string) (*Set, error) {
	v, err, _ := fetchGroup.Do(url, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := oauth.Do(ctx, client, req, 10*time.Second)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		return Parse(resp.Body)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Set), nil
}

var methods = map[string]jwtv5.SigningMethod{
	"RS256": jwtv5.SigningMethodRS256,
	"RS384": jwtv5.SigningMethodRS384,
	"RS512": jwtv5.SigningMethodRS512,
	"ES256": jwtv5.SigningMethodES256,
	"ES384": jwtv5.SigningMethodES384,
	"ES512": jwtv5.SigningMethodES512,
	"HS256": jwtv5.SigningMethodHS256,
	"HS384": jwtv5.SigningMethodHS384,
	"HS512": jwtv5.SigningMethodHS512,
}

// methodFor maps the header alg to a signing method. Unknown values fall back to RS256.
func methodFor(alg string) jwtv5.SigningMethod {
	if m, ok := methods[strings.ToUpper(alg)]; ok {
		return m
	}
	return jwtv5.SigningMethodRS256
}

// Validate reports whether token carries a signature made by one of the keys in set.
// Only the signature is checked; claims are the caller's business.
// An empty set validates everything.
func Validate(token string, set *Set) bool {
	return ValidateErr(token, set) == nil
}

// ValidateErr is Validate returning the reason for a rejection.
func ValidateErr(token string, set *Set) error {
	if set == nil || len(set.Keys) == 0 {
		return nil
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ErrMalformed
	}
	hb, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(hb, &header); err != nil {
		return fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("%w: signature: %v", ErrMalformed, err)
	}

	method := methodFor(header.Alg)
	signing := parts[0] + "." + parts[1]
	for _, k := range set.Keys {
		// kid exacto: un JWT sin kid solo casa con claves sin kid
		if k.Kid != header.Kid {
			continue
		}
		key, err := k.PublicKey()
		if err != nil {
			continue
		}
		if method.Verify(signing, sig, key) == nil {
			return nil
		}
	}
	return ErrNoMatchingKey
}

// PublicKey converts the JWK to *rsa.PublicKey, *ecdsa.PublicKey or []byte (oct).
func (k Key) PublicKey() (any, error) {
	switch strings.ToUpper(k.Kty) {
	case "RSA":
		return k.rsaKey()
	case "EC":
		return k.ecKey()
	case "OCT":
		b, err := decode(k.K)
		if err != nil || len(b) == 0 {
			return nil, fmt.Errorf("%w: oct k", ErrUnsupportedKey)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: kty %q", ErrUnsupportedKey, k.Kty)
	}
}

func (k Key) rsaKey() (*rsa.PublicKey, error) {
	nb, err := decode(k.N)
	if err != nil || len(nb) == 0 {
		return nil, fmt.Errorf("%w: rsa n", ErrUnsupportedKey)
	}
	eb, err := decode(k.E)
	if err != nil {
		return nil, fmt.Errorf("%w: rsa e", ErrUnsupportedKey)
	}
	e := 65537
	if len(eb) > 0 {
		e = 0
		for _, b := range eb {
			e = e<<8 | int(b)
		}
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}

func (k Key) ecKey() (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch k.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("%w: crv %q", ErrUnsupportedKey, k.Crv)
	}
	xb, err := decode(k.X)
	if err != nil {
		return nil, fmt.Errorf("%w: ec x", ErrUnsupportedKey)
	}
	yb, err := decode(k.Y)
	if err != nil {
		return nil, fmt.Errorf("%w: ec y", ErrUnsupportedKey)
	}
	pub := &ecdsa.PublicKey{Curve: curve, X: new(big.Int).SetBytes(xb), Y: new(big.Int).SetBytes(yb)}
	if !curve.IsOnCurve(pub.X, pub.Y) {
		return nil, fmt.Errorf("%w: point not on curve", ErrUnsupportedKey)
	}
	return pub, nil
}

// decode accepts base64url with or without padding.
func decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// FromRSA builds a JWK from an RSA public key. Used by the CLI and tests.
func FromRSA(kid string, pub *rsa.PublicKey) Key {
	return Key{
		Kid: kid, Kty: "RSA", Alg: "RS256", Use: "sig",
		N: base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E: base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// FromECDSA builds a JWK from an EC public key.
func FromECDSA(kid string, pub *ecdsa.PublicKey) Key {
	size := (pub.Curve.Params().BitSize + 7) / 8
	return Key{
		Kid: kid, Kty: "EC", Use: "sig", Crv: pub.Curve.Params().Name,
		X: base64.RawURLEncoding.EncodeToString(pub.X.FillBytes(make([]byte, size))),
		Y: base64.RawURLEncoding.EncodeToString(pub.Y.FillBytes(make([]byte, size))),
	}
}
