package apple

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// MaxSecretTTL is the longest lifetime Apple accepts for a client secret.
const MaxSecretTTL = 180 * 24 * time.Hour

var ErrBadPrivateKey = errors.New("apple: invalid .p8 private key")

// SecretRequest holds the developer account values used to sign a client secret.
type SecretRequest struct {
	TeamID   string
	ClientID string // Services ID
	KeyID    string
	KeyPEM   []byte // contents of AuthKey_<KeyID>.p8
	TTL      time.Duration
	Now      func() time.Time
}

// ClientSecret signs the ES256 JWT Apple requires as client_secret on its
// token endpoint: iss=team, sub=client, aud=https://appleid.apple.com.
func ClientSecret(in SecretRequest) (string, error) {
	key, err := ParsePrivateKey(in.KeyPEM)
	if err != nil {
		return "", err
	}
	ttl := in.TTL
	if ttl <= 0 || ttl > MaxSecretTTL {
		ttl = MaxSecretTTL
	}
	now := time.Now()
	if in.Now != nil {
		now = in.Now()
	}

	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodES256, jwtv5.RegisteredClaims{
		Issuer:    in.TeamID,
		Subject:   in.ClientID,
		Audience:  jwtv5.ClaimStrings{Issuer},
		IssuedAt:  jwtv5.NewNumericDate(now),
		ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
	})
	tok.Header["kid"] = in.KeyID
	s, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("apple: sign client secret: %w", err)
	}
	return s, nil
}

// ParsePrivateKey reads a PKCS#8 EC key in PEM form.
func ParsePrivateKey(b []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrBadPrivateKey)
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPrivateKey, err)
	}
	ec, ok := k.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an EC key", ErrBadPrivateKey)
	}
	return ec, nil
}
