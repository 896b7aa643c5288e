// Package apple implements Sign in with Apple.
//
// Apple returns the identity as a signed id_token; the user's name only
// arrives once, as a "user" JSON form field on the first authorization.
package apple

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	xoauth2 "golang.org/x/oauth2"

	appleid "github.com/dropDatabas3/socialauth/internal/oauth/apple"
	"github.com/dropDatabas3/socialauth/internal/oauth/jwks"
	"github.com/dropDatabas3/socialauth/internal/oauth/oauth2"
	"github.com/dropDatabas3/socialauth/internal/providers"
)

const (
	ProviderName = "apple"

	defaultScope = "name email"
	secretTTL    = 24 * time.Hour
)

var Endpoint = xoauth2.Endpoint{AuthURL: appleid.AuthURL, TokenURL: appleid.TokenURL}

var ErrNoIDToken = errors.New("apple: token response carries no id_token")

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string                 { return ProviderName }
func (p *Provider) Protocol() providers.Protocol { return providers.ProtocolOAuth2 }

// Connector signs a fresh client secret unless a static one is configured.
// Extra keys: team_id, key_id, private_key (PEM contents of the .p8 file).
func (p *Provider) Connector(cfg providers.Config) (providers.Connector, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: apple client_id required", providers.ErrConfig)
	}
	if cfg.ClientSecret == "" {
		secret, err := appleid.ClientSecret(appleid.SecretRequest{
			TeamID:   cfg.Extra["team_id"],
			ClientID: cfg.ClientID,
			KeyID:    cfg.Extra["key_id"],
			KeyPEM:   []byte(cfg.Extra["private_key"]),
			TTL:      secretTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", providers.ErrConfig, err)
		}
		cfg.ClientSecret = secret
	}

	opts := cfg.OAuth2Options(Endpoint, defaultScope)
	opts.RequestParams = append(opts.RequestParams, oauth2.Param{Key: "response_mode", Value: "form_post"})
	if cfg.Nonce != "" {
		opts.RequestParams = append(opts.RequestParams, oauth2.Param{Key: "nonce", Value: cfg.Nonce})
	}
	return providers.NewOAuth2Connector(cfg, opts), nil
}

// FetchProfile validates the id_token against Apple's live key set and merges
// the one-time "user" form field.
func (p *Provider) FetchProfile(ctx context.Context, c providers.Connector, cb providers.Callback) (*providers.Profile, error) {
	oc, err := providers.AsOAuth2(c)
	if err != nil {
		return nil, err
	}
	tok := oc.Client.Token()
	if tok == nil || tok.IDToken == "" {
		return nil, ErrNoIDToken
	}

	keysURL := jwks.AppleKeysURL
	if u := oc.Config.Extra["keys_url"]; u != "" {
		keysURL = u
	}
	keys, err := jwks.Fetch(ctx, oc.Config.HTTPClient, keysURL)
	if err != nil {
		return nil, err
	}
	claims, err := appleid.ValidateIdentityToken(ctx, appleid.IDTokenRequest{
		Token:    tok.IDToken,
		ClientID: oc.Config.ClientID,
		Nonce:    cb.Nonce,
		Keys:     keys,
	})
	if err != nil {
		return nil, err
	}

	doc := map[string]any{
		"sub":              claims.Sub,
		"email":            claims.Email,
		"email_verified":   claims.EmailVerified,
		"is_private_email": claims.IsPrivateEmail,
	}
	if u := cb.Form.Get("user"); u != "" && gjson.Valid(u) {
		doc["user"] = json.RawMessage(u)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrProfile, err)
	}
	return &providers.Profile{Body: b}, nil
}

func (p *Provider) MapProfile(pr *providers.Profile) (*providers.UserData, error) {
	name := strings.TrimSpace(pr.Get("user.name.firstName").String() + " " + pr.Get("user.name.lastName").String())
	return &providers.UserData{
		ID:       pr.Get("sub").String(),
		Name:     name,
		Email:    pr.FirstString("email", "user.email"),
		Verified: providers.Truthy(pr.Get("email_verified")),
	}, nil
}
