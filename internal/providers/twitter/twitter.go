// Package twitter implements the Twitter/X provider over OAuth 1.0a.
package twitter

import (
	"context"
	"fmt"
	"net/url"

	"github.com/dropDatabas3/socialauth/internal/oauth"
	"github.com/dropDatabas3/socialauth/internal/oauth/oauth1"
	"github.com/dropDatabas3/socialauth/internal/providers"
)

const (
	ProviderName = "twitter"

	apiBase = "https://api.twitter.com"
)

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string                 { return ProviderName }
func (p *Provider) Protocol() providers.Protocol { return providers.ProtocolOAuth1 }

// Connector maps client_id/client_secret to the consumer key pair.
func (p *Provider) Connector(cfg providers.Config) (providers.Connector, error) {
	if err := cfg.RequireClient(ProviderName); err != nil {
		return nil, err
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: twitter needs a request token store", providers.ErrConfig)
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "socialauth"
	}
	return providers.NewOAuth1Connector(cfg, oauth1.Options{
		ConsumerKey:     cfg.ClientID,
		ConsumerSecret:  cfg.ClientSecret,
		RequestTokenURL: cfg.API(apiBase, "/oauth/request_token"),
		AuthoriseURL:    cfg.API(apiBase, "/oauth/authenticate"),
		AccessTokenURL:  cfg.API(apiBase, "/oauth/access_token"),
		CallbackURL:     cfg.RedirectURI,
		Store:           cfg.Store,
		Validator:       credentials{url: cfg.API(apiBase, "/1.1/account/verify_credentials.json")},
		HTTPClient:      cfg.HTTPClient,
		UserAgent:       ua,
	}), nil
}

// credentials is the verify_credentials hook the OAuth1 client runs right
// after the access token exchange.
type credentials struct {
	url string
}

func (v credentials) ValidateResponse(ctx context.Context, c *oauth1.Client) (*oauth.Response, error) {
	return c.Get(ctx, v.url, url.Values{
		"include_email":    {"true"},
		"skip_status":      {"true"},
		"include_entities": {"false"},
	})
}

// FetchProfile reuses the verify_credentials answer from the handshake; a
// connector whose token was set directly asks again.
func (p *Provider) FetchProfile(ctx context.Context, c providers.Connector, _ providers.Callback) (*providers.Profile, error) {
	oc, err := providers.AsOAuth1(c)
	if err != nil {
		return nil, err
	}
	resp := oc.Client.Validated()
	if resp == nil {
		v := credentials{url: oc.Config.API(apiBase, "/1.1/account/verify_credentials.json")}
		if resp, err = v.ValidateResponse(ctx, oc.Client); err != nil {
			return nil, err
		}
	}
	return providers.NewProfile(resp)
}

// MapProfile: Twitter only returns the email when the app is allowed to and
// the address is confirmed, so presence means verified.
func (p *Provider) MapProfile(pr *providers.Profile) (*providers.UserData, error) {
	email := pr.Get("email").String()
	return &providers.UserData{
		ID:       pr.FirstString("id_str", "id"),
		Name:     pr.FirstString("name", "screen_name"),
		Email:    email,
		Verified: email != "",
		Timezone: pr.Get("time_zone").String(),
		Picture:  pr.Get("profile_image_url_https").String(),
	}, nil
}
