// Package google implements the Google provider (OAuth 2.0 + OpenID userinfo).
package google

import (
	"context"

	"golang.org/x/oauth2/endpoints"

	"github.com/dropDatabas3/socialauth/internal/providers"
)

const (
	ProviderName = "google"

	defaultScope = "openid email profile"
	apiBase      = "https://openidconnect.googleapis.com"
)

// Provider implements the Google login.
type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string                 { return ProviderName }
func (p *Provider) Protocol() providers.Protocol { return providers.ProtocolOAuth2 }

func (p *Provider) Connector(cfg providers.Config) (providers.Connector, error) {
	if err := cfg.RequireClient(ProviderName); err != nil {
		return nil, err
	}
	return providers.NewOAuth2Connector(cfg, cfg.OAuth2Options(endpoints.Google, defaultScope)), nil
}

// FetchProfile calls the OpenID userinfo endpoint.
func (p *Provider) FetchProfile(ctx context.Context, c providers.Connector, _ providers.Callback) (*providers.Profile, error) {
	oc, err := providers.AsOAuth2(c)
	if err != nil {
		return nil, err
	}
	resp, err := oc.Client.Get(ctx, oc.Config.API(apiBase, "/v1/userinfo"))
	if err != nil {
		return nil, err
	}
	return providers.NewProfile(resp)
}

// MapProfile reads sub, name, email and email_verified.
func (p *Provider) MapProfile(pr *providers.Profile) (*providers.UserData, error) {
	return &providers.UserData{
		ID:       pr.Get("sub").String(),
		Name:     pr.FirstString("name", "given_name"),
		Email:    pr.Get("email").String(),
		Verified: providers.Truthy(pr.Get("email_verified")),
		Picture:  pr.Get("picture").String(),
	}, nil
}
