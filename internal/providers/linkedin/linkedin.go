// Package linkedin implements LinkedIn's "Sign In with LinkedIn using OpenID Connect".
package linkedin

import (
	"context"

	"golang.org/x/oauth2/endpoints"

	"github.com/dropDatabas3/socialauth/internal/providers"
)

const (
	ProviderName = "linkedin"

	defaultScope = "openid profile email"
	apiBase      = "https://api.linkedin.com"
)

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string                 { return ProviderName }
func (p *Provider) Protocol() providers.Protocol { return providers.ProtocolOAuth2 }

func (p *Provider) Connector(cfg providers.Config) (providers.Connector, error) {
	if err := cfg.RequireClient(ProviderName); err != nil {
		return nil, err
	}
	return providers.NewOAuth2Connector(cfg, cfg.OAuth2Options(endpoints.LinkedIn, defaultScope)), nil
}

func (p *Provider) FetchProfile(ctx context.Context, c providers.Connector, _ providers.Callback) (*providers.Profile, error) {
	oc, err := providers.AsOAuth2(c)
	if err != nil {
		return nil, err
	}
	resp, err := oc.Client.Get(ctx, oc.Config.API(apiBase, "/v2/userinfo"))
	if err != nil {
		return nil, err
	}
	return providers.NewProfile(resp)
}

func (p *Provider) MapProfile(pr *providers.Profile) (*providers.UserData, error) {
	name := pr.Get("name").String()
	if name == "" {
		name = pr.Get("given_name").String() + " " + pr.Get("family_name").String()
	}
	return &providers.UserData{
		ID:       pr.Get("sub").String(),
		Name:     name,
		Email:    pr.Get("email").String(),
		Verified: providers.Truthy(pr.Get("email_verified")),
		Picture:  pr.Get("picture").String(),
	}, nil
}
