// Package facebook implements the Facebook provider (Graph API).
package facebook

import (
	"context"
	"net/url"

	"golang.org/x/oauth2/endpoints"

	"github.com/dropDatabas3/socialauth/internal/oauth/oauth2"
	"github.com/dropDatabas3/socialauth/internal/providers"
)

const (
	ProviderName = "facebook"

	defaultScope = "public_profile email"
	apiBase      = "https://graph.facebook.com/v19.0"
	fields       = "id,name,email,timezone,picture.type(large)"
)

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string                 { return ProviderName }
func (p *Provider) Protocol() providers.Protocol { return providers.ProtocolOAuth2 }

func (p *Provider) Connector(cfg providers.Config) (providers.Connector, error) {
	if err := cfg.RequireClient(ProviderName); err != nil {
		return nil, err
	}
	return providers.NewOAuth2Connector(cfg, cfg.OAuth2Options(endpoints.Facebook, defaultScope)), nil
}

func (p *Provider) FetchProfile(ctx context.Context, c providers.Connector, _ providers.Callback) (*providers.Profile, error) {
	oc, err := providers.AsOAuth2(c)
	if err != nil {
		return nil, err
	}
	resp, err := oc.Client.Query(ctx, oauth2.QueryRequest{
		URL:  oc.Config.API(apiBase, "/me"),
		Data: url.Values{"fields": {fields}},
	})
	if err != nil {
		return nil, err
	}
	return providers.NewProfile(resp)
}

// MapProfile: Facebook only hands out confirmed addresses, so an email
// counts as verified.
func (p *Provider) MapProfile(pr *providers.Profile) (*providers.UserData, error) {
	email := pr.Get("email").String()
	return &providers.UserData{
		ID:       pr.Get("id").String(),
		Name:     pr.Get("name").String(),
		Email:    email,
		Verified: email != "",
		Timezone: pr.Get("timezone").String(),
		Picture:  pr.Get("picture.data.url").String(),
	}, nil
}
