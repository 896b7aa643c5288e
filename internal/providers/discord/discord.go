// Package discord implements the Discord provider.
package discord

import (
	"context"
	"fmt"

	xoauth2 "golang.org/x/oauth2"

	"github.com/dropDatabas3/socialauth/internal/providers"
)

const (
	ProviderName = "discord"

	defaultScope = "identify email"
	apiBase      = "https://discord.com/api/v10"
	cdnBase      = "https://cdn.discordapp.com"
)

// Endpoint is Discord's OAuth 2.0 endpoint pair.
var Endpoint = xoauth2.Endpoint{
	AuthURL:  "https://discord.com/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string                 { return ProviderName }
func (p *Provider) Protocol() providers.Protocol { return providers.ProtocolOAuth2 }

func (p *Provider) Connector(cfg providers.Config) (providers.Connector, error) {
	if err := cfg.RequireClient(ProviderName); err != nil {
		return nil, err
	}
	return providers.NewOAuth2Connector(cfg, cfg.OAuth2Options(Endpoint, defaultScope)), nil
}

func (p *Provider) FetchProfile(ctx context.Context, c providers.Connector, _ providers.Callback) (*providers.Profile, error) {
	oc, err := providers.AsOAuth2(c)
	if err != nil {
		return nil, err
	}
	resp, err := oc.Client.Get(ctx, oc.Config.API(apiBase, "/users/@me"))
	if err != nil {
		return nil, err
	}
	return providers.NewProfile(resp)
}

func (p *Provider) MapProfile(pr *providers.Profile) (*providers.UserData, error) {
	id := pr.Get("id").String()
	ud := &providers.UserData{
		ID:       id,
		Name:     pr.FirstString("global_name", "username"),
		Email:    pr.Get("email").String(),
		Verified: pr.Get("verified").Bool(),
	}
	if avatar := pr.Get("avatar").String(); avatar != "" && id != "" {
		ud.Picture = fmt.Sprintf("%s/avatars/%s/%s.png", cdnBase, id, avatar)
	}
	return ud, nil
}
