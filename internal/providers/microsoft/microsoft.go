// Package microsoft implements the Microsoft identity provider (Graph /me).
// Setting extra legacy_live=true switches to the old Live Connect API, which
// wants the access token as a query parameter.
package microsoft

import (
	"context"

	"golang.org/x/oauth2/endpoints"

	"github.com/dropDatabas3/socialauth/internal/providers"
)

const (
	ProviderName = "microsoft"

	defaultScope = "openid email profile User.Read"
	liveScope    = "wl.basic wl.emails"
	graphBase    = "https://graph.microsoft.com/v1.0"
	liveBase     = "https://apis.live.net/v5.0"
)

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string                 { return ProviderName }
func (p *Provider) Protocol() providers.Protocol { return providers.ProtocolOAuth2 }

func legacy(cfg providers.Config) bool { return cfg.Extra["legacy_live"] == "true" }

func (p *Provider) Connector(cfg providers.Config) (providers.Connector, error) {
	if err := cfg.RequireClient(ProviderName); err != nil {
		return nil, err
	}
	if legacy(cfg) {
		opts := cfg.OAuth2Options(endpoints.Microsoft, liveScope)
		opts.GetParam = "access_token"
		return providers.NewOAuth2Connector(cfg, opts), nil
	}
	tenant := cfg.Extra["tenant"]
	if tenant == "" {
		tenant = "common"
	}
	return providers.NewOAuth2Connector(cfg, cfg.OAuth2Options(endpoints.AzureAD(tenant), defaultScope)), nil
}

func (p *Provider) FetchProfile(ctx context.Context, c providers.Connector, _ providers.Callback) (*providers.Profile, error) {
	oc, err := providers.AsOAuth2(c)
	if err != nil {
		return nil, err
	}
	base := graphBase
	if legacy(oc.Config) {
		base = liveBase
	}
	resp, err := oc.Client.Get(ctx, oc.Config.API(base, "/me"))
	if err != nil {
		return nil, err
	}
	return providers.NewProfile(resp)
}

// MapProfile handles both Graph and Live documents. Graph only fills mail for
// mailboxes the tenant owns, so that is the verified case.
func (p *Provider) MapProfile(pr *providers.Profile) (*providers.UserData, error) {
	ud := &providers.UserData{
		ID:   pr.Get("id").String(),
		Name: pr.FirstString("displayName", "name"),
	}
	if mail := pr.Get("mail").String(); mail != "" {
		ud.Email, ud.Verified = mail, true
	} else if live := pr.FirstString("emails.preferred", "emails.account"); live != "" {
		ud.Email, ud.Verified = live, true
	} else {
		ud.Email = pr.Get("userPrincipalName").String()
	}
	return ud, nil
}
