// Package github implements the GitHub provider.
// GitHub speaks plain OAuth 2.0 without ID tokens, so the profile needs a
// second call to /user/emails to learn which address is verified.
package github

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2/endpoints"

	"github.com/dropDatabas3/socialauth/internal/oauth/oauth2"
	"github.com/dropDatabas3/socialauth/internal/providers"
)

const (
	ProviderName = "github"

	defaultScope = "read:user user:email"
	apiBase      = "https://api.github.com"
	auxEmails    = "emails"
)

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string                 { return ProviderName }
func (p *Provider) Protocol() providers.Protocol { return providers.ProtocolOAuth2 }

func (p *Provider) Connector(cfg providers.Config) (providers.Connector, error) {
	if err := cfg.RequireClient(ProviderName); err != nil {
		return nil, err
	}
	opts := cfg.OAuth2Options(endpoints.GitHub, defaultScope)
	opts.RequestParams = append(opts.RequestParams, oauth2.Param{Key: "allow_signup", Value: "true"})
	return providers.NewOAuth2Connector(cfg, opts), nil
}

func (p *Provider) FetchProfile(ctx context.Context, c providers.Connector, _ providers.Callback) (*providers.Profile, error) {
	oc, err := providers.AsOAuth2(c)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{"Accept": "application/vnd.github+json"}

	resp, err := oc.Client.Query(ctx, oauth2.QueryRequest{URL: oc.Config.API(apiBase, "/user"), Headers: headers})
	if err != nil {
		return nil, err
	}
	prof, err := providers.NewProfile(resp)
	if err != nil {
		return nil, err
	}

	emails, err := oc.Client.Query(ctx, oauth2.QueryRequest{URL: oc.Config.API(apiBase, "/user/emails"), Headers: headers})
	if err != nil {
		return nil, fmt.Errorf("github: list emails: %w", err)
	}
	prof.SetAux(auxEmails, emails.Body)
	return prof, nil
}

// MapProfile prefers the primary verified address, then any verified one.
// The public profile email is used unverified as last resort.
func (p *Provider) MapProfile(pr *providers.Profile) (*providers.UserData, error) {
	ud := &providers.UserData{
		ID:      pr.Get("id").String(),
		Name:    pr.FirstString("name", "login"),
		Picture: pr.Get("avatar_url").String(),
	}

	var primary, anyVerified string
	pr.AuxGet(auxEmails, "@this").ForEach(func(_, e gjson.Result) bool {
		if !e.Get("verified").Bool() {
			return true
		}
		if e.Get("primary").Bool() && primary == "" {
			primary = e.Get("email").String()
		}
		if anyVerified == "" {
			anyVerified = e.Get("email").String()
		}
		return true
	})
	switch {
	case primary != "":
		ud.Email, ud.Verified = primary, true
	case anyVerified != "":
		ud.Email, ud.Verified = anyVerified, true
	default:
		ud.Email = pr.Get("email").String()
	}
	return ud, nil
}
