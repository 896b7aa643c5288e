package email

import (
	"bytes"
	"context"
	"fmt"
	htmltpl "html/template"
	texttpl "text/template"

	"github.com/dropDatabas3/socialauth/internal/observability/logger"
	"github.com/dropDatabas3/socialauth/internal/store"
)

// ActivationNotifier avisa por email que una cuenta quedó pendiente:
// al usuario (modo self) o al administrador (modo admin).
type ActivationNotifier struct {
	Sender     Sender
	SiteName   string
	AdminEmail string
	// ActivationURL arma el link de activación; nil = sin link.
	ActivationURL func(a *store.Account) string
}

type activationVars struct {
	Site     string
	Name     string
	Username string
	Email    string
	Link     string
}

var (
	selfText = texttpl.Must(texttpl.New("self").Parse(`Hi {{.Name}},

your {{.Site}} account "{{.Username}}" was created from your social login.
{{if .Link}}Activate it here: {{.Link}}{{else}}Follow the activation instructions from the site to enable it.{{end}}
`))
	selfHTML = htmltpl.Must(htmltpl.New("self").Parse(`<p>Hi {{.Name}},</p>
<p>your {{.Site}} account <b>{{.Username}}</b> was created from your social login.</p>
{{if .Link}}<p><a href="{{.Link}}">Activate your account</a></p>{{end}}`))

	adminText = texttpl.Must(texttpl.New("admin").Parse(`A new {{.Site}} account is waiting for approval.

Username: {{.Username}}
Email:    {{.Email}}
{{if .Link}}Approve: {{.Link}}{{end}}
`))
)

// AccountPending implementa login.Notifier.
func (n *ActivationNotifier) AccountPending(ctx context.Context, a *store.Account, mode store.ActivationMode) error {
	vars := activationVars{Site: n.SiteName, Name: a.Name, Username: a.Username, Email: a.Email}
	if vars.Name == "" {
		vars.Name = a.Username
	}
	if n.ActivationURL != nil {
		vars.Link = n.ActivationURL(a)
	}

	switch mode {
	case store.ActivationSelf:
		var txt, html bytes.Buffer
		if err := selfText.Execute(&txt, vars); err != nil {
			return err
		}
		if err := selfHTML.Execute(&html, vars); err != nil {
			return err
		}
		return n.Sender.Send(a.Email, fmt.Sprintf("Activate your %s account", n.SiteName), html.String(), txt.String())
	case store.ActivationAdmin:
		if n.AdminEmail == "" {
			logger.From(ctx).Warn("admin activation pending but no admin email configured", logger.UserID(a.ID))
			return nil
		}
		var txt bytes.Buffer
		if err := adminText.Execute(&txt, vars); err != nil {
			return err
		}
		return n.Sender.Send(n.AdminEmail, fmt.Sprintf("[%s] account awaiting approval", n.SiteName), "", txt.String())
	default:
		return nil
	}
}
