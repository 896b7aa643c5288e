// Package login reconciles an external identity with a local account.
//
// The order of the checks in Handle is a security control: an existing link
// always wins, an e-mail match is only trusted when the provider verified the
// address, and account creation is the last resort.
package login

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dropDatabas3/socialauth/internal/metrics"
	"github.com/dropDatabas3/socialauth/internal/observability/logger"
	"github.com/dropDatabas3/socialauth/internal/providers"
	"github.com/dropDatabas3/socialauth/internal/store"
)

// Policy is the per-provider configuration, fixed for one attempt.
type Policy struct {
	CanLoginUnlinked    bool
	CanCreateNewUsers   bool
	CanCreateAlways     bool
	CanBypassValidation bool
}

// DefaultPolicy: explicit linking required, creation allowed while
// registration is open, verified identities skip activation.
func DefaultPolicy() Policy {
	return Policy{CanCreateNewUsers: true, CanBypassValidation: true}
}

// Attempt is one completed provider callback.
type Attempt struct {
	Provider string
	Identity providers.UserData
	// Token is the serialized provider token stored with the link.
	Token string
	// CurrentUserID is set when the caller is already authenticated: the
	// identity is linked to that account instead of logging in.
	CurrentUserID string
	Policy        Policy
}

// Notifier is told about accounts created in a pending state (activation
// mail, admin queue). Failures are logged, never surfaced.
type Notifier interface {
	AccountPending(ctx context.Context, a *store.Account, mode store.ActivationMode) error
}

type Options struct {
	Links    store.LinkStore
	Users    store.UserDirectory
	Metrics  metrics.Recorder
	Notifier Notifier
}

type Orchestrator struct {
	links    store.LinkStore
	users    store.UserDirectory
	metrics  metrics.Recorder
	notifier Notifier
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{links: opts.Links, users: opts.Users, metrics: opts.Metrics, notifier: opts.Notifier}
	if o.metrics == nil {
		o.metrics = metrics.Noop{}
	}
	return o
}

const (
	msgActivateSelf  = "Your account was created. Check your e-mail to activate it."
	msgActivateAdmin = "Your account was created and is waiting for administrator approval."
)

// Handle runs the login state machine.
func (o *Orchestrator) Handle(ctx context.Context, a Attempt) Outcome {
	log := logger.From(ctx).With(logger.Component("login"), logger.Provider(a.Provider))
	out := o.handle(ctx, log, a)
	o.record(log, a.Provider, out)
	return out
}

func (o *Orchestrator) handle(ctx context.Context, log *zap.Logger, a Attempt) Outcome {
	id := a.Identity
	if strings.TrimSpace(id.ID) == "" {
		return Rejected(CodeInvalidIdentity, errors.New("login: provider returned an empty user id"))
	}
	log = log.With(logger.ExternalID(id.ID))

	// 1. ya autenticado: vincular, no buscar
	target := a.CurrentUserID
	linking := target != ""

	// 2. vínculo existente
	if !linking {
		uid, err := o.links.FindUserByExternalID(ctx, a.Provider, id.ID)
		switch {
		case err == nil:
			target = uid
		case errors.Is(err, store.ErrNotFound):
		default:
			return Rejected(CodeLinkFailed, err)
		}
	}

	// 3. match por email, solo si el proveedor lo verificó
	if target == "" && id.Email != "" {
		if !id.Verified {
			log.Debug("unverified email, not matching local accounts", logger.Email(id.Email))
			return Rejected(CodeLocalNotFound, errors.New("login: email not verified by provider"))
		}
		acc, err := o.users.FindByEmail(ctx, id.Email)
		switch {
		case err == nil:
			if !a.Policy.CanLoginUnlinked {
				return Rejected(CodeUsernameConflict, fmt.Errorf("login: %s belongs to an unlinked account", logger.MaskEmail(id.Email)))
			}
			target = acc.ID
		case errors.Is(err, store.ErrNotFound):
		default:
			return Rejected(CodeLoginFailed, err)
		}
	}

	// 4. alta
	pending := false
	var created *store.Account
	if target == "" {
		acc, rej := o.create(ctx, a)
		if rej != nil {
			return *rej
		}
		created = acc
		target = acc.ID
		pending = !acc.Active
		log.Info("account created", logger.UserID(acc.ID), logger.Bool("pending", pending))
	}

	// 5. vínculo (gana el último)
	if err := o.links.SaveLink(ctx, store.Link{
		UserID:     target,
		Provider:   a.Provider,
		ExternalID: id.ID,
		Token:      a.Token,
		Picture:    id.Picture,
	}); err != nil {
		return Rejected(CodeLinkFailed, err)
	}

	if pending {
		mode := o.users.ActivationMode(ctx)
		if o.notifier != nil {
			if err := o.notifier.AccountPending(ctx, created, mode); err != nil {
				log.Warn("activation notice failed", logger.UserID(target), logger.Err(err))
			}
		}
		msg := msgActivateSelf
		if mode == store.ActivationAdmin {
			msg = msgActivateAdmin
		}
		return PendingActivation(target, msg)
	}

	if linking {
		return Linked(target)
	}

	// 6. login con los vetos del directorio
	if err := o.users.Login(ctx, target); err != nil {
		return Outcome{Kind: KindRejected, UserID: target, Code: CodeLoginFailed, Err: err}
	}
	return LoggedIn(target)
}

// create applies step 4. A non-nil Outcome is a rejection.
func (o *Orchestrator) create(ctx context.Context, a Attempt) (*store.Account, *Outcome) {
	reject := func(code ErrorCode, err error) (*store.Account, *Outcome) {
		r := Rejected(code, err)
		return nil, &r
	}
	id := a.Identity
	if id.Email == "" {
		return reject(CodeLocalNotFound, errors.New("login: no linked account and no email to create one"))
	}
	if !a.Policy.CanCreateNewUsers {
		return reject(CodeCreateDisabled, errors.New("login: account creation disabled for provider"))
	}
	if !o.users.RegistrationOpen(ctx) {
		if !a.Policy.CanCreateAlways {
			return reject(CodeRegistrationClosed, store.ErrRegistrationClosed)
		}
		ctx = store.WithTemporaryGroups(ctx, store.GroupAccountCreator)
	}

	in := store.NewAccount{
		Username: Username(id.Name),
		Email:    id.Email,
		Name:     id.Name,
		Activate: id.Verified && a.Policy.CanBypassValidation,
	}
	if in.Username == "" {
		in.Username = id.Email
	}
	acc, err := o.users.Create(ctx, in)
	if errors.Is(err, store.ErrUsernameTaken) && in.Username != id.Email {
		in.Username = id.Email
		acc, err = o.users.Create(ctx, in)
	}
	switch {
	case err == nil:
		return acc, nil
	case errors.Is(err, store.ErrUsernameTaken), errors.Is(err, store.ErrEmailTaken):
		return reject(CodeUsernameConflict, err)
	case errors.Is(err, store.ErrRegistrationClosed):
		return reject(CodeRegistrationClosed, err)
	default:
		return reject(CodeCreateFailed, err)
	}
}

func (o *Orchestrator) record(log *zap.Logger, provider string, out Outcome) {
	o.metrics.LoginOutcome(provider, string(out.Kind), string(out.Code))
	switch out.Kind {
	case KindRejected:
		log.Info("login rejected", logger.Code(string(out.Code)), logger.Err(out.Err))
	case KindPendingActivation:
		log.Info("account pending activation", logger.UserID(out.UserID))
	default:
		log.Info("login ok", logger.Outcome(string(out.Kind)), logger.UserID(out.UserID))
	}
}

// ProviderFailure converts an error raised before Handle (token exchange,
// profile fetch, identity token checks) into a rejection, logging it at the
// severity its class deserves.
func (o *Orchestrator) ProviderFailure(ctx context.Context, provider string, err error) Outcome {
	log := logger.From(ctx).With(logger.Component("login"), logger.Provider(provider))
	out := Rejected(Classify(err), err)
	switch Severity(err) {
	case SeverityError:
		log.Error("provider protocol violation", logger.Err(err))
	case SeverityWarn:
		log.Warn("provider request failed", logger.Err(err))
	default:
		log.Info("provider login aborted", logger.Err(err))
	}
	o.metrics.LoginOutcome(provider, string(out.Kind), string(out.Code))
	return out
}

// Unlink removes the provider link from userID.
func (o *Orchestrator) Unlink(ctx context.Context, userID, provider string) error {
	if err := o.links.DeleteLink(ctx, userID, provider); err != nil {
		return err
	}
	logger.From(ctx).Info("provider unlinked", logger.Component("login"), logger.Provider(provider), logger.UserID(userID))
	return nil
}

// DeleteUser drops every link held by userID; call it when the host deletes
// the account.
func (o *Orchestrator) DeleteUser(ctx context.Context, userID string) error {
	return o.links.DeleteUser(ctx, userID)
}
