package social

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	httperrors "github.com/dropDatabas3/socialauth/internal/http/errors"
	svc "github.com/dropDatabas3/socialauth/internal/http/services/social"
	"github.com/dropDatabas3/socialauth/internal/login"
	"github.com/dropDatabas3/socialauth/internal/observability/logger"
	"github.com/dropDatabas3/socialauth/internal/session"
)

// Controller atiende /auth/{provider}/...
type Controller struct {
	service  *svc.Service
	sessions *session.Manager
}

func NewController(service *svc.Service, sessions *session.Manager) *Controller {
	return &Controller{service: service, sessions: sessions}
}

// Start handles GET /auth/{provider}/start?return=/path
func (c *Controller) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := chi.URLParam(r, "provider")
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("social.Start"), logger.Provider(provider))
	logger.Annotate(ctx, logger.Provider(provider))

	sess, err := c.sessions.Load(w, r)
	if err != nil {
		log.Error("session load failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}

	// id nuevo por intento; el cookie vence junto con state y nonce
	if sess, err = c.sessions.Rotate(ctx, w, sess, svc.KeyUserID); err != nil {
		log.Error("session rotate failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}

	authURL, err := c.service.Start(ctx, sess, provider, r.URL.Query().Get("return"))
	if err != nil {
		log.Warn("start failed", logger.Err(err))
		httperrors.WriteError(w, mapServiceError(err))
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback handles GET|POST /auth/{provider}/callback. Apple usa form_post.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := chi.URLParam(r, "provider")
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("social.Callback"), logger.Provider(provider))
	logger.Annotate(ctx, logger.Provider(provider))

	sess, err := c.sessions.Load(w, r)
	if err != nil {
		log.Error("session load failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}

	res, err := c.service.Callback(ctx, sess, provider, r)
	if err != nil {
		log.Warn("callback refused", logger.Err(err))
		httperrors.WriteError(w, mapServiceError(err))
		return
	}

	out := res.Outcome
	annotateOutcome(ctx, out)
	switch out.Kind {
	case login.KindLoggedIn, login.KindLinked:
		// el id que trajo el navegador no debe quedar autenticado
		if _, err := c.sessions.Rotate(ctx, w, sess, svc.KeyUserID); err != nil {
			log.Error("session rotate failed", logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
			return
		}
		http.Redirect(w, r, res.RedirectURL, http.StatusSeeOther)
	case login.KindPendingActivation:
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "pending",
			"message": out.Message,
		})
	default:
		httperrors.WriteError(w, outcomeError(out))
	}
}

// annotateOutcome suma el resultado a la línea de cierre del request.
func annotateOutcome(ctx context.Context, out login.Outcome) {
	fields := []zap.Field{logger.Outcome(string(out.Kind))}
	if out.Code != "" {
		fields = append(fields, logger.Code(string(out.Code)))
	}
	if out.UserID != "" {
		fields = append(fields, logger.UserID(out.UserID))
	}
	logger.Annotate(ctx, fields...)
}

// Unlink handles POST /auth/{provider}/unlink
func (c *Controller) Unlink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := chi.URLParam(r, "provider")
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("social.Unlink"), logger.Provider(provider))
	logger.Annotate(ctx, logger.Provider(provider))

	sess, err := c.sessions.Load(w, r)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	if err := c.service.Unlink(ctx, sess, provider); err != nil {
		log.Warn("unlink failed", logger.Err(err))
		httperrors.WriteError(w, mapServiceError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Providers handles GET /auth/providers
func (c *Controller) Providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"providers": c.service.Providers()})
}

// Me handles GET /auth/me
func (c *Controller) Me(w http.ResponseWriter, r *http.Request) {
	sess, err := c.sessions.Load(w, r)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	uid, ok, err := c.service.CurrentUser(r.Context(), sess)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": uid})
}

// Logout handles POST /auth/logout
func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	sess, err := c.sessions.Load(w, r)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	if err := c.service.Logout(r.Context(), sess); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if _, err := c.sessions.Rotate(r.Context(), w, sess); err != nil {
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, svc.ErrProviderNotFound):
		return httperrors.ErrProviderNotFound.WithCause(err)
	case errors.Is(err, svc.ErrInvalidState):
		return httperrors.ErrInvalidState.WithCause(err)
	case errors.Is(err, svc.ErrInvalidReturn):
		return httperrors.ErrBadRequest.WithDetail("return url not allowed")
	case errors.Is(err, svc.ErrNotAuthenticated):
		return httperrors.ErrUnauthorized.WithCause(err)
	}
	var appErr *httperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return httperrors.ErrInternalServerError.WithCause(err)
}

var codeMessages = map[login.ErrorCode]string{
	login.CodeLocalNotFound:         "No local account matches this login.",
	login.CodeUsernameConflict:      "An account with this e-mail or username already exists. Log in and link it first.",
	login.CodeCreateDisabled:        "New accounts cannot be created with this provider.",
	login.CodeRegistrationClosed:    "Registration is closed.",
	login.CodeCreateFailed:          "The account could not be created.",
	login.CodeLoginFailed:           "Login is not allowed for this account.",
	login.CodeLinkFailed:            "The account could not be linked.",
	login.CodeInvalidIdentity:       "The provider returned an invalid identity.",
	login.CodeProviderError:         "The provider could not complete the login.",
	login.CodeAccessDenied:          "Access was denied at the provider.",
	login.CodeProviderNotConfigured: "This provider is not configured.",
}

// outcomeError convierte un rechazo en la respuesta HTTP; el code es el del
// orquestador, sin traducir.
func outcomeError(out login.Outcome) *httperrors.AppError {
	status := http.StatusUnauthorized
	switch out.Code {
	case login.CodeProviderError:
		status = http.StatusBadGateway
	case login.CodeProviderNotConfigured:
		status = http.StatusNotFound
	case login.CodeCreateFailed, login.CodeLinkFailed:
		status = http.StatusInternalServerError
	}
	msg, ok := codeMessages[out.Code]
	if !ok {
		msg = httperrors.ErrLoginFailed.Message
	}
	return httperrors.New(status, string(out.Code), msg).WithCause(out.Err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
