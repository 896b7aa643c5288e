// Package social contiene el service del login social: arma la redirección
// al proveedor, valida el callback y delega la decisión al orquestador.
package social

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/dropDatabas3/socialauth/internal/login"
	"github.com/dropDatabas3/socialauth/internal/observability/logger"
	"github.com/dropDatabas3/socialauth/internal/providers"
	"github.com/dropDatabas3/socialauth/internal/session"
)

// Claves dentro de la sesión.
const (
	KeyUserID = "user_id"
	keyReturn = "return"
)

func stateKey(provider string) string { return "state." + provider }
func nonceKey(provider string) string { return "nonce." + provider }

var (
	ErrProviderNotFound = errors.New("social: provider not enabled")
	ErrInvalidState     = errors.New("social: state mismatch")
	ErrInvalidReturn    = errors.New("social: return url not allowed")
	ErrNotAuthenticated = errors.New("social: no user in session")
)

// Entry es un proveedor habilitado: su plantilla de configuración (sin
// state, nonce ni store, que son por intento) y su política.
type Entry struct {
	Config providers.Config
	Policy login.Policy
}

type Deps struct {
	Registry *providers.Registry
	Entries  map[string]Entry
	Login    *login.Orchestrator
	// ReturnHosts habilita ?return= absolutos hacia esos hosts.
	ReturnHosts []string
}

type Service struct {
	registry    *providers.Registry
	entries     map[string]Entry
	login       *login.Orchestrator
	returnHosts map[string]bool
}

func NewService(d Deps) *Service {
	hosts := make(map[string]bool, len(d.ReturnHosts))
	for _, h := range d.ReturnHosts {
		hosts[strings.ToLower(strings.TrimSpace(h))] = true
	}
	return &Service{registry: d.Registry, entries: d.Entries, login: d.Login, returnHosts: hosts}
}

// Providers devuelve los nombres habilitados, ordenados.
func (s *Service) Providers() []string {
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Service) lookup(name string) (providers.Provider, Entry, error) {
	e, ok := s.entries[name]
	if !ok {
		return nil, Entry{}, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	p, err := s.registry.Get(name)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("%w: %v", ErrProviderNotFound, err)
	}
	return p, e, nil
}

// Start prepara un intento y devuelve la URL de autorización.
func (s *Service) Start(ctx context.Context, sess *session.Session, name, returnTo string) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("social.Start"), logger.Provider(name))

	p, e, err := s.lookup(name)
	if err != nil {
		return "", err
	}
	ret, err := s.SafeReturn(returnTo)
	if err != nil {
		return "", err
	}

	cfg := e.Config
	cfg.Store = sess
	if p.Protocol() == providers.ProtocolOAuth2 {
		if cfg.State, err = session.NewID(); err != nil {
			return "", err
		}
		if cfg.Nonce, err = session.NewID(); err != nil {
			return "", err
		}
		if err := sess.Set(ctx, stateKey(name), cfg.State); err != nil {
			return "", err
		}
		if err := sess.Set(ctx, nonceKey(name), cfg.Nonce); err != nil {
			return "", err
		}
	}
	if err := sess.Set(ctx, keyReturn, ret); err != nil {
		return "", err
	}

	conn, err := p.Connector(cfg)
	if err != nil {
		return "", err
	}
	authURL, err := conn.AuthURL(ctx)
	if err != nil {
		return "", err
	}
	log.Debug("redirecting to provider")
	return authURL, nil
}

// CallbackResult es lo que el controller necesita para responder.
type CallbackResult struct {
	Outcome login.Outcome
	// RedirectURL solo se setea si el usuario quedó autenticado.
	RedirectURL string
}

// Callback consume la vuelta del proveedor. El error solo se usa para fallas
// previas al proveedor (proveedor desconocido, state inválido, sesión);
// todo lo demás termina en un Outcome.
func (s *Service) Callback(ctx context.Context, sess *session.Session, name string, r *http.Request) (CallbackResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("social.Callback"), logger.Provider(name))

	p, e, err := s.lookup(name)
	if err != nil {
		return CallbackResult{}, err
	}
	if err := r.ParseForm(); err != nil {
		return CallbackResult{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	cfg := e.Config
	cfg.Store = sess
	if p.Protocol() == providers.ProtocolOAuth2 {
		expected, ok, err := sess.Take(ctx, stateKey(name))
		if err != nil {
			return CallbackResult{}, err
		}
		got := r.Form.Get("state")
		if !ok || got == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
			log.Warn("state mismatch", logger.Bool("had_state", ok))
			return CallbackResult{}, ErrInvalidState
		}
		cfg.State = expected
		if cfg.Nonce, _, err = sess.Take(ctx, nonceKey(name)); err != nil {
			return CallbackResult{}, err
		}
	}

	ud, token, err := s.identify(ctx, p, cfg, r)
	if err != nil {
		return CallbackResult{Outcome: s.login.ProviderFailure(ctx, name, err)}, nil
	}

	current, _, err := sess.Get(ctx, KeyUserID)
	if err != nil {
		return CallbackResult{}, err
	}
	out := s.login.Handle(ctx, login.Attempt{
		Provider:      name,
		Identity:      *ud,
		Token:         token,
		CurrentUserID: current,
		Policy:        e.Policy,
	})
	res := CallbackResult{Outcome: out}
	if !out.Authenticated() {
		return res, nil
	}

	if err := sess.Set(ctx, KeyUserID, out.UserID); err != nil {
		return CallbackResult{}, err
	}
	ret, ok, err := sess.Take(ctx, keyReturn)
	if err != nil || !ok || ret == "" {
		ret = "/"
	}
	res.RedirectURL = ret
	return res, nil
}

// identify completa el protocolo y normaliza el perfil.
func (s *Service) identify(ctx context.Context, p providers.Provider, cfg providers.Config, r *http.Request) (*providers.UserData, string, error) {
	conn, err := p.Connector(cfg)
	if err != nil {
		return nil, "", err
	}
	if err := conn.Complete(ctx, r); err != nil {
		return nil, "", err
	}
	prof, err := p.FetchProfile(ctx, conn, providers.Callback{Form: r.Form, Nonce: cfg.Nonce})
	if err != nil {
		return nil, "", err
	}
	ud, err := p.MapProfile(prof)
	if err != nil {
		return nil, "", err
	}
	token, err := conn.SerializedToken()
	if err != nil {
		logger.From(ctx).Warn("token not serializable, link saved without it", logger.Provider(p.Name()), logger.Err(err))
		token = ""
	}
	return ud, token, nil
}

// Unlink borra el vínculo del usuario de la sesión con name.
func (s *Service) Unlink(ctx context.Context, sess *session.Session, name string) error {
	if _, _, err := s.lookup(name); err != nil {
		return err
	}
	uid, ok, err := sess.Get(ctx, KeyUserID)
	if err != nil {
		return err
	}
	if !ok || uid == "" {
		return ErrNotAuthenticated
	}
	return s.login.Unlink(ctx, uid, name)
}

// Logout olvida el usuario de la sesión.
func (s *Service) Logout(ctx context.Context, sess *session.Session) error {
	return sess.Delete(ctx, KeyUserID)
}

// CurrentUser devuelve el usuario de la sesión, si hay.
func (s *Service) CurrentUser(ctx context.Context, sess *session.Session) (string, bool, error) {
	return sess.Get(ctx, KeyUserID)
}

// SafeReturn valida el destino post-login: paths relativos al sitio, o URLs
// http(s) hacia un host habilitado. Vacío => "/".
func (s *Service) SafeReturn(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "/", nil
	}
	if strings.ContainsAny(raw, "\\\r\n") {
		return "", ErrInvalidReturn
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidReturn
	}
	if u.Scheme == "" && u.Host == "" {
		if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
			return "", ErrInvalidReturn
		}
		return raw, nil
	}
	if (u.Scheme == "http" || u.Scheme == "https") && s.returnHosts[strings.ToLower(u.Hostname())] {
		return raw, nil
	}
	return "", ErrInvalidReturn
}
