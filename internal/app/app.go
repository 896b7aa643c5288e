// Package app arma la aplicación a partir de config.Config: stores, sesiones,
// proveedores, orquestador y router.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/socialauth/internal/cache"
	"github.com/dropDatabas3/socialauth/internal/config"
	"github.com/dropDatabas3/socialauth/internal/email"
	healthctrl "github.com/dropDatabas3/socialauth/internal/http/controllers/health"
	socialctrl "github.com/dropDatabas3/socialauth/internal/http/controllers/social"
	"github.com/dropDatabas3/socialauth/internal/http/router"
	socialsvc "github.com/dropDatabas3/socialauth/internal/http/services/social"
	"github.com/dropDatabas3/socialauth/internal/login"
	"github.com/dropDatabas3/socialauth/internal/metrics"
	"github.com/dropDatabas3/socialauth/internal/oauth/oauth2"
	"github.com/dropDatabas3/socialauth/internal/observability/logger"
	"github.com/dropDatabas3/socialauth/internal/providers"
	"github.com/dropDatabas3/socialauth/internal/providers/builtin"
	"github.com/dropDatabas3/socialauth/internal/rate"
	"github.com/dropDatabas3/socialauth/internal/security/secretbox"
	"github.com/dropDatabas3/socialauth/internal/session"
	"github.com/dropDatabas3/socialauth/internal/store"
	"github.com/dropDatabas3/socialauth/internal/store/pg"
)

// ProviderTimeout limita cada request saliente a un proveedor.
const ProviderTimeout = 15 * time.Second

type App struct {
	Config   *config.Config
	Handler  http.Handler
	Registry *prometheus.Registry
	Login    *login.Orchestrator

	closers []func()
}

// New arma todo. Si falla a mitad, libera lo que ya abrió.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	log := logger.From(ctx).With(logger.Component("app"))

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := metrics.New(a.Registry)
	if err != nil {
		return nil, fmt.Errorf("app: metrics: %w", err)
	}

	// 1) sesiones
	sessCache, err := cache.New(ctx, cache.Config{
		Driver:     cfg.Session.Driver,
		Addr:       cfg.Session.Redis.Addr,
		Password:   cfg.Session.Redis.Password,
		DB:         cfg.Session.Redis.DB,
		Prefix:     cfg.Session.Redis.Prefix,
		DefaultTTL: cfg.SessionTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("app: session cache: %w", err)
	}
	a.closers = append(a.closers, func() { _ = sessCache.Close() })
	checks := map[string]healthctrl.Pinger{"session": sessCache}

	// 2) stores
	var (
		links store.LinkStore
		users store.UserDirectory
	)
	switch cfg.Storage.Driver {
	case "postgres":
		pgs, err := pg.Open(ctx, pg.Config{
			DSN:             cfg.Storage.DSN,
			MaxConns:        int32(cfg.Storage.Postgres.MaxOpenConns),
			MinConns:        int32(cfg.Storage.Postgres.MaxIdleConns),
			MaxConnLifetime: cfg.ConnMaxLifetime(),
		})
		if err != nil {
			return nil, fmt.Errorf("app: postgres: %w", err)
		}
		a.closers = append(a.closers, pgs.Close)
		checks["postgres"] = pgs
		links = pgs.Links()
		users = pgs.Directory(pg.DirectoryOptions{
			RegistrationOpen: cfg.Registration.Open,
			ActivationMode:   cfg.ActivationMode(),
		})
	default:
		log.Warn("using in-memory storage, links are lost on restart")
		links = store.NewMemoryLinkStore()
		users = store.NewMemoryDirectory(store.MemoryDirectoryOptions{
			RegistrationOpen: cfg.Registration.Open,
			ActivationMode:   cfg.ActivationMode(),
		})
	}

	if cfg.Storage.TokenKey != "" {
		key, err := secretbox.ParseKey(cfg.Storage.TokenKey)
		if err != nil {
			return nil, fmt.Errorf("app: token key: %w", err)
		}
		box, err := secretbox.New(key)
		if err != nil {
			return nil, fmt.Errorf("app: token key: %w", err)
		}
		links = store.NewSealedLinkStore(links, box)
	}

	// 3) orquestador
	opts := login.Options{Links: links, Users: users, Metrics: rec}
	if cfg.SMTP.Host != "" {
		opts.Notifier = &email.ActivationNotifier{
			Sender: email.NewSMTPSender(email.SMTPConfig{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				Username: cfg.SMTP.Username,
				Password: cfg.SMTP.Password,
				From:     cfg.SMTP.From,
				TLSMode:  cfg.SMTP.TLS,
			}),
			SiteName:   cfg.App.Name,
			AdminEmail: cfg.Registration.AdminEmail,
		}
	} else if cfg.ActivationMode() != store.ActivationNone {
		log.Warn("activation required but smtp not configured, pending accounts will not be notified")
	}
	a.Login = login.New(opts)

	// 4) proveedores
	registry := builtin.NewRegistry()
	entries, err := Entries(cfg, registry, rec)
	if err != nil {
		return nil, err
	}
	log.Info("providers enabled", logger.Any("providers", cfg.Enabled()))

	service := socialsvc.NewService(socialsvc.Deps{
		Registry:    registry,
		Entries:     entries,
		Login:       a.Login,
		ReturnHosts: cfg.Server.ReturnHosts,
	})
	sessions := &session.Manager{Store: sessCache, TTL: cfg.SessionTTL(), Secure: cfg.Server.Cookie.Secure}

	a.Handler = router.New(router.Deps{
		Social:         socialctrl.NewController(service, sessions),
		Health:         healthctrl.NewController(checks),
		Metrics:        rec,
		Gatherer:       a.Registry,
		RateLimiter:    newLimiter(cfg, sessCache),
		TrustProxy:     cfg.Server.TrustProxy,
		TrustedOrigins: cfg.Server.ReturnHosts,
	})
	return a, nil
}

// newLimiter comparte Redis con las sesiones si lo hay; si no, memoria local.
func newLimiter(cfg *config.Config, c cache.Client) rate.Limiter {
	n := cfg.Server.RateLimit.Max
	if n <= 0 {
		return nil
	}
	if r, ok := c.(*cache.Redis); ok {
		return rate.NewRedisLimiter(r.Client(), cfg.Session.Redis.Prefix+":rl:", n, cfg.RateLimitWindow())
	}
	return rate.NewMemoryLimiter(n, cfg.RateLimitWindow())
}

// Entries arma la configuración de cada proveedor habilitado y construye un
// connector de prueba para fallar al arrancar si falta algo.
func Entries(cfg *config.Config, reg *providers.Registry, rec metrics.Recorder) (map[string]socialsvc.Entry, error) {
	out := map[string]socialsvc.Entry{}
	for _, name := range cfg.Enabled() {
		p, err := reg.Get(name)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		ps := cfg.Providers[name]
		pc := providers.Config{
			ClientID:     ps.ClientID,
			ClientSecret: ps.ClientSecret,
			RedirectURI:  cfg.RedirectFor(name),
			Scopes:       ps.Scopes,
			UseRefresh:   ps.UseRefresh,
			Extra:        ps.Extra,
			HTTPClient:   metrics.InstrumentClient(&http.Client{Timeout: ProviderTimeout}, name, rec),
			UserAgent:    cfg.App.Name,
		}
		for _, k := range ps.ParamKeys() {
			pc.Params = append(pc.Params, oauth2.Param{Key: k, Value: ps.Params[k]})
		}
		if _, err := p.Connector(pc); err != nil {
			return nil, fmt.Errorf("app: provider %s: %w", name, err)
		}
		out[name] = socialsvc.Entry{Config: pc, Policy: ps.Policy()}
	}
	return out, nil
}

// Run sirve HTTP hasta que ctx se cancela y luego apaga ordenadamente.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log := logger.From(ctx).With(logger.Component("http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", logger.String("addr", srv.Addr), logger.URL(strings.TrimRight(a.Config.Server.BaseURL, "/")))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close libera conexiones en orden inverso.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
