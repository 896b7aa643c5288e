// Package router arma el árbol de rutas HTTP.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	healthctrl "github.com/dropDatabas3/socialauth/internal/http/controllers/health"
	socialctrl "github.com/dropDatabas3/socialauth/internal/http/controllers/social"
	httperrors "github.com/dropDatabas3/socialauth/internal/http/errors"
	mw "github.com/dropDatabas3/socialauth/internal/http/middlewares"
	"github.com/dropDatabas3/socialauth/internal/metrics"
	"github.com/dropDatabas3/socialauth/internal/rate"
)

type Deps struct {
	Social  *socialctrl.Controller
	Health  *healthctrl.Controller
	Metrics metrics.Recorder
	// Gatherer expone /metrics; nil la deshabilita.
	Gatherer prometheus.Gatherer
	// RateLimiter limita start/callback por IP; nil = sin límite.
	RateLimiter rate.Limiter
	TrustProxy  bool
	// TrustedOrigins: hosts extra que pueden hacer POST (unlink, logout).
	TrustedOrigins []string
}

// New devuelve el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.WithRecover(), mw.WithRequestID())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// infra: sin logging (muy frecuentes)
	if d.Health != nil {
		r.Get("/healthz", d.Health.Healthz)
	}
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(mw.WithLogging(d.Metrics), mw.WithSecurityHeaders())

		sameOrigin := mw.WithSameOrigin(d.TrustedOrigins)

		r.Get("/providers", d.Social.Providers)
		r.Get("/me", d.Social.Me)
		r.With(sameOrigin).Post("/logout", d.Social.Logout)

		r.Route("/{provider}", func(r chi.Router) {
			limited := r.With(mw.WithRateLimit(d.RateLimiter, d.TrustProxy))
			limited.Get("/start", d.Social.Start)
			limited.Get("/callback", d.Social.Callback)
			limited.Post("/callback", d.Social.Callback)
			r.With(sameOrigin).Post("/unlink", d.Social.Unlink)
		})
	})
	return r
}
