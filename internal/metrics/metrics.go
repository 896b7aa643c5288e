// Package metrics expone los contadores Prometheus del login social.
// Los paquetes de dominio dependen solo de Recorder; Noop es el default.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder recibe los eventos medibles.
type Recorder interface {
	LoginOutcome(provider, outcome, code string)
	ProviderRequest(provider, endpoint string, status int, d time.Duration)
	HTTPRequest(method, route string, status int)
}

// Noop descarta todo.
type Noop struct{}

func (Noop) LoginOutcome(string, string, string)                {}
func (Noop) ProviderRequest(string, string, int, time.Duration) {}
func (Noop) HTTPRequest(string, string, int)                    {}

// OutcomeRejected es el outcome que cuenta como login fallido.
const OutcomeRejected = "rejected"

// Prometheus implementa Recorder.
type Prometheus struct {
	LoginOutcomes    *prometheus.CounterVec
	LoginFailures    *prometheus.CounterVec
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec
}

// New crea las métricas y las registra en reg (o el default si es nil).
func New(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		LoginOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialauth_login_outcomes_total",
			Help: "Resultados del orquestador de login",
		}, []string{"provider", "outcome", "code"}),
		LoginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialauth_login_failures_total",
			Help: "Logins rechazados (no incluye activaciones pendientes)",
		}, []string{"provider", "code"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialauth_provider_requests_total",
			Help: "Requests salientes a proveedores",
		}, []string{"provider", "endpoint", "status"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "socialauth_provider_request_duration_seconds",
			Help:    "Latencia de requests a proveedores",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "endpoint"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialauth_http_requests_total",
			Help: "Requests HTTP atendidos",
		}, []string{"method", "route", "status"}),
	}
	for _, c := range []prometheus.Collector{p.LoginOutcomes, p.LoginFailures, p.ProviderRequests, p.ProviderLatency, p.HTTPRequests} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
		}
	}
	return p, nil
}

func (p *Prometheus) LoginOutcome(provider, outcome, code string) {
	p.LoginOutcomes.WithLabelValues(provider, outcome, code).Inc()
	if outcome == OutcomeRejected {
		p.LoginFailures.WithLabelValues(provider, code).Inc()
	}
}

func (p *Prometheus) ProviderRequest(provider, endpoint string, status int, d time.Duration) {
	p.ProviderRequests.WithLabelValues(provider, endpoint, strconv.Itoa(status)).Inc()
	p.ProviderLatency.WithLabelValues(provider, endpoint).Observe(d.Seconds())
}

func (p *Prometheus) HTTPRequest(method, route string, status int) {
	p.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Transport mide cada request saliente hacia un proveedor. status=0 indica
// error de red.
type Transport struct {
	Base     http.RoundTripper
	Provider string
	Recorder Recorder
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	start := time.Now()
	resp, err := base.RoundTrip(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if t.Recorder != nil {
		t.Recorder.ProviderRequest(t.Provider, req.URL.Host+req.URL.Path, status, time.Since(start))
	}
	return resp, err
}

// InstrumentClient devuelve un *http.Client cuyo transporte pasa por Transport.
func InstrumentClient(c *http.Client, provider string, rec Recorder) *http.Client {
	if rec == nil {
		return c
	}
	out := &http.Client{}
	if c != nil {
		cp := *c
		out = &cp
	}
	out.Transport = &Transport{Base: out.Transport, Provider: provider, Recorder: rec}
	return out
}
