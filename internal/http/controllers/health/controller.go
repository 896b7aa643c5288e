// Package health expone /healthz.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/dropDatabas3/socialauth/internal/observability/logger"
)

// Pinger es cualquier dependencia chequeable (cache, postgres).
type Pinger interface {
	Ping(ctx context.Context) error
}

type Controller struct {
	checks  map[string]Pinger
	timeout time.Duration
}

func NewController(checks map[string]Pinger) *Controller {
	return &Controller{checks: checks, timeout: 2 * time.Second}
}

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz handles GET /healthz. 503 si alguna dependencia falla.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	names := make([]string, 0, len(c.checks))
	for n := range c.checks {
		names = append(names, n)
	}
	sort.Strings(names)

	resp := response{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK
	for _, n := range names {
		if err := c.checks[n].Ping(ctx); err != nil {
			logger.From(ctx).Warn("health check failed", logger.Component(n), logger.Err(err))
			resp.Checks[n] = "down"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[n] = "up"
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
