package middlewares

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/dropDatabas3/socialauth/internal/http/errors"
	"github.com/dropDatabas3/socialauth/internal/observability/logger"
)

// WithSameOrigin rechaza métodos inseguros que un navegador manda desde otro
// origen. La cookie de sesión puede ser SameSite=None (form_post de Apple),
// así que no alcanza con el navegador.
//
//   - Origin presente: su host debe ser el del request o uno de trusted.
//   - Sin Origin: Sec-Fetch-Site debe ser same-origin o none.
//   - Sin ninguno de los dos (curl, server a server): pasa.
func WithSameOrigin(trusted []string) Middleware {
	hosts := make(map[string]bool, len(trusted))
	for _, h := range trusted {
		hosts[strings.ToLower(strings.TrimSpace(h))] = true
	}

	allowed := func(r *http.Request) bool {
		if origin := r.Header.Get("Origin"); origin != "" {
			u, err := url.Parse(origin)
			if err != nil || u.Host == "" {
				return false // incluye "null"
			}
			return strings.EqualFold(u.Host, r.Host) || hosts[strings.ToLower(u.Hostname())]
		}
		switch strings.ToLower(r.Header.Get("Sec-Fetch-Site")) {
		case "", "same-origin", "none":
			return true
		default:
			return false
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if !allowed(r) {
				logger.From(r.Context()).Warn("cross-origin request rejected",
					logger.String("origin", r.Header.Get("Origin")),
					logger.String("sec_fetch_site", r.Header.Get("Sec-Fetch-Site")))
				errors.WriteError(w, errors.ErrCrossOrigin)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
