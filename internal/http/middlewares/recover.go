package middlewares

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/dropDatabas3/socialauth/internal/http/errors"
	"github.com/dropDatabas3/socialauth/internal/observability/logger"
)

// WithRecover convierte un panic en un 500 JSON; http.ErrAbortHandler se relanza.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.From(r.Context()).Error("panic recovered",
					logger.Op("recover"),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.Any("panic", rec),
					zap.Stack("stack"),
				)
				errors.WriteError(w, errors.ErrInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
