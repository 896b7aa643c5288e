// Package middlewares agrupa los decoradores HTTP del servicio de login.
package middlewares

import "net/http"

// Middleware decora un http.Handler; se usa con chi (r.Use / r.With).
type Middleware func(http.Handler) http.Handler
