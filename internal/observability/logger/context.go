package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type ctxKey struct{}

// scope es el logger de un request y los campos que las capas de abajo van
// sumando para la línea de cierre (provider, outcome, user_id...).
type scope struct {
	log *zap.Logger

	mu     sync.Mutex
	fields []zap.Field
}

// ToContext abre un scope con l como logger del request.
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, &scope{log: l})
}

func scopeOf(ctx context.Context) *scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(ctxKey{}).(*scope)
	return s
}

// From devuelve el logger del scope, o el global si ctx no tiene uno.
func From(ctx context.Context) *zap.Logger {
	if s := scopeOf(ctx); s != nil && s.log != nil {
		return s.log
	}
	return L()
}

// Annotate suma campos a la línea de cierre del request. Fuera de un scope
// no hace nada.
func Annotate(ctx context.Context, fields ...zap.Field) {
	s := scopeOf(ctx)
	if s == nil || len(fields) == 0 {
		return
	}
	s.mu.Lock()
	s.fields = append(s.fields, fields...)
	s.mu.Unlock()
}

// Annotations devuelve una copia de lo sumado con Annotate.
func Annotations(ctx context.Context) []zap.Field {
	s := scopeOf(ctx)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]zap.Field(nil), s.fields...)
}
