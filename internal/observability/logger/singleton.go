package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var current atomic.Pointer[zap.Logger]

// Init construye el logger global desde cfg y lo instala.
func Init(cfg Config) {
	current.Store(build(cfg))
}

// L devuelve el logger global; sin Init usa dev/info.
func L() *zap.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	current.CompareAndSwap(nil, build(Config{Env: "dev", Level: "info"}))
	return current.Load()
}

// Replace instala l (zap.NewNop, zaptest/observer) y devuelve el restore.
func Replace(l *zap.Logger) func() {
	prev := current.Swap(l)
	return func() { current.Store(prev) }
}

// Sync vacía los buffers; main lo llama con defer.
func Sync() error {
	if l := current.Load(); l != nil {
		return l.Sync()
	}
	return nil
}
