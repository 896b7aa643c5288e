// Package cache provee el almacenamiento clave/valor con TTL que respalda
// las sesiones del login social (state, nonce, request tokens OAuth1).
//
// Soporta:
//   - Memory (in-process, go-cache; desarrollo/testing o una sola instancia)
//   - Redis (distribuido, para producción)
package cache

import (
	"context"
	"errors"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor. Si ttl es 0 usa el TTL por defecto del cliente.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete elimina una key (no falla si no existe).
	Delete(ctx context.Context, key string) error

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string // host:port (redis)
	Password   string
	DB         int
	Prefix     string // Prefijo para todas las keys
	DefaultTTL time.Duration
}

// ErrNotFound se devuelve cuando la key no existe.
var ErrNotFound = errors.New("cache: key not found")

// DefaultTTL es la vida de una entrada cuando Config no la fija.
const DefaultTTL = 15 * time.Minute

// New crea un cliente de cache según la configuración.
func New(ctx context.Context, cfg Config) (Client, error) {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	switch cfg.Driver {
	case "redis":
		return NewRedis(ctx, cfg)
	default:
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
