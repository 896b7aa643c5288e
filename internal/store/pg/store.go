// Package pg implementa store.LinkStore y store.UserDirectory sobre PostgreSQL
// usando pgxpool directamente.
//
// Los vínculos viven como filas de perfil (user_profile) con claves
// "socialauth.<provider>.<field>"; ver store.LinkKey.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	migrations "github.com/dropDatabas3/socialauth/migrations/postgres"
)

// DB es lo que usamos del pool. *pgxpool.Pool lo cumple.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Config de conexión.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type Store struct{ pool *pgxpool.Pool }

// Open crea el pool y verifica la conexión con un ping.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}
	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 2
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool expone el pool interno (métricas, migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Links devuelve el LinkStore respaldado por este pool.
func (s *Store) Links() *LinkStore { return NewLinkStore(s.pool) }

// Directory devuelve el directorio de cuentas respaldado por este pool.
func (s *Store) Directory(opts DirectoryOptions) *Directory { return NewDirectory(s.pool, opts) }

// Migrate aplica las migraciones pendientes.
func (s *Store) Migrate(ctx context.Context) (*MigrationResult, error) {
	return NewMigrator(migrations.FS, migrations.Dir).Run(ctx, s.pool)
}

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

// uniqueViolation devuelve el constraint violado si err es un 23505.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return pgErr.ConstraintName, true
	}
	return "", false
}
