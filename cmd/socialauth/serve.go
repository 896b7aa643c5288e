package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/socialauth/internal/app"
	"github.com/dropDatabas3/socialauth/internal/config"
	"github.com/dropDatabas3/socialauth/internal/observability/logger"
	"github.com/dropDatabas3/socialauth/internal/store/pg"
)

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if migrate && cfg.Storage.Driver == "postgres" {
				if err := runMigrations(ctx, cfg); err != nil {
					return err
				}
			}

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Aplica migraciones pendientes antes de arrancar (postgres)")
	return cmd
}

func newMigrateCmd(load func() (*config.Config, error)) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if dsn != "" {
				cfg.Storage.Driver = "postgres"
				cfg.Storage.DSN = dsn
			}
			if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN == "" {
				return errors.New("migrate: postgres dsn required (storage.dsn or --dsn)")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			return runMigrations(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "DSN de PostgreSQL (pisa storage.dsn)")
	return cmd
}

func runMigrations(ctx context.Context, cfg *config.Config) error {
	s, err := pg.Open(ctx, pg.Config{DSN: cfg.Storage.DSN, MaxConns: 2, MinConns: 1})
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer s.Close()

	res, err := s.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.L().Info("migrations done",
		logger.Any("applied", res.Applied),
		logger.Int("skipped", len(res.Skipped)),
		logger.Duration(res.Duration),
	)
	return nil
}
