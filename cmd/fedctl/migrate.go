package main

import (
	"fmt"

	"github.com/kursadbilgin/federation-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/federation-engine/internal/infra/postgresql/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolConfigFrom(cfg), logger.Named("gorm"))
			if err != nil {
				return fmt.Errorf("postgres initialization failed: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("postgres underlying db init failed: %w", err)
			}
			defer sqlDB.Close()

			if err := migrations.Migrate(db); err != nil {
				return fmt.Errorf("database migrations failed: %w", err)
			}
			logger.Info("database migrations applied", zap.String("command", cmd.CommandPath()))
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
