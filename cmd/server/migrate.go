package main

import (
	"github.com/legalai/legal-assistant/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		repo, err := store.Open(cmd.Context(), cfg.DB, logger.Named("store"))
		if err != nil {
			logger.Error("Migration failed", zap.String("db_driver", cfg.DB.Driver), zap.Error(err))
			return err
		}
		logger.Info("Schema is up to date", zap.String("db_driver", cfg.DB.Driver))
		return repo.Close()
	},
}
