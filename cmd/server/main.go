// Legal Assistant API server
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/legalai/legal-assistant/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

// rootCmd runs the server when invoked without a subcommand.
var rootCmd = &cobra.Command{
	Use:           "legal-assistant",
	Short:         "Legal assistant conversation API",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (or set CONFIG_FILE env)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrap loads .env and configuration and builds the logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	var logger *zap.Logger
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	// Package-level response helpers log through the global logger.
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Info("No .env file found, using environment variables")
	}
	return cfg, logger, nil
}
