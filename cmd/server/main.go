// Command server runs the ideaflow HTTP API and MCP endpoint.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ideaflow/backend/internal/config"
	"ideaflow/backend/internal/logging"
	"ideaflow/backend/internal/repository"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ideaflow",
	Short: "Idea lifecycle workflow service",
	Long: `ideaflow moves student ideas through review, endorsement and incubation.

Configuration is read from config.yaml (in . or ./config) or the file given
with --config. Every key can be overridden with an IDEAFLOW_ environment
variable, e.g. IDEAFLOW_DB_DRIVER=postgres.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server (default)",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadRuntime() (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	logger := logging.NewLogger(logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})
	return cfg, logger, nil
}

type migratedStore interface {
	repository.Repository
	AppliedMigrations() []string
}

// openStore opens the configured backend. Both backends apply pending
// migrations on open.
func openStore(ctx context.Context, cfg *config.Config) (migratedStore, error) {
	switch cfg.DB.Driver {
	case "postgres":
		return repository.OpenPostgres(ctx, cfg.PostgresDSN())
	default:
		return repository.OpenSQLite(ctx, cfg.DB.Path)
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Close()

	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		logger.Error("migration failed", "driver", cfg.DB.Driver, "error", err)
		return err
	}
	defer store.Close()

	applied := store.AppliedMigrations()
	if len(applied) == 0 {
		logger.Info("database is up to date", "driver", cfg.DB.Driver)
		return nil
	}
	logger.Info("migrations applied", "driver", cfg.DB.Driver, "migrations", applied)
	return nil
}
