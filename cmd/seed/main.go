// Command seed loads directory and idea fixtures into the configured store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ideaflow/backend/internal/config"
	"ideaflow/backend/internal/logging"
	"ideaflow/backend/internal/repository"
)

var (
	configPath   string
	fixturesPath string
)

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load incubators, colleges, users and ideas from a YAML fixture",
	Long: `seed writes fixture data into the database configured for the server.

Without --fixtures a small built-in data set is loaded. Incubators, colleges
and users are upserted; ideas that already exist are skipped.`,
	SilenceUsage: true,
	RunE:         runSeed,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a config file")
	rootCmd.Flags().StringVarP(&fixturesPath, "fixtures", "f", "", "path to a YAML fixture file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger := logging.NewLogger(logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})
	defer logger.Close()

	data := defaultFixtures
	if fixturesPath != "" {
		data, err = os.ReadFile(fixturesPath)
		if err != nil {
			return fmt.Errorf("read fixtures: %w", err)
		}
	}
	fixtures, err := ParseFixtures(data)
	if err != nil {
		return err
	}

	var store repository.Repository
	switch cfg.DB.Driver {
	case "postgres":
		store, err = repository.OpenPostgres(ctx, cfg.PostgresDSN())
	default:
		store, err = repository.OpenSQLite(ctx, cfg.DB.Path)
	}
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.DB.Driver, "error", err)
		return err
	}
	defer store.Close()

	sum, err := Seed(ctx, store, fixtures, logger)
	if err != nil {
		logger.Error("seeding failed", "error", err)
		return err
	}
	logger.Info("seeding complete",
		"incubators", sum.Incubators,
		"colleges", sum.Colleges,
		"users", sum.Users,
		"ideas", sum.Ideas,
		"skipped", sum.Skipped,
	)
	return nil
}
