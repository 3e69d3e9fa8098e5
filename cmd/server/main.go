// Package main is the entry point for the task manager server.
//
// The main package stays small: it loads configuration, builds a logger
// and hands both to internal/server. Running the binary with no
// subcommand serves HTTP; "migrate" only applies schema migrations.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sakif/task-manager/internal/config"
	sqliteRepo "github.com/sakif/task-manager/internal/repository/sqlite"
	"github.com/sakif/task-manager/internal/server"
)

// envFile is loaded before configuration is parsed. Variables already set
// in the environment win over the file.
var envFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "taskmanager",
		Short:         "Task manager REST API",
		Long:          `Serves the task manager REST API: user accounts, bearer tokens, tasks and avatars.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading configuration")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (the default)",
		RunE:  runServe,
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE:  runMigrate,
	}
}

// setup loads the env file and configuration and builds the logger. Errors
// are logged here so that every subcommand reports them the same way.
func setup() (*config.Config, *slog.Logger, error) {
	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		bootstrap.Error("failed to load env file", slog.String("path", envFile), slog.String("error", err.Error()))
		return nil, nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		bootstrap.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, nil, err
	}
	return cfg, newLogger(cfg), nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Start blocks until the server is shut down (Ctrl+C or SIGTERM).
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			logger.Error("failed to create database directory", slog.String("error", err.Error()))
			return err
		}
	}

	db, err := sqliteRepo.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		return err
	}
	defer db.Close()

	version, err := db.Migrate(context.Background())
	if err != nil {
		logger.Error("migration failed", slog.String("error", err.Error()))
		return err
	}

	cmd.Printf("database %s at schema version %d\n", cfg.DBPath, version)
	return nil
}
