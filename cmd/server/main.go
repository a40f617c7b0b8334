// Package main is the entry point for the minitwit server.
//
// The main package stays minimal. It reads configuration, builds the
// logger and hands over to internal/server. All actual logic lives in
// internal packages.
//
// COMMANDS:
//
//	minitwit             same as "minitwit serve"
//	minitwit serve       start the HTTP server
//	minitwit seed        load the demo dataset into the configured database
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sakif/minitwit/internal/config"
	"github.com/sakif/minitwit/internal/events"
	"github.com/sakif/minitwit/internal/server"
	"github.com/sakif/minitwit/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	serve := newServeCmd(&envFile)

	root := &cobra.Command{
		Use:          "minitwit",
		Short:        "A small social network: post, follow, like, read your feed",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to read before the environment")
	addStoreFlags(root.Flags())

	root.AddCommand(serve, newSeedCmd(&envFile))
	return root
}

// addStoreFlags registers the flags config.Load binds to. Their defaults
// only apply when neither the flag nor the environment sets a value.
func addStoreFlags(fs *pflag.FlagSet) {
	fs.Int("port", 8080, "HTTP port (env PORT)")
	fs.String("db-driver", config.DriverSQLite, "sqlite or postgres (env DB_DRIVER)")
	fs.String("db-path", "data/minitwit.db", "sqlite database file (env DB_PATH)")
}

func newServeCmd(envFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*envFile, cmd.Flags())
			if err != nil {
				return err
			}

			srv, err := server.New(cmd.Context(), cfg, logger)
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
		},
	}
	addStoreFlags(cmd.Flags())
	return cmd
}

func newSeedCmd(envFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the demo users, tweets, follows and likes (once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*envFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runSeed(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}
	addStoreFlags(cmd.Flags())
	return cmd
}

// runSeed opens the store, seeds it and prints the result as JSON. No
// server is running, so events go nowhere.
func runSeed(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	store, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	res, err := service.NewSeedService(store, events.Discard{}, logger).Seed(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// setup loads and validates the configuration and builds the logger.
func setup(envFile string, flags *pflag.FlagSet) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile, flags)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg, os.Stdout)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newLogger builds the process logger: human-readable text by default,
// JSON lines when LOG_FORMAT=json.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == config.FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
