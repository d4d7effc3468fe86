// Package main contains the entrypoint of the mirror bot server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/worq1337/bot228-repo/internal/config"
	"github.com/worq1337/bot228-repo/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "bot",
		Short:         "Telegram mirror bot server",
		Long:          "Serves the main bot and every registered mirror bot over webhooks.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to an optional YAML config file")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newCredentialsCmd(opts),
	)
	return root
}

// setup loads the configuration and installs the default logger.
func setup(opts *rootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", opts.configPath, "error", err)
		return nil, nil, err
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)
	log.Debug("Logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)
	return cfg, log, nil
}

func fail(log *slog.Logger, msg string, err error, args ...any) error {
	log.Error(msg, append(args, "error", err)...)
	return fmt.Errorf("%s: %w", msg, err)
}
