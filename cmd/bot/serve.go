package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbot "github.com/go-telegram/bot"
	"github.com/spf13/cobra"

	"github.com/worq1337/bot228-repo/internal/bot"
	"github.com/worq1337/bot228-repo/internal/bot/handlers"
	"github.com/worq1337/bot228-repo/internal/bot/tasks"
	"github.com/worq1337/bot228-repo/internal/broadcast"
	"github.com/worq1337/bot228-repo/internal/config"
	"github.com/worq1337/bot228-repo/internal/database"
	"github.com/worq1337/bot228-repo/internal/dispatch"
	"github.com/worq1337/bot228-repo/internal/fsm"
	"github.com/worq1337/bot228-repo/internal/logger"
	"github.com/worq1337/bot228-repo/internal/metrics"
	"github.com/worq1337/bot228-repo/internal/registry"
	"github.com/worq1337/bot228-repo/internal/spy"
	"github.com/worq1337/bot228-repo/internal/telegram"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

// forgetFunc adapts a function to handlers.ClientCache.
type forgetFunc func(token string)

func (f forgetFunc) Forget(token string) { f(token) }

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, log, err := setup(opts)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.DatabaseURL)
	if err != nil {
		return fail(log, "Failed to connect to database", err)
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	m := metrics.New()
	factory := telegram.NewFactory(cfg.Telegram.RequestTimeout, log)
	webhooks := telegram.NewWebhookManager(factory, cfg.WebhookSecret, cfg.Telegram.DropPendingUpdates, log)

	template, err := registry.NewPathTemplate(cfg.OtherBotsPath, config.TokenPlaceholder)
	if err != nil {
		return fail(log, "Invalid mirror webhook path", err)
	}
	reg := registry.New(store, template, cfg.BaseURL, log)

	sessions := fsm.NewMemoryStore()
	orchestrator := broadcast.New(ctx, broadcast.NewJobs(), reg, store, factory, broadcast.Config{
		SendInterval: cfg.Broadcast.SendInterval,
		ProgressStep: cfg.Broadcast.ProgressStep,
		StagingRoot:  cfg.Broadcast.StagingDir,
	}, m, log)

	var dispatcher *dispatch.Dispatcher
	deps := handlers.HandlerDeps{
		Logger:       log,
		Config:       cfg,
		Store:        store,
		Registry:     reg,
		Validator:    webhooks,
		Targets:      webhooks,
		Clients:      forgetFunc(func(token string) { dispatcher.Forget(token) }),
		Sessions:     sessions,
		Locks:        fsm.NewLocks(),
		Orchestrator: orchestrator,
		Spy:          spy.New(store, log),
		Owners:       spy.NewOwners(),
		FetcherFor: func(b *tgbot.Bot) broadcast.MediaFetcher {
			return telegram.NewFileFetcher(b, factory.HTTPClient())
		},
		Identities: &handlers.Identities{},
	}

	routes := handlers.RegisterAllCommands(deps)
	middlewares := []tgbot.Middleware{
		handlers.Serialize(deps),
		database.TxMiddleware(db, log),
		logger.Middleware(log),
		m.Middleware(),
	}
	newBot := func(token string) (*tgbot.Bot, error) {
		return factory.NewRoutedBot(token, routes, middlewares...)
	}

	mainBot, err := newBot(cfg.Token)
	if err != nil {
		return fail(log, "Failed to create main bot", err)
	}
	dispatcher = dispatch.New(mainBot, reg, func(token string) (dispatch.Updater, error) {
		return newBot(token)
	}, cfg.WebhookSecret, m, log)

	router := dispatch.NewRouter(dispatcher, serverRoutes(cfg, template, m))
	server := dispatch.NewServer(cfg.ListenAddr(), router,
		cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout, log)

	scheduler, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:      log,
		Store:       store,
		Config:      cfg,
		Sessions:    sessions,
		Jobs:        orchestrator.Jobs(),
		StagingRoot: orchestrator.StagingRoot(),
		Gauges:      m,
	}))
	if err != nil {
		return fail(log, "Failed to create scheduler", err)
	}

	app := bot.NewApp(log, cfg, mainBot, webhooks, server, scheduler, orchestrator)
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

func serverRoutes(cfg *config.Config, template registry.PathTemplate, m *metrics.Metrics) dispatch.Routes {
	routes := dispatch.Routes{
		MainPath:      cfg.MainBotPath,
		MirrorPattern: template.Pattern(config.TokenPlaceholder),
	}
	if cfg.Metrics.Enabled {
		routes.MetricsPath = cfg.Metrics.Path
		routes.Metrics = m.Handler()
	}
	return routes
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			db, err := database.NewDB(cfg.DatabaseURL)
			if err != nil {
				return fail(log, "Failed to migrate database", err)
			}
			database.CloseDB(db)
			log.Info("Database is up to date", "database_url", cfg.DatabaseURL)
			return nil
		},
	}
}

// openRegistry opens the database and builds the registry for CLI commands.
func openRegistry(cfg *config.Config, log *slog.Logger) (*registry.Registry, func(), error) {
	db, err := database.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	template, err := registry.NewPathTemplate(cfg.OtherBotsPath, config.TokenPlaceholder)
	if err != nil {
		database.CloseDB(db)
		return nil, nil, err
	}
	return registry.New(database.NewStore(db, log), template, cfg.BaseURL, log), func() { database.CloseDB(db) }, nil
}
