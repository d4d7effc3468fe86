// Package bot implements lifecycle management and component orchestration of
// the mirror bot server.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbot "github.com/go-telegram/bot"
	"golang.org/x/sync/errgroup"

	"github.com/worq1337/bot228-repo/internal/config"
)

// webhookRemoveTimeout bounds the webhook removal done after shutdown began.
const webhookRemoveTimeout = 10 * time.Second

// Webhooks installs and removes the main bot's webhook.
type Webhooks interface {
	Install(ctx context.Context, b *tgbot.Bot, url string) (string, error)
	Remove(ctx context.Context, b *tgbot.Bot) error
}

// Server is the HTTP server receiving webhook deliveries.
type Server interface {
	Run(ctx context.Context) error
}

// JobStopper cancels running broadcast jobs and waits for them to end.
type JobStopper interface {
	Shutdown()
}

// App represents the server application and manages its components' lifecycle.
type App struct {
	logger    *slog.Logger
	cfg       *config.Config
	mainBot   *tgbot.Bot
	webhooks  Webhooks
	server    Server
	scheduler *Scheduler
	jobs      JobStopper
}

// NewApp creates the application from its already wired components.
func NewApp(
	logger *slog.Logger,
	cfg *config.Config,
	mainBot *tgbot.Bot,
	webhooks Webhooks,
	server Server,
	scheduler *Scheduler,
	jobs JobStopper,
) *App {
	return &App{
		logger:    logger.With("component", "app"),
		cfg:       cfg,
		mainBot:   mainBot,
		webhooks:  webhooks,
		server:    server,
		scheduler: scheduler,
		jobs:      jobs,
	}
}

// Run points the main bot's webhook at this server, then serves until ctx is
// cancelled or a component fails. On the way out it stops broadcast jobs
// and removes the webhook.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting application...")

	me, err := a.mainBot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get main bot identity: %w", err)
	}
	a.logger.Info("Main bot identified", "bot_id", me.ID, "bot_username", me.Username)

	url := a.cfg.MainWebhookURL()
	if installed, err := a.webhooks.Install(ctx, a.mainBot, url); err != nil {
		a.logger.Error("Failed to set main webhook", "url", url, "error", err)
	} else {
		a.logger.Info("Main webhook set", "url", installed)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.Run(gCtx); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		if gCtx.Err() == nil {
			return errors.New("http server stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		a.logger.Info("Starting scheduler...")
		if err := a.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		if err := a.scheduler.RunNow(gCtx, "mirror_gauge"); err != nil {
			a.logger.Debug("Initial mirror gauge update skipped", "error", err)
		}

		<-gCtx.Done()
		a.logger.Info("Shutdown signal received, stopping scheduler...")
		if err := a.scheduler.Stop(); err != nil {
			a.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	a.logger.Info("Application running. Waiting for shutdown signal or error...")
	err = g.Wait()

	if a.jobs != nil {
		a.logger.Info("Stopping broadcast jobs...")
		a.jobs.Shutdown()
	}

	removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookRemoveTimeout)
	defer cancel()
	if rmErr := a.webhooks.Remove(removeCtx, a.mainBot); rmErr != nil {
		a.logger.Warn("Failed to remove main webhook", "error", rmErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Application stopped due to error", "error", err)
		return err
	}

	a.logger.Info("Application stopped gracefully.")
	return nil
}
