// Package telegram builds Bot API clients, registers handlers on them and
// manages webhooks and file downloads.
package telegram

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-telegram/bot"

	"github.com/worq1337/bot228-repo/internal/bot/handlers"
	"github.com/worq1337/bot228-repo/internal/broadcast"
	"github.com/worq1337/bot228-repo/internal/registry"
)

// NewTelegramBot creates a new Telegram bot instance using the go-telegram/bot library.
func NewTelegramBot(token string, logger *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	b, err := bot.New(token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Debug("Telegram bot instance created", "token_prefix", registry.MaskToken(token))
	return b, nil
}

// Factory builds clients for the main bot and every mirror bot. All clients
// share one HTTP client and never call getMe on construction.
type Factory struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// NewFactory creates a Factory whose requests time out after timeout.
func NewFactory(timeout time.Duration, logger *slog.Logger) *Factory {
	return &Factory{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     logger,
	}
}

// HTTPClient is the shared client, also used for file downloads.
func (f *Factory) HTTPClient() *http.Client {
	return f.httpClient
}

func (f *Factory) options(extra ...bot.Option) []bot.Option {
	opts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(f.timeout, f.httpClient),
		bot.WithNotAsyncHandlers(),
		bot.WithErrorsHandler(func(err error) {
			f.logger.Error("Telegram client error", "error", err)
		}),
	}
	return append(opts, extra...)
}

// NewClient returns a client without handlers, for direct API calls.
func (f *Factory) NewClient(token string) (*bot.Bot, error) {
	return NewTelegramBot(token, f.logger, f.options()...)
}

// NewSender implements broadcast.ClientFactory.
func (f *Factory) NewSender(token string) (broadcast.Sender, error) {
	return f.NewClient(token)
}

// NewRoutedBot returns a client with the given handlers and middleware that
// processes updates synchronously through ProcessUpdate.
func (f *Factory) NewRoutedBot(token string, routes map[string]handlers.RegisteredHandler, mw ...bot.Middleware) (*bot.Bot, error) {
	b, err := NewTelegramBot(token, f.logger, f.options(bot.WithMiddlewares(mw...))...)
	if err != nil {
		return nil, err
	}
	if err := RegisterHandlers(b, f.logger, routes); err != nil {
		return nil, err
	}
	return b, nil
}

// applyMiddleware wraps a handler function with a slice of middleware.
// Middleware are applied in reverse order so the first one in the slice is the outermost.
func applyMiddleware(handler bot.HandlerFunc, mw []bot.Middleware) bot.HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

// RegisterHandlers registers the handler table on a bot instance, wrapping
// each entry in its own middleware.
func RegisterHandlers(b *bot.Bot, logger *slog.Logger, registeredHandlers map[string]handlers.RegisteredHandler) error {
	if b == nil {
		return fmt.Errorf("bot instance cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "handler_registry")

	if len(registeredHandlers) == 0 {
		log.Warn("No handlers provided for registration.")
		return nil
	}

	for name, regHandler := range registeredHandlers {
		if regHandler.Handler == nil {
			log.Warn("Skipping registration for nil handler", "name", name)
			continue
		}

		finalHandler := applyMiddleware(regHandler.Handler, regHandler.Middleware)
		switch {
		case regHandler.BotMatchFunc != nil:
			b.RegisterHandlerMatchFunc(regHandler.BotMatchFunc(b), finalHandler)
		case regHandler.MatchFunc != nil:
			b.RegisterHandlerMatchFunc(regHandler.MatchFunc, finalHandler)
		default:
			b.RegisterHandler(regHandler.HandlerType, regHandler.Pattern, regHandler.MatchType, finalHandler)
		}
		log.Debug("Registered handler", "name", name, "pattern", regHandler.Pattern, "match_type", regHandler.MatchType, "middleware_count", len(regHandler.Middleware))
	}

	log.Debug("Registered Telegram handlers", "count", len(registeredHandlers))
	return nil
}
