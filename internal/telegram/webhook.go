package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/worq1337/bot228-repo/internal/registry"
)

// AllowedUpdates are the update types every bot subscribes to.
var AllowedUpdates = []string{
	"message",
	"edited_message",
	"callback_query",
	"business_connection",
	"business_message",
	"edited_business_message",
	"deleted_business_messages",
}

// webhookClient is the part of *bot.Bot used for webhook management.
type webhookClient interface {
	GetMe(ctx context.Context) (*models.User, error)
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
	DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error)
	GetWebhookInfo(ctx context.Context) (*models.WebhookInfo, error)
}

// WebhookManager points bots at this server. It implements registry.Validator.
type WebhookManager struct {
	newClient   func(token string) (webhookClient, error)
	secret      string
	dropPending bool
	logger      *slog.Logger
}

// NewWebhookManager creates a WebhookManager using clients from f.
func NewWebhookManager(f *Factory, secret string, dropPending bool, logger *slog.Logger) *WebhookManager {
	return &WebhookManager{
		newClient: func(token string) (webhookClient, error) {
			return f.NewClient(token)
		},
		secret:      secret,
		dropPending: dropPending,
		logger:      logger.With("component", "webhook_manager"),
	}
}

// Identify implements registry.Validator.
func (m *WebhookManager) Identify(ctx context.Context, token string) (registry.Identity, error) {
	c, err := m.newClient(token)
	if err != nil {
		return registry.Identity{}, fmt.Errorf("%w: %v", registry.ErrInvalidCredential, err)
	}
	me, err := c.GetMe(ctx)
	if err != nil {
		if rejected(err) {
			return registry.Identity{}, fmt.Errorf("%w: %v", registry.ErrInvalidCredential, err)
		}
		return registry.Identity{}, fmt.Errorf("failed to get bot identity: %w", err)
	}
	return registry.Identity{ID: me.ID, Username: me.Username}, nil
}

// SetDeliveryTarget implements registry.Validator.
func (m *WebhookManager) SetDeliveryTarget(ctx context.Context, token, url string) (string, error) {
	c, err := m.newClient(token)
	if err != nil {
		return "", err
	}
	return m.install(ctx, c, url)
}

// ClearDeliveryTarget removes the webhook of token's bot.
func (m *WebhookManager) ClearDeliveryTarget(ctx context.Context, token string) error {
	c, err := m.newClient(token)
	if err != nil {
		return err
	}
	if _, err := c.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: m.dropPending}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

// Install points b at url and returns the URL the platform reports afterwards.
func (m *WebhookManager) Install(ctx context.Context, b *bot.Bot, url string) (string, error) {
	return m.install(ctx, b, url)
}

// Remove deletes b's webhook.
func (m *WebhookManager) Remove(ctx context.Context, b *bot.Bot) error {
	if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

func (m *WebhookManager) install(ctx context.Context, c webhookClient, url string) (string, error) {
	if _, err := c.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: m.dropPending}); err != nil {
		return "", fmt.Errorf("failed to delete previous webhook: %w", err)
	}
	if _, err := c.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:                url,
		AllowedUpdates:     AllowedUpdates,
		DropPendingUpdates: m.dropPending,
		SecretToken:        m.secret,
	}); err != nil {
		return "", fmt.Errorf("failed to set webhook: %w", err)
	}
	info, err := c.GetWebhookInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get webhook info: %w", err)
	}
	m.logger.DebugContext(ctx, "Webhook installed", "url", info.URL, "pending_updates", info.PendingUpdateCount)
	return info.URL, nil
}

func rejected(err error) bool {
	return errors.Is(err, bot.ErrorUnauthorized) || errors.Is(err, bot.ErrorNotFound)
}
