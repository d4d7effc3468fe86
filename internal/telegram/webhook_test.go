package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worq1337/bot228-repo/internal/registry"
)

type fakeWebhookClient struct {
	meErr     error
	setErr    error
	url       string
	setParams *bot.SetWebhookParams
	deleted   int
}

func (f *fakeWebhookClient) GetMe(context.Context) (*models.User, error) {
	if f.meErr != nil {
		return nil, f.meErr
	}
	return &models.User{ID: 77, Username: "mirror_bot", IsBot: true}, nil
}

func (f *fakeWebhookClient) SetWebhook(_ context.Context, p *bot.SetWebhookParams) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	f.setParams = p
	f.url = p.URL
	return true, nil
}

func (f *fakeWebhookClient) DeleteWebhook(context.Context, *bot.DeleteWebhookParams) (bool, error) {
	f.deleted++
	f.url = ""
	return true, nil
}

func (f *fakeWebhookClient) GetWebhookInfo(context.Context) (*models.WebhookInfo, error) {
	return &models.WebhookInfo{URL: f.url}, nil
}

func newTestManager(c *fakeWebhookClient) *WebhookManager {
	return &WebhookManager{
		newClient:   func(string) (webhookClient, error) { return c, nil },
		secret:      "s3cret",
		dropPending: true,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestIdentify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		meErr   error
		want    registry.Identity
		invalid bool
		failed  bool
	}{
		{name: "accepted", want: registry.Identity{ID: 77, Username: "mirror_bot"}},
		{name: "unauthorized", meErr: fmt.Errorf("%w, Unauthorized", bot.ErrorUnauthorized), invalid: true, failed: true},
		{name: "not found", meErr: fmt.Errorf("%w, Not Found", bot.ErrorNotFound), invalid: true, failed: true},
		{name: "transient", meErr: errors.New("connection reset"), failed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newTestManager(&fakeWebhookClient{meErr: tt.meErr})
			got, err := m.Identify(context.Background(), "1:abc")
			if !tt.failed {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.invalid, errors.Is(err, registry.ErrInvalidCredential))
		})
	}
}

func TestSetDeliveryTarget(t *testing.T) {
	t.Parallel()

	c := &fakeWebhookClient{url: "https://old.example/hook"}
	m := newTestManager(c)

	got, err := m.SetDeliveryTarget(context.Background(), "1:abc", "https://example.com/webhook/1:abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/webhook/1:abc", got)
	assert.Equal(t, 1, c.deleted)
	require.NotNil(t, c.setParams)
	assert.Equal(t, "s3cret", c.setParams.SecretToken)
	assert.Contains(t, c.setParams.AllowedUpdates, "deleted_business_messages")

	require.NoError(t, m.ClearDeliveryTarget(context.Background(), "1:abc"))
	assert.Empty(t, c.url)
}

func TestSetDeliveryTargetFailure(t *testing.T) {
	t.Parallel()

	m := newTestManager(&fakeWebhookClient{setErr: errors.New("bad webhook")})
	_, err := m.SetDeliveryTarget(context.Background(), "1:abc", "https://example.com/x")
	assert.Error(t, err)
}
