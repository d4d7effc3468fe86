package handlers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-telegram/bot"

	"github.com/worq1337/bot228-repo/internal/broadcast"
	"github.com/worq1337/bot228-repo/internal/config"
	"github.com/worq1337/bot228-repo/internal/database"
	"github.com/worq1337/bot228-repo/internal/fsm"
	"github.com/worq1337/bot228-repo/internal/registry"
	"github.com/worq1337/bot228-repo/internal/spy"
)

// DeliveryTargets clears the webhook of a removed mirror bot.
type DeliveryTargets interface {
	ClearDeliveryTarget(ctx context.Context, token string) error
}

// ClientCache drops cached mirror clients.
type ClientCache interface {
	Forget(token string)
}

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger       *slog.Logger
	Config       *config.Config
	Store        database.Store
	Registry     *registry.Registry
	Validator    registry.Validator
	Targets      DeliveryTargets
	Clients      ClientCache
	Sessions     fsm.Store
	Locks        *fsm.Locks
	Orchestrator *broadcast.Orchestrator
	Spy          *spy.Service
	Owners       *spy.Owners
	// FetcherFor returns a downloader for files known to b.
	FetcherFor func(b *bot.Bot) broadcast.MediaFetcher
	Identities *Identities
}

// Identities caches the username of each bot client.
type Identities struct {
	names sync.Map
}

// Username returns b's username, asking the platform on the first call.
func (i *Identities) Username(ctx context.Context, b *bot.Bot) (string, error) {
	if v, ok := i.names.Load(b); ok {
		return v.(string), nil
	}
	me, err := b.GetMe(ctx)
	if err != nil {
		return "", err
	}
	i.names.Store(b, me.Username)
	return me.Username, nil
}
