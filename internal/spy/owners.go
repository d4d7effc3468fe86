package spy

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// ConnectionLookup resolves business connections. *bot.Bot implements it.
type ConnectionLookup interface {
	GetBusinessConnection(ctx context.Context, params *bot.GetBusinessConnectionParams) (*models.BusinessConnection, error)
}

// Owners caches the owning user of each business connection. A connection
// id always belongs to the same user, so entries never go stale.
type Owners struct {
	mu     sync.RWMutex
	owners map[string]int64
}

// NewOwners returns an empty cache.
func NewOwners() *Owners {
	return &Owners{owners: make(map[string]int64)}
}

// Owner returns the user id behind connectionID, asking the platform on a miss.
func (o *Owners) Owner(ctx context.Context, lookup ConnectionLookup, connectionID string) (int64, error) {
	o.mu.RLock()
	id, ok := o.owners[connectionID]
	o.mu.RUnlock()
	if ok {
		return id, nil
	}

	conn, err := lookup.GetBusinessConnection(ctx, &bot.GetBusinessConnectionParams{BusinessConnectionID: connectionID})
	if err != nil {
		return 0, fmt.Errorf("failed to get business connection: %w", err)
	}

	o.mu.Lock()
	o.owners[connectionID] = conn.User.ID
	o.mu.Unlock()
	return conn.User.ID, nil
}
