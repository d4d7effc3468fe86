package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jmoiron/sqlx"
)

// queryer is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx.
type queryer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
}

type scopeKey struct{}

// scope is a lazily started transaction shared by everything that runs for one event.
type scope struct {
	db *sqlx.DB
	mu sync.Mutex
	tx *sqlx.Tx
}

func (s *scope) begin(ctx context.Context) (*sqlx.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return tx, nil
}

func (s *scope) finish(commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil

	if !commit {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return fmt.Errorf("failed to roll back transaction: %w", err)
		}
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// WithScope returns a context whose store calls share one transaction, and a
// function that ends it. The transaction starts on first use; done(true)
// commits it and done(false) rolls it back.
func WithScope(ctx context.Context, db *sqlx.DB) (context.Context, func(commit bool) error) {
	s := &scope{db: db}
	return context.WithValue(ctx, scopeKey{}, s), s.finish
}

// WithoutScope detaches ctx from any event transaction. Work that outlives the
// event, like a broadcast job, must use it.
func WithoutScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, (*scope)(nil))
}

// TxMiddleware runs every update handler inside one transaction scope. The
// scope commits when the handler returns and rolls back if it panics.
func TxMiddleware(db *sqlx.DB, logger *slog.Logger) bot.Middleware {
	log := logger.With("component", "tx_middleware")
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			scoped, done := WithScope(ctx, db)

			committed := false
			defer func() {
				if committed {
					return
				}
				if err := done(false); err != nil {
					log.ErrorContext(ctx, "Failed to roll back event transaction", "update_id", update.ID, "error", err)
				}
			}()

			next(scoped, b, update)

			if err := done(true); err != nil {
				log.ErrorContext(ctx, "Failed to commit event transaction", "update_id", update.ID, "error", err)
			}
			committed = true
		}
	}
}
