package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
)

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("unique constraint violated")

// Store defines the interface for database operations.
// Lookups return nil, nil when the row does not exist.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// InsertCredential persists a new credential and fills in its ID.
	InsertCredential(ctx context.Context, cred *Credential) error
	// GetCredentialByToken looks a credential up by its token.
	GetCredentialByToken(ctx context.Context, token string) (*Credential, error)
	// ListCredentials returns all credentials in insertion order.
	ListCredentials(ctx context.Context) ([]Credential, error)
	// DeleteCredentialByToken removes a credential and reports whether it existed.
	DeleteCredentialByToken(ctx context.Context, token string) (bool, error)
	// CountCredentials returns the number of registered credentials.
	CountCredentials(ctx context.Context) (int, error)

	// SaveEndUser records an end user unless already known and reports whether it was created.
	SaveEndUser(ctx context.Context, user *EndUser) (bool, error)
	// ListEndUserIDs returns all end user ids in registration order.
	ListEndUserIDs(ctx context.Context) ([]int64, error)
	// CountEndUsers returns the number of end users.
	CountEndUsers(ctx context.Context) (int, error)

	// SaveCapturedMessage inserts or replaces the cache entry for (ChatID, MessageID).
	SaveCapturedMessage(ctx context.Context, msg *CapturedMessage) error
	// GetCapturedMessage returns the cache entry for a key.
	GetCapturedMessage(ctx context.Context, chatID, messageID int64) (*CapturedMessage, error)
	// UpdateCapturedPayload replaces the payload of an existing entry.
	UpdateCapturedPayload(ctx context.Context, chatID, messageID int64, payload string) error
	// UpdateCapturedCaption replaces the caption of an existing entry.
	UpdateCapturedCaption(ctx context.Context, chatID, messageID int64, caption string) error
	// DeleteCapturedMessage removes an entry and reports whether it existed.
	DeleteCapturedMessage(ctx context.Context, chatID, messageID int64) (bool, error)
	// DeleteCapturedBefore removes entries created before the unix time cutoff.
	DeleteCapturedBefore(ctx context.Context, cutoff int64) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// conn returns the event transaction carried by ctx, or the pool.
func (s *sqlxStore) conn(ctx context.Context) (queryer, error) {
	sc, _ := ctx.Value(scopeKey{}).(*scope)
	if sc == nil {
		return s.db, nil
	}
	return sc.begin(ctx)
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) InsertCredential(ctx context.Context, cred *Credential) error {
	if cred == nil || cred.Token == "" {
		return fmt.Errorf("credential must have a non-empty token")
	}
	q, err := s.conn(ctx)
	if err != nil {
		return err
	}

	if cred.CreatedAt == 0 {
		cred.CreatedAt = unixNow()
	}

	query := `
        INSERT INTO credentials (token, bot_id, bot_username, webhook_url, created_at)
        VALUES (:token, :bot_id, :bot_username, :webhook_url, :created_at);
    `
	result, err := q.NamedExecContext(ctx, query, cred)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to insert credential: %w", ErrConflict)
		}
		s.logger.ErrorContext(ctx, "Error saving credential", "bot_username", cred.BotUsername, "error", err)
		return fmt.Errorf("failed to insert credential: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving credential", "error", err)
	} else {
		cred.ID = id
	}

	s.logger.DebugContext(ctx, "Credential saved", "id", cred.ID, "bot_username", cred.BotUsername)
	return nil
}

func (s *sqlxStore) GetCredentialByToken(ctx context.Context, token string) (*Credential, error) {
	q, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var cred Credential
	query := `SELECT id, token, bot_id, bot_username, webhook_url, created_at FROM credentials WHERE token = ?;`
	if err := q.GetContext(ctx, &cred, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &cred, nil
}

func (s *sqlxStore) ListCredentials(ctx context.Context) ([]Credential, error) {
	q, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var creds []Credential
	query := `SELECT id, token, bot_id, bot_username, webhook_url, created_at FROM credentials ORDER BY id ASC;`
	if err := q.SelectContext(ctx, &creds, query); err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return creds, nil
}

func (s *sqlxStore) DeleteCredentialByToken(ctx context.Context, token string) (bool, error) {
	q, err := s.conn(ctx)
	if err != nil {
		return false, err
	}

	result, err := q.ExecContext(ctx, `DELETE FROM credentials WHERE token = ?;`, token)
	if err != nil {
		return false, fmt.Errorf("failed to delete credential: %w", err)
	}
	return affected(result), nil
}

func (s *sqlxStore) CountCredentials(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM credentials;`)
}

func (s *sqlxStore) SaveEndUser(ctx context.Context, user *EndUser) (bool, error) {
	if user == nil || user.UserID == 0 {
		return false, fmt.Errorf("end user must have a non-zero user_id")
	}
	q, err := s.conn(ctx)
	if err != nil {
		return false, err
	}

	if user.CreatedAt == 0 {
		user.CreatedAt = unixNow()
	}

	query := `
        INSERT INTO end_users (user_id, ref_id, bot_name, created_at)
        VALUES (:user_id, :ref_id, :bot_name, :created_at)
        ON CONFLICT (user_id) DO NOTHING;
    `
	result, err := q.NamedExecContext(ctx, query, user)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving end user", "user_id", user.UserID, "error", err)
		return false, fmt.Errorf("failed to save end user %d: %w", user.UserID, err)
	}
	return affected(result), nil
}

func (s *sqlxStore) ListEndUserIDs(ctx context.Context) ([]int64, error) {
	q, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var ids []int64
	if err := q.SelectContext(ctx, &ids, `SELECT user_id FROM end_users ORDER BY id ASC;`); err != nil {
		return nil, fmt.Errorf("failed to list end users: %w", err)
	}
	return ids, nil
}

func (s *sqlxStore) CountEndUsers(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM end_users;`)
}

func (s *sqlxStore) SaveCapturedMessage(ctx context.Context, msg *CapturedMessage) error {
	if msg == nil || msg.Kind == "" {
		return fmt.Errorf("captured message must have a kind")
	}
	q, err := s.conn(ctx)
	if err != nil {
		return err
	}

	if msg.CreatedAt == 0 {
		msg.CreatedAt = unixNow()
	}

	query := `
        INSERT INTO message_cache (chat_id, message_id, sender_id, sender_name, payload, kind, caption, owner_id, created_at)
        VALUES (:chat_id, :message_id, :sender_id, :sender_name, :payload, :kind, :caption, :owner_id, :created_at)
        ON CONFLICT (chat_id, message_id) DO UPDATE SET
            sender_id = excluded.sender_id,
            sender_name = excluded.sender_name,
            payload = excluded.payload,
            kind = excluded.kind,
            caption = excluded.caption,
            owner_id = excluded.owner_id;
    `
	if _, err := q.NamedExecContext(ctx, query, msg); err != nil {
		s.logger.ErrorContext(ctx, "Error caching message", "chat_id", msg.ChatID, "message_id", msg.MessageID, "error", err)
		return fmt.Errorf("failed to cache message (chat %d, message %d): %w", msg.ChatID, msg.MessageID, err)
	}
	return nil
}

func (s *sqlxStore) GetCapturedMessage(ctx context.Context, chatID, messageID int64) (*CapturedMessage, error) {
	q, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var msg CapturedMessage
	query := `
        SELECT chat_id, message_id, sender_id, sender_name, payload, kind, caption, owner_id, created_at
        FROM message_cache
        WHERE chat_id = ? AND message_id = ?;
    `
	if err := q.GetContext(ctx, &msg, query, chatID, messageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached message: %w", err)
	}
	return &msg, nil
}

func (s *sqlxStore) UpdateCapturedPayload(ctx context.Context, chatID, messageID int64, payload string) error {
	q, err := s.conn(ctx)
	if err != nil {
		return err
	}

	query := `UPDATE message_cache SET payload = ? WHERE chat_id = ? AND message_id = ?;`
	if _, err := q.ExecContext(ctx, query, payload, chatID, messageID); err != nil {
		return fmt.Errorf("failed to update cached message: %w", err)
	}
	return nil
}

func (s *sqlxStore) UpdateCapturedCaption(ctx context.Context, chatID, messageID int64, caption string) error {
	q, err := s.conn(ctx)
	if err != nil {
		return err
	}

	query := `UPDATE message_cache SET caption = ? WHERE chat_id = ? AND message_id = ?;`
	if _, err := q.ExecContext(ctx, query, caption, chatID, messageID); err != nil {
		return fmt.Errorf("failed to update cached caption: %w", err)
	}
	return nil
}

func (s *sqlxStore) DeleteCapturedMessage(ctx context.Context, chatID, messageID int64) (bool, error) {
	q, err := s.conn(ctx)
	if err != nil {
		return false, err
	}

	query := `DELETE FROM message_cache WHERE chat_id = ? AND message_id = ?;`
	result, err := q.ExecContext(ctx, query, chatID, messageID)
	if err != nil {
		return false, fmt.Errorf("failed to delete cached message: %w", err)
	}
	return affected(result), nil
}

func (s *sqlxStore) DeleteCapturedBefore(ctx context.Context, cutoff int64) (int64, error) {
	q, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	result, err := q.ExecContext(ctx, `DELETE FROM message_cache WHERE created_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune cached messages: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned messages: %w", err)
	}
	return n, nil
}

// RunSQLMaintenance updates planner statistics and reclaims free pages.
// VACUUM cannot run inside a transaction, so this always uses the pool.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Running SQL maintenance")
	if _, err := s.db.ExecContext(ctx, `PRAGMA optimize;`); err != nil {
		return fmt.Errorf("failed to optimize database: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM;`); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

func (s *sqlxStore) count(ctx context.Context, query string) (int, error) {
	q, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	if err := q.GetContext(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

func affected(result sql.Result) bool {
	n, err := result.RowsAffected()
	return err == nil && n > 0
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
