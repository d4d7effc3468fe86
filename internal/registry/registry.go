// Package registry manages mirror bot credentials: validation against the
// platform, webhook registration, persistence, and resolution of inbound
// webhook paths back to credentials.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/worq1337/bot228-repo/internal/database"
)

var (
	// ErrInvalidCredential means the platform rejected the token or it is malformed.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrDuplicateCredential means the token is already registered.
	ErrDuplicateCredential = errors.New("credential already registered")
	// ErrDeliveryTargetUnset means the credential was stored but its webhook is not confirmed.
	ErrDeliveryTargetUnset = errors.New("delivery target not set")
	// ErrNotFound means no credential matches the index, token or path.
	ErrNotFound = errors.New("credential not found")
)

// Identity is what the platform reports about a bot token.
type Identity struct {
	ID       int64
	Username string
}

// Validator talks to the platform on behalf of a candidate credential.
type Validator interface {
	// Identify resolves the bot behind token. It returns an error wrapping
	// ErrInvalidCredential when the platform rejects the token.
	Identify(ctx context.Context, token string) (Identity, error)
	// SetDeliveryTarget points the bot's webhook at url and returns the URL the
	// platform reports afterwards (empty when nothing is registered).
	SetDeliveryTarget(ctx context.Context, token, url string) (string, error)
}

// Resolver maps an inbound webhook path to its credential.
type Resolver interface {
	Resolve(ctx context.Context, path string) (database.Credential, error)
}

// CredentialStore is the persistence the registry needs.
type CredentialStore interface {
	InsertCredential(ctx context.Context, cred *database.Credential) error
	GetCredentialByToken(ctx context.Context, token string) (*database.Credential, error)
	ListCredentials(ctx context.Context) ([]database.Credential, error)
	DeleteCredentialByToken(ctx context.Context, token string) (bool, error)
}

// Registry is the set of known mirror bot credentials.
type Registry struct {
	store    CredentialStore
	template PathTemplate
	baseURL  string
	logger   *slog.Logger
}

// New creates a Registry whose webhook URLs are baseURL joined with template paths.
func New(store CredentialStore, template PathTemplate, baseURL string, logger *slog.Logger) *Registry {
	return &Registry{
		store:    store,
		template: template,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger.With("component", "registry"),
	}
}

// Template returns the path template used for mirror webhooks.
func (r *Registry) Template() PathTemplate {
	return r.template
}

// WebhookURL is the full URL the platform delivers token's updates to.
func (r *Registry) WebhookURL(token string) string {
	return r.baseURL + r.template.Path(token)
}

// Register validates token with v, registers its webhook and persists it.
//
// The credential is persisted whenever the platform accepted the token, even if
// the webhook could not be confirmed; that case returns the credential together
// with ErrDeliveryTargetUnset.
func (r *Registry) Register(ctx context.Context, token string, v Validator) (database.Credential, error) {
	token = strings.TrimSpace(token)
	if !ValidTokenFormat(token) {
		return database.Credential{}, fmt.Errorf("%w: malformed token", ErrInvalidCredential)
	}

	existing, err := r.store.GetCredentialByToken(ctx, token)
	if err != nil {
		return database.Credential{}, fmt.Errorf("failed to check existing credential: %w", err)
	}
	if existing != nil {
		return *existing, ErrDuplicateCredential
	}

	identity, err := v.Identify(ctx, token)
	if err != nil {
		return database.Credential{}, err
	}

	cred := database.Credential{
		Token:       token,
		BotID:       identity.ID,
		BotUsername: identity.Username,
		WebhookURL:  r.WebhookURL(token),
	}

	reported, deliveryErr := v.SetDeliveryTarget(ctx, token, cred.WebhookURL)
	if deliveryErr == nil && reported == "" {
		deliveryErr = ErrDeliveryTargetUnset
	}

	if err := r.store.InsertCredential(ctx, &cred); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return cred, ErrDuplicateCredential
		}
		return database.Credential{}, fmt.Errorf("failed to persist credential: %w", err)
	}

	if deliveryErr != nil {
		r.logger.WarnContext(ctx, "Credential stored without confirmed webhook",
			"bot_username", cred.BotUsername, "error", deliveryErr)
		if !errors.Is(deliveryErr, ErrDeliveryTargetUnset) {
			deliveryErr = fmt.Errorf("%w: %v", ErrDeliveryTargetUnset, deliveryErr)
		}
		return cred, deliveryErr
	}

	r.logger.InfoContext(ctx, "Credential registered", "bot_id", cred.BotID, "bot_username", cred.BotUsername)
	return cred, nil
}

// List returns all credentials in registration order.
func (r *Registry) List(ctx context.Context) ([]database.Credential, error) {
	creds, err := r.store.ListCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return creds, nil
}

// Get returns the credential at the 1-based index i of List.
func (r *Registry) Get(ctx context.Context, i int) (database.Credential, error) {
	creds, err := r.List(ctx)
	if err != nil {
		return database.Credential{}, err
	}
	if i < 1 || i > len(creds) {
		return database.Credential{}, fmt.Errorf("%w: index %d out of range 1..%d", ErrNotFound, i, len(creds))
	}
	return creds[i-1], nil
}

// DeleteByIndex removes the credential at 1-based index i and returns it.
func (r *Registry) DeleteByIndex(ctx context.Context, i int) (database.Credential, error) {
	cred, err := r.Get(ctx, i)
	if err != nil {
		return database.Credential{}, err
	}
	if err := r.DeleteByToken(ctx, cred.Token); err != nil {
		return database.Credential{}, err
	}
	return cred, nil
}

// DeleteByToken removes the credential with token.
func (r *Registry) DeleteByToken(ctx context.Context, token string) error {
	ok, err := r.store.DeleteCredentialByToken(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	r.logger.InfoContext(ctx, "Credential deleted", "token_prefix", MaskToken(token))
	return nil
}

// Resolve implements Resolver.
func (r *Registry) Resolve(ctx context.Context, path string) (database.Credential, error) {
	token, ok := r.template.Token(path)
	if !ok {
		return database.Credential{}, ErrNotFound
	}
	cred, err := r.store.GetCredentialByToken(ctx, token)
	if err != nil {
		return database.Credential{}, fmt.Errorf("failed to resolve credential: %w", err)
	}
	if cred == nil {
		return database.Credential{}, ErrNotFound
	}
	return *cred, nil
}

// TokenFromURL extracts the mirror token from a full webhook URL or bare path.
func (r *Registry) TokenFromURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "://"); i >= 0 {
		raw = raw[i+3:]
		if j := strings.Index(raw, "/"); j >= 0 {
			raw = raw[j:]
		} else {
			return "", false
		}
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return r.template.Token(raw)
}

// MaskToken keeps the bot id and hides the secret part of a token.
func MaskToken(token string) string {
	id, _, ok := strings.Cut(token, ":")
	if !ok {
		return "***"
	}
	return id + ":***"
}
