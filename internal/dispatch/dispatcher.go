// Package dispatch serves the webhook endpoints and feeds every inbound
// update to the bot client bound to the token in the request path.
package dispatch

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-telegram/bot/models"

	"github.com/worq1337/bot228-repo/internal/registry"
)

// SecretHeader carries the webhook secret set with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Route labels used for metrics.
const (
	RouteMain   = "main"
	RouteMirror = "mirror"
)

// Updater processes one update synchronously. *bot.Bot implements it.
type Updater interface {
	ProcessUpdate(ctx context.Context, upd *models.Update)
}

// ClientBuilder constructs the client for a mirror bot token.
type ClientBuilder func(token string) (Updater, error)

// Recorder receives request metrics. *metrics.Metrics implements it.
type Recorder interface {
	WebhookRequest(route string, status int)
	CachedClients(n int)
}

type nopRecorder struct{}

func (nopRecorder) WebhookRequest(string, int) {}
func (nopRecorder) CachedClients(int)          {}

// Dispatcher routes updates to the main bot or to a cached mirror client.
type Dispatcher struct {
	main     Updater
	resolver registry.Resolver
	build    ClientBuilder
	secret   string
	recorder Recorder
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[string]Updater
}

// New creates a Dispatcher. An empty secret disables header verification and
// a nil recorder disables metrics.
func New(main Updater, resolver registry.Resolver, build ClientBuilder, secret string, recorder Recorder, logger *slog.Logger) *Dispatcher {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Dispatcher{
		main:     main,
		resolver: resolver,
		build:    build,
		secret:   secret,
		recorder: recorder,
		logger:   logger.With("component", "dispatcher"),
		clients:  make(map[string]Updater),
	}
}

// HandleMain serves the fixed main bot path. It never consults the registry.
func (d *Dispatcher) HandleMain(w http.ResponseWriter, r *http.Request) {
	if !d.authorized(r) {
		d.respond(w, RouteMain, http.StatusUnauthorized, "invalid secret token")
		return
	}
	upd, ok := d.decode(w, r, RouteMain)
	if !ok {
		return
	}
	d.process(r.Context(), d.main, upd, RouteMain)
	d.respond(w, RouteMain, http.StatusOK, "")
}

// HandleMirror serves the templated mirror path.
func (d *Dispatcher) HandleMirror(w http.ResponseWriter, r *http.Request) {
	if !d.authorized(r) {
		d.respond(w, RouteMirror, http.StatusUnauthorized, "invalid secret token")
		return
	}

	cred, err := d.resolver.Resolve(r.Context(), r.URL.Path)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			d.logger.WarnContext(r.Context(), "Webhook for unknown bot", "path_len", len(r.URL.Path))
			d.respond(w, RouteMirror, http.StatusNotFound, "unknown bot")
			return
		}
		d.logger.ErrorContext(r.Context(), "Failed to resolve webhook path", "error", err)
		d.respond(w, RouteMirror, http.StatusInternalServerError, "internal error")
		return
	}

	client, err := d.client(cred.Token)
	if err != nil {
		d.logger.ErrorContext(r.Context(), "Failed to build mirror client", "bot_username", cred.BotUsername, "error", err)
		d.respond(w, RouteMirror, http.StatusInternalServerError, "internal error")
		return
	}

	upd, ok := d.decode(w, r, RouteMirror)
	if !ok {
		return
	}
	d.process(r.Context(), client, upd, RouteMirror)
	d.respond(w, RouteMirror, http.StatusOK, "")
}

// Forget evicts the cached client for token.
func (d *Dispatcher) Forget(token string) {
	d.mu.Lock()
	delete(d.clients, token)
	n := len(d.clients)
	d.mu.Unlock()
	d.recorder.CachedClients(n)
}

// Cached reports how many mirror clients are held.
func (d *Dispatcher) Cached() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.clients)
}

func (d *Dispatcher) client(token string) (Updater, error) {
	d.mu.RLock()
	c, ok := d.clients[token]
	d.mu.RUnlock()
	if ok {
		return c, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.clients[token]; ok {
		return c, nil
	}
	c, err := d.build(token)
	if err != nil {
		return nil, err
	}
	d.clients[token] = c
	d.recorder.CachedClients(len(d.clients))
	return c, nil
}

func (d *Dispatcher) authorized(r *http.Request) bool {
	if d.secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(d.secret)) == 1
}

func (d *Dispatcher) decode(w http.ResponseWriter, r *http.Request, route string) (*models.Update, bool) {
	var upd models.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		d.logger.WarnContext(r.Context(), "Failed to decode update", "route", route, "error", err)
		d.respond(w, route, http.StatusBadRequest, "invalid update")
		return nil, false
	}
	return &upd, true
}

// process runs the handlers for one update. A panic is logged and swallowed
// so the platform does not redeliver the update.
func (d *Dispatcher) process(ctx context.Context, u Updater, upd *models.Update, route string) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.ErrorContext(ctx, "Update handler panicked", "route", route, "update_id", upd.ID, "panic", rec)
		}
	}()
	u.ProcessUpdate(ctx, upd)
}

func (d *Dispatcher) respond(w http.ResponseWriter, route string, status int, errMsg string) {
	d.recorder.WebhookRequest(route, status)
	body := map[string]any{"ok": status == http.StatusOK}
	if errMsg != "" {
		body["error"] = errMsg
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
