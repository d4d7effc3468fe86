package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worq1337/bot228-repo/internal/database"
	"github.com/worq1337/bot228-repo/internal/registry"
)

type recordingUpdater struct {
	mu      sync.Mutex
	updates []int64
	panicOn int64
}

func (r *recordingUpdater) ProcessUpdate(_ context.Context, upd *models.Update) {
	if upd.ID == r.panicOn {
		panic("handler exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, upd.ID)
}

func (r *recordingUpdater) seen() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.updates...)
}

type pathResolver struct {
	template registry.PathTemplate
	known    map[string]bool
	lookups  int
}

func (p *pathResolver) Resolve(_ context.Context, path string) (database.Credential, error) {
	p.lookups++
	token, ok := p.template.Token(path)
	if !ok || !p.known[token] {
		return database.Credential{}, registry.ErrNotFound
	}
	return database.Credential{Token: token, BotUsername: "mirror"}, nil
}

type harness struct {
	main     *recordingUpdater
	mirrors  map[string]*recordingUpdater
	builds   int
	resolver *pathResolver
	d        *Dispatcher
	handler  http.Handler
}

func newHarness(t *testing.T, secret string) *harness {
	t.Helper()

	template, err := registry.NewPathTemplate("/webhook/{bot_token}", "{bot_token}")
	require.NoError(t, err)

	h := &harness{
		main:    &recordingUpdater{panicOn: -1},
		mirrors: make(map[string]*recordingUpdater),
		resolver: &pathResolver{
			template: template,
			known:    map[string]bool{"111:AAA": true, "222:BBB": true},
		},
	}
	build := func(token string) (Updater, error) {
		h.builds++
		if token == "222:BBB" {
			return nil, errors.New("construction failed")
		}
		u := &recordingUpdater{panicOn: 13}
		h.mirrors[token] = u
		return u, nil
	}
	h.d = New(h.main, h.resolver, build, secret, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.handler = NewRouter(h.d, Routes{MainPath: "/main", MirrorPattern: template.Pattern("{token}")})
	return h
}

func post(h http.Handler, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMainRouteNeverConsultsRegistry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	rec := post(h.handler, "/main", `{"update_id":1}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1}, h.main.seen())
	assert.Zero(t, h.resolver.lookups)
}

func TestMirrorRouteBuildsClientOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	for _, id := range []string{"1", "2"} {
		rec := post(h.handler, "/webhook/111:AAA", `{"update_id":`+id+`}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 1, h.builds)
	assert.Equal(t, []int64{1, 2}, h.mirrors["111:AAA"].seen())
	assert.Empty(t, h.main.seen())
	assert.Equal(t, 1, h.d.Cached())

	h.d.Forget("111:AAA")
	assert.Zero(t, h.d.Cached())
}

func TestMirrorRouteUnknownToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	rec := post(h.handler, "/webhook/999:ZZZ", `{"update_id":1}`, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, h.builds)
}

func TestMirrorRouteBuildFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	rec := post(h.handler, "/webhook/222:BBB", `{"update_id":1}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestInvalidBody(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	rec := post(h.handler, "/main", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, h.main.seen())
}

func TestHandlerPanicDoesNotBreakNextRequest(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	rec := post(h.handler, "/webhook/111:AAA", `{"update_id":13}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = post(h.handler, "/webhook/111:AAA", `{"update_id":14}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{14}, h.mirrors["111:AAA"].seen())
}

func TestSecretToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "s3cret")

	rec := post(h.handler, "/main", `{"update_id":1}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h.handler, "/webhook/111:AAA", `{"update_id":1}`, map[string]string{SecretHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h.handler, "/main", `{"update_id":2}`, map[string]string{SecretHeader: "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{2}, h.main.seen())
}

func TestInfoRoutes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bot server is running!", rec.Body.String())

	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test_webhook", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"message":"Webhook endpoint is reachable"}`, rec.Body.String())
}
