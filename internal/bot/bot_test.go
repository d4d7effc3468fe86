package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbot "github.com/go-telegram/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worq1337/bot228-repo/internal/config"
)

type fakeWebhooks struct {
	mu        sync.Mutex
	installed []string
	removed   int
}

func (f *fakeWebhooks) Install(_ context.Context, _ *tgbot.Bot, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installed = append(f.installed, url)
	return url, nil
}

func (f *fakeWebhooks) Remove(ctx context.Context, _ *tgbot.Bot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	f.removed++
	return nil
}

type failingServer struct{ err error }

func (s failingServer) Run(context.Context) error { return s.err }

type fakeJobs struct {
	mu       sync.Mutex
	shutdown int
}

func (f *fakeJobs) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown++
}

func newTestMainBot(t *testing.T) *tgbot.Bot {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Main","username":"main_bot"}}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}))
	t.Cleanup(srv.Close)

	b, err := tgbot.New("1:main", tgbot.WithSkipGetMe(), tgbot.WithServerURL(srv.URL))
	require.NoError(t, err)
	return b
}

func TestAppRunStopsJobsWhenServerFails(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{BaseURL: "https://example.com", MainBotPath: "/webhook/main"}
	scheduler, err := NewScheduler(logger, &config.SchedulerConfig{}, nil)
	require.NoError(t, err)

	webhooks := &fakeWebhooks{}
	jobs := &fakeJobs{}
	app := NewApp(logger, cfg, newTestMainBot(t), webhooks, failingServer{err: errors.New("address in use")}, scheduler, jobs)

	err = app.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")

	assert.Equal(t, 1, jobs.shutdown, "running broadcasts are stopped when a component fails")
	assert.Equal(t, []string{cfg.MainWebhookURL()}, webhooks.installed)
	assert.Equal(t, 1, webhooks.removed)
}
