package broadcast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worq1337/bot228-repo/internal/database"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

type sendCall struct {
	chatID any
	kind   Kind
	upload bool
	fileID string
	markup models.ReplyMarkup
}

type fakeSender struct {
	mu     sync.Mutex
	calls  []sendCall
	failOn map[int64]error
	onSend func(n int)
}

func (f *fakeSender) record(chatID any, kind Kind, file models.InputFile, markup models.ReplyMarkup) (*models.Message, error) {
	f.mu.Lock()
	c := sendCall{chatID: chatID, kind: kind, markup: markup}
	switch in := file.(type) {
	case *models.InputFileUpload:
		c.upload = true
		_, _ = io.ReadAll(in.Data)
	case *models.InputFileString:
		c.fileID = in.Data
	}
	f.calls = append(f.calls, c)
	n := len(f.calls)
	hook := f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if id, ok := chatID.(int64); ok {
		if err := f.failOn[id]; err != nil {
			return nil, err
		}
	}
	return &models.Message{
		Photo: []models.PhotoSize{{FileID: "small"}, {FileID: "uploaded-photo"}},
		Video: &models.Video{FileID: "uploaded-video"},
	}, nil
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	return f.record(p.ChatID, KindText, nil, p.ReplyMarkup)
}

func (f *fakeSender) SendPhoto(_ context.Context, p *bot.SendPhotoParams) (*models.Message, error) {
	return f.record(p.ChatID, KindPhoto, p.Photo, p.ReplyMarkup)
}

func (f *fakeSender) SendVideo(_ context.Context, p *bot.SendVideoParams) (*models.Message, error) {
	return f.record(p.ChatID, KindVideo, p.Video, p.ReplyMarkup)
}

func (f *fakeSender) SendDocument(_ context.Context, p *bot.SendDocumentParams) (*models.Message, error) {
	return f.record(p.ChatID, KindDocument, p.Document, p.ReplyMarkup)
}

func (f *fakeSender) SendAudio(_ context.Context, p *bot.SendAudioParams) (*models.Message, error) {
	return f.record(p.ChatID, KindAudio, p.Audio, p.ReplyMarkup)
}

func (f *fakeSender) SendAnimation(_ context.Context, p *bot.SendAnimationParams) (*models.Message, error) {
	return f.record(p.ChatID, KindAnimation, p.Animation, p.ReplyMarkup)
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeReporter struct {
	mu       sync.Mutex
	empty    []EmptyReason
	started  int
	progress []Snapshot
	finished []Snapshot
	failed   []error
}

func (r *fakeReporter) Empty(_ context.Context, reason EmptyReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.empty = append(r.empty, reason)
}

func (r *fakeReporter) Started(context.Context, Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *fakeReporter) Progress(_ context.Context, s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, s)
}

func (r *fakeReporter) Finished(_ context.Context, s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, s)
}

func (r *fakeReporter) Failed(_ context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, err)
}

type staticCreds []database.Credential

func (s staticCreds) List(context.Context) ([]database.Credential, error) { return s, nil }

type staticUsers []int64

func (s staticUsers) ListEndUserIDs(context.Context) ([]int64, error) { return s, nil }

type fakeFactory struct {
	mu      sync.Mutex
	senders map[string]*fakeSender
	fail    map[string]bool
}

func (f *fakeFactory) NewSender(token string) (Sender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[token] {
		return nil, errors.New("bad client")
	}
	if f.senders == nil {
		f.senders = map[string]*fakeSender{}
	}
	s, ok := f.senders[token]
	if !ok {
		s = &fakeSender{}
		f.senders[token] = s
	}
	return s, nil
}

type fakeFetcher struct {
	err   error
	calls int
}

func (f *fakeFetcher) Download(_ context.Context, _ string, w io.Writer) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	_, err := w.Write([]byte("media-bytes"))
	return err
}

func newTestOrchestrator(t *testing.T, creds CredentialSource, users RecipientSource, clients ClientFactory) *Orchestrator {
	t.Helper()
	return New(context.Background(), NewJobs(), creds, users, clients,
		Config{ProgressStep: 10, StagingRoot: t.TempDir()}, nil, testLogger())
}

func begin(t *testing.T, o *Orchestrator, mode Mode, p Payload) *Job {
	t.Helper()
	job, err := o.Jobs().Begin(1, mode, p)
	require.NoError(t, err)
	return job
}

func TestUsersModeCountsUnreachableAsFailure(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, staticCreds(nil), staticUsers{1, 2, 3}, &fakeFactory{})
	origin := &fakeSender{failOn: map[int64]error{2: fmt.Errorf("%w, bot was blocked by the user", bot.ErrorForbidden)}}
	rep := &fakeReporter{}

	job := begin(t, o, ModeUsers, Payload{Kind: KindText, Text: "hi"})
	snap := o.Run(context.Background(), job, Env{Origin: origin, Reporter: rep})

	assert.Equal(t, 3, snap.Processed)
	assert.Equal(t, 2, snap.Success)
	assert.Equal(t, 1, snap.Failure)
	assert.False(t, snap.Cancelled)
	assert.Equal(t, 1, rep.started)
	require.Len(t, rep.finished, 1)
	assert.Equal(t, snap, rep.finished[0])
	assert.NotEmpty(t, rep.progress)

	_, active := o.Jobs().Active(1)
	assert.False(t, active, "job must leave the registry when it ends")
}

func TestZeroTargetsEndWithoutProgress(t *testing.T) {
	t.Parallel()

	t.Run("no credentials", func(t *testing.T) {
		t.Parallel()
		fetcher := &fakeFetcher{}
		o := newTestOrchestrator(t, staticCreds(nil), staticUsers{1, 2}, &fakeFactory{})
		rep := &fakeReporter{}

		job := begin(t, o, ModeMirror, Payload{Kind: KindPhoto, FileID: "f"})
		snap := o.Run(context.Background(), job, Env{Origin: &fakeSender{}, Media: fetcher, Reporter: rep})

		assert.Equal(t, []EmptyReason{NoCredentials}, rep.empty)
		assert.Zero(t, rep.started)
		assert.Empty(t, rep.finished)
		assert.Zero(t, snap.Processed)
		assert.Zero(t, fetcher.calls, "nothing is staged for an empty job")
	})

	t.Run("no recipients", func(t *testing.T) {
		t.Parallel()
		o := newTestOrchestrator(t, staticCreds(nil), staticUsers(nil), &fakeFactory{})
		rep := &fakeReporter{}

		job := begin(t, o, ModeUsers, Payload{Kind: KindText, Text: "x"})
		o.Run(context.Background(), job, Env{Origin: &fakeSender{}, Reporter: rep})

		assert.Equal(t, []EmptyReason{NoRecipients}, rep.empty)
		assert.Zero(t, rep.started)
	})
}

func TestCancelStopsFurtherAttempts(t *testing.T) {
	t.Parallel()

	const cancelAfter = 4
	o := newTestOrchestrator(t, staticCreds(nil), staticUsers{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, &fakeFactory{})
	rep := &fakeReporter{}

	job := begin(t, o, ModeUsers, Payload{Kind: KindText, Text: "x"})
	origin := &fakeSender{}
	origin.onSend = func(n int) {
		if n == cancelAfter {
			require.True(t, o.Jobs().Cancel(1))
		}
	}

	snap := o.Run(context.Background(), job, Env{Origin: origin, Reporter: rep})

	assert.True(t, snap.Cancelled)
	assert.Equal(t, cancelAfter, snap.Success+snap.Failure)
	assert.Equal(t, cancelAfter, origin.count())
	require.Len(t, rep.finished, 1)
	assert.True(t, rep.finished[0].Cancelled)
}

func TestMirrorModeStagesMediaOnce(t *testing.T) {
	t.Parallel()

	creds := staticCreds{{Token: "1:a", BotUsername: "a"}, {Token: "2:b", BotUsername: "b"}}
	factory := &fakeFactory{}
	fetcher := &fakeFetcher{}
	o := newTestOrchestrator(t, creds, staticUsers{10, 20, 30}, factory)
	rep := &fakeReporter{}

	job := begin(t, o, ModeMirror, Payload{Kind: KindPhoto, FileID: "origin-file", Text: "<b>cap</b>"})
	snap := o.Run(context.Background(), job, Env{Origin: &fakeSender{}, Media: fetcher, Reporter: rep})

	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, 6, snap.Processed)
	assert.Equal(t, 6, snap.Success)
	assert.Equal(t, 2, snap.CredentialsDone)
	require.Len(t, rep.progress, 2, "one progress report per credential")

	for _, tok := range []string{"1:a", "2:b"} {
		calls := factory.senders[tok].calls
		require.Len(t, calls, 3)
		assert.True(t, calls[0].upload, "first send uploads the staged file")
		assert.Equal(t, "uploaded-photo", calls[1].fileID, "later sends reuse the uploaded id")
		assert.Equal(t, "uploaded-photo", calls[2].fileID)
	}

	entries, err := os.ReadDir(o.StagingRoot())
	require.NoError(t, err)
	assert.Empty(t, entries, "staging dir is removed after the job")
}

func TestMirrorModeMediaFetchFailure(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, staticCreds{{Token: "1:a"}}, staticUsers{10}, &fakeFactory{})
	rep := &fakeReporter{}

	job := begin(t, o, ModeMirror, Payload{Kind: KindVideo, FileID: "f"})
	o.Run(context.Background(), job, Env{Origin: &fakeSender{}, Media: &fakeFetcher{err: errors.New("404")}, Reporter: rep})

	require.Len(t, rep.failed, 1)
	assert.ErrorIs(t, rep.failed[0], ErrMediaFetchFailed)
	assert.Zero(t, rep.started)

	entries, err := os.ReadDir(o.StagingRoot())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMirrorModeClientFailureCountsRecipients(t *testing.T) {
	t.Parallel()

	creds := staticCreds{{Token: "1:a"}, {Token: "2:b"}}
	factory := &fakeFactory{fail: map[string]bool{"1:a": true}}
	o := newTestOrchestrator(t, creds, staticUsers{10, 20}, factory)

	job := begin(t, o, ModeMirror, Payload{Kind: KindText, Text: "x"})
	snap := o.Run(context.Background(), job, Env{Origin: &fakeSender{}, Reporter: &fakeReporter{}})

	assert.Equal(t, 4, snap.Processed)
	assert.Equal(t, 2, snap.Failure)
	assert.Equal(t, 2, snap.Success)
}

func TestShutdownCancelsJob(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	o := New(ctx, NewJobs(), staticCreds(nil), staticUsers{1, 2, 3}, &fakeFactory{},
		Config{SendInterval: time.Hour, StagingRoot: t.TempDir()}, nil, testLogger())
	rep := &fakeReporter{}
	origin := &fakeSender{onSend: func(int) { cancel() }}

	job := begin(t, o, ModeUsers, Payload{Kind: KindText, Text: "x"})
	o.Launch(job, Env{Origin: origin, Reporter: rep})
	o.Wait()

	assert.Equal(t, 1, origin.count())
	require.Len(t, rep.finished, 1)
	assert.True(t, rep.finished[0].Cancelled)
}

func TestCleanupStaging(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)
	for _, name := range []string{"broadcast_1_stale", "broadcast_1_live", "unrelated"} {
		dir := filepath.Join(root, name)
		require.NoError(t, os.Mkdir(dir, 0o700))
		require.NoError(t, os.Chtimes(dir, old, old))
	}
	require.NoError(t, os.Mkdir(filepath.Join(root, "broadcast_2_fresh"), 0o700))

	n, err := CleanupStaging(root, time.Hour, []string{"live"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(filepath.Join(root, "broadcast_1_stale"))
	assert.True(t, os.IsNotExist(err))
	for _, keep := range []string{"broadcast_1_live", "unrelated", "broadcast_2_fresh"} {
		_, err := os.Stat(filepath.Join(root, keep))
		assert.NoError(t, err, keep)
	}
}

func TestUsersModeButtonsReachEveryRecipient(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, staticCreds(nil), staticUsers{1, 2, 3}, &fakeFactory{})
	origin := &fakeSender{failOn: map[int64]error{2: fmt.Errorf("%w, Forbidden: bot was blocked by the user", bot.ErrorForbidden)}}

	p := Payload{Kind: KindText, Text: "hello", Buttons: []Button{{Text: "A", URL: "https://a"}, {Text: "B", URL: "https://b"}}}
	job := begin(t, o, ModeUsers, p)
	snap := o.Run(context.Background(), job, Env{Origin: origin, Reporter: &fakeReporter{}})

	assert.Equal(t, Snapshot{Mode: ModeUsers, Total: 3, Processed: 3, Success: 2, Failure: 1}, snap)

	want := &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		{{Text: "A", URL: "https://a"}},
		{{Text: "B", URL: "https://b"}},
	}}
	require.Len(t, origin.calls, 3)
	for i, c := range origin.calls {
		assert.Equal(t, int64(i+1), c.chatID)
		assert.Equal(t, want, c.markup)
	}
}

func TestMirrorModeCancelStopsInsideCredential(t *testing.T) {
	t.Parallel()

	const cancelAfter = 4
	creds := staticCreds{{Token: "1:a"}, {Token: "2:b"}, {Token: "3:c"}}
	var o *Orchestrator
	var sends atomic.Int32
	hook := func(int) {
		if sends.Add(1) == cancelAfter {
			o.Jobs().Cancel(1)
		}
	}
	factory := &fakeFactory{senders: map[string]*fakeSender{
		"1:a": {onSend: hook},
		"2:b": {onSend: hook},
		"3:c": {onSend: hook},
	}}
	o = newTestOrchestrator(t, creds, staticUsers{10, 20, 30}, factory)
	rep := &fakeReporter{}

	job := begin(t, o, ModeMirror, Payload{Kind: KindPhoto, FileID: "origin-file"})
	snap := o.Run(context.Background(), job, Env{Origin: &fakeSender{}, Media: &fakeFetcher{}, Reporter: rep})

	assert.True(t, snap.Cancelled)
	assert.Equal(t, 9, snap.Total, "total is credentials times recipients")
	assert.Equal(t, cancelAfter, snap.Processed)
	assert.Equal(t, cancelAfter, snap.Success)
	assert.Equal(t, 1, snap.CredentialsDone, "a credential stopped part-way is not done")
	assert.Equal(t, 3, snap.CredentialsTotal)

	assert.Equal(t, 3, factory.senders["1:a"].count())
	assert.Equal(t, 1, factory.senders["2:b"].count())
	assert.Zero(t, factory.senders["3:c"].count())

	require.Len(t, rep.finished, 1)
	assert.True(t, rep.finished[0].Cancelled)

	entries, err := os.ReadDir(o.StagingRoot())
	require.NoError(t, err)
	assert.Empty(t, entries, "staging dir is removed after a cancelled job")
}

func TestShutdownStopsLaunchedJobs(t *testing.T) {
	t.Parallel()

	o := New(context.Background(), NewJobs(), staticCreds(nil), staticUsers{1, 2, 3}, &fakeFactory{},
		Config{SendInterval: time.Hour, StagingRoot: t.TempDir()}, nil, testLogger())
	rep := &fakeReporter{}
	sent := make(chan struct{}, 1)
	origin := &fakeSender{onSend: func(int) { sent <- struct{}{} }}

	job := begin(t, o, ModeUsers, Payload{Kind: KindText, Text: "x"})
	o.Launch(job, Env{Origin: origin, Reporter: rep})
	<-sent
	o.Shutdown()

	assert.Equal(t, 1, origin.count())
	require.Len(t, rep.finished, 1)
	assert.True(t, rep.finished[0].Cancelled)
}

func TestDefaultStagingRoot(t *testing.T) {
	t.Parallel()

	o := New(context.Background(), NewJobs(), staticCreds(nil), staticUsers(nil), &fakeFactory{}, Config{}, nil, testLogger())
	assert.Equal(t, filepath.Join(os.TempDir(), "bot228-staging"), o.StagingRoot())
	assert.NotEqual(t, os.TempDir(), o.StagingRoot())
}

func TestDeliverUnreachableRecipients(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		unreachable bool
	}{
		{"blocked", fmt.Errorf("%w, Forbidden: bot was blocked by the user", bot.ErrorForbidden), true},
		{"chat not found", fmt.Errorf("%w, Bad Request: chat not found", bot.ErrorBadRequest), true},
		{"other bad request", fmt.Errorf("%w, Bad Request: message text is empty", bot.ErrorBadRequest), false},
		{"transient", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := &fakeSender{failOn: map[int64]error{5: tt.err}}
			_, err := Deliver(context.Background(), s, 5, Payload{Kind: KindText, Text: "x"}, nil)
			require.Error(t, err)
			assert.Equal(t, tt.unreachable, errors.Is(err, ErrRecipientUnreachable))
		})
	}
}
