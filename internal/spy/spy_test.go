package spy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worq1337/bot228-repo/internal/database"
)

type cacheKey struct{ chat, msg int64 }

type memCache struct {
	mu      sync.Mutex
	entries map[cacheKey]database.CapturedMessage
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[cacheKey]database.CapturedMessage)}
}

func (m *memCache) SaveCapturedMessage(_ context.Context, msg *database.CapturedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[cacheKey{msg.ChatID, msg.MessageID}] = *msg
	return nil
}

func (m *memCache) GetCapturedMessage(_ context.Context, chatID, messageID int64) (*database.CapturedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[cacheKey{chatID, messageID}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memCache) UpdateCapturedPayload(_ context.Context, chatID, messageID int64, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := cacheKey{chatID, messageID}
	e := m.entries[k]
	e.Payload = payload
	m.entries[k] = e
	return nil
}

func (m *memCache) UpdateCapturedCaption(_ context.Context, chatID, messageID int64, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := cacheKey{chatID, messageID}
	e := m.entries[k]
	e.Caption = caption
	m.entries[k] = e
	return nil
}

func (m *memCache) DeleteCapturedMessage(_ context.Context, chatID, messageID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := cacheKey{chatID, messageID}
	_, ok := m.entries[k]
	delete(m.entries, k)
	return ok, nil
}

type sent struct {
	method string
	chatID any
	text   string
	file   string
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) add(method string, chatID any, text string, file models.InputFile) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var id string
	if f, ok := file.(*models.InputFileString); ok {
		id = f.Data
	}
	r.sent = append(r.sent, sent{method, chatID, text, id})
	return &models.Message{}, nil
}

func (r *recorder) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	return r.add("message", p.ChatID, p.Text, nil)
}

func (r *recorder) SendPhoto(_ context.Context, p *bot.SendPhotoParams) (*models.Message, error) {
	return r.add("photo", p.ChatID, p.Caption, p.Photo)
}

func (r *recorder) SendVideo(_ context.Context, p *bot.SendVideoParams) (*models.Message, error) {
	return r.add("video", p.ChatID, p.Caption, p.Video)
}

func (r *recorder) SendVideoNote(_ context.Context, p *bot.SendVideoNoteParams) (*models.Message, error) {
	return r.add("video_note", p.ChatID, "", p.VideoNote)
}

func (r *recorder) SendVoice(_ context.Context, p *bot.SendVoiceParams) (*models.Message, error) {
	return r.add("voice", p.ChatID, p.Caption, p.Voice)
}

func (r *recorder) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sent...)
}

func newService(store CacheStore) *Service {
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const owner = int64(100)

func seedText(t *testing.T, s *Service, chatID, msgID, sender int64, text string) {
	t.Helper()
	require.NoError(t, s.Store(context.Background(), database.CapturedMessage{
		ChatID: chatID, MessageID: msgID, SenderID: sender, SenderName: "Ann",
		Payload: text, Kind: database.KindText, OwnerID: owner,
	}))
}

func TestCapture(t *testing.T) {
	t.Parallel()

	msg := &models.Message{
		ID:   7,
		Chat: models.Chat{ID: 42},
		From: &models.User{ID: 42, FirstName: "Ann", LastName: "Lee"},
		Photo: []models.PhotoSize{
			{FileID: "small"},
			{FileID: "large"},
		},
		Caption: "look",
	}
	c, ok := Capture(msg, owner)
	require.True(t, ok)
	assert.Equal(t, database.KindPhoto, c.Kind)
	assert.Equal(t, "large", c.Payload)
	assert.Equal(t, "Ann Lee", c.SenderName)
	assert.Equal(t, int64(7), c.MessageID)
	assert.Equal(t, owner, c.OwnerID)

	_, ok = Capture(&models.Message{ID: 8, Chat: models.Chat{ID: 42}, Sticker: &models.Sticker{FileID: "s"}}, owner)
	assert.False(t, ok)
}

func TestEditByOtherUserNotifiesOwnerOnce(t *testing.T) {
	t.Parallel()

	store := newMemCache()
	s := newService(store)
	seedText(t, s, 42, 1, 42, "hello <b>")
	rec := &recorder{}

	notified, err := s.Edit(context.Background(), rec, Edit{ChatID: 42, MessageID: 1, EditorID: 42, EditorName: "Ann", Text: "bye", OwnerID: owner})
	require.NoError(t, err)
	assert.True(t, notified)

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, owner, got[0].chatID)
	assert.Contains(t, got[0].text, "hello &lt;b&gt;")
	assert.Contains(t, got[0].text, "bye")

	cached, err := store.GetCapturedMessage(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.Equal(t, "bye", cached.Payload)
}

func TestEditByOwnerIsSilent(t *testing.T) {
	t.Parallel()

	store := newMemCache()
	s := newService(store)
	seedText(t, s, 42, 1, owner, "draft")
	rec := &recorder{}

	notified, err := s.Edit(context.Background(), rec, Edit{ChatID: 42, MessageID: 1, EditorID: owner, Text: "final", OwnerID: owner})
	require.NoError(t, err)
	assert.False(t, notified)
	assert.Empty(t, rec.all())

	cached, err := store.GetCapturedMessage(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.Equal(t, "final", cached.Payload)
}

func TestEditOfUncachedMessage(t *testing.T) {
	t.Parallel()

	store := newMemCache()
	s := newService(store)
	rec := &recorder{}

	notified, err := s.Edit(context.Background(), rec, Edit{ChatID: 42, MessageID: 9, EditorID: 42, EditorName: "Ann", Text: "new", OwnerID: owner})
	require.NoError(t, err)
	assert.True(t, notified)
	require.Len(t, rec.all(), 1)
	assert.Contains(t, rec.all()[0].text, "старый текст отсутствует")

	cached, err := store.GetCapturedMessage(context.Background(), 42, 9)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "new", cached.Payload)
}

func TestDeleteConsumesEntry(t *testing.T) {
	t.Parallel()

	store := newMemCache()
	s := newService(store)
	seedText(t, s, 42, 1, 42, "secret")
	rec := &recorder{}

	n, err := s.Delete(context.Background(), rec, 42, []int{1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, rec.all(), 1)
	assert.Contains(t, rec.all()[0].text, "secret")

	n, err = s.Delete(context.Background(), rec, 42, []int{1})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, rec.all(), 1)
}

func TestDeleteUnknownIsSilent(t *testing.T) {
	t.Parallel()

	s := newService(newMemCache())
	rec := &recorder{}

	n, err := s.Delete(context.Background(), rec, 42, []int{5, 6})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, rec.all())
}

func TestDeleteVideoNoteSendsNoteAndText(t *testing.T) {
	t.Parallel()

	store := newMemCache()
	s := newService(store)
	require.NoError(t, s.Store(context.Background(), database.CapturedMessage{
		ChatID: 42, MessageID: 3, SenderName: "Ann", Payload: "note-id", Kind: database.KindVideoNote, OwnerID: owner,
	}))
	rec := &recorder{}

	n, err := s.Delete(context.Background(), rec, 42, []int{3})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := rec.all()
	require.Len(t, got, 2)
	assert.Equal(t, "video_note", got[0].method)
	assert.Equal(t, "message", got[1].method)
}

type fakeLookup struct {
	calls int
}

func (f *fakeLookup) GetBusinessConnection(_ context.Context, p *bot.GetBusinessConnectionParams) (*models.BusinessConnection, error) {
	f.calls++
	if p.BusinessConnectionID == "bad" {
		return nil, errors.New("not found")
	}
	return &models.BusinessConnection{User: models.User{ID: owner}}, nil
}

func TestOwnersCachesLookups(t *testing.T) {
	t.Parallel()

	o := NewOwners()
	lookup := &fakeLookup{}

	for range 3 {
		id, err := o.Owner(context.Background(), lookup, "conn")
		require.NoError(t, err)
		assert.Equal(t, owner, id)
	}
	assert.Equal(t, 1, lookup.calls)

	_, err := o.Owner(context.Background(), lookup, "bad")
	assert.Error(t, err)
}

type fakeDownloader struct{ data string }

func (f fakeDownloader) Download(_ context.Context, _ string, w io.Writer) error {
	_, err := io.Copy(w, strings.NewReader(f.data))
	return err
}

func TestSaveReplied(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	reply := &models.Message{Voice: &models.Voice{FileID: "v"}}
	require.NoError(t, SaveReplied(context.Background(), rec, fakeDownloader{"ogg"}, owner, reply, "mirror_bot"))

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, "voice", got[0].method)
	assert.Contains(t, got[0].text, "@mirror_bot")

	err := SaveReplied(context.Background(), rec, fakeDownloader{}, owner, &models.Message{Text: "hi"}, "mirror_bot")
	assert.ErrorIs(t, err, ErrNoMedia)
}

func TestDeleteOfOwnMessageIsSilent(t *testing.T) {
	t.Parallel()

	store := newMemCache()
	s := newService(store)
	seedText(t, s, 42, 1, owner, "mine")
	rec := &recorder{}

	n, err := s.Delete(context.Background(), rec, 42, []int{1})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, rec.all())

	cached, err := store.GetCapturedMessage(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestCaptionEditKeepsMediaEntry(t *testing.T) {
	t.Parallel()

	store := newMemCache()
	s := newService(store)
	require.NoError(t, s.Store(context.Background(), database.CapturedMessage{
		ChatID: 42, MessageID: 5, SenderID: 77, SenderName: "Ann",
		Payload: "AgACPHOTOFILEID", Kind: database.KindPhoto, Caption: "old caption", OwnerID: owner,
	}))
	rec := &recorder{}

	notified, err := s.Edit(context.Background(), rec, Edit{
		ChatID: 42, MessageID: 5, EditorID: 77, EditorName: "Ann", Text: "new caption", OwnerID: owner,
		Kind: database.KindPhoto, FileID: "AgACPHOTOFILEID",
	})
	require.NoError(t, err)
	assert.True(t, notified)

	got := rec.all()
	require.Len(t, got, 1)
	assert.Contains(t, got[0].text, "old caption")
	assert.NotContains(t, got[0].text, "AgACPHOTOFILEID")

	cached, err := store.GetCapturedMessage(context.Background(), 42, 5)
	require.NoError(t, err)
	assert.Equal(t, database.KindPhoto, cached.Kind)
	assert.Equal(t, "AgACPHOTOFILEID", cached.Payload)
	assert.Equal(t, "new caption", cached.Caption)

	n, err := s.Delete(context.Background(), rec, 42, []int{5})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got = rec.all()
	require.Len(t, got, 2)
	assert.Equal(t, "photo", got[1].method)
	assert.Equal(t, "AgACPHOTOFILEID", got[1].file)
	assert.Contains(t, got[1].text, "new caption")
}

func TestEditOfUncachedMediaKeepsKind(t *testing.T) {
	t.Parallel()

	store := newMemCache()
	s := newService(store)
	rec := &recorder{}

	msg := &models.Message{
		ID:      11,
		Chat:    models.Chat{ID: 42},
		From:    &models.User{ID: 77, FirstName: "Ann"},
		Video:   &models.Video{FileID: "video-id"},
		Caption: "clip",
	}
	e := EditOf(msg, owner)
	assert.Equal(t, database.KindVideo, e.Kind)
	assert.Equal(t, "video-id", e.FileID)
	assert.Equal(t, "clip", e.Text)

	_, err := s.Edit(context.Background(), rec, e)
	require.NoError(t, err)

	cached, err := store.GetCapturedMessage(context.Background(), 42, 11)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, database.KindVideo, cached.Kind)
	assert.Equal(t, "video-id", cached.Payload)
	assert.Equal(t, "clip", cached.Caption)
}

func TestEditOfTextMessage(t *testing.T) {
	t.Parallel()

	e := EditOf(&models.Message{ID: 3, Chat: models.Chat{ID: 42}, From: &models.User{ID: 77, FirstName: "Ann", LastName: "Lee"}, Text: "hi"}, owner)
	assert.Empty(t, e.Kind)
	assert.Equal(t, "hi", e.Text)
	assert.Equal(t, int64(77), e.EditorID)
	assert.Equal(t, "Ann Lee", e.EditorName)
	assert.Equal(t, owner, e.OwnerID)
}
