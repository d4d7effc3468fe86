package fsm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreScopesByKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	a := Key{ChatID: 1, UserID: 10}
	b := Key{ChatID: 1, UserID: 11}

	require.NoError(t, store.Set(ctx, a, Session{State: AwaitingToken}))

	got, err := store.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, AwaitingToken, got.State)

	other, err := store.Get(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, None, other.State)
}

func TestBroadcastWizardNavigation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	key := Key{ChatID: 5, UserID: 5}

	s := Session{State: BroadcastSelectType}.With("mode", "users")
	s = s.In(BroadcastAwaitingMessage)
	s = s.With("kind", "text").With("text", "hello").In(BroadcastAddButtons)
	require.NoError(t, store.Set(ctx, key, s))

	// Going back keeps only the target mode.
	cur, err := store.Get(ctx, key)
	require.NoError(t, err)
	back := cur.Keep("mode").In(BroadcastAwaitingMessage)
	require.NoError(t, store.Set(ctx, key, back))

	cur, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, BroadcastAwaitingMessage, cur.State)
	assert.Equal(t, map[string]string{"mode": "users"}, cur.Fields)

	// Cancel from anywhere drops everything.
	require.NoError(t, store.Clear(ctx, key))
	cur, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, None, cur.State)
	assert.Empty(t, cur.Fields)
	assert.Zero(t, store.Len())
}

func TestSessionCopiesDoNotAlias(t *testing.T) {
	t.Parallel()

	base := Session{}.With("a", "1")
	derived := base.With("b", "2")
	assert.Equal(t, "", base.Get("b"))
	assert.Equal(t, "2", derived.Get("b"))
}

func TestSetNoneClears(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	key := Key{ChatID: 1, UserID: 1}

	require.NoError(t, store.Set(ctx, key, Session{State: AwaitingHTMLText}))
	require.NoError(t, store.Set(ctx, key, Session{State: None}))
	assert.Zero(t, store.Len())
}

func TestExpire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	require.NoError(t, store.Set(ctx, Key{ChatID: 1, UserID: 1}, Session{State: AwaitingToken}))

	now = now.Add(10 * time.Minute)
	require.NoError(t, store.Set(ctx, Key{ChatID: 2, UserID: 2}, Session{State: AwaitingToken}))

	now = now.Add(25 * time.Minute)
	assert.Equal(t, 1, store.Expire(30*time.Minute))
	assert.Equal(t, 1, store.Len())

	s, err := store.Get(ctx, Key{ChatID: 1, UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, None, s.State)
}
