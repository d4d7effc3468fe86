package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worq1337/bot228-repo/internal/broadcast"
	"github.com/worq1337/bot228-repo/internal/config"
	"github.com/worq1337/bot228-repo/internal/database"
)

// fakeStore implements the store methods the tasks call. Any other call
// panics through the nil embedded interface.
type fakeStore struct {
	database.Store
	cutoff      int64
	pruned      int64
	maintenance int
	mirrors     int
	err         error
}

func (f *fakeStore) DeleteCapturedBefore(_ context.Context, cutoff int64) (int64, error) {
	f.cutoff = cutoff
	return f.pruned, f.err
}

func (f *fakeStore) RunSQLMaintenance(context.Context) error {
	f.maintenance++
	return f.err
}

func (f *fakeStore) CountCredentials(context.Context) (int, error) {
	return f.mirrors, f.err
}

type fakeSessions struct{ ttl time.Duration }

func (f *fakeSessions) Expire(ttl time.Duration) int {
	f.ttl = ttl
	return 2
}

type fakeGauges struct{ mirrors int }

func (f *fakeGauges) RegisteredMirrors(n int) { f.mirrors = n }

type staticJobs []string

func (s staticJobs) ActiveIDs() []string { return s }

func testDeps(store database.Store) TaskDeps {
	cfg := &config.Config{}
	cfg.Session.TTL = 30 * time.Minute
	cfg.Cache.Retention = 24 * time.Hour
	return TaskDeps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  store,
		Config: cfg,
	}
}

func TestRegisterAllTasksSkipsUnwiredTasks(t *testing.T) {
	t.Parallel()

	deps := testDeps(&fakeStore{})
	tasks := RegisterAllTasks(deps)
	assert.Contains(t, tasks, "sql_maintenance")
	assert.Contains(t, tasks, "cache_retention")
	assert.NotContains(t, tasks, "session_expiry")
	assert.NotContains(t, tasks, "staging_cleanup")
	assert.NotContains(t, tasks, "mirror_gauge")

	deps.Sessions = &fakeSessions{}
	deps.StagingRoot = t.TempDir()
	deps.Gauges = &fakeGauges{}
	assert.Len(t, RegisterAllTasks(deps), 5)
}

func TestSQLMaintenanceTask(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	require.NoError(t, newSQLMaintenanceTask(testDeps(store))(context.Background()))
	assert.Equal(t, 1, store.maintenance)

	store.err = errors.New("locked")
	assert.ErrorContains(t, newSQLMaintenanceTask(testDeps(store))(context.Background()), "locked")
}

func TestSessionExpiryUsesConfiguredTTL(t *testing.T) {
	t.Parallel()

	sessions := &fakeSessions{}
	deps := testDeps(&fakeStore{})
	deps.Sessions = sessions

	require.NoError(t, newSessionExpiryTask(deps)(context.Background()))
	assert.Equal(t, 30*time.Minute, sessions.ttl)
}

func TestCacheRetention(t *testing.T) {
	t.Parallel()

	store := &fakeStore{pruned: 3}
	deps := testDeps(store)
	before := time.Now().Add(-24 * time.Hour).Unix()

	require.NoError(t, newCacheRetentionTask(deps)(context.Background()))
	assert.InDelta(t, before, store.cutoff, 2)

	store.cutoff = 0
	deps.Config.Cache.Retention = 0
	require.NoError(t, newCacheRetentionTask(deps)(context.Background()))
	assert.Zero(t, store.cutoff, "zero retention keeps everything")
}

func TestStagingCleanupSparesActiveJobs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	old := time.Now().Add(-7 * time.Hour)
	for _, name := range []string{broadcast.StagingDirPrefix + "1_done", broadcast.StagingDirPrefix + "1_running"} {
		dir := filepath.Join(root, name)
		require.NoError(t, os.Mkdir(dir, 0o755))
		require.NoError(t, os.Chtimes(dir, old, old))
	}

	deps := testDeps(&fakeStore{})
	deps.StagingRoot = root
	deps.Jobs = staticJobs{"running"}

	require.NoError(t, newStagingCleanupTask(deps)(context.Background()))

	assert.NoDirExists(t, filepath.Join(root, broadcast.StagingDirPrefix+"1_done"))
	assert.DirExists(t, filepath.Join(root, broadcast.StagingDirPrefix+"1_running"))
}

func TestMirrorGauge(t *testing.T) {
	t.Parallel()

	gauges := &fakeGauges{}
	deps := testDeps(&fakeStore{mirrors: 4})
	deps.Gauges = gauges

	require.NoError(t, newMirrorGaugeTask(deps)(context.Background()))
	assert.Equal(t, 4, gauges.mirrors)
}
