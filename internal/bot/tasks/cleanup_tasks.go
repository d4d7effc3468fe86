package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/worq1337/bot228-repo/internal/broadcast"
)

// stagingMaxAge is how old a staging directory must be before it is treated
// as left behind by a crashed job.
const stagingMaxAge = 6 * time.Hour

// newSessionExpiryTask drops wizard sessions idle longer than the configured TTL.
func newSessionExpiryTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "session_expiry")

	return func(ctx context.Context) error {
		if n := deps.Sessions.Expire(deps.Config.Session.TTL); n > 0 {
			log.InfoContext(ctx, "Expired idle sessions", "count", n, "ttl", deps.Config.Session.TTL)
		}
		return nil
	}
}

// newStagingCleanupTask removes broadcast staging directories no running job owns.
func newStagingCleanupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "staging_cleanup")

	return func(ctx context.Context) error {
		var active []string
		if deps.Jobs != nil {
			active = deps.Jobs.ActiveIDs()
		}
		n, err := broadcast.CleanupStaging(deps.StagingRoot, stagingMaxAge, active)
		if err != nil {
			return fmt.Errorf("staging cleanup failed: %w", err)
		}
		if n > 0 {
			log.InfoContext(ctx, "Removed stale staging directories", "count", n, "root", deps.StagingRoot)
		}
		return nil
	}
}

// newCacheRetentionTask deletes captured business messages older than the
// configured retention. A zero retention keeps everything.
func newCacheRetentionTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "cache_retention")

	return func(ctx context.Context) error {
		retention := deps.Config.Cache.Retention
		if retention <= 0 {
			return nil
		}
		cutoff := time.Now().Add(-retention).Unix()
		n, err := deps.Store.DeleteCapturedBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("cache retention failed: %w", err)
		}
		log.InfoContext(ctx, "Captured messages pruned", "count", n, "retention", retention)
		return nil
	}
}

// newMirrorGaugeTask publishes the number of registered mirror bots.
func newMirrorGaugeTask(deps TaskDeps) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		n, err := deps.Store.CountCredentials(ctx)
		if err != nil {
			return fmt.Errorf("failed to count mirrors: %w", err)
		}
		deps.Gauges.RegisteredMirrors(n)
		return nil
	}
}
