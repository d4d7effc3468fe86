package tasks

import (
	"context"
)

// ScheduledTaskFunc defines the standard signature for all scheduled tasks.
// The context provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks initializes and returns a map of all registered scheduled tasks.
// The keys match the task names of the scheduler configuration.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := make(map[string]ScheduledTaskFunc)

	tasks["sql_maintenance"] = newSQLMaintenanceTask(deps)
	if deps.Sessions != nil {
		tasks["session_expiry"] = newSessionExpiryTask(deps)
	}
	if deps.StagingRoot != "" {
		tasks["staging_cleanup"] = newStagingCleanupTask(deps)
	}
	tasks["cache_retention"] = newCacheRetentionTask(deps)
	if deps.Gauges != nil {
		tasks["mirror_gauge"] = newMirrorGaugeTask(deps)
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
