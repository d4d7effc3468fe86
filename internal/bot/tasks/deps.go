// Package tasks implements the scheduled maintenance tasks of the mirror bot
// server: database upkeep, session expiry, staging cleanup and cache retention.
package tasks

import (
	"log/slog"
	"time"

	"github.com/worq1337/bot228-repo/internal/config"
	"github.com/worq1337/bot228-repo/internal/database"
)

// SessionExpirer drops conversations idle longer than a TTL.
type SessionExpirer interface {
	Expire(ttl time.Duration) int
}

// ActiveJobs lists the ids of running broadcast jobs.
type ActiveJobs interface {
	ActiveIDs() []string
}

// Gauges receives registry sizes.
type Gauges interface {
	RegisteredMirrors(n int)
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger      *slog.Logger
	Store       database.Store
	Config      *config.Config
	Sessions    SessionExpirer
	Jobs        ActiveJobs
	StagingRoot string
	Gauges      Gauges
}
