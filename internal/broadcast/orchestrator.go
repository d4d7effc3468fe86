package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/worq1337/bot228-repo/internal/database"
)

// EmptyReason tells the reporter why a job had nothing to do.
type EmptyReason string

// Reasons a job ends before its first attempt.
const (
	NoCredentials EmptyReason = "no_credentials"
	NoRecipients  EmptyReason = "no_recipients"
)

// Reporter surfaces job progress to the admin. Started is called at most
// once and never for a job that ends through Empty.
type Reporter interface {
	Empty(ctx context.Context, reason EmptyReason)
	Started(ctx context.Context, s Snapshot)
	Progress(ctx context.Context, s Snapshot)
	Finished(ctx context.Context, s Snapshot)
	Failed(ctx context.Context, err error)
}

// Observer receives per-attempt and per-job outcomes, for metrics.
type Observer interface {
	Delivered(mode Mode, err error)
	JobFinished(s Snapshot)
}

// CredentialSource lists mirror bots.
type CredentialSource interface {
	List(ctx context.Context) ([]database.Credential, error)
}

// RecipientSource lists end user ids.
type RecipientSource interface {
	ListEndUserIDs(ctx context.Context) ([]int64, error)
}

// ClientFactory builds a short-lived sender for a mirror bot token.
type ClientFactory interface {
	NewSender(token string) (Sender, error)
}

// Env is what a job needs from the conversation that started it.
type Env struct {
	// Origin is the bot the admin talks to. Users mode sends through it.
	Origin Sender
	// Media downloads files known to Origin.
	Media    MediaFetcher
	Reporter Reporter
}

// Config tunes the fan-out loop.
type Config struct {
	// SendInterval is the pause between two delivery attempts.
	SendInterval time.Duration
	// ProgressStep is the percentage between progress reports in users mode.
	ProgressStep int
	// StagingRoot holds per-job media directories.
	StagingRoot string
}

// stagingDirName is the directory under the system temp dir that holds
// staging directories when no root is configured.
const stagingDirName = "bot228-staging"

// DefaultStagingRoot is the staging root used when Config.StagingRoot is empty.
func DefaultStagingRoot() string {
	return filepath.Join(os.TempDir(), stagingDirName)
}

// Orchestrator runs broadcast jobs one recipient at a time.
type Orchestrator struct {
	ctx      context.Context
	cancel   context.CancelFunc
	jobs     *Jobs
	creds    CredentialSource
	users    RecipientSource
	clients  ClientFactory
	cfg      Config
	observer Observer
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// New creates an Orchestrator. Jobs started with Launch run under ctx and
// stop when it is cancelled or Shutdown is called.
func New(
	ctx context.Context,
	jobs *Jobs,
	creds CredentialSource,
	users RecipientSource,
	clients ClientFactory,
	cfg Config,
	observer Observer,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.ProgressStep <= 0 {
		cfg.ProgressStep = 10
	}
	if cfg.StagingRoot == "" {
		cfg.StagingRoot = DefaultStagingRoot()
	}
	jobCtx, cancel := context.WithCancel(database.WithoutScope(ctx))
	return &Orchestrator{
		ctx:      jobCtx,
		cancel:   cancel,
		jobs:     jobs,
		creds:    creds,
		users:    users,
		clients:  clients,
		cfg:      cfg,
		observer: observer,
		logger:   logger.With("component", "broadcast"),
	}
}

// Jobs returns the job registry.
func (o *Orchestrator) Jobs() *Jobs {
	return o.jobs
}

// StagingRoot is the directory holding per-job staging directories.
func (o *Orchestrator) StagingRoot() string {
	return o.cfg.StagingRoot
}

// Launch runs job in the background. The job is removed from the registry
// when it ends.
func (o *Orchestrator) Launch(job *Job, env Env) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.Run(o.ctx, job, env)
	}()
}

// Wait blocks until every launched job has ended.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown cancels every launched job and waits for them to end.
func (o *Orchestrator) Shutdown() {
	o.cancel()
	o.wg.Wait()
}

// Run executes job synchronously and returns its final counters.
func (o *Orchestrator) Run(ctx context.Context, job *Job, env Env) Snapshot {
	defer o.jobs.finish(job)

	log := o.logger.With("job_id", job.ID, "admin_id", job.AdminID, "mode", job.Mode)
	log.InfoContext(ctx, "Broadcast started", "kind", job.Payload.Kind)

	var err error
	switch job.Mode {
	case ModeUsers:
		err = o.runUsers(ctx, job, env)
	case ModeMirror:
		err = o.runMirror(ctx, job, env)
	default:
		err = fmt.Errorf("unknown broadcast mode %q", job.Mode)
	}

	snap := job.Snapshot()
	if err != nil {
		log.ErrorContext(ctx, "Broadcast failed", "error", err)
		env.Reporter.Failed(ctx, err)
		return snap
	}

	if o.observer != nil && snap.Total > 0 {
		o.observer.JobFinished(snap)
	}
	log.InfoContext(ctx, "Broadcast finished",
		"processed", snap.Processed, "success", snap.Success, "failure", snap.Failure, "cancelled", snap.Cancelled)
	return snap
}

func (o *Orchestrator) runUsers(ctx context.Context, job *Job, env Env) error {
	ids, err := o.users.ListEndUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list recipients: %w", err)
	}
	if len(ids) == 0 {
		env.Reporter.Empty(ctx, NoRecipients)
		return nil
	}

	job.total = len(ids)
	env.Reporter.Started(ctx, job.Snapshot())

	nextReport := o.cfg.ProgressStep
	for i, id := range ids {
		if o.stopped(ctx, job) {
			break
		}

		_, sendErr := Deliver(ctx, env.Origin, id, job.Payload, nil)
		o.recordAttempt(ctx, job, id, sendErr)

		if done := i + 1; done < len(ids) {
			if pct := done * 100 / len(ids); pct >= nextReport {
				env.Reporter.Progress(ctx, job.Snapshot())
				nextReport = (pct/o.cfg.ProgressStep + 1) * o.cfg.ProgressStep
			}
		}

		if o.stopped(ctx, job) || !o.pause(ctx) {
			break
		}
	}

	o.finishReport(ctx, job, env)
	return nil
}

func (o *Orchestrator) runMirror(ctx context.Context, job *Job, env Env) error {
	creds, err := o.creds.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}
	if len(creds) == 0 {
		env.Reporter.Empty(ctx, NoCredentials)
		return nil
	}

	ids, err := o.users.ListEndUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list recipients: %w", err)
	}
	if len(ids) == 0 {
		env.Reporter.Empty(ctx, NoRecipients)
		return nil
	}

	var staged *stagedFile
	if job.Payload.HasMedia() {
		dir := o.stagingDir(job)
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				o.logger.WarnContext(ctx, "Failed to remove staging dir", "dir", dir, "error", err)
			}
		}()
		if staged, err = stage(ctx, dir, job.Payload, env.Media); err != nil {
			return err
		}
	}

	job.total = len(creds) * len(ids)
	job.credentialsTotal = len(creds)
	env.Reporter.Started(ctx, job.Snapshot())

	for _, cred := range creds {
		if o.stopped(ctx, job) {
			break
		}
		if o.runCredential(ctx, job, cred, ids, staged) {
			job.credentialsDone++
		}
		env.Reporter.Progress(ctx, job.Snapshot())
	}

	o.finishReport(ctx, job, env)
	return nil
}

// runCredential sends to every recipient through one mirror bot. The bot's
// client lives only for this call. It reports false when the job stopped
// before the last recipient was attempted.
func (o *Orchestrator) runCredential(ctx context.Context, job *Job, cred database.Credential, ids []int64, staged *stagedFile) bool {
	log := o.logger.With("job_id", job.ID, "bot_username", cred.BotUsername)

	cctx, release := context.WithCancel(ctx)
	defer release()

	sender, err := o.clients.NewSender(cred.Token)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create mirror client", "error", err)
		for _, id := range ids {
			o.recordAttempt(ctx, job, id, err)
		}
		return true
	}

	var uploadedID string
	for i, id := range ids {
		if o.stopped(ctx, job) {
			return false
		}

		var file models.InputFile
		var opened *os.File
		if staged != nil {
			if uploadedID != "" {
				file = &models.InputFileString{Data: uploadedID}
			} else if opened, err = os.Open(staged.path); err == nil {
				file = &models.InputFileUpload{Filename: staged.name, Data: opened}
			}
		}

		var msg *models.Message
		if err == nil {
			msg, err = Deliver(cctx, sender, id, job.Payload, file)
		}
		if opened != nil {
			_ = opened.Close()
		}
		o.recordAttempt(ctx, job, id, err)
		if err == nil && staged != nil && uploadedID == "" {
			uploadedID = sentFileID(job.Payload.Kind, msg)
		}
		err = nil

		if o.stopped(ctx, job) || !o.pause(ctx) {
			return i == len(ids)-1
		}
	}
	return true
}

func (o *Orchestrator) recordAttempt(ctx context.Context, job *Job, chatID int64, err error) {
	job.record(err)
	if o.observer != nil {
		o.observer.Delivered(job.Mode, err)
	}
	if err == nil {
		return
	}
	if errors.Is(err, ErrRecipientUnreachable) {
		o.logger.DebugContext(ctx, "Recipient unreachable", "job_id", job.ID, "chat_id", chatID)
		return
	}
	o.logger.WarnContext(ctx, "Delivery failed", "job_id", job.ID, "chat_id", chatID, "error", err)
}

func (o *Orchestrator) finishReport(ctx context.Context, job *Job, env Env) {
	if ctx.Err() != nil {
		job.Cancel()
	}
	env.Reporter.Finished(ctx, job.Snapshot())
}

// stopped reports whether the job must not make another attempt.
func (o *Orchestrator) stopped(ctx context.Context, job *Job) bool {
	return job.Cancelled() || ctx.Err() != nil
}

// pause waits SendInterval and reports false if ctx ended meanwhile.
func (o *Orchestrator) pause(ctx context.Context) bool {
	if o.cfg.SendInterval <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(o.cfg.SendInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
