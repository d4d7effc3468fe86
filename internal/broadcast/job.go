package broadcast

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrJobActive is returned by Begin when the admin already runs a job.
var ErrJobActive = errors.New("broadcast already running")

// Snapshot is a point-in-time view of a job's counters.
type Snapshot struct {
	Mode             Mode
	Total            int
	Processed        int
	Success          int
	Failure          int
	CredentialsDone  int
	CredentialsTotal int
	Cancelled        bool
}

// Percent is Processed as a share of Total, 0..100.
func (s Snapshot) Percent() int {
	if s.Total == 0 {
		return 0
	}
	return s.Processed * 100 / s.Total
}

// Job is one broadcast. Its cancel flag is the only state shared with other
// goroutines; everything else is owned by the goroutine running it.
type Job struct {
	ID        string
	AdminID   int64
	Mode      Mode
	Payload   Payload
	CreatedAt time.Time

	cancelled atomic.Bool

	total            int
	processed        atomic.Int64
	success          atomic.Int64
	failure          atomic.Int64
	credentialsDone  int
	credentialsTotal int
}

// Cancel requests the job to stop before its next delivery attempt.
func (j *Job) Cancel() {
	j.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (j *Job) Cancelled() bool {
	return j.cancelled.Load()
}

// Snapshot returns the current counters.
func (j *Job) Snapshot() Snapshot {
	return Snapshot{
		Mode:             j.Mode,
		Total:            j.total,
		Processed:        int(j.processed.Load()),
		Success:          int(j.success.Load()),
		Failure:          int(j.failure.Load()),
		CredentialsDone:  j.credentialsDone,
		CredentialsTotal: j.credentialsTotal,
		Cancelled:        j.Cancelled(),
	}
}

func (j *Job) record(err error) {
	j.processed.Add(1)
	if err != nil {
		j.failure.Add(1)
		return
	}
	j.success.Add(1)
}

// Jobs tracks the running job of each admin. A job is added by Begin and
// removed only by the orchestrator that runs it.
type Jobs struct {
	mu     sync.Mutex
	active map[int64]*Job
}

// NewJobs returns an empty registry.
func NewJobs() *Jobs {
	return &Jobs{active: make(map[int64]*Job)}
}

// Begin registers a new job for adminID.
func (r *Jobs) Begin(adminID int64, mode Mode, payload Payload) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.active[adminID]; busy {
		return nil, ErrJobActive
	}
	job := &Job{
		ID:        uuid.NewString(),
		AdminID:   adminID,
		Mode:      mode,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	r.active[adminID] = job
	return job, nil
}

// Cancel flags the running job of adminID and reports whether there was one.
func (r *Jobs) Cancel(adminID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.active[adminID]
	if !ok {
		return false
	}
	job.Cancel()
	return true
}

// Active returns the running job of adminID.
func (r *Jobs) Active(adminID int64) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.active[adminID]
	return job, ok
}

// ActiveIDs returns the ids of all running jobs.
func (r *Jobs) ActiveIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.active))
	for _, job := range r.active {
		ids = append(ids, job.ID)
	}
	return ids
}

func (r *Jobs) finish(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[job.AdminID] == job {
		delete(r.active, job.AdminID)
	}
}
