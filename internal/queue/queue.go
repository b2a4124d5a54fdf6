// Package queue implements the Job Queue (C5): it persists jobs through
// their state machine and exposes the priority-ordered pending view the
// Dispatcher consumes.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ansiblecluster/core/internal/apierr"
	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

var (
	ErrInvalidTransition = errors.New("queue: invalid job state transition")
	ErrNotOwner          = errors.New("queue: principal does not own this job")
)

// JobRepo is the slice of internal/storage the queue needs.
type JobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *model.Job) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Job, error)
	List(ctx context.Context, tx *gorm.DB, filter model.JobFilter) ([]*model.Job, error)
	Pending(ctx context.Context, tx *gorm.DB) ([]*model.Job, error)
	ByWorker(ctx context.Context, tx *gorm.DB, workerID string, statuses []model.JobStatus) ([]*model.Job, error)
	Update(ctx context.Context, tx *gorm.DB, job *model.Job) error
	DeleteMany(ctx context.Context, tx *gorm.DB, ids []string) error
}

// ChangeNotifier is called after any change that might affect the pending
// view, so the Dispatcher can be triggered (spec §4.6).
type ChangeNotifier func()

type Queue struct {
	log    *logger.Logger
	jobs   JobRepo
	notify ChangeNotifier
}

func New(log *logger.Logger, jobs JobRepo, notify ChangeNotifier) *Queue {
	if notify == nil {
		notify = func() {}
	}
	return &Queue{log: log.With("component", "queue"), jobs: jobs, notify: notify}
}

// Submit enqueues a new job; the caller has already checked jobs:submit.
func (q *Queue) Submit(ctx context.Context, spec model.JobSpec, submittedBy string) (*model.Job, error) {
	if spec.JobType == "" {
		spec.JobType = model.JobNormal
	}
	job := &model.Job{
		ID:            uuid.New().String(),
		Playbook:      spec.Playbook,
		Target:        spec.Target,
		RequiredTags:  spec.RequiredTags,
		PreferredTags: spec.PreferredTags,
		Priority:      spec.Priority,
		JobType:       spec.JobType,
		ExtraVars:     spec.ExtraVars,
		Status:        model.JobQueued,
		SubmittedBy:   submittedBy,
		SubmittedAt:   time.Now().UTC(),
	}
	if job.RequiredTags == nil {
		job.RequiredTags = model.NewStringSet()
	}
	if job.PreferredTags == nil {
		job.PreferredTags = model.NewStringSet()
	}
	if err := q.jobs.Create(ctx, nil, job); err != nil {
		return nil, apierr.Internal(err)
	}
	q.notify()
	return job, nil
}

func (q *Queue) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := q.jobs.GetByID(ctx, nil, id)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if job == nil {
		return nil, apierr.NotFound(fmt.Errorf("job %s not found", id))
	}
	return job, nil
}

// List applies filter, optionally narrowed to a single owner when the
// caller lacks jobs.all:view (bidirectional matching means jobs:view also
// satisfies jobs.all:view — spec §4.5's deliberate note).
func (q *Queue) List(ctx context.Context, filter model.JobFilter, restrictToOwner string) ([]*model.Job, error) {
	jobs, err := q.jobs.List(ctx, nil, filter)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if restrictToOwner == "" {
		return jobs, nil
	}
	var owned []*model.Job
	for _, j := range jobs {
		if j.SubmittedBy == restrictToOwner {
			owned = append(owned, j)
		}
	}
	return owned, nil
}

func (q *Queue) Pending(ctx context.Context) ([]*model.Job, error) {
	jobs, err := q.jobs.Pending(ctx, nil)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return jobs, nil
}

func (q *Queue) ByWorker(ctx context.Context, workerID string, statuses []model.JobStatus) ([]*model.Job, error) {
	jobs, err := q.jobs.ByWorker(ctx, nil, workerID, statuses)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return jobs, nil
}

var allowedTransitions = map[model.JobStatus][]model.JobStatus{
	model.JobQueued:    {model.JobAssigned, model.JobCancelled},
	model.JobAssigned:  {model.JobRunning, model.JobQueued, model.JobCancelled},
	model.JobRunning:   {model.JobCompleted, model.JobFailed, model.JobQueued, model.JobCancelled},
	model.JobCompleted: {},
	model.JobFailed:    {},
	model.JobCancelled: {},
}

func canTransition(from, to model.JobStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transition validates and applies a status change, matching spec §3.2's
// acyclic state machine (queued/assigned/running with requeue edges back
// to queued, and cancellation from any non-terminal state).
func (q *Queue) transition(job *model.Job, to model.JobStatus) error {
	if !canTransition(job.Status, to) {
		return apierr.Conflict(fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, to))
	}
	job.Status = to
	return nil
}

// Cancel marks a job cancelled; permitted for the owner (with jobs:cancel,
// checked by the caller) or any principal with jobs.all:cancel. Process
// termination on the worker is best-effort only (spec §4.5, §9 open
// question (a)).
func (q *Queue) Cancel(ctx context.Context, id, principal string, allJobs bool) (*model.Job, error) {
	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return job, nil
	}
	if !allJobs && job.SubmittedBy != principal {
		return nil, apierr.Forbidden(ErrNotOwner)
	}
	if err := q.transition(job, model.JobCancelled); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	job.CompletedAt = &now
	if err := q.jobs.Update(ctx, nil, job); err != nil {
		return nil, apierr.Internal(err)
	}
	q.notify()
	return job, nil
}

// Assign transitions a job from queued to assigned; idempotent if the job
// is already assigned to the same worker (spec §4.6's idempotence
// requirement).
func (q *Queue) Assign(ctx context.Context, id, workerID string) (*model.Job, error) {
	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status == model.JobAssigned && job.AssignedWorker != nil && *job.AssignedWorker == workerID {
		return job, nil
	}
	if err := q.transition(job, model.JobAssigned); err != nil {
		return nil, err
	}
	job.AssignedWorker = &workerID
	now := time.Now().UTC()
	job.AssignedAt = &now
	if err := q.jobs.Update(ctx, nil, job); err != nil {
		return nil, apierr.Internal(err)
	}
	q.notify()
	return job, nil
}

// Start transitions an assigned job to running; only the worker it was
// assigned to may call this (spec §5's single-writer ordering guarantee).
func (q *Queue) Start(ctx context.Context, id, workerID, logFile string) (*model.Job, error) {
	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.AssignedWorker == nil || *job.AssignedWorker != workerID {
		return nil, apierr.Forbidden(fmt.Errorf("job %s is not assigned to worker %s", id, workerID))
	}
	if err := q.transition(job, model.JobRunning); err != nil {
		return nil, err
	}
	job.LogFile = logFile
	now := time.Now().UTC()
	job.StartedAt = &now
	if err := q.jobs.Update(ctx, nil, job); err != nil {
		return nil, apierr.Internal(err)
	}
	return job, nil
}

// CompletionFields carries everything the Completion Pipeline applies to a
// job's terminal transition (spec §4.10 step 3).
type CompletionFields struct {
	ExitCode        int
	LogFile         string
	ErrorMessage    string
	DurationSeconds float64
}

// Complete transitions a running job to completed or failed depending on
// exit code, and fills in the terminal fields.
func (q *Queue) Complete(ctx context.Context, id, workerID string, fields CompletionFields) (*model.Job, error) {
	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.AssignedWorker == nil || *job.AssignedWorker != workerID {
		return nil, apierr.Forbidden(fmt.Errorf("job %s is not assigned to worker %s", id, workerID))
	}

	to := model.JobCompleted
	if fields.ExitCode != 0 {
		to = model.JobFailed
	}
	if err := q.transition(job, to); err != nil {
		return nil, err
	}

	exitCode := fields.ExitCode
	job.ExitCode = &exitCode
	job.LogFile = fields.LogFile
	job.ErrorMessage = fields.ErrorMessage
	job.DurationSeconds = &fields.DurationSeconds
	now := time.Now().UTC()
	job.CompletedAt = &now

	if err := q.jobs.Update(ctx, nil, job); err != nil {
		return nil, apierr.Internal(err)
	}
	q.notify()
	return job, nil
}

// RequeueForWorker resets every {assigned, running} job belonging to
// workerID back to queued with an explanatory error_message, for the
// registry's stale-recovery sweep (spec §4.4). Implements
// registry.JobRecovery.
func (q *Queue) RequeueForWorker(ctx context.Context, workerID, reason string) (int, error) {
	jobs, err := q.jobs.ByWorker(ctx, nil, workerID, []model.JobStatus{model.JobAssigned, model.JobRunning})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, job := range jobs {
		job.Status = model.JobQueued
		job.AssignedWorker = nil
		job.AssignedAt = nil
		job.StartedAt = nil
		job.ErrorMessage = reason
		if err := q.jobs.Update(ctx, nil, job); err != nil {
			q.log.Error("failed to requeue job", "job_id", job.ID, "error", err)
			continue
		}
		count++
	}
	if count > 0 {
		q.notify()
	}
	return count, nil
}

// Cleanup removes terminal jobs older than maxAge, keeping the newest
// keepCount regardless of age; non-terminal jobs are never removed (spec
// §4.5).
func (q *Queue) Cleanup(ctx context.Context, maxAge time.Duration, keepCount int) (int, error) {
	all, err := q.jobs.List(ctx, nil, model.JobFilter{})
	if err != nil {
		return 0, apierr.Internal(err)
	}

	var terminal []*model.Job
	for _, j := range all {
		if j.IsTerminal() {
			terminal = append(terminal, j)
		}
	}
	if len(terminal) <= keepCount {
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	candidates := terminal[keepCount:]
	var toDelete []string
	for _, j := range candidates {
		if j.SubmittedAt.Before(cutoff) {
			toDelete = append(toDelete, j.ID)
		}
	}
	if len(toDelete) == 0 {
		return 0, nil
	}
	if err := q.jobs.DeleteMany(ctx, nil, toDelete); err != nil {
		return 0, apierr.Internal(err)
	}
	return len(toDelete), nil
}
