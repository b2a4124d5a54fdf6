// Package registry implements the Worker Registry (C4): registration,
// check-in, listing, deletion, and the stale-detection sweep with job
// recovery.
package registry

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
	ErrRegistrationTokenInvalid = errors.New("registry: invalid registration token")
	ErrCannotDeleteLocal        = errors.New("registry: the local worker cannot be deleted")
	ErrWorkerHasActiveJobs      = errors.New("registry: worker has active jobs")
)

// WorkerRepo is the slice of internal/storage the registry needs.
type WorkerRepo interface {
	Create(ctx context.Context, tx *gorm.DB, worker *model.Worker) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Worker, error)
	GetByName(ctx context.Context, tx *gorm.DB, name string) (*model.Worker, error)
	List(ctx context.Context, tx *gorm.DB) ([]*model.Worker, error)
	Update(ctx context.Context, tx *gorm.DB, worker *model.Worker) error
	Delete(ctx context.Context, tx *gorm.DB, id string) error
}

// JobRecovery is the slice of internal/queue the stale sweep needs to
// requeue a lost worker's jobs.
type JobRecovery interface {
	RequeueForWorker(ctx context.Context, workerID, reason string) (int, error)
}

type Registry struct {
	log               *logger.Logger
	workers           WorkerRepo
	jobs              JobRecovery
	registrationToken string
	checkinInterval   time.Duration
}

func New(log *logger.Logger, workers WorkerRepo, jobs JobRecovery, registrationToken string, checkinInterval time.Duration) *Registry {
	return &Registry{
		log:               log.With("component", "registry"),
		workers:           workers,
		jobs:              jobs,
		registrationToken: registrationToken,
		checkinInterval:   checkinInterval,
	}
}

// EnsureLocalWorker creates the reserved `__local__` worker record at
// primary startup if it doesn't already exist (spec §3.1).
func (r *Registry) EnsureLocalWorker(ctx context.Context) error {
	existing, err := r.workers.GetByID(ctx, nil, model.LocalWorkerID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	now := time.Now().UTC()
	local := &model.Worker{
		ID:            model.LocalWorkerID,
		Name:          model.LocalWorkerID,
		Tags:          model.NewStringSet(),
		PriorityBoost: model.LocalWorkerPriorityBoost,
		Status:        model.WorkerOnline,
		IsLocal:       true,
		CurrentJobs:   model.NewStringSet(),
		RegisteredAt:  now,
		LastCheckin:   now,
	}
	return r.workers.Create(ctx, nil, local)
}

type RegisterRequest struct {
	Name  string
	Tags  []string
	Token string
}

type RegisterResult struct {
	WorkerID        string
	CheckinInterval int
}

// Register validates the registration token and either updates an existing
// non-local worker with the same name ("re-registration", preserving id,
// registered_at, and stats) or creates a fresh one with priority_boost=0
// (spec §4.4).
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if req.Token != r.registrationToken {
		return nil, apierr.Unauthenticated(ErrRegistrationTokenInvalid)
	}

	now := time.Now().UTC()
	existing, err := r.workers.GetByName(ctx, nil, req.Name)
	if err != nil {
		return nil, apierr.Internal(err)
	}

	if existing != nil && !existing.IsLocal {
		existing.Tags = model.NewStringSet(req.Tags...)
		existing.Status = model.WorkerOnline
		existing.LastCheckin = now
		if err := r.workers.Update(ctx, nil, existing); err != nil {
			return nil, apierr.Internal(err)
		}
		return &RegisterResult{WorkerID: existing.ID, CheckinInterval: int(r.checkinInterval.Seconds())}, nil
	}

	worker := &model.Worker{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Tags:          model.NewStringSet(req.Tags...),
		PriorityBoost: 0,
		Status:        model.WorkerOnline,
		CurrentJobs:   model.NewStringSet(),
		RegisteredAt:  now,
		LastCheckin:   now,
	}
	if err := r.workers.Create(ctx, nil, worker); err != nil {
		return nil, apierr.Internal(err)
	}
	return &RegisterResult{WorkerID: worker.ID, CheckinInterval: int(r.checkinInterval.Seconds())}, nil
}

type CheckinRequest struct {
	WorkerID     string
	SyncRevision *string
	Stats        *model.WorkerStats
	Status       *model.WorkerStatus
	ActiveJobs   []string
}

type CheckinResult struct {
	NextCheckinSeconds int
	SyncNeeded         bool
	CurrentRevision    string
}

// CurrentRevisionFunc lets the registry ask the Content Store for its
// current revision without importing it directly.
type CurrentRevisionFunc func() string

// Checkin updates the fields present in req, bumps last_checkin, and
// reports whether the worker needs to sync (spec §4.4).
func (r *Registry) Checkin(ctx context.Context, req CheckinRequest, currentRevision CurrentRevisionFunc) (*CheckinResult, error) {
	worker, err := r.workers.GetByID(ctx, nil, req.WorkerID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if worker == nil {
		return nil, apierr.NotFound(fmt.Errorf("worker %s not found", req.WorkerID))
	}

	if req.SyncRevision != nil {
		worker.SyncRevision = req.SyncRevision
	}
	if req.Stats != nil {
		worker.Stats = *req.Stats
	}
	if req.Status != nil {
		worker.Status = *req.Status
	}
	if req.ActiveJobs != nil {
		worker.CurrentJobs = model.NewStringSet(req.ActiveJobs...)
	}
	worker.LastCheckin = time.Now().UTC()

	if err := r.workers.Update(ctx, nil, worker); err != nil {
		return nil, apierr.Internal(err)
	}

	rev := currentRevision()
	syncNeeded := worker.SyncRevision == nil || *worker.SyncRevision != rev

	return &CheckinResult{
		NextCheckinSeconds: int(r.checkinInterval.Seconds()),
		SyncNeeded:         syncNeeded,
		CurrentRevision:    rev,
	}, nil
}

func (r *Registry) Get(ctx context.Context, id string) (*model.Worker, error) {
	w, err := r.workers.GetByID(ctx, nil, id)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if w == nil {
		return nil, apierr.NotFound(fmt.Errorf("worker %s not found", id))
	}
	return w, nil
}

func (r *Registry) List(ctx context.Context) ([]*model.Worker, error) {
	workers, err := r.workers.List(ctx, nil)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return workers, nil
}

func (r *Registry) WorkerExists(ctx context.Context, id string) bool {
	w, err := r.workers.GetByID(ctx, nil, id)
	return err == nil && w != nil
}

// Delete refuses the local worker and refuses any worker with jobs in
// {assigned, running} (spec §3.1, §4.4).
func (r *Registry) Delete(ctx context.Context, id string) error {
	if id == model.LocalWorkerID {
		return apierr.Forbidden(ErrCannotDeleteLocal)
	}
	worker, err := r.workers.GetByID(ctx, nil, id)
	if err != nil {
		return apierr.Internal(err)
	}
	if worker == nil {
		return apierr.NotFound(fmt.Errorf("worker %s not found", id))
	}
	if worker.HasActiveJobs() {
		return apierr.Conflict(ErrWorkerHasActiveJobs)
	}
	if err := r.workers.Delete(ctx, nil, id); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// SweepStale marks every non-local worker stale if it has missed check-ins
// beyond 2*checkin_interval, and triggers job recovery for each one newly
// marked stale (spec §4.4, testable property 3).
func (r *Registry) SweepStale(ctx context.Context) error {
	workers, err := r.workers.List(ctx, nil)
	if err != nil {
		return err
	}

	threshold := 2 * r.checkinInterval
	now := time.Now().UTC()

	for _, w := range workers {
		if w.IsLocal || w.Status == model.WorkerStale {
			continue
		}
		if now.Sub(w.LastCheckin) <= threshold {
			continue
		}

		w.Status = model.WorkerStale
		if err := r.workers.Update(ctx, nil, w); err != nil {
			r.log.Error("failed to mark worker stale", "worker_id", w.ID, "error", err)
			continue
		}

		r.log.Warn("worker marked stale", "worker_id", w.ID, "name", w.Name)

		if r.jobs != nil {
			reason := fmt.Sprintf("worker %s (%s) missed check-ins and was marked stale", w.Name, w.ID)
			if _, err := r.jobs.RequeueForWorker(ctx, w.ID, reason); err != nil {
				r.log.Error("failed to requeue jobs for stale worker", "worker_id", w.ID, "error", err)
			}
		}
	}
	return nil
}

// RunStaleSweep runs SweepStale on a ticker until ctx is cancelled, per the
// "interval ≤ checkin_interval/2" requirement in spec §4.4.
func (r *Registry) RunStaleSweep(ctx context.Context) {
	interval := r.checkinInterval / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.SweepStale(ctx); err != nil {
				r.log.Error("stale sweep failed", "error", err)
			}
		}
	}
}
