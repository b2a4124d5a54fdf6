// Package workerrt implements the worker-side runtime (C8): a single
// coordination loop plus one task per running job, mirroring the cadence
// the teacher's internal/jobs/orchestrator engine uses for its own
// single-writer step loop, adapted here to an HTTP-polled remote executor
// instead of an in-process DAG.
package workerrt

import (
	"context"
	"time"

	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/httpx"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

const tickInterval = 1 * time.Second

// Runtime owns one worker process's full lifecycle: startup, registration,
// initial sync, and the main scheduler loop (spec §4.8). Construct with New
// and call Run once; Run blocks until ctx is cancelled and a final offline
// check-in has been sent.
type Runtime struct {
	cfg      Config
	log      *logger.Logger
	client   *APIClient
	syncer   *Syncer
	tracker  *jobTracker
	state    *stateHolder
	executor *JobExecutor

	workerID string

	lastCheckin   time.Time
	lastSyncCheck time.Time
	lastPoll      time.Time
	syncPending   bool
}

func New(cfg Config, log *logger.Logger) *Runtime {
	client := NewAPIClient(cfg.ServerURL, cfg.InsecureSkipVerify())
	return &Runtime{
		cfg:      cfg,
		log:      log.With("component", "workerrt"),
		client:   client,
		syncer:   NewSyncer(log, client, cfg.ContentDir),
		tracker:  newJobTracker(cfg.MaxConcurrentJobs),
		state:    newStateHolder(StateStarting),
		executor: NewJobExecutor(log, client, cfg.LogsDir),
	}
}

// Run performs startup (health-check, register, initial sync) and then
// drives the main loop until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.startup(ctx); err != nil {
		r.state.Set(StateError)
		return err
	}

	r.state.Set(StateIdle)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// startup health-checks the primary with capped exponential backoff,
// registers, and performs the unconditional initial full sync (spec §4.8).
func (r *Runtime) startup(ctx context.Context) error {
	r.state.Set(StateStarting)
	for attempt := 0; ; attempt++ {
		if err := r.client.HealthCheck(ctx); err == nil {
			break
		}
		delay := httpx.ExponentialBackoff(attempt, 2*time.Second, 60*time.Second)
		r.log.Warn("primary unreachable, retrying", "attempt", attempt, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.state.Set(StateRegistering)
	workerID, checkinSeconds, err := r.client.Register(ctx, r.cfg.WorkerName, r.cfg.Tags, r.cfg.RegistrationToken)
	if err != nil {
		return err
	}
	r.workerID = workerID
	r.client.SetWorkerID(workerID)
	if checkinSeconds > 0 {
		r.cfg.CheckinInterval = time.Duration(checkinSeconds) * time.Second
	}

	r.state.Set(StateSyncing)
	if err := r.syncer.EnsureDirs(); err != nil {
		return err
	}
	rev, err := r.client.Revision(ctx)
	if err != nil {
		return err
	}
	if err := r.syncer.FullSync(ctx, rev); err != nil {
		return err
	}

	now := time.Now()
	r.lastCheckin = now
	r.lastSyncCheck = now
	r.lastPoll = now
	return nil
}

// tick implements the four steps of spec §4.8's main loop.
func (r *Runtime) tick(ctx context.Context) {
	now := time.Now()

	if now.Sub(r.lastCheckin) >= r.cfg.CheckinInterval {
		r.doCheckin(ctx)
		r.lastCheckin = time.Now()
	}

	if r.syncPending || now.Sub(r.lastSyncCheck) >= r.cfg.SyncInterval {
		r.syncPending = false
		r.doSyncCheck(ctx)
		r.lastSyncCheck = time.Now()
	}

	if now.Sub(r.lastPoll) >= r.cfg.PollInterval {
		r.doPoll(ctx)
		r.lastPoll = time.Now()
	}

	if r.tracker.active() > 0 {
		r.state.Set(StateBusy)
	} else if r.state.Get() == StateBusy {
		r.state.Set(StateIdle)
	}
}

func (r *Runtime) doCheckin(ctx context.Context) {
	status := model.WorkerOnline
	if r.tracker.active() > 0 {
		status = model.WorkerBusy
	}
	result, err := r.client.Checkin(ctx, r.syncer.LocalRevision(), model.WorkerStats{
		MaxConcurrent: r.cfg.MaxConcurrentJobs,
	}, status, nil)
	if err != nil {
		r.log.Warn("checkin failed", "error", err)
		return
	}
	if result.SyncNeeded {
		r.syncPending = true
	}
}

// doSyncCheck implements spec §4.9's sync decision: full sync on first
// failure of an incremental attempt, otherwise incremental only.
func (r *Runtime) doSyncCheck(ctx context.Context) {
	needed, serverRevision, err := r.syncer.CheckSyncNeeded(ctx)
	if err != nil {
		r.log.Warn("sync revision check failed", "error", err)
		return
	}
	if !needed {
		return
	}

	prevState := r.state.Get()
	r.state.Set(StateSyncing)
	defer r.state.Set(prevState)

	if err := r.syncer.IncrementalSync(ctx, serverRevision); err != nil {
		r.log.Warn("incremental sync failed, falling back to full sync", "error", err)
		if err := r.syncer.FullSync(ctx, serverRevision); err != nil {
			r.log.Error("full sync fallback failed", "error", err)
		}
	}
}

func (r *Runtime) doPoll(ctx context.Context) {
	if !r.tracker.hasCapacity() {
		return
	}
	jobs, err := r.client.AssignedJobs(ctx)
	if err != nil {
		r.log.Warn("job poll failed", "error", err)
		return
	}
	for _, job := range jobs {
		if !r.tracker.hasCapacity() {
			return
		}
		if !r.tracker.claim(job.ID) {
			continue
		}
		go func(j *model.Job) {
			defer r.tracker.release(j.ID)
			r.executor.Run(ctx, j, r.cfg.WorkerName, r.workerID)
		}(job)
	}
}

// shutdown marks the worker offline; it does not forcibly stop in-flight
// job executors (the caller's ctx cancellation is advisory for them too,
// per spec §5's cancellation note — the primary reconciles on completion).
func (r *Runtime) shutdown() {
	r.state.Set(StateStopping)
	deadline := time.Now().Add(30 * time.Second)
	for r.tracker.active() > 0 && time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := r.client.Checkin(ctx, r.syncer.LocalRevision(), model.WorkerStats{}, model.WorkerOffline, nil); err != nil {
		r.log.Warn("final offline checkin failed", "error", err)
	}
}
