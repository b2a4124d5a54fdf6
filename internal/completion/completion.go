// Package completion implements the Completion Pipeline (C10): the
// ordered side effects that run when a worker reports a job finished
// (spec §4.10). Only the state transition is authoritative; every other
// step is best-effort and never rolls it back.
package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/ansiblecluster/core/internal/agentwebhook"
	"github.com/ansiblecluster/core/internal/apierr"
	"github.com/ansiblecluster/core/internal/cmdb"
	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
	"github.com/ansiblecluster/core/internal/queue"
	"github.com/ansiblecluster/core/internal/registry"
)

// JobCompleter is the slice of internal/queue this pipeline drives.
type JobCompleter interface {
	Get(ctx context.Context, id string) (*model.Job, error)
	Complete(ctx context.Context, id, workerID string, fields queue.CompletionFields) (*model.Job, error)
}

// WorkerStatsStore is the slice of internal/storage needed to update a
// worker's rolling stats and current_jobs set (spec §4.10 steps 4-5).
type WorkerStatsStore interface {
	Get(ctx context.Context, id string) (*model.Worker, error)
	Update(ctx context.Context, worker *model.Worker) error
}

// LogPersister is the slice of internal/logbroker needed to move a job's
// partial log to its final artifact (spec §4.10 step 2).
type LogPersister interface {
	Finalize(jobID, filename string, explicitContent []byte) ([]byte, error)
}

// CheckinApplier is the slice of internal/registry needed to apply a
// piggybacked check-in (spec §4.10 step 7).
type CheckinApplier interface {
	Checkin(ctx context.Context, req registry.CheckinRequest, currentRevision registry.CurrentRevisionFunc) (*registry.CheckinResult, error)
}

// AgentNotifier is the slice of internal/agentwebhook needed for the
// fire-and-forget log-review webhook (spec §4.10 step 8).
type AgentNotifier interface {
	Notify(ctx context.Context, payload agentwebhook.Payload)
}

// UIEmitter publishes job lifecycle events to the UI topic (spec §4.10
// step 9); internal/server supplies the real transport (WebSocket/SSE).
type UIEmitter interface {
	Emit(ctx context.Context, eventType string, payload interface{})
}

// NoopUIEmitter discards every event; used where no UI transport is wired
// (e.g. in worker-side or test contexts).
type NoopUIEmitter struct{}

func (NoopUIEmitter) Emit(context.Context, string, interface{}) {}

// Request carries the full complete_job payload from spec §6's endpoint
// table.
type Request struct {
	JobID           string
	WorkerID        string
	ExitCode        int
	LogFile         string
	LogContent      []byte
	ErrorMessage    string
	DurationSeconds float64
	CMDBFacts       map[string]cmdb.HostFacts
	Checkin         *registry.CheckinRequest
}

// Result reports which best-effort side effects actually landed, matching
// the response shape in spec §6.
type Result struct {
	Status             model.JobStatus
	LogStored          bool
	WorkerStatsUpdated bool
	CMDBFactsStored    bool
	CheckinProcessed   bool
}

type Pipeline struct {
	log     *logger.Logger
	jobs    JobCompleter
	workers WorkerStatsStore
	logs    LogPersister
	checkin CheckinApplier
	cmdb    cmdb.Forwarder
	agent   AgentNotifier
	ui      UIEmitter

	currentRevision registry.CurrentRevisionFunc
}

func New(
	log *logger.Logger,
	jobs JobCompleter,
	workers WorkerStatsStore,
	logs LogPersister,
	checkin CheckinApplier,
	cmdbForwarder cmdb.Forwarder,
	agent AgentNotifier,
	ui UIEmitter,
	currentRevision registry.CurrentRevisionFunc,
) *Pipeline {
	if ui == nil {
		ui = NoopUIEmitter{}
	}
	return &Pipeline{
		log:             log.With("component", "completion"),
		jobs:            jobs,
		workers:         workers,
		logs:            logs,
		checkin:         checkin,
		cmdb:            cmdbForwarder,
		agent:           agent,
		ui:              ui,
		currentRevision: currentRevision,
	}
}

// Complete runs the ordered side effects in spec §4.10. Step 1
// (authorization) and step 3 (state transition) are the only steps whose
// failure aborts the call; everything else is attempted and logged on
// failure.
func (p *Pipeline) Complete(ctx context.Context, req Request) (*Result, error) {
	job, err := p.jobs.Get(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.AssignedWorker == nil || *job.AssignedWorker != req.WorkerID {
		return nil, apierr.Forbidden(fmt.Errorf("job %s is not assigned to worker %s", req.JobID, req.WorkerID))
	}

	result := &Result{}

	filename := req.LogFile
	if filename == "" {
		filename = fmt.Sprintf("%s.log", req.JobID)
	}
	if _, err := p.logs.Finalize(req.JobID, filename, req.LogContent); err != nil {
		p.log.Error("failed to persist final log", "job_id", req.JobID, "error", err)
	} else {
		result.LogStored = true
	}

	completed, err := p.jobs.Complete(ctx, req.JobID, req.WorkerID, queue.CompletionFields{
		ExitCode:        req.ExitCode,
		LogFile:         filename,
		ErrorMessage:    req.ErrorMessage,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		return nil, err
	}
	result.Status = completed.Status

	if err := p.updateWorkerStats(ctx, req.WorkerID, req.JobID, completed.Status, req.DurationSeconds); err != nil {
		p.log.Error("failed to update worker stats", "worker_id", req.WorkerID, "job_id", req.JobID, "error", err)
	} else {
		result.WorkerStatsUpdated = true
	}

	if len(req.CMDBFacts) > 0 && p.cmdb != nil {
		now := time.Now().UTC()
		entries := make([]cmdb.Entry, 0, len(req.CMDBFacts))
		for host, facts := range req.CMDBFacts {
			entries = append(entries, cmdb.Entry{
				Host:        host,
				Facts:       facts,
				JobID:       req.JobID,
				Playbook:    job.Playbook,
				CollectedAt: now,
			})
		}
		if err := p.cmdb.Forward(ctx, entries); err != nil {
			p.log.Error("failed to forward cmdb facts", "job_id", req.JobID, "error", err)
		} else {
			result.CMDBFactsStored = true
		}
	}

	if req.Checkin != nil && p.checkin != nil {
		if _, err := p.checkin.Checkin(ctx, *req.Checkin, p.currentRevision); err != nil {
			p.log.Error("failed to apply piggybacked check-in", "job_id", req.JobID, "worker_id", req.WorkerID, "error", err)
		} else {
			result.CheckinProcessed = true
		}
	}

	if p.agent != nil {
		p.agent.Notify(ctx, agentwebhook.Payload{JobID: req.JobID, ExitCode: req.ExitCode})
	}

	p.ui.Emit(ctx, "job-completed", map[string]interface{}{"job_id": req.JobID, "status": string(completed.Status)})
	if result.LogStored {
		p.ui.Emit(ctx, "review-ready", map[string]interface{}{"job_id": req.JobID})
	}

	return result, nil
}

// updateWorkerStats applies spec §4.10 step 4-5: increments the
// completed/failed counter, recomputes the running-mean job duration, sets
// last_job_completed, and removes jobID from current_jobs.
func (p *Pipeline) updateWorkerStats(ctx context.Context, workerID, jobID string, status model.JobStatus, duration float64) error {
	worker, err := p.workers.Get(ctx, workerID)
	if err != nil {
		return err
	}
	if worker == nil {
		return fmt.Errorf("completion: worker %s not found", workerID)
	}

	priorCount := worker.Stats.JobsCompleted + worker.Stats.JobsFailed
	if status == model.JobCompleted {
		worker.Stats.JobsCompleted++
	} else {
		worker.Stats.JobsFailed++
	}
	newCount := priorCount + 1
	worker.Stats.AvgJobDuration = (worker.Stats.AvgJobDuration*float64(priorCount) + duration) / float64(newCount)
	now := time.Now().UTC()
	worker.Stats.LastJobCompleted = &now

	worker.CurrentJobs.Remove(jobID)

	return p.workers.Update(ctx, worker)
}
