// Package dispatcher implements the Dispatcher (C6): it matches queued
// jobs to eligible workers by tag and scoring rules, and transitions
// assignments.
package dispatcher

import (
	"context"
	"sort"
	"time"

	"github.com/ansiblecluster/core/internal/metrics"
	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

// JobSource is the slice of internal/queue the dispatcher consumes.
type JobSource interface {
	Pending(ctx context.Context) ([]*model.Job, error)
	Assign(ctx context.Context, jobID, workerID string) (*model.Job, error)
}

// WorkerSource is the slice of internal/registry the dispatcher consumes.
type WorkerSource interface {
	List(ctx context.Context) ([]*model.Worker, error)
}

type Dispatcher struct {
	log     *logger.Logger
	jobs    JobSource
	workers WorkerSource
	metrics *metrics.Metrics

	triggerCh chan struct{}
}

func New(log *logger.Logger, jobs JobSource, workers WorkerSource) *Dispatcher {
	return &Dispatcher{
		log:       log.With("component", "dispatcher"),
		jobs:      jobs,
		workers:   workers,
		triggerCh: make(chan struct{}, 1),
	}
}

// SetMetrics attaches m so RunOnce records assignment counts and pass
// latency; safe to leave unset, in which case RunOnce records nothing.
func (d *Dispatcher) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// Trigger schedules an assignment pass; safe to call from any goroutine
// whenever pending() changes or a worker becomes online/idle (spec §4.6).
// Non-blocking: multiple triggers before the pass runs collapse into one.
func (d *Dispatcher) Trigger() {
	select {
	case d.triggerCh <- struct{}{}:
	default:
	}
}

// eligible reports whether worker W qualifies for job J per spec §4.6's
// eligibility rule.
func eligible(job *model.Job, worker *model.Worker) bool {
	if worker.Status != model.WorkerOnline {
		return false
	}
	if !worker.HasCapacity() {
		return false
	}
	return job.RequiredTags.Subset(worker.Tags)
}

// score ranks workers for a job via the tie-break chain in spec §4.6:
// preferred-tag overlap, then priority_boost, then load, then a
// deterministic lexicographic id fallback. Returns true if a is preferred
// over b.
func scoreLess(job *model.Job, a, b *model.Worker) bool {
	aPref := job.PreferredTags.Intersection(a.Tags)
	bPref := job.PreferredTags.Intersection(b.Tags)
	if aPref != bPref {
		return aPref > bPref
	}
	if a.PriorityBoost != b.PriorityBoost {
		return a.PriorityBoost > b.PriorityBoost
	}
	aLoad := len(a.CurrentJobs)
	bLoad := len(b.CurrentJobs)
	if aLoad != bLoad {
		return aLoad < bLoad
	}
	if a.Stats.Load1m != b.Stats.Load1m {
		return a.Stats.Load1m < b.Stats.Load1m
	}
	return a.ID < b.ID
}

// BestWorker returns the highest-scoring eligible worker for job, or nil if
// none qualify.
func BestWorker(job *model.Job, workers []*model.Worker) *model.Worker {
	var candidates []*model.Worker
	for _, w := range workers {
		if eligible(job, w) {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return scoreLess(job, candidates[i], candidates[j])
	})
	return candidates[0]
}

// RunOnce performs one assignment pass: for each pending job in queue
// order, find the best eligible worker and assign it. Local, in-memory
// capacity bookkeeping tracks assignments made earlier in the same pass so
// a worker is never over-committed within one scan (spec §4.6's
// head-of-line-blocking-is-acceptable rule: an unmatched job is skipped,
// not retried, within the same pass).
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	if d.metrics != nil {
		start := time.Now()
		defer func() {
			d.metrics.DispatchPass.Observe(time.Since(start).Seconds())
		}()
	}

	pending, err := d.jobs.Pending(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	workers, err := d.workers.List(ctx)
	if err != nil {
		return 0, err
	}

	byID := make(map[string]*model.Worker, len(workers))
	for _, w := range workers {
		clone := *w
		clone.CurrentJobs = model.NewStringSet(w.CurrentJobs.Slice()...)
		byID[w.ID] = &clone
	}

	assigned := 0
	for _, job := range pending {
		candidates := make([]*model.Worker, 0, len(byID))
		for _, w := range byID {
			candidates = append(candidates, w)
		}

		best := BestWorker(job, candidates)
		if best == nil {
			continue
		}

		if _, err := d.jobs.Assign(ctx, job.ID, best.ID); err != nil {
			d.log.Error("assignment failed", "job_id", job.ID, "worker_id", best.ID, "error", err)
			continue
		}
		best.CurrentJobs.Add(job.ID)
		assigned++
	}
	if d.metrics != nil && assigned > 0 {
		d.metrics.DispatchedTotal.Add(float64(assigned))
	}
	return assigned, nil
}

// Run drives the dispatcher as either a triggered or polling loop (spec
// §4.6 tolerates both): it wakes on Trigger() or every pollInterval,
// whichever comes first.
func (d *Dispatcher) Run(ctx context.Context, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.triggerCh:
		case <-ticker.C:
		}
		if _, err := d.RunOnce(ctx); err != nil {
			d.log.Error("dispatch pass failed", "error", err)
		}
	}
}
