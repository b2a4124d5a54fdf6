package dispatcher

import (
	"context"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/ansiblecluster/core/internal/metrics"
	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

// testutilCounterValue reads a Counter's current value without pulling in
// the prometheus/client_golang/testutil package, which this module does not
// otherwise depend on.
func testutilCounterValue(c prometheusCounter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

type prometheusCounter interface {
	Write(*dto.Metric) error
}

type fakeJobSource struct {
	pending   []*model.Job
	assigned  map[string]string
}

func (f *fakeJobSource) Pending(ctx context.Context) ([]*model.Job, error) {
	var out []*model.Job
	for _, j := range f.pending {
		if j.Status == model.JobQueued {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobSource) Assign(ctx context.Context, jobID, workerID string) (*model.Job, error) {
	if f.assigned == nil {
		f.assigned = make(map[string]string)
	}
	f.assigned[jobID] = workerID
	for _, j := range f.pending {
		if j.ID == jobID {
			j.Status = model.JobAssigned
			j.AssignedWorker = &workerID
		}
	}
	return nil, nil
}

type fakeWorkerSource struct {
	workers []*model.Worker
}

func (f *fakeWorkerSource) List(ctx context.Context) ([]*model.Worker, error) {
	return f.workers, nil
}

func testDispatcherLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// S2 from spec §8.
func TestDispatcher_S2TagFiltering(t *testing.T) {
	w1 := &model.Worker{ID: "w1", Status: model.WorkerOnline, Tags: model.NewStringSet("gpu", "net-a"), CurrentJobs: model.NewStringSet()}
	w2 := &model.Worker{ID: "w2", Status: model.WorkerOnline, Tags: model.NewStringSet("cpu", "net-b"), CurrentJobs: model.NewStringSet()}

	j1 := &model.Job{ID: "j1", Status: model.JobQueued, RequiredTags: model.NewStringSet("gpu")}
	j2 := &model.Job{ID: "j2", Status: model.JobQueued, RequiredTags: model.NewStringSet("cpu")}

	jobs := &fakeJobSource{pending: []*model.Job{j1, j2}}
	workers := &fakeWorkerSource{workers: []*model.Worker{w1, w2}}
	d := New(testDispatcherLogger(t), jobs, workers)

	n, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 assignments, got %d", n)
	}
	if jobs.assigned["j1"] != "w1" {
		t.Errorf("expected j1 assigned to w1, got %s", jobs.assigned["j1"])
	}
	if jobs.assigned["j2"] != "w2" {
		t.Errorf("expected j2 assigned to w2, got %s", jobs.assigned["j2"])
	}
}

// S3 from spec §8: local-last.
func TestDispatcher_S3LocalLast(t *testing.T) {
	local := &model.Worker{ID: model.LocalWorkerID, Status: model.WorkerOnline, PriorityBoost: model.LocalWorkerPriorityBoost, IsLocal: true, Tags: model.NewStringSet(), CurrentJobs: model.NewStringSet()}
	remote := &model.Worker{ID: "r1", Status: model.WorkerOnline, PriorityBoost: 0, Tags: model.NewStringSet(), CurrentJobs: model.NewStringSet()}

	j1 := &model.Job{ID: "j1", Status: model.JobQueued, RequiredTags: model.NewStringSet()}
	jobs := &fakeJobSource{pending: []*model.Job{j1}}
	workers := &fakeWorkerSource{workers: []*model.Worker{local, remote}}
	d := New(testDispatcherLogger(t), jobs, workers)

	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if jobs.assigned["j1"] != "r1" {
		t.Fatalf("expected first job assigned to remote worker, got %s", jobs.assigned["j1"])
	}

	// Remote is now full; a second job must fall through to local.
	remote.CurrentJobs.Add("j1")
	j2 := &model.Job{ID: "j2", Status: model.JobQueued, RequiredTags: model.NewStringSet()}
	jobs.pending = append(jobs.pending, j2)

	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if jobs.assigned["j2"] != model.LocalWorkerID {
		t.Fatalf("expected second job assigned to local worker once remote is full, got %s", jobs.assigned["j2"])
	}
}

func TestDispatcher_WorkerAtCapacityReceivesNoAssignment(t *testing.T) {
	w := &model.Worker{ID: "w1", Status: model.WorkerOnline, Tags: model.NewStringSet(), CurrentJobs: model.NewStringSet("existing")}
	w.Stats.MaxConcurrent = 1

	j := &model.Job{ID: "j1", Status: model.JobQueued, RequiredTags: model.NewStringSet()}
	jobs := &fakeJobSource{pending: []*model.Job{j}}
	workers := &fakeWorkerSource{workers: []*model.Worker{w}}
	d := New(testDispatcherLogger(t), jobs, workers)

	n, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 assignments for a worker at capacity, got %d", n)
	}
}

func TestDispatcher_UnmatchableJobDoesNotBlockOthers(t *testing.T) {
	w := &model.Worker{ID: "w1", Status: model.WorkerOnline, Tags: model.NewStringSet("cpu"), CurrentJobs: model.NewStringSet()}

	unmatchable := &model.Job{ID: "j1", Status: model.JobQueued, Priority: 100, RequiredTags: model.NewStringSet("gpu")}
	matchable := &model.Job{ID: "j2", Status: model.JobQueued, Priority: 1, RequiredTags: model.NewStringSet("cpu")}

	jobs := &fakeJobSource{pending: []*model.Job{unmatchable, matchable}}
	workers := &fakeWorkerSource{workers: []*model.Worker{w}}
	d := New(testDispatcherLogger(t), jobs, workers)

	n, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 || jobs.assigned["j2"] != "w1" {
		t.Fatalf("expected the matchable job to be assigned despite the unmatchable one being first, got %v", jobs.assigned)
	}
}

func TestDispatcher_RunOnceRecordsMetricsWhenAttached(t *testing.T) {
	w := &model.Worker{ID: "w1", Status: model.WorkerOnline, Tags: model.NewStringSet(), CurrentJobs: model.NewStringSet()}
	j := &model.Job{ID: "j1", Status: model.JobQueued, RequiredTags: model.NewStringSet()}

	jobs := &fakeJobSource{pending: []*model.Job{j}}
	workers := &fakeWorkerSource{workers: []*model.Worker{w}}
	d := New(testDispatcherLogger(t), jobs, workers)

	m := metrics.New()
	d.SetMetrics(m)

	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if got := testutilCounterValue(m.DispatchedTotal); got != 1 {
		t.Errorf("expected DispatchedTotal to record 1 assignment, got %v", got)
	}
}
