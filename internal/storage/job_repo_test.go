package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ansiblecluster/core/internal/model"
)

// S1 from spec §8: pending() must order strictly by priority desc, then
// submitted_at asc on ties.
func TestJobRepo_Pending_OrdersByPriorityThenSubmittedAt(t *testing.T) {
	db, err := OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("OpenSQLiteMemory: %v", err)
	}
	ctx := context.Background()
	repo := NewJobRepo(db, testLogger(t))

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	jobs := []*model.Job{
		{ID: uuid.New().String(), Playbook: "a", Priority: 25, Status: model.JobQueued, SubmittedAt: base},
		{ID: uuid.New().String(), Playbook: "b", Priority: 90, Status: model.JobQueued, SubmittedAt: base.Add(time.Hour)},
		{ID: uuid.New().String(), Playbook: "c", Priority: 50, Status: model.JobQueued, SubmittedAt: base.Add(30 * time.Minute)},
	}
	for _, j := range jobs {
		if err := repo.Create(ctx, nil, j); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	pending, err := repo.Pending(ctx, nil)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending jobs, got %d", len(pending))
	}
	want := []string{"b", "c", "a"}
	for i, j := range pending {
		if j.Playbook != want[i] {
			t.Errorf("position %d: got %s, want %s", i, j.Playbook, want[i])
		}
	}
}

func TestJobRepo_ByWorker_FiltersByStatus(t *testing.T) {
	db, err := OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("OpenSQLiteMemory: %v", err)
	}
	ctx := context.Background()
	repo := NewJobRepo(db, testLogger(t))

	workerID := "w1"
	now := time.Now().UTC()
	running := &model.Job{ID: uuid.New().String(), Playbook: "x", Status: model.JobRunning, AssignedWorker: &workerID, SubmittedAt: now}
	completed := &model.Job{ID: uuid.New().String(), Playbook: "y", Status: model.JobCompleted, AssignedWorker: &workerID, SubmittedAt: now}
	for _, j := range []*model.Job{running, completed} {
		if err := repo.Create(ctx, nil, j); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := repo.ByWorker(ctx, nil, workerID, []model.JobStatus{model.JobRunning})
	if err != nil {
		t.Fatalf("ByWorker: %v", err)
	}
	if len(got) != 1 || got[0].Playbook != "x" {
		t.Fatalf("expected only the running job, got %v", got)
	}
}
