package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestWorkerRepo_CreateGetListDelete(t *testing.T) {
	db, err := OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("OpenSQLiteMemory: %v", err)
	}
	ctx := context.Background()
	repo := NewWorkerRepo(db, testLogger(t))

	now := time.Now().UTC()
	w := &model.Worker{
		ID:            uuid.New().String(),
		Name:          "worker-1",
		Tags:          model.NewStringSet("gpu", "net-a"),
		PriorityBoost: 0,
		Status:        model.WorkerOnline,
		CurrentJobs:   model.NewStringSet(),
		RegisteredAt:  now,
		LastCheckin:   now,
	}
	if err := repo.Create(ctx, nil, w); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByName(ctx, nil, "worker-1")
	if err != nil || got == nil {
		t.Fatalf("GetByName: %v, got=%v", err, got)
	}
	if !got.Tags.Contains("gpu") {
		t.Errorf("expected tags to round-trip, got %v", got.Tags)
	}

	exists, err := repo.Exists(ctx, nil, w.ID)
	if err != nil || !exists {
		t.Fatalf("Exists: %v, %v", err, exists)
	}

	list, err := repo.List(ctx, nil)
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v, len=%d", err, len(list))
	}

	if err := repo.Delete(ctx, nil, w.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err = repo.GetByID(ctx, nil, w.ID)
	if err != nil || got != nil {
		t.Fatalf("expected nil after delete, got %v, err=%v", got, err)
	}
}
