package registry

import (
	"context"
	"testing"
	"time"

	"github.com/ansiblecluster/core/internal/pkg/logger"
	"github.com/ansiblecluster/core/internal/storage"
)

func newTestRegistry(t *testing.T, jobs JobRecovery) (*Registry, storage.WorkerRepo) {
	t.Helper()
	db, err := storage.OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("OpenSQLiteMemory: %v", err)
	}
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	workers := storage.NewWorkerRepo(db, log)
	return New(log, workers, jobs, "shared-secret", 60*time.Second), workers
}

func TestRegister_ReRegistrationPreservesID(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	first, err := reg.Register(ctx, RegisterRequest{Name: "w1", Tags: []string{"gpu"}, Token: "shared-secret"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	second, err := reg.Register(ctx, RegisterRequest{Name: "w1", Tags: []string{"gpu", "net-a"}, Token: "shared-secret"})
	if err != nil {
		t.Fatalf("Register (re-registration): %v", err)
	}

	if first.WorkerID != second.WorkerID {
		t.Errorf("expected same worker id across re-registration, got %s and %s", first.WorkerID, second.WorkerID)
	}

	w, err := reg.Get(ctx, second.WorkerID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !w.Tags.Contains("net-a") {
		t.Errorf("expected re-registration to update tags, got %v", w.Tags)
	}
}

func TestRegister_RejectsBadToken(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	_, err := reg.Register(context.Background(), RegisterRequest{Name: "w1", Token: "wrong"})
	if err == nil {
		t.Fatal("expected registration with a bad token to fail")
	}
}

func TestDelete_RefusesLocalWorker(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	if err := reg.EnsureLocalWorker(ctx); err != nil {
		t.Fatalf("EnsureLocalWorker: %v", err)
	}
	if err := reg.Delete(ctx, "__local__"); err == nil {
		t.Fatal("expected deleting the local worker to fail")
	}
}

type fakeJobRecovery struct {
	requeuedWorkerID string
	called           bool
}

func (f *fakeJobRecovery) RequeueForWorker(ctx context.Context, workerID, reason string) (int, error) {
	f.called = true
	f.requeuedWorkerID = workerID
	return 1, nil
}

// S4 from spec §8: a worker that missed check-ins beyond 2*checkin_interval
// must be marked stale and trigger job recovery.
func TestSweepStale_MarksStaleAndRecoversJobs(t *testing.T) {
	recovery := &fakeJobRecovery{}
	reg, repo := newTestRegistry(t, recovery)
	ctx := context.Background()

	res, err := reg.Register(ctx, RegisterRequest{Name: "w1", Token: "shared-secret"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	w, err := repo.GetByID(ctx, nil, res.WorkerID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	w.LastCheckin = time.Now().UTC().Add(-time.Hour)
	if err := repo.Update(ctx, nil, w); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := reg.SweepStale(ctx); err != nil {
		t.Fatalf("SweepStale: %v", err)
	}

	got, err := reg.Get(ctx, res.WorkerID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "stale" {
		t.Errorf("expected worker status stale, got %s", got.Status)
	}
	if !recovery.called || recovery.requeuedWorkerID != res.WorkerID {
		t.Error("expected job recovery to be triggered for the stale worker")
	}
}

func TestSweepStale_LocalWorkerImmune(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	if err := reg.EnsureLocalWorker(ctx); err != nil {
		t.Fatalf("EnsureLocalWorker: %v", err)
	}

	if err := reg.SweepStale(ctx); err != nil {
		t.Fatalf("SweepStale: %v", err)
	}

	w, err := reg.Get(ctx, "__local__")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if w.Status == "stale" {
		t.Error("the local worker must never be marked stale")
	}
}
