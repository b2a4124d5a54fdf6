package storage

import (
	"context"
	"time"

	"github.com/ansiblecluster/core/internal/model"
)

// UserStoreAdapter, TokenStoreAdapter and WorkerExistsAdapter narrow the
// storage repos to the exact shapes internal/accessguard.Guard needs,
// keeping the guard package free of a gorm import.

type UserStoreAdapter struct{ Repo UserRepo }

func (a UserStoreAdapter) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return a.Repo.GetByID(ctx, nil, id)
}

type TokenStoreAdapter struct{ Repo APITokenRepo }

func (a TokenStoreAdapter) GetAPITokenByHash(ctx context.Context, hash string) (*model.APIToken, error) {
	return a.Repo.GetByHash(ctx, nil, hash)
}

func (a TokenStoreAdapter) TouchAPIToken(ctx context.Context, id string, when time.Time) error {
	return a.Repo.TouchLastUsed(ctx, nil, id, when)
}

type WorkerExistsAdapter struct{ Repo WorkerRepo }

func (a WorkerExistsAdapter) WorkerExists(ctx context.Context, id string) bool {
	ok, err := a.Repo.Exists(ctx, nil, id)
	return err == nil && ok
}

// AuditAppenderAdapter narrows AuditRepo to the single-method shape
// internal/audit.Emitter needs.
type AuditAppenderAdapter struct{ Repo AuditRepo }

func (a AuditAppenderAdapter) AppendEntry(ctx context.Context, entry *model.AuditEntry) error {
	return a.Repo.Append(ctx, nil, entry)
}

// WorkerStatsAdapter narrows WorkerRepo to the plain Get/Update shape
// internal/completion needs to update a worker's stats and current_jobs
// after a job finishes.
type WorkerStatsAdapter struct{ Repo WorkerRepo }

func (a WorkerStatsAdapter) Get(ctx context.Context, id string) (*model.Worker, error) {
	return a.Repo.GetByID(ctx, nil, id)
}

func (a WorkerStatsAdapter) Update(ctx context.Context, worker *model.Worker) error {
	return a.Repo.Update(ctx, nil, worker)
}
