package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

type JobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *model.Job) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Job, error)
	List(ctx context.Context, tx *gorm.DB, filter model.JobFilter) ([]*model.Job, error)
	Pending(ctx context.Context, tx *gorm.DB) ([]*model.Job, error)
	ByWorker(ctx context.Context, tx *gorm.DB, workerID string, statuses []model.JobStatus) ([]*model.Job, error)
	Update(ctx context.Context, tx *gorm.DB, job *model.Job) error
	DeleteMany(ctx context.Context, tx *gorm.DB, ids []string) error
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{db: db, log: baseLog.With("repo", "JobRepo")}
}

func (r *jobRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *jobRepo) Create(ctx context.Context, tx *gorm.DB, job *model.Job) error {
	return r.tx(tx).WithContext(ctx).Create(job).Error
}

func (r *jobRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Job, error) {
	var j model.Job
	err := r.tx(tx).WithContext(ctx).Where("id = ?", id).First(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *jobRepo) List(ctx context.Context, tx *gorm.DB, filter model.JobFilter) ([]*model.Job, error) {
	q := r.tx(tx).WithContext(ctx).Model(&model.Job{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Playbook != "" {
		q = q.Where("playbook = ?", filter.Playbook)
	}
	if filter.AssignedWorker != "" {
		q = q.Where("assigned_worker = ?", filter.AssignedWorker)
	}

	var jobs []*model.Job
	err := q.Order("submitted_at DESC").Find(&jobs).Error
	return jobs, err
}

// Pending returns every queued job ordered exactly as the Dispatcher
// requires: priority desc, submitted_at asc (spec §4.5, §8 invariant 2).
func (r *jobRepo) Pending(ctx context.Context, tx *gorm.DB) ([]*model.Job, error) {
	var jobs []*model.Job
	err := r.tx(tx).WithContext(ctx).
		Where("status = ?", model.JobQueued).
		Order("priority DESC, submitted_at ASC").
		Find(&jobs).Error
	return jobs, err
}

func (r *jobRepo) ByWorker(ctx context.Context, tx *gorm.DB, workerID string, statuses []model.JobStatus) ([]*model.Job, error) {
	q := r.tx(tx).WithContext(ctx).Where("assigned_worker = ?", workerID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var jobs []*model.Job
	err := q.Order("submitted_at DESC").Find(&jobs).Error
	return jobs, err
}

func (r *jobRepo) Update(ctx context.Context, tx *gorm.DB, job *model.Job) error {
	return r.tx(tx).WithContext(ctx).Save(job).Error
}

func (r *jobRepo) DeleteMany(ctx context.Context, tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.tx(tx).WithContext(ctx).Delete(&model.Job{}, "id IN ?", ids).Error
}
