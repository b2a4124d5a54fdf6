package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

type WorkerRepo interface {
	Create(ctx context.Context, tx *gorm.DB, worker *model.Worker) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Worker, error)
	GetByName(ctx context.Context, tx *gorm.DB, name string) (*model.Worker, error)
	List(ctx context.Context, tx *gorm.DB) ([]*model.Worker, error)
	Update(ctx context.Context, tx *gorm.DB, worker *model.Worker) error
	Delete(ctx context.Context, tx *gorm.DB, id string) error
	Exists(ctx context.Context, tx *gorm.DB, id string) (bool, error)
}

type workerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkerRepo(db *gorm.DB, baseLog *logger.Logger) WorkerRepo {
	return &workerRepo{db: db, log: baseLog.With("repo", "WorkerRepo")}
}

func (r *workerRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *workerRepo) Create(ctx context.Context, tx *gorm.DB, worker *model.Worker) error {
	return r.tx(tx).WithContext(ctx).Create(worker).Error
}

func (r *workerRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Worker, error) {
	var w model.Worker
	err := r.tx(tx).WithContext(ctx).Where("id = ?", id).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *workerRepo) GetByName(ctx context.Context, tx *gorm.DB, name string) (*model.Worker, error) {
	var w model.Worker
	err := r.tx(tx).WithContext(ctx).Where("name = ?", name).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *workerRepo) List(ctx context.Context, tx *gorm.DB) ([]*model.Worker, error) {
	var workers []*model.Worker
	err := r.tx(tx).WithContext(ctx).Order("registered_at DESC").Find(&workers).Error
	return workers, err
}

func (r *workerRepo) Update(ctx context.Context, tx *gorm.DB, worker *model.Worker) error {
	return r.tx(tx).WithContext(ctx).Save(worker).Error
}

func (r *workerRepo) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	return r.tx(tx).WithContext(ctx).Delete(&model.Worker{}, "id = ?", id).Error
}

func (r *workerRepo) Exists(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	var count int64
	err := r.tx(tx).WithContext(ctx).Model(&model.Worker{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}
