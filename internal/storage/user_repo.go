package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

type UserRepo interface {
	Create(ctx context.Context, tx *gorm.DB, user *model.User) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.User, error)
	GetByUsername(ctx context.Context, tx *gorm.DB, username string) (*model.User, error)
	List(ctx context.Context, tx *gorm.DB) ([]*model.User, error)
	Update(ctx context.Context, tx *gorm.DB, user *model.User) error
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

func (r *userRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *userRepo) Create(ctx context.Context, tx *gorm.DB, user *model.User) error {
	return r.tx(tx).WithContext(ctx).Create(user).Error
}

func (r *userRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.User, error) {
	var u model.User
	err := r.tx(tx).WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByUsername(ctx context.Context, tx *gorm.DB, username string) (*model.User, error) {
	var u model.User
	err := r.tx(tx).WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) List(ctx context.Context, tx *gorm.DB) ([]*model.User, error) {
	var users []*model.User
	err := r.tx(tx).WithContext(ctx).Find(&users).Error
	return users, err
}

func (r *userRepo) Update(ctx context.Context, tx *gorm.DB, user *model.User) error {
	return r.tx(tx).WithContext(ctx).Save(user).Error
}
