package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

type RoleRepo interface {
	Create(ctx context.Context, tx *gorm.DB, role *model.Role) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Role, error)
	List(ctx context.Context, tx *gorm.DB) ([]*model.Role, error)
	Update(ctx context.Context, tx *gorm.DB, role *model.Role) error
	Delete(ctx context.Context, tx *gorm.DB, id string) error
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
}

type roleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRoleRepo(db *gorm.DB, baseLog *logger.Logger) RoleRepo {
	return &roleRepo{db: db, log: baseLog.With("repo", "RoleRepo")}
}

func (r *roleRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *roleRepo) Create(ctx context.Context, tx *gorm.DB, role *model.Role) error {
	return r.tx(tx).WithContext(ctx).Create(role).Error
}

func (r *roleRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Role, error) {
	var role model.Role
	err := r.tx(tx).WithContext(ctx).Where("id = ?", id).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepo) List(ctx context.Context, tx *gorm.DB) ([]*model.Role, error) {
	var roles []*model.Role
	err := r.tx(tx).WithContext(ctx).Find(&roles).Error
	return roles, err
}

func (r *roleRepo) Update(ctx context.Context, tx *gorm.DB, role *model.Role) error {
	return r.tx(tx).WithContext(ctx).Save(role).Error
}

func (r *roleRepo) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	return r.tx(tx).WithContext(ctx).Delete(&model.Role{}, "id = ?", id).Error
}

func (r *roleRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	var count int64
	err := r.tx(tx).WithContext(ctx).Model(&model.Role{}).Count(&count).Error
	return count, err
}

// RoleSourceAdapter exposes a RoleRepo as an authz.RoleSource so the
// Permission Engine can resolve roles straight from storage.
type RoleSourceAdapter struct {
	Repo RoleRepo
}

func (a RoleSourceAdapter) Roles(ctx context.Context) (map[string]model.Role, error) {
	roles, err := a.Repo.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Role, len(roles))
	for _, role := range roles {
		out[role.ID] = *role
	}
	return out, nil
}
