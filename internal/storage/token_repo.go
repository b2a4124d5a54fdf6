package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

type APITokenRepo interface {
	Create(ctx context.Context, tx *gorm.DB, token *model.APIToken) error
	GetByHash(ctx context.Context, tx *gorm.DB, hash string) (*model.APIToken, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*model.APIToken, error)
	TouchLastUsed(ctx context.Context, tx *gorm.DB, id string, when time.Time) error
	Delete(ctx context.Context, tx *gorm.DB, id string) error
}

type apiTokenRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAPITokenRepo(db *gorm.DB, baseLog *logger.Logger) APITokenRepo {
	return &apiTokenRepo{db: db, log: baseLog.With("repo", "APITokenRepo")}
}

func (r *apiTokenRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *apiTokenRepo) Create(ctx context.Context, tx *gorm.DB, token *model.APIToken) error {
	return r.tx(tx).WithContext(ctx).Create(token).Error
}

func (r *apiTokenRepo) GetByHash(ctx context.Context, tx *gorm.DB, hash string) (*model.APIToken, error) {
	var token model.APIToken
	err := r.tx(tx).WithContext(ctx).Where("token_hash = ?", hash).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *apiTokenRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*model.APIToken, error) {
	var tokens []*model.APIToken
	err := r.tx(tx).WithContext(ctx).Where("user_id = ?", userID).Find(&tokens).Error
	return tokens, err
}

func (r *apiTokenRepo) TouchLastUsed(ctx context.Context, tx *gorm.DB, id string, when time.Time) error {
	return r.tx(tx).WithContext(ctx).Model(&model.APIToken{}).Where("id = ?", id).Update("last_used", when).Error
}

func (r *apiTokenRepo) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	return r.tx(tx).WithContext(ctx).Delete(&model.APIToken{}, "id = ?", id).Error
}
