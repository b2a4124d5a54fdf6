package storage

import (
	"context"

	"gorm.io/gorm"

	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

// AuditRepo persists the entry shape named in spec §1/§6; the actual
// export/retention format is an external concern, so this repo only ever
// appends and lists.
type AuditRepo interface {
	Append(ctx context.Context, tx *gorm.DB, entry *model.AuditEntry) error
	List(ctx context.Context, tx *gorm.DB, limit int) ([]*model.AuditEntry, error)
}

type auditRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditRepo(db *gorm.DB, baseLog *logger.Logger) AuditRepo {
	return &auditRepo{db: db, log: baseLog.With("repo", "AuditRepo")}
}

func (r *auditRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *auditRepo) Append(ctx context.Context, tx *gorm.DB, entry *model.AuditEntry) error {
	return r.tx(tx).WithContext(ctx).Create(entry).Error
}

func (r *auditRepo) List(ctx context.Context, tx *gorm.DB, limit int) ([]*model.AuditEntry, error) {
	var entries []*model.AuditEntry
	q := r.tx(tx).WithContext(ctx).Order("occurred_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&entries).Error
	return entries, err
}
