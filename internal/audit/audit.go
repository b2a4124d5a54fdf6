// Package audit provides the emission point privileged operations call
// into; persistence, export, and retention are named only as an external
// concern (spec §1), so this package does nothing beyond appending an
// entry through the narrow Recorder interface storage.AuditRepo satisfies.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

// Emitter records privileged actions without letting callers depend on
// gorm or the concrete repo type directly.
type Emitter struct {
	log  *logger.Logger
	repo auditAppender
}

// auditAppender matches storage.AuditRepo's Append signature without
// importing gorm into this package.
type auditAppender interface {
	AppendEntry(ctx context.Context, entry *model.AuditEntry) error
}

func New(log *logger.Logger, repo auditAppender) *Emitter {
	return &Emitter{log: log.With("component", "audit"), repo: repo}
}

// Record appends one entry; failures are logged, never propagated, since a
// failed audit write must not block the operation being audited.
func (e *Emitter) Record(ctx context.Context, principal, action, resource string, allowed bool) {
	entry := &model.AuditEntry{
		ID:         uuid.New().String(),
		Principal:  principal,
		Action:     action,
		Resource:   resource,
		Allowed:    allowed,
		OccurredAt: time.Now().UTC(),
	}
	if err := e.repo.AppendEntry(ctx, entry); err != nil {
		e.log.Error("failed to record audit entry", "error", err, "action", action, "resource", resource)
	}
}
