package audit

import (
	"context"
	"testing"

	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

type fakeAppender struct {
	entries []*model.AuditEntry
	fail    bool
}

func (f *fakeAppender) AppendEntry(ctx context.Context, entry *model.AuditEntry) error {
	if f.fail {
		return errFakeAppend
	}
	f.entries = append(f.entries, entry)
	return nil
}

var errFakeAppend = &fakeAppendError{}

type fakeAppendError struct{}

func (*fakeAppendError) Error() string { return "fake append error" }

func TestEmitter_RecordAppendsEntry(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	repo := &fakeAppender{}
	e := New(log, repo)

	e.Record(context.Background(), "alice", "jobs:submit", "job:123", true)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	got := repo.entries[0]
	if got.Principal != "alice" || got.Action != "jobs:submit" || got.Resource != "job:123" || !got.Allowed {
		t.Errorf("unexpected entry: %+v", got)
	}
	if got.ID == "" {
		t.Error("expected a generated id")
	}
}

func TestEmitter_RecordSwallowsAppendFailure(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	repo := &fakeAppender{fail: true}
	e := New(log, repo)

	// Must not panic or propagate; a failed audit write never blocks the
	// operation being audited.
	e.Record(context.Background(), "alice", "jobs:cancel", "job:999", false)
}
