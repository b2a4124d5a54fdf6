package syncnotify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ansiblecluster/core/internal/pkg/logger"
)

type fakeBus struct {
	mu        sync.Mutex
	published []Event
}

func (f *fakeBus) Publish(ctx context.Context, event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, event)
	return nil
}

func (f *fakeBus) StartForwarder(ctx context.Context, onEvent func(Event)) error { return nil }
func (f *fakeBus) Close() error                                                 { return nil }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestNotifier_OnCommit_PublishesRevisionAndShortForm(t *testing.T) {
	bus := &fakeBus{}
	n := New(testLogger(t), bus)

	n.OnCommit("0123456789abcdef")

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(bus.published))
	}
	got := bus.published[0]
	if got.Revision != "0123456789abcdef" {
		t.Errorf("revision = %q", got.Revision)
	}
	if got.ShortRevision != "01234567" {
		t.Errorf("short revision = %q, want %q", got.ShortRevision, "01234567")
	}
}

func TestNotifier_OnCommit_ShortRevisionPassesThroughWhenAlreadyShort(t *testing.T) {
	bus := &fakeBus{}
	n := New(testLogger(t), bus)

	n.OnCommit("abc")

	if bus.published[0].ShortRevision != "abc" {
		t.Errorf("expected short revision unchanged for a short input, got %q", bus.published[0].ShortRevision)
	}
}

func TestNotifier_OnCommit_ReturnsPromptly(t *testing.T) {
	bus := &fakeBus{}
	n := New(testLogger(t), bus)

	done := make(chan struct{})
	go func() {
		n.OnCommit("revA")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnCommit should return promptly")
	}
}
