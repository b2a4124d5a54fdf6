package logbroker

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ansiblecluster/core/internal/pkg/logger"
)

func newTestBroker(t *testing.T) (*Broker, *FileStore) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return New(log, store), store
}

func TestBroker_LateJoinerSeesBacklogThenLiveChunks(t *testing.T) {
	b, _ := newTestBroker(t)

	header := []byte("=== job header ===\n")
	if err := b.StreamChunk("job-1", header, false); err != nil {
		t.Fatalf("StreamChunk header: %v", err)
	}
	if err := b.StreamChunk("job-1", []byte("line 1\n"), true); err != nil {
		t.Fatalf("StreamChunk line1: %v", err)
	}

	sub, backlog, err := b.Subscribe("job-1", "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer b.Unsubscribe(sub)

	want := "=== job header ===\nline 1\n"
	if string(backlog) != want {
		t.Fatalf("backlog = %q, want %q", backlog, want)
	}

	if err := b.StreamChunk("job-1", []byte("line 2\n"), true); err != nil {
		t.Fatalf("StreamChunk line2: %v", err)
	}

	select {
	case ev := <-sub.Outbound:
		if string(ev.Content) != "line 2\n" {
			t.Errorf("live chunk = %q, want %q", ev.Content, "line 2\n")
		}
		if ev.Final {
			t.Error("did not expect a final event yet")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live chunk")
	}
}

func TestBroker_FinalizeDeliversCompletionAndRenames(t *testing.T) {
	b, store := newTestBroker(t)

	if err := b.StreamChunk("job-2", []byte("hello\n"), false); err != nil {
		t.Fatalf("StreamChunk: %v", err)
	}

	sub, _, err := b.Subscribe("job-2", "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer b.Unsubscribe(sub)

	filename := FinalFilename("deploy", "job-2-long-id", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	content, err := b.Finalize("job-2", filename, nil)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if string(content) != "hello\n" {
		t.Errorf("final content = %q, want %q", content, "hello\n")
	}

	select {
	case ev := <-sub.Outbound:
		if !ev.Final || ev.Filename != filename {
			t.Errorf("expected final event for %s, got %+v", filename, ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for final event")
	}

	// Partial artifact must be gone; final artifact must be readable.
	if b2, err := store.ReadPartial("job-2"); err != nil || len(b2) != 0 {
		t.Errorf("expected partial artifact removed, got %q (err=%v)", b2, err)
	}
	got, err := store.ReadFinal(filename)
	if err != nil {
		t.Fatalf("ReadFinal: %v", err)
	}
	if string(got) != "hello\n" {
		t.Errorf("ReadFinal = %q, want %q", got, "hello\n")
	}
}

func TestFinalFilename_UsesShortIDAndTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	got := FinalFilename("site", "abcdefgh-ijkl-mnop", ts)
	want := "site_abcdefgh_20260304050607.log"
	if got != want {
		t.Errorf("FinalFilename = %q, want %q", got, want)
	}
}

func TestBroker_SubscribeToCompletedJobReadsFinalArtifact(t *testing.T) {
	b, _ := newTestBroker(t)

	if err := b.StreamChunk("job-3", []byte("output\n"), false); err != nil {
		t.Fatalf("StreamChunk: %v", err)
	}
	filename := FinalFilename("site", "job-3", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if _, err := b.Finalize("job-3", filename, nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	sub, backlog, err := b.Subscribe("job-3", filename)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer b.Unsubscribe(sub)
	if string(backlog) != "output\n" {
		t.Errorf("backlog = %q, want %q", backlog, "output\n")
	}
}

func TestFileStore_CreatesNestedDirectoryForWriteChunk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore should create nested dirs: %v", err)
	}
	if err := store.WriteChunk("job-4", []byte("x"), false); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
}
