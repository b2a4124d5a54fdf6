package contentstore

import (
	"bytes"
	"context"
	"os"
	"sync"
	"testing"

	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	s, err := New(log, dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestCommit_IdenticalContentYieldsSameRevision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rev1, err := s.Commit(ctx, ChangeSet{Write: map[string][]byte{
		"playbooks/hello.yml": []byte("- hosts: all\n"),
	}})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rev2, err := s.Commit(ctx, ChangeSet{Write: map[string][]byte{
		"playbooks/hello.yml": []byte("- hosts: all\n"),
	}})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if rev1 != rev2 {
		t.Errorf("expected idempotent commit to yield the same revision, got %q and %q", rev1, rev2)
	}
}

func TestCommit_DifferentContentYieldsDifferentRevision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	initial := s.CurrentRevision()

	rev, err := s.Commit(ctx, ChangeSet{Write: map[string][]byte{
		"playbooks/hello.yml": []byte("- hosts: all\n"),
	}})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if rev == initial {
		t.Error("expected revision to change after committing new content")
	}
}

func TestFile_RejectsPathEscape(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.File(ctx, "../../etc/passwd"); err != ErrPathEscape {
		t.Errorf("expected ErrPathEscape, got %v", err)
	}
}

func TestArchiveRoundTripsThroughSafeExtract(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Commit(ctx, ChangeSet{Write: map[string][]byte{
		"playbooks/hello.yml":       []byte("- hosts: all\n"),
		"inventory/hosts":           []byte("localhost\n"),
		"library/custom_module.py":  []byte("# module\n"),
	}}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var buf bytes.Buffer
	if err := s.Archive(ctx, &buf); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	destDir := t.TempDir()
	if err := SafeExtract(&buf, destDir); err != nil {
		t.Fatalf("SafeExtract: %v", err)
	}

	content, err := os.ReadFile(destDir + "/playbooks/hello.yml")
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(content) != "- hosts: all\n" {
		t.Errorf("unexpected extracted content: %q", content)
	}
}

func TestSafeExtract_RejectsParentEscape(t *testing.T) {
	var buf bytes.Buffer
	writeMaliciousTar(t, &buf, "../../etc/passwd", "pwned")

	destDir := t.TempDir()
	err := SafeExtract(&buf, destDir)
	if err == nil {
		t.Fatal("expected SafeExtract to reject a ../ escaping member")
	}
}

func TestSafeExtract_RejectsAbsolutePath(t *testing.T) {
	var buf bytes.Buffer
	writeMaliciousTar(t, &buf, "/etc/passwd", "pwned")

	destDir := t.TempDir()
	err := SafeExtract(&buf, destDir)
	if err == nil {
		t.Fatal("expected SafeExtract to reject an absolute path member")
	}
}

func TestManifest_ConcurrentCallsAgree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Commit(ctx, ChangeSet{Write: map[string][]byte{
		"playbooks/site.yml": []byte("---\n"),
	}}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]model.Manifest, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Manifest(ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Manifest() call %d: %v", i, err)
		}
		if len(results[i]) != 1 {
			t.Fatalf("Manifest() call %d: got %d entries, want 1", i, len(results[i]))
		}
	}
}
