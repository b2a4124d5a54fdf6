package workerrt

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSyncer_LocalManifest(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "playbooks"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "playbooks", "site.yml"), []byte("---\nhello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := &Syncer{contentDir: dir}
	manifest, err := s.localManifest()
	if err != nil {
		t.Fatalf("localManifest: %v", err)
	}

	entry, ok := manifest["playbooks/site.yml"]
	if !ok {
		t.Fatalf("expected playbooks/site.yml in manifest, got %v", manifest)
	}
	if entry.Size != int64(len("---\nhello\n")) {
		t.Errorf("size = %d, want %d", entry.Size, len("---\nhello\n"))
	}
	if entry.SHA256 == "" {
		t.Error("expected non-empty sha256")
	}
}

func TestSyncer_EnsureDirs(t *testing.T) {
	dir := t.TempDir()
	s := &Syncer{contentDir: dir}
	if err := s.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, sub := range []string{"playbooks", "inventory", "library", "callback_plugins"} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			t.Errorf("expected dir %s to exist", sub)
		}
	}
}
