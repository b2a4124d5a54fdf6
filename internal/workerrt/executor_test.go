package workerrt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ansiblecluster/core/internal/model"
)

func TestResolvePlaybookPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "site.yml"), []byte("---\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	asGiven := filepath.Join(dir, "site")
	got := resolvePlaybookPath(asGiven)
	want := asGiven + ".yml"
	if got != want {
		t.Errorf("resolvePlaybookPath(%q) = %q, want %q", asGiven, got, want)
	}

	missing := filepath.Join(dir, "nowhere")
	if got := resolvePlaybookPath(missing); got != missing {
		t.Errorf("resolvePlaybookPath(%q) = %q, want fallback to as-given", missing, got)
	}
}

func TestBuildAnsibleArgs(t *testing.T) {
	args := buildAnsibleArgs("site.yml", "webservers", model.ExtraVars{"env": "staging"})

	if args[0] != "site.yml" || args[1] != "-i" || args[2] != "inventory" {
		t.Fatalf("unexpected base args: %v", args)
	}
	if args[3] != "-l" || args[4] != "webservers" {
		t.Fatalf("expected -l webservers, got %v", args)
	}
	if args[5] != "-e" {
		t.Fatalf("expected -e flag for extra vars, got %v", args)
	}
}

func TestBuildAnsibleArgs_NoTargetNoExtraVars(t *testing.T) {
	args := buildAnsibleArgs("site.yml", "", nil)
	if len(args) != 3 {
		t.Fatalf("expected only playbook+inventory args, got %v", args)
	}
}

func TestClassifyStartError(t *testing.T) {
	code, msg := classifyStartError(os.ErrNotExist)
	if code != 127 || msg != "ansible-playbook not found" {
		t.Errorf("ErrNotExist: got (%d, %q)", code, msg)
	}

	code, _ = classifyStartError(os.ErrPermission)
	if code != 126 {
		t.Errorf("ErrPermission: got code %d, want 126", code)
	}

	code, msg = classifyStartError(errors.New("boom"))
	if code != 1 || msg != "boom" {
		t.Errorf("generic error: got (%d, %q)", code, msg)
	}
}
