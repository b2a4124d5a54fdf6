package workerrt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ansiblecluster/core/internal/contentstore"
	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

// Syncer keeps a worker's local content directory in step with the
// primary's Content Store (spec §4.9). Syncs are serialized by the caller
// (Runtime's main loop); Syncer itself holds no concurrency control.
type Syncer struct {
	log           *logger.Logger
	client        *APIClient
	contentDir    string
	localRevision string
}

func NewSyncer(log *logger.Logger, client *APIClient, contentDir string) *Syncer {
	return &Syncer{log: log.With("component", "workerrt.sync"), client: client, contentDir: contentDir}
}

func (s *Syncer) LocalRevision() string { return s.localRevision }

// EnsureDirs creates the four content subdirectories if missing.
func (s *Syncer) EnsureDirs() error {
	for _, dir := range model.BundleDirs {
		if err := os.MkdirAll(filepath.Join(s.contentDir, dir), 0o755); err != nil {
			return fmt.Errorf("workerrt: creating content dir %s: %w", dir, err)
		}
	}
	return nil
}

// CheckSyncNeeded compares the local revision against the primary's current
// revision.
func (s *Syncer) CheckSyncNeeded(ctx context.Context) (bool, string, error) {
	rev, err := s.client.Revision(ctx)
	if err != nil {
		return false, "", err
	}
	return rev != s.localRevision, rev, nil
}

// FullSync downloads the whole archive, snapshots the current content
// directories into a backup, replaces them with the archive contents, and
// discards the backup on success; on any failure the backup is restored.
func (s *Syncer) FullSync(ctx context.Context, serverRevision string) error {
	archive, err := s.client.Archive(ctx)
	if err != nil {
		return fmt.Errorf("workerrt: downloading archive: %w", err)
	}
	defer archive.Close()

	tmpFile, err := os.CreateTemp("", "ansiblecluster-sync-*.tar.gz")
	if err != nil {
		return fmt.Errorf("workerrt: creating temp archive: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)
	if _, err := io.Copy(tmpFile, archive); err != nil {
		tmpFile.Close()
		return fmt.Errorf("workerrt: writing temp archive: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("workerrt: closing temp archive: %w", err)
	}

	backupDir, err := os.MkdirTemp("", "ansiblecluster-backup-*")
	if err != nil {
		return fmt.Errorf("workerrt: creating backup dir: %w", err)
	}
	defer os.RemoveAll(backupDir)

	if err := s.snapshotInto(backupDir); err != nil {
		return fmt.Errorf("workerrt: backing up content dirs: %w", err)
	}

	if err := s.replaceContent(tmpPath); err != nil {
		s.log.Warn("full sync failed, restoring backup", "error", err)
		if restoreErr := s.restoreFrom(backupDir); restoreErr != nil {
			s.log.Error("backup restore failed", "error", restoreErr)
		}
		return err
	}

	s.localRevision = serverRevision
	return nil
}

func (s *Syncer) snapshotInto(backupDir string) error {
	for _, dir := range model.BundleDirs {
		src := filepath.Join(s.contentDir, dir)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyDirRecursive(src, filepath.Join(backupDir, dir)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) restoreFrom(backupDir string) error {
	for _, dir := range model.BundleDirs {
		dst := filepath.Join(s.contentDir, dir)
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
		src := filepath.Join(backupDir, dir)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyDirRecursive(src, dst); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) replaceContent(archivePath string) error {
	for _, dir := range model.BundleDirs {
		if err := os.RemoveAll(filepath.Join(s.contentDir, dir)); err != nil {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	return contentstore.SafeExtract(f, s.contentDir)
}

// IncrementalSync fetches the server manifest, computes (new, modified,
// deleted) against a freshly walked local manifest, and applies only the
// difference. Per-file errors are accumulated and returned as one error;
// Runtime.doSyncCheck then falls back to FullSync in the same round.
func (s *Syncer) IncrementalSync(ctx context.Context, serverRevision string) error {
	serverManifest, err := s.client.Manifest(ctx)
	if err != nil {
		return fmt.Errorf("workerrt: fetching manifest: %w", err)
	}
	localManifest, err := s.localManifest()
	if err != nil {
		return fmt.Errorf("workerrt: building local manifest: %w", err)
	}

	var errs []error
	for path, entry := range serverManifest {
		local, ok := localManifest[path]
		if ok && local.SHA256 == entry.SHA256 {
			continue
		}
		if err := s.downloadFile(ctx, path); err != nil {
			errs = append(errs, err)
		}
	}
	for path := range localManifest {
		if _, ok := serverManifest[path]; !ok {
			if err := os.Remove(filepath.Join(s.contentDir, path)); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("workerrt: incremental sync had %d file error(s): %w", len(errs), errs[0])
	}
	s.localRevision = serverRevision
	return nil
}

func (s *Syncer) downloadFile(ctx context.Context, relPath string) error {
	rc, err := s.client.File(ctx, relPath)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", relPath, err)
	}
	defer rc.Close()

	dest := filepath.Join(s.contentDir, relPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, rc)
	return err
}

// localManifest walks the four content subdirectories and hashes every
// regular file, mirroring contentstore.Store.Manifest's shape so the two
// sides compare directly.
func (s *Syncer) localManifest() (model.Manifest, error) {
	manifest := model.Manifest{}
	for _, dir := range model.BundleDirs {
		root := filepath.Join(s.contentDir, dir)
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(s.contentDir, path)
			if err != nil {
				return err
			}
			sum, size, err := hashFile(path)
			if err != nil {
				return err
			}
			manifest[filepath.ToSlash(rel)] = model.ManifestEntry{Size: size, SHA256: sum}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return manifest, nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func copyDirRecursive(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}
