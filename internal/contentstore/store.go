// Package contentstore implements the Content Store (C3): it holds the
// authoritative playbook/inventory/library/callback_plugins bundle, tracks
// a content-addressed revision string, and produces manifests and archive
// streams for workers to sync from.
//
// The archive/extract path is built on the standard library's archive/tar
// and compress/gzip rather than a pack dependency: no example repo in the
// retrieval pack carries a general-purpose bundling library (only
// handleui-detent's actbin downloader touches archive/tar, for unpacking a
// single released binary, not building general manifests) — see DESIGN.md.
package contentstore

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

var ErrPathEscape = errors.New("contentstore: path escapes bundle root")

// Subscriber receives a notification whenever commit() swaps in a new
// revision (spec §4.3's revision_changed event); internal/syncnotify
// implements this to fan the event out to workers.
type Subscriber func(revision string)

// Store is the primary's authoritative content bundle, rooted at Dir.
type Store struct {
	log  *logger.Logger
	dir  string
	mu   sync.RWMutex
	rev  string

	subsMu sync.Mutex
	subs   []Subscriber

	manifestGroup singleflight.Group
}

func New(log *logger.Logger, dir string) (*Store, error) {
	for _, d := range model.BundleDirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return nil, fmt.Errorf("contentstore: creating %s: %w", d, err)
		}
	}
	s := &Store{log: log.With("component", "contentstore"), dir: dir}
	rev, err := s.computeRevision()
	if err != nil {
		return nil, err
	}
	s.rev = rev
	return s, nil
}

// CurrentRevision returns the bundle's current content-addressed revision.
func (s *Store) CurrentRevision() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// ShortRevision is the conventional 8-character prefix used in log
// filenames and sync_available notifications.
func ShortRevision(revision string) string {
	if len(revision) <= 8 {
		return revision
	}
	return revision[:8]
}

// Subscribe registers fn to be called after every successful Commit.
func (s *Store) Subscribe(fn Subscriber) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) notify(revision string) {
	s.subsMu.Lock()
	subs := append([]Subscriber(nil), s.subs...)
	s.subsMu.Unlock()
	for _, fn := range subs {
		fn(revision)
	}
}

// Manifest walks the bundle and returns a path -> {size, sha256} map.
// Concurrent callers (many workers checking sync at once) collapse onto a
// single walk via singleflight rather than each re-hashing the whole
// bundle.
func (s *Store) Manifest(ctx context.Context) (model.Manifest, error) {
	v, err, _ := s.manifestGroup.Do("manifest", func() (interface{}, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.manifestLocked()
	})
	if err != nil {
		return nil, err
	}
	return v.(model.Manifest), nil
}

func (s *Store) manifestLocked() (model.Manifest, error) {
	manifest := make(model.Manifest)
	for _, d := range model.BundleDirs {
		root := filepath.Join(s.dir, d)
		err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(s.dir, path)
			if err != nil {
				return err
			}
			size, sum, err := hashFile(path)
			if err != nil {
				return err
			}
			manifest[filepath.ToSlash(rel)] = model.ManifestEntry{Size: size, SHA256: sum}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return manifest, nil
}

func hashFile(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return size, hex.EncodeToString(h.Sum(nil)), nil
}

// computeRevision hashes the manifest itself (sorted path -> sha256 pairs)
// so that committing identical content twice yields the same revision
// string, per spec §8's content-addressed round-trip law.
func (s *Store) computeRevision() (string, error) {
	manifest, err := s.manifestLocked()
	if err != nil {
		return "", err
	}
	paths := make([]string, 0, len(manifest))
	for p := range manifest {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		entry := manifest[p]
		fmt.Fprintf(h, "%s:%s:%d\n", p, entry.SHA256, entry.Size)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Archive streams a gzip-compressed tar of the bundle to w.
func (s *Store) Archive(ctx context.Context, w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	for _, d := range model.BundleDirs {
		root := filepath.Join(s.dir, d)
		err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(s.dir, path)
			if err != nil {
				return err
			}
			info, err := entry.Info()
			if err != nil {
				return err
			}
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = filepath.ToSlash(rel)
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(tw, f)
			return err
		})
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

// File streams a single bundle-relative path, rejecting any path that
// escapes the bundle root (spec §4.3).
func (s *Store) File(ctx context.Context, relPath string) (io.ReadCloser, error) {
	full, err := safeJoin(s.dir, relPath)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// safeJoin resolves rel under root, rejecting `..` escapes and absolute
// paths — the same rule Commit's extraction side enforces on workers.
func safeJoin(root, rel string) (string, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return "", ErrPathEscape
	}
	full := filepath.Join(root, clean)
	if !strings.HasPrefix(full, filepath.Clean(root)+string(os.PathSeparator)) && full != filepath.Clean(root) {
		return "", ErrPathEscape
	}
	return full, nil
}

// ChangeSet is the set of file writes/deletes Commit atomically applies.
type ChangeSet struct {
	Write  map[string][]byte
	Delete []string
}

// Commit atomically swaps in changes, recomputes the revision, and
// notifies subscribers. Since the resulting revision is a hash of the full
// manifest, comitting identical content twice yields the same revision.
func (s *Store) Commit(ctx context.Context, changes ChangeSet) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, content := range changes.Write {
		full, err := safeJoin(s.dir, path)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(full, content, 0o644); err != nil {
			return "", err
		}
	}
	for _, path := range changes.Delete {
		full, err := safeJoin(s.dir, path)
		if err != nil {
			return "", err
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return "", err
		}
	}

	rev, err := s.computeRevision()
	if err != nil {
		return "", err
	}
	changed := rev != s.rev
	s.rev = rev

	if changed {
		s.log.Info("content revision changed", "revision", rev)
		go s.notify(rev)
	}
	return rev, nil
}
