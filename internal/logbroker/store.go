package logbroker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore persists partial and final job logs on disk under LOGS_DIR
// (spec §5's persisted-artifacts layout). No pack library covers plain
// line-oriented log file management; this is a deliberate stdlib-only
// component (see DESIGN.md).
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logbroker: create logs dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) partialPath(jobID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("partial-%s.log", jobID))
}

func (s *FileStore) finalPath(filename string) string {
	return filepath.Join(s.dir, filename)
}

// WriteChunk initializes (append=false) or appends to the partial artifact
// for jobID.
func (s *FileStore) WriteChunk(jobID string, content []byte, appendFlag bool) error {
	flags := os.O_CREATE | os.O_WRONLY
	if appendFlag {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(s.partialPath(jobID), flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(content)
	return err
}

// ReadPartial returns the current partial artifact content, or an empty
// slice if none exists yet.
func (s *FileStore) ReadPartial(jobID string) ([]byte, error) {
	b, err := os.ReadFile(s.partialPath(jobID))
	if os.IsNotExist(err) {
		return []byte{}, nil
	}
	return b, err
}

// ReadFinal returns a final log's content by filename.
func (s *FileStore) ReadFinal(filename string) ([]byte, error) {
	return os.ReadFile(s.finalPath(filename))
}

// FinalFilename computes the terminal log filename per spec §4.7:
// <playbook>_<short_id>_<timestamp>.log.
func FinalFilename(playbook, jobID string, completedAt time.Time) string {
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	safePlaybook := strings.ReplaceAll(filepath.Base(playbook), string(filepath.Separator), "_")
	return fmt.Sprintf("%s_%s_%s.log", safePlaybook, short, completedAt.UTC().Format("20060102150405"))
}

// Finalize renames the partial artifact to its final filename and returns
// the final content. If the partial artifact never existed (e.g. a job
// that failed before any chunk streamed), it creates an empty final file.
func (s *FileStore) Finalize(jobID, filename string, explicitContent []byte) ([]byte, error) {
	final := s.finalPath(filename)

	if explicitContent != nil {
		if err := os.WriteFile(final, explicitContent, 0o644); err != nil {
			return nil, err
		}
		_ = os.Remove(s.partialPath(jobID))
		return explicitContent, nil
	}

	partial := s.partialPath(jobID)
	content, err := os.ReadFile(partial)
	if os.IsNotExist(err) {
		content = []byte{}
	} else if err != nil {
		return nil, err
	}
	if err := os.WriteFile(final, content, 0o644); err != nil {
		return nil, err
	}
	_ = os.Remove(partial)
	return content, nil
}
