package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/artifact"
	"github.com/BaSui01/artifactflow/types"
)

// CleanupResult summarizes an age-based sweep of permanent storage.
type CleanupResult struct {
	Removed      int      `json:"removed"`
	Skipped      int      `json:"skipped"`
	RemovedPaths []string `json:"removed_paths,omitempty"`
	SkippedPaths []string `json:"skipped_paths,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// CleanupOlderThan removes payload files whose modification time is older
// than days. Files for which protect returns true (still referenced) are left
// in place and counted as skipped. A nil protect removes every stale file.
func (s *FileStore) CleanupOlderThan(days int, protect func(relPath string) bool) (CleanupResult, error) {
	result := CleanupResult{}
	if days < 0 {
		return result, types.Validation("days must be >= 0, got %d", days)
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	for _, t := range artifact.AllArtifactTypes() {
		dir := filepath.Join(s.root, DirArtifacts, string(t))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return result, types.IO(err, "read %s", dir)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			info, err := e.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			rel, err := s.relative(filepath.Join(dir, e.Name()))
			if err != nil {
				continue
			}
			if protect != nil && protect(rel) {
				result.Skipped++
				result.SkippedPaths = append(result.SkippedPaths, rel)
				continue
			}
			if err := s.Remove(rel); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.Removed++
			result.RemovedPaths = append(result.RemovedPaths, rel)
		}
	}

	s.logger.Info("storage cleanup completed",
		zap.Int("removed", result.Removed),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// Removal is a staged deletion of a stored payload. The file sits in .trash
// until Commit deletes it or Restore moves it back.
type Removal struct {
	original string
	staged   string
	done     bool
}

// StageRemoval moves a payload into the trash area. An empty relPath yields a
// no-op removal so metadata-only artifacts share the same code path.
func (s *FileStore) StageRemoval(relPath string) (*Removal, error) {
	if relPath == "" {
		return &Removal{done: true}, nil
	}
	abs, err := s.confine(relPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Removal{done: true}, nil
		}
		return nil, types.IO(err, "stat %s", relPath)
	}
	staged := filepath.Join(s.root, DirTrash, uuid.NewString())
	if err := os.Rename(abs, staged); err != nil {
		return nil, types.IO(err, "stage removal of %s", relPath)
	}
	return &Removal{original: abs, staged: staged}, nil
}

// Commit permanently deletes the staged payload.
func (r *Removal) Commit() error {
	if r.done {
		return nil
	}
	r.done = true
	if err := os.Remove(r.staged); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return types.IO(err, "delete staged payload")
	}
	return nil
}

// Restore moves the staged payload back to its original location.
func (r *Removal) Restore() error {
	if r.done {
		return nil
	}
	r.done = true
	if err := os.Rename(r.staged, r.original); err != nil {
		return types.IO(err, "restore staged payload")
	}
	return nil
}
