package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/artifact"
	"github.com/BaSui01/artifactflow/types"
)

// TempFile is a scoped temporary file under temp/. Close removes it unless it
// was promoted into permanent storage first, so `defer tmp.Close()` cleans up
// on every exit path.
type TempFile struct {
	store    *FileStore
	file     *os.File
	path     string
	promoted bool
	closed   bool
}

// AllocateTemp creates a new temp file. pattern follows os.CreateTemp.
func (s *FileStore) AllocateTemp(pattern string) (*TempFile, error) {
	f, err := os.CreateTemp(filepath.Join(s.root, DirTemp), pattern)
	if err != nil {
		return nil, types.IO(err, "allocate temp file")
	}
	return &TempFile{store: s, file: f, path: f.Name()}, nil
}

// Path is the absolute location of the temp file.
func (t *TempFile) Path() string {
	return t.path
}

// Write appends to the temp file.
func (t *TempFile) Write(p []byte) (int, error) {
	if t.closed {
		return 0, os.ErrClosed
	}
	return t.file.Write(p)
}

// Promote moves the temp file into artifacts/<type>/<id>_<name> and returns the
// stored file with its checksum. After Promote, Close is a no-op.
func (t *TempFile) Promote(at artifact.ArtifactType, id, name string) (StoredFile, error) {
	if t.promoted {
		return StoredFile{}, types.Validation("temp file already promoted")
	}
	if !at.Valid() {
		return StoredFile{}, types.Validation("unrecognized artifact type %q", at)
	}
	dest, err := t.store.destination(at, id, name)
	if err != nil {
		return StoredFile{}, err
	}
	if _, err := os.Lstat(dest); err == nil {
		return StoredFile{}, types.Validation("payload already stored at %s", dest).WithArtifact(id)
	}

	if err := t.finish(); err != nil {
		return StoredFile{}, err
	}
	if err := os.Rename(t.path, dest); err != nil {
		return StoredFile{}, types.IO(err, "move payload into storage").WithArtifact(id)
	}
	t.promoted = true

	sum, size, err := checksumFile(dest)
	if err != nil {
		_ = os.Remove(dest)
		return StoredFile{}, types.IO(err, "checksum stored payload").WithArtifact(id)
	}
	rel, err := t.store.relative(dest)
	if err != nil {
		_ = os.Remove(dest)
		return StoredFile{}, err
	}

	t.store.logger.Debug("payload stored",
		zap.String("artifact_id", id),
		zap.String("path", rel),
		zap.Int64("size", size),
	)
	return StoredFile{Path: rel, Checksum: sum, Size: size}, nil
}

// finish flushes and closes the underlying handle.
func (t *TempFile) finish() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if t.store.fsync {
		if err := t.file.Sync(); err != nil {
			t.file.Close()
			return types.IO(err, "sync temp file")
		}
	}
	if err := t.file.Close(); err != nil {
		return types.IO(err, "close temp file")
	}
	return nil
}

// Close releases the temp file, deleting it unless it was promoted.
func (t *TempFile) Close() error {
	closeErr := t.finish()
	if t.promoted {
		return nil
	}
	if err := os.Remove(t.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return types.IO(err, "remove temp file")
	}
	return closeErr
}

// CleanupTemp removes temp entries older than maxAge. Permanent storage is
// never touched.
func (s *FileStore) CleanupTemp(maxAge time.Duration) (int, error) {
	dir := filepath.Join(s.root, DirTemp)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, types.IO(err, "read temp directory")
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if maxAge > 0 && !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			s.logger.Warn("failed to remove temp entry", zap.String("name", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("cleaned up temp directory", zap.Int("removed", removed))
	}
	return removed, nil
}
