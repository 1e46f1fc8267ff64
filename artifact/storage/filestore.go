package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/artifact"
	"github.com/BaSui01/artifactflow/types"
)

// Directory names under the storage root.
const (
	DirArtifacts = "artifacts"
	DirMetadata  = "metadata"
	DirRuns      = "runs"
	DirTemp      = "temp"
	DirTrash     = ".trash"
	tombstones   = ".tombstones"
)

// Config configures the file storage backend.
type Config struct {
	// BasePath is the storage root; artifacts/, metadata/, runs/ and temp/ live under it.
	BasePath string `yaml:"base_path" json:"base_path"`

	// AllowedSourceRoots lists directories a symlinked source may resolve into.
	// With no roots configured, symlinked sources are rejected.
	AllowedSourceRoots []string `yaml:"allowed_source_roots" json:"allowed_source_roots"`

	// MaxFilenameLength caps the sanitized original filename (default: 100).
	MaxFilenameLength int `yaml:"max_filename_length" json:"max_filename_length"`

	// Fsync flushes payloads and documents to disk before rename.
	Fsync bool `yaml:"fsync" json:"fsync"`
}

// StoredFile describes a payload persisted in permanent storage.
type StoredFile struct {
	// Path is relative to the storage root, slash-separated.
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
}

// FileStore persists artifact payloads under a type-partitioned layout and
// keeps the metadata and run documents next to them.
type FileStore struct {
	root         string
	allowedRoots []string
	maxName      int
	fsync        bool
	logger       *zap.Logger
}

// New creates the storage tree (one subdirectory per artifact type) and
// returns a FileStore rooted at cfg.BasePath.
func New(cfg Config, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BasePath == "" {
		return nil, types.Validation("storage base path is required")
	}
	root, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, types.IO(err, "resolve storage root")
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	if cfg.MaxFilenameLength <= 0 {
		cfg.MaxFilenameLength = 100
	}

	s := &FileStore{
		root:    root,
		maxName: cfg.MaxFilenameLength,
		fsync:   cfg.Fsync,
		logger:  logger.With(zap.String("component", "artifact_storage")),
	}

	for _, r := range cfg.AllowedSourceRoots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, types.IO(err, "resolve allowed source root %s", r)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		s.allowedRoots = append(s.allowedRoots, abs)
	}

	dirs := []string{
		root,
		filepath.Join(root, DirArtifacts),
		filepath.Join(root, DirMetadata),
		filepath.Join(root, DirRuns),
		filepath.Join(root, DirTemp),
		filepath.Join(root, DirTrash),
	}
	for _, t := range artifact.AllArtifactTypes() {
		dirs = append(dirs, filepath.Join(root, DirArtifacts, string(t)))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, types.IO(err, "create storage directory %s", dir)
		}
	}

	s.logger.Debug("storage initialized", zap.String("root", root))
	return s, nil
}

// Root returns the absolute storage root.
func (s *FileStore) Root() string {
	return s.root
}

// Store copies the file at sourcePath into artifacts/<type>/<id>_<name>.
// The checksum is computed over the bytes read back from the stored file.
func (s *FileStore) Store(ctx context.Context, t artifact.ArtifactType, id, sourcePath string) (StoredFile, error) {
	if !t.Valid() {
		return StoredFile{}, types.Validation("unrecognized artifact type %q", t)
	}
	resolved, err := s.checkSource(sourcePath)
	if err != nil {
		return StoredFile{}, err
	}

	src, err := os.Open(resolved)
	if err != nil {
		return StoredFile{}, types.IO(err, "open source %s", sourcePath)
	}
	defer src.Close()

	return s.storeReader(ctx, t, id, filepath.Base(resolved), src)
}

// StoreBytes persists an in-memory payload under the given original name.
func (s *FileStore) StoreBytes(ctx context.Context, t artifact.ArtifactType, id, name string, data []byte) (StoredFile, error) {
	if !t.Valid() {
		return StoredFile{}, types.Validation("unrecognized artifact type %q", t)
	}
	return s.storeReader(ctx, t, id, name, bytes.NewReader(data))
}

func (s *FileStore) storeReader(ctx context.Context, t artifact.ArtifactType, id, name string, r io.Reader) (StoredFile, error) {
	tmp, err := s.AllocateTemp("store-*")
	if err != nil {
		return StoredFile{}, err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, readerWithContext(ctx, r)); err != nil {
		return StoredFile{}, types.IO(err, "copy payload for %s", id)
	}
	return tmp.Promote(t, id, name)
}

// checkSource validates a caller-supplied source path and returns the path to
// read from.
func (s *FileStore) checkSource(sourcePath string) (string, error) {
	if sourcePath == "" {
		return "", types.Validation("empty source path")
	}
	info, err := os.Lstat(sourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", types.NotFound("source file not found: %s", sourcePath)
		}
		return "", types.IO(err, "stat source %s", sourcePath)
	}

	resolved := sourcePath
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(sourcePath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", types.NotFound("symlink target not found: %s", sourcePath)
			}
			return "", types.IO(err, "resolve symlink %s", sourcePath)
		}
		target, _ = filepath.Abs(target)
		if !s.allowedTarget(target) {
			return "", types.PathSecurity("symlink %s resolves outside allowed roots", sourcePath)
		}
		resolved = target
		if info, err = os.Stat(resolved); err != nil {
			return "", types.IO(err, "stat symlink target %s", resolved)
		}
	}

	if !info.Mode().IsRegular() {
		return "", types.Validation("source %s is not a regular file", sourcePath)
	}
	return resolved, nil
}

func (s *FileStore) allowedTarget(target string) bool {
	for _, root := range s.allowedRoots {
		if within(root, target) {
			return true
		}
	}
	return false
}

// destination builds the permanent path for a payload, confined to the root.
func (s *FileStore) destination(t artifact.ArtifactType, id, name string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	fileName := id + "_" + sanitizeFilename(filepath.Base(name), s.maxName)
	return s.confine(filepath.ToSlash(filepath.Join(DirArtifacts, string(t), fileName)))
}

// Verify recomputes the digest of a stored payload and compares it.
func (s *FileStore) Verify(relPath, expected string) (bool, error) {
	sum, err := s.Checksum(relPath)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(sum, expected), nil
}

// SourceChecksum hashes a caller-supplied source file under the same source
// policy as Store, without copying it.
func (s *FileStore) SourceChecksum(sourcePath string) (string, error) {
	resolved, err := s.checkSource(sourcePath)
	if err != nil {
		return "", err
	}
	sum, _, err := checksumFile(resolved)
	if err != nil {
		return "", types.IO(err, "checksum source %s", sourcePath)
	}
	return sum, nil
}

// Checksum returns the current SHA-256 of a stored payload.
func (s *FileStore) Checksum(relPath string) (string, error) {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return "", err
	}
	sum, _, err := checksumFile(abs)
	if err != nil {
		return "", types.IO(err, "checksum %s", relPath)
	}
	return sum, nil
}

// Retrieve opens a stored payload for reading.
func (s *FileStore) Retrieve(relPath string) (io.ReadCloser, error) {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, types.IO(err, "open %s", relPath)
	}
	return f, nil
}

// Resolve returns the absolute path of a stored payload.
func (s *FileStore) Resolve(relPath string) (string, error) {
	abs, err := s.confine(relPath)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", types.NotFound("stored file not found: %s", relPath)
		}
		return "", types.IO(err, "stat %s", relPath)
	}
	if !info.Mode().IsRegular() {
		return "", types.Validation("stored path %s is not a file", relPath)
	}
	return abs, nil
}

// Remove deletes a stored payload. Missing files are not an error.
func (s *FileStore) Remove(relPath string) error {
	abs, err := s.confine(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return types.IO(err, "remove %s", relPath)
	}
	return nil
}

// Stats summarizes permanent storage.
type Stats struct {
	TotalSizeBytes int64          `json:"total_size_bytes"`
	TotalSizeMB    float64        `json:"total_size_mb"`
	ArtifactCounts map[string]int `json:"artifact_counts"`
	TotalArtifacts int            `json:"total_artifacts"`
}

// Stats walks artifacts/<type>/ and counts payload files and bytes.
func (s *FileStore) Stats() (Stats, error) {
	stats := Stats{ArtifactCounts: make(map[string]int)}

	for _, t := range artifact.AllArtifactTypes() {
		dir := filepath.Join(s.root, DirArtifacts, string(t))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				stats.ArtifactCounts[string(t)] = 0
				continue
			}
			return stats, types.IO(err, "read %s", dir)
		}
		count := 0
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			count++
			stats.TotalSizeBytes += info.Size()
		}
		stats.ArtifactCounts[string(t)] = count
		stats.TotalArtifacts += count
	}

	stats.TotalSizeMB = float64(stats.TotalSizeBytes) / (1024 * 1024)
	return stats, nil
}

// ctxReader stops a copy once the context is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	if ctx == nil {
		return r
	}
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
