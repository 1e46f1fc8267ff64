package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/artifact"
	"github.com/BaSui01/artifactflow/types"
)

// SaveMetadata writes metadata/<id>.json atomically.
func (s *FileStore) SaveMetadata(a *artifact.Artifact) error {
	if err := checkID(a.ID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return types.Validation("marshal metadata for %s", a.ID).WithCause(err)
	}
	path := filepath.Join(s.root, DirMetadata, a.ID+".json")
	if err := s.writeFileAtomic(path, data); err != nil {
		return types.IO(err, "write metadata").WithArtifact(a.ID)
	}
	return nil
}

// LoadMetadata reads metadata/<id>.json.
func (s *FileStore) LoadMetadata(id string) (*artifact.Artifact, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return s.readMetadata(filepath.Join(s.root, DirMetadata, id+".json"), id)
}

func (s *FileStore) readMetadata(path, id string) (*artifact.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NotFound("artifact %s not found", id).WithArtifact(id)
		}
		return nil, types.IO(err, "read metadata").WithArtifact(id)
	}
	var a artifact.Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, types.Validation("corrupt metadata document %s", path).WithCause(err).WithArtifact(id)
	}
	if a.SourceArtifacts == nil {
		a.SourceArtifacts = []string{}
	}
	return &a, nil
}

// DeleteMetadata removes metadata/<id>.json. Missing documents are not an error.
func (s *FileStore) DeleteMetadata(id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	path := filepath.Join(s.root, DirMetadata, id+".json")
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return types.IO(err, "delete metadata").WithArtifact(id)
	}
	return nil
}

// LoadAllMetadata reads every metadata document. Corrupt documents are logged
// and skipped so that one bad file does not make the store unusable; their ids
// are returned as unreadable.
func (s *FileStore) LoadAllMetadata() ([]*artifact.Artifact, []string, error) {
	dir := filepath.Join(s.root, DirMetadata)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, types.IO(err, "read metadata directory")
	}

	out := make([]*artifact.Artifact, 0, len(entries))
	var unreadable []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		a, err := s.readMetadata(filepath.Join(dir, name), id)
		if err != nil {
			s.logger.Warn("skipping unreadable metadata document",
				zap.String("file", name),
				zap.Error(err),
			)
			unreadable = append(unreadable, id)
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, unreadable, nil
}

// SaveRun writes runs/<run_id>.json atomically.
func (s *FileStore) SaveRun(r *artifact.ProcessingRun) error {
	if err := checkID(r.ID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return types.Validation("marshal run %s", r.ID).WithCause(err)
	}
	if err := s.writeFileAtomic(filepath.Join(s.root, DirRuns, r.ID+".json"), data); err != nil {
		return types.IO(err, "write run %s", r.ID)
	}
	return nil
}

// LoadRun reads runs/<run_id>.json.
func (s *FileStore) LoadRun(id string) (*artifact.ProcessingRun, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, DirRuns, id+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NotFound("run %s not found", id)
		}
		return nil, types.IO(err, "read run %s", id)
	}
	var r artifact.ProcessingRun
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, types.Validation("corrupt run document %s", id).WithCause(err)
	}
	return &r, nil
}

// ListRuns loads every run document, oldest first.
func (s *FileStore) ListRuns() ([]*artifact.ProcessingRun, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, DirRuns))
	if err != nil {
		return nil, types.IO(err, "read runs directory")
	}
	runs := make([]*artifact.ProcessingRun, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		r, err := s.LoadRun(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			s.logger.Warn("skipping unreadable run document", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs, nil
}

// AppendTombstone records a removed artifact id so it is never handed out again.
func (s *FileStore) AppendTombstone(id string) error {
	f, err := os.OpenFile(filepath.Join(s.root, tombstones), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return types.IO(err, "open tombstones")
	}
	defer f.Close()
	if _, err := f.WriteString(id + "\n"); err != nil {
		return types.IO(err, "append tombstone")
	}
	if s.fsync {
		return f.Sync()
	}
	return nil
}

// LoadTombstones returns every id recorded by AppendTombstone.
func (s *FileStore) LoadTombstones() (map[string]struct{}, error) {
	out := make(map[string]struct{})
	f, err := os.Open(filepath.Join(s.root, tombstones))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return out, nil
		}
		return nil, types.IO(err, "open tombstones")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			out[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, types.IO(err, "read tombstones")
	}
	return out, nil
}

// writeFileAtomic writes to a sibling temp file and renames it over path.
func (s *FileStore) writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if s.fsync {
		if err := f.Sync(); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
