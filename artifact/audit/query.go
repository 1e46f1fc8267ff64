package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"iter"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/types"
)

type snapshotFile struct {
	name string
	file *os.File
	size int64
}

// snapshot opens the partitions overlapping the filter range and pins their
// current sizes, so a scan never sees half-written lines or entries appended
// after it started.
func (t *Trail) snapshot(f Filter) ([]snapshotFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parts, err := t.partitions()
	if err != nil {
		return nil, err
	}
	var files []snapshotFile
	for _, p := range parts {
		if !p.overlaps(f.Since, f.Until) {
			continue
		}
		fh, err := os.Open(p.path)
		if err != nil {
			closeSnapshot(files)
			return nil, types.IO(err, "open %s", p.name)
		}
		info, err := fh.Stat()
		if err != nil {
			fh.Close()
			closeSnapshot(files)
			return nil, types.IO(err, "stat %s", p.name)
		}
		files = append(files, snapshotFile{name: p.name, file: fh, size: info.Size()})
	}
	return files, nil
}

func closeSnapshot(files []snapshotFile) {
	for _, sf := range files {
		sf.file.Close()
	}
}

// Query lazily yields matching entries in chronological order. Each call
// rescans from the beginning; stopping early releases the files.
func (t *Trail) Query(ctx context.Context, f Filter) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		files, err := t.snapshot(f)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		defer closeSnapshot(files)

		emitted := 0
		for _, sf := range files {
			sc := bufio.NewScanner(io.LimitReader(sf.file, sf.size))
			sc.Buffer(make([]byte, 64*1024), maxLineBytes)
			for sc.Scan() {
				if err := ctx.Err(); err != nil {
					yield(Entry{}, err)
					return
				}
				raw := sc.Bytes()
				if len(raw) == 0 {
					continue
				}
				var rec record
				if err := json.Unmarshal(raw, &rec); err != nil {
					t.logger.Warn("skipping undecodable audit line", zap.String("file", sf.name), zap.Error(err))
					continue
				}
				e, err := rec.toEntry()
				if err != nil {
					t.logger.Warn("skipping audit line with bad details", zap.String("file", sf.name), zap.Error(err))
					continue
				}
				if !f.Match(e) {
					continue
				}
				if !yield(e, nil) {
					return
				}
				emitted++
				if f.Limit > 0 && emitted >= f.Limit {
					return
				}
			}
			if err := sc.Err(); err != nil {
				yield(Entry{}, types.IO(err, "read %s", sf.name))
				return
			}
		}
	}
}

// Collect drains Query into a slice.
func (t *Trail) Collect(ctx context.Context, f Filter) ([]Entry, error) {
	var out []Entry
	for e, err := range t.Query(ctx, f) {
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

// History returns every entry that names artifactID, oldest first.
func (t *Trail) History(ctx context.Context, artifactID string) ([]Entry, error) {
	if artifactID == "" {
		return nil, types.Validation("artifact id is required")
	}
	return t.Collect(ctx, Filter{ArtifactID: artifactID})
}

// ErrorSummary aggregates failed entries in a time range.
type ErrorSummary struct {
	TotalErrors         int            `json:"total_errors"`
	ErrorsByOperation   map[string]int `json:"errors_by_operation"`
	ErrorsByModule      map[string]int `json:"errors_by_module"`
	UniqueErrorMessages []string       `json:"unique_error_messages"`
	Since               *time.Time     `json:"since,omitempty"`
	Until               *time.Time     `json:"until,omitempty"`
}

// ErrorSummary counts failures by operation and module. Zero times leave the
// range open on that side.
func (t *Trail) ErrorSummary(ctx context.Context, since, until time.Time) (ErrorSummary, error) {
	sum := ErrorSummary{
		ErrorsByOperation:   make(map[string]int),
		ErrorsByModule:      make(map[string]int),
		UniqueErrorMessages: []string{},
	}
	if !since.IsZero() {
		sum.Since = &since
	}
	if !until.IsZero() {
		sum.Until = &until
	}

	seen := make(map[string]struct{})
	for e, err := range t.Query(ctx, Filter{Success: Bool(false), Since: since, Until: until}) {
		if err != nil {
			return sum, err
		}
		sum.TotalErrors++
		op := e.Operation
		if op == "" {
			op = "unknown"
		}
		mod := e.Module
		if mod == "" {
			mod = "unknown"
		}
		sum.ErrorsByOperation[op]++
		sum.ErrorsByModule[mod]++
		if e.Error != "" {
			if _, ok := seen[e.Error]; !ok {
				seen[e.Error] = struct{}{}
				sum.UniqueErrorMessages = append(sum.UniqueErrorMessages, e.Error)
			}
		}
	}
	sort.Strings(sum.UniqueErrorMessages)
	return sum, nil
}
