package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/types"
)

const (
	defaultRotationSizeMB = 100
	maxLineBytes          = 16 << 20
)

// Config configures the audit trail.
type Config struct {
	// Dir holds the audit_<YYYYMM>.jsonl partitions.
	Dir string `yaml:"dir" json:"dir"`

	// RotationSizeMB closes the live partition once it would exceed this size.
	RotationSizeMB int `yaml:"rotation_size_mb" json:"rotation_size_mb"`

	// Fsync syncs the partition after every append.
	Fsync bool `yaml:"fsync" json:"fsync"`
}

// Trail is an append-only, hash-chained JSONL log partitioned by month.
type Trail struct {
	dir      string
	maxBytes int64
	fsync    bool
	now      func() time.Time
	logger   *zap.Logger

	mu       sync.Mutex
	file     liveFile
	month    string
	size     int64
	lastHash string
	closed   bool
}

// liveFile is the open live partition.
type liveFile interface {
	io.Writer
	Sync() error
	Truncate(size int64) error
	Close() error
}

// Option customizes a Trail.
type Option func(*Trail)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(t *Trail) { t.now = now }
}

// Open prepares the audit directory and restores the hash-chain head from the
// newest partition.
func Open(cfg Config, logger *zap.Logger, opts ...Option) (*Trail, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Dir == "" {
		return nil, types.Validation("audit directory is required")
	}
	if cfg.RotationSizeMB <= 0 {
		cfg.RotationSizeMB = defaultRotationSizeMB
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, types.IO(err, "create audit directory")
	}

	t := &Trail{
		dir:      cfg.Dir,
		maxBytes: int64(cfg.RotationSizeMB) * 1024 * 1024,
		fsync:    cfg.Fsync,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "audit_trail")),
	}
	for _, opt := range opts {
		opt(t)
	}

	parts, err := t.partitions()
	if err != nil {
		return nil, err
	}
	if len(parts) > 0 {
		newest := parts[len(parts)-1]
		t.month = newest.month
		if newest.live() {
			if err := t.repairPartition(newest.path); err != nil {
				return nil, types.IO(err, "repair audit partition %s", newest.name)
			}
		}
	}
	for i := len(parts) - 1; i >= 0; i-- {
		rec, ok, err := lastRecord(parts[i].path)
		if err != nil {
			return nil, types.IO(err, "restore audit chain head from %s", parts[i].name)
		}
		if ok {
			t.lastHash = rec.Hash
			break
		}
	}

	t.logger.Debug("audit trail opened",
		zap.String("dir", cfg.Dir),
		zap.Int("partitions", len(parts)),
	)
	return t, nil
}

// Dir returns the audit directory.
func (t *Trail) Dir() string {
	return t.dir
}

// Record fills in the entry id, timestamp and hash, then appends it to the
// live partition. The returned entry is exactly what was written.
func (t *Trail) Record(ctx context.Context, e Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, types.AuditWriteFailure(err, "record %s", e.Operation)
	}
	if e.Operation == "" {
		return Entry{}, types.Validation("audit entry requires an operation")
	}
	if e.Success {
		e.Error = ""
	} else if e.Error == "" {
		e.Error = "unspecified error"
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return Entry{}, types.AuditWriteFailure(os.ErrClosed, "audit trail closed")
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = t.now()
	}
	e.Timestamp = t.clamp(e.Timestamp.UTC())
	e.PrevHash = t.lastHash
	e.Hash = ""

	rec, err := e.toRecord()
	if err != nil {
		return Entry{}, types.AuditWriteFailure(err, "encode audit details")
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return Entry{}, types.AuditWriteFailure(err, "encode audit entry")
	}
	rec.Hash = chainHash(rec.PrevHash, body)
	line, err := json.Marshal(rec)
	if err != nil {
		return Entry{}, types.AuditWriteFailure(err, "encode audit entry")
	}
	line = append(line, '\n')

	if err := t.prepare(e.Timestamp, int64(len(line))); err != nil {
		return Entry{}, types.AuditWriteFailure(err, "prepare audit partition")
	}
	n, err := t.file.Write(line)
	if err != nil {
		// 半行写入必须截掉，否则下一条会拼接在残行后面
		if n > 0 {
			if terr := t.file.Truncate(t.size); terr != nil {
				t.logger.Error("failed to truncate partial audit entry", zap.Error(terr))
				t.size += int64(n)
			}
		}
		return Entry{}, types.AuditWriteFailure(err, "append audit entry")
	}
	t.size += int64(n)
	if t.fsync {
		if err := t.file.Sync(); err != nil {
			return Entry{}, types.AuditWriteFailure(err, "sync audit partition")
		}
	}

	t.lastHash = rec.Hash
	e.Hash = rec.Hash

	fields := []zap.Field{
		zap.String("operation", e.Operation),
		zap.String("action", e.Action),
		zap.String("artifact_id", e.ArtifactID),
		zap.Bool("success", e.Success),
	}
	if e.Success {
		t.logger.Debug("audit entry recorded", fields...)
	} else {
		t.logger.Warn("audit entry recorded", append(fields, zap.String("error", e.Error))...)
	}
	return e, nil
}

// clamp keeps a timestamp from stepping back into a month older than the live
// partition. Entries are chained in partition order, so the stamp must agree
// with the partition the entry lands in.
func (t *Trail) clamp(ts time.Time) time.Time {
	if t.month == "" || ts.Format("200601") >= t.month {
		return ts
	}
	start, err := time.Parse("200601", t.month)
	if err != nil {
		return ts
	}
	t.logger.Warn("audit timestamp predates live partition, clamping",
		zap.Time("timestamp", ts),
		zap.String("partition_month", t.month),
	)
	return start.UTC()
}

// prepare makes sure the live partition can take n more bytes, switching
// partitions at the month boundary or once the size threshold is reached.
func (t *Trail) prepare(ts time.Time, n int64) error {
	month := ts.Format("200601")

	if t.file == nil || month != t.month {
		if err := t.openLive(month); err != nil {
			return err
		}
	}
	if t.size > 0 && t.size+n > t.maxBytes {
		if err := t.rotate(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Trail) openLive(month string) error {
	if t.file != nil {
		if err := t.file.Close(); err != nil {
			t.logger.Warn("failed to close audit partition", zap.Error(err))
		}
		t.file = nil
	}
	f, err := os.OpenFile(filepath.Join(t.dir, livePartitionName(month)), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	size, err := t.repairTail(f)
	if err != nil {
		f.Close()
		return err
	}
	t.file = f
	t.month = month
	t.size = size
	return nil
}

func (t *Trail) repairPartition(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	if _, err := t.repairTail(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// repairTail truncates a torn trailing line left by an interrupted append, so
// the next entry starts on a line of its own. Returns the resulting size.
func (t *Trail) repairTail(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()

	buf := make([]byte, 4096)
	keep := int64(0)
	for end := size; end > 0; {
		n := min(int64(len(buf)), end)
		off := end - n
		if _, err := f.ReadAt(buf[:n], off); err != nil && err != io.EOF {
			return 0, err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			keep = off + int64(i) + 1
			break
		}
		end = off
	}
	if keep == size {
		return size, nil
	}
	if err := f.Truncate(keep); err != nil {
		return 0, err
	}
	t.logger.Warn("dropped torn audit line",
		zap.String("file", filepath.Base(f.Name())),
		zap.Int64("bytes", size-keep),
	)
	return keep, nil
}

// rotate renames the live partition to the next free .N suffix and opens a
// fresh live file for the same month.
func (t *Trail) rotate() error {
	live := filepath.Join(t.dir, livePartitionName(t.month))
	if err := t.file.Close(); err != nil {
		t.logger.Warn("failed to close audit partition", zap.Error(err))
	}
	t.file = nil

	seq := 1
	for {
		candidate := filepath.Join(t.dir, rotatedPartitionName(t.month, seq))
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			if err := os.Rename(live, candidate); err != nil {
				return err
			}
			t.logger.Info("rotated audit partition", zap.String("file", filepath.Base(candidate)))
			break
		}
		seq++
	}
	return t.openLive(t.month)
}

// Close releases the live partition handle. Further Record calls fail.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

// lastRecord returns the final decodable entry in a partition. A torn
// trailing line left by a crash is ignored.
func lastRecord(path string) (record, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return record{}, false, err
	}
	defer f.Close()

	var (
		last  record
		found bool
	)
	r := bufio.NewReaderSize(f, 64*1024)
	for {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var rec record
			if json.Unmarshal(trimmed, &rec) == nil && rec.Hash != "" {
				last, found = rec, true
			}
		}
		if err == io.EOF {
			return last, found, nil
		}
		if err != nil {
			return record{}, false, err
		}
	}
}
