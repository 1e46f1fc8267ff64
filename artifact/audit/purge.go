package audit

import (
	"context"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/types"
)

// Purge removes whole partitions whose newest entry is older than before,
// oldest first, and then records an audit_purge entry describing what was
// removed. The live partition is never removed. Returns the number of
// entries deleted.
func (t *Trail) Purge(ctx context.Context, before time.Time, reason, user string) (int, error) {
	if before.IsZero() {
		return 0, types.Validation("purge requires a cutoff time")
	}
	if strings.TrimSpace(reason) == "" {
		return 0, types.Validation("purge requires a reason")
	}

	removed, files, anchor, err := t.purgePartitions(ctx, before)
	if err != nil {
		return removed, err
	}

	_, recErr := t.Record(ctx, Entry{
		Operation: OpPurge,
		Action:    "purge",
		User:      user,
		Success:   true,
		Details: map[string]any{
			"before":          before.UTC().Format(time.RFC3339),
			"reason":          reason,
			"partitions":      files,
			"entries_removed": removed,
			"anchor_hash":     anchor,
		},
	})
	if recErr != nil {
		return removed, recErr
	}
	return removed, nil
}

func (t *Trail) purgePartitions(ctx context.Context, before time.Time) (int, []string, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parts, err := t.partitions()
	if err != nil {
		return 0, nil, "", err
	}

	removed := 0
	files := []string{}
	anchor := ""
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return removed, files, anchor, err
		}
		if p.live() && p.month == t.month {
			break
		}
		last, ok, err := lastRecord(p.path)
		if err != nil {
			return removed, files, anchor, types.IO(err, "read %s", p.name)
		}
		if ok && !last.Timestamp.Before(before) {
			break
		}
		count, err := countLines(p.path)
		if err != nil {
			return removed, files, anchor, types.IO(err, "count %s", p.name)
		}
		if err := os.Remove(p.path); err != nil {
			return removed, files, anchor, types.IO(err, "remove %s", p.name)
		}
		removed += count
		files = append(files, p.name)
		if ok {
			anchor = last.Hash
		}
		t.logger.Info("purged audit partition", zap.String("file", p.name), zap.Int("entries", count))
	}
	return removed, files, anchor, nil
}

func countLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n, nil
}
