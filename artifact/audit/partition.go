package audit

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/BaSui01/artifactflow/types"
)

var partitionPattern = regexp.MustCompile(`^audit_(\d{6})(?:\.(\d+))?\.jsonl$`)

// partition is one audit file. Rotated files of a month sort before the live
// one, so chronological order is (month, seq).
type partition struct {
	name  string
	path  string
	month string
	seq   int
}

func (p partition) live() bool {
	return p.seq == math.MaxInt
}

func livePartitionName(month string) string {
	return fmt.Sprintf("audit_%s.jsonl", month)
}

func rotatedPartitionName(month string, seq int) string {
	return fmt.Sprintf("audit_%s.%d.jsonl", month, seq)
}

// partitions lists audit files in chronological order.
func (t *Trail) partitions() ([]partition, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return nil, types.IO(err, "read audit directory")
	}

	var parts []partition
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := partitionPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		p := partition{
			name:  e.Name(),
			path:  filepath.Join(t.dir, e.Name()),
			month: m[1],
			seq:   math.MaxInt,
		}
		if m[2] != "" {
			seq, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			p.seq = seq
		}
		parts = append(parts, p)
	}

	sort.Slice(parts, func(i, j int) bool {
		if parts[i].month != parts[j].month {
			return parts[i].month < parts[j].month
		}
		return parts[i].seq < parts[j].seq
	})
	return parts, nil
}

// overlaps reports whether the partition's month can hold entries in [since, until].
func (p partition) overlaps(since, until time.Time) bool {
	if !since.IsZero() && p.month < since.UTC().Format("200601") {
		return false
	}
	if !until.IsZero() && p.month > until.UTC().Format("200601") {
		return false
	}
	return true
}
