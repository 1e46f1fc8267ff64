package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/types"
)

// Format is an export serialization.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// ParseFormat accepts json, jsonl or csv in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatJSONL, FormatCSV:
		return f, nil
	default:
		return "", types.Validation("unsupported export format %q", s)
	}
}

var csvHeader = []string{
	"entry_id", "timestamp", "operation", "action", "artifact_id", "run_id",
	"user", "module", "success", "error", "details", "prev_hash", "hash",
}

// Export writes the entries matching f to outputPath. The file is written
// next to its destination and renamed into place; the live log is only read.
func (t *Trail) Export(ctx context.Context, outputPath string, f Filter, format Format) (int, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return 0, err
	}
	abs, err := filepath.Abs(outputPath)
	if err != nil {
		return 0, types.IO(err, "resolve export path")
	}
	dir, err := filepath.Abs(t.dir)
	if err != nil {
		return 0, types.IO(err, "resolve audit directory")
	}
	if filepath.Dir(abs) == dir {
		return 0, types.PathSecurity("export path %s is inside the audit directory", outputPath)
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".export-*")
	if err != nil {
		return 0, types.IO(err, "create export file")
	}
	defer os.Remove(tmp.Name())

	n, writeErr := t.writeExport(ctx, tmp, f, format)
	closeErr := tmp.Close()
	if writeErr != nil {
		return 0, writeErr
	}
	if closeErr != nil {
		return 0, types.IO(closeErr, "close export file")
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		return 0, types.IO(err, "move export into place")
	}

	t.logger.Info("audit trail exported",
		zap.String("path", abs),
		zap.String("format", string(format)),
		zap.Int("entries", n),
	)
	return n, nil
}

func (t *Trail) writeExport(ctx context.Context, w io.Writer, f Filter, format Format) (int, error) {
	n := 0
	switch format {
	case FormatJSON:
		entries, err := t.Collect(ctx, f)
		if err != nil {
			return 0, err
		}
		if entries == nil {
			entries = []Entry{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return 0, types.IO(err, "write json export")
		}
		return len(entries), nil

	case FormatJSONL:
		enc := json.NewEncoder(w)
		for e, err := range t.Query(ctx, f) {
			if err != nil {
				return n, err
			}
			if err := enc.Encode(e); err != nil {
				return n, types.IO(err, "write jsonl export")
			}
			n++
		}
		return n, nil

	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return 0, types.IO(err, "write csv header")
		}
		for e, err := range t.Query(ctx, f) {
			if err != nil {
				return n, err
			}
			row, err := csvRow(e)
			if err != nil {
				return n, err
			}
			if err := cw.Write(row); err != nil {
				return n, types.IO(err, "write csv row")
			}
			n++
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return n, types.IO(err, "flush csv export")
		}
		return n, nil
	}
	return 0, types.Validation("unsupported export format %q", format)
}

func csvRow(e Entry) ([]string, error) {
	details := ""
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return nil, types.Validation("encode details of %s", e.ID).WithCause(err)
		}
		details = string(raw)
	}
	return []string{
		e.ID,
		e.Timestamp.Format(time.RFC3339Nano),
		e.Operation,
		e.Action,
		e.ArtifactID,
		e.RunID,
		e.User,
		e.Module,
		strconv.FormatBool(e.Success),
		e.Error,
		details,
		e.PrevHash,
		e.Hash,
	}, nil
}
