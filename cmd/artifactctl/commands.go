package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow"
	"github.com/BaSui01/artifactflow/artifact"
	"github.com/BaSui01/artifactflow/artifact/audit"
	"github.com/BaSui01/artifactflow/artifact/manager"
	"github.com/BaSui01/artifactflow/config"
)

type app struct {
	stdout io.Writer
	stderr io.Writer
	// ready 接收 serve 的实际监听地址，测试使用
	ready chan<- string
}

// flags returns a FlagSet with the shared --config option.
func (a *app) flags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	configPath := fs.String("config", "", "Path to config file")
	return fs, configPath
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// withStore opens the store for the duration of fn.
func (a *app) withStore(ctx context.Context, configPath string, fn func(*artifactflow.Store) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	store, err := artifactflow.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("close store", zap.Error(cerr))
		}
	}()
	return fn(store)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// 📊 stats / list / lineage
// =============================================================================

func (a *app) runStats(ctx context.Context, args []string) error {
	fs, configPath := a.flags("stats")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.withStore(ctx, *configPath, func(s *artifactflow.Store) error {
		stats, err := s.GetStatistics(ctx)
		if err != nil {
			return err
		}
		return a.printJSON(stats)
	})
}

func (a *app) runList(ctx context.Context, args []string) error {
	fs, configPath := a.flags("list")
	typ := fs.String("type", "", "Artifact type")
	status := fs.String("status", "", "Artifact status")
	runID := fs.String("run", "", "Processing run id")
	module := fs.String("module", "", "Processing module")
	asJSON := fs.Bool("json", false, "Print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := manager.ListFilter{
		Type:   artifact.ArtifactType(*typ),
		Status: artifact.ArtifactStatus(*status),
		RunID:  *runID,
		Module: *module,
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return fmt.Errorf("unknown artifact type %q", *typ)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return fmt.Errorf("unknown artifact status %q", *status)
	}

	return a.withStore(ctx, *configPath, func(s *artifactflow.Store) error {
		items := s.ListArtifacts(ctx, filter)
		if *asJSON {
			return a.printJSON(items)
		}
		w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tSIZE\tMODULE\tCREATED")
		for _, it := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				it.ID, it.Type, it.Status, it.FileSize, it.ProcessingModule,
				it.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	})
}

func (a *app) runLineage(ctx context.Context, args []string) error {
	fs, configPath := a.flags("lineage")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("lineage requires an artifact id")
	}
	return a.withStore(ctx, *configPath, func(s *artifactflow.Store) error {
		l, err := s.GetArtifactLineage(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		return a.printJSON(l)
	})
}

// =============================================================================
// 🔐 verify / history / export
// =============================================================================

type verifyOutput struct {
	ArtifactID string                   `json:"artifact_id,omitempty"`
	Valid      *bool                    `json:"valid,omitempty"`
	Report     *manager.IntegrityReport `json:"report,omitempty"`
	Chain      *audit.ChainReport       `json:"chain,omitempty"`
}

func (a *app) runVerify(ctx context.Context, args []string) error {
	fs, configPath := a.flags("verify")
	chain := fs.Bool("chain", false, "Also verify the audit hash chain")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return a.withStore(ctx, *configPath, func(s *artifactflow.Store) error {
		var out verifyOutput
		healthy := true

		if fs.NArg() > 0 {
			id := fs.Arg(0)
			ok, err := s.VerifyArtifact(ctx, id)
			if err != nil {
				return err
			}
			out.ArtifactID = id
			out.Valid = &ok
			healthy = ok
		} else {
			report, err := s.VerifyAll(ctx)
			if err != nil {
				return err
			}
			out.Report = &report
			healthy = report.OK()
		}

		if *chain {
			cr, err := s.VerifyAuditChain(ctx)
			if err != nil {
				return err
			}
			out.Chain = &cr
			healthy = healthy && cr.Valid
		}

		if err := a.printJSON(out); err != nil {
			return err
		}
		if !healthy {
			return fmt.Errorf("verification failed")
		}
		return nil
	})
}

func (a *app) runHistory(ctx context.Context, args []string) error {
	fs, configPath := a.flags("history")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("history requires an artifact id")
	}
	return a.withStore(ctx, *configPath, func(s *artifactflow.Store) error {
		entries, err := s.History(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tOPERATION\tACTION\tUSER\tSUCCESS\tERROR")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
				e.Timestamp.Format(time.RFC3339), e.Operation, e.Action, e.User, e.Success, e.Error)
		}
		return w.Flush()
	})
}

// parseDay accepts RFC3339 or YYYY-MM-DD. Empty yields the zero time.
func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD or RFC3339)", s)
	}
	return t, nil
}

func (a *app) runExport(ctx context.Context, args []string) error {
	fs, configPath := a.flags("export")
	format := fs.String("format", "json", "Export format: json, jsonl or csv")
	out := fs.String("out", "", "Output file")
	since := fs.String("since", "", "Earliest timestamp (YYYY-MM-DD or RFC3339)")
	until := fs.String("until", "", "Latest timestamp (YYYY-MM-DD or RFC3339)")
	op := fs.String("op", "", "Only entries for this operation")
	artifactID := fs.String("artifact", "", "Only entries for this artifact")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("export requires --out")
	}

	f, err := audit.ParseFormat(*format)
	if err != nil {
		return err
	}
	filter := audit.Filter{Operation: *op, ArtifactID: *artifactID}
	if filter.Since, err = parseDay(*since); err != nil {
		return err
	}
	if filter.Until, err = parseDay(*until); err != nil {
		return err
	}

	return a.withStore(ctx, *configPath, func(s *artifactflow.Store) error {
		n, err := s.ExportAudit(ctx, *out, filter, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Exported %d entries to %s\n", n, *out)
		return nil
	})
}

// =============================================================================
// 🧹 cleanup
// =============================================================================

func (a *app) runCleanup(ctx context.Context, args []string) error {
	fs, configPath := a.flags("cleanup")
	days := fs.Int("days", 30, "Retention in days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.withStore(ctx, *configPath, func(s *artifactflow.Store) error {
		report, err := s.CleanupOldArtifacts(ctx, *days)
		if perr := a.printJSON(report); perr != nil && err == nil {
			err = perr
		}
		return err
	})
}
