// Package artifactflow wires the artifact store from a single configuration:
// file storage, the hash-chained audit trail, metadata scanning, Prometheus
// metrics, OpenTelemetry tracing and the optional SQL catalog.
//
// Usage:
//
//	cfg, _ := config.NewLoader().WithConfigPath("artifactflow.yaml").Load()
//	store, err := artifactflow.Open(ctx, cfg, logger)
//	defer store.Close(ctx)
//	a, err := store.CreateArtifact(ctx, manager.CreateRequest{Type: artifact.TypeVideoRaw, SourcePath: src})
package artifactflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/artifact/audit"
	"github.com/BaSui01/artifactflow/artifact/manager"
	"github.com/BaSui01/artifactflow/artifact/phi"
	"github.com/BaSui01/artifactflow/artifact/storage"
	"github.com/BaSui01/artifactflow/config"
	"github.com/BaSui01/artifactflow/internal/catalog"
	"github.com/BaSui01/artifactflow/internal/metrics"
	"github.com/BaSui01/artifactflow/internal/telemetry"
)

// collectors are shared per namespace; Prometheus rejects duplicate registration.
var (
	collectorsMu sync.Mutex
	collectors   = map[string]*metrics.Collector{}
)

func collectorFor(namespace string, logger *zap.Logger) *metrics.Collector {
	collectorsMu.Lock()
	defer collectorsMu.Unlock()
	if c, ok := collectors[namespace]; ok {
		return c
	}
	c := metrics.NewCollector(namespace, logger)
	collectors[namespace] = c
	return c
}

// Store is a Manager plus the process-level resources opened for it.
type Store struct {
	*manager.Manager

	catalog   *catalog.Catalog
	telemetry *telemetry.Providers
	metrics   *metrics.Collector
	closeOnce sync.Once
}

// ManagerConfig maps the file configuration onto the manager's.
func ManagerConfig(cfg *config.Config) (manager.Config, error) {
	policy, err := phi.ParsePolicy(cfg.PHI.Policy)
	if err != nil {
		return manager.Config{}, err
	}
	return manager.Config{
		BasePath: cfg.Store.BasePath,
		Storage: storage.Config{
			BasePath:           cfg.Store.StorageDir(),
			AllowedSourceRoots: cfg.Store.AllowedSourceRoots,
			MaxFilenameLength:  cfg.Store.MaxFilenameLength,
			Fsync:              cfg.Store.Fsync,
		},
		Audit: audit.Config{
			Dir:            cfg.AuditDir(),
			RotationSizeMB: cfg.Audit.RotationSizeMB,
			Fsync:          cfg.Audit.Fsync,
		},
		PHI: phi.Config{
			Policy:    policy,
			ExtraKeys: cfg.PHI.ExtraKeys,
			AllowKeys: cfg.PHI.AllowKeys,
		},
		AutoCleanupTemp: cfg.Store.AutoCleanupTemp,
		TempMaxAge:      cfg.Store.TempMaxAge,
		VerifyWorkers:   cfg.Store.VerifyWorkers,
		MaxLineageNodes: cfg.Store.MaxLineageNodes,
	}, nil
}

// Open validates cfg and opens the store. Extra options are applied after
// the ones derived from cfg.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...manager.Option) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mcfg, err := ManagerConfig(cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{}
	s.telemetry, err = telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var base []manager.Option
	if cfg.Metrics.Enabled {
		s.metrics = collectorFor(cfg.Metrics.Namespace, logger)
		base = append(base, manager.WithMetrics(s.metrics))
	}
	if cfg.Catalog.Enabled {
		s.catalog, err = catalog.Open(ctx, cfg.Catalog, s.metrics, logger)
		if err != nil {
			_ = s.telemetry.Shutdown(ctx)
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		base = append(base, manager.WithCatalog(s.catalog))
	}

	s.Manager, err = manager.New(mcfg, logger, append(base, opts...)...)
	if err != nil {
		if s.catalog != nil {
			_ = s.catalog.Close()
		}
		_ = s.telemetry.Shutdown(ctx)
		return nil, err
	}
	return s, nil
}

// Catalog returns the SQL catalog, or nil when disabled.
func (s *Store) Catalog() *catalog.Catalog {
	return s.catalog
}

// Close closes the manager (and with it the catalog) and flushes telemetry.
func (s *Store) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		err = errors.Join(s.Manager.Close(), s.telemetry.Shutdown(ctx))
	})
	return err
}
