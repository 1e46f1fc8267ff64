package manager

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/artifact"
	"github.com/BaSui01/artifactflow/artifact/audit"
	"github.com/BaSui01/artifactflow/artifact/phi"
	"github.com/BaSui01/artifactflow/artifact/storage"
	"github.com/BaSui01/artifactflow/internal/ctxkeys"
	"github.com/BaSui01/artifactflow/internal/metrics"
	"github.com/BaSui01/artifactflow/types"
)

// Storage is the persistence surface the manager needs. *storage.FileStore
// satisfies it.
type Storage interface {
	Root() string
	Store(ctx context.Context, t artifact.ArtifactType, id, sourcePath string) (storage.StoredFile, error)
	SourceChecksum(sourcePath string) (string, error)
	Verify(relPath, expected string) (bool, error)
	Resolve(relPath string) (string, error)
	StageRemoval(relPath string) (*storage.Removal, error)
	CleanupOlderThan(days int, protect func(relPath string) bool) (storage.CleanupResult, error)
	CleanupTemp(maxAge time.Duration) (int, error)
	Stats() (storage.Stats, error)

	SaveMetadata(a *artifact.Artifact) error
	DeleteMetadata(id string) error
	LoadAllMetadata() ([]*artifact.Artifact, []string, error)
	SaveRun(r *artifact.ProcessingRun) error
	ListRuns() ([]*artifact.ProcessingRun, error)
	AppendTombstone(id string) error
	LoadTombstones() (map[string]struct{}, error)
}

// Auditor is the audit trail surface. *audit.Trail satisfies it.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry) (audit.Entry, error)
	History(ctx context.Context, artifactID string) ([]audit.Entry, error)
	Collect(ctx context.Context, f audit.Filter) ([]audit.Entry, error)
	Export(ctx context.Context, outputPath string, f audit.Filter, format audit.Format) (int, error)
	ErrorSummary(ctx context.Context, since, until time.Time) (audit.ErrorSummary, error)
	VerifyChain(ctx context.Context) (audit.ChainReport, error)
	Purge(ctx context.Context, before time.Time, reason, user string) (int, error)
	Close() error
}

// Catalog mirrors the index into a queryable store. Catalog failures are
// logged and never fail a store operation.
type Catalog interface {
	UpsertArtifact(ctx context.Context, a *artifact.Artifact) error
	DeleteArtifact(ctx context.Context, id string) error
	UpsertRun(ctx context.Context, r *artifact.ProcessingRun) error
}

// Config configures a Manager.
type Config struct {
	// BasePath holds storage/ and audit/ unless Storage.BasePath or Audit.Dir
	// are set explicitly.
	BasePath string `yaml:"base_path" json:"base_path"`

	Storage storage.Config `yaml:"storage" json:"storage"`
	Audit   audit.Config   `yaml:"audit" json:"audit"`
	PHI     phi.Config     `yaml:"phi" json:"phi"`

	// AutoCleanupTemp sweeps temp/ when a run ends.
	AutoCleanupTemp bool          `yaml:"auto_cleanup_temp" json:"auto_cleanup_temp"`
	TempMaxAge      time.Duration `yaml:"temp_max_age" json:"temp_max_age"`

	// VerifyWorkers bounds VerifyAll parallelism (default: 4).
	VerifyWorkers int `yaml:"verify_workers" json:"verify_workers"`

	// MaxLineageNodes bounds lineage traversal.
	MaxLineageNodes int `yaml:"max_lineage_nodes" json:"max_lineage_nodes"`

	// User is written into audit entries; defaults to $USER.
	User string `yaml:"user" json:"user"`
}

// Option customizes a Manager.
type Option func(*options)

type options struct {
	auditor Auditor
	store   Storage
	catalog Catalog
	metrics *metrics.Collector
	scanner *phi.Scanner
	now     func() time.Time
}

// WithAuditor replaces the file-backed audit trail. The caller keeps
// ownership; Close does not close it.
func WithAuditor(a Auditor) Option {
	return func(o *options) { o.auditor = a }
}

// WithStorage replaces the file storage backend.
func WithStorage(s Storage) Option {
	return func(o *options) { o.store = s }
}

// WithCatalog mirrors every mutation into c.
func WithCatalog(c Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithMetrics records Prometheus metrics through c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithScanner overrides the scanner built from Config.PHI.
func WithScanner(s *phi.Scanner) Option {
	return func(o *options) { o.scanner = s }
}

// WithClock overrides the time source for artifacts, runs and audit entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Manager orchestrates storage, audit and index. Construct one per process
// with New and share it by reference.
type Manager struct {
	cfg       Config
	store     Storage
	trail     Auditor
	ownsTrail bool
	catalog   Catalog
	metrics   *metrics.Collector
	scanner   *phi.Scanner
	now       func() time.Time
	user      string
	logger    *zap.Logger

	mu      sync.RWMutex
	index   map[string]*artifact.Artifact
	retired map[string]struct{}
	runs    map[string]*artifact.ProcessingRun
	active  *artifact.ProcessingRun
	closed  bool

	// unreadable holds ids whose metadata document failed to load.
	unreadable []string
}

// New builds the storage backend and audit trail (unless supplied through
// options), then loads the persisted index and any run left open.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.VerifyWorkers <= 0 {
		cfg.VerifyWorkers = 4
	}
	if cfg.MaxLineageNodes <= 0 {
		cfg.MaxLineageNodes = artifact.DefaultMaxLineageNodes
	}
	if cfg.User == "" {
		cfg.User = os.Getenv("USER")
	}

	m := &Manager{
		cfg:     cfg,
		store:   o.store,
		trail:   o.auditor,
		catalog: o.catalog,
		metrics: o.metrics,
		scanner: o.scanner,
		now:     o.now,
		user:    cfg.User,
		logger:  logger.With(zap.String("component", "artifact_manager")),
		index:   make(map[string]*artifact.Artifact),
		runs:    make(map[string]*artifact.ProcessingRun),
	}
	if m.scanner == nil {
		m.scanner = phi.NewScanner(cfg.PHI)
	}

	if m.store == nil {
		scfg := cfg.Storage
		if scfg.BasePath == "" {
			if cfg.BasePath == "" {
				return nil, types.Validation("base path is required")
			}
			scfg.BasePath = filepath.Join(cfg.BasePath, "storage")
		}
		fs, err := storage.New(scfg, logger)
		if err != nil {
			return nil, err
		}
		m.store = fs
	}

	if m.trail == nil {
		acfg := cfg.Audit
		if acfg.Dir == "" {
			if cfg.BasePath == "" {
				return nil, types.Validation("audit directory is required")
			}
			acfg.Dir = filepath.Join(cfg.BasePath, "audit")
		}
		trail, err := audit.Open(acfg, logger, audit.WithClock(o.now))
		if err != nil {
			return nil, err
		}
		m.trail = trail
		m.ownsTrail = true
	}

	if err := m.load(); err != nil {
		if m.ownsTrail {
			_ = m.trail.Close()
		}
		return nil, err
	}
	m.syncCatalog(context.Background())
	m.metrics.SetIndexedArtifacts(m.countByType())

	fields := []zap.Field{
		zap.Int("artifacts", len(m.index)),
		zap.Int("runs", len(m.runs)),
	}
	if m.active != nil {
		fields = append(fields, zap.String("active_run", m.active.ID))
	}
	m.logger.Info("artifact manager initialized", fields...)
	return m, nil
}

// load rebuilds the index from metadata documents, tombstones and runs.
func (m *Manager) load() error {
	docs, unreadable, err := m.store.LoadAllMetadata()
	if err != nil {
		return err
	}
	for _, a := range docs {
		m.index[a.ID] = a
	}
	m.unreadable = unreadable
	if len(unreadable) > 0 {
		m.logger.Warn("unreadable metadata documents, cleanup disabled until repaired",
			zap.Strings("artifact_ids", unreadable),
		)
	}

	retired, err := m.store.LoadTombstones()
	if err != nil {
		return err
	}
	if retired == nil {
		retired = make(map[string]struct{})
	}
	m.retired = retired

	runs, err := m.store.ListRuns()
	if err != nil {
		return err
	}
	for _, r := range runs {
		m.runs[r.ID] = r
		if r.Active() && (m.active == nil || r.StartedAt.After(m.active.StartedAt)) {
			m.active = r
		}
	}
	return nil
}

func (m *Manager) syncCatalog(ctx context.Context) {
	if m.catalog == nil {
		return
	}
	for _, a := range m.index {
		m.mirror(ctx, a)
	}
	for _, r := range m.runs {
		m.mirrorRun(ctx, r)
	}
}

// Close releases the audit trail if the manager opened it. Further
// operations fail.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if m.ownsTrail {
		if err := m.trail.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c, ok := m.catalog.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AuditTrail exposes the audit trail for history queries and exports.
func (m *Manager) AuditTrail() Auditor {
	return m.trail
}

// StorageRoot is the absolute storage root.
func (m *Manager) StorageRoot() string {
	return m.store.Root()
}

func (m *Manager) checkOpen() error {
	if m.closed {
		return types.Validation("artifact manager is closed")
	}
	return nil
}

// newID returns a uuid never used by a live or removed artifact.
func (m *Manager) newID() string {
	for {
		id := uuid.NewString()
		if _, ok := m.index[id]; ok {
			continue
		}
		if _, ok := m.retired[id]; ok {
			continue
		}
		return id
	}
}

func (m *Manager) activeRunID() string {
	if m.active == nil {
		return ""
	}
	return m.active.ID
}

// record appends an audit entry. It never uses the caller's cancellation so
// that an abandoned request still leaves its trace.
func (m *Manager) record(ctx context.Context, e audit.Entry) error {
	if e.User == "" {
		e.User = m.actor(ctx)
	}
	if e.RunID == "" {
		e.RunID = m.activeRunID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}
	_, err := m.trail.Record(context.WithoutCancel(ctx), e)
	if err != nil {
		m.metrics.RecordAuditWriteFailure()
		m.logger.Error("audit write failed",
			zap.String("operation", e.Operation),
			zap.String("artifact_id", e.ArtifactID),
			zap.Error(err),
		)
		if !types.IsCode(err, types.ErrAuditWriteFailure) {
			err = types.AuditWriteFailure(err, "record %s", e.Operation)
		}
		return err
	}
	m.metrics.RecordAuditEntry(e.Operation, e.Success)
	return nil
}

// WithUser attributes audit entries written under ctx to user instead of the
// configured default.
func WithUser(ctx context.Context, user string) context.Context {
	return ctxkeys.WithUser(ctx, user)
}

func (m *Manager) actor(ctx context.Context) string {
	if u, ok := ctxkeys.User(ctx); ok {
		return u
	}
	return m.user
}

// recordFailure audits a failed attempt and returns the original error. An
// audit failure on this path is logged by record and otherwise dropped.
func (m *Manager) recordFailure(ctx context.Context, e audit.Entry, cause error) error {
	e.Success = false
	e.Error = cause.Error()
	_ = m.record(ctx, e)
	return cause
}

func (m *Manager) mirror(ctx context.Context, a *artifact.Artifact) {
	if m.catalog == nil {
		return
	}
	if err := m.catalog.UpsertArtifact(ctx, a); err != nil {
		m.logger.Warn("catalog upsert failed", zap.String("artifact_id", a.ID), zap.Error(err))
	}
}

func (m *Manager) mirrorRun(ctx context.Context, r *artifact.ProcessingRun) {
	if m.catalog == nil {
		return
	}
	if err := m.catalog.UpsertRun(ctx, r); err != nil {
		m.logger.Warn("catalog run upsert failed", zap.String("run_id", r.ID), zap.Error(err))
	}
}

func (m *Manager) countByType() map[string]int {
	counts := make(map[string]int)
	for _, t := range artifact.AllArtifactTypes() {
		counts[string(t)] = 0
	}
	for _, a := range m.index {
		counts[string(a.Type)]++
	}
	return counts
}

// observe closes out an operation for metrics.
func (m *Manager) observe(op string, start time.Time, err error) {
	m.metrics.RecordOperation(op, err, time.Since(start))
}
