package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ampliconflow/internal/chimera"
	"ampliconflow/internal/cluster"
	"ampliconflow/internal/config"
	"ampliconflow/internal/derep"
	"ampliconflow/internal/engine"
	"ampliconflow/internal/featuretable"
	"ampliconflow/internal/logging"
	"ampliconflow/internal/manifest"
	"ampliconflow/internal/qc"
	"ampliconflow/internal/samples"
	"ampliconflow/internal/seqio"
	"ampliconflow/internal/services"
	"ampliconflow/internal/stats"
	"ampliconflow/internal/workspace"
)

// Stage names not owned by a stage package.
const (
	StagePool      = "pool"
	StagePartition = "chimera_partition"
	StageStats     = "stats"
)

const tracerName = "ampliconflow/pipeline"

// Request describes one run.
type Request struct {
	Manifest *manifest.Manifest
	Mode     Mode
	// RunID is generated when empty.
	RunID string
}

// Outputs are the artifacts of a successful run.
type Outputs struct {
	RunID   string
	Mode    Mode
	Backend string
	// Kind is the feature kind of Table ("zotus" or "otus").
	Kind         string
	Table        *featuretable.Table
	Features     seqio.FeatureSet
	ChimeraTable *featuretable.Table
	Stats        *stats.Table
	Summary      stats.Summary
	// IdentifierPairs lists surrogate/declared pairs when surrogates were used.
	IdentifierPairs [][2]string
	Invocations     []engine.Invocation
	// Workspace is the retained workspace path, empty when it was removed.
	Workspace  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor replaces the engine process executor (primarily for tests).
func WithExecutor(exec engine.Executor) Option {
	return func(r *Runner) { r.exec = exec }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracer sets the tracer used for stage spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithObserver registers a callback for every engine invocation.
func WithObserver(fn func(engine.Invocation)) Option {
	return func(r *Runner) { r.observer = fn }
}

// Runner executes pipeline runs against a configuration.
type Runner struct {
	cfg      *config.Config
	exec     engine.Executor
	logger   *slog.Logger
	tracer   trace.Tracer
	observer func(engine.Invocation)
}

// New builds a Runner.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "configuration required", nil)
	}
	r := &Runner{
		cfg:    cfg,
		logger: logging.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// run holds the state of one execution.
type run struct {
	*Runner
	id        string
	mode      Mode
	ws        *workspace.Workspace
	eng       *engine.Client
	chimeraEn *engine.Client

	mu          sync.Mutex
	invocations []engine.Invocation
}

func (r *run) record(inv engine.Invocation) {
	r.mu.Lock()
	r.invocations = append(r.invocations, inv)
	r.mu.Unlock()
	if r.observer != nil {
		r.observer(inv)
	}
}

// Run executes every stage for req. The workspace is released on every
// exit path.
func (r *Runner) Run(ctx context.Context, req Request) (_ *Outputs, err error) {
	if req.Manifest == nil || len(req.Manifest.Samples) == 0 {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "run", "manifest declares no samples", nil)
	}
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	id := req.RunID
	if id == "" {
		id = uuid.NewString()
	}
	ctx = services.WithRunID(ctx, id)
	logger := logging.WithContext(ctx, r.logger)

	ctx, span := r.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", id),
		attribute.String("run.mode", string(mode)),
		attribute.Int("run.samples", len(req.Manifest.Samples)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rn := &run{Runner: r, id: id, mode: mode}
	if err := rn.setupEngines(logger); err != nil {
		return nil, err
	}
	if mode == ModeCluster {
		if err := cluster.NewOTUClusterer(rn.eng, nil, rn.clusterOptions(), nil).Validate(); err != nil {
			return nil, err
		}
	}

	workspace.CleanStale(ctx, r.cfg.Paths.WorkDir, workspace.DefaultStaleAge, logger)
	ws, err := workspace.Acquire(r.cfg.Paths.WorkDir, id, r.cfg.Paths.KeepWorkspace, logger)
	if err != nil {
		return nil, err
	}
	// Release logs its own failures; a leftover workspace is collected by
	// the next stale sweep.
	defer func() { _ = ws.Release() }()
	rn.ws = ws

	started := time.Now()
	logger.Info("run started",
		logging.String("mode", string(mode)),
		logging.String("backend", string(rn.eng.Backend())),
		logging.Int("samples", len(req.Manifest.Samples)),
		logging.Int("threads", rn.eng.Threads()),
		logging.String(logging.FieldEventType, "run_start"),
	)
	out, err := rn.execute(ctx, req.Manifest)
	if err != nil {
		logging.ErrorWithContext(logger, "run failed", "run_failure",
			logging.Error(err),
			logging.Duration("duration", time.Since(started)),
		)
		return nil, err
	}
	out.StartedAt = started
	out.FinishedAt = time.Now()
	if r.cfg.Paths.KeepWorkspace {
		out.Workspace = ws.Root()
	}
	logger.Info("run completed",
		logging.String("summary", out.Summary.String()),
		logging.Duration("duration", out.FinishedAt.Sub(started)),
		logging.String(logging.FieldEventType, "run_complete"),
	)
	return out, nil
}

func (r *run) setupEngines(logger *slog.Logger) error {
	backend, err := engine.ParseBackend(r.cfg.Engine.Backend)
	if err != nil {
		return err
	}
	threads := engine.ResolveThreads(r.cfg.Engine.Threads)
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithThreads(threads),
		engine.WithObserver(r.record),
	}
	if r.exec != nil {
		opts = append(opts, engine.WithExecutor(r.exec))
	}
	r.eng, err = engine.New(backend, r.cfg.EngineBinary(string(backend)), opts...)
	if err != nil {
		return err
	}
	chimeraBackend, err := engine.ParseBackend(r.cfg.ChimeraBackend())
	if err != nil {
		return err
	}
	if chimeraBackend != backend {
		r.chimeraEn, err = engine.New(chimeraBackend, r.cfg.EngineBinary(string(chimeraBackend)), opts...)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *run) clusterOptions() cluster.ClusterOptions {
	return cluster.ClusterOptions{MinSize: r.cfg.Cluster.MinSize, Identity: r.cfg.Cluster.Identity}
}

// stage wraps fn with a span and the stage lifecycle log events.
func (r *run) stage(ctx context.Context, name string, fn func(context.Context, *slog.Logger) error) error {
	ctx = logging.WithStage(ctx, name)
	ctx, span := r.tracer.Start(ctx, "pipeline."+name, trace.WithAttributes(attribute.String("stage", name)))
	defer span.End()

	logger := logging.WithContext(ctx, logging.ForStage(r.logger, name, r.cfg.Logging.StageOverrides))
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	start := time.Now()
	if err := fn(ctx, logger); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.Duration("duration", time.Since(start)),
			logging.Error(err),
		)
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("duration", time.Since(start)),
	)
	return nil
}

func (r *run) execute(ctx context.Context, m *manifest.Manifest) (*Outputs, error) {
	cfg := r.cfg
	var (
		pooled    samples.PooledReadSet
		initial   *stats.Fragment
		idmap     *samples.IdentifierMap
		filtered  qc.FilteredReadSet
		passed    *stats.Fragment
		uniques   derep.UniqueReadSet
		amplified cluster.AmplifiedFeatureSet
		clean     seqio.FeatureSet
		chimeras  *seqio.FeatureSet
		built     featuretable.Result
		summary   stats.Summary
		kind      = cluster.KindZOTU
	)

	err := r.stage(ctx, StagePool, func(ctx context.Context, logger *slog.Logger) error {
		var err error
		pooled, initial, idmap, err = samples.NormalizeAndPool(ctx, m, r.ws, samples.Options{
			Workers:         cfg.Pooling.Workers,
			KeepAnnotations: cfg.Pooling.KeepAnnotations,
			Logger:          logger,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(ctx, qc.Stage, func(ctx context.Context, logger *slog.Logger) error {
		var err error
		filtered, passed, err = qc.Filter(ctx, r.eng, r.ws, pooled, r.thresholds(m), logger)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(ctx, derep.Stage, func(ctx context.Context, logger *slog.Logger) error {
		var err error
		uniques, err = derep.Dereplicate(ctx, r.eng, r.ws, filtered, derep.Options{
			MinUniqueSize: cfg.Dereplicate.MinUniqueSize,
			BothStrands:   cfg.Dereplicate.BothStrands,
		}, logger)
		return err
	})
	if err != nil {
		return nil, err
	}

	var backend cluster.Backend
	if r.mode == ModeCluster {
		backend = cluster.NewOTUClusterer(r.eng, r.ws, r.clusterOptions(), logging.ForStage(r.logger, cluster.StageCluster, cfg.Logging.StageOverrides))
	} else {
		backend = cluster.NewDenoiser(r.eng, r.ws, cluster.DenoiseOptions{
			MinSize: cfg.Denoise.MinSize,
			Alpha:   cfg.Denoise.Alpha,
		}, logging.ForStage(r.logger, cluster.StageDenoise, cfg.Logging.StageOverrides))
	}
	err = r.stage(ctx, backend.Stage(), func(ctx context.Context, _ *slog.Logger) error {
		var err error
		amplified, err = backend.Cluster(ctx, uniques)
		return err
	})
	if err != nil {
		return nil, err
	}
	kind = amplified.Kind

	err = r.stage(ctx, StagePartition, func(_ context.Context, logger *slog.Logger) error {
		clean, chimeras = chimera.Partition(amplified.Amplicons, amplified.Survivors)
		logger.Info("features partitioned",
			logging.Int("features", clean.Len()),
			logging.Int("chimeras", chimeras.Len()),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	summary = stats.Summary{
		TotalReads:   uniques.Stats.Total,
		UniqueReads:  uniques.Stats.Unique,
		Singletons:   uniques.Stats.Singletons,
		Amplicons:    amplified.Stats.Amplicons,
		Features:     amplified.Stats.Features,
		Chimeras:     amplified.Stats.Chimeras,
		FeatureLabel: featureLabel(kind),
	}
	if summary.TotalReads == stats.Unknown {
		summary.TotalReads = filtered.Reads
	}

	if r.mode == ModeDenoiseCluster {
		err = r.stage(ctx, cluster.StageRecluster, func(ctx context.Context, logger *slog.Logger) error {
			otus, err := cluster.Recluster(ctx, r.eng, r.ws, clean, cfg.Cluster.ReclusterIdentity, logger)
			if err != nil {
				return err
			}
			clean = otus
			kind = cluster.KindOTU
			summary.Reclustered = int64(otus.Len())
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	err = r.stage(ctx, featuretable.StageMap, func(ctx context.Context, logger *slog.Logger) error {
		reads, identity := tableInputs(r.mode, r.eng.Backend(), cfg, pooled.Path, filtered.Path)
		var err error
		built, err = featuretable.Build(ctx, r.eng, r.ws, featuretable.Request{
			Reads:         reads,
			Clean:         clean,
			Chimeras:      chimeras,
			Identity:      identity,
			Kind:          kind,
			Samples:       pooled.Samples,
			ChimeraEngine: r.chimeraEn,
		}, logger)
		return err
	})
	if err != nil {
		return nil, err
	}

	var table *stats.Table
	err = r.stage(ctx, StageStats, func(_ context.Context, logger *slog.Logger) error {
		var err error
		table, err = aggregate(kind, initial, passed, built)
		if err != nil {
			return err
		}
		table.SetSummary(summary.String())
		if idmap == nil {
			return nil
		}
		targets := []stats.SampleRelabeler{table, built.Table}
		if built.ChimeraTable != nil {
			targets = append(targets, built.ChimeraTable)
		}
		if err := stats.Restore(idmap, targets...); err != nil {
			return err
		}
		logger.Info("sample identifiers restored", logging.Int("samples", idmap.Len()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	invocations := append([]engine.Invocation(nil), r.invocations...)
	r.mu.Unlock()
	return &Outputs{
		RunID:           r.id,
		Mode:            r.mode,
		Backend:         string(r.eng.Backend()),
		Kind:            kind,
		Table:           built.Table,
		Features:        built.Features,
		ChimeraTable:    built.ChimeraTable,
		Stats:           table,
		Summary:         summary,
		IdentifierPairs: idmap.Pairs(),
		Invocations:     invocations,
	}, nil
}

func (r *run) thresholds(m *manifest.Manifest) qc.Thresholds {
	f := r.cfg.Filter
	th := qc.Thresholds{
		MaxExpectedError: f.MaxEE,
		MinLength:        f.MinLength,
		MaxN:             f.MaxNs,
		TruncQual:        f.TruncQual,
		ASCIIOffset:      m.PhredOffset,
	}
	if f.TrimLeft > 0 {
		trim := f.TrimLeft
		th.TrimLeft = &trim
	}
	if f.TruncLen > 0 {
		trunc := f.TruncLen
		th.TruncateRight = &trunc
	}
	return th
}

func aggregate(kind string, initial, passed *stats.Fragment, built featuretable.Result) (*stats.Table, error) {
	table, err := stats.Aggregate(initial, passed, built.Mapped, built.ChimeraMapped)
	if err != nil {
		return nil, err
	}
	percents := [][3]string{
		{stats.ColumnPercentPassed, stats.ColumnPassed, stats.ColumnInitial},
		{stats.PercentMappedColumn(kind), stats.MappedColumn(kind), stats.ColumnInitial},
		{stats.ColumnPercentChimera, stats.ColumnChimeraMapped, stats.ColumnInitial},
	}
	for _, p := range percents {
		if err := table.AddPercent(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}
	return table, nil
}

func featureLabel(kind string) string {
	if kind == cluster.KindOTU {
		return "OTUs"
	}
	return "ZOTUs"
}

// tableInputs picks the reads mapped onto the features and the identity
// used. zOTU tables map at 100%, on the unfiltered pool for usearch; OTU
// tables map filtered reads at the identity the OTUs were clustered at.
func tableInputs(mode Mode, backend engine.Backend, cfg *config.Config, pooled, filtered string) (string, float64) {
	switch mode {
	case ModeDenoise:
		if backend == engine.Usearch {
			return pooled, featuretable.ZOTUIdentity
		}
		return filtered, featuretable.ZOTUIdentity
	case ModeDenoiseCluster:
		return filtered, cfg.Cluster.ReclusterIdentity
	default:
		return filtered, cfg.Mapping.OTUIdentity
	}
}
