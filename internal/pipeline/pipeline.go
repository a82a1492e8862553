// Package pipeline runs the build-time generation stages in order:
//
//  1. print the rebuild triggers
//  2. read and validate the build variables
//  3. render and write the constants file
//  4. generate the interface bindings
//  5. record the stamp
//
// Any failure aborts the run. Bindings are only generated once the
// constants file is written, and a binding failure leaves that file in
// place. The stamp is only written after a fully successful run so a
// driver keeps asking for a rerun until one succeeds.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/terrpan/lorrigen/internal/bindgen"
	"github.com/terrpan/lorrigen/internal/buildenv"
	"github.com/terrpan/lorrigen/internal/builderr"
	"github.com/terrpan/lorrigen/internal/buildmeta"
	"github.com/terrpan/lorrigen/internal/buildsys"
	"github.com/terrpan/lorrigen/internal/manifest"
)

const instrumentationName = "github.com/terrpan/lorrigen/internal/pipeline"

// Stage names, used in spans, metrics and logs.
const (
	StageTriggers  = "triggers"
	StageConstants = "constants"
	StageBindings  = "bindings"
	StageStamp     = "stamp"
)

// outDirHint is the remediation when no output directory is known.
const outDirHint = "run under go generate, export OUT_DIR or pass --out-dir"

// Config holds everything a run needs. Paths are final; host inputs are
// resolved by the caller.
type Config struct {
	// ManifestPath is the project manifest supplying the version.
	ManifestPath string
	// OutDir receives the constants file. Empty reports OUT_DIR missing.
	OutDir string
	// ConstantsFile is the file name inside OutDir.
	ConstantsFile string
	// Package is the package clause of the constants file.
	Package string

	IDLPath   string
	SourceDir string
	Formatted bool
	Generator bindgen.Generator

	// Script is the file-change trigger.
	Script string
	// StampPath is where a successful run records its inputs. Empty skips
	// the stamp.
	StampPath string

	// Lookup reads the process environment. Default: os.LookupEnv.
	Lookup buildenv.Lookup
	// Directives receives the rebuild triggers. Default: os.Stdout.
	Directives io.Writer
	Logger     *slog.Logger
}

// Report describes a successful run.
type Report struct {
	Metadata      buildmeta.Metadata
	ConstantsPath string
	Bindings      *bindgen.Result
	StampPath     string
}

// Pipeline runs the generation stages.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer

	stageRuns     metric.Int64Counter
	stageDuration metric.Float64Histogram
}

// New creates a Pipeline and registers its metrics.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Lookup == nil {
		cfg.Lookup = os.LookupEnv
	}
	if cfg.Directives == nil {
		cfg.Directives = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = manifest.DefaultPath
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
		tracer: otel.Tracer(instrumentationName),
	}

	meter := otel.Meter(instrumentationName)
	var err error
	p.stageRuns, err = meter.Int64Counter(
		"lorrigen.stage.runs",
		metric.WithDescription("Total number of pipeline stage executions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stage runs counter: %w", err)
	}

	p.stageDuration, err = meter.Float64Histogram(
		"lorrigen.stage.duration",
		metric.WithDescription("Time spent in a pipeline stage (seconds)"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stage duration histogram: %w", err)
	}

	return p, nil
}

// Triggers returns the rebuild triggers of this pipeline.
func (p *Pipeline) Triggers() []buildsys.Directive {
	return buildsys.Triggers(buildenv.Triggers, p.cfg.Script)
}

// Run executes every stage.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	report := &Report{}

	err := p.stage(ctx, StageTriggers, func(ctx context.Context) error {
		triggers := p.Triggers()
		for _, path := range buildsys.MissingFiles(triggers) {
			p.logger.Warn("rerun trigger file does not exist",
				slog.String("path", path),
				slog.String("hint", "set paths.script to the file carrying the go:generate line"),
			)
		}
		return buildsys.Emit(p.cfg.Directives, triggers)
	})
	if err != nil {
		return nil, p.fail(span, err)
	}

	err = p.stage(ctx, StageConstants, func(ctx context.Context) error {
		var err error
		report.Metadata, report.ConstantsPath, err = p.constants()
		return err
	})
	if err != nil {
		return nil, p.fail(span, err)
	}

	err = p.stage(ctx, StageBindings, func(ctx context.Context) error {
		var err error
		report.Bindings, err = p.bindings(ctx)
		return err
	})
	if err != nil {
		return nil, p.fail(span, err)
	}

	if p.cfg.StampPath != "" {
		err = p.stage(ctx, StageStamp, func(ctx context.Context) error {
			return buildsys.WriteStamp(p.cfg.StampPath, p.Triggers(), p.cfg.Lookup)
		})
		if err != nil {
			return nil, p.fail(span, err)
		}
		report.StampPath = p.cfg.StampPath
	}

	span.SetAttributes(
		attribute.Int64("lorrigen.revision_count", clampInt64(report.Metadata.RevisionCount)),
		attribute.String("lorrigen.version", report.Metadata.Version()),
	)
	p.logger.Info("generation complete",
		slog.String("constants", report.ConstantsPath),
		slog.String("bindings", report.Bindings.Path),
		slog.String("version", report.Metadata.Version()),
		slog.Uint64("revisionCount", report.Metadata.RevisionCount),
	)
	return report, nil
}

// Constants reads the build variables and writes the constants file. It
// returns the path written.
func (p *Pipeline) Constants(ctx context.Context) (string, error) {
	var path string
	err := p.stage(ctx, StageConstants, func(context.Context) error {
		var err error
		_, path, err = p.constants()
		return err
	})
	return path, err
}

// Bindings generates the interface bindings.
func (p *Pipeline) Bindings(ctx context.Context) (*bindgen.Result, error) {
	var res *bindgen.Result
	err := p.stage(ctx, StageBindings, func(ctx context.Context) error {
		var err error
		res, err = p.bindings(ctx)
		return err
	})
	return res, err
}

// Check reports why the outputs are out of date with respect to the
// recorded stamp. An empty result means a rerun is not needed.
func (p *Pipeline) Check() ([]string, error) {
	if p.cfg.StampPath == "" {
		return nil, builderr.Missing("OUT_DIR", outDirHint)
	}
	return buildsys.Stale(p.cfg.StampPath, p.Triggers(), p.cfg.Lookup)
}

// ---------------------------------------------------------------------------
// Stages
// ---------------------------------------------------------------------------

func (p *Pipeline) constants() (buildmeta.Metadata, string, error) {
	mf, err := manifest.Load(p.cfg.ManifestPath)
	if err != nil {
		return buildmeta.Metadata{}, "", err
	}

	// The host environment wins over the manifest, as a build system's own
	// variables would.
	lookup := buildenv.Chain(p.cfg.Lookup, mf.Lookup)
	meta, err := buildenv.NewReader(lookup, mf.Path()).Read()
	if err != nil {
		return buildmeta.Metadata{}, "", err
	}

	if p.cfg.OutDir == "" {
		return buildmeta.Metadata{}, "", builderr.Missing("OUT_DIR", outDirHint)
	}

	src, err := buildmeta.Render(p.cfg.Package, meta)
	if err != nil {
		return buildmeta.Metadata{}, "", err
	}
	path, err := buildmeta.Write(p.cfg.OutDir, p.cfg.ConstantsFile, src)
	if err != nil {
		return buildmeta.Metadata{}, "", err
	}

	p.logger.Debug("constants written",
		slog.String("path", path),
		slog.String("package", p.cfg.Package),
		slog.String("version", meta.Version()),
		slog.Uint64("revisionCount", meta.RevisionCount),
	)
	return meta, path, nil
}

func (p *Pipeline) bindings(ctx context.Context) (*bindgen.Result, error) {
	if p.cfg.Generator == nil {
		return nil, builderr.Missing("bindings.generator", "configure a binding generator")
	}
	res, err := p.cfg.Generator.Generate(ctx, bindgen.Request{
		IDLPath:   p.cfg.IDLPath,
		SourceDir: p.cfg.SourceDir,
		Formatted: p.cfg.Formatted,
	})
	if err != nil {
		return nil, err
	}
	p.logger.Debug("bindings generated",
		slog.String("generator", p.cfg.Generator.Name()),
		slog.String("idl", p.cfg.IDLPath),
		slog.String("path", res.Path),
	)
	return res, nil
}

// ---------------------------------------------------------------------------
// Instrumentation
// ---------------------------------------------------------------------------

// stage runs fn in its own span and records its outcome.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start).Seconds()

	outcome := "ok"
	if err != nil {
		outcome = builderr.KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := metric.WithAttributes(
		attribute.String("stage", name),
		attribute.String("outcome", outcome),
	)
	p.stageRuns.Add(ctx, 1, attrs)
	p.stageDuration.Record(ctx, elapsed, attrs)

	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// clampInt64 saturates u at math.MaxInt64 for int64-only sinks such as span
// attributes.
func clampInt64(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(u)
}

func (p *Pipeline) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.logger.Error("generation failed",
		slog.String("kind", builderr.KindOf(err).String()),
		slog.String("error", err.Error()),
	)
	return err
}
