// Package engine runs resources: it moves the records of one source to one
// destination through setup, schema reconciliation, a sequential batch loop
// and finalize, and records the outcome in the run manifest.
//
// A run ends in one of three states. It fails on an unexpected error or on
// an abort (a quality check with action fail, or a rejected schema change).
// It is partial when records were rejected along the way, and a success
// otherwise. Unexpected failures save a checkpoint so the run can resume;
// aborts leave checkpoints untouched; successes clear them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"conduit/internal/checkpoint"
	"conduit/internal/config"
	"conduit/internal/connector"
	"conduit/internal/incremental"
	"conduit/internal/logger"
	"conduit/internal/manifest"
	"conduit/internal/metrics"
	"conduit/internal/quality"
	"conduit/internal/schema"
)

// Options wires the engine's collaborators. Registry is required; the
// rest have no-op defaults.
type Options struct {
	Registry *connector.Registry
	// Checks holds custom quality checks in addition to the built-ins.
	Checks   *quality.Registry
	Metrics  *metrics.Recorder
	Manifest *manifest.Manifest
	Logger   logger.Logger
}

// Engine executes resources defined in an ingest file.
type Engine struct {
	cfg      *config.File
	registry *connector.Registry
	checks   *quality.Registry
	metrics  *metrics.Recorder
	manifest *manifest.Manifest
	log      logger.Logger

	checkpoints *checkpoint.Store
	states      *incremental.Store
	schemas     *schema.Store
	errorDir    string

	now func() time.Time
}

// New returns an Engine for cfg. State lives under cfg.Runtime.StateDir:
//
//	checkpoints/<resource>.json
//	state/<resource>_state.json
//	schemas/, schema_evolution/
//	errors/<resource>_errors_<timestamp>.json
func New(cfg *config.File, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: nil config")
	}
	if opts.Registry == nil {
		return nil, errors.New("engine: connector registry is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNull()
	}
	checks := opts.Checks
	if checks == nil {
		checks = quality.NewRegistry()
	}
	dir := cfg.Runtime.StateDir
	return &Engine{
		cfg:         cfg,
		registry:    opts.Registry,
		checks:      checks,
		metrics:     opts.Metrics,
		manifest:    opts.Manifest,
		log:         log.WithName("conduit:engine"),
		checkpoints: checkpoint.NewStore(filepath.Join(dir, "checkpoints"), log),
		states:      incremental.NewStore(filepath.Join(dir, "state"), log),
		schemas:     schema.NewStore(dir, log),
		errorDir:    filepath.Join(dir, "errors"),
		now:         time.Now,
	}, nil
}

// Checkpoints exposes the checkpoint store for the CLI.
func (e *Engine) Checkpoints() *checkpoint.Store { return e.checkpoints }

// Schemas exposes the schema store for the CLI.
func (e *Engine) Schemas() *schema.Store { return e.schemas }

// RunOptions tune a single invocation.
type RunOptions struct {
	// DryRun reads and validates everything but writes nothing: no
	// destination data, DDL, checkpoints or incremental state.
	DryRun bool
	// Resume starts from the resource's checkpoint when one exists.
	Resume bool
	// BatchSize overrides the configured batch size when positive.
	BatchSize int
}

// Summary describes a finished run.
type Summary struct {
	Resource       string
	RunID          string
	Status         manifest.Status
	RecordsRead    int64
	RecordsWritten int64
	RecordsFailed  int64
	Duration       time.Duration
	// ErrorLog is the path of the flushed error log, if any.
	ErrorLog string
	// Watermark is the new incremental value when it advanced.
	Watermark any
	Gaps      []incremental.Gap
	Err       error
}

// Run executes the resource called name. The returned error is the run's
// failure cause and is also recorded in the Summary and the manifest.
func (e *Engine) Run(ctx context.Context, name string, opts RunOptions) (Summary, error) {
	res, ok := e.cfg.Resource(name)
	if !ok {
		return Summary{Resource: name}, fmt.Errorf("engine: unknown resource %q", name)
	}
	src, ok := e.cfg.Source(res.Source)
	if !ok {
		return Summary{Resource: name}, fmt.Errorf("engine: resource %q: unknown source %q", name, res.Source)
	}
	dst, ok := e.cfg.Destination(res.Destination)
	if !ok {
		return Summary{Resource: name}, fmt.Errorf("engine: resource %q: unknown destination %q", name, res.Destination)
	}

	r := newRun(e, res, src, dst, opts)
	return r.execute(ctx)
}

// RunAll runs every resource in file order. A failing resource does not
// stop the others; the failures are joined into the returned error.
func (e *Engine) RunAll(ctx context.Context, opts RunOptions) ([]Summary, error) {
	var (
		out  []Summary
		errs []error
	)
	for _, res := range e.cfg.Resources {
		s, err := e.Run(ctx, res.Name, opts)
		out = append(out, s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, err))
		}
	}
	return out, errors.Join(errs...)
}
