package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"conduit/internal/batch"
	"conduit/internal/coerce"
	"conduit/internal/config"
	"conduit/internal/connector"
	"conduit/internal/ddl"
	"conduit/internal/dlq"
	"conduit/internal/extract"
	"conduit/internal/incremental"
	"conduit/internal/logger"
	"conduit/internal/manifest"
	"conduit/internal/metrics"
	"conduit/internal/quality"
	"conduit/internal/records"
	"conduit/internal/retry"
	"conduit/internal/schema"
	schemaddl "conduit/internal/schema/ddl"
)

// phase is one step of a run. Semantic rejections come back as an Abort
// result; anything else that goes wrong is an error.
type phase struct {
	name string
	fn   func(ctx context.Context) (PhaseResult, error)
}

// run holds the state of one resource execution. It is used once.
type run struct {
	e    *Engine
	res  config.Resource
	src  config.Source
	dst  config.Destination
	opts RunOptions
	log  logger.Logger

	tracker  *manifest.Tracker
	rejected *dlq.Log
	metrics  *metrics.Recorder

	source connector.Source
	dest   connector.Destination
	stream records.Iterator

	validator *quality.Validator
	coercer   *coerce.Coercer
	inferred  schema.Schema

	inc    *incremental.Config
	column string
	floor  any
	wm     incremental.Watermark

	baseline map[string]quality.ColumnStats
	stats    map[string]quality.ColumnStats

	read, written, failed int64
	lastCheckpoint        int64
	gaps                  []incremental.Gap
	advanced              any
}

func newRun(e *Engine, res config.Resource, src config.Source, dst config.Destination, opts RunOptions) *run {
	return &run{
		e:        e,
		res:      res,
		src:      src,
		dst:      dst,
		opts:     opts,
		log:      e.log.WithName("conduit:run"),
		rejected: dlq.New(res.Name),
		metrics:  e.metrics.WithJob(res.Name),
	}
}

func (r *run) execute(ctx context.Context) (Summary, error) {
	start := r.e.now()
	ctx = logger.WithContext(ctx, r.log)
	r.tracker = r.e.manifest.Start(r.res.Name, r.src.Type, r.dst.Type)
	if r.opts.DryRun {
		r.tracker.Metadata["dry_run"] = true
	}
	r.log.Info("run started", "resource", r.res.Name, "run_id", r.tracker.RunID(),
		"source", r.src.Name, "destination", r.dst.Name, "dry_run", r.opts.DryRun)

	runErr := r.phases(ctx)
	r.close()

	if runErr != nil {
		if ae, ok := AsAbort(runErr); ok {
			r.log.Error("run aborted", "resource", r.res.Name, "kind", string(ae.Kind), "reason", ae.Message)
		} else {
			r.log.Error("run failed", "resource", r.res.Name, "error", runErr)
			r.saveResumePoint()
		}
	}

	errorLog, err := r.rejected.Flush(r.e.errorDir)
	if err != nil {
		r.log.Error("failed to write error log", "resource", r.res.Name, "error", err)
	} else if errorLog != "" {
		r.tracker.Metadata["error_log"] = errorLog
		r.log.Warn("rejected records written to error log", "resource", r.res.Name,
			"path", errorLog, "quality", r.rejected.QualityCount(), "processing", r.rejected.ProcessingCount())
	}

	r.tracker.RecordsRead = r.read
	r.tracker.RecordsWritten = r.written
	r.tracker.RecordsFailed = r.failed
	entry, err := r.tracker.Finish(runErr)
	if err != nil {
		r.log.Error("failed to record run in manifest", "resource", r.res.Name, "error", err)
	}

	d := r.e.now().Sub(start)
	r.metrics.RecordStep("run", runErr, d)
	if err := r.metrics.Flush(); err != nil {
		r.log.Warn("metrics flush failed", "error", err)
	}

	sum := Summary{
		Resource:       r.res.Name,
		RunID:          r.tracker.RunID(),
		Status:         entry.Status,
		RecordsRead:    r.read,
		RecordsWritten: r.written,
		RecordsFailed:  r.failed,
		Duration:       d,
		ErrorLog:       errorLog,
		Watermark:      r.advanced,
		Gaps:           r.gaps,
		Err:            runErr,
	}
	r.log.Info("run finished", "resource", r.res.Name, "status", string(sum.Status),
		"read", sum.RecordsRead, "written", sum.RecordsWritten, "failed", sum.RecordsFailed,
		"duration", d.String())
	return sum, runErr
}

// phases runs every phase in order and stops at the first abort or error.
func (r *run) phases(ctx context.Context) error {
	steps := []phase{
		{"setup", r.setup},
		{"schema", r.reconcileSchema},
		{"batches", r.batches},
		{"finalize", r.finalize},
	}
	for _, p := range steps {
		t0 := time.Now()
		res, err := p.fn(ctx)
		if err == nil {
			err = res.Err()
		}
		r.metrics.RecordStep(p.name, err, time.Since(t0))
		if res.Aborted() {
			return res.Err()
		}
		if err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}
	return nil
}

func (r *run) close() {
	if r.stream != nil {
		if err := r.stream.Close(); err != nil {
			r.log.Warn("closing record stream", "error", err)
		}
	}
	if r.source != nil {
		if err := r.source.Close(); err != nil {
			r.log.Warn("closing source", "source", r.src.Name, "error", err)
		}
	}
	if r.dest != nil {
		if err := r.dest.Close(); err != nil {
			r.log.Warn("closing destination", "destination", r.dst.Name, "error", err)
		}
	}
}

// saveResumePoint records how far the run got before an unexpected failure.
func (r *run) saveResumePoint() {
	if r.opts.DryRun || r.column == "" || r.written == 0 || r.wm.Max == nil {
		return
	}
	if err := r.e.checkpoints.Save(r.res.Name, r.column, r.wm.Max, r.written); err != nil {
		r.log.Error("failed to save checkpoint", "resource", r.res.Name, "error", err)
		return
	}
	r.log.Info("checkpoint saved for resume", "resource", r.res.Name, "value", r.wm.Max, "records", r.written)
}

// setup opens both connectors, resolves the extraction floor and starts
// the record stream.
func (r *run) setup(ctx context.Context) (PhaseResult, error) {
	mode, err := connector.ParseWriteMode(r.res.WriteModeFor(r.dst))
	if err != nil {
		return Continue(), err
	}
	policy := retryPolicy(r.e.cfg.Retry)

	r.source, err = r.e.registry.OpenSource(ctx, connector.Spec{
		Name:    r.src.Name,
		Type:    r.src.Type,
		Path:    r.src.Path,
		DSN:     r.src.ConnectionString,
		Options: r.src.Options,
		Retry:   policy,
	})
	if err != nil {
		return Continue(), err
	}
	r.dest, err = r.e.registry.OpenDestination(ctx, connector.Spec{
		Name:        r.dst.Name,
		Type:        r.dst.Type,
		Path:        r.dst.Path,
		DSN:         r.dst.ConnectionString,
		Table:       r.dst.Table,
		Mode:        mode,
		PrimaryKeys: r.dst.PrimaryKeys,
		Options:     r.dst.Options,
		Retry:       policy,
	})
	if err != nil {
		return Continue(), err
	}
	switch r.dest.(type) {
	case connector.BatchWriter, connector.RecordWriter:
	default:
		return Continue(), fmt.Errorf("destination %q (%s) cannot write records", r.dst.Name, r.dst.Type)
	}

	checks, err := qualityChecks(r.res.QualityChecks)
	if err != nil {
		return Continue(), err
	}
	if r.validator, err = quality.NewValidator(checks, r.e.checks, r.log); err != nil {
		return Continue(), err
	}
	if err := r.loadBaseline(); err != nil {
		return Continue(), err
	}
	if err := r.resolveFloor(); err != nil {
		return Continue(), err
	}

	query := incremental.AugmentQuery(r.res.Query, r.column, r.floor)
	if query != r.res.Query {
		r.log.Debug("query augmented", "resource", r.res.Name, "query", query)
	}
	par := r.e.cfg.ParallelExtraction
	it, xmode, err := extract.Open(ctx, r.source, query, extract.Options{
		Enabled:    par.Enabled,
		MaxWorkers: par.MaxWorkers,
		BatchSize:  par.BatchSize,
	}, r.log)
	if err != nil {
		return Continue(), err
	}
	r.tracker.Metadata["extraction_mode"] = string(xmode)
	if r.column != "" && r.floor != nil {
		it = aboveFloor(it, r.column, r.floor)
	}
	r.stream = it
	return Continue(), nil
}

// resolveFloor picks the incremental column and the value extraction
// starts after: stored state first, then a checkpoint when resuming.
func (r *run) resolveFloor() error {
	if inc := r.res.Incremental; inc != nil && inc.Column != "" {
		strategy, err := incremental.ParseStrategy(inc.Strategy)
		if err != nil {
			return err
		}
		r.inc = &incremental.Config{
			Column:          inc.Column,
			Strategy:        strategy,
			LookbackSeconds: inc.LookbackSeconds,
			DetectGaps:      inc.GapDetection(),
			InitialValue:    inc.InitialValue,
		}
		if r.floor, err = r.e.states.StartValue(r.res.Name, *r.inc); err != nil {
			return err
		}
		r.column = inc.Column
	}
	if r.column == "" {
		r.column = r.src.CheckpointColumn
	}

	if !(r.opts.Resume || r.src.Resume) || r.column == "" {
		return nil
	}
	cp := r.e.checkpoints.Load(r.res.Name)
	switch {
	case cp == nil:
		r.log.Info("no checkpoint to resume from", "resource", r.res.Name)
	case cp.Column != "" && cp.Column != r.column:
		r.log.Warn("ignoring checkpoint for a different column", "resource", r.res.Name,
			"checkpoint_column", cp.Column, "column", r.column)
	default:
		r.floor = cp.Value()
		r.tracker.Metadata["resumed_from"] = cp.LastValue
		r.log.Info("resuming from checkpoint", "resource", r.res.Name,
			"value", cp.LastValue, "records_processed", cp.RecordsProcessed)
	}
	return nil
}

// aboveFloor drops records whose column value is not greater than floor.
// Sources that ignore the query, such as files, become incremental this
// way. Records without a comparable value are kept.
func aboveFloor(it records.Iterator, column string, floor any) records.Iterator {
	return records.Func{
		NextFn: func(ctx context.Context) (records.Record, error) {
			for {
				rec, err := it.Next(ctx)
				if err != nil {
					return nil, err
				}
				v, ok := rec[column]
				if !ok || v == nil {
					return rec, nil
				}
				if c, ok := incremental.Compare(v, floor); ok && c <= 0 {
					continue
				}
				return rec, nil
			}
		},
		CloseFn: it.Close,
	}
}

// reconcileSchema infers the schema from a sample, applies the evolution
// policy and creates the destination table when asked to.
func (r *run) reconcileSchema(ctx context.Context) (PhaseResult, error) {
	evo := r.dst.SchemaEvolution
	evolve := evo != nil && evo.Enabled

	if r.src.InferSchema {
		sample, it, err := schema.Sample(ctx, r.stream, r.src.SchemaSampleSize)
		if err != nil {
			return Continue(), fmt.Errorf("sample for schema inference: %w", err)
		}
		r.stream = it
		r.inferred = schema.Infer(sample, r.src.SchemaSampleSize)
		if r.inferred.Empty() {
			r.log.Warn("no records available for schema inference", "resource", r.res.Name)
		} else {
			r.log.Info("schema inferred", "resource", r.res.Name, "columns", len(r.inferred.Columns))
			r.tracker.Metadata["schema_columns"] = len(r.inferred.Columns)
		}
	} else if evolve || r.dst.AutoCreateTable || r.res.ExportSchemaPath != "" {
		r.log.Warn("schema features configured but infer_schema is off on the source", "resource", r.res.Name, "source", r.src.Name)
	}

	if !r.inferred.Empty() {
		if evolve {
			if pr, err := r.evolve(ctx, *evo); err != nil || pr.Aborted() {
				return pr, err
			}
		}
		if r.dst.AutoCreateTable {
			if pr, err := r.autoCreate(ctx); err != nil || pr.Aborted() {
				return pr, err
			}
		}
	}

	r.coercer = r.newCoercer(ctx)
	return Continue(), nil
}

func (r *run) evolve(ctx context.Context, evo config.SchemaEvolution) (PhaseResult, error) {
	target := schema.Target{Table: r.dst.Table}
	if ex, ok := r.dest.(connector.DDLExecutor); ok {
		target.Alterer = ex
		target.AddColumn = schemaddl.AddColumn(r.dialect())
	}
	mgr := schema.NewManager(r.e.schemas, r.log, r.opts.DryRun)
	out, err := mgr.Reconcile(ctx, r.res.Name, r.inferred, evolutionConfig(evo), target)
	if err != nil {
		return Continue(), fmt.Errorf("schema store: %w", err)
	}
	if out.Rejected {
		return Abort(AbortSchema, out.Reason), nil
	}
	if out.Changes.Any() {
		r.tracker.Metadata["schema_changes"] = out.Changes.Summary()
	}
	if len(out.DDL) > 0 {
		r.tracker.Metadata["schema_ddl"] = out.DDL
	}
	if out.Version > 0 {
		r.tracker.Metadata["schema_version"] = out.Version
	}
	return Continue(), nil
}

func (r *run) autoCreate(ctx context.Context) (PhaseResult, error) {
	ex, ok := r.dest.(connector.DDLExecutor)
	if !ok {
		r.log.Debug("destination has no DDL support, skipping table creation", "destination", r.dst.Name)
		return Continue(), nil
	}
	if tc, ok := r.dest.(connector.TableChecker); ok {
		exists, err := tc.TableExists(ctx)
		if err != nil {
			return Continue(), fmt.Errorf("check table %s: %w", r.dst.Table, err)
		}
		if exists {
			return Continue(), nil
		}
	}
	stmt, err := schemaddl.CreateTable(r.dialect(), r.dst.Table, r.inferred, r.dst.PrimaryKeys)
	if err != nil {
		return Abort(AbortSchema, fmt.Sprintf("render CREATE TABLE %s: %v", r.dst.Table, err)), nil
	}
	if r.opts.DryRun {
		r.log.Info("dry run: skipping table creation", "table", r.dst.Table, "sql", stmt)
		return Continue(), nil
	}
	if err := ex.ExecuteDDL(ctx, stmt); err != nil {
		return Abort(AbortSchema, fmt.Sprintf("create table %s: %v", r.dst.Table, err)), nil
	}
	r.tracker.Metadata["table_created"] = r.dst.Table
	r.log.Info("table created", "table", r.dst.Table, "columns", len(r.inferred.Columns))
	return Continue(), nil
}

func (r *run) dialect() ddl.Dialect { return dialectOf(r.dest) }

// newCoercer targets the inferred schema, falling back to the destination
// table's columns. Without either only explicit type mappings apply.
func (r *run) newCoercer(ctx context.Context) *coerce.Coercer {
	if !r.dst.CoercionEnabled() {
		return nil
	}
	target := r.inferred
	if target.Empty() {
		if sr, ok := r.dest.(connector.SchemaReader); ok {
			s, err := sr.TableSchema(ctx)
			if err != nil {
				r.log.Debug("destination schema unavailable for coercion", "destination", r.dst.Name, "error", err)
			} else {
				target = s
			}
		}
	}
	if target.Empty() && len(r.dst.TypeMappings) == 0 {
		return nil
	}
	return coerce.New(target, coerce.Options{
		Strict:       r.dst.StrictTypeCoercion,
		NullValues:   r.dst.CustomNullValues,
		TypeMappings: r.dst.TypeMappings,
	}, r.log)
}

func (r *run) batchSize() int {
	switch {
	case r.opts.BatchSize > 0:
		return r.opts.BatchSize
	case r.res.BatchSize > 0:
		return r.res.BatchSize
	case r.e.cfg.Runtime.BatchSize > 0:
		return r.e.cfg.Runtime.BatchSize
	default:
		return config.DefaultBatchSize
	}
}

func (r *run) trackGaps() bool {
	return r.inc != nil && r.inc.Strategy == incremental.StrategySequential && r.inc.DetectGaps
}

// errStopBatches ends batch.Process after a batch came back aborted.
var errStopBatches = errors.New("batches aborted")

// batches drains the stream one batch at a time. The watermark is handed
// to every batch and the updated copy comes back.
func (r *run) batches(ctx context.Context) (PhaseResult, error) {
	r.wm = incremental.NewWatermark(r.column, r.floor, r.trackGaps())

	var (
		abort    PhaseResult
		last     int
		batchErr bool
	)
	process := func(ctx context.Context, n int, recs []records.Record) error {
		last = n
		wm, pr, err := r.processBatch(ctx, n, recs, r.wm)
		r.wm = wm
		if err != nil {
			batchErr = true
			return fmt.Errorf("batch %d: %w", n, err)
		}
		if pr.Aborted() {
			abort = pr
			return errStopBatches
		}
		return nil
	}

	_, err := batch.Process(ctx, r.stream, r.batchSize(), process, r.progress)
	switch {
	case errors.Is(err, errStopBatches):
		return abort, nil
	case err != nil && batchErr:
		return Continue(), err
	case err != nil:
		return Continue(), fmt.Errorf("read batch %d: %w", last+1, err)
	}
	r.log.Info("all batches processed", "resource", r.res.Name, "batches", last,
		"read", r.read, "written", r.written, "failed", r.failed)
	return Continue(), nil
}

// progress runs after every completed batch: it saves the periodic
// checkpoint and reports throughput.
func (r *run) progress(n int, total int64) {
	r.checkpoint(r.wm)
	r.log.Debug("batch progress", "resource", r.res.Name, "batch", n,
		"read", total, "written", r.written, "failed", r.failed)
}

// processBatch validates, coerces and writes one batch and returns wm
// advanced by the records that reached the destination.
func (r *run) processBatch(ctx context.Context, n int, recs []records.Record, wm incremental.Watermark) (incremental.Watermark, PhaseResult, error) {
	base := r.read
	r.read += int64(len(recs))
	r.metrics.RecordBatches(1)
	r.metrics.RecordRow("read", int64(len(recs)))
	r.log.Debug("processing batch", "batch", n, "records", len(recs))

	r.analyze(n, recs)

	valid, rows := recs, make([]int64, len(recs))
	for i := range rows {
		rows[i] = base + int64(i) + 1
	}
	if !r.validator.Empty() {
		res := r.validator.ValidateBatch(recs)
		if len(res.Invalid) > 0 {
			var pr PhaseResult
			valid, rows, pr = r.reject(n, base, recs, res.Invalid)
			if pr.Aborted() {
				return wm, pr, nil
			}
		}
	}

	if r.coercer != nil {
		out := make([]records.Record, len(valid))
		for i, rec := range valid {
			c, err := r.coercer.Record(rec)
			if err != nil {
				r.rejected.AddError(rec, err, rows[i])
				r.fail(1)
				return wm, Continue(), err
			}
			out[i] = c
		}
		valid = out
	}

	written := r.write(ctx, n, valid, rows)
	wm = wm.Observe(written)
	r.written += int64(len(written))
	r.metrics.RecordRow("written", int64(len(written)))
	return wm, Continue(), nil
}

// reject routes the invalid records of a batch by their highest action and
// returns what is left to write. Any fail action aborts before a write.
func (r *run) reject(n int, base int64, recs []records.Record, invalid []quality.Result) ([]records.Record, []int64, PhaseResult) {
	bad := make(map[int]bool, len(invalid))
	var fatal []string
	for _, res := range invalid {
		bad[res.Index] = true
		row := base + int64(res.Index) + 1
		switch res.Action() {
		case quality.ActionFail:
			r.rejected.AddQualityFailure(res, row)
			fatal = append(fatal, fmt.Sprintf("row %d: %s", row, res.Summary()))
		case quality.ActionWarn:
			r.log.Warn("record failed quality checks, dropped", "resource", r.res.Name, "row", row, "failures", res.Summary())
			r.metrics.RecordRow("dropped", 1)
		default:
			r.rejected.AddQualityFailure(res, row)
			r.metrics.RecordRow("dlq", 1)
		}
	}
	r.fail(int64(len(invalid)))
	r.log.Info("quality checks rejected records", "batch", n, "invalid", len(invalid), "valid", len(recs)-len(invalid))

	if len(fatal) > 0 {
		msg := fatal[0]
		if len(fatal) > 1 {
			msg = fmt.Sprintf("%s (and %d more)", msg, len(fatal)-1)
		}
		return nil, nil, Abort(AbortQuality, msg)
	}

	valid := make([]records.Record, 0, len(recs)-len(invalid))
	rows := make([]int64, 0, cap(valid))
	for i, rec := range recs {
		if !bad[i] {
			valid = append(valid, rec)
			rows = append(rows, base+int64(i)+1)
		}
	}
	return valid, rows, Continue()
}

// write hands recs to the destination and returns the records it accepted.
// A failed batch write is retried record by record when the destination
// supports it; otherwise every record of the batch is rejected.
func (r *run) write(ctx context.Context, n int, recs []records.Record, rows []int64) []records.Record {
	if len(recs) == 0 {
		return nil
	}
	if r.opts.DryRun {
		r.log.Debug("dry run: skipping write", "batch", n, "records", len(recs))
		return nil
	}

	rw, single := r.dest.(connector.RecordWriter)
	if bw, ok := r.dest.(connector.BatchWriter); ok {
		err := bw.Write(ctx, recs)
		if err == nil {
			return recs
		}
		if !single {
			r.log.Error("batch write failed", "batch", n, "records", len(recs), "error", err)
			for i, rec := range recs {
				r.rejected.AddError(rec, err, rows[i])
			}
			r.fail(int64(len(recs)))
			return nil
		}
		r.log.Warn("batch write failed, writing records one by one", "batch", n, "error", err)
	}

	out := make([]records.Record, 0, len(recs))
	for i, rec := range recs {
		if err := rw.WriteOne(ctx, rec); err != nil {
			r.rejected.AddError(rec, err, rows[i])
			r.fail(1)
			continue
		}
		out = append(out, rec)
	}
	if rejected := len(recs) - len(out); rejected > 0 {
		r.log.Warn("records rejected by destination", "batch", n, "rejected", rejected)
	}
	return out
}

func (r *run) fail(n int64) {
	r.failed += n
	r.metrics.RecordRow("failed", n)
}

// checkpoint persists progress every CheckpointInterval written records.
func (r *run) checkpoint(wm incremental.Watermark) {
	every := int64(r.dst.CheckpointInterval)
	if r.opts.DryRun || every <= 0 || r.column == "" || wm.Max == nil {
		return
	}
	if r.written/every <= r.lastCheckpoint/every {
		return
	}
	if err := r.e.checkpoints.Save(r.res.Name, r.column, wm.Max, r.written); err != nil {
		r.log.Warn("checkpoint save failed", "resource", r.res.Name, "error", err)
		return
	}
	r.lastCheckpoint = r.written
}

func (r *run) loadBaseline() error {
	qa := r.res.QualityAnalysis
	if qa == nil || !qa.Enabled || qa.BaselinePath == "" {
		return nil
	}
	b, err := quality.LoadBaseline(qa.BaselinePath)
	if err != nil {
		return fmt.Errorf("load quality baseline: %w", err)
	}
	r.baseline = b
	return nil
}

// analyze computes column statistics for the batch and logs anomalies
// against the baseline. The first batch becomes the baseline when none
// was stored.
func (r *run) analyze(n int, recs []records.Record) {
	qa := r.res.QualityAnalysis
	if qa == nil || !qa.Enabled {
		return
	}
	r.stats = quality.Analyze(recs)
	if r.baseline == nil {
		r.baseline = r.stats
		return
	}
	th := quality.DefaultThresholds
	if qa.NullSpikeThreshold > 0 {
		th.NullSpike = qa.NullSpikeThreshold
	}
	if qa.ZScoreThreshold > 0 {
		th.ZScore = qa.ZScoreThreshold
	}
	for _, a := range quality.DetectAnomalies(r.baseline, r.stats, th) {
		r.log.Warn("data anomaly", "batch", n, "column", a.Column, "type", a.Kind,
			"severity", a.Severity, "message", a.Message)
	}
}

// finalize commits the destination and persists what the run learned.
func (r *run) finalize(ctx context.Context) (PhaseResult, error) {
	if p := r.res.ExportSchemaPath; p != "" && !r.inferred.Empty() {
		if err := schema.Export(p, r.inferred); err != nil {
			return Continue(), err
		}
		r.log.Info("schema exported", "path", p)
	}

	if f, ok := r.dest.(connector.Finalizer); ok && !r.opts.DryRun {
		if err := f.Finalize(ctx); err != nil {
			return Continue(), fmt.Errorf("destination %s: %w", r.dst.Name, err)
		}
	}

	if qa := r.res.QualityAnalysis; qa != nil && qa.Enabled && qa.UpdateBaseline && qa.BaselinePath != "" &&
		r.stats != nil && !r.opts.DryRun {
		if err := quality.SaveBaseline(qa.BaselinePath, r.stats); err != nil {
			return Continue(), fmt.Errorf("save quality baseline: %w", err)
		}
	}

	if r.trackGaps() {
		r.gaps = incremental.DetectGaps(r.wm.Values, incremental.StrategySequential)
		for _, g := range r.gaps {
			r.log.Warn("sequence gap", "resource", r.res.Name, "after", g.After, "before", g.Before, "missing", g.MissingCount)
		}
		if len(r.gaps) > 0 {
			r.tracker.Metadata["gaps"] = r.gaps
		}
	}

	if r.inc != nil {
		switch {
		case !r.wm.Advanced():
			r.log.Info("no new records", "resource", r.res.Name, "floor", r.floor)
		case r.opts.DryRun:
			r.log.Info("dry run: incremental state not saved", "resource", r.res.Name, "value", r.wm.Max)
		default:
			if err := r.e.states.Save(r.res.Name, r.wm.Max); err != nil {
				return Continue(), err
			}
			r.advanced = r.wm.Max
			r.tracker.Metadata["watermark"] = incremental.Stored(r.wm.Max)
			r.log.Info("incremental state advanced", "resource", r.res.Name, "value", r.wm.Max)
		}
	}

	if !r.opts.DryRun {
		if _, err := r.e.checkpoints.Clear(r.res.Name); err != nil {
			r.log.Warn("failed to clear checkpoint", "resource", r.res.Name, "error", err)
		}
	}
	return Continue(), nil
}

func qualityChecks(in []config.QualityCheck) ([]quality.Check, error) {
	out := make([]quality.Check, 0, len(in))
	for _, c := range in {
		action, err := quality.ParseAction(c.Action)
		if err != nil {
			return nil, err
		}
		out = append(out, quality.Check{
			Column:  c.Column,
			Name:    c.Check,
			Action:  action,
			Pattern: c.Pattern,
			Min:     c.Min,
			Max:     c.Max,
			Allowed: c.AllowedValues,
			Params:  c.Params,
		})
	}
	return out, nil
}

func evolutionConfig(c config.SchemaEvolution) schema.EvolutionConfig {
	return schema.EvolutionConfig{
		Enabled:         c.Enabled,
		Mode:            schema.Mode(c.Mode),
		OnNewColumn:     schema.Policy(c.OnNewColumn),
		OnRemovedColumn: schema.Policy(c.OnRemovedColumn),
		OnTypeChange:    schema.Policy(c.OnTypeChange),
		TrackHistory:    c.TrackHistory == nil || *c.TrackHistory,
	}
}

func retryPolicy(c config.Retry) retry.Policy {
	return retry.Policy{
		MaxAttempts:   c.MaxAttempts,
		InitialDelay:  seconds(c.InitialDelay),
		BackoffFactor: c.BackoffFactor,
		MaxDelay:      seconds(c.MaxDelay),
	}
}

func seconds(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }
