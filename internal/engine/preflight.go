package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"conduit/internal/config"
	"conduit/internal/connector"
	"conduit/internal/ddl"
	"conduit/internal/incremental"
	"conduit/internal/logger"
	"conduit/internal/quality"
	"conduit/internal/records"
	"conduit/internal/retry"
	"conduit/internal/schema"
	schemaddl "conduit/internal/schema/ddl"
)

// CheckStatus is the outcome of one preflight check.
type CheckStatus string

const (
	CheckPass CheckStatus = "pass"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
	CheckInfo CheckStatus = "info"
)

// Check is one line of a preflight report.
type Check struct {
	Name    string
	Status  CheckStatus
	Message string
}

// PreflightReport lists the checks run for one resource.
type PreflightReport struct {
	Resource string
	Checks   []Check
	Duration time.Duration
}

// Passed reports whether no check failed.
func (r PreflightReport) Passed() bool {
	for _, c := range r.Checks {
		if c.Status == CheckFail {
			return false
		}
	}
	return true
}

func (r PreflightReport) err() error {
	var errs []error
	for _, c := range r.Checks {
		if c.Status == CheckFail {
			errs = append(errs, fmt.Errorf("%s: %s", c.Name, c.Message))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("preflight %s: %w", r.Resource, errors.Join(errs...))
}

func (r *PreflightReport) add(name string, status CheckStatus, format string, args ...any) {
	r.Checks = append(r.Checks, Check{Name: name, Status: status, Message: fmt.Sprintf(format, args...)})
}

// Preflight checks resource name without moving data. It opens both
// connectors and tests them, checks that the destination table exists or
// will be created, infers a schema from a source sample and compares it
// with the table and the stored schema, and reports the quality and
// incremental setup. Nothing is written. The error joins every failed
// check.
func (e *Engine) Preflight(ctx context.Context, name string) (PreflightReport, error) {
	report := PreflightReport{Resource: name}
	res, ok := e.cfg.Resource(name)
	if !ok {
		return report, fmt.Errorf("engine: unknown resource %q", name)
	}
	start := time.Now()
	ctx = logger.WithContext(ctx, e.log)
	policy := retryPolicy(e.cfg.Retry)

	p := &preflight{e: e, res: res, report: &report}
	defer p.close()
	p.connect(ctx, policy)
	if p.source != nil && p.dest != nil {
		exists := p.checkTable(ctx)
		p.checkSchema(ctx, exists)
	}
	p.checkConfig()

	report.Duration = time.Since(start)
	if err := report.err(); err != nil {
		return report, err
	}
	e.log.Info("preflight passed", "resource", name, "source", res.Source, "destination", res.Destination,
		"checks", len(report.Checks))
	return report, nil
}

type preflight struct {
	e      *Engine
	res    config.Resource
	src    config.Source
	dst    config.Destination
	report *PreflightReport

	source connector.Source
	dest   connector.Destination
}

func (p *preflight) close() {
	if p.source != nil {
		p.source.Close()
	}
	if p.dest != nil {
		p.dest.Close()
	}
}

func (p *preflight) connect(ctx context.Context, policy retry.Policy) {
	var ok bool
	if p.src, ok = p.e.cfg.Source(p.res.Source); !ok {
		p.report.add("source connection", CheckFail, "unknown source %q", p.res.Source)
	} else if s, err := p.openSource(ctx, policy); err != nil {
		p.report.add("source connection", CheckFail, "%v", err)
	} else {
		p.source = s
		p.report.add("source connection", CheckPass, "connected to %s source %q", p.src.Type, p.src.Name)
	}

	if p.dst, ok = p.e.cfg.Destination(p.res.Destination); !ok {
		p.report.add("destination connection", CheckFail, "unknown destination %q", p.res.Destination)
	} else if d, err := p.openDestination(ctx, policy); err != nil {
		p.report.add("destination connection", CheckFail, "%v", err)
	} else {
		p.dest = d
		p.report.add("destination connection", CheckPass, "connected to %s destination %q", p.dst.Type, p.dst.Name)
	}
}

func (p *preflight) openSource(ctx context.Context, policy retry.Policy) (connector.Source, error) {
	s, err := p.e.registry.OpenSource(ctx, connector.Spec{
		Name:    p.src.Name,
		Type:    p.src.Type,
		Path:    p.src.Path,
		DSN:     p.src.ConnectionString,
		Options: p.src.Options,
		Retry:   policy,
	})
	if err != nil {
		return nil, err
	}
	if err := testConnection(ctx, s); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (p *preflight) openDestination(ctx context.Context, policy retry.Policy) (connector.Destination, error) {
	mode, err := connector.ParseWriteMode(p.res.WriteModeFor(p.dst))
	if err != nil {
		return nil, err
	}
	d, err := p.e.registry.OpenDestination(ctx, connector.Spec{
		Name:        p.dst.Name,
		Type:        p.dst.Type,
		Path:        p.dst.Path,
		DSN:         p.dst.ConnectionString,
		Table:       p.dst.Table,
		Mode:        mode,
		PrimaryKeys: p.dst.PrimaryKeys,
		Options:     p.dst.Options,
		Retry:       policy,
	})
	if err != nil {
		return nil, err
	}
	if err := testConnection(ctx, d); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func testConnection(ctx context.Context, c any) error {
	if t, ok := c.(connector.ConnectionTester); ok {
		return t.TestConnection(ctx)
	}
	return nil
}

// checkTable reports whether the destination table exists. Destinations
// without tables are skipped.
func (p *preflight) checkTable(ctx context.Context) bool {
	tc, ok := p.dest.(connector.TableChecker)
	if !ok {
		return false
	}
	exists, err := tc.TableExists(ctx)
	switch {
	case err != nil:
		p.report.add("table existence", CheckWarn, "could not check table %s: %v", p.dst.Table, err)
	case exists:
		p.report.add("table existence", CheckPass, "table %s exists", p.dst.Table)
	case p.dst.AutoCreateTable:
		p.report.add("table existence", CheckPass, "table %s will be created", p.dst.Table)
	default:
		p.report.add("table existence", CheckFail, "table %s does not exist and auto_create_table is off", p.dst.Table)
	}
	return exists
}

// checkSchema infers a schema from a source sample, compares it with the
// existing table and previews schema evolution against the stored schema.
func (p *preflight) checkSchema(ctx context.Context, tableExists bool) {
	if !p.src.InferSchema {
		return
	}
	sample, err := p.sample(ctx)
	if err != nil {
		p.report.add("schema inference", CheckWarn, "%v", err)
		return
	}
	inferred := schema.Infer(sample, p.src.SchemaSampleSize)
	if inferred.Empty() {
		p.report.add("schema inference", CheckWarn, "no records available to sample")
		return
	}
	p.report.add("schema inference", CheckPass, "inferred %d columns from %d records", len(inferred.Columns), len(sample))

	if sr, ok := p.dest.(connector.SchemaReader); ok && tableExists {
		current, err := sr.TableSchema(ctx)
		if err != nil {
			p.report.add("schema drift", CheckWarn, "could not read table schema: %v", err)
		} else if drift := schema.Compare(current, inferred); drift.Any() {
			p.report.add("schema drift", CheckWarn, "%s", drift.Summary())
		} else {
			p.report.add("schema drift", CheckPass, "no drift detected")
		}
	}

	if evo := p.dst.SchemaEvolution; evo != nil && evo.Enabled {
		p.previewEvolution(ctx, inferred, *evo)
	}
}

func (p *preflight) sample(ctx context.Context) ([]records.Record, error) {
	it, err := p.source.Read(ctx, p.res.Query)
	if err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	defer it.Close()
	sample, _, err := schema.Sample(ctx, it, p.src.SchemaSampleSize)
	if err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	return sample, nil
}

// previewEvolution runs the evolution manager in dry-run mode and reports
// what a run would do.
func (p *preflight) previewEvolution(ctx context.Context, inferred schema.Schema, evo config.SchemaEvolution) {
	dialect := dialectOf(p.dest)
	target := schema.Target{Table: p.dst.Table}
	if ex, ok := p.dest.(connector.DDLExecutor); ok {
		target.Alterer = ex
		target.AddColumn = schemaddl.AddColumn(dialect)
	}
	out, err := schema.NewManager(p.e.schemas, p.e.log, true).
		Reconcile(ctx, p.res.Name, inferred, evolutionConfig(evo), target)
	switch {
	case err != nil:
		p.report.add("schema evolution", CheckWarn, "could not load stored schema: %v", err)
	case out.Rejected:
		p.report.add("schema evolution", CheckFail, "run would abort: %s", out.Reason)
	case out.Baseline:
		p.report.add("schema evolution", CheckInfo, "no stored schema, the inferred schema becomes the baseline")
	case !out.Changes.Any():
		p.report.add("schema evolution", CheckPass, "matches stored schema version %d", out.Version)
	default:
		lines := []string{out.Changes.Summary()}
		if target.AddColumn != nil {
			for _, col := range out.Changes.Added {
				if stmt, err := target.AddColumn(p.dst.Table, col); err == nil {
					lines = append(lines, "would execute: "+stmt)
				}
			}
		}
		lines = append(lines, fmt.Sprintf("version %d -> %d", out.Version, out.Version+1))
		p.report.add("schema evolution", CheckInfo, "%s", strings.Join(lines, "; "))
	}
}

// checkConfig reports settings that need no connection.
func (p *preflight) checkConfig() {
	if p.dst.Name != "" {
		if p.dst.AutoCreateTable {
			p.report.add("table management", CheckInfo, "auto_create_table enabled")
		} else {
			p.report.add("table management", CheckInfo, "manual table management")
		}
	}

	if n := len(p.res.QualityChecks); n > 0 {
		checks, err := qualityChecks(p.res.QualityChecks)
		if err == nil {
			_, err = quality.NewValidator(checks, p.e.checks, p.e.log)
		}
		if err != nil {
			p.report.add("quality checks", CheckFail, "%v", err)
		} else {
			p.report.add("quality checks", CheckPass, "%d quality rule(s) configured", n)
		}
	}

	if inc := p.res.Incremental; inc != nil && inc.Column != "" {
		strategy, err := incremental.ParseStrategy(inc.Strategy)
		if err != nil {
			p.report.add("incremental", CheckFail, "%v", err)
			return
		}
		cfg := incremental.Config{
			Column:          inc.Column,
			Strategy:        strategy,
			LookbackSeconds: inc.LookbackSeconds,
			InitialValue:    inc.InitialValue,
		}
		floor, err := p.e.states.StartValue(p.res.Name, cfg)
		switch {
		case err != nil:
			p.report.add("incremental", CheckWarn, "could not read state: %v", err)
		case floor == nil:
			p.report.add("incremental", CheckInfo, "%s on %s, first run is a full load", strategy, inc.Column)
		default:
			p.report.add("incremental", CheckInfo, "%s on %s, next run reads after %v", strategy, inc.Column, floor)
		}
	}
}

func dialectOf(dest any) ddl.Dialect {
	if d, ok := dest.(connector.Dialecter); ok {
		return d.Dialect()
	}
	return ddl.Generic
}
