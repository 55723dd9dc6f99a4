package config

import (
	"fmt"
	"regexp"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "destinations[1].write_mode",
// "resources[0].quality_checks[2].action").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// TypeSet answers which connector types are available. A nil TypeSet skips
// the availability checks.
type TypeSet interface {
	HasSource(kind string) bool
	HasDestination(kind string) bool
}

var (
	checkNameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

	fileTypes  = set("csv", "json")
	tableTypes = set("postgres", "postgresql", "mysql", "mssql", "azuresql", "sqlite")

	writeModes     = set("append", "full_refresh", "truncate", "merge")
	strategies     = set("timestamp", "sequential", "cursor")
	actions        = set("dlq", "warn", "fail")
	evolutionModes = set("strict", "auto", "manual")
	newColumnAxis  = set("add_nullable", "fail", "ignore")
	driftAxis      = set("warn", "fail", "ignore")
	columnTypes    = set("string", "text", "integer", "int", "bigint", "float", "double", "decimal", "numeric",
		"boolean", "bool", "date", "datetime", "timestamp", "json")
	metricBackends = set("", "none", "pushgateway", "datadog")
)

func set(vals ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

func has(m map[string]struct{}, v string) bool {
	_, ok := m[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// Validate lints f without mutating it. Callers decide whether warnings are
// fatal.
func Validate(f *File, types TypeSet) []Issue {
	var issues []Issue
	if f == nil {
		return []Issue{{Severity: SeverityError, Path: "", Message: "config is empty"}}
	}
	if len(f.Resources) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "resources",
			Message:  "no resources configured; nothing will run",
		})
	}
	issues = append(issues, validateSources(f.Sources, types)...)
	issues = append(issues, validateDestinations(f.Destinations, types)...)
	issues = append(issues, validateResources(f, types)...)
	issues = append(issues, validateRuntime(f)...)
	return issues
}

func validateSources(srcs []Source, types TypeSet) []Issue {
	var issues []Issue
	seen := map[string]bool{}
	for i, s := range srcs {
		path := fmt.Sprintf("sources[%d]", i)
		issues = append(issues, validateName(path, s.Name, seen)...)
		if strings.TrimSpace(s.Type) == "" {
			issues = append(issues, Issue{SeverityError, path + ".type", "source type must not be empty"})
			continue
		}
		if types != nil && !types.HasSource(s.Type) {
			issues = append(issues, Issue{SeverityError, path + ".type", fmt.Sprintf("unknown source type %q", s.Type)})
		}
		if has(fileTypes, s.Type) && strings.TrimSpace(s.Path) == "" {
			issues = append(issues, Issue{SeverityError, path + ".path", "file source requires a non-empty path"})
		}
		if has(tableTypes, s.Type) && strings.TrimSpace(s.ConnectionString) == "" {
			issues = append(issues, Issue{SeverityError, path + ".connection_string", "database source requires a connection_string"})
		}
		if s.SchemaSampleSize < 0 {
			issues = append(issues, Issue{SeverityError, path + ".schema_sample_size", "schema_sample_size must not be negative"})
		}
	}
	return issues
}

func validateDestinations(dsts []Destination, types TypeSet) []Issue {
	var issues []Issue
	seen := map[string]bool{}
	for i, d := range dsts {
		path := fmt.Sprintf("destinations[%d]", i)
		issues = append(issues, validateName(path, d.Name, seen)...)
		if strings.TrimSpace(d.Type) == "" {
			issues = append(issues, Issue{SeverityError, path + ".type", "destination type must not be empty"})
			continue
		}
		if types != nil && !types.HasDestination(d.Type) {
			issues = append(issues, Issue{SeverityError, path + ".type", fmt.Sprintf("unknown destination type %q", d.Type)})
		}
		if has(fileTypes, d.Type) && strings.TrimSpace(d.Path) == "" {
			issues = append(issues, Issue{SeverityError, path + ".path", "file destination requires a non-empty path"})
		}
		if has(tableTypes, d.Type) {
			if strings.TrimSpace(d.ConnectionString) == "" {
				issues = append(issues, Issue{SeverityError, path + ".connection_string", "database destination requires a connection_string"})
			}
			if strings.TrimSpace(d.Table) == "" {
				issues = append(issues, Issue{SeverityError, path + ".table", "database destination requires a table"})
			}
		}
		issues = append(issues, validateWriteMode(path+".write_mode", d.WriteMode, d.PrimaryKeys)...)
		if d.CheckpointInterval < 0 {
			issues = append(issues, Issue{SeverityError, path + ".checkpoint_interval", "checkpoint_interval must not be negative"})
		}
		for col, t := range d.TypeMappings {
			if !has(columnTypes, t) {
				issues = append(issues, Issue{SeverityError, fmt.Sprintf("%s.type_mappings.%s", path, col), fmt.Sprintf("unknown type %q", t)})
			}
		}
		if se := d.SchemaEvolution; se != nil {
			issues = append(issues, validateEvolution(path+".schema_evolution", se.Normalized())...)
		}
	}
	return issues
}

func validateWriteMode(path, mode string, pks []string) []Issue {
	if mode == "" {
		return nil
	}
	if !has(writeModes, mode) {
		return []Issue{{SeverityError, path, fmt.Sprintf("unknown write mode %q; use append, full_refresh, truncate or merge", mode)}}
	}
	if strings.EqualFold(mode, "merge") && len(pks) == 0 {
		return []Issue{{SeverityError, path, "write_mode=merge requires primary_keys"}}
	}
	return nil
}

func validateEvolution(path string, se SchemaEvolution) []Issue {
	var issues []Issue
	check := func(field, v string, allowed map[string]struct{}) {
		if v != "" && !has(allowed, v) {
			issues = append(issues, Issue{SeverityError, path + "." + field, fmt.Sprintf("invalid value %q", v)})
		}
	}
	check("mode", se.Mode, evolutionModes)
	check("on_new_column", se.OnNewColumn, newColumnAxis)
	check("on_removed_column", se.OnRemovedColumn, driftAxis)
	check("on_type_change", se.OnTypeChange, driftAxis)
	if se.Enabled && strings.EqualFold(se.Mode, "auto") && strings.EqualFold(se.OnNewColumn, "ignore") {
		issues = append(issues, Issue{SeverityWarning, path, "mode=auto with on_new_column=ignore never alters the table"})
	}
	return issues
}

func validateResources(f *File, types TypeSet) []Issue {
	var issues []Issue
	seen := map[string]bool{}
	for i, r := range f.Resources {
		path := fmt.Sprintf("resources[%d]", i)
		issues = append(issues, validateName(path, r.Name, seen)...)

		if _, ok := f.Source(r.Source); !ok {
			issues = append(issues, Issue{SeverityError, path + ".source", fmt.Sprintf("source %q is not defined", r.Source)})
		}
		dst, ok := f.Destination(r.Destination)
		if !ok {
			issues = append(issues, Issue{SeverityError, path + ".destination", fmt.Sprintf("destination %q is not defined", r.Destination)})
		}
		if strings.TrimSpace(r.Query) == "" {
			issues = append(issues, Issue{SeverityError, path + ".query", "query must not be empty"})
		}
		if r.Mode != "" {
			issues = append(issues, validateWriteMode(path+".mode", r.Mode, dst.PrimaryKeys)...)
		}
		if r.BatchSize < 0 {
			issues = append(issues, Issue{SeverityError, path + ".batch_size", "batch_size must not be negative"})
		}

		if inc := r.Incremental; inc != nil {
			ipath := path + ".incremental"
			if strings.TrimSpace(inc.Column) == "" {
				issues = append(issues, Issue{SeverityError, ipath + ".column", "incremental column must not be empty"})
			}
			if inc.Strategy != "" && !has(strategies, inc.Strategy) {
				issues = append(issues, Issue{SeverityError, ipath + ".strategy", fmt.Sprintf("strategy must be one of timestamp, sequential, cursor; got %q", inc.Strategy)})
			}
			if inc.LookbackSeconds < 0 {
				issues = append(issues, Issue{SeverityError, ipath + ".lookback_seconds", "lookback_seconds must not be negative"})
			}
			mode := strings.ToLower(r.WriteModeFor(dst))
			if inc.LookbackSeconds > 0 && (mode == "" || mode == "append") {
				issues = append(issues, Issue{SeverityWarning, ipath + ".lookback_seconds", "lookback re-delivers rows; append mode will duplicate them, consider merge"})
			}
		}

		for j, qc := range r.QualityChecks {
			issues = append(issues, validateCheck(fmt.Sprintf("%s.quality_checks[%d]", path, j), qc)...)
		}
		if qa := r.QualityAnalysis; qa != nil && qa.Enabled && qa.NullSpikeThreshold < 0 {
			issues = append(issues, Issue{SeverityError, path + ".quality_analysis.null_spike_threshold", "threshold must not be negative"})
		}
	}
	return issues
}

func validateCheck(path string, qc QualityCheck) []Issue {
	var issues []Issue
	if strings.TrimSpace(qc.Column) == "" {
		issues = append(issues, Issue{SeverityError, path + ".column", "column must not be empty"})
	}
	if !checkNameRe.MatchString(qc.Check) {
		issues = append(issues, Issue{SeverityError, path + ".check", fmt.Sprintf("invalid check name %q; use letters, numbers, underscores", qc.Check)})
	}
	if qc.Action != "" && !has(actions, qc.Action) {
		issues = append(issues, Issue{SeverityError, path + ".action", fmt.Sprintf("action must be dlq, warn or fail; got %q", qc.Action)})
	}
	switch strings.ToLower(qc.Check) {
	case "regex":
		if qc.Pattern == "" {
			issues = append(issues, Issue{SeverityError, path + ".pattern", "regex check requires a pattern"})
		} else if _, err := regexp.Compile(qc.Pattern); err != nil {
			issues = append(issues, Issue{SeverityError, path + ".pattern", fmt.Sprintf("pattern does not compile: %v", err)})
		}
	case "range":
		if qc.Min == nil && qc.Max == nil {
			issues = append(issues, Issue{SeverityWarning, path, "range check without min or max always passes"})
		}
		if qc.Min != nil && qc.Max != nil && *qc.Min > *qc.Max {
			issues = append(issues, Issue{SeverityError, path, "range min is greater than max"})
		}
	case "enum":
		if len(qc.AllowedValues) == 0 {
			issues = append(issues, Issue{SeverityError, path + ".allowed_values", "enum check requires allowed_values"})
		}
	}
	return issues
}

func validateRuntime(f *File) []Issue {
	var issues []Issue
	if f.Runtime.BatchSize <= 0 {
		issues = append(issues, Issue{SeverityError, "runtime.batch_size", "batch_size must be positive"})
	}
	if f.ParallelExtraction.MaxWorkers < 1 {
		issues = append(issues, Issue{SeverityError, "parallel_extraction.max_workers", "max_workers must be at least 1"})
	}
	if f.Retry.MaxDelay < 0 {
		issues = append(issues, Issue{SeverityError, "retry.max_delay", "max_delay must not be negative"})
	}
	m := f.Metrics
	if !has(metricBackends, m.Backend) {
		issues = append(issues, Issue{SeverityError, "metrics.backend", fmt.Sprintf("unknown metrics backend %q", m.Backend)})
	}
	if strings.EqualFold(m.Backend, "pushgateway") && m.PushgatewayURL == "" {
		issues = append(issues, Issue{SeverityError, "metrics.pushgateway_url", "pushgateway backend requires pushgateway_url"})
	}
	return issues
}

func validateName(path, name string, seen map[string]bool) []Issue {
	if strings.TrimSpace(name) == "" {
		return []Issue{{SeverityError, path + ".name", "name must not be empty"}}
	}
	if seen[name] {
		return []Issue{{SeverityError, path + ".name", fmt.Sprintf("duplicate name %q", name)}}
	}
	seen[name] = true
	return nil
}
