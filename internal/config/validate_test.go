package config

import (
	"strings"
	"testing"
)

type typeSet map[string]bool

func (s typeSet) HasSource(k string) bool      { return s[k] }
func (s typeSet) HasDestination(k string) bool { return s[k] }

var allTypes = typeSet{"csv": true, "json": true, "postgres": true, "sqlite": true}

func mustDecode(t *testing.T, doc string) *File {
	t.Helper()
	cfg, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return cfg
}

func findIssue(issues []Issue, path string, sev IssueSeverity) bool {
	for _, i := range issues {
		if i.Path == path && i.Severity == sev {
			return true
		}
	}
	return false
}

func TestValidate_SampleIsClean(t *testing.T) {
	t.Parallel()

	issues := Validate(mustDecode(t, sampleYAML), allTypes)
	if HasErrors(issues) {
		t.Fatalf("unexpected errors: %v", issues)
	}
}

func TestValidate_Findings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		path string
		sev  IssueSeverity
	}{
		{
			name: "merge without keys",
			doc: `
destinations: [{name: d, type: sqlite, connection_string: x.db, table: t, write_mode: merge}]`,
			path: "destinations[0].write_mode",
			sev:  SeverityError,
		},
		{
			name: "unknown destination type",
			doc:  `destinations: [{name: d, type: parquet, path: x}]`,
			path: "destinations[0].type",
			sev:  SeverityError,
		},
		{
			name: "file source without path",
			doc:  `sources: [{name: s, type: csv}]`,
			path: "sources[0].path",
			sev:  SeverityError,
		},
		{
			name: "bad strategy",
			doc: `
sources: [{name: s, type: csv, path: a.csv}]
destinations: [{name: d, type: csv, path: b.csv}]
resources: [{name: r, source: s, destination: d, query: "*", incremental: {column: id, strategy: random}}]`,
			path: "resources[0].incremental.strategy",
			sev:  SeverityError,
		},
		{
			name: "lookback with append",
			doc: `
sources: [{name: s, type: csv, path: a.csv}]
destinations: [{name: d, type: csv, path: b.csv}]
resources: [{name: r, source: s, destination: d, query: "*", incremental: {column: ts, lookback_seconds: 60}}]`,
			path: "resources[0].incremental.lookback_seconds",
			sev:  SeverityWarning,
		},
		{
			name: "bad action",
			doc: `
sources: [{name: s, type: csv, path: a.csv}]
destinations: [{name: d, type: csv, path: b.csv}]
resources: [{name: r, source: s, destination: d, query: "*", quality_checks: [{column: a, check: not_null, action: explode}]}]`,
			path: "resources[0].quality_checks[0].action",
			sev:  SeverityError,
		},
		{
			name: "bad check name",
			doc: `
sources: [{name: s, type: csv, path: a.csv}]
destinations: [{name: d, type: csv, path: b.csv}]
resources: [{name: r, source: s, destination: d, query: "*", quality_checks: [{column: a, check: "not-null"}]}]`,
			path: "resources[0].quality_checks[0].check",
			sev:  SeverityError,
		},
		{
			name: "undefined source",
			doc: `
destinations: [{name: d, type: csv, path: b.csv}]
resources: [{name: r, source: nope, destination: d, query: "*"}]`,
			path: "resources[0].source",
			sev:  SeverityError,
		},
		{
			name: "bad evolution axis",
			doc: `
destinations: [{name: d, type: csv, path: b.csv, schema_evolution: {enabled: true, on_type_change: migrate}}]`,
			path: "destinations[0].schema_evolution.on_type_change",
			sev:  SeverityError,
		},
		{
			name: "duplicate source",
			doc:  `sources: [{name: s, type: csv, path: a.csv}, {name: s, type: csv, path: b.csv}]`,
			path: "sources[1].name",
			sev:  SeverityError,
		},
		{
			name: "pushgateway without url",
			doc:  `metrics: {backend: pushgateway}`,
			path: "metrics.pushgateway_url",
			sev:  SeverityError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			issues := Validate(mustDecode(t, tc.doc), allTypes)
			if !findIssue(issues, tc.path, tc.sev) {
				t.Fatalf("expected %s at %s, got %v", tc.sev, tc.path, issues)
			}
		})
	}
}

func TestValidate_NilTypeSetSkipsAvailability(t *testing.T) {
	t.Parallel()

	issues := Validate(mustDecode(t, `destinations: [{name: d, type: parquet, path: x}]`), nil)
	if findIssue(issues, "destinations[0].type", SeverityError) {
		t.Fatalf("type availability should not be checked without a TypeSet: %v", issues)
	}
}

func TestIssue_Error(t *testing.T) {
	t.Parallel()

	got := Issue{Severity: SeverityError, Path: "a.b", Message: "bad"}.Error()
	if got != "error at a.b: bad" {
		t.Fatalf("Error() = %q", got)
	}
}
