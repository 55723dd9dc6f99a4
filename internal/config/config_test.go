package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
sources:
  - name: orders_csv
    type: csv
    path: data/orders.csv
    infer_schema: true
    options:
      delimiter: auto
destinations:
  - name: warehouse
    type: postgres
    connection_string: postgres://u:p@localhost/db
    table: public.orders
    write_mode: merge
    primary_keys: [id]
    custom_null_values: ["-"]
    schema_evolution:
      enabled: true
      mode: auto
      on_column_removed: fail
resources:
  - name: orders
    source: orders_csv
    destination: warehouse
    query: "*"
    incremental_column: updated_at
    quality_checks:
      - {column: email, check: not_null, action: dlq}
      - {column: age, check: range, min: 18, max: 65, action: fail}
parallel_extraction:
  enabled: true
  max_workers: 8
`

func TestDecode_Sample(t *testing.T) {
	t.Parallel()

	cfg, err := Decode(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	src, ok := cfg.Source("orders_csv")
	if !ok {
		t.Fatalf("source orders_csv not found")
	}
	if src.SchemaSampleSize != DefaultSampleSize {
		t.Fatalf("schema_sample_size = %d, want default %d", src.SchemaSampleSize, DefaultSampleSize)
	}
	if got := src.Options.String("delimiter", ","); got != "auto" {
		t.Fatalf("options.delimiter = %q, want auto", got)
	}

	dst, _ := cfg.Destination("warehouse")
	if !dst.CoercionEnabled() {
		t.Fatalf("type coercion should default to enabled")
	}
	se := dst.SchemaEvolution
	if se == nil || se.OnRemovedColumn != "fail" {
		t.Fatalf("legacy on_column_removed not folded: %#v", se)
	}
	if se.TrackHistory == nil || !*se.TrackHistory {
		t.Fatalf("track_history should default to true")
	}

	res, _ := cfg.Resource("orders")
	if res.Incremental == nil || res.Incremental.Column != "updated_at" || res.Incremental.Strategy != "timestamp" {
		t.Fatalf("legacy incremental_column not converted: %#v", res.Incremental)
	}
	if !res.Incremental.GapDetection() {
		t.Fatalf("detect_gaps should default to true")
	}
	if len(res.QualityChecks) != 2 || res.QualityChecks[1].Max == nil || *res.QualityChecks[1].Max != 65 {
		t.Fatalf("quality checks decoded = %#v", res.QualityChecks)
	}
	if res.WriteModeFor(dst) != "merge" {
		t.Fatalf("write mode = %q, want merge", res.WriteModeFor(dst))
	}

	if cfg.ParallelExtraction.MaxWorkers != 8 || cfg.ParallelExtraction.BatchSize != DefaultParallelBatch {
		t.Fatalf("parallel_extraction = %#v", cfg.ParallelExtraction)
	}
	if cfg.Runtime.BatchSize != DefaultBatchSize || cfg.Runtime.StateDir != DefaultStateDir {
		t.Fatalf("runtime defaults = %#v", cfg.Runtime)
	}
	if want := filepath.Join(DefaultStateDir, DefaultManifestFile); cfg.Runtime.Manifest() != want {
		t.Fatalf("manifest = %q, want %q", cfg.Runtime.Manifest(), want)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BackoffFactor != 2 {
		t.Fatalf("retry defaults = %#v", cfg.Retry)
	}
}

func TestDecode_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := Decode(strings.NewReader("resources: []\nbogus: 1\n"))
	if err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestDecode_Empty(t *testing.T) {
	t.Parallel()

	if _, err := Decode(strings.NewReader("")); err == nil {
		t.Fatalf("expected error for empty document")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ingest.yml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Resources) != 1 {
		t.Fatalf("resources = %d, want 1", len(cfg.Resources))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	cfg, err := Decode(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	cfg.ApplyEnv(Env{StateDir: "/var/lib/conduit", BatchSize: 50, MaxWorkers: 2, DogStatsDAddr: "127.0.0.1:8125"})

	if cfg.Runtime.StateDir != "/var/lib/conduit" || cfg.Runtime.BatchSize != 50 {
		t.Fatalf("runtime = %#v", cfg.Runtime)
	}
	if cfg.ParallelExtraction.MaxWorkers != 2 {
		t.Fatalf("max_workers = %d, want 2", cfg.ParallelExtraction.MaxWorkers)
	}
	if cfg.Metrics.Backend != "datadog" || cfg.Metrics.DogStatsDAddr != "127.0.0.1:8125" {
		t.Fatalf("metrics = %#v", cfg.Metrics)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("CONDUIT_BATCH_SIZE", "250")
	t.Setenv("CONDUIT_LOG_LEVEL", "debug")

	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if e.BatchSize != 250 || e.LogLevel != "debug" {
		t.Fatalf("env = %#v", e)
	}

	t.Setenv("CONDUIT_BATCH_SIZE", "many")
	if _, err := LoadEnv(); err == nil {
		t.Fatalf("expected error for non-numeric batch size")
	}
}

func TestOptions_Getters(t *testing.T) {
	t.Parallel()

	o := Options{
		"s":    "x",
		"b":    true,
		"i":    3,
		"f":    4.0,
		"r":    ";",
		"m":    map[string]any{"a": "b", "n": 1},
		"list": []any{"a", 1, "b"},
	}
	if o.String("s", "") != "x" || o.String("missing", "d") != "d" {
		t.Fatalf("String getter broken")
	}
	if !o.Bool("b", false) || o.Bool("s", false) {
		t.Fatalf("Bool getter broken")
	}
	if o.Int("i", 0) != 3 || o.Int("f", 0) != 4 || o.Int("s", 7) != 7 {
		t.Fatalf("Int getter broken")
	}
	if o.Rune("r", ',') != ';' || o.Rune("missing", ',') != ',' {
		t.Fatalf("Rune getter broken")
	}
	if m := o.StringMap("m"); len(m) != 1 || m["a"] != "b" {
		t.Fatalf("StringMap = %#v", m)
	}
	if l := o.StringSlice("list"); len(l) != 2 {
		t.Fatalf("StringSlice = %#v", l)
	}
}

func TestOptions_NullDecodesEmpty(t *testing.T) {
	t.Parallel()

	cfg, err := Decode(strings.NewReader("sources:\n  - name: a\n    type: csv\n    path: x.csv\n    options: ~\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sources[0].Options == nil {
		t.Fatalf("options should be non-nil")
	}
}
