// Package config defines the YAML ingest file: the sources and destinations
// a deployment can reach, and the resources that map one onto the other.
//
// Example (trimmed):
//
//	sources:
//	  - name: orders_csv
//	    type: csv
//	    path: data/orders.csv
//	    infer_schema: true
//	destinations:
//	  - name: warehouse
//	    type: postgres
//	    connection_string: postgres://...
//	    table: public.orders
//	    write_mode: merge
//	    primary_keys: [id]
//	resources:
//	  - name: orders
//	    source: orders_csv
//	    destination: warehouse
//	    query: "*"
//	    incremental: {column: updated_at, lookback_seconds: 3600}
//
// The package has no dependencies on the rest of the module so every other
// package can import it.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the file leaves a value unset.
const (
	DefaultBatchSize        = 1000
	DefaultSampleSize       = 100
	DefaultStateDir         = ".conduit"
	DefaultManifestFile     = "manifest.json"
	DefaultMaxWorkers       = 4
	DefaultParallelBatch    = 10000
	DefaultRetryMaxAttempts = 3
)

// File is the top-level ingest document.
type File struct {
	Sources            []Source           `yaml:"sources"`
	Destinations       []Destination      `yaml:"destinations"`
	Resources          []Resource         `yaml:"resources"`
	ParallelExtraction ParallelExtraction `yaml:"parallel_extraction"`
	Retry              Retry              `yaml:"retry"`
	Metrics            Metrics            `yaml:"metrics"`
	Runtime            RuntimeConfig      `yaml:"runtime"`
}

// RuntimeConfig holds process-wide knobs.
type RuntimeConfig struct {
	// StateDir holds checkpoints, incremental state, schemas and error logs.
	StateDir     string `yaml:"state_dir"`
	BatchSize    int    `yaml:"batch_size"`
	ManifestPath string `yaml:"manifest_path"`
}

// Manifest returns the manifest path, defaulting to a file in StateDir.
func (r RuntimeConfig) Manifest() string {
	if r.ManifestPath != "" {
		return r.ManifestPath
	}
	return filepath.Join(r.StateDir, DefaultManifestFile)
}

// Source is a named place records are read from.
type Source struct {
	Name             string  `yaml:"name"`
	Type             string  `yaml:"type"`
	Path             string  `yaml:"path"`
	ConnectionString string  `yaml:"connection_string"`
	Options          Options `yaml:"options"`

	CheckpointColumn string `yaml:"checkpoint_column"`
	Resume           bool   `yaml:"resume"`

	InferSchema      bool `yaml:"infer_schema"`
	SchemaSampleSize int  `yaml:"schema_sample_size"`
}

// SchemaEvolution is the drift policy of a destination.
type SchemaEvolution struct {
	Enabled         bool   `yaml:"enabled"`
	Mode            string `yaml:"mode"`
	OnNewColumn     string `yaml:"on_new_column"`
	OnRemovedColumn string `yaml:"on_removed_column"`
	OnTypeChange    string `yaml:"on_type_change"`
	TrackHistory    *bool  `yaml:"track_history"`

	// Legacy spellings.
	AutoAddColumns  *bool  `yaml:"auto_add_columns"`
	OnColumnRemoved string `yaml:"on_column_removed"`
}

// Normalized folds the legacy spellings into the current fields.
func (s SchemaEvolution) Normalized() SchemaEvolution {
	if s.OnRemovedColumn == "" {
		s.OnRemovedColumn = s.OnColumnRemoved
	}
	if s.OnNewColumn == "" && s.AutoAddColumns != nil && !*s.AutoAddColumns {
		s.OnNewColumn = "ignore"
	}
	if s.TrackHistory == nil {
		t := true
		s.TrackHistory = &t
	}
	return s
}

// Destination is a named place records are written to.
type Destination struct {
	Name               string   `yaml:"name"`
	Type               string   `yaml:"type"`
	Path               string   `yaml:"path"`
	ConnectionString   string   `yaml:"connection_string"`
	Table              string   `yaml:"table"`
	WriteMode          string   `yaml:"write_mode"`
	PrimaryKeys        []string `yaml:"primary_keys"`
	CheckpointInterval int      `yaml:"checkpoint_interval"`
	Options            Options  `yaml:"options"`

	EnableTypeCoercion *bool             `yaml:"enable_type_coercion"`
	StrictTypeCoercion bool              `yaml:"strict_type_coercion"`
	CustomNullValues   []string          `yaml:"custom_null_values"`
	TypeMappings       map[string]string `yaml:"type_mappings"`

	AutoCreateTable bool             `yaml:"auto_create_table"`
	SchemaEvolution *SchemaEvolution `yaml:"schema_evolution"`
}

// CoercionEnabled reports whether type coercion runs; it defaults to true.
func (d Destination) CoercionEnabled() bool {
	return d.EnableTypeCoercion == nil || *d.EnableTypeCoercion
}

// Incremental configures watermark-based extraction.
type Incremental struct {
	Column          string `yaml:"column"`
	Strategy        string `yaml:"strategy"`
	LookbackSeconds int    `yaml:"lookback_seconds"`
	DetectGaps      *bool  `yaml:"detect_gaps"`
	InitialValue    any    `yaml:"initial_value"`
}

// GapDetection reports whether gap detection is on; it defaults to true.
func (i Incremental) GapDetection() bool { return i.DetectGaps == nil || *i.DetectGaps }

// QualityCheck is one per-column rule.
type QualityCheck struct {
	Column        string         `yaml:"column"`
	Check         string         `yaml:"check"`
	Action        string         `yaml:"action"`
	Pattern       string         `yaml:"pattern"`
	Min           *float64       `yaml:"min"`
	Max           *float64       `yaml:"max"`
	AllowedValues []any          `yaml:"allowed_values"`
	Params        map[string]any `yaml:"params"`
}

// QualityAnalysis enables column statistics and anomaly warnings.
type QualityAnalysis struct {
	Enabled            bool    `yaml:"enabled"`
	BaselinePath       string  `yaml:"baseline_path"`
	UpdateBaseline     bool    `yaml:"update_baseline"`
	NullSpikeThreshold float64 `yaml:"null_spike_threshold"`
	ZScoreThreshold    float64 `yaml:"value_range_multiplier"`
}

// Resource maps one source onto one destination.
type Resource struct {
	Name             string           `yaml:"name"`
	Source           string           `yaml:"source"`
	Destination      string           `yaml:"destination"`
	Query            string           `yaml:"query"`
	Mode             string           `yaml:"mode"`
	ExportSchemaPath string           `yaml:"export_schema_path"`
	BatchSize        int              `yaml:"batch_size"`
	QualityChecks    []QualityCheck   `yaml:"quality_checks"`
	QualityAnalysis  *QualityAnalysis `yaml:"quality_analysis"`

	Incremental *Incremental `yaml:"incremental"`
	// IncrementalColumn is the legacy spelling of Incremental.Column.
	IncrementalColumn string `yaml:"incremental_column"`
}

// WriteModeFor returns the write mode a resource uses against d: the
// resource's mode when set, else the destination's.
func (r Resource) WriteModeFor(d Destination) string {
	if r.Mode != "" {
		return r.Mode
	}
	return d.WriteMode
}

// ParallelExtraction configures offset/limit fan-out.
type ParallelExtraction struct {
	Enabled    bool `yaml:"enabled"`
	MaxWorkers int  `yaml:"max_workers"`
	BatchSize  int  `yaml:"batch_size"`
}

// Retry configures backoff for transient I/O, in seconds.
type Retry struct {
	MaxAttempts   int     `yaml:"max_attempts"`
	InitialDelay  float64 `yaml:"initial_delay"`
	BackoffFactor float64 `yaml:"backoff_factor"`
	MaxDelay      float64 `yaml:"max_delay"`
}

// Metrics selects a metrics backend.
type Metrics struct {
	// Backend is "none", "pushgateway" or "datadog".
	Backend        string   `yaml:"backend"`
	Job            string   `yaml:"job"`
	PushgatewayURL string   `yaml:"pushgateway_url"`
	DogStatsDAddr  string   `yaml:"dogstatsd_addr"`
	Tags           []string `yaml:"tags"`
}

// Load reads and decodes the file at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses an ingest document from r and applies defaults. Unknown
// keys are rejected.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var cfg File
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty document")
		}
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (f *File) applyDefaults() {
	if f.Runtime.StateDir == "" {
		f.Runtime.StateDir = DefaultStateDir
	}
	if f.Runtime.BatchSize <= 0 {
		f.Runtime.BatchSize = DefaultBatchSize
	}
	if f.ParallelExtraction.MaxWorkers <= 0 {
		f.ParallelExtraction.MaxWorkers = DefaultMaxWorkers
	}
	if f.ParallelExtraction.BatchSize <= 0 {
		f.ParallelExtraction.BatchSize = DefaultParallelBatch
	}
	if f.Retry.MaxAttempts <= 0 {
		f.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if f.Retry.InitialDelay <= 0 {
		f.Retry.InitialDelay = 1
	}
	if f.Retry.BackoffFactor < 1 {
		f.Retry.BackoffFactor = 2
	}
	for i := range f.Sources {
		if f.Sources[i].SchemaSampleSize <= 0 {
			f.Sources[i].SchemaSampleSize = DefaultSampleSize
		}
		if f.Sources[i].Options == nil {
			f.Sources[i].Options = Options{}
		}
	}
	for i := range f.Destinations {
		if f.Destinations[i].Options == nil {
			f.Destinations[i].Options = Options{}
		}
		if se := f.Destinations[i].SchemaEvolution; se != nil {
			n := se.Normalized()
			f.Destinations[i].SchemaEvolution = &n
		}
	}
	for i := range f.Resources {
		r := &f.Resources[i]
		if r.Incremental == nil && r.IncrementalColumn != "" {
			r.Incremental = &Incremental{Column: r.IncrementalColumn, Strategy: "timestamp"}
		}
		if r.Incremental != nil && r.Incremental.Strategy == "" {
			r.Incremental.Strategy = "timestamp"
		}
	}
}

// Source returns the source named name.
func (f *File) Source(name string) (Source, bool) {
	for _, s := range f.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// Destination returns the destination named name.
func (f *File) Destination(name string) (Destination, bool) {
	for _, d := range f.Destinations {
		if d.Name == name {
			return d, true
		}
	}
	return Destination{}, false
}

// Resource returns the resource named name.
func (f *File) Resource(name string) (Resource, bool) {
	for _, r := range f.Resources {
		if r.Name == name {
			return r, true
		}
	}
	return Resource{}, false
}

// Options is a small helper to fetch typed values from free-form option
// maps. It performs only minimal type coercion and returns the provided
// default when a key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. YAML decodes integers as int
// and JSON as float64; both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. Useful for single-character settings such as a CSV
// delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// StringSlice returns a []string for key when the value is an array of
// strings. Returns nil when the key is missing or not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key.
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// UnmarshalJSON decodes a missing or null object to an empty, non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}

// UnmarshalYAML decodes a null node to an empty, non-nil map.
func (o *Options) UnmarshalYAML(n *yaml.Node) error {
	if n.Tag == "!!null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := n.Decode(&tmp); err != nil {
		return err
	}
	if tmp == nil {
		tmp = map[string]any{}
	}
	*o = Options(tmp)
	return nil
}
