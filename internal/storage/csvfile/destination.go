package csvfile

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"conduit/internal/connector"
	"conduit/internal/datasource/file"
	"conduit/internal/logger"
	"conduit/internal/records"
)

// Destination writes records as CSV rows. The column set is fixed by the
// existing file header in append mode, the "columns" option, or the sorted
// keys of the first record; unknown keys in later records are dropped.
type Destination struct {
	name    string
	path    string
	mode    connector.WriteMode
	comma   rune
	columns []string
	w       *file.AtomicWriter
	cw      *csv.Writer
	rows    int64
	dropped map[string]bool
	log     logger.Logger
}

// NewDestination validates spec. Merge is not supported by file targets.
func NewDestination(ctx context.Context, spec connector.Spec) (*Destination, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("csvfile: destination %q: path is required", spec.Name)
	}
	if spec.Mode == connector.ModeMerge {
		return nil, fmt.Errorf("csvfile: destination %q: write mode merge is not supported", spec.Name)
	}
	comma := ','
	switch d := spec.Options.String("delimiter", ""); d {
	case "", "auto":
	case "tab", `\t`:
		comma = '\t'
	default:
		comma = []rune(d)[0]
	}
	return &Destination{
		name:    spec.Name,
		path:    spec.Path,
		mode:    spec.Mode,
		comma:   comma,
		columns: spec.Options.StringSlice("columns"),
		dropped: make(map[string]bool),
		log:     logger.FromContext(ctx).WithName("conduit:csv"),
	}, nil
}

// TestConnection checks the target directory exists or can be created.
func (d *Destination) TestConnection(ctx context.Context) error {
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &connector.ConnectionError{
			Connector:   Type,
			Name:        d.name,
			Err:         err,
			Suggestions: []string{"check write permission on " + dir},
		}
	}
	return nil
}

func (d *Destination) open(first records.Record) error {
	w, err := file.Create(d.path, d.mode == connector.ModeAppend)
	if err != nil {
		return fmt.Errorf("csvfile: %w", err)
	}
	d.w = w
	d.cw = csv.NewWriter(w)
	d.cw.Comma = d.comma

	if w.Existing() {
		hdr, endsWithNewline, err := readHeader(d.path, d.comma)
		if err != nil {
			return err
		}
		d.columns = hdr
		if !endsWithNewline {
			if _, err := w.Write([]byte("\n")); err != nil {
				return fmt.Errorf("csvfile: %w", err)
			}
		}
		return nil
	}
	if len(d.columns) == 0 {
		d.columns = make([]string, 0, len(first))
		for k := range first {
			d.columns = append(d.columns, k)
		}
		sort.Strings(d.columns)
	}
	return d.cw.Write(d.columns)
}

// readHeader returns the first row of an existing CSV file and whether the
// file ends with a newline.
func readHeader(path string, comma rune) ([]string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("csvfile: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReader(f))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	hdr, err := cr.Read()
	if err != nil {
		return nil, false, fmt.Errorf("csvfile: %s: read existing header: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("csvfile: %w", err)
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, fi.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return nil, false, fmt.Errorf("csvfile: %w", err)
	}
	return hdr, last[0] == '\n', nil
}

// Write appends recs to the staging file.
func (d *Destination) Write(ctx context.Context, recs []records.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if d.w == nil {
		if err := d.open(recs[0]); err != nil {
			return err
		}
	}

	known := make(map[string]struct{}, len(d.columns))
	for _, c := range d.columns {
		known[c] = struct{}{}
	}
	row := make([]string, len(d.columns))
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, c := range d.columns {
			row[i] = FormatValue(rec[c])
		}
		for k := range rec {
			if _, ok := known[k]; !ok && !d.dropped[k] {
				d.dropped[k] = true
				d.log.Warn("column not in csv header, values dropped", "path", d.path, "column", k)
			}
		}
		if err := d.cw.Write(row); err != nil {
			return fmt.Errorf("csvfile: %w", err)
		}
	}
	d.cw.Flush()
	if err := d.cw.Error(); err != nil {
		return fmt.Errorf("csvfile: %w", err)
	}
	d.rows += int64(len(recs))
	return nil
}

// Finalize commits the staged file. A replacing mode with no rows leaves an
// empty file; append with no rows leaves the target untouched.
func (d *Destination) Finalize(ctx context.Context) error {
	if d.w == nil {
		if !d.mode.Replaces() {
			return nil
		}
		w, err := file.Create(d.path, false)
		if err != nil {
			return fmt.Errorf("csvfile: %w", err)
		}
		d.w = w
	}
	if err := d.w.Commit(); err != nil {
		return fmt.Errorf("csvfile: %w", err)
	}
	d.log.Info("csv written", "path", d.path, "rows", d.rows)
	return nil
}

// Close discards uncommitted output.
func (d *Destination) Close() error {
	if d.w != nil {
		d.w.Abort()
	}
	return nil
}

// Register adds the csv source and destination to reg.
func Register(reg *connector.Registry) {
	reg.RegisterSource(Type, func(ctx context.Context, spec connector.Spec) (connector.Source, error) {
		s, err := NewSource(ctx, spec)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	reg.RegisterDestination(Type, func(ctx context.Context, spec connector.Spec) (connector.Destination, error) {
		d, err := NewDestination(ctx, spec)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

var (
	_ connector.Source           = (*Source)(nil)
	_ connector.ConnectionTester = (*Source)(nil)
	_ connector.BatchWriter      = (*Destination)(nil)
	_ connector.Finalizer        = (*Destination)(nil)
	_ connector.ConnectionTester = (*Destination)(nil)
)
