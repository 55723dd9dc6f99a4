package jsonfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"conduit/internal/connector"
	"conduit/internal/datasource/file"
	"conduit/internal/logger"
	"conduit/internal/records"
)

// Format is the layout of a written file.
type Format string

const (
	FormatNDJSON Format = "ndjson"
	FormatArray  Format = "array"
)

// formatFor picks the layout from the "format" option, else from the
// extension: ".json" is an array, anything else NDJSON.
func formatFor(path, opt string) (Format, error) {
	switch Format(strings.ToLower(opt)) {
	case FormatNDJSON:
		return FormatNDJSON, nil
	case FormatArray:
		return FormatArray, nil
	case "":
		if strings.EqualFold(filepath.Ext(path), ".json") {
			return FormatArray, nil
		}
		return FormatNDJSON, nil
	default:
		return "", fmt.Errorf("jsonfile: unknown format %q (want ndjson or array)", opt)
	}
}

// Destination writes records as JSON.
type Destination struct {
	name   string
	path   string
	mode   connector.WriteMode
	format Format
	w      *file.AtomicWriter
	rows   int64
	log    logger.Logger
}

// NewDestination validates spec. Merge is not supported by file targets.
func NewDestination(ctx context.Context, spec connector.Spec) (*Destination, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("jsonfile: destination %q: path is required", spec.Name)
	}
	if spec.Mode == connector.ModeMerge {
		return nil, fmt.Errorf("jsonfile: destination %q: write mode merge is not supported", spec.Name)
	}
	f, err := formatFor(spec.Path, spec.Options.String("format", ""))
	if err != nil {
		return nil, err
	}
	return &Destination{
		name:   spec.Name,
		path:   spec.Path,
		mode:   spec.Mode,
		format: f,
		log:    logger.FromContext(ctx).WithName("conduit:json"),
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

func (d *Destination) open() error {
	appendNDJSON := d.mode == connector.ModeAppend && d.format == FormatNDJSON
	w, err := file.Create(d.path, appendNDJSON)
	if err != nil {
		return fmt.Errorf("jsonfile: %w", err)
	}
	d.w = w
	if d.format == FormatNDJSON {
		return nil
	}
	if _, err := io.WriteString(w, "["); err != nil {
		return fmt.Errorf("jsonfile: %w", err)
	}
	if d.mode == connector.ModeAppend {
		return d.carryArray()
	}
	return nil
}

// carryArray re-emits the elements of an existing array file so an append
// still replaces the target in one rename.
func (d *Destination) carryArray() error {
	f, err := os.Open(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("jsonfile: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil || tok != json.Delim('[') {
		return fmt.Errorf("jsonfile: %s: existing file is not a JSON array", d.path)
	}
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("jsonfile: %s: %w", d.path, err)
		}
		if err := d.element(raw); err != nil {
			return err
		}
	}
	return nil
}

func (d *Destination) element(b []byte) error {
	var buf bytes.Buffer
	switch {
	case d.format == FormatNDJSON:
		buf.Write(b)
		buf.WriteByte('\n')
	case d.rows == 0:
		buf.WriteString("\n  ")
		buf.Write(b)
	default:
		buf.WriteString(",\n  ")
		buf.Write(b)
	}
	if _, err := d.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("jsonfile: %w", err)
	}
	d.rows++
	return nil
}

func marshal(rec records.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Write appends recs to the staging file.
func (d *Destination) Write(ctx context.Context, recs []records.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if d.w == nil {
		if err := d.open(); err != nil {
			return err
		}
	}
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := marshal(rec)
		if err != nil {
			return fmt.Errorf("jsonfile: encode record: %w", err)
		}
		if err := d.element(b); err != nil {
			return err
		}
	}
	return nil
}

// Finalize closes an array and commits the staged file. Append with no
// rows leaves the target untouched.
func (d *Destination) Finalize(ctx context.Context) error {
	if d.w == nil {
		if d.mode == connector.ModeAppend {
			return nil
		}
		if err := d.open(); err != nil {
			return err
		}
	}
	if d.format == FormatArray {
		closing := "\n]\n"
		if d.rows == 0 {
			closing = "]\n"
		}
		if _, err := io.WriteString(d.w, closing); err != nil {
			return fmt.Errorf("jsonfile: %w", err)
		}
	}
	if err := d.w.Commit(); err != nil {
		return fmt.Errorf("jsonfile: %w", err)
	}
	d.log.Info("json written", "path", d.path, "format", string(d.format), "rows", d.rows)
	return nil
}

// Close discards uncommitted output.
func (d *Destination) Close() error {
	if d.w != nil {
		d.w.Abort()
	}
	return nil
}

// Register adds the json source and destination to reg.
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
)
