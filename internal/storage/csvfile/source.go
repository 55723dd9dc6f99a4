// Package csvfile implements the csv connector: a streaming source over a
// local file or http(s) URL and a destination that stages rows beside the
// target file and renames it into place on Finalize.
package csvfile

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"conduit/internal/config"
	"conduit/internal/connector"
	"conduit/internal/datasource"
	"conduit/internal/datasource/httpds"
	"conduit/internal/logger"
	"conduit/internal/records"
)

// Type is the registry name of this connector.
const Type = "csv"

const sniffBytes = 64 * 1024

type readOptions struct {
	delimiter string
	hasHeader bool
	trim      bool
	lazy      bool
	normalize bool
	skipBad   bool
	headerMap map[string]string
}

func parseReadOptions(o config.Options) readOptions {
	return readOptions{
		delimiter: o.String("delimiter", ","),
		hasHeader: o.Bool("has_header", true),
		trim:      o.Bool("trim_space", true),
		lazy:      o.Bool("lazy_quotes", false),
		normalize: o.Bool("normalize_headers", true),
		skipBad:   o.Bool("skip_bad_rows", false),
		headerMap: o.StringMap("header_map"),
	}
}

// Source streams rows of a CSV file as records. Every value is a string;
// empty cells are nil.
type Source struct {
	name string
	path string
	src  datasource.Source
	opts readOptions
	log  logger.Logger
}

// NewSource opens nothing; the file is opened on each Read.
func NewSource(ctx context.Context, spec connector.Spec) (*Source, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("csvfile: source %q: path is required", spec.Name)
	}
	var client *httpds.Client
	if datasource.IsRemote(spec.Path) {
		client = httpds.NewClient(httpds.Config{
			InsecureSkipVerify: spec.Options.Bool("insecure_skip_verify", false),
			BaseHeaders:        headers(spec.Options),
			Retry:              spec.RetryPolicy(),
		})
	}
	return &Source{
		name: spec.Name,
		path: spec.Path,
		src:  datasource.For(spec.Path, client),
		opts: parseReadOptions(spec.Options),
		log:  logger.FromContext(ctx).WithName("conduit:csv"),
	}, nil
}

func headers(o config.Options) map[string][]string {
	m := o.StringMap("headers")
	if len(m) == 0 {
		return nil
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = []string{v}
	}
	return out
}

// TestConnection checks the file or URL can be reached.
func (s *Source) TestConnection(ctx context.Context) error {
	if err := s.src.Stat(ctx); err != nil {
		return &connector.ConnectionError{
			Connector: Type,
			Name:      s.name,
			Err:       err,
			Suggestions: []string{
				"check that " + s.path + " exists and is readable",
				"relative paths are resolved against the working directory",
			},
		}
	}
	return nil
}

// Read ignores query; a file has exactly one extraction.
func (s *Source) Read(ctx context.Context, _ string) (records.Iterator, error) {
	rc, err := s.src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("csvfile: %w", err)
	}
	br := bufio.NewReaderSize(rc, sniffBytes)

	comma, err := s.comma(br)
	if err != nil {
		rc.Close()
		return nil, err
	}
	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = s.opts.lazy
	cr.FieldsPerRecord = -1

	it := &rowIterator{rc: rc, cr: cr, path: s.path, opts: s.opts, log: s.log}
	first, err := cr.Read()
	switch {
	case errors.Is(err, io.EOF):
		it.done = true
		return it, nil
	case err != nil:
		rc.Close()
		return nil, fmt.Errorf("csvfile: %s: read header: %w", s.path, err)
	}
	if s.opts.hasHeader {
		it.header = headerNames(first, s.opts.headerMap, s.opts.normalize)
	} else {
		it.header = headerNames(make([]string, len(first)), nil, false)
		it.pending = it.toRecord(first)
	}
	s.log.Debug("reading csv", "path", s.path, "delimiter", string(comma), "columns", len(it.header))
	return it, nil
}

func (s *Source) comma(br *bufio.Reader) (rune, error) {
	switch d := strings.ToLower(s.opts.delimiter); d {
	case "auto":
		sample, err := br.Peek(sniffBytes)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return 0, fmt.Errorf("csvfile: %s: sniff delimiter: %w", s.path, err)
		}
		return DetectDelimiter(sample), nil
	case "tab", `\t`:
		return '\t', nil
	case "":
		return ',', nil
	default:
		return []rune(s.opts.delimiter)[0], nil
	}
}

// Close is a no-op; iterators own their file handles.
func (s *Source) Close() error { return nil }

type rowIterator struct {
	rc      io.ReadCloser
	cr      *csv.Reader
	path    string
	header  []string
	pending records.Record
	opts    readOptions
	done    bool
	log     logger.Logger
}

func (it *rowIterator) toRecord(row []string) records.Record {
	rec := make(records.Record, len(it.header))
	for i, name := range it.header {
		if i >= len(row) {
			rec[name] = nil
			continue
		}
		v := row[i]
		if it.opts.trim {
			v = strings.TrimSpace(v)
		}
		if v == "" {
			rec[name] = nil
		} else {
			rec[name] = v
		}
	}
	return rec
}

func (it *rowIterator) Next(ctx context.Context) (records.Record, error) {
	if p := it.pending; p != nil {
		it.pending = nil
		return p, nil
	}
	for !it.done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := it.cr.Read()
		if errors.Is(err, io.EOF) {
			it.done = true
			break
		}
		if err != nil {
			if it.opts.skipBad {
				it.log.Warn("skipping malformed row", "path", it.path, "error", err)
				continue
			}
			return nil, fmt.Errorf("csvfile: %s: %w", it.path, err)
		}
		return it.toRecord(row), nil
	}
	return nil, io.EOF
}

func (it *rowIterator) Close() error {
	it.done = true
	return it.rc.Close()
}
