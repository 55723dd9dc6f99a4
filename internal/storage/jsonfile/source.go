// Package jsonfile implements the json connector. Sources accept a
// top-level array of objects, newline-delimited objects, or a single
// object, from a local file or http(s) URL. Destinations write NDJSON or a
// JSON array and commit on Finalize.
package jsonfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"conduit/internal/connector"
	"conduit/internal/datasource"
	"conduit/internal/datasource/httpds"
	"conduit/internal/logger"
	"conduit/internal/records"
)

// Type is the registry name of this connector.
const Type = "json"

// Source streams JSON objects as records. Numbers are json.Number.
type Source struct {
	name       string
	path       string
	recordsKey string
	src        datasource.Source
	log        logger.Logger
}

// NewSource validates spec; the file is opened on each Read.
func NewSource(ctx context.Context, spec connector.Spec) (*Source, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("jsonfile: source %q: path is required", spec.Name)
	}
	var client *httpds.Client
	if datasource.IsRemote(spec.Path) {
		client = httpds.NewClient(httpds.Config{
			InsecureSkipVerify: spec.Options.Bool("insecure_skip_verify", false),
			Retry:              spec.RetryPolicy(),
		})
	}
	return &Source{
		name:       spec.Name,
		path:       spec.Path,
		recordsKey: spec.Options.String("records_key", ""),
		src:        datasource.For(spec.Path, client),
		log:        logger.FromContext(ctx).WithName("conduit:json"),
	}, nil
}

// TestConnection checks the file or URL can be reached.
func (s *Source) TestConnection(ctx context.Context) error {
	if err := s.src.Stat(ctx); err != nil {
		return &connector.ConnectionError{
			Connector:   Type,
			Name:        s.name,
			Err:         err,
			Suggestions: []string{"check that " + s.path + " exists and is readable"},
		}
	}
	return nil
}

// Read ignores query.
func (s *Source) Read(ctx context.Context, _ string) (records.Iterator, error) {
	rc, err := s.src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("jsonfile: %w", err)
	}
	br := bufio.NewReader(rc)
	dec := json.NewDecoder(br)
	dec.UseNumber()

	it := &objectIterator{rc: rc, dec: dec, path: s.path}
	first, err := firstByte(br)
	switch {
	case errors.Is(err, io.EOF):
		it.done = true
	case err != nil:
		rc.Close()
		return nil, fmt.Errorf("jsonfile: %s: %w", s.path, err)
	case first == '[':
		if _, err := dec.Token(); err != nil {
			rc.Close()
			return nil, fmt.Errorf("jsonfile: %s: %w", s.path, err)
		}
		it.inArray = true
	case s.recordsKey != "":
		if err := it.loadEnvelope(s.recordsKey); err != nil {
			rc.Close()
			return nil, err
		}
	}
	return it, nil
}

// firstByte peeks the first non-space byte.
func firstByte(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsRune([]byte(" \t\r\n"), rune(b)) {
			return b, br.UnreadByte()
		}
	}
}

// Close is a no-op; iterators own their handles.
func (s *Source) Close() error { return nil }

type objectIterator struct {
	rc       io.ReadCloser
	dec      *json.Decoder
	path     string
	inArray  bool
	envelope []records.Record
	loaded   bool
	n        int
	done     bool
}

func (it *objectIterator) loadEnvelope(key string) error {
	var doc map[string]json.RawMessage
	if err := it.dec.Decode(&doc); err != nil {
		return fmt.Errorf("jsonfile: %s: %w", it.path, err)
	}
	raw, ok := doc[key]
	if !ok {
		return fmt.Errorf("jsonfile: %s: records key %q not found", it.path, key)
	}
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	if err := d.Decode(&it.envelope); err != nil {
		return fmt.Errorf("jsonfile: %s: records key %q: %w", it.path, key, err)
	}
	it.loaded = true
	return nil
}

func (it *objectIterator) Next(ctx context.Context) (records.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.done {
		return nil, io.EOF
	}
	if it.loaded {
		if it.n >= len(it.envelope) {
			it.done = true
			return nil, io.EOF
		}
		it.n++
		return it.envelope[it.n-1], nil
	}
	if it.inArray && !it.dec.More() {
		it.done = true
		return nil, io.EOF
	}

	var rec records.Record
	err := it.dec.Decode(&rec)
	if errors.Is(err, io.EOF) && !it.inArray {
		it.done = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("jsonfile: %s: record %d: %w", it.path, it.n+1, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("jsonfile: %s: record %d: not an object", it.path, it.n+1)
	}
	it.n++
	return rec, nil
}

func (it *objectIterator) Close() error {
	it.done = true
	return it.rc.Close()
}
