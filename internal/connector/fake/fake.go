// Package fake provides in-memory connectors for tests.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"conduit/internal/connector"
	"conduit/internal/ddl"
	"conduit/internal/records"
	"conduit/internal/schema"
)

// Source serves Records for any query. It only implements the serial
// read path.
type Source struct {
	Records []records.Record
	ReadErr error

	mu      sync.Mutex
	Queries []string
	closed  bool
}

func (s *Source) Read(ctx context.Context, query string) (records.Iterator, error) {
	s.mu.Lock()
	s.Queries = append(s.Queries, query)
	s.mu.Unlock()
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	return records.FromSlice(s.Records), nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// RandomSource adds offset/limit reads and a row count to Source.
type RandomSource struct {
	Source
	// Unknown makes EstimateTotalRecords report an unknown count.
	Unknown bool
	// FailAt fails the range starting at this offset when >= 0.
	FailAt int64

	mu     sync.Mutex
	Ranges [][2]int64
}

// NewRandomSource returns a RandomSource over recs.
func NewRandomSource(recs []records.Record) *RandomSource {
	return &RandomSource{Source: Source{Records: recs}, FailAt: -1}
}

func (s *RandomSource) ReadBatch(ctx context.Context, query string, offset, limit int64) ([]records.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.Ranges = append(s.Ranges, [2]int64{offset, limit})
	s.mu.Unlock()
	if s.FailAt >= 0 && offset == s.FailAt {
		return nil, fmt.Errorf("fake: range at %d failed", offset)
	}
	end := min(offset+limit, int64(len(s.Records)))
	if offset >= end {
		return nil, nil
	}
	return s.Records[offset:end], nil
}

func (s *RandomSource) EstimateTotalRecords(ctx context.Context, query string) (int64, bool, error) {
	if s.Unknown {
		return 0, false, nil
	}
	return int64(len(s.Records)), true, nil
}

// Destination records every batch written to it. It implements
// BatchWriter and Finalizer.
type Destination struct {
	// FailBatch, when set, is consulted before each Write.
	FailBatch func(recs []records.Record) error

	mu        sync.Mutex
	Written   []records.Record
	Batches   int
	Finalized bool
	closed    bool
}

func (d *Destination) Write(ctx context.Context, recs []records.Record) error {
	if d.FailBatch != nil {
		if err := d.FailBatch(recs); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Written = append(d.Written, recs...)
	d.Batches++
	return nil
}

func (d *Destination) Finalize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Finalized = true
	return nil
}

func (d *Destination) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Rows returns a copy of everything written.
func (d *Destination) Rows() []records.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]records.Record(nil), d.Written...)
}

// RecordDestination adds single-record writes. FailRecord decides which
// records are rejected.
type RecordDestination struct {
	Destination
	FailRecord func(rec records.Record) error
}

func (d *RecordDestination) WriteOne(ctx context.Context, rec records.Record) error {
	if d.FailRecord != nil {
		if err := d.FailRecord(rec); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Written = append(d.Written, rec)
	return nil
}

// TableDestination is a SQL-like destination that supports DDL, table
// inspection and a dialect.
type TableDestination struct {
	Destination
	Exists  bool
	Columns schema.Schema
	// DDLErr fails every ExecuteDDL and AlterTable call.
	DDLErr error

	mu  sync.Mutex
	DDL []string
}

func (d *TableDestination) ExecuteDDL(ctx context.Context, sql string) error {
	if d.DDLErr != nil {
		return d.DDLErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DDL = append(d.DDL, sql)
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "CREATE TABLE") {
		d.Exists = true
	}
	return nil
}

func (d *TableDestination) AlterTable(ctx context.Context, sql string) error {
	return d.ExecuteDDL(ctx, sql)
}

func (d *TableDestination) TableExists(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Exists, nil
}

func (d *TableDestination) TableSchema(ctx context.Context) (schema.Schema, error) {
	return d.Columns, nil
}

func (d *TableDestination) Dialect() ddl.Dialect { return ddl.SQLite }

// Statements returns the DDL executed so far.
func (d *TableDestination) Statements() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.DDL...)
}

var (
	_ connector.Source       = (*Source)(nil)
	_ connector.BatchReader  = (*RandomSource)(nil)
	_ connector.Estimator    = (*RandomSource)(nil)
	_ connector.BatchWriter  = (*Destination)(nil)
	_ connector.Finalizer    = (*Destination)(nil)
	_ connector.RecordWriter = (*RecordDestination)(nil)
	_ connector.DDLExecutor  = (*TableDestination)(nil)
	_ connector.TableChecker = (*TableDestination)(nil)
	_ connector.SchemaReader = (*TableDestination)(nil)
	_ connector.Dialecter    = (*TableDestination)(nil)
	_ connector.Destination  = (*Destination)(nil)
)
