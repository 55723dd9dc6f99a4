// Package connector defines the contract between the engine and the systems
// it reads from and writes to.
//
// A source implements Source and any subset of the optional read
// capabilities; a destination implements Destination and any subset of the
// write capabilities. The engine branches on which interfaces a connector
// satisfies, so a connector only implements what it can do well.
package connector

import (
	"context"
	"fmt"
	"strings"

	"conduit/internal/config"
	"conduit/internal/ddl"
	"conduit/internal/records"
	"conduit/internal/retry"
	"conduit/internal/schema"
)

// Spec is the resolved configuration handed to a connector factory.
type Spec struct {
	Name        string
	Type        string
	Path        string
	DSN         string
	Table       string
	Mode        WriteMode
	PrimaryKeys []string
	Options     config.Options
	// Retry governs connection attempts and remote I/O. The zero value
	// means retry.DefaultPolicy.
	Retry retry.Policy
}

// RetryPolicy returns s.Retry, or retry.DefaultPolicy when it is unset.
func (s Spec) RetryPolicy() retry.Policy {
	if s.Retry.MaxAttempts <= 0 {
		return retry.DefaultPolicy
	}
	return s.Retry
}

// WriteMode controls how a destination treats existing data.
type WriteMode string

const (
	ModeAppend      WriteMode = "append"
	ModeFullRefresh WriteMode = "full_refresh"
	ModeTruncate    WriteMode = "truncate"
	ModeMerge       WriteMode = "merge"
)

// ParseWriteMode parses s; the empty string means append.
func ParseWriteMode(s string) (WriteMode, error) {
	switch m := WriteMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAppend, nil
	case ModeAppend, ModeFullRefresh, ModeTruncate, ModeMerge:
		return m, nil
	default:
		return "", fmt.Errorf("connector: unknown write mode %q", s)
	}
}

// Replaces reports whether the mode empties the target before loading.
func (m WriteMode) Replaces() bool { return m == ModeFullRefresh || m == ModeTruncate }

// Source reads records for an opaque query string.
type Source interface {
	Read(ctx context.Context, query string) (records.Iterator, error)
	Close() error
}

// BatchReader is implemented by sources that support random-access reads.
type BatchReader interface {
	ReadBatch(ctx context.Context, query string, offset, limit int64) ([]records.Record, error)
}

// Estimator reports the number of records query would return. ok is false
// when the count is unknown.
type Estimator interface {
	EstimateTotalRecords(ctx context.Context, query string) (n int64, ok bool, err error)
}

// ConnectionTester checks reachability; failures are *ConnectionError.
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

// Destination is the base destination contract.
type Destination interface {
	Close() error
}

// BatchWriter writes a batch of records, buffering or immediately.
type BatchWriter interface {
	Write(ctx context.Context, recs []records.Record) error
}

// RecordWriter writes a single record so failures can be isolated.
type RecordWriter interface {
	WriteOne(ctx context.Context, rec records.Record) error
}

// Finalizer is implemented by destinations that stage before committing.
type Finalizer interface {
	Finalize(ctx context.Context) error
}

// DDLExecutor runs schema statements against the destination.
type DDLExecutor interface {
	ExecuteDDL(ctx context.Context, sql string) error
	AlterTable(ctx context.Context, sql string) error
}

// TableChecker reports whether the configured table exists.
type TableChecker interface {
	TableExists(ctx context.Context) (bool, error)
}

// SchemaReader returns the destination table's current columns.
type SchemaReader interface {
	TableSchema(ctx context.Context) (schema.Schema, error)
}

// Dialecter names the SQL dialect used to render DDL for a destination.
type Dialecter interface {
	Dialect() ddl.Dialect
}
