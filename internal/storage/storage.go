// Package storage implements the database-backed connectors on top of
// database/sql. A Backend describes what differs between drivers (quoting,
// placeholders, paging, introspection, upsert and bulk-load primitives);
// DB does the rest and satisfies every source and destination capability
// the engine knows about.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"conduit/internal/connector"
	"conduit/internal/ddl"
	"conduit/internal/logger"
	"conduit/internal/retry"
	"conduit/internal/schema"
)

// BulkRequest is one batch handed to a Backend's bulk loader.
type BulkRequest struct {
	Table   string
	Columns []string
	Keys    []string
	Rows    [][]any
	Merge   bool
}

// BulkFunc loads req over conn in a single transaction.
type BulkFunc func(ctx context.Context, conn *sql.Conn, req BulkRequest) error

// Backend captures the driver-specific parts of a SQL connector.
type Backend struct {
	Kind    string
	Driver  string
	Dialect ddl.Dialect

	Quote       func(string) string
	QuoteFQN    func(string) string
	Placeholder func(i int) string

	// PrepareDSN validates and may rewrite the connection string.
	PrepareDSN func(string) (string, error)
	// Page wraps query to return limit rows starting at offset, ordered
	// by orderBy outside the wrapper. orderBy may be empty.
	Page func(query, orderBy string, offset, limit int64) string
	// ColumnsQuery returns a query yielding (name, type, nullable) for table.
	ColumnsQuery func(table string) (string, []any)
	LogicalType  func(sqlType string) schema.ColumnType
	// Upsert renders a single-row insert-or-update statement.
	Upsert func(table string, cols, keys []string) string
	// Truncate renders the statement that empties table.
	Truncate func(table string) string
	// Bulk is optional; without it rows are inserted with a prepared
	// statement inside one transaction.
	Bulk BulkFunc
	// MaxOpenConns caps the pool when positive.
	MaxOpenConns int
	Hints        []string
}

// DB is a database connector for one source or destination.
type DB struct {
	backend   Backend
	db        *sql.DB
	name      string
	table     string
	mode      connector.WriteMode
	keys      []string
	truncated bool
	log       logger.Logger
}

// Open connects to spec.DSN (or spec.Path when DSN is empty), retrying
// transient failures. Connection problems are *connector.ConnectionError.
func Open(ctx context.Context, b Backend, spec connector.Spec) (*DB, error) {
	dsn := strings.TrimSpace(spec.DSN)
	if dsn == "" {
		dsn = strings.TrimSpace(spec.Path)
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s: %q: connection_string is required", b.Kind, spec.Name)
	}
	if spec.Mode == connector.ModeMerge && len(spec.PrimaryKeys) == 0 {
		return nil, fmt.Errorf("%s: %q: write mode merge requires primary_keys", b.Kind, spec.Name)
	}
	if b.PrepareDSN != nil {
		var err error
		if dsn, err = b.PrepareDSN(dsn); err != nil {
			return nil, fmt.Errorf("%s: %q: invalid connection string: %w", b.Kind, spec.Name, err)
		}
	}

	db, err := sql.Open(b.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", b.Kind, err)
	}
	if b.MaxOpenConns > 0 {
		db.SetMaxOpenConns(b.MaxOpenConns)
	}

	d := &DB{
		backend: b,
		db:      db,
		name:    spec.Name,
		table:   spec.Table,
		mode:    spec.Mode,
		keys:    spec.PrimaryKeys,
		log:     logger.FromContext(ctx).WithName("conduit:" + b.Kind),
	}
	if err := retry.Do(ctx, spec.RetryPolicy(), b.Kind+" connect", d.db.PingContext); err != nil {
		db.Close()
		return nil, connector.NewConnectionError(b.Kind, spec.Name, err, b.Hints...)
	}
	return d, nil
}

// New wraps an already open handle. It is used by tests and by callers
// that manage their own pool.
func New(b Backend, db *sql.DB, spec connector.Spec) *DB {
	return &DB{
		backend: b,
		db:      db,
		name:    spec.Name,
		table:   spec.Table,
		mode:    spec.Mode,
		keys:    spec.PrimaryKeys,
		log:     logger.NewNull(),
	}
}

// Handle exposes the underlying pool.
func (d *DB) Handle() *sql.DB { return d.db }

// Dialect names the SQL dialect used for DDL.
func (d *DB) Dialect() ddl.Dialect { return d.backend.Dialect }

// TestConnection pings the database.
func (d *DB) TestConnection(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return connector.NewConnectionError(d.backend.Kind, d.name, err, d.backend.Hints...)
	}
	return nil
}

// Close closes the pool.
func (d *DB) Close() error { return d.db.Close() }

// ExecuteDDL runs a schema statement.
func (d *DB) ExecuteDDL(ctx context.Context, stmt string) error {
	if strings.TrimSpace(stmt) == "" {
		return nil
	}
	d.log.Info("executing ddl", "table", d.table, "sql", stmt)
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%s: exec ddl: %w", d.backend.Kind, err)
	}
	return nil
}

// AlterTable runs an ALTER TABLE statement.
func (d *DB) AlterTable(ctx context.Context, stmt string) error { return d.ExecuteDDL(ctx, stmt) }

// TableSchema introspects the destination table. A missing table yields an
// empty schema.
func (d *DB) TableSchema(ctx context.Context) (schema.Schema, error) {
	if d.table == "" {
		return schema.Schema{}, errors.New(d.backend.Kind + ": no table configured")
	}
	q, args := d.backend.ColumnsQuery(d.table)
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return schema.Schema{}, fmt.Errorf("%s: introspect %s: %w", d.backend.Kind, d.table, err)
	}
	defer rows.Close()

	var s schema.Schema
	for rows.Next() {
		var (
			name, typ string
			nullable  any
		)
		if err := rows.Scan(&name, &typ, &nullable); err != nil {
			return schema.Schema{}, fmt.Errorf("%s: introspect %s: %w", d.backend.Kind, d.table, err)
		}
		s.Columns = append(s.Columns, schema.Column{
			Name:     name,
			Type:     d.backend.LogicalType(typ),
			Nullable: truthy(nullable),
		})
	}
	if err := rows.Err(); err != nil {
		return schema.Schema{}, fmt.Errorf("%s: introspect %s: %w", d.backend.Kind, d.table, err)
	}
	return s, nil
}

// TableExists reports whether the table has any columns.
func (d *DB) TableExists(ctx context.Context) (bool, error) {
	s, err := d.TableSchema(ctx)
	if err != nil {
		return false, err
	}
	return !s.Empty(), nil
}

// truthy interprets introspection nullability flags: "YES", 1 or true.
func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case []byte:
		return strings.EqualFold(string(x), "YES") || string(x) == "1"
	case string:
		return strings.EqualFold(x, "YES") || x == "1"
	default:
		return false
	}
}

// Register adds b as both a source and a destination under each kind.
func Register(reg *connector.Registry, b Backend, kinds ...string) {
	if len(kinds) == 0 {
		kinds = []string{b.Kind}
	}
	for _, k := range kinds {
		reg.RegisterSource(k, func(ctx context.Context, spec connector.Spec) (connector.Source, error) {
			d, err := Open(ctx, b, spec)
			if err != nil {
				return nil, err
			}
			return d, nil
		})
		reg.RegisterDestination(k, func(ctx context.Context, spec connector.Spec) (connector.Destination, error) {
			d, err := Open(ctx, b, spec)
			if err != nil {
				return nil, err
			}
			return d, nil
		})
	}
}

var (
	_ connector.Source           = (*DB)(nil)
	_ connector.BatchReader      = (*DB)(nil)
	_ connector.Estimator        = (*DB)(nil)
	_ connector.ConnectionTester = (*DB)(nil)
	_ connector.BatchWriter      = (*DB)(nil)
	_ connector.RecordWriter     = (*DB)(nil)
	_ connector.DDLExecutor      = (*DB)(nil)
	_ connector.TableChecker     = (*DB)(nil)
	_ connector.SchemaReader     = (*DB)(nil)
	_ connector.Dialecter        = (*DB)(nil)
)
