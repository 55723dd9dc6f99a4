package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"conduit/internal/records"
)

// Read runs query and streams its rows.
func (d *DB) Read(ctx context.Context, query string) (records.Iterator, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", d.backend.Kind, err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("%s: columns: %w", d.backend.Kind, err)
	}
	return newRowIterator(rows, cols), nil
}

// ReadBatch returns limit rows of query starting at offset.
func (d *DB) ReadBatch(ctx context.Context, query string, offset, limit int64) ([]records.Record, error) {
	it, err := d.Read(ctx, d.backend.page(query, offset, limit))
	if err != nil {
		return nil, err
	}
	return records.Collect(ctx, it)
}

// EstimateTotalRecords counts the rows query returns.
func (d *DB) EstimateTotalRecords(ctx context.Context, query string) (int64, bool, error) {
	var n int64
	if err := d.db.QueryRowContext(ctx, countQuery(query)).Scan(&n); err != nil {
		return 0, false, fmt.Errorf("%s: count: %w", d.backend.Kind, err)
	}
	return n, true, nil
}

type rowIterator struct {
	rows *sql.Rows
	cols []string
	vals []any
	ptrs []any
}

func newRowIterator(rows *sql.Rows, cols []string) *rowIterator {
	it := &rowIterator{rows: rows, cols: cols, vals: make([]any, len(cols)), ptrs: make([]any, len(cols))}
	for i := range it.vals {
		it.ptrs[i] = &it.vals[i]
	}
	return it
}

func (it *rowIterator) Next(ctx context.Context) (records.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	if err := it.rows.Scan(it.ptrs...); err != nil {
		return nil, err
	}
	rec := make(records.Record, len(it.cols))
	for i, c := range it.cols {
		rec[c] = fromDriver(it.vals[i])
	}
	return rec, nil
}

func (it *rowIterator) Close() error { return it.rows.Close() }

// fromDriver copies driver-owned byte slices; text columns arrive as
// []byte from several drivers and become strings.
func fromDriver(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
