package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"conduit/internal/connector"
	"conduit/internal/records"
)

// Write loads recs in one transaction. Replacing modes empty the table
// before the first write of the run; merge upserts on the primary keys.
func (d *DB) Write(ctx context.Context, recs []records.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if err := d.prepare(ctx); err != nil {
		return err
	}
	cols := columnsOf(recs)
	rows := make([][]any, len(recs))
	for i, rec := range recs {
		rows[i] = rowValues(rec, cols)
	}

	if d.backend.Bulk != nil {
		conn, err := d.db.Conn(ctx)
		if err != nil {
			return fmt.Errorf("%s: acquire conn: %w", d.backend.Kind, err)
		}
		defer conn.Close()
		req := BulkRequest{Table: d.table, Columns: cols, Keys: d.keys, Rows: rows, Merge: d.mode == connector.ModeMerge}
		if err := d.backend.Bulk(ctx, conn, req); err != nil {
			return fmt.Errorf("%s: bulk load %s: %w", d.backend.Kind, d.table, err)
		}
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", d.backend.Kind, err)
	}
	stmt, err := tx.PrepareContext(ctx, d.statement(cols))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%s: prepare: %w", d.backend.Kind, err)
	}
	defer stmt.Close()
	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%s: row %d: %w", d.backend.Kind, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", d.backend.Kind, err)
	}
	return nil
}

// WriteOne inserts or upserts a single record.
func (d *DB) WriteOne(ctx context.Context, rec records.Record) error {
	if err := d.prepare(ctx); err != nil {
		return err
	}
	cols := columnsOf([]records.Record{rec})
	if _, err := d.db.ExecContext(ctx, d.statement(cols), rowValues(rec, cols)...); err != nil {
		return fmt.Errorf("%s: write: %w", d.backend.Kind, err)
	}
	return nil
}

// prepare empties the table once per run for replacing modes.
func (d *DB) prepare(ctx context.Context) error {
	if d.table == "" {
		return fmt.Errorf("%s: %q: no table configured", d.backend.Kind, d.name)
	}
	if d.truncated || !d.mode.Replaces() {
		return nil
	}
	stmt := d.backend.Truncate(d.table)
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%s: %s: %w", d.backend.Kind, stmt, err)
	}
	d.truncated = true
	d.log.Info("table emptied before load", "table", d.table, "mode", string(d.mode))
	return nil
}

func (d *DB) statement(cols []string) string {
	if d.mode == connector.ModeMerge {
		return d.backend.Upsert(d.table, cols, d.keys)
	}
	return InsertSQL(d.backend, d.table, cols)
}

// InsertSQL renders a single-row INSERT for b.
func InsertSQL(b Backend, table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.QuoteFQN(table), strings.Join(QuoteAll(b.Quote, cols), ", "), Placeholders(b, 1, len(cols)))
}

// Placeholders renders n placeholders starting at index from.
func Placeholders(b Backend, from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = b.Placeholder(from + i)
	}
	return strings.Join(ph, ", ")
}

// QuoteAll quotes each name with quote.
func QuoteAll(quote func(string) string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quote(n)
	}
	return out
}

// NonKeys returns cols without the key columns, compared case-insensitively.
func NonKeys(cols, keys []string) []string {
	k := make(map[string]bool, len(keys))
	for _, c := range keys {
		k[strings.ToLower(c)] = true
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !k[strings.ToLower(c)] {
			out = append(out, c)
		}
	}
	return out
}

// columnsOf returns the sorted union of keys across recs.
func columnsOf(recs []records.Record) []string {
	seen := make(map[string]struct{})
	for _, r := range recs {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func rowValues(rec records.Record, cols []string) []any {
	row := make([]any, len(cols))
	for i, c := range cols {
		row[i] = toDriver(rec[c])
	}
	return row
}

// toDriver converts values database/sql cannot bind: JSON documents become
// their text and json.Number its literal.
func toDriver(v any) any {
	switch x := v.(type) {
	case json.Number:
		return x.String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return v
	}
}
