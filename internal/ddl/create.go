// Package ddl defines a small, backend-agnostic model for SQL DDL and helpers
// to render simple CREATE TABLE and ALTER TABLE statements from that model.
//
// This package stays generic: it does not quote identifiers and does not add
// dialect-specific clauses such as IF NOT EXISTS. Backend packages under
// internal/storage/*/ddl wrap or reimplement these builders with the same
// TableDef/ColumnDef types.
package ddl

import (
	"fmt"
	"strings"
)

// Quoter quotes an identifier segment.
type Quoter func(string) string

func noQuote(s string) string { return s }

// BuildCreateTableSQL renders a generic CREATE TABLE statement from a TableDef.
//
// A column is rendered as
//
//	<Name> <SQLType> [NOT NULL] [DEFAULT <Default>]
//
// and columns with PrimaryKey set are collected into a trailing
// PRIMARY KEY (...) clause.
func BuildCreateTableSQL(t TableDef) (string, error) {
	body, err := RenderColumns(t, noQuote)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", strings.TrimSpace(t.FQN), strings.Join(body, ",\n  ")), nil
}

// RenderColumns validates t and renders its column list with quote applied
// to every identifier. Dialect builders share it.
func RenderColumns(t TableDef, quote Quoter) ([]string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return nil, fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		def, err := RenderColumn(c, quote)
		if err != nil {
			return nil, fmt.Errorf("%w in table %s", err, fqn)
		}
		cols = append(cols, def)
		if c.PrimaryKey {
			pks = append(pks, quote(strings.TrimSpace(c.Name)))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}
	return cols, nil
}

// RenderColumn renders one column definition.
func RenderColumn(c ColumnDef, quote Quoter) (string, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return "", fmt.Errorf("ddl: column with empty name")
	}
	typ := strings.TrimSpace(c.SQLType)
	if typ == "" {
		return "", fmt.Errorf("ddl: column %s missing SQLType", name)
	}

	var sb strings.Builder
	sb.WriteString(quote(name))
	sb.WriteByte(' ')
	sb.WriteString(typ)
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if def := strings.TrimSpace(c.Default); def != "" {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(def)
	}
	return sb.String(), nil
}

// BuildAddColumnSQL renders ALTER TABLE <fqn> ADD COLUMN <col>.
func BuildAddColumnSQL(fqn string, c ColumnDef) (string, error) {
	return RenderAddColumn(fqn, c, noQuote, "ADD COLUMN")
}

// RenderAddColumn renders an ALTER TABLE statement with the given add
// keyword ("ADD COLUMN", or "ADD" for T-SQL). Added columns are always
// rendered nullable.
func RenderAddColumn(fqn string, c ColumnDef, quote Quoter, addKeyword string) (string, error) {
	fqn = strings.TrimSpace(fqn)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	c.Nullable = true
	c.PrimaryKey = false
	col, err := RenderColumn(c, quote)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s %s %s", QuoteFQN(fqn, quote), addKeyword, col), nil
}

// SplitFQN splits "schema.table" into trimmed, non-empty segments.
func SplitFQN(fqn string) []string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// QuoteFQN quotes every segment of fqn with quote.
func QuoteFQN(fqn string, quote Quoter) string {
	parts := SplitFQN(fqn)
	for i, p := range parts {
		parts[i] = quote(p)
	}
	return strings.Join(parts, ".")
}
