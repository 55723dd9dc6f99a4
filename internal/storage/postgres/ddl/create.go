package ddl

import (
	"fmt"
	"strings"

	gddl "conduit/internal/ddl"
)

// BuildCreateTableSQL returns a Postgres CREATE TABLE IF NOT EXISTS
// statement with every identifier double-quoted.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	cols, err := gddl.RenderColumns(t, QuoteIdent)
	if err != nil {
		return "", fmt.Errorf("postgres %w", err)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		QuoteFQN(t.FQN), strings.Join(cols, ",\n  ")), nil
}

// BuildAddColumnSQL returns ALTER TABLE ... ADD COLUMN IF NOT EXISTS for a
// nullable column.
func BuildAddColumnSQL(fqn string, c gddl.ColumnDef) (string, error) {
	return gddl.RenderAddColumn(fqn, c, QuoteIdent, "ADD COLUMN IF NOT EXISTS")
}

// QuoteIdent quotes one identifier segment, doubling embedded quotes.
func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// QuoteFQN quotes every segment of a dotted table name.
func QuoteFQN(fqn string) string { return gddl.QuoteFQN(fqn, QuoteIdent) }
