package ddl

import (
	"fmt"
	"strings"

	gddl "conduit/internal/ddl"
)

// BuildCreateTableSQL returns a MySQL CREATE TABLE IF NOT EXISTS statement
// with backtick-quoted identifiers.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	cols, err := gddl.RenderColumns(t, QuoteIdent)
	if err != nil {
		return "", fmt.Errorf("mysql %w", err)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		QuoteFQN(t.FQN), strings.Join(cols, ",\n  ")), nil
}

// BuildAddColumnSQL returns ALTER TABLE ... ADD COLUMN for a nullable column.
func BuildAddColumnSQL(fqn string, c gddl.ColumnDef) (string, error) {
	return gddl.RenderAddColumn(fqn, c, QuoteIdent, "ADD COLUMN")
}

// QuoteIdent backtick-quotes one identifier segment.
func QuoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

// QuoteFQN quotes a db.table name.
func QuoteFQN(fqn string) string { return gddl.QuoteFQN(fqn, QuoteIdent) }
