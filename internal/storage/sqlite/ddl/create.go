package ddl

import (
	"fmt"
	"strings"

	gddl "conduit/internal/ddl"
)

// BuildCreateTableSQL returns a SQLite CREATE TABLE IF NOT EXISTS statement:
//
//	CREATE TABLE IF NOT EXISTS "table" (
//	  "col1" TYPE [NOT NULL] [DEFAULT expr],
//	  PRIMARY KEY ("pk1")
//	);
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	cols, err := gddl.RenderColumns(t, QuoteIdent)
	if err != nil {
		return "", fmt.Errorf("sqlite %w", err)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		QuoteFQN(t.FQN), strings.Join(cols, ",\n  ")), nil
}

// BuildAddColumnSQL returns ALTER TABLE ... ADD COLUMN for a nullable column.
func BuildAddColumnSQL(fqn string, c gddl.ColumnDef) (string, error) {
	return gddl.RenderAddColumn(fqn, c, QuoteIdent, "ADD COLUMN")
}

func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func QuoteFQN(fqn string) string { return gddl.QuoteFQN(fqn, QuoteIdent) }
