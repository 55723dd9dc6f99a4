// Package ddl builds T-SQL DDL from the generic ddl.TableDef model.
//
// Identifiers use bracket quoting ([schema].[table]) and CREATE TABLE is
// wrapped in an OBJECT_ID guard since T-SQL has no IF NOT EXISTS form.
package ddl

import (
	"fmt"
	"strings"

	gddl "conduit/internal/ddl"
)

// BuildCreateTableSQL returns a guarded CREATE TABLE script:
//
//	IF OBJECT_ID(N'[schema].[table]', N'U') IS NULL
//	BEGIN
//	  CREATE TABLE [schema].[table] (
//	    [col1] TYPE [NOT NULL] [DEFAULT expr],
//	    PRIMARY KEY ([pk1])
//	  );
//	END;
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	cols, err := gddl.RenderColumns(t, QuoteIdent)
	if err != nil {
		return "", fmt.Errorf("mssql %w", err)
	}
	fqn := QuoteFQN(t.FQN)
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND;",
		strings.ReplaceAll(fqn, "'", "''"), fqn, strings.Join(cols, ",\n    "),
	), nil
}

// BuildAddColumnSQL returns ALTER TABLE ... ADD for a nullable column;
// T-SQL omits the COLUMN keyword.
func BuildAddColumnSQL(fqn string, c gddl.ColumnDef) (string, error) {
	return gddl.RenderAddColumn(fqn, c, QuoteIdent, "ADD")
}

// QuoteIdent brackets one identifier segment:
//
//	name      -> [name]
//	weird]id  -> [weird]]id]
func QuoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// QuoteFQN quotes a possibly schema-qualified name: dbo.Users -> [dbo].[Users].
func QuoteFQN(fqn string) string { return gddl.QuoteFQN(fqn, QuoteIdent) }
