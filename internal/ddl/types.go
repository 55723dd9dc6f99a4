package ddl

import "strings"

// Dialect names a SQL flavour for DDL rendering.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
	MSSQL    Dialect = "mssql"
	Generic  Dialect = "generic"
)

// ParseDialect maps connector type names onto a Dialect. Unknown names map
// to Generic.
func ParseDialect(s string) Dialect {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return Postgres
	case "mysql", "mariadb":
		return MySQL
	case "sqlite", "sqlite3":
		return SQLite
	case "mssql", "sqlserver", "azuresql":
		return MSSQL
	default:
		return Generic
	}
}

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - SQLType: target SQL type (e.g., TEXT, BIGINT, TIMESTAMPTZ)
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression (e.g., 'anon', CURRENT_TIMESTAMP)
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds the fully-qualified table name (FQN) and an ordered list of
// columns. The FQN is expected in dotted form (e.g., "schema.table") and is
// quoted by renderers as needed.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}
