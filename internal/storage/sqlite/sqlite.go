// Package sqlite registers the sqlite connector backed by the pure-Go
// modernc.org/sqlite driver. The DSN may be a plain file path.
package sqlite

import (
	"strings"

	_ "modernc.org/sqlite"

	"conduit/internal/connector"
	gddl "conduit/internal/ddl"
	"conduit/internal/storage"
	sqliteddl "conduit/internal/storage/sqlite/ddl"
)

// Type is the registry name of this connector.
const Type = "sqlite"

// Backend returns the sqlite storage backend. The pool is capped at one
// connection: SQLite serializes writers and ":memory:" databases are
// per-connection.
func Backend() storage.Backend {
	return storage.Backend{
		Kind:        Type,
		Driver:      "sqlite",
		Dialect:     gddl.SQLite,
		Quote:       sqliteddl.QuoteIdent,
		QuoteFQN:    sqliteddl.QuoteFQN,
		Placeholder: func(int) string { return "?" },
		Page:        storage.LimitOffsetPage,
		ColumnsQuery: func(table string) (string, []any) {
			parts := gddl.SplitFQN(table)
			return `SELECT name, type, "notnull" = 0 FROM pragma_table_info(?) ORDER BY cid`, []any{parts[len(parts)-1]}
		},
		LogicalType: sqliteddl.LogicalType,
		Upsert:      upsert,
		Truncate: func(table string) string {
			return "DELETE FROM " + sqliteddl.QuoteFQN(table)
		},
		MaxOpenConns: 1,
		Hints:        []string{"check that the database file's directory exists and is writable"},
	}
}

// upsert renders INSERT ... ON CONFLICT (keys) DO UPDATE.
func upsert(table string, cols, keys []string) string {
	b := Backend()
	stmt := storage.InsertSQL(b, table, cols)
	conflict := strings.Join(storage.QuoteAll(sqliteddl.QuoteIdent, keys), ", ")
	rest := storage.NonKeys(cols, keys)
	if len(rest) == 0 {
		return stmt + " ON CONFLICT (" + conflict + ") DO NOTHING"
	}
	sets := make([]string, len(rest))
	for i, c := range rest {
		q := sqliteddl.QuoteIdent(c)
		sets[i] = q + " = excluded." + q
	}
	return stmt + " ON CONFLICT (" + conflict + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// Register adds the sqlite source and destination to reg.
func Register(reg *connector.Registry) { storage.Register(reg, Backend()) }
