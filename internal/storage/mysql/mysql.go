// Package mysql registers the mysql connector on go-sql-driver/mysql.
package mysql

import (
	"strings"

	"github.com/go-sql-driver/mysql"

	"conduit/internal/connector"
	gddl "conduit/internal/ddl"
	"conduit/internal/storage"
	myddl "conduit/internal/storage/mysql/ddl"
)

// Type is the registry name of this connector.
const Type = "mysql"

// Backend returns the mysql storage backend.
func Backend() storage.Backend {
	return storage.Backend{
		Kind:         Type,
		Driver:       "mysql",
		Dialect:      gddl.MySQL,
		Quote:        myddl.QuoteIdent,
		QuoteFQN:     myddl.QuoteFQN,
		Placeholder:  func(int) string { return "?" },
		PrepareDSN:   prepareDSN,
		Page:         storage.LimitOffsetPage,
		ColumnsQuery: columnsQuery,
		LogicalType:  myddl.LogicalType,
		Upsert:       upsert,
		Truncate: func(table string) string {
			return "TRUNCATE TABLE " + myddl.QuoteFQN(table)
		},
		Hints: []string{
			"use the user:password@tcp(host:3306)/dbname form for the connection string",
		},
	}
}

// prepareDSN parses dsn and turns on parseTime so DATE and DATETIME
// columns scan as time.Time.
func prepareDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func columnsQuery(table string) (string, []any) {
	parts := gddl.SplitFQN(table)
	var schemaName any
	if len(parts) > 1 {
		schemaName = parts[len(parts)-2]
	}
	const q = `SELECT column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = COALESCE(?, DATABASE()) AND table_name = ?
ORDER BY ordinal_position`
	return q, []any{schemaName, parts[len(parts)-1]}
}

// upsert renders INSERT ... ON DUPLICATE KEY UPDATE. A key-only row turns
// the update into a no-op assignment.
func upsert(table string, cols, keys []string) string {
	rest := storage.NonKeys(cols, keys)
	if len(rest) == 0 {
		rest = keys[:1]
	}
	sets := make([]string, len(rest))
	for i, c := range rest {
		q := myddl.QuoteIdent(c)
		sets[i] = q + " = VALUES(" + q + ")"
	}
	return storage.InsertSQL(Backend(), table, cols) + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

// Register adds the mysql source and destination to reg.
func Register(reg *connector.Registry) { storage.Register(reg, Backend()) }
