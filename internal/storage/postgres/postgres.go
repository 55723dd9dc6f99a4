// Package postgres registers the postgres connector. It talks to the
// server through pgx's database/sql driver and switches to the native
// COPY protocol for batch writes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"conduit/internal/connector"
	gddl "conduit/internal/ddl"
	"conduit/internal/storage"
	pgddl "conduit/internal/storage/postgres/ddl"
)

// Type is the registry name of this connector.
const Type = "postgres"

const stageTable = "conduit_stage"

// Backend returns the postgres storage backend.
func Backend() storage.Backend {
	return storage.Backend{
		Kind:         Type,
		Driver:       "pgx",
		Dialect:      gddl.Postgres,
		Quote:        pgddl.QuoteIdent,
		QuoteFQN:     pgddl.QuoteFQN,
		Placeholder:  func(i int) string { return fmt.Sprintf("$%d", i) },
		PrepareDSN:   prepareDSN,
		Page:         storage.LimitOffsetPage,
		ColumnsQuery: columnsQuery,
		LogicalType:  pgddl.LogicalType,
		Upsert:       upsert,
		Truncate: func(table string) string {
			return "TRUNCATE TABLE " + pgddl.QuoteFQN(table)
		},
		Bulk: copyLoad,
		Hints: []string{
			"check host, port and credentials in the connection string",
			"confirm the server accepts connections (pg_hba.conf, sslmode)",
		},
	}
}

// prepareDSN validates URL and keyword/value connection strings.
func prepareDSN(dsn string) (string, error) {
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return "", err
	}
	return dsn, nil
}

// columnsQuery reads column metadata; an unqualified table resolves against
// the session's current schema.
func columnsQuery(table string) (string, []any) {
	parts := gddl.SplitFQN(table)
	var schemaName any
	if len(parts) > 1 {
		schemaName = parts[len(parts)-2]
	}
	const q = `SELECT column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = COALESCE($1::text, current_schema()) AND table_name = $2
ORDER BY ordinal_position`
	return q, []any{schemaName, parts[len(parts)-1]}
}

// conflictClause renders ON CONFLICT (...) DO UPDATE/NOTHING.
func conflictClause(cols, keys []string) string {
	conflict := strings.Join(storage.QuoteAll(pgddl.QuoteIdent, keys), ", ")
	rest := storage.NonKeys(cols, keys)
	if len(rest) == 0 {
		return " ON CONFLICT (" + conflict + ") DO NOTHING"
	}
	sets := make([]string, len(rest))
	for i, c := range rest {
		q := pgddl.QuoteIdent(c)
		sets[i] = q + " = EXCLUDED." + q
	}
	return " ON CONFLICT (" + conflict + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

func upsert(table string, cols, keys []string) string {
	return storage.InsertSQL(Backend(), table, cols) + conflictClause(cols, keys)
}

// mergeSQL moves staged rows into table. DISTINCT ON keeps the statement
// valid when a batch repeats a key.
func mergeSQL(table string, cols, keys []string) string {
	qcols := strings.Join(storage.QuoteAll(pgddl.QuoteIdent, cols), ", ")
	qkeys := strings.Join(storage.QuoteAll(pgddl.QuoteIdent, keys), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT DISTINCT ON (%s) %s FROM %s",
		pgddl.QuoteFQN(table), qcols, qkeys, qcols, stageTable) + conflictClause(cols, keys)
}

// copyLoad streams rows with COPY. Merge copies into a temporary stage
// table dropped at commit and upserts from it.
func copyLoad(ctx context.Context, conn *sql.Conn, req storage.BulkRequest) error {
	return conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		tx, err := sc.Conn().Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		target := pgx.Identifier(gddl.SplitFQN(req.Table))
		if req.Merge {
			stage := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
				stageTable, pgddl.QuoteFQN(req.Table))
			if _, err := tx.Exec(ctx, stage); err != nil {
				return fmt.Errorf("create stage: %w", err)
			}
			target = pgx.Identifier{stageTable}
		}

		if _, err := tx.CopyFrom(ctx, target, req.Columns, pgx.CopyFromRows(req.Rows)); err != nil {
			return copyError(err)
		}
		if req.Merge {
			if _, err := tx.Exec(ctx, mergeSQL(req.Table, req.Columns, req.Keys)); err != nil {
				return fmt.Errorf("merge from stage: %w", err)
			}
		}
		return tx.Commit(ctx)
	})
}

// copyError surfaces the server's detail line when there is one.
func copyError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("copy: %s (%s): %w", pgErr.Detail, pgErr.SQLState(), err)
	}
	return fmt.Errorf("copy: %w", err)
}

// Register adds the postgres source and destination to reg, with
// "postgresql" as an alias.
func Register(reg *connector.Registry) { storage.Register(reg, Backend(), Type, "postgresql") }
