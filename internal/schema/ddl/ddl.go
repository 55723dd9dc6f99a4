// Package ddl turns an inferred schema into dialect-specific DDL by
// dispatching to the per-backend builders under internal/storage.
package ddl

import (
	"fmt"
	"strings"

	gddl "conduit/internal/ddl"
	"conduit/internal/schema"
	msddl "conduit/internal/storage/mssql/ddl"
	myddl "conduit/internal/storage/mysql/ddl"
	pgddl "conduit/internal/storage/postgres/ddl"
	sqliteddl "conduit/internal/storage/sqlite/ddl"
)

type builder struct {
	mapType   func(schema.ColumnType) string
	create    func(gddl.TableDef) (string, error)
	addColumn func(string, gddl.ColumnDef) (string, error)
}

var builders = map[gddl.Dialect]builder{
	gddl.Postgres: {pgddl.MapType, pgddl.BuildCreateTableSQL, pgddl.BuildAddColumnSQL},
	gddl.MySQL:    {myddl.MapType, myddl.BuildCreateTableSQL, myddl.BuildAddColumnSQL},
	gddl.SQLite:   {sqliteddl.MapType, sqliteddl.BuildCreateTableSQL, sqliteddl.BuildAddColumnSQL},
	gddl.MSSQL:    {msddl.MapType, msddl.BuildCreateTableSQL, msddl.BuildAddColumnSQL},
	gddl.Generic:  {pgddl.MapType, gddl.BuildCreateTableSQL, gddl.BuildAddColumnSQL},
}

func lookup(d gddl.Dialect) builder {
	if b, ok := builders[d]; ok {
		return b
	}
	return builders[gddl.Generic]
}

// MapType maps t onto the SQL type used by dialect d.
func MapType(d gddl.Dialect, t schema.ColumnType) string { return lookup(d).mapType(t) }

// TableDef converts s into a table definition for d. Columns named in
// primaryKeys are marked as key columns and forced NOT NULL.
func TableDef(d gddl.Dialect, fqn string, s schema.Schema, primaryKeys []string) gddl.TableDef {
	pk := make(map[string]bool, len(primaryKeys))
	for _, k := range primaryKeys {
		pk[strings.ToLower(k)] = true
	}
	b := lookup(d)
	def := gddl.TableDef{FQN: fqn, Columns: make([]gddl.ColumnDef, 0, len(s.Columns))}
	for _, c := range s.Columns {
		isPK := pk[strings.ToLower(c.Name)]
		def.Columns = append(def.Columns, gddl.ColumnDef{
			Name:       c.Name,
			SQLType:    b.mapType(c.Type),
			Nullable:   c.Nullable && !isPK,
			PrimaryKey: isPK,
		})
	}
	return def
}

// CreateTable renders the CREATE TABLE statement for s in dialect d.
func CreateTable(d gddl.Dialect, fqn string, s schema.Schema, primaryKeys []string) (string, error) {
	if s.Empty() {
		return "", fmt.Errorf("ddl: cannot create %s from an empty schema", fqn)
	}
	return lookup(d).create(TableDef(d, fqn, s, primaryKeys))
}

// AddColumn returns the renderer schema evolution uses to add nullable
// columns in dialect d.
func AddColumn(d gddl.Dialect) schema.AddColumnFunc {
	b := lookup(d)
	return func(table string, col schema.Column) (string, error) {
		return b.addColumn(table, gddl.ColumnDef{Name: col.Name, SQLType: b.mapType(col.Type), Nullable: true})
	}
}
