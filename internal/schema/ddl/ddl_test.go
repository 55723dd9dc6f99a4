package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gddl "conduit/internal/ddl"
	"conduit/internal/schema"
)

var events = schema.Schema{Columns: []schema.Column{
	{Name: "id", Type: schema.TypeInteger, Nullable: true},
	{Name: "seen_at", Type: schema.TypeDatetime, Nullable: true},
}}

func TestCreateTable(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		dialect gddl.Dialect
		want    string
	}{
		"postgres": {
			dialect: gddl.Postgres,
			want:    "CREATE TABLE IF NOT EXISTS \"events\" (\n  \"id\" BIGINT NOT NULL,\n  \"seen_at\" TIMESTAMPTZ,\n  PRIMARY KEY (\"id\")\n);",
		},
		"sqlite": {
			dialect: gddl.SQLite,
			want:    "CREATE TABLE IF NOT EXISTS \"events\" (\n  \"id\" INTEGER NOT NULL,\n  \"seen_at\" TEXT,\n  PRIMARY KEY (\"id\")\n);",
		},
		"mysql": {
			dialect: gddl.MySQL,
			want:    "CREATE TABLE IF NOT EXISTS `events` (\n  `id` BIGINT NOT NULL,\n  `seen_at` DATETIME(6),\n  PRIMARY KEY (`id`)\n);",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := CreateTable(tc.dialect, "events", events, []string{"ID"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCreateTableEmptySchema(t *testing.T) {
	t.Parallel()

	_, err := CreateTable(gddl.Postgres, "events", schema.Schema{}, nil)
	assert.Error(t, err)
}

func TestAddColumn(t *testing.T) {
	t.Parallel()

	col := schema.Column{Name: "score", Type: schema.TypeFloat}
	tests := map[gddl.Dialect]string{
		gddl.Postgres: `ALTER TABLE "events" ADD COLUMN IF NOT EXISTS "score" DOUBLE PRECISION`,
		gddl.MSSQL:    "ALTER TABLE [events] ADD [score] FLOAT",
		gddl.Generic:  "ALTER TABLE events ADD COLUMN score DOUBLE PRECISION",
	}
	for d, want := range tests {
		got, err := AddColumn(d)("events", col)
		require.NoError(t, err)
		assert.Equal(t, want, got, string(d))
	}
}

func TestMapTypeUnknownDialect(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "BIGINT", MapType("oracle", schema.TypeInteger))
}
