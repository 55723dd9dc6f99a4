package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		def         TableDef
		want        string
		errContains string
	}{
		"empty FQN": {
			def:         TableDef{Columns: []ColumnDef{{Name: "id", SQLType: "INT"}}},
			errContains: "table FQN must not be empty",
		},
		"no columns": {
			def:         TableDef{FQN: "public.t"},
			errContains: "at least one column is required",
		},
		"missing type": {
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id"}}},
			errContains: "column id missing SQLType",
		},
		"nullable, default and primary key": {
			def: TableDef{FQN: "public.t", Columns: []ColumnDef{
				{Name: "id", SQLType: "BIGINT", PrimaryKey: true},
				{Name: "name", SQLType: "TEXT", Nullable: true, Default: "'anon'"},
			}},
			want: "CREATE TABLE public.t (\n  id BIGINT NOT NULL,\n  name TEXT DEFAULT 'anon',\n  PRIMARY KEY (id)\n);",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := BuildCreateTableSQL(tc.def)
			if tc.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuildAddColumnSQLIsAlwaysNullable(t *testing.T) {
	t.Parallel()

	got, err := BuildAddColumnSQL("events", ColumnDef{Name: "score", SQLType: "REAL", PrimaryKey: true})
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE events ADD COLUMN score REAL", got)
}

func TestQuoteFQN(t *testing.T) {
	t.Parallel()

	q := func(s string) string { return "[" + s + "]" }
	assert.Equal(t, "[dbo].[events]", QuoteFQN(" dbo . events ", q))
	assert.Equal(t, []string{"a", "b"}, SplitFQN("a..b"))
}

func TestParseDialect(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Postgres, ParseDialect("postgresql"))
	assert.Equal(t, MSSQL, ParseDialect("azuresql"))
	assert.Equal(t, Generic, ParseDialect("csv"))
}
