package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/connector"
	"conduit/internal/records"
	"conduit/internal/schema"
	schemaddl "conduit/internal/schema/ddl"
	"conduit/internal/storage"
)

var people = schema.Schema{Columns: []schema.Column{
	{Name: "id", Type: schema.TypeInteger},
	{Name: "name", Type: schema.TypeString, Nullable: true},
	{Name: "score", Type: schema.TypeFloat, Nullable: true},
}}

func open(t *testing.T, dsn string, mode connector.WriteMode, keys ...string) *storage.DB {
	t.Helper()

	db, err := storage.Open(context.Background(), Backend(), connector.Spec{
		Name:        "test",
		Type:        Type,
		DSN:         dsn,
		Table:       "people",
		Mode:        mode,
		PrimaryKeys: keys,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createPeople(t *testing.T, db *storage.DB) {
	t.Helper()

	stmt, err := schemaddl.CreateTable(db.Dialect(), "people", people, []string{"id"})
	require.NoError(t, err)
	require.NoError(t, db.ExecuteDDL(context.Background(), stmt))
}

func readAll(t *testing.T, db *storage.DB, query string) []records.Record {
	t.Helper()

	it, err := db.Read(context.Background(), query)
	require.NoError(t, err)
	recs, err := records.Collect(context.Background(), it)
	require.NoError(t, err)
	return recs
}

func TestTableLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := open(t, filepath.Join(t.TempDir(), "a.db"), connector.ModeAppend)

	exists, err := db.TableExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	createPeople(t, db)
	exists, err = db.TableExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	add, err := schemaddl.AddColumn(db.Dialect())("people", schema.Column{Name: "email", Type: schema.TypeString})
	require.NoError(t, err)
	require.NoError(t, db.AlterTable(ctx, add))

	got, err := db.TableSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "score", "email"}, got.Names())
	assert.Equal(t, schema.TypeInteger, got.Columns[0].Type)
	assert.False(t, got.Columns[0].Nullable)
	assert.Equal(t, schema.TypeFloat, got.Columns[2].Type)
	assert.True(t, got.Columns[3].Nullable)
}

func TestWriteModes(t *testing.T) {
	t.Parallel()

	first := []records.Record{
		{"id": int64(1), "name": "ada", "score": 1.5},
		{"id": int64(2), "name": "bob", "score": nil},
	}
	second := []records.Record{
		{"id": int64(2), "name": "bobby", "score": 2.0},
		{"id": int64(3), "name": "cy"},
	}

	testCases := map[string]struct {
		mode connector.WriteMode
		keys []string
		want []records.Record
	}{
		"merge upserts on key": {
			mode: connector.ModeMerge,
			keys: []string{"id"},
			want: []records.Record{
				{"id": int64(1), "name": "ada", "score": 1.5},
				{"id": int64(2), "name": "bobby", "score": 2.0},
				{"id": int64(3), "name": "cy", "score": nil},
			},
		},
		"truncate replaces on first write only": {
			mode: connector.ModeTruncate,
			want: []records.Record{
				{"id": int64(2), "name": "bobby", "score": 2.0},
				{"id": int64(3), "name": "cy", "score": nil},
				{"id": int64(4), "name": "dee", "score": nil},
			},
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			dsn := filepath.Join(t.TempDir(), "w.db")

			seed := open(t, dsn, connector.ModeAppend)
			createPeople(t, seed)
			require.NoError(t, seed.Write(ctx, first))

			db := open(t, dsn, tc.mode, tc.keys...)
			require.NoError(t, db.Write(ctx, second))
			if tc.mode == connector.ModeTruncate {
				require.NoError(t, db.WriteOne(ctx, records.Record{"id": int64(4), "name": "dee"}))
			}

			assert.Equal(t, tc.want, readAll(t, db, "SELECT id, name, score FROM people ORDER BY id"))
		})
	}
}

func TestAppendDuplicateKeyFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := open(t, filepath.Join(t.TempDir(), "d.db"), connector.ModeAppend)
	createPeople(t, db)

	require.NoError(t, db.WriteOne(ctx, records.Record{"id": int64(1), "name": "ada"}))
	assert.Error(t, db.WriteOne(ctx, records.Record{"id": int64(1), "name": "again"}))
	err := db.Write(ctx, []records.Record{{"id": int64(5)}, {"id": int64(1)}})
	assert.Error(t, err)
	assert.Len(t, readAll(t, db, "SELECT id FROM people"), 1, "failed batch must roll back")
}

func TestPagedRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := open(t, filepath.Join(t.TempDir(), "p.db"), connector.ModeAppend)
	createPeople(t, db)

	var batch []records.Record
	for i := int64(1); i <= 25; i++ {
		batch = append(batch, records.Record{"id": i})
	}
	require.NoError(t, db.Write(ctx, batch))

	const q = "SELECT id FROM people ORDER BY id"
	n, ok, err := db.EstimateTotalRecords(ctx, q)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 25, n)

	page, err := db.ReadBatch(ctx, q, 20, 10)
	require.NoError(t, err)
	require.Len(t, page, 5)
	assert.Equal(t, int64(21), page[0]["id"])
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, err := storage.Open(ctx, Backend(), connector.Spec{Name: "x"})
	assert.Error(t, err)
	_, err = storage.Open(ctx, Backend(), connector.Spec{Name: "x", DSN: ":memory:", Mode: connector.ModeMerge})
	assert.ErrorContains(t, err, "primary_keys")
}

func TestRegister(t *testing.T) {
	t.Parallel()

	reg := connector.NewRegistry()
	Register(reg)
	assert.True(t, reg.HasSource(Type))
	assert.True(t, reg.HasDestination(Type))

	dst, err := reg.OpenDestination(context.Background(), connector.Spec{
		Name: "out", Type: Type, Path: filepath.Join(t.TempDir(), "r.db"), Table: "people",
	})
	require.NoError(t, err)
	defer dst.Close()
	_, ok := dst.(connector.RecordWriter)
	assert.True(t, ok)
	require.NoError(t, dst.(connector.ConnectionTester).TestConnection(context.Background()))
}

func TestUpsertSQL(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		`INSERT INTO "t" ("id", "v") VALUES (?, ?) ON CONFLICT ("id") DO UPDATE SET "v" = excluded."v"`,
		upsert("t", []string{"id", "v"}, []string{"id"}))
	assert.Equal(t,
		`INSERT INTO "t" ("id") VALUES (?) ON CONFLICT ("id") DO NOTHING`,
		upsert("t", []string{"id"}, []string{"id"}))
}
