package mssql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"conduit/internal/connector"
)

func TestUpsert(t *testing.T) {
	t.Parallel()

	got := upsert("dbo.users", []string{"id", "name"}, []string{"id"})
	want := "MERGE INTO [dbo].[users] AS T USING (VALUES (@p1, @p2)) AS S ([id], [name]) ON T.[id] = S.[id]" +
		" WHEN MATCHED THEN UPDATE SET T.[name] = S.[name]" +
		" WHEN NOT MATCHED THEN INSERT ([id], [name]) VALUES (S.[id], S.[name]);"
	assert.Equal(t, want, got)

	keysOnly := upsert("users", []string{"id"}, []string{"id"})
	assert.NotContains(t, keysOnly, "WHEN MATCHED")
}

func TestMergeStatements(t *testing.T) {
	t.Parallel()

	before, after := mergeStatements("sales.orders", []string{"id", "region", "total"}, []string{"id", "region"})
	assert.Equal(t, []string{
		"SELECT TOP 0 [id], [region], [total] INTO #conduit_stage FROM [sales].[orders]",
	}, before)
	assert.Equal(t, []string{
		"DELETE T FROM [sales].[orders] AS T INNER JOIN #conduit_stage AS S ON T.[id] = S.[id] AND T.[region] = S.[region]",
		"INSERT INTO [sales].[orders] ([id], [region], [total]) SELECT [id], [region], [total] FROM #conduit_stage",
		"DROP TABLE #conduit_stage",
	}, after)
}

func TestBackendSQL(t *testing.T) {
	t.Parallel()

	b := Backend()
	assert.Equal(t, "TRUNCATE TABLE [t]", b.Truncate("t"))
	assert.Equal(t,
		"SELECT * FROM (SELECT a FROM t) AS conduit_page ORDER BY (SELECT NULL) OFFSET 20 ROWS FETCH NEXT 10 ROWS ONLY",
		b.Page("SELECT a FROM t", "", 20, 10))
	assert.Equal(t,
		"SELECT * FROM (SELECT a FROM t WHERE a > 5) AS conduit_page ORDER BY a OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY",
		b.Page("SELECT a FROM t WHERE a > 5", "ORDER BY a", 0, 10))

	_, args := columnsQuery("orders")
	assert.Equal(t, []any{"dbo", "orders"}, args)
}

func TestPrepareDSN(t *testing.T) {
	t.Parallel()

	_, err := prepareDSN("sqlserver://sa:pw@localhost:1433?database=master")
	assert.NoError(t, err)
	_, err = prepareDSN("sqlserver://sa:pw@localhost:notaport?database=master")
	assert.Error(t, err)
}

func TestRegisterAliases(t *testing.T) {
	t.Parallel()

	reg := connector.NewRegistry()
	Register(reg)
	for _, kind := range []string{Type, AzureType} {
		assert.True(t, reg.HasSource(kind), kind)
		assert.True(t, reg.HasDestination(kind), kind)
	}
}
