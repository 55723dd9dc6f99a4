package schema

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/records"
)

func TestDetectType(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		in   any
		want ColumnType
	}{
		"bool":            {in: true, want: TypeBoolean},
		"int64":           {in: int64(4), want: TypeInteger},
		"float":           {in: 1.5, want: TypeFloat},
		"json int":        {in: json.Number("12"), want: TypeInteger},
		"json float":      {in: json.Number("1.25"), want: TypeFloat},
		"time":            {in: time.Now(), want: TypeDatetime},
		"map":             {in: map[string]any{"a": 1}, want: TypeJSON},
		"slice":           {in: []any{1, 2}, want: TypeJSON},
		"bool word":       {in: "Yes", want: TypeBoolean},
		"int string":      {in: " 42 ", want: TypeInteger},
		"float string":    {in: "3.14", want: TypeFloat},
		"date string":     {in: "2025-01-31", want: TypeDate},
		"datetime string": {in: "2025-01-31T10:00:00Z", want: TypeDatetime},
		"datetime space":  {in: "2025-01-31 10:00:00", want: TypeDatetime},
		"json string":     {in: `{"a":1}`, want: TypeJSON},
		"plain string":    {in: "hello", want: TypeString},
		"bytes":           {in: []byte("7"), want: TypeInteger},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, DetectType(tc.in))
		})
	}
}

func TestInfer(t *testing.T) {
	t.Parallel()

	recs := []records.Record{
		{"id": "1", "name": "ada", "score": "1.5", "joined": "2024-01-01"},
		{"id": "2", "name": "", "score": "2", "joined": "2024-01-02"},
		{"id": "3", "name": "bob", "score": "3.5", "joined": nil, "extra": nil},
	}

	got := Infer(recs, 10)
	require.Len(t, got.Columns, 5)

	cols := map[string]Column{}
	for _, c := range got.Columns {
		cols[c.Name] = c
	}
	assert.Equal(t, Column{Name: "id", Type: TypeInteger, Nullable: false, Samples: 3}, cols["id"])
	assert.Equal(t, Column{Name: "name", Type: TypeString, Nullable: true, Samples: 2}, cols["name"])
	// 2 floats and 1 integer: no majority above 80%, float outranks integer.
	assert.Equal(t, TypeFloat, cols["score"].Type)
	assert.Equal(t, Column{Name: "joined", Type: TypeDate, Nullable: true, Samples: 2}, cols["joined"])
	assert.Equal(t, Column{Name: "extra", Type: TypeString, Nullable: true}, cols["extra"])
}

func TestInferMajorityWins(t *testing.T) {
	t.Parallel()

	recs := make([]records.Record, 0, 10)
	for i := 0; i < 9; i++ {
		recs = append(recs, records.Record{"v": "12"})
	}
	recs = append(recs, records.Record{"v": "2024-05-01"})

	got := Infer(recs, 100)
	require.Len(t, got.Columns, 1)
	assert.Equal(t, TypeInteger, got.Columns[0].Type)
}

func TestInferSampleSize(t *testing.T) {
	t.Parallel()

	recs := []records.Record{{"a": "1"}, {"a": "2"}, {"a": "x", "b": "y"}}
	got := Infer(recs, 2)
	assert.Equal(t, []string{"a"}, got.Names())
	assert.Equal(t, TypeInteger, got.Columns[0].Type)
}

func TestInferColumnOrder(t *testing.T) {
	t.Parallel()

	recs := []records.Record{{"b": 1, "a": 2}, {"c": 3, "a": 4}}
	assert.Equal(t, []string{"a", "b", "c"}, Infer(recs, 0).Names())
	assert.True(t, Infer(nil, 10).Empty())
}

func TestSampleKeepsRemainder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	in := []records.Record{{"i": 1}, {"i": 2}, {"i": 3}, {"i": 4}}

	sample, it, err := Sample(ctx, records.FromSlice(in), 2)
	require.NoError(t, err)
	assert.Len(t, sample, 2)

	all, err := records.Collect(ctx, it)
	require.NoError(t, err)
	assert.Equal(t, in, all)
}
