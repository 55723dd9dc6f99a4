package ddl

import (
	"testing"

	"conduit/internal/schema"
)

func TestMapType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind schema.ColumnType
		want string
	}{
		{schema.TypeInteger, "BIGINT"},
		{schema.TypeFloat, "FLOAT"},
		{schema.TypeDecimal, "DECIMAL(38, 10)"},
		{schema.TypeBoolean, "BIT"},
		{schema.TypeDate, "DATE"},
		{schema.TypeDatetime, "DATETIME2"},
		{schema.TypeJSON, "NVARCHAR(MAX)"},
		{schema.TypeString, "NVARCHAR(MAX)"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			t.Parallel()
			if got := MapType(tt.kind); got != tt.want {
				t.Fatalf("MapType(%q) = %q, want %q", tt.kind, got, tt.want)
			}
		})
	}
}

func TestLogicalType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want schema.ColumnType
	}{
		{"int", schema.TypeInteger},
		{"BIGINT", schema.TypeInteger},
		{"decimal(38, 10)", schema.TypeDecimal},
		{"bit", schema.TypeBoolean},
		{"datetime2", schema.TypeDatetime},
		{"date", schema.TypeDate},
		{"nvarchar", schema.TypeString},
		{"uniqueidentifier", schema.TypeString},
	}
	for _, tt := range tests {
		if got := LogicalType(tt.in); got != tt.want {
			t.Errorf("LogicalType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
