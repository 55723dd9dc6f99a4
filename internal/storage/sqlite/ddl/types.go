// Package ddl contains SQLite-specific helpers for generating DDL.
//
// SQLite is dynamically typed, so the mapping targets storage affinities:
// booleans are stored as 0/1 and temporal values as ISO-8601 text.
package ddl

import (
	"strings"

	"conduit/internal/schema"
)

// MapType maps a logical column type onto a SQLite column type.
func MapType(t schema.ColumnType) string {
	switch t {
	case schema.TypeInteger, schema.TypeBoolean:
		return "INTEGER"
	case schema.TypeFloat:
		return "REAL"
	case schema.TypeDecimal:
		return "NUMERIC"
	default:
		return "TEXT"
	}
}

// LogicalType maps a declared SQLite type back onto a logical type using
// SQLite's affinity rules. Booleans and temporals are indistinguishable
// from INTEGER and TEXT and come back as such.
func LogicalType(sqlType string) schema.ColumnType {
	s := strings.ToUpper(strings.TrimSpace(sqlType))
	switch {
	case strings.Contains(s, "INT"):
		return schema.TypeInteger
	case strings.Contains(s, "CHAR"), strings.Contains(s, "CLOB"), strings.Contains(s, "TEXT"):
		return schema.TypeString
	case strings.Contains(s, "REAL"), strings.Contains(s, "FLOA"), strings.Contains(s, "DOUB"):
		return schema.TypeFloat
	case strings.Contains(s, "NUMERIC"), strings.Contains(s, "DECIMAL"):
		return schema.TypeDecimal
	case strings.Contains(s, "BOOL"):
		return schema.TypeBoolean
	case s == "DATE":
		return schema.TypeDate
	case strings.Contains(s, "DATETIME"), strings.Contains(s, "TIMESTAMP"):
		return schema.TypeDatetime
	default:
		return schema.TypeString
	}
}
