// Package ddl contains Postgres-specific helpers for generating DDL.
package ddl

import (
	"strings"

	"conduit/internal/schema"
)

// MapType maps a logical column type onto a Postgres SQL type.
//
//	integer  -> BIGINT
//	float    -> DOUBLE PRECISION
//	decimal  -> NUMERIC
//	boolean  -> BOOLEAN
//	date     -> DATE
//	datetime -> TIMESTAMPTZ
//	json     -> JSONB
//	string   -> TEXT
func MapType(t schema.ColumnType) string {
	switch t {
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE PRECISION"
	case schema.TypeDecimal:
		return "NUMERIC"
	case schema.TypeBoolean:
		return "BOOLEAN"
	case schema.TypeDate:
		return "DATE"
	case schema.TypeDatetime:
		return "TIMESTAMPTZ"
	case schema.TypeJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

// LogicalType maps a type name reported by information_schema back onto a
// logical column type.
func LogicalType(sqlType string) schema.ColumnType {
	s := strings.ToLower(strings.TrimSpace(sqlType))
	switch {
	case s == "smallint" || s == "integer" || s == "bigint" || s == "int" || s == "int4" || s == "int8":
		return schema.TypeInteger
	case s == "real" || s == "double precision" || s == "float4" || s == "float8":
		return schema.TypeFloat
	case strings.HasPrefix(s, "numeric") || strings.HasPrefix(s, "decimal"):
		return schema.TypeDecimal
	case s == "boolean" || s == "bool":
		return schema.TypeBoolean
	case s == "date":
		return schema.TypeDate
	case strings.HasPrefix(s, "timestamp"):
		return schema.TypeDatetime
	case s == "json" || s == "jsonb":
		return schema.TypeJSON
	default:
		return schema.TypeString
	}
}
