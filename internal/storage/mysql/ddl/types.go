// Package ddl contains MySQL-specific helpers for generating DDL.
package ddl

import (
	"strings"

	"conduit/internal/schema"
)

// MapType maps a logical column type onto a MySQL column type.
func MapType(t schema.ColumnType) string {
	switch t {
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE"
	case schema.TypeDecimal:
		return "DECIMAL(18,2)"
	case schema.TypeBoolean:
		return "BOOLEAN"
	case schema.TypeDate:
		return "DATE"
	case schema.TypeDatetime:
		return "DATETIME(6)"
	case schema.TypeJSON:
		return "JSON"
	default:
		return "TEXT"
	}
}

// LogicalType maps an information_schema COLUMN_TYPE back onto a logical
// type. tinyint(1) is how MySQL stores BOOLEAN.
func LogicalType(sqlType string) schema.ColumnType {
	s := strings.ToLower(strings.TrimSpace(sqlType))
	if strings.HasPrefix(s, "tinyint(1)") || s == "boolean" || s == "bool" {
		return schema.TypeBoolean
	}
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, " unsigned")
	switch s {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint":
		return schema.TypeInteger
	case "float", "double", "real":
		return schema.TypeFloat
	case "decimal", "numeric":
		return schema.TypeDecimal
	case "date":
		return schema.TypeDate
	case "datetime", "timestamp":
		return schema.TypeDatetime
	case "json":
		return schema.TypeJSON
	default:
		return schema.TypeString
	}
}
