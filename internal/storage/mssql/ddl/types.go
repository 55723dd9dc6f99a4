package ddl

import (
	"strings"

	"conduit/internal/schema"
)

// MapType maps a logical column type onto a SQL Server column type.
// Strings and JSON documents use NVARCHAR(MAX).
func MapType(t schema.ColumnType) string {
	switch t {
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeFloat:
		return "FLOAT"
	case schema.TypeDecimal:
		return "DECIMAL(38, 10)"
	case schema.TypeBoolean:
		return "BIT"
	case schema.TypeDate:
		return "DATE"
	case schema.TypeDatetime:
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX)"
	}
}

// LogicalType maps an INFORMATION_SCHEMA DATA_TYPE back onto a logical type.
func LogicalType(sqlType string) schema.ColumnType {
	s := strings.ToLower(strings.TrimSpace(sqlType))
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	switch s {
	case "tinyint", "smallint", "int", "bigint":
		return schema.TypeInteger
	case "float", "real":
		return schema.TypeFloat
	case "decimal", "numeric", "money", "smallmoney":
		return schema.TypeDecimal
	case "bit":
		return schema.TypeBoolean
	case "date":
		return schema.TypeDate
	case "datetime", "datetime2", "smalldatetime", "datetimeoffset":
		return schema.TypeDatetime
	default:
		return schema.TypeString
	}
}
