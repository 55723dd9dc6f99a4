// Package schema infers column types from sampled records, versions the
// result on disk and reconciles drift against the last known schema.
package schema

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// ColumnType is one of the closed set of logical column types.
type ColumnType string

const (
	TypeString   ColumnType = "string"
	TypeInteger  ColumnType = "integer"
	TypeFloat    ColumnType = "float"
	TypeDecimal  ColumnType = "decimal"
	TypeBoolean  ColumnType = "boolean"
	TypeDate     ColumnType = "date"
	TypeDatetime ColumnType = "datetime"
	TypeJSON     ColumnType = "json"
)

// priority lists types from most to least specific.
var priority = []ColumnType{
	TypeDatetime,
	TypeDate,
	TypeDecimal,
	TypeFloat,
	TypeInteger,
	TypeBoolean,
	TypeJSON,
	TypeString,
}

// ParseColumnType normalizes common aliases onto a ColumnType. Unknown
// names map to TypeString.
func ParseColumnType(s string) ColumnType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer", "bigint", "smallint", "long":
		return TypeInteger
	case "float", "double", "real":
		return TypeFloat
	case "decimal", "numeric", "number":
		return TypeDecimal
	case "bool", "boolean":
		return TypeBoolean
	case "date":
		return TypeDate
	case "datetime", "timestamp", "timestamptz":
		return TypeDatetime
	case "json", "jsonb", "object", "array":
		return TypeJSON
	default:
		return TypeString
	}
}

// Column is one column of a Schema.
type Column struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Nullable bool       `json:"nullable"`
	// Samples is the number of non-null values the type was inferred from.
	Samples int `json:"inferred_from_samples,omitempty"`
}

// Schema is an ordered list of columns.
type Schema struct {
	Columns []Column `json:"columns"`
}

// Empty reports whether s has no columns.
func (s Schema) Empty() bool { return len(s.Columns) == 0 }

// Column looks up a column by name, case-insensitively.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Types returns a name to type map.
func (s Schema) Types() map[string]ColumnType {
	out := make(map[string]ColumnType, len(s.Columns))
	for _, c := range s.Columns {
		out[c.Name] = c.Type
	}
	return out
}

// Hash returns a content hash that ignores column order and sample counts.
func (s Schema) Hash() string {
	cols := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		cols = append(cols, strings.ToLower(c.Name)+":"+string(c.Type)+":"+strconv.FormatBool(c.Nullable))
	}
	sort.Strings(cols)
	b, _ := json.Marshal(cols)
	return strconv.FormatUint(xxh3.Hash(b), 16)
}
