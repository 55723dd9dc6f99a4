package schema

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"conduit/internal/records"
)

// DefaultSampleSize is used when a resource does not set one.
const DefaultSampleSize = 100

// dominantShare is the vote share above which a type wins outright.
const dominantShare = 0.8

var boolWords = map[string]struct{}{
	"true": {}, "false": {}, "yes": {}, "no": {},
	"t": {}, "f": {}, "y": {}, "n": {},
}

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Infer derives a schema from at most sampleSize records of recs.
//
// For every column the non-empty values vote on a type. A type with more than
// 80% of the votes wins; otherwise the most specific type that received any
// vote wins. A column is nullable when at least one sampled record has no
// non-empty value for it.
func Infer(recs []records.Record, sampleSize int) Schema {
	if len(recs) == 0 {
		return Schema{}
	}
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	sample := recs
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}

	names := columnOrder(sample)
	out := Schema{Columns: make([]Column, 0, len(names))}
	for _, name := range names {
		votes := make(map[ColumnType]int)
		present := 0
		for _, r := range sample {
			v, ok := r[name]
			if !ok || isEmpty(v) {
				continue
			}
			present++
			votes[DetectType(v)]++
		}
		if present == 0 {
			out.Columns = append(out.Columns, Column{Name: name, Type: TypeString, Nullable: true})
			continue
		}
		out.Columns = append(out.Columns, Column{
			Name:     name,
			Type:     electType(votes, present),
			Nullable: present < len(sample),
			Samples:  present,
		})
	}
	return out
}

func electType(votes map[ColumnType]int, total int) ColumnType {
	for t, n := range votes {
		if float64(n)/float64(total) > dominantShare {
			return t
		}
	}
	for _, t := range priority {
		if votes[t] > 0 {
			return t
		}
	}
	return TypeString
}

// columnOrder returns column names by first appearance; names first seen in
// the same record are sorted.
func columnOrder(sample []records.Record) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range sample {
		var fresh []string
		for k := range r {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				fresh = append(fresh, k)
			}
		}
		sort.Strings(fresh)
		out = append(out, fresh...)
	}
	return out
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []byte:
		return len(t) == 0
	default:
		return false
	}
}

// DetectType classifies a single non-empty value. Strings are probed for
// boolean, numeric, date, datetime and JSON shape before falling back to
// TypeString.
func DetectType(v any) ColumnType {
	switch t := v.(type) {
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case float32, float64:
		return TypeFloat
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return TypeInteger
		}
		return TypeFloat
	case *big.Rat, *big.Float:
		return TypeDecimal
	case time.Time:
		return TypeDatetime
	case map[string]any, []any:
		return TypeJSON
	case []byte:
		return probeString(string(t))
	case string:
		return probeString(t)
	default:
		return TypeString
	}
}

func probeString(raw string) ColumnType {
	s := strings.TrimSpace(raw)
	if _, ok := boolWords[strings.ToLower(s)]; ok {
		return TypeBoolean
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return TypeInteger
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return TypeFloat
	}
	if len(s) == 10 && strings.Count(s, "-") == 2 {
		if _, err := time.Parse(time.DateOnly, s); err == nil {
			return TypeDate
		}
	}
	if _, ok := ParseDatetime(s); ok {
		return TypeDatetime
	}
	if (strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")) && json.Valid([]byte(s)) {
		return TypeJSON
	}
	return TypeString
}

// ParseDatetime parses the ISO-8601 shapes accepted for datetime columns.
func ParseDatetime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range datetimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Sample reads up to n records from it. The returned iterator replays the
// sampled records and then continues with the rest of it, so nothing read
// for inference is lost to the write path.
func Sample(ctx context.Context, it records.Iterator, n int) ([]records.Record, records.Iterator, error) {
	if n <= 0 {
		n = DefaultSampleSize
	}
	sample := make([]records.Record, 0, n)
	for len(sample) < n {
		r, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		sample = append(sample, r)
	}
	return sample, records.Prepend(sample, it), nil
}
