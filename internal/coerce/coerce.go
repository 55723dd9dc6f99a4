// Package coerce casts record values to the column types of a target
// schema before they are written.
//
// A per-column plan is compiled once per run so the batch loop does no
// type-name lookups. In strict mode the first failure aborts the run; in
// lenient mode the offending value is replaced with NULL and logged.
package coerce

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"conduit/internal/logger"
	"conduit/internal/records"
	"conduit/internal/schema"
)

// defaultNulls are the string spellings treated as NULL.
var defaultNulls = []string{"", "null", "none", "n/a", "na", "nan"}

// Options configures a Coercer.
type Options struct {
	Strict bool
	// NullValues extends the default NULL spellings (case-insensitive).
	NullValues []string
	// TypeMappings overrides the schema type for individual columns.
	TypeMappings map[string]string
	// DateLayout is tried before ISO dates for date columns.
	DateLayout string
}

// Error is returned in strict mode when a value cannot be cast.
type Error struct {
	Column string
	Value  any
	Target schema.ColumnType
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("coerce %s: cannot cast %v (%T) to %s: %v", e.Column, e.Value, e.Value, e.Target, e.Err)
	}
	return fmt.Sprintf("coerce %s: cannot cast %v (%T) to %s", e.Column, e.Value, e.Value, e.Target)
}

func (e *Error) Unwrap() error { return e.Err }

type castFunc func(v any) (any, error)

type colPlan struct {
	name   string
	target schema.ColumnType
	cast   castFunc
}

// Coercer applies a compiled cast plan to records.
type Coercer struct {
	plan   []colPlan
	nulls  map[string]struct{}
	strict bool
	log    logger.Logger
}

// New compiles a Coercer for s. Columns named in TypeMappings but absent
// from s are added to the plan.
func New(s schema.Schema, opts Options, log logger.Logger) *Coercer {
	if log == nil {
		log = logger.NewNull()
	}
	c := &Coercer{
		nulls:  lowerSet(append(append([]string(nil), defaultNulls...), opts.NullValues...)),
		strict: opts.Strict,
		log:    log.WithName("conduit:coerce"),
	}

	seen := make(map[string]bool, len(s.Columns))
	add := func(name string, t schema.ColumnType) {
		c.plan = append(c.plan, colPlan{name: name, target: t, cast: compile(t, opts.DateLayout)})
	}
	for _, col := range s.Columns {
		t := col.Type
		if m, ok := opts.TypeMappings[col.Name]; ok {
			t = schema.ParseColumnType(m)
		}
		seen[col.Name] = true
		add(col.Name, t)
	}
	for name, m := range opts.TypeMappings {
		if !seen[name] {
			add(name, schema.ParseColumnType(m))
		}
	}
	return c
}

// Record casts a copy of r. The error is nil in lenient mode; failed
// values are set to nil instead.
func (c *Coercer) Record(r records.Record) (records.Record, error) {
	out := r.Clone()
	for _, p := range c.plan {
		v, ok := out[p.name]
		if !ok {
			continue
		}
		if c.isNull(v) {
			out[p.name] = nil
			continue
		}
		cast, err := p.cast(v)
		if err != nil {
			if c.strict {
				return nil, &Error{Column: p.name, Value: v, Target: p.target, Err: err}
			}
			c.log.Warn("coercion failed, value set to null", "column", p.name, "target", string(p.target), "error", err)
			out[p.name] = nil
			continue
		}
		out[p.name] = cast
	}
	return out, nil
}

// Batch casts every record in recs. It stops at the first strict-mode
// failure.
func (c *Coercer) Batch(recs []records.Record) ([]records.Record, error) {
	if len(c.plan) == 0 {
		return recs, nil
	}
	out := make([]records.Record, 0, len(recs))
	for _, r := range recs {
		cr, err := c.Record(r)
		if err != nil {
			return out, err
		}
		out = append(out, cr)
	}
	return out, nil
}

func (c *Coercer) isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		_, ok := c.nulls[strings.ToLower(strings.TrimSpace(x))]
		return ok
	case float64:
		return math.IsNaN(x) || math.IsInf(x, 0)
	case float32:
		return math.IsNaN(float64(x)) || math.IsInf(float64(x), 0)
	}
	return false
}

func compile(t schema.ColumnType, layout string) castFunc {
	switch t {
	case schema.TypeInteger:
		return toInt
	case schema.TypeFloat:
		return toFloat
	case schema.TypeDecimal:
		return toDecimal
	case schema.TypeBoolean:
		return toBool
	case schema.TypeDate:
		return func(v any) (any, error) { return toDate(v, layout) }
	case schema.TypeDatetime:
		return toDatetime
	case schema.TypeJSON:
		return toJSON
	default:
		return toString
	}
}

var errFormat = errors.New("unrecognized format")

func text(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), true
	case []byte:
		return strings.TrimSpace(string(x)), true
	case json.Number:
		return x.String(), true
	}
	return "", false
}

func toInt(v any) (any, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint32:
		return int64(x), nil
	case float64:
		if x == math.Trunc(x) {
			return int64(x), nil
		}
		return nil, fmt.Errorf("%v has a fractional part", x)
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	}
	if s, ok := text(v); ok {
		if i, ok := toIntFast(s); ok {
			return i, nil
		}
		return nil, errFormat
	}
	return nil, errFormat
}

func toFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case *big.Rat:
		f, _ := x.Float64()
		return f, nil
	}
	if s, ok := text(v); ok {
		return strconv.ParseFloat(s, 64)
	}
	return nil, errFormat
}

// toDecimal returns the canonical decimal text so no precision is lost on
// the way to the driver.
func toDecimal(v any) (any, error) {
	switch x := v.(type) {
	case *big.Rat:
		return x.FloatString(decimalScale(x)), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	}
	if s, ok := text(v); ok {
		if _, ok := new(big.Rat).SetString(s); !ok {
			return nil, errFormat
		}
		return s, nil
	}
	return nil, errFormat
}

// decimalScale returns the number of fractional digits needed to print r
// exactly, capped at maxScale for denominators that do not terminate.
func decimalScale(r *big.Rat) int {
	const maxScale = 18
	d := new(big.Int).Set(r.Denom())
	two, five := big.NewInt(2), big.NewInt(5)
	var twos, fives int
	mod := new(big.Int)
	for d.Cmp(big.NewInt(1)) > 0 {
		switch {
		case mod.Mod(d, two).Sign() == 0:
			d.Div(d, two)
			twos++
		case mod.Mod(d, five).Sign() == 0:
			d.Div(d, five)
			fives++
		default:
			return maxScale
		}
	}
	return min(max(twos, fives), maxScale)
}

func toBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int:
		return x != 0, nil
	}
	if s, ok := text(v); ok {
		if b, ok := toBoolFast(s); ok {
			return b, nil
		}
	}
	return nil, errFormat
}

func toDate(v any, layout string) (any, error) {
	if t, ok := v.(time.Time); ok {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	s, ok := text(v)
	if !ok {
		return nil, errFormat
	}
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, ok := parseCZDate(s); ok {
		return t, nil
	}
	if t, ok := schema.ParseDatetime(s); ok {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return nil, errFormat
}

func toDatetime(v any) (any, error) {
	if t, ok := v.(time.Time); ok {
		return t, nil
	}
	s, ok := text(v)
	if !ok {
		return nil, errFormat
	}
	if t, ok := schema.ParseDatetime(s); ok {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return nil, errFormat
}

func toJSON(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	if s, ok := text(v); ok {
		if !json.Valid([]byte(s)) {
			return nil, fmt.Errorf("invalid JSON")
		}
		return s, nil
	}
	return nil, errFormat
}

func toString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case *big.Rat:
		return x.FloatString(decimalScale(x)), nil
	case map[string]any, []any:
		return toJSON(x)
	}
	return fmt.Sprint(v), nil
}

func lowerSet(in []string) map[string]struct{} {
	m := make(map[string]struct{}, len(in))
	for _, s := range in {
		m[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return m
}

// toIntFast only falls back to float parsing when s contains a '.'
// (inputs like "42.0").
func toIntFast(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
	}
	return 0, false
}

func toBoolFast(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "1", "t", "true", "yes", "y":
		return true, true
	case "0", "f", "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}

// parseCZDate parses "02.01.2006" (DD.MM.YYYY) without allocating.
func parseCZDate(s string) (time.Time, bool) {
	if len(s) != 10 || s[2] != '.' || s[5] != '.' {
		return time.Time{}, false
	}
	d1, d0 := s[0]-'0', s[1]-'0'
	m1, m0 := s[3]-'0', s[4]-'0'
	y3, y2, y1, y0 := s[6]-'0', s[7]-'0', s[8]-'0', s[9]-'0'
	if d1 > 9 || d0 > 9 || m1 > 9 || m0 > 9 || y3 > 9 || y2 > 9 || y1 > 9 || y0 > 9 {
		return time.Time{}, false
	}
	day := int(d1)*10 + int(d0)
	mon := int(m1)*10 + int(m0)
	year := int(y3)*1000 + int(y2)*100 + int(y1)*10 + int(y0)
	if mon < 1 || mon > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(mon), day, 0, 0, 0, 0, time.UTC), true
}
