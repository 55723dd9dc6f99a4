package incremental

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const naiveLayout = "2006-01-02T15:04:05.999999999"

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
}

var naiveLayouts = []string{
	naiveLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	time.DateOnly,
}

// ParseTimestamp parses an ISO-8601 value. zoned reports whether the input
// carried an offset; naive inputs are interpreted as UTC.
func ParseTimestamp(s string) (t time.Time, zoned bool, err error) {
	s = strings.TrimSpace(s)
	for _, l := range zonedLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true, nil
		}
	}
	for _, l := range naiveLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("incremental: %q is not an ISO-8601 timestamp", s)
}

// FormatTimestamp renders t the way it is stored in state files. Naive
// values carry no offset.
func FormatTimestamp(t time.Time, zoned bool) string {
	if zoned {
		return t.Format("2006-01-02T15:04:05.999999999-07:00")
	}
	return t.Format(naiveLayout)
}

// dateTimeSeparator returns the byte between the date and the time of an
// ISO-8601 value, or 'T' when s has no time part.
func dateTimeSeparator(s string) byte {
	s = strings.TrimSpace(s)
	if len(s) > len(time.DateOnly) && s[len(time.DateOnly)] == ' ' {
		return ' '
	}
	return 'T'
}

// Normalize folds the numeric representations produced by drivers and JSON
// decoding onto int64 and float64 so values compare and serialize
// uniformly.
func Normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	case *big.Rat:
		f, _ := t.Float64()
		return f
	case []byte:
		return string(t)
	default:
		return v
	}
}

// Compare orders a and b. ok is false when the two values have no natural
// common ordering. Numbers compare numerically and timestamps
// chronologically, including pairs of strings that both parse as
// timestamps. Other strings compare lexicographically.
func Compare(a, b any) (c int, ok bool) {
	a, b = Normalize(a), Normalize(b)
	if a == nil || b == nil {
		return 0, false
	}

	if ai, aok := a.(int64); aok {
		if bi, bok := b.(int64); bok {
			return cmpOrdered(ai, bi), true
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return cmpOrdered(af, bf), true
	}

	at, aIsTime := a.(time.Time)
	bt, bIsTime := b.(time.Time)
	if aIsTime || bIsTime {
		if !aIsTime {
			s, isStr := a.(string)
			if !isStr {
				return 0, false
			}
			p, _, err := ParseTimestamp(s)
			if err != nil {
				return 0, false
			}
			at = p
		}
		if !bIsTime {
			s, isStr := b.(string)
			if !isStr {
				return 0, false
			}
			p, _, err := ParseTimestamp(s)
			if err != nil {
				return 0, false
			}
			bt = p
		}
		return at.Compare(bt), true
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		if at, _, err := ParseTimestamp(as); err == nil {
			if bt, _, err := ParseTimestamp(bs); err == nil {
				return at.Compare(bt), true
			}
		}
		return strings.Compare(as, bs), true
	}
	return 0, false
}

// toFloat accepts numbers and numeric strings.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// asInt returns v as an integer when it is one, including integer strings.
func asInt(v any) (int64, bool) {
	switch t := Normalize(v).(type) {
	case int64:
		return t, true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Stored converts a watermark value into its state-file representation.
func Stored(v any) any {
	switch t := Normalize(v).(type) {
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return t
	}
}
