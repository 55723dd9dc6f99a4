package quality

import (
	"fmt"
	"math/big"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CheckFunc evaluates value against c. detail explains a failure.
type CheckFunc func(value any, c Check) (ok bool, detail string)

// Registry maps check names to implementations. It is built once and
// shared; names are case-insensitive.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]CheckFunc
	re    sync.Map // pattern -> *regexp.Regexp
}

// NewRegistry returns a Registry holding the built-in checks. unique is
// stateful and evaluated by the Validator itself.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]CheckFunc)}
	r.funcs[CheckNotNull] = checkNotNull
	r.funcs[CheckRegex] = r.checkRegex
	r.funcs[CheckRange] = checkRange
	r.funcs[CheckEnum] = checkEnum
	return r
}

// Register adds or replaces a custom check.
func (r *Registry) Register(name string, fn CheckFunc) error {
	if fn == nil {
		return fmt.Errorf("quality: nil check function for %q", name)
	}
	if !checkNameRe.MatchString(name) {
		return fmt.Errorf("quality: invalid check name %q", name)
	}
	key := strings.ToLower(name)
	if key == CheckUnique {
		return fmt.Errorf("quality: %q is reserved", name)
	}
	r.mu.Lock()
	r.funcs[key] = fn
	r.mu.Unlock()
	return nil
}

// Lookup returns the check registered under name.
func (r *Registry) Lookup(name string) (CheckFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[strings.ToLower(name)]
	return fn, ok
}

// Has reports whether name is a known check, including unique.
func (r *Registry) Has(name string) bool {
	if strings.EqualFold(name, CheckUnique) {
		return true
	}
	_, ok := r.Lookup(name)
	return ok
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func checkNotNull(v any, _ Check) (bool, string) {
	if isNull(v) {
		return false, "Value is null or empty"
	}
	return true, ""
}

func (r *Registry) checkRegex(v any, c Check) (bool, string) {
	if c.Pattern == "" {
		return false, "regex check has no pattern"
	}
	re, err := r.compile(c.Pattern)
	if err != nil {
		return false, fmt.Sprintf("invalid pattern %q: %v", c.Pattern, err)
	}
	s, ok := v.(string)
	if !ok || !re.MatchString(s) {
		return false, fmt.Sprintf("Value '%v' does not match pattern '%s'", v, c.Pattern)
	}
	return true, ""
}

// compile anchors pattern so it must match the whole string.
func (r *Registry) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := r.re.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, err
	}
	r.re.Store(pattern, re)
	return re, nil
}

func checkRange(v any, c Check) (bool, string) {
	n, ok := ToFloat(v)
	if ok && c.Min != nil && n < *c.Min {
		ok = false
	}
	if ok && c.Max != nil && n > *c.Max {
		ok = false
	}
	if ok {
		return true, ""
	}
	var bounds []string
	if c.Min != nil {
		bounds = append(bounds, "min="+strconv.FormatFloat(*c.Min, 'f', -1, 64))
	}
	if c.Max != nil {
		bounds = append(bounds, "max="+strconv.FormatFloat(*c.Max, 'f', -1, 64))
	}
	return false, fmt.Sprintf("Value '%v' out of range (%s)", v, strings.Join(bounds, ", "))
}

func checkEnum(v any, c Check) (bool, string) {
	if c.Allowed == nil {
		return false, "enum check has no allowed values"
	}
	for _, a := range c.Allowed {
		if equalValues(v, a) {
			return true, ""
		}
	}
	return false, fmt.Sprintf("Value '%v' not in allowed list: %v", v, c.Allowed)
}

// ToFloat coerces numbers and numeric strings to float64.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case *big.Rat:
		f, _ := t.Float64()
		return f, true
	case fmt.Stringer:
		f, err := strconv.ParseFloat(strings.TrimSpace(t.String()), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// equalValues compares numbers numerically and everything else by value.
func equalValues(a, b any) bool {
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

// numeric is ToFloat restricted to non-string values.
func numeric(v any) (float64, bool) {
	switch v.(type) {
	case string, []byte, bool, time.Time:
		return 0, false
	}
	return ToFloat(v)
}

// uniqueKey maps v onto a comparable key for batch-scoped uniqueness.
func uniqueKey(v any) any {
	switch t := v.(type) {
	case nil, bool, string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(t)
	}
	if f, ok := numeric(v); ok {
		return f
	}
	return fmt.Sprintf("%T:%v", v, v)
}
