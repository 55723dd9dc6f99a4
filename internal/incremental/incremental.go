// Package incremental computes extraction floors from the last successful
// run, rewrites queries to apply them and tracks the high-water mark of the
// current run.
package incremental

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"conduit/internal/logger"
	"conduit/internal/state"
)

// Strategy describes how the incremental column advances.
type Strategy string

const (
	StrategyTimestamp  Strategy = "timestamp"
	StrategySequential Strategy = "sequential"
	StrategyCursor     Strategy = "cursor"
)

// ParseStrategy validates s; empty means timestamp.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyTimestamp, nil
	case StrategyTimestamp, StrategySequential, StrategyCursor:
		return st, nil
	default:
		return "", fmt.Errorf("incremental: unknown strategy %q", s)
	}
}

// Config is the incremental block of a resource.
type Config struct {
	Column          string
	Strategy        Strategy
	LookbackSeconds int
	DetectGaps      bool
	InitialValue    any
}

// Record is the persisted state of one resource.
type Record struct {
	LastValue   any       `json:"last_value"`
	LastUpdated time.Time `json:"last_updated"`
	Resource    string    `json:"resource"`
}

// Store keeps one state file per resource under a directory.
type Store struct {
	dir string
	log logger.Logger
	now func() time.Time
}

// NewStore returns a Store writing <dir>/<resource>_state.json.
func NewStore(dir string, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNull()
	}
	return &Store{dir: dir, log: log.WithName("conduit:incremental"), now: time.Now}
}

func (s *Store) file(resource string) *state.File {
	return state.NewFile(filepath.Join(s.dir, resource+"_state.json"), s.log)
}

// LastValue returns the stored watermark for resource, or nil.
func (s *Store) LastValue(resource string) (any, error) {
	var rec Record
	found, err := s.file(resource).Load(&rec)
	if err != nil || !found {
		return nil, err
	}
	return Normalize(rec.LastValue), nil
}

// Save persists value as the new watermark for resource.
func (s *Store) Save(resource string, value any) error {
	rec := Record{LastValue: Stored(value), LastUpdated: s.now().UTC(), Resource: resource}
	if err := s.file(resource).Save(rec); err != nil {
		return fmt.Errorf("incremental: save %s: %w", resource, err)
	}
	s.log.Debug("saved incremental state", "resource", resource, "value", rec.LastValue)
	return nil
}

// StartValue returns the extraction floor for resource. Without stored
// state it is cfg.InitialValue, which may be nil for a full load. With the
// timestamp strategy and a lookback window the floor is moved back by that
// many seconds; a value that does not parse as a timestamp is used as is.
func (s *Store) StartValue(resource string, cfg Config) (any, error) {
	last, err := s.LastValue(resource)
	if err != nil {
		return nil, err
	}
	if last == nil {
		if cfg.InitialValue != nil {
			s.log.Info("first run, starting from initial value", "resource", resource, "value", cfg.InitialValue)
			return Normalize(cfg.InitialValue), nil
		}
		s.log.Info("first run, full load", "resource", resource)
		return nil, nil
	}
	if cfg.Strategy == StrategyTimestamp && cfg.LookbackSeconds > 0 {
		floor, err := Lookback(last, cfg.LookbackSeconds)
		if err != nil {
			s.log.Warn("failed to apply lookback, using last value", "resource", resource, "error", err)
			return last, nil
		}
		s.log.Info("applying lookback", "resource", resource, "seconds", cfg.LookbackSeconds, "floor", floor)
		return floor, nil
	}
	s.log.Info("continuing from last value", "resource", resource, "value", last)
	return last, nil
}

// Lookback subtracts seconds from an ISO-8601 timestamp and returns it in
// the same shape, keeping the input's date/time separator.
func Lookback(last any, seconds int) (string, error) {
	str, ok := last.(string)
	if !ok {
		return "", fmt.Errorf("incremental: lookback needs a timestamp string, got %T", last)
	}
	t, zoned, err := ParseTimestamp(str)
	if err != nil {
		return "", err
	}
	out := FormatTimestamp(t.Add(-time.Duration(seconds)*time.Second), zoned)
	if sep := dateTimeSeparator(str); sep != 'T' {
		out = out[:len(time.DateOnly)] + string(sep) + out[len(time.DateOnly)+1:]
	}
	return out, nil
}

// Gap is a run of missing values in a sequential column.
type Gap struct {
	After        int64 `json:"after"`
	Before       int64 `json:"before"`
	MissingCount int64 `json:"missing_count"`
}

// DetectGaps reports holes between consecutive integer values. It only
// applies to the sequential strategy; non-integer values are ignored.
func DetectGaps(values []any, strategy Strategy) []Gap {
	if strategy != StrategySequential || len(values) < 2 {
		return nil
	}
	ints := make([]int64, 0, len(values))
	for _, v := range values {
		if i, ok := asInt(v); ok {
			ints = append(ints, i)
		}
	}
	sort.Slice(ints, func(i, j int) bool { return ints[i] < ints[j] })

	var gaps []Gap
	for i := 0; i+1 < len(ints); i++ {
		if d := ints[i+1] - ints[i]; d > 1 {
			gaps = append(gaps, Gap{After: ints[i], Before: ints[i+1], MissingCount: d - 1})
		}
	}
	return gaps
}

var (
	orderByRe = regexp.MustCompile(`(?i)\border\s+by\b`)
	whereRe   = regexp.MustCompile(`(?i)\bwhere\b`)
)

// AugmentQuery adds "<column> > <floor>" to query and makes sure it is
// ordered by column. The filter goes in front of an existing ORDER BY and
// joins an existing WHERE with AND. A nil floor only adds the ORDER BY.
func AugmentQuery(query, column string, floor any) string {
	if column == "" {
		return query
	}
	q := strings.TrimSpace(query)
	loc := orderByRe.FindStringIndex(q)

	if floor == nil {
		if loc == nil {
			return q + " ORDER BY " + column
		}
		return q
	}

	cond := column + " > " + Literal(floor)
	if loc == nil {
		if whereRe.MatchString(q) {
			q += " AND " + cond
		} else {
			q += " WHERE " + cond
		}
		return q + " ORDER BY " + column
	}

	base := strings.TrimSpace(q[:loc[0]])
	order := q[loc[0]:]
	if whereRe.MatchString(base) {
		return base + " AND " + cond + " " + order
	}
	return base + " WHERE " + cond + " " + order
}

// Literal renders v as a SQL literal: numbers bare, everything else single
// quoted with embedded quotes doubled.
func Literal(v any) string {
	switch t := Normalize(v).(type) {
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return "'" + t.Format(time.RFC3339Nano) + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(t), "'", "''") + "'"
	}
}
