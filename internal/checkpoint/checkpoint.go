// Package checkpoint records where an interrupted run stopped so the next
// run can resume from there.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"conduit/internal/fsutil"
	"conduit/internal/incremental"
	"conduit/internal/logger"
)

// Type tags the JSON representation of LastValue.
type Type string

const (
	TypeInteger  Type = "integer"
	TypeFloat    Type = "float"
	TypeDatetime Type = "datetime"
	TypeString   Type = "string"
)

// TypeOf classifies v.
func TypeOf(v any) Type {
	switch incremental.Normalize(v).(type) {
	case int64:
		return TypeInteger
	case float64:
		return TypeFloat
	case time.Time:
		return TypeDatetime
	default:
		return TypeString
	}
}

// Checkpoint is the resume position of one pipeline.
type Checkpoint struct {
	Pipeline         string    `json:"pipeline_name"`
	Column           string    `json:"checkpoint_column"`
	LastValue        any       `json:"last_value"`
	Type             Type      `json:"checkpoint_type"`
	Timestamp        time.Time `json:"timestamp"`
	RecordsProcessed int64     `json:"records_processed"`
}

// Value returns LastValue decoded according to Type.
func (c Checkpoint) Value() any {
	v := incremental.Normalize(c.LastValue)
	switch c.Type {
	case TypeInteger:
		if f, ok := v.(float64); ok {
			return int64(f)
		}
	case TypeFloat:
		if i, ok := v.(int64); ok {
			return float64(i)
		}
	case TypeDatetime:
		if s, ok := v.(string); ok {
			if t, _, err := incremental.ParseTimestamp(s); err == nil {
				return t
			}
		}
	}
	return v
}

// Store keeps <dir>/<pipeline>.json. At most one checkpoint exists per
// pipeline; the last write wins.
type Store struct {
	dir string
	log logger.Logger
	now func() time.Time
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNull()
	}
	return &Store{dir: dir, log: log.WithName("conduit:checkpoint"), now: time.Now}
}

func (s *Store) path(pipeline string) string {
	return filepath.Join(s.dir, pipeline+".json")
}

// Save atomically writes a checkpoint for pipeline.
func (s *Store) Save(pipeline, column string, lastValue any, processed int64) error {
	v := incremental.Normalize(lastValue)
	cp := Checkpoint{
		Pipeline:         pipeline,
		Column:           column,
		LastValue:        incremental.Stored(v),
		Type:             TypeOf(v),
		Timestamp:        s.now().UTC(),
		RecordsProcessed: processed,
	}
	if err := fsutil.WriteJSON(s.path(pipeline), cp); err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", pipeline, err)
	}
	s.log.Debug("checkpoint saved", "pipeline", pipeline, "value", cp.LastValue, "records", processed)
	return nil
}

// Load returns the checkpoint for pipeline, or nil when it is missing or
// unreadable.
func (s *Store) Load(pipeline string) *Checkpoint {
	var cp Checkpoint
	err := fsutil.ReadJSONNumbers(s.path(pipeline), &cp)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		s.log.Warn("ignoring corrupt checkpoint", "pipeline", pipeline, "error", err)
		return nil
	}
	return &cp
}

// Exists reports whether a checkpoint file is present for pipeline.
func (s *Store) Exists(pipeline string) bool {
	_, err := os.Stat(s.path(pipeline))
	return err == nil
}

// Clear deletes the checkpoint for pipeline and reports whether one existed.
func (s *Store) Clear(pipeline string) (bool, error) {
	err := os.Remove(s.path(pipeline))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checkpoint: clear %s: %w", pipeline, err)
	}
	s.log.Info("checkpoint cleared", "pipeline", pipeline)
	return true, nil
}

// List returns every readable checkpoint, sorted by pipeline name.
func (s *Store) List() ([]Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list: %w", err)
	}
	var out []Checkpoint
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if cp := s.Load(strings.TrimSuffix(name, ".json")); cp != nil {
			out = append(out, *cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pipeline < out[j].Pipeline })
	return out, nil
}
