// Package manifest keeps the append-only audit trail of pipeline runs.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"conduit/internal/fsutil"
)

const formatVersion = "1.0"

// Status is the terminal state of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Entry is one run.
type Entry struct {
	RunID           string         `json:"run_id"`
	PipelineName    string         `json:"pipeline_name"`
	SourceType      string         `json:"source_type"`
	DestinationType string         `json:"destination_type"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     time.Time      `json:"completed_at"`
	Status          Status         `json:"status"`
	RecordsRead     int64          `json:"records_read"`
	RecordsWritten  int64          `json:"records_written"`
	RecordsFailed   int64          `json:"records_failed"`
	DurationSeconds float64        `json:"duration_seconds"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type document struct {
	Version string  `json:"version"`
	Runs    []Entry `json:"runs"`
}

// Manifest is the on-disk run log. The whole file is rewritten on every
// append.
type Manifest struct {
	path string

	mu      sync.Mutex
	entries []Entry
}

// Open loads the manifest at path. A missing file is an empty manifest.
func Open(path string) (*Manifest, error) {
	m := &Manifest{path: path}
	var doc document
	err := fsutil.ReadJSON(path, &doc)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("manifest: %w", err)
	default:
		m.entries = doc.Runs
	}
	return m, nil
}

// Path returns the manifest file path.
func (m *Manifest) Path() string { return m.path }

// Add appends e and rewrites the file.
func (m *Manifest) Add(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	doc := document{Version: formatVersion, Runs: m.entries}
	if err := fsutil.WriteJSON(m.path, doc); err != nil {
		return fmt.Errorf("manifest: save: %w", err)
	}
	return nil
}

// Latest returns the most recent run of pipeline, or nil.
func (m *Manifest) Latest(pipeline string) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].PipelineName == pipeline {
			e := m.entries[i]
			return &e
		}
	}
	return nil
}

// All returns every run in order, filtered to pipeline when non-empty.
func (m *Manifest) All(pipeline string) []Entry {
	return m.filter(func(e Entry) bool { return pipeline == "" || e.PipelineName == pipeline })
}

// Failed returns every failed run.
func (m *Manifest) Failed() []Entry {
	return m.filter(func(e Entry) bool { return e.Status == StatusFailed })
}

func (m *Manifest) filter(keep func(Entry) bool) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Tracker measures a single run. Set the counters while the run
// progresses and call Finish exactly once.
type Tracker struct {
	RecordsRead    int64
	RecordsWritten int64
	RecordsFailed  int64
	Metadata       map[string]any

	m        *Manifest
	entry    Entry
	now      func() time.Time
	finished bool
}

// Start begins tracking a run of pipeline. A nil manifest yields a
// tracker that records nothing.
func (m *Manifest) Start(pipeline, sourceType, destType string) *Tracker {
	t := &Tracker{m: m, now: time.Now, Metadata: map[string]any{}}
	t.entry = Entry{
		RunID:           uuid.NewString(),
		PipelineName:    pipeline,
		SourceType:      sourceType,
		DestinationType: destType,
		StartedAt:       t.now().UTC(),
	}
	return t
}

// RunID returns the identifier assigned to the run.
func (t *Tracker) RunID() string { return t.entry.RunID }

// Finish records the run. A non-nil runErr marks it failed; otherwise it
// is partial when any record failed.
func (t *Tracker) Finish(runErr error) (Entry, error) {
	if t.finished {
		return t.entry, fmt.Errorf("manifest: run %s already finished", t.entry.RunID)
	}
	t.finished = true

	e := t.entry
	e.CompletedAt = t.now().UTC()
	e.DurationSeconds = e.CompletedAt.Sub(e.StartedAt).Seconds()
	e.RecordsRead = t.RecordsRead
	e.RecordsWritten = t.RecordsWritten
	e.RecordsFailed = t.RecordsFailed
	if len(t.Metadata) > 0 {
		e.Metadata = t.Metadata
	}
	switch {
	case runErr != nil:
		e.Status = StatusFailed
		e.ErrorMessage = runErr.Error()
	case t.RecordsFailed > 0:
		e.Status = StatusPartial
	default:
		e.Status = StatusSuccess
	}
	t.entry = e

	if t.m == nil {
		return e, nil
	}
	return e, t.m.Add(e)
}
