// Package dlq collects records that were rejected during a run and
// persists them as one JSON document per run.
package dlq

import (
	"fmt"
	"path/filepath"
	"time"

	"conduit/internal/fsutil"
	"conduit/internal/quality"
	"conduit/internal/records"
)

// FailureType distinguishes why a record was rejected.
type FailureType string

const (
	ProcessingError FailureType = "processing_error"
	QualityCheck    FailureType = "quality_check"
)

// Entry is one rejected record.
type Entry struct {
	RowNumber   int64             `json:"row_number"`
	Record      records.Record    `json:"record"`
	ErrorType   string            `json:"error_type"`
	Message     string            `json:"message"`
	Timestamp   time.Time         `json:"timestamp"`
	FailureType FailureType       `json:"failure_type"`
	Failures    []quality.Failure `json:"failed_checks,omitempty"`
}

// Document is the on-disk shape of a flushed log.
type Document struct {
	Resource              string    `json:"resource"`
	TotalErrors           int       `json:"total_errors"`
	ProcessingErrorsCount int       `json:"processing_errors_count"`
	QualityErrorsCount    int       `json:"quality_errors_count"`
	Timestamp             time.Time `json:"timestamp"`
	Errors                []Entry   `json:"errors"`
}

// Log accumulates rejected records for one run. It is not safe for
// concurrent use; the engine writes to it from its single batch loop.
type Log struct {
	resource string
	entries  []Entry
	quality  int
	now      func() time.Time
}

// New returns an empty Log for resource.
func New(resource string) *Log {
	return &Log{resource: resource, now: time.Now}
}

// AddError records a processing failure such as a rejected write or a
// failed type coercion.
func (l *Log) AddError(rec records.Record, err error, row int64) {
	l.entries = append(l.entries, Entry{
		RowNumber:   row,
		Record:      rec,
		ErrorType:   fmt.Sprintf("%T", err),
		Message:     err.Error(),
		Timestamp:   l.now().UTC(),
		FailureType: ProcessingError,
	})
}

// AddQualityFailure records a record rejected by quality checks.
func (l *Log) AddQualityFailure(res quality.Result, row int64) {
	l.quality++
	l.entries = append(l.entries, Entry{
		RowNumber:   row,
		Record:      res.Record,
		ErrorType:   "DataQualityError",
		Message:     res.Summary(),
		Timestamp:   l.now().UTC(),
		FailureType: QualityCheck,
		Failures:    res.Failures,
	})
}

// Len returns the number of entries.
func (l *Log) Len() int { return len(l.entries) }

// Entries returns the recorded entries.
func (l *Log) Entries() []Entry { return l.entries }

// QualityCount returns the number of quality-check entries.
func (l *Log) QualityCount() int { return l.quality }

// ProcessingCount returns the number of processing-error entries.
func (l *Log) ProcessingCount() int { return len(l.entries) - l.quality }

// Document snapshots the log.
func (l *Log) Document() Document {
	return Document{
		Resource:              l.resource,
		TotalErrors:           len(l.entries),
		ProcessingErrorsCount: l.ProcessingCount(),
		QualityErrorsCount:    l.quality,
		Timestamp:             l.now().UTC(),
		Errors:                l.entries,
	}
}

// Flush writes the log to <dir>/<resource>_errors_<timestamp>.json and
// returns the path. An empty log writes nothing and returns "".
func (l *Log) Flush(dir string) (string, error) {
	if len(l.entries) == 0 {
		return "", nil
	}
	doc := l.Document()
	path := filepath.Join(dir, fmt.Sprintf("%s_errors_%s.json", l.resource, doc.Timestamp.Format("20060102T150405.000000000")))
	if err := fsutil.WriteJSON(path, doc); err != nil {
		return "", fmt.Errorf("dlq: flush %s: %w", l.resource, err)
	}
	return path, nil
}
