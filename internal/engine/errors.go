package engine

import (
	"errors"
	"fmt"
)

// AbortKind classifies a deliberate stop of a run. Aborts are semantic
// rejections of the data, not infrastructure faults: they are never retried
// and do not leave a resume checkpoint behind.
type AbortKind string

const (
	// AbortQuality is raised by a quality check with action fail.
	AbortQuality AbortKind = "quality"
	// AbortSchema is raised by a rejected schema change or failed DDL.
	AbortSchema AbortKind = "schema"
)

// AbortError is the error a run returns when a phase aborted it.
type AbortError struct {
	Kind    AbortKind
	Message string
}

func (e *AbortError) Error() string {
	switch e.Kind {
	case AbortQuality:
		return "data quality check failed: " + e.Message
	case AbortSchema:
		return "schema evolution failed: " + e.Message
	default:
		return fmt.Sprintf("%s abort: %s", e.Kind, e.Message)
	}
}

// AsAbort returns the AbortError in err's chain, if any.
func AsAbort(err error) (*AbortError, bool) {
	var ae *AbortError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// PhaseResult tells the orchestrator whether to continue to the next phase.
// Unexpected faults are returned as plain errors alongside it.
type PhaseResult struct {
	abort *AbortError
}

// Continue lets the run proceed.
func Continue() PhaseResult { return PhaseResult{} }

// Abort stops the run with a semantic failure of kind.
func Abort(kind AbortKind, msg string) PhaseResult {
	return PhaseResult{abort: &AbortError{Kind: kind, Message: msg}}
}

// Aborted reports whether the phase stopped the run.
func (r PhaseResult) Aborted() bool { return r.abort != nil }

// Err returns the abort as an error, or nil.
func (r PhaseResult) Err() error {
	if r.abort == nil {
		return nil
	}
	return r.abort
}
