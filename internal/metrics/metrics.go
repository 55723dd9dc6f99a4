// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from pipeline runs.
//
// The engine depends only on Recorder; concrete metric systems live in the
// prompush and datadog subpackages. The zero Recorder and a nil *Recorder
// are both usable and record nothing.
package metrics

import "time"

// Metric names emitted by Recorder.
const (
	StepTotal       = "conduit_step_total"
	StepDuration    = "conduit_step_duration_seconds"
	RecordsTotal    = "conduit_records_total"
	BatchesTotal    = "conduit_batches_total"
	statusSuccess   = "success"
	statusFailure   = "failure"
	labelJob        = "job"
	labelStep       = "step"
	labelStatus     = "status"
	labelRecordKind = "kind"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(name string, delta float64, labels Labels)       {}
func (Nop) ObserveHistogram(name string, value float64, labels Labels) {}
func (Nop) Flush() error                                               { return nil }

// Recorder tags metrics for one job (the resource name) and forwards them
// to a Backend.
type Recorder struct {
	backend Backend
	job     string
}

// NewRecorder returns a Recorder for job. A nil backend records nothing.
func NewRecorder(b Backend, job string) *Recorder {
	if b == nil {
		b = Nop{}
	}
	return &Recorder{backend: b, job: job}
}

// WithJob returns a Recorder sharing the backend but tagging job.
func (r *Recorder) WithJob(job string) *Recorder {
	if r == nil {
		return NewRecorder(nil, job)
	}
	return &Recorder{backend: r.backend, job: job}
}

func (r *Recorder) get() Backend {
	if r == nil || r.backend == nil {
		return Nop{}
	}
	return r.backend
}

// Flush delegates to the backend.
func (r *Recorder) Flush() error { return r.get().Flush() }

// RecordStep measures latency and success/failure of one pipeline phase.
func (r *Recorder) RecordStep(step string, err error, d time.Duration) {
	status := statusSuccess
	if err != nil {
		status = statusFailure
	}
	var job string
	if r != nil {
		job = r.job
	}
	lbls := Labels{
		labelJob:    job,
		labelStep:   step,
		labelStatus: status,
	}
	b := r.get()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow increments a record-level counter. Typical kinds are "read",
// "written", "failed", "dlq" and "dropped".
func (r *Recorder) RecordRow(kind string, delta int64) {
	if delta <= 0 || r == nil {
		return
	}
	r.get().IncCounter(RecordsTotal, float64(delta), Labels{
		labelJob:        r.job,
		labelRecordKind: kind,
	})
}

// RecordBatches increments the batch counter.
func (r *Recorder) RecordBatches(delta int64) {
	if delta <= 0 || r == nil {
		return
	}
	r.get().IncCounter(BatchesTotal, float64(delta), Labels{labelJob: r.job})
}
