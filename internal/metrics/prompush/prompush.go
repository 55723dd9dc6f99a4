// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package. A batch run has no scrape window, so collected metrics
// are pushed to a gateway when the run flushes.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"conduit/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	grouping   map[string]string
	reg        *prometheus.Registry

	stepCounter   *prometheus.CounterVec
	stepDuration  *prometheus.SummaryVec
	recordCounter *prometheus.CounterVec
	batchCounter  *prometheus.CounterVec
}

// NewBackend constructs a Pushgateway backend. jobName is the gateway "job"
// grouping key; grouping adds further key/value pairs.
func NewBackend(jobName, gatewayURL string, grouping map[string]string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "conduit"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		grouping:   grouping,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline phase executions by resource, phase and status.",
		}, []string{"resource", "step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDuration,
			Help:       "Pipeline phase duration in seconds by resource, phase and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"resource", "step", "status"}),
		recordCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Records by resource and kind (read, written, failed, dlq, dropped).",
		}, []string{"resource", "kind"}),
		batchCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Batches processed by resource.",
		}, []string{"resource"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":   b.stepCounter,
		"step summary":   b.stepDuration,
		"record counter": b.recordCounter,
		"batch counter":  b.batchCounter,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	res := labels["job"]
	switch name {
	case metrics.StepTotal:
		if b.stepCounter != nil {
			b.stepCounter.WithLabelValues(res, labels["step"], labels["status"]).Add(delta)
		}
	case metrics.RecordsTotal:
		if b.recordCounter != nil {
			b.recordCounter.WithLabelValues(res, labels["kind"]).Add(delta)
		}
	case metrics.BatchesTotal:
		if b.batchCounter != nil {
			b.batchCounter.WithLabelValues(res).Add(delta)
		}
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["job"], labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	p := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg)
	for k, v := range b.grouping {
		p = p.Grouping(k, v)
	}
	if err := p.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}
