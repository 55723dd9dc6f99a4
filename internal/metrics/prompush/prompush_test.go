package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"conduit/internal/metrics"
)

// readCounterValue reads the current value of a Counter for assertions in tests.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend("job", "", nil); err == nil {
		t.Fatalf("NewBackend without URL: error = nil, want non-nil")
	}
	b, err := NewBackend("", "http://pushgateway:9091", nil)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	if b.jobName != "conduit" {
		t.Fatalf("jobName = %q, want default conduit", b.jobName)
	}
}

func TestRecorderRoutesToCollectors(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("conduit", "http://example.com", nil)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	r := metrics.NewRecorder(b, "orders")
	r.RecordRow("written", 5)
	r.RecordRow("written", 2)
	r.RecordBatches(3)
	r.RecordStep("setup", nil, 0)
	b.IncCounter("unknown_metric", 10, metrics.Labels{"job": "orders"})

	if got := readCounterValue(t, b.recordCounter.WithLabelValues("orders", "written")); got != 7 {
		t.Fatalf("records written = %v, want 7", got)
	}
	if got := readCounterValue(t, b.batchCounter.WithLabelValues("orders")); got != 3 {
		t.Fatalf("batches = %v, want 3", got)
	}
	if got := readCounterValue(t, b.stepCounter.WithLabelValues("orders", "setup", "success")); got != 1 {
		t.Fatalf("step total = %v, want 1", got)
	}
}

func TestNilCollectorsAreSafe(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{})
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{})
	b.IncCounter(metrics.BatchesTotal, 1, metrics.Labels{})
	b.ObserveHistogram(metrics.StepDuration, 1, metrics.Labels{})
}

func TestFlush(t *testing.T) {
	t.Parallel()

	type pushRequest struct {
		method string
		path   string
		body   int
	}
	reqCh := make(chan pushRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushRequest{method: r.Method, path: r.URL.Path, body: len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("conduit", server.URL, map[string]string{"resource": "orders"})
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	metrics.NewRecorder(b, "orders").RecordRow("read", 1)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	select {
	case got := <-reqCh:
		if got.method != http.MethodPut {
			t.Fatalf("push method = %q, want PUT", got.method)
		}
		if !strings.Contains(got.path, "/job/conduit") || !strings.Contains(got.path, "/resource/orders") {
			t.Fatalf("push path = %q, want job and resource grouping", got.path)
		}
		if got.body == 0 {
			t.Fatalf("push body is empty")
		}
	default:
		t.Fatalf("Flush() did not send a request to the Pushgateway")
	}
}

// BenchmarkIncCounterRecord measures the cost of incrementing the record counter
// through the Backend IncCounter abstraction.
func BenchmarkIncCounterRecord(b *testing.B) {
	backend, err := NewBackend("conduit", "http://example.com", nil)
	if err != nil {
		b.Fatalf("NewBackend() error = %v", err)
	}
	labels := metrics.Labels{"job": "orders", "kind": "read"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.IncCounter(metrics.RecordsTotal, 1, labels)
	}
}
