package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWorkerCountsResults(t *testing.T) {
	w := NewWorker()
	w.ObserveResult("demo", "say_hello", "COMPLETE", 20*time.Millisecond)
	w.ObserveResult("demo", "say_hello", "COMPLETE", 30*time.Millisecond)
	w.ObserveResult("demo", "say_hello", "RETRY", time.Millisecond)

	if got := testutil.ToFloat64(w.results.WithLabelValues("demo", "say_hello", "COMPLETE")); got != 2 {
		t.Fatalf("complete results = %v, want 2", got)
	}
	if got := testutil.ToFloat64(w.results.WithLabelValues("demo", "say_hello", "RETRY")); got != 1 {
		t.Fatalf("retry results = %v, want 1", got)
	}
}

func TestWorkerCountsFetchesAndFailures(t *testing.T) {
	w := NewWorker()
	w.ObserveFetch(FetchEmpty)
	w.ObserveFetch(FetchEmpty)
	w.ObserveFetch(FetchActivation)
	w.ObserveReportFailure()
	w.ObserveDuplicate("demo", "charge")
	w.SetState(2)

	if got := testutil.ToFloat64(w.fetches.WithLabelValues(FetchEmpty)); got != 2 {
		t.Fatalf("empty fetches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(w.reportFailures); got != 1 {
		t.Fatalf("report failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(w.duplicates.WithLabelValues("demo", "charge")); got != 1 {
		t.Fatalf("duplicates = %v, want 1", got)
	}
	if got := testutil.ToFloat64(w.state); got != 2 {
		t.Fatalf("state = %v, want 2", got)
	}
}

func TestNilWorkerIsNoop(t *testing.T) {
	var w *Worker
	w.ObserveFetch(FetchError)
	w.ObserveResult("demo", "x", "FAILURE", time.Second)
	w.ObserveDuplicate("demo", "x")
	w.ObserveReportFailure()
	w.SetState(1)
	if w.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}

func TestHandlerServesExposition(t *testing.T) {
	w := NewWorker()
	w.ObserveFetch(FetchActivation)

	server := httptest.NewServer(w.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `taskworker_worker_fetches_total{outcome="activation"} 1`) {
		t.Fatalf("metrics body missing fetch counter:\n%s", body)
	}
}
