package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "taskworker"
	subsystem = "worker"
)

// Fetch outcomes.
const (
	FetchActivation = "activation"
	FetchEmpty      = "empty"
	FetchError      = "error"
)

// Worker holds the collectors updated by the worker loop. A nil *Worker is
// valid and records nothing.
type Worker struct {
	registry       *prometheus.Registry
	fetches        *prometheus.CounterVec
	results        *prometheus.CounterVec
	execution      *prometheus.HistogramVec
	reportFailures prometheus.Counter
	duplicates     *prometheus.CounterVec
	state          prometheus.Gauge
}

// NewWorker creates worker collectors on a fresh registry, together with the
// Go runtime and process collectors.
func NewWorker() *Worker {
	w := &Worker{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetches_total",
			Help:      "Fetch calls against the broker by outcome",
		}, []string{"outcome"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "results_total",
			Help:      "Processing results by task and status",
		}, []string{"namespace", "task", "status"}),
		execution: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "execution_seconds",
			Help:      "Time spent executing task functions",
			Buckets:   []float64{.005, .025, .1, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"namespace", "task"}),
		reportFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "report_failures_total",
			Help:      "Results the broker did not acknowledge",
		}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duplicates_total",
			Help:      "Idempotent activations skipped because they already completed",
		}, []string{"namespace", "task"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state",
			Help:      "Current worker loop state",
		}),
	}
	w.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		w.fetches,
		w.results,
		w.execution,
		w.reportFailures,
		w.duplicates,
		w.state,
	)
	return w
}

// ObserveFetch counts one fetch call.
func (w *Worker) ObserveFetch(outcome string) {
	if w == nil {
		return
	}
	w.fetches.WithLabelValues(outcome).Inc()
}

// ObserveResult counts one processing result and its execution time.
func (w *Worker) ObserveResult(ns, task, status string, elapsed time.Duration) {
	if w == nil {
		return
	}
	w.results.WithLabelValues(ns, task, status).Inc()
	w.execution.WithLabelValues(ns, task).Observe(elapsed.Seconds())
}

// ObserveDuplicate counts a suppressed duplicate delivery.
func (w *Worker) ObserveDuplicate(ns, task string) {
	if w == nil {
		return
	}
	w.duplicates.WithLabelValues(ns, task).Inc()
}

// ObserveReportFailure counts a result the broker did not receive.
func (w *Worker) ObserveReportFailure() {
	if w == nil {
		return
	}
	w.reportFailures.Inc()
}

// SetState records the loop state.
func (w *Worker) SetState(state int) {
	if w == nil {
		return
	}
	w.state.Set(float64(state))
}

// Registry exposes the underlying registry for gathering in tests.
func (w *Worker) Registry() *prometheus.Registry {
	if w == nil {
		return nil
	}
	return w.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (w *Worker) Handler() http.Handler {
	if w == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(w.registry, promhttp.HandlerOpts{Registry: w.registry})
}
