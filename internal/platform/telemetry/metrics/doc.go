// Package metrics provides operational metrics collection for the worker.
//
// Collectors are registered on a private registry rather than the Prometheus
// default one so tests can build independent instances.
//
// # Worker metrics
//
//   - taskworker_worker_fetches_total by outcome (activation, empty, error)
//   - taskworker_worker_results_total by namespace, task and status
//   - taskworker_worker_execution_seconds by namespace and task
//   - taskworker_worker_report_failures_total
//   - taskworker_worker_duplicates_total by namespace and task
//   - taskworker_worker_state, the numeric loop state
package metrics
