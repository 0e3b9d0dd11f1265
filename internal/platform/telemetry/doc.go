// Package telemetry groups the operational observability of taskworker
// processes.
//
// Tracing is configured by platform/otel and flows through activation
// headers. Counters and histograms live in telemetry/metrics and are exposed
// in Prometheus format on the worker metrics address.
package telemetry
