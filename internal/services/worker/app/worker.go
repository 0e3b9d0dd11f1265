// Package app runs the worker process: a single loop that fetches one
// activation at a time from the broker, executes the bound task under its
// processing deadline, and reports the classified outcome.
package app

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/louisbranch/taskworker/internal/platform/telemetry/metrics"
	"github.com/louisbranch/taskworker/internal/services/worker/broker"
	"github.com/louisbranch/taskworker/internal/services/worker/domain"
	"github.com/louisbranch/taskworker/internal/services/worker/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/louisbranch/taskworker/internal/services/worker/app"

// State is the loop position.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateExecuting
	StateReporting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateFetching:
		return "FETCHING"
	case StateExecuting:
		return "EXECUTING"
	case StateReporting:
		return "REPORTING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Broker is the part of the broker client the loop needs.
type Broker interface {
	FetchTask(ctx context.Context, maxTaskCount int) (*domain.Activation, error)
	ReportResult(ctx context.Context, result domain.ProcessingResult) broker.ReportOutcome
}

// AttemptRecorder persists one record per processed activation.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt storage.AttemptRecord) error
}

var _ Broker = (*broker.Client)(nil)

// Worker is the fetch-execute-report state machine. It processes one
// activation at a time and is not safe for concurrent Run calls.
type Worker struct {
	registry    *domain.Registry
	broker      Broker
	completions storage.CompletionStore
	attempts    AttemptRecorder
	metrics     *metrics.Worker
	logger      *zap.Logger
	tracer      trace.Tracer
	config      Config
	clock       func() time.Time
	state       atomic.Int32
}

// Option customizes a Worker.
type Option func(*Worker)

// WithCompletionStore enables duplicate suppression for idempotent tasks.
func WithCompletionStore(store storage.CompletionStore) Option {
	return func(w *Worker) { w.completions = store }
}

// WithAttemptRecorder records every processed activation.
func WithAttemptRecorder(recorder AttemptRecorder) Option {
	return func(w *Worker) { w.attempts = recorder }
}

// WithMetrics records loop metrics.
func WithMetrics(m *metrics.Worker) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithClock overrides the receive-time source.
func WithClock(clock func() time.Time) Option {
	return func(w *Worker) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// New builds a worker over registry and b.
func New(registry *domain.Registry, b Broker, config Config, opts ...Option) *Worker {
	w := &Worker{
		registry: registry,
		broker:   b,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
		config:   config.normalized(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	w.setState(StateIdle)
	return w
}

// State returns the current loop state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(state State) {
	w.state.Store(int32(state))
	w.metrics.SetState(int(state))
}

// Run loops until ctx ends, in which case it returns nil. It returns a
// *domain.BrokerUnavailableError once FetchMaxTries consecutive fetches
// failed. Task failures never end the loop.
func (w *Worker) Run(ctx context.Context) error {
	defer w.setState(StateStopped)
	w.logger.Info("worker loop started",
		zap.String("host", w.config.Host),
		zap.Int("max_task_count", w.config.MaxTaskCount))

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker loop stopped")
			return nil
		}
		w.touchHealthFile()

		activation, err := w.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker loop stopped")
				return nil
			}
			w.logger.Error("broker unavailable, stopping worker loop", zap.Error(err))
			return err
		}
		if activation == nil {
			w.setState(StateIdle)
			if !sleep(ctx, w.config.IdleBackoff) {
				w.logger.Info("worker loop stopped")
				return nil
			}
			continue
		}
		w.Process(ctx, *activation)
	}
}

func (w *Worker) fetch(ctx context.Context) (*domain.Activation, error) {
	w.setState(StateFetching)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.config.FetchInitialBackoff
	policy.MaxInterval = w.config.FetchMaxBackoff

	activation, err := backoff.Retry(ctx, func() (*domain.Activation, error) {
		activation, err := w.broker.FetchTask(ctx, w.config.MaxTaskCount)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			w.metrics.ObserveFetch(metrics.FetchError)
			w.logger.Warn("fetch task", zap.Error(err))
			return nil, err
		}
		if activation == nil {
			w.metrics.ObserveFetch(metrics.FetchEmpty)
		} else {
			w.metrics.ObserveFetch(metrics.FetchActivation)
		}
		return activation, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(w.config.FetchMaxTries)),
	)
	if err != nil {
		var unavailable *domain.BrokerUnavailableError
		if !errors.As(err, &unavailable) && ctx.Err() == nil {
			err = &domain.BrokerUnavailableError{Err: err}
		}
		return nil, err
	}
	return activation, nil
}

// Process executes activation and reports the result. Report failures are
// logged and dropped; the broker redelivers unacknowledged activations.
func (w *Worker) Process(ctx context.Context, activation domain.Activation) domain.ProcessingResult {
	inflight := domain.InflightActivation{
		Activation: activation,
		Host:       w.config.Host,
		ReceivedAt: w.clock(),
	}

	w.setState(StateExecuting)
	result := w.Execute(ctx, inflight)

	if ctx.Err() != nil {
		w.logger.Info("shutdown before report, leaving activation to broker redelivery",
			zap.String("activation_id", activation.ID),
			zap.String("task", activation.FullName()))
		return result
	}

	w.setState(StateReporting)
	outcome := w.broker.ReportResult(ctx, result)
	if !outcome.Delivered {
		w.metrics.ObserveReportFailure()
		w.logger.Warn("report result",
			zap.String("activation_id", activation.ID),
			zap.Stringer("status", result.Status),
			zap.Error(outcome.Err))
	}
	w.setState(StateIdle)
	return result
}

func (w *Worker) touchHealthFile() {
	if w.config.HealthFile == "" {
		return
	}
	stamp := w.clock().UTC().Format(time.RFC3339Nano)
	if err := os.WriteFile(w.config.HealthFile, []byte(stamp+"\n"), 0o644); err != nil {
		w.logger.Warn("write health file", zap.String("path", w.config.HealthFile), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
