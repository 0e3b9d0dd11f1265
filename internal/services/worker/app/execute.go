package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/taskworker/internal/services/worker/domain"
	"github.com/louisbranch/taskworker/internal/services/worker/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const recordTimeout = 2 * time.Second

// errShutdown marks results abandoned because the loop is stopping.
var errShutdown = errors.New("worker shutting down")

// Execute runs one inflight activation and classifies the outcome. It never
// returns before the processing deadline unless the task body finished or
// ctx ended.
func (w *Worker) Execute(ctx context.Context, inflight domain.InflightActivation) domain.ProcessingResult {
	activation := inflight.Activation
	result := domain.ProcessingResult{
		TaskID:     activation.ID,
		Host:       inflight.Host,
		ReceivedAt: inflight.ReceivedAt,
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(activation.Headers))
	ctx, span := w.tracer.Start(ctx, "taskworker.execute",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("taskworker.activation_id", activation.ID),
			attribute.String("taskworker.task", activation.FullName()),
			attribute.Int64("taskworker.attempt", int64(activation.Attempt)),
		))
	defer span.End()

	start := time.Now()
	result = w.execute(ctx, inflight, result)
	elapsed := time.Since(start)

	span.SetAttributes(attribute.String("taskworker.status", result.Status.String()))
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(otelcodes.Error, result.Status.String())
	}
	w.finish(ctx, inflight, result, elapsed)
	return result
}

func (w *Worker) execute(ctx context.Context, inflight domain.InflightActivation, result domain.ProcessingResult) domain.ProcessingResult {
	activation := inflight.Activation

	if activation.Expired(inflight.ReceivedAt) {
		result.Status = domain.StatusFailure
		result.Err = domain.ErrActivationExpired
		return result
	}

	task, err := w.registry.Lookup(activation.Namespace, activation.TaskName)
	if err != nil {
		result.Status = domain.StatusFailure
		result.Err = err
		return result
	}

	params, err := activation.Params()
	if err != nil {
		result.Status = domain.StatusFailure
		result.Err = domain.NewExecutionError(task.FullName(), err)
		return result
	}

	idempotent := task.Idempotent() && activation.IdempotencyKey != "" && w.completions != nil
	if idempotent {
		done, err := w.completions.IsComplete(ctx, activation.IdempotencyKey)
		switch {
		case err != nil:
			w.logger.Warn("check completion marker, executing anyway",
				zap.String("activation_id", activation.ID), zap.Error(err))
		case done:
			w.metrics.ObserveDuplicate(activation.Namespace, activation.TaskName)
			result.Status = domain.StatusComplete
			result.Duplicate = true
			return result
		}
	}

	deadline, budget := inflight.Deadline(task.ProcessingDeadline())
	err = invoke(ctx, task, params, deadline)
	switch {
	case err == nil:
		if idempotent {
			// The marker must exist before the broker hears COMPLETE.
			if markErr := w.completions.MarkComplete(ctx, activation.IdempotencyKey, w.config.CompletionTTL); markErr != nil {
				w.logger.Warn("write completion marker",
					zap.String("activation_id", activation.ID), zap.Error(markErr))
			}
		}
		result.Status = domain.StatusComplete
	case errors.Is(err, errShutdown):
		result.Status = domain.StatusFailure
		result.Err = domain.KindError(domain.KindCanceled, err)
	case errors.Is(err, errDeadline):
		result.Status = domain.StatusFailure
		result.Err = &domain.DeadlineExceededError{Task: task.FullName(), Deadline: budget}
	default:
		result.Err = domain.NewExecutionError(task.FullName(), err)
		result.Status, result.RetryDelay = classify(task.Retry(), activation.Attempt, err)
	}
	return result
}

var errDeadline = errors.New("processing deadline reached")

// invoke runs the task body in its own goroutine. The body's context is
// detached from shutdown and bounded by deadline; when the deadline passes
// first the body is abandoned, not stopped.
func invoke(ctx context.Context, task *domain.Task, params domain.Params, deadline time.Time) error {
	execCtx, cancel := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	done := make(chan error, 1)
	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				done <- domain.KindError(domain.KindPanic, fmt.Errorf("panic: %v", r))
			}
		}()
		done <- task.Call(execCtx, params)
	}()

	select {
	case err := <-done:
		return err
	case <-execCtx.Done():
		// A body that returned right at the deadline still wins.
		select {
		case err := <-done:
			return err
		default:
		}
		return errDeadline
	case <-ctx.Done():
		return errShutdown
	}
}

func (w *Worker) finish(ctx context.Context, inflight domain.InflightActivation, result domain.ProcessingResult, elapsed time.Duration) {
	activation := inflight.Activation
	w.metrics.ObserveResult(activation.Namespace, activation.TaskName, result.Status.String(), elapsed)

	fields := []zap.Field{
		zap.String("activation_id", activation.ID),
		zap.String("task", activation.FullName()),
		zap.Uint("attempt", activation.Attempt),
		zap.Stringer("status", result.Status),
		zap.Duration("elapsed", elapsed),
	}
	switch {
	case result.Err != nil:
		w.logger.Warn("task finished with error", append(fields, zap.Error(result.Err))...)
	case result.Duplicate:
		w.logger.Info("duplicate delivery suppressed", fields...)
	default:
		w.logger.Debug("task finished", fields...)
	}

	if w.attempts == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	record := storage.AttemptRecord{
		ActivationID: activation.ID,
		Namespace:    activation.Namespace,
		TaskName:     activation.TaskName,
		Host:         inflight.Host,
		Status:       result.Status.String(),
		Attempt:      int32(activation.Attempt),
		Duration:     elapsed,
		CreatedAt:    inflight.ReceivedAt,
	}
	if result.Err != nil {
		record.LastError = result.Err.Error()
	}
	if err := w.attempts.RecordAttempt(recordCtx, record); err != nil {
		w.logger.Warn("record attempt", zap.String("activation_id", activation.ID), zap.Error(err))
	}
}
