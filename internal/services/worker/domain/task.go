package domain

import (
	"context"
	"time"
)

// Task binds a function to a namespace with its retry policy and deadline.
// Tasks are created by Namespace.Register and never change afterwards.
type Task struct {
	name               string
	fn                 Func
	namespace          *Namespace
	retry              *RetryPolicy
	idempotent         bool
	processingDeadline time.Duration
}

// TaskOption customizes a task at registration.
type TaskOption func(*Task)

// WithRetry sets the task retry policy. A nil policy disables retries even
// when the namespace has a default.
func WithRetry(policy *RetryPolicy) TaskOption {
	return func(t *Task) {
		if policy == nil {
			t.retry = nil
			return
		}
		clone := *policy
		t.retry = &clone
	}
}

// Idempotent marks duplicate executions as safe to suppress.
func Idempotent() TaskOption {
	return func(t *Task) {
		t.idempotent = true
	}
}

// WithProcessingDeadline overrides the namespace default deadline.
func WithProcessingDeadline(d time.Duration) TaskOption {
	return func(t *Task) {
		t.processingDeadline = d
	}
}

// Name returns the task name within its namespace.
func (t *Task) Name() string { return t.name }

// FullName returns the stable external identifier "namespace.task".
func (t *Task) FullName() string { return t.namespace.name + "." + t.name }

// Namespace returns the owning namespace.
func (t *Task) Namespace() *Namespace { return t.namespace }

// Retry returns the retry policy, nil when retries are disabled.
func (t *Task) Retry() *RetryPolicy { return t.retry }

// Idempotent reports whether duplicate deliveries may be suppressed.
func (t *Task) Idempotent() bool { return t.idempotent }

// ProcessingDeadline returns the effective deadline for one execution.
func (t *Task) ProcessingDeadline() time.Duration {
	if t.processingDeadline > 0 {
		return t.processingDeadline
	}
	return t.namespace.defaultProcessingDeadline
}

// Call invokes the bound function.
func (t *Task) Call(ctx context.Context, params Params) error {
	return t.fn(ctx, params)
}

// CreateActivation builds an activation for this task.
func (t *Task) CreateActivation(params Params) (Activation, error) {
	return t.namespace.CreateActivation(t, params)
}

// Send creates an activation and hands it to the producer.
func (t *Task) Send(ctx context.Context, params Params) (Activation, error) {
	activation, err := t.CreateActivation(params)
	if err != nil {
		return Activation{}, err
	}
	if err := t.namespace.SendTask(ctx, activation); err != nil {
		return Activation{}, err
	}
	return activation, nil
}
