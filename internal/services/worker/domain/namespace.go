package domain

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/louisbranch/taskworker/internal/platform/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// DefaultProcessingDeadline applies when a namespace does not set one.
const DefaultProcessingDeadline = 10 * time.Second

// Producer hands activations to the transport toward the broker.
type Producer interface {
	Produce(ctx context.Context, topic string, activation Activation) error
}

// Namespace groups tasks sharing delivery topics and execution defaults.
type Namespace struct {
	name                      string
	topic                     string
	deadletterTopic           string
	defaultRetry              *RetryPolicy
	defaultProcessingDeadline time.Duration
	expiresAfter              time.Duration
	tasks                     map[string]*Task
	registry                  *Registry
}

// NamespaceOption customizes a namespace at creation.
type NamespaceOption func(*Namespace)

// WithTopic sets the delivery topic.
func WithTopic(topic string) NamespaceOption {
	return func(ns *Namespace) {
		if topic = strings.TrimSpace(topic); topic != "" {
			ns.topic = topic
		}
	}
}

// WithDeadletterTopic sets the deadletter topic.
func WithDeadletterTopic(topic string) NamespaceOption {
	return func(ns *Namespace) {
		if topic = strings.TrimSpace(topic); topic != "" {
			ns.deadletterTopic = topic
		}
	}
}

// WithDefaultRetry sets the retry policy inherited by tasks that do not set one.
func WithDefaultRetry(policy *RetryPolicy) NamespaceOption {
	return func(ns *Namespace) {
		if policy == nil {
			ns.defaultRetry = nil
			return
		}
		clone := *policy
		ns.defaultRetry = &clone
	}
}

// WithDefaultProcessingDeadline sets the deadline inherited by tasks.
func WithDefaultProcessingDeadline(d time.Duration) NamespaceOption {
	return func(ns *Namespace) {
		if d > 0 {
			ns.defaultProcessingDeadline = d
		}
	}
}

// WithExpiresAfter makes activations created in the namespace expire d after
// creation. Expired activations are failed without running.
func WithExpiresAfter(d time.Duration) NamespaceOption {
	return func(ns *Namespace) {
		if d > 0 {
			ns.expiresAfter = d
		}
	}
}

// Name returns the namespace name.
func (ns *Namespace) Name() string { return ns.name }

// Topic returns the delivery topic.
func (ns *Namespace) Topic() string { return ns.topic }

// DeadletterTopic returns the deadletter topic.
func (ns *Namespace) DeadletterTopic() string { return ns.deadletterTopic }

// DefaultRetry returns the namespace retry default, possibly nil.
func (ns *Namespace) DefaultRetry() *RetryPolicy { return ns.defaultRetry }

// DefaultProcessingDeadline returns the namespace deadline default.
func (ns *Namespace) DefaultProcessingDeadline() time.Duration {
	return ns.defaultProcessingDeadline
}

// Register binds fn to name in this namespace.
func (ns *Namespace) Register(name string, fn Func, opts ...TaskOption) (*Task, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.New(apperrors.CodeInvalidTask, "task name is required")
	}
	if fn == nil {
		return nil, apperrors.New(apperrors.CodeInvalidTask, fmt.Sprintf("task %q has no function", name))
	}
	if _, exists := ns.tasks[name]; exists {
		return nil, duplicateTask(ns.name, name)
	}

	task := &Task{name: name, fn: fn, namespace: ns}
	WithRetry(ns.defaultRetry)(task)
	for _, opt := range opts {
		if opt != nil {
			opt(task)
		}
	}
	if err := task.retry.Validate(); err != nil {
		return nil, fmt.Errorf("register %s.%s: %w", ns.name, name, err)
	}
	if task.processingDeadline < 0 {
		return nil, apperrors.New(apperrors.CodeInvalidTask, fmt.Sprintf("task %q has a negative processing deadline", name))
	}

	ns.tasks[name] = task
	return task, nil
}

// Task returns the task registered under name.
func (ns *Namespace) Task(name string) (*Task, error) {
	task, ok := ns.tasks[name]
	if !ok {
		return nil, unknownTask(ns.name, name)
	}
	return task, nil
}

// TaskNames returns the registered task names in sorted order.
func (ns *Namespace) TaskNames() []string {
	return slices.Sorted(maps.Keys(ns.tasks))
}

// CreateActivation encodes params into a fresh activation for task.
func (ns *Namespace) CreateActivation(task *Task, params Params) (Activation, error) {
	if task == nil || task.namespace != ns {
		return Activation{}, apperrors.New(apperrors.CodeInvalidActivation, "task does not belong to namespace "+ns.name)
	}
	payload, err := EncodeParams(params)
	if err != nil {
		return Activation{}, apperrors.Wrap(apperrors.CodeInvalidActivation, "encode activation payload", err)
	}

	now := ns.registry.now()
	deadline := task.ProcessingDeadline()
	activation := Activation{
		ID:                 uuid.NewString(),
		Namespace:          ns.name,
		TaskName:           task.name,
		Payload:            payload,
		Attempt:            1,
		ProcessingDeadline: deadline,
		DeadlineAt:         now.Add(deadline),
		Headers:            map[string]string{},
		CreatedAt:          now,
	}
	if ns.expiresAfter > 0 {
		activation.ExpiresAt = now.Add(ns.expiresAfter)
	}
	if task.idempotent {
		activation.IdempotencyKey = idempotencyKey(ns.name, task.name, payload)
	}
	return activation, nil
}

// SendTask hands activation to the producer on the namespace topic. It
// returns once the producer accepted it and never waits for execution.
func (ns *Namespace) SendTask(ctx context.Context, activation Activation) error {
	producer := ns.registry.producer
	if producer == nil {
		return ErrProducerNotConfigured
	}
	if activation.Namespace != ns.name {
		return apperrors.New(apperrors.CodeInvalidActivation,
			fmt.Sprintf("activation namespace %q does not match %q", activation.Namespace, ns.name))
	}
	headers := make(map[string]string, len(activation.Headers)+2)
	maps.Copy(headers, activation.Headers)
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
	activation.Headers = headers

	if err := producer.Produce(ctx, ns.topic, activation); err != nil {
		return fmt.Errorf("send %s: %w", activation.FullName(), err)
	}
	return nil
}
