package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/taskworker/internal/platform/errors"
)

// Registry configuration errors. They indicate programming mistakes and are
// surfaced at startup, never retried.
var (
	ErrUnknownNamespace      = apperrors.New(apperrors.CodeUnknownNamespace, "unknown namespace")
	ErrDuplicateNamespace    = apperrors.New(apperrors.CodeDuplicateNamespace, "duplicate namespace")
	ErrDuplicateTask         = apperrors.New(apperrors.CodeDuplicateTask, "duplicate task")
	ErrUnknownTask           = apperrors.New(apperrors.CodeUnknownTask, "unknown task")
	ErrProducerNotConfigured = apperrors.New(apperrors.CodeProducerNotConfigured, "task producer is not configured")
)

func unknownNamespace(name string) error {
	return apperrors.WithMetadata(apperrors.CodeUnknownNamespace,
		fmt.Sprintf("unknown namespace %q", name),
		map[string]string{"namespace": name})
}

func duplicateNamespace(name string) error {
	return apperrors.WithMetadata(apperrors.CodeDuplicateNamespace,
		fmt.Sprintf("namespace %q is already registered", name),
		map[string]string{"namespace": name})
}

func unknownTask(namespace, task string) error {
	return apperrors.WithMetadata(apperrors.CodeUnknownTask,
		fmt.Sprintf("unknown task %q in namespace %q", task, namespace),
		map[string]string{"namespace": namespace, "task": task})
}

func duplicateTask(namespace, task string) error {
	return apperrors.WithMetadata(apperrors.CodeDuplicateTask,
		fmt.Sprintf("task %q is already registered in namespace %q", task, namespace),
		map[string]string{"namespace": namespace, "task": task})
}

// ErrActivationExpired is the result cause for activations received after
// their ExpiresAt.
var ErrActivationExpired = errors.New("activation expired before execution")

// ErrorKind classifies task failures for retry decisions.
type ErrorKind string

const (
	// KindUnknown is assigned to errors that carry no kind of their own.
	KindUnknown ErrorKind = "unknown"
	// KindTimeout covers context deadline errors returned by a task body.
	KindTimeout ErrorKind = "timeout"
	// KindCanceled covers context cancellation errors returned by a task body.
	KindCanceled ErrorKind = "canceled"
	// KindPanic is assigned when a task body panics.
	KindPanic ErrorKind = "panic"
	// KindDecode is assigned when the activation payload cannot be decoded.
	KindDecode ErrorKind = "decode"
)

// KindError attaches an ErrorKind to err.
func KindError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, cause: err}
}

type kindError struct {
	kind  ErrorKind
	cause error
}

func (e *kindError) Error() string   { return e.cause.Error() }
func (e *kindError) Unwrap() error   { return e.cause }
func (e *kindError) Kind() ErrorKind { return e.kind }

// KindOf reports the classification of err. Errors may declare a kind by
// implementing Kind() ErrorKind anywhere in their chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var kinded interface{ Kind() ErrorKind }
	if errors.As(err, &kinded) {
		if kind := kinded.Kind(); kind != "" {
			return kind
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindUnknown
}

type permanentError struct {
	cause error
}

func (e permanentError) Error() string {
	if e.cause == nil {
		return "permanent error"
	}
	return e.cause.Error()
}

func (e permanentError) Unwrap() error {
	return e.cause
}

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{cause: err}
}

// IsPermanent reports whether err was explicitly marked as non-retryable.
func IsPermanent(err error) bool {
	var target permanentError
	return errors.As(err, &target)
}

type retryRequestedError struct {
	cause error
}

func (e retryRequestedError) Error() string {
	if e.cause == nil {
		return "retry requested"
	}
	return e.cause.Error()
}

func (e retryRequestedError) Unwrap() error {
	return e.cause
}

// Retry marks an error as retryable regardless of its kind. The task still
// needs a retry policy with attempts remaining.
func Retry(err error) error {
	if err == nil {
		err = errors.New("retry requested")
	}
	return retryRequestedError{cause: err}
}

// IsRetryRequested reports whether err was produced by Retry.
func IsRetryRequested(err error) bool {
	var target retryRequestedError
	return errors.As(err, &target)
}

// ExecutionError wraps whatever a task body returned.
type ExecutionError struct {
	Task string
	Kind ErrorKind
	Err  error
}

// NewExecutionError classifies err raised by task.
func NewExecutionError(task string, err error) *ExecutionError {
	return &ExecutionError{Task: task, Kind: KindOf(err), Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil || e.Err == nil {
		return "task execution failed"
	}
	return fmt.Sprintf("task %s failed (%s): %v", e.Task, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DeadlineExceededError is raised by the runtime when a task's processing
// budget runs out before the body returns.
type DeadlineExceededError struct {
	Task     string
	Deadline time.Duration
}

func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("task %s exceeded processing deadline of %s", e.Task, e.Deadline)
}

// Is lets callers match with context.DeadlineExceeded.
func (e *DeadlineExceededError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// BrokerUnavailableError reports a fetch-path transport failure.
type BrokerUnavailableError struct {
	Addr string
	Err  error
}

func (e *BrokerUnavailableError) Error() string {
	return fmt.Sprintf("broker %s unavailable: %v", e.Addr, e.Err)
}

func (e *BrokerUnavailableError) Unwrap() error { return e.Err }

// ReportDeliveryError reports a failed result delivery. It is logged by the
// worker loop and never escalated.
type ReportDeliveryError struct {
	TaskID string
	Err    error
}

func (e *ReportDeliveryError) Error() string {
	return fmt.Sprintf("deliver result for activation %s: %v", e.TaskID, e.Err)
}

func (e *ReportDeliveryError) Unwrap() error { return e.Err }
