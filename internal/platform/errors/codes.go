// Package errors provides structured error codes for the task worker.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Registry errors
	CodeUnknownNamespace   Code = "UNKNOWN_NAMESPACE"
	CodeDuplicateNamespace Code = "DUPLICATE_NAMESPACE"
	CodeUnknownTask        Code = "UNKNOWN_TASK"
	CodeDuplicateTask      Code = "DUPLICATE_TASK"
	CodeInvalidRetryPolicy Code = "INVALID_RETRY_POLICY"
	CodeInvalidTask        Code = "INVALID_TASK"

	// Producer errors
	CodeProducerNotConfigured Code = "PRODUCER_NOT_CONFIGURED"
	CodeInvalidActivation     Code = "INVALID_ACTIVATION"

	// Broker errors
	CodeNoPendingTask Code = "NO_PENDING_TASK"
	CodeNotInflight   Code = "NOT_INFLIGHT"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidRetryPolicy,
		CodeInvalidTask,
		CodeInvalidActivation:
		return codes.InvalidArgument

	case CodeUnknownNamespace,
		CodeUnknownTask,
		CodeNoPendingTask,
		CodeNotInflight:
		return codes.NotFound

	case CodeDuplicateNamespace,
		CodeDuplicateTask:
		return codes.AlreadyExists

	case CodeProducerNotConfigured:
		return codes.FailedPrecondition

	default:
		return codes.Internal
	}
}
