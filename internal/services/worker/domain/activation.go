package domain

import (
	"encoding/hex"
	"fmt"
	"time"

	"lukechampine.com/blake3"
)

// Activation is one wire-transmissible invocation record for a task.
type Activation struct {
	// ID identifies this send attempt. Redeliveries keep the ID and bump Attempt.
	ID        string
	Namespace string
	TaskName  string
	// Payload holds the CBOR-encoded Params.
	Payload []byte
	// Attempt starts at 1 and is incremented by the broker on redelivery.
	// The worker treats it as read-only.
	Attempt uint
	// ProcessingDeadline is the wall-clock budget granted per delivery.
	ProcessingDeadline time.Duration
	// DeadlineAt is the absolute processing deadline of the current delivery.
	DeadlineAt time.Time
	// IdempotencyKey is set only for idempotent tasks and is stable across
	// retries of the same logical invocation.
	IdempotencyKey string
	// ExpiresAt, when set, is the instant after which the activation must
	// not be executed at all.
	ExpiresAt time.Time
	// Headers carry propagation metadata such as trace context.
	Headers   map[string]string
	CreatedAt time.Time
}

// Params decodes the activation payload.
func (a Activation) Params() (Params, error) {
	return DecodeParams(a.Payload)
}

// Expired reports whether the activation expired before now.
func (a Activation) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// FullName is the external task identifier "namespace.task".
func (a Activation) FullName() string {
	return a.Namespace + "." + a.TaskName
}

// idempotencyKey hashes the task identity with the encoded payload so every
// retry of the same logical call shares the key.
func idempotencyKey(namespace, task string, payload []byte) string {
	hasher := blake3.New(32, nil)
	fmt.Fprintf(hasher, "%s\x00%s\x00", namespace, task)
	_, _ = hasher.Write(payload)
	return hex.EncodeToString(hasher.Sum(nil))
}

// InflightActivation is the worker-local record of an activation being
// executed. It is never sent to the broker.
type InflightActivation struct {
	Activation Activation
	// Host identifies the worker process holding the activation.
	Host string
	// ReceivedAt is read when the fetch returns and keeps a monotonic reading.
	ReceivedAt time.Time
}

// Deadline returns the absolute instant at which the worker stops waiting
// for the task body, given fallback when the activation carries no budget.
func (i InflightActivation) Deadline(fallback time.Duration) (time.Time, time.Duration) {
	budget := i.Activation.ProcessingDeadline
	if budget <= 0 {
		budget = fallback
	}
	return i.ReceivedAt.Add(budget), budget
}

// Status is the processing outcome reported to the broker.
type Status int

const (
	StatusUnspecified Status = iota
	StatusComplete
	StatusRetry
	StatusFailure
	StatusDeadletter
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "COMPLETE"
	case StatusRetry:
		return "RETRY"
	case StatusFailure:
		return "FAILURE"
	case StatusDeadletter:
		return "DEADLETTER"
	default:
		return "UNSPECIFIED"
	}
}

// ParseStatus parses the String form of a Status.
func ParseStatus(value string) (Status, error) {
	switch value {
	case "COMPLETE":
		return StatusComplete, nil
	case "RETRY":
		return StatusRetry, nil
	case "FAILURE":
		return StatusFailure, nil
	case "DEADLETTER":
		return StatusDeadletter, nil
	default:
		return StatusUnspecified, fmt.Errorf("unknown status %q", value)
	}
}

// ProcessingResult is produced exactly once per InflightActivation.
type ProcessingResult struct {
	TaskID     string
	Status     Status
	Host       string
	ReceivedAt time.Time
	// RetryDelay is the redelivery delay suggested with StatusRetry.
	RetryDelay time.Duration
	// Err is the classified failure, nil on success.
	Err error
	// Duplicate is set when an idempotent activation was skipped because
	// its completion marker already existed.
	Duplicate bool
}

// ReceiveTimestamp returns ReceivedAt as fractional unix seconds.
func (r ProcessingResult) ReceiveTimestamp() float64 {
	if r.ReceivedAt.IsZero() {
		return 0
	}
	return float64(r.ReceivedAt.UnixNano()) / float64(time.Second)
}
