package broker

import (
	"time"

	"github.com/louisbranch/taskworker/internal/services/worker/domain"
)

// ActivationMessage is the wire form of domain.Activation. Instants travel
// as unix milliseconds, zero meaning unset.
type ActivationMessage struct {
	ID                   string            `cbor:"id"`
	Namespace            string            `cbor:"namespace"`
	TaskName             string            `cbor:"taskname"`
	Payload              []byte            `cbor:"payload,omitempty"`
	Attempt              uint32            `cbor:"attempt"`
	ProcessingDeadlineMs int64             `cbor:"processing_deadline_ms"`
	DeadlineAtMs         int64             `cbor:"deadline_at_ms,omitempty"`
	IdempotencyKey       string            `cbor:"idempotency_key,omitempty"`
	ExpiresAtMs          int64             `cbor:"expires_at_ms,omitempty"`
	Headers              map[string]string `cbor:"headers,omitempty"`
	CreatedAtMs          int64             `cbor:"created_at_ms,omitempty"`
}

// FetchTaskRequest asks the broker for pending work.
type FetchTaskRequest struct {
	Namespace    string `cbor:"namespace,omitempty"`
	MaxTaskCount int32  `cbor:"max_task_count"`
	Host         string `cbor:"host,omitempty"`
}

// FetchTaskResponse carries at most one activation.
type FetchTaskResponse struct {
	Activation *ActivationMessage `cbor:"activation,omitempty"`
}

// SetTaskStatusRequest reports the outcome of one delivery.
type SetTaskStatusRequest struct {
	ID               string  `cbor:"id"`
	Status           string  `cbor:"status"`
	Host             string  `cbor:"host,omitempty"`
	ReceiveTimestamp float64 `cbor:"receive_timestamp,omitempty"`
	RetryDelayMs     int64   `cbor:"retry_delay_ms,omitempty"`
	Error            string  `cbor:"error,omitempty"`
}

// SetTaskStatusResponse acknowledges a status update.
type SetTaskStatusResponse struct{}

// ProduceTaskRequest submits a new activation on a topic.
type ProduceTaskRequest struct {
	Topic      string            `cbor:"topic"`
	Activation ActivationMessage `cbor:"activation"`
}

// ProduceTaskResponse acknowledges a produced activation.
type ProduceTaskResponse struct{}

// ActivationToMessage converts an activation for the wire.
func ActivationToMessage(a domain.Activation) ActivationMessage {
	return ActivationMessage{
		ID:                   a.ID,
		Namespace:            a.Namespace,
		TaskName:             a.TaskName,
		Payload:              a.Payload,
		Attempt:              uint32(a.Attempt),
		ProcessingDeadlineMs: a.ProcessingDeadline.Milliseconds(),
		DeadlineAtMs:         toMillis(a.DeadlineAt),
		IdempotencyKey:       a.IdempotencyKey,
		ExpiresAtMs:          toMillis(a.ExpiresAt),
		Headers:              a.Headers,
		CreatedAtMs:          toMillis(a.CreatedAt),
	}
}

// ActivationFromMessage converts a wire activation back to the domain.
func ActivationFromMessage(m ActivationMessage) domain.Activation {
	return domain.Activation{
		ID:                 m.ID,
		Namespace:          m.Namespace,
		TaskName:           m.TaskName,
		Payload:            m.Payload,
		Attempt:            uint(m.Attempt),
		ProcessingDeadline: time.Duration(m.ProcessingDeadlineMs) * time.Millisecond,
		DeadlineAt:         fromMillis(m.DeadlineAtMs),
		IdempotencyKey:     m.IdempotencyKey,
		ExpiresAt:          fromMillis(m.ExpiresAtMs),
		Headers:            m.Headers,
		CreatedAt:          fromMillis(m.CreatedAtMs),
	}
}

// ResultToRequest converts a processing result for the wire.
func ResultToRequest(r domain.ProcessingResult) SetTaskStatusRequest {
	req := SetTaskStatusRequest{
		ID:               r.TaskID,
		Status:           r.Status.String(),
		Host:             r.Host,
		ReceiveTimestamp: r.ReceiveTimestamp(),
		RetryDelayMs:     r.RetryDelay.Milliseconds(),
	}
	if r.Err != nil {
		req.Error = r.Err.Error()
	}
	return req
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
