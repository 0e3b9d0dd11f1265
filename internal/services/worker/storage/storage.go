// Package storage defines the worker's persistence contracts.
package storage

import (
	"context"
	"time"
)

// DefaultCompletionTTL bounds how long a completion marker suppresses
// duplicate deliveries.
const DefaultCompletionTTL = 24 * time.Hour

// CompletionStore is the at-most-once ledger for idempotent activations.
//
// Implementations shared across worker processes must be out-of-process.
// Check-then-mark is not atomic; a race costs at most one duplicate run.
type CompletionStore interface {
	// IsComplete reports whether a non-expired marker exists for key.
	IsComplete(ctx context.Context, key string) (bool, error)
	// MarkComplete records a marker for key that expires after ttl.
	MarkComplete(ctx context.Context, key string, ttl time.Duration) error
}

// AttemptRecord is one durable worker processing outcome record.
type AttemptRecord struct {
	ID           int64
	ActivationID string
	Namespace    string
	TaskName     string
	Host         string
	Status       string
	Attempt      int32
	LastError    string
	Duration     time.Duration
	CreatedAt    time.Time
}

// AttemptStore persists worker processing attempt records.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt AttemptRecord) error
	ListAttempts(ctx context.Context, limit int) ([]AttemptRecord, error)
}
