package domain

import (
	"fmt"
	"slices"
	"time"

	apperrors "github.com/louisbranch/taskworker/internal/platform/errors"
)

// LastAction selects what the broker should do with an activation once its
// retry attempts are exhausted.
type LastAction int

const (
	// LastActionDiscard reports FAILURE; the broker drops the activation.
	LastActionDiscard LastAction = iota
	// LastActionDeadletter reports DEADLETTER; the broker routes the
	// activation to the namespace deadletter topic.
	LastActionDeadletter
)

func (a LastAction) String() string {
	switch a {
	case LastActionDiscard:
		return "discard"
	case LastActionDeadletter:
		return "deadletter"
	default:
		return fmt.Sprintf("LastAction(%d)", int(a))
	}
}

const (
	defaultRetryInitialDelay = time.Second
	defaultRetryMaxDelay     = 5 * time.Minute
	defaultRetryMultiplier   = 2.0
)

// RetryPolicy describes how many attempts a task gets and which failures
// qualify for another one.
type RetryPolicy struct {
	// MaxAttempts is the total number of permitted executions, at least 1.
	MaxAttempts uint
	// RetryableKinds lists failure kinds eligible for retry. Empty means any
	// failure is retryable.
	RetryableKinds []ErrorKind
	// OnExhausted decides the status reported once attempts run out.
	OnExhausted LastAction
	// InitialDelay, MaxDelay and Multiplier shape the suggested redelivery
	// delay. Zero values fall back to 1s, 5m and 2.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NewRetryPolicy returns a policy allowing maxAttempts executions for the
// given kinds (any kind when none are given).
func NewRetryPolicy(maxAttempts uint, kinds ...ErrorKind) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:    maxAttempts,
		RetryableKinds: slices.Clone(kinds),
	}
}

// Validate checks the policy invariants.
func (p *RetryPolicy) Validate() error {
	if p == nil {
		return nil
	}
	if p.MaxAttempts < 1 {
		return apperrors.New(apperrors.CodeInvalidRetryPolicy, "retry max attempts must be at least 1")
	}
	if p.Multiplier != 0 && p.Multiplier < 1 {
		return apperrors.New(apperrors.CodeInvalidRetryPolicy, "retry multiplier must be >= 1")
	}
	if p.InitialDelay < 0 || p.MaxDelay < 0 {
		return apperrors.New(apperrors.CodeInvalidRetryPolicy, "retry delays must not be negative")
	}
	return nil
}

// IsRetryable reports whether kind is eligible for retry under this policy.
func (p *RetryPolicy) IsRetryable(kind ErrorKind) bool {
	if p == nil {
		return false
	}
	if len(p.RetryableKinds) == 0 {
		return true
	}
	return slices.Contains(p.RetryableKinds, kind)
}

// HasAttemptsRemaining reports whether another attempt is allowed after attempt.
func (p *RetryPolicy) HasAttemptsRemaining(attempt uint) bool {
	return p != nil && attempt < p.MaxAttempts
}

// ShouldRetry combines the attempt and kind checks.
func (p *RetryPolicy) ShouldRetry(attempt uint, kind ErrorKind) bool {
	return p.HasAttemptsRemaining(attempt) && p.IsRetryable(kind)
}

// Backoff returns the delay suggested to the broker before the attempt
// following attempt. It is exponential in attempt and capped at MaxDelay.
func (p *RetryPolicy) Backoff(attempt uint) time.Duration {
	if p == nil {
		return 0
	}
	initial := p.InitialDelay
	if initial <= 0 {
		initial = defaultRetryInitialDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = defaultRetryMultiplier
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(initial)
	for i := uint(1); i < attempt; i++ {
		delay *= multiplier
		if delay >= float64(maxDelay) {
			return maxDelay
		}
	}
	if delay > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(delay)
}
