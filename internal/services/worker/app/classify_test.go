package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/louisbranch/taskworker/internal/services/worker/domain"
)

func TestClassifyWithoutPolicyAlwaysFails(t *testing.T) {
	errs := []error{
		errors.New("plain"),
		domain.Retry(errors.New("asked")),
		domain.KindError(domain.KindTimeout, errors.New("slow")),
		context.DeadlineExceeded,
	}
	for _, err := range errs {
		if status, _ := classify(nil, 1, err); status != domain.StatusFailure {
			t.Fatalf("classify(nil, %v) = %v, want FAILURE", err, status)
		}
	}
}

func TestClassifyRetriesUntilLastAttempt(t *testing.T) {
	for _, maxAttempts := range []uint{1, 2, 3, 5} {
		policy := domain.NewRetryPolicy(maxAttempts)
		for attempt := uint(1); attempt <= maxAttempts; attempt++ {
			status, delay := classify(policy, attempt, errors.New("flaky"))
			want := domain.StatusRetry
			if attempt == maxAttempts {
				want = domain.StatusFailure
			}
			if status != want {
				t.Fatalf("max %d attempt %d = %v, want %v", maxAttempts, attempt, status, want)
			}
			if status == domain.StatusRetry && delay != policy.Backoff(attempt) {
				t.Fatalf("max %d attempt %d delay = %v, want %v", maxAttempts, attempt, delay, policy.Backoff(attempt))
			}
		}
	}
}

func TestClassifyHonorsRetryableKinds(t *testing.T) {
	policy := domain.NewRetryPolicy(3, domain.KindTimeout)

	tests := []struct {
		name string
		err  error
		want domain.Status
	}{
		{"matching kind", domain.KindError(domain.KindTimeout, errors.New("slow")), domain.StatusRetry},
		{"context deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), domain.StatusRetry},
		{"other kind", errors.New("boom"), domain.StatusFailure},
		{"forced retry", domain.Retry(errors.New("boom")), domain.StatusRetry},
		{"permanent wins", domain.Permanent(domain.KindError(domain.KindTimeout, errors.New("slow"))), domain.StatusFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, _ := classify(policy, 1, tt.err); status != tt.want {
				t.Fatalf("status = %v, want %v", status, tt.want)
			}
		})
	}
}

func TestClassifyExhaustedAction(t *testing.T) {
	policy := domain.NewRetryPolicy(2)
	policy.OnExhausted = domain.LastActionDeadletter

	if status, _ := classify(policy, 2, errors.New("flaky")); status != domain.StatusDeadletter {
		t.Fatalf("exhausted status = %v, want DEADLETTER", status)
	}
	// Non-retryable errors fail even when exhaustion would deadletter.
	if status, _ := classify(policy, 1, domain.Permanent(errors.New("bad"))); status != domain.StatusFailure {
		t.Fatalf("permanent status = %v, want FAILURE", status)
	}
}

func TestClassifyTreatsZeroAttemptAsFirst(t *testing.T) {
	if status, _ := classify(domain.NewRetryPolicy(2), 0, errors.New("flaky")); status != domain.StatusRetry {
		t.Fatalf("status = %v, want RETRY", status)
	}
}
