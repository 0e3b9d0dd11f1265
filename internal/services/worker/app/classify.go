package app

import (
	"time"

	"github.com/louisbranch/taskworker/internal/services/worker/domain"
)

// classify maps a task error to the reported status and suggested retry
// delay. Permanent errors and tasks without a policy always fail.
func classify(policy *domain.RetryPolicy, attempt uint, err error) (domain.Status, time.Duration) {
	if attempt == 0 {
		attempt = 1
	}
	if policy == nil || domain.IsPermanent(err) {
		return domain.StatusFailure, 0
	}
	if !domain.IsRetryRequested(err) && !policy.IsRetryable(domain.KindOf(err)) {
		return domain.StatusFailure, 0
	}
	if policy.HasAttemptsRemaining(attempt) {
		return domain.StatusRetry, policy.Backoff(attempt)
	}
	if policy.OnExhausted == domain.LastActionDeadletter {
		return domain.StatusDeadletter, 0
	}
	return domain.StatusFailure, 0
}
