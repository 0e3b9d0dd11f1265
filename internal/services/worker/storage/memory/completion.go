// Package memory provides an in-process completion store for tests and
// single-process development runs.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/taskworker/internal/services/worker/storage"
)

// CompletionStore keeps completion markers in a map guarded by a mutex.
type CompletionStore struct {
	mu      sync.Mutex
	markers map[string]time.Time
	clock   func() time.Time
}

// NewCompletionStore creates an empty store. A nil clock uses time.Now.
func NewCompletionStore(clock func() time.Time) *CompletionStore {
	if clock == nil {
		clock = time.Now
	}
	return &CompletionStore{markers: make(map[string]time.Time), clock: clock}
}

// IsComplete reports whether key has a marker that has not expired.
func (s *CompletionStore) IsComplete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt, ok := s.markers[key]
	if !ok {
		return false, nil
	}
	if !s.clock().Before(expiresAt) {
		delete(s.markers, key)
		return false, nil
	}
	return true, nil
}

// MarkComplete stores a marker for key until ttl elapses.
func (s *CompletionStore) MarkComplete(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("completion key is required")
	}
	if ttl <= 0 {
		ttl = storage.DefaultCompletionTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[key] = s.clock().Add(ttl)
	return nil
}

var _ storage.CompletionStore = (*CompletionStore)(nil)
