// Package redis provides the shared completion store backed by Redis.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/louisbranch/taskworker/internal/services/worker/storage"
)

const (
	defaultKeyPrefix = "taskworker:completed:"
	defaultOpTimeout = 2 * time.Second
)

// Options configures the Redis completion store.
type Options struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces marker keys. Defaults to "taskworker:completed:".
	KeyPrefix string
	// OpTimeout bounds each Redis round trip. Defaults to 2s.
	OpTimeout time.Duration
}

// CompletionStore keeps completion markers as expiring Redis keys so every
// worker process sees the same ledger.
type CompletionStore struct {
	client    goredis.UniversalClient
	prefix    string
	opTimeout time.Duration
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, opts Options) (*CompletionStore, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	store := New(client, opts.KeyPrefix, opts.OpTimeout)

	pingCtx, cancel := context.WithTimeout(ctx, store.opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return store, nil
}

// New wraps an existing client.
func New(client goredis.UniversalClient, prefix string, opTimeout time.Duration) *CompletionStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &CompletionStore{client: client, prefix: prefix, opTimeout: opTimeout}
}

// Close releases the Redis client.
func (s *CompletionStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// IsComplete reports whether a marker exists for key.
func (s *CompletionStore) IsComplete(ctx context.Context, key string) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("redis completion store is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	count, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check completion marker: %w", err)
	}
	return count > 0, nil
}

// MarkComplete sets a marker for key expiring after ttl.
func (s *CompletionStore) MarkComplete(ctx context.Context, key string, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis completion store is not configured")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("completion key is required")
	}
	if ttl <= 0 {
		ttl = storage.DefaultCompletionTTL
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	value := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("write completion marker: %w", err)
	}
	return nil
}

var _ storage.CompletionStore = (*CompletionStore)(nil)
