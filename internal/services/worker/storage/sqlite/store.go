package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/taskworker/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/taskworker/internal/services/worker/storage"
	"github.com/louisbranch/taskworker/internal/services/worker/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed worker attempt and completion persistence.
// Its completion ledger is local to one host.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

// Open opens a worker SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, clock: time.Now}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordAttempt persists one worker processing attempt.
func (s *Store) RecordAttempt(ctx context.Context, attempt storage.AttemptRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	attempt.ActivationID = strings.TrimSpace(attempt.ActivationID)
	attempt.Namespace = strings.TrimSpace(attempt.Namespace)
	attempt.TaskName = strings.TrimSpace(attempt.TaskName)
	attempt.Host = strings.TrimSpace(attempt.Host)
	attempt.Status = strings.TrimSpace(attempt.Status)
	attempt.LastError = strings.TrimSpace(attempt.LastError)
	if attempt.ActivationID == "" {
		return fmt.Errorf("activation id is required")
	}
	if attempt.Namespace == "" || attempt.TaskName == "" {
		return fmt.Errorf("namespace and task name are required")
	}
	if attempt.Status == "" {
		return fmt.Errorf("status is required")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.clock().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO worker_attempts (
	activation_id,
	namespace,
	task_name,
	host,
	status,
	attempt,
	last_error,
	duration_ms,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		attempt.ActivationID,
		attempt.Namespace,
		attempt.TaskName,
		attempt.Host,
		attempt.Status,
		attempt.Attempt,
		attempt.LastError,
		attempt.Duration.Milliseconds(),
		attempt.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListAttempts lists newest-first attempt records.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]storage.AttemptRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	activation_id,
	namespace,
	task_name,
	host,
	status,
	attempt,
	last_error,
	duration_ms,
	created_at
FROM worker_attempts
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	records := make([]storage.AttemptRecord, 0, limit)
	for rows.Next() {
		var record storage.AttemptRecord
		var durationMs, createdAt int64
		if err := rows.Scan(
			&record.ID,
			&record.ActivationID,
			&record.Namespace,
			&record.TaskName,
			&record.Host,
			&record.Status,
			&record.Attempt,
			&record.LastError,
			&durationMs,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		record.Duration = time.Duration(durationMs) * time.Millisecond
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return records, nil
}

// IsComplete reports whether key has a completion marker that has not expired.
func (s *Store) IsComplete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}

	var expiresAt int64
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT expires_at
FROM worker_completions
WHERE idempotency_key = ?
`, key)
	if err := row.Scan(&expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check completion: %w", err)
	}
	return s.clock().UTC().UnixMilli() < expiresAt, nil
}

// MarkComplete stores or refreshes a completion marker for key.
func (s *Store) MarkComplete(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("completion key is required")
	}
	if ttl <= 0 {
		ttl = storage.DefaultCompletionTTL
	}
	now := s.clock().UTC()

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO worker_completions (idempotency_key, completed_at, expires_at)
VALUES (?, ?, ?)
ON CONFLICT (idempotency_key) DO UPDATE SET
	completed_at = excluded.completed_at,
	expires_at = excluded.expires_at
`,
		key,
		now.UnixMilli(),
		now.Add(ttl).UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("mark completion: %w", err)
	}
	return nil
}

// PurgeExpiredCompletions deletes markers that expired before now and
// returns how many were removed.
func (s *Store) PurgeExpiredCompletions(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM worker_completions
WHERE expires_at <= ?
`, s.clock().UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge completions: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge completions rows affected: %w", err)
	}
	return removed, nil
}

var (
	_ storage.AttemptStore    = (*Store)(nil)
	_ storage.CompletionStore = (*Store)(nil)
)
