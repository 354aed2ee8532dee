package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint hits.
const pgUniqueViolation = "23505"

// taskCols is the standard SELECT column list for scanTasks.
const taskCols = `task_id, user_id, url, status, tags, summary,
	next_delivery, retries, fail_reason, created_at, updated_at`

// dequeueTasksSQL claims due pending tasks in submission order without
// blocking on rows already locked by a concurrent dequeue. The lock is held
// until the surrounding transaction advances next_delivery and commits.
const dequeueTasksSQL = `SELECT ` + taskCols + `
	FROM bookmark_task
	WHERE status = 'pending' AND next_delivery <= $1
	ORDER BY created_at
	LIMIT $2
	FOR UPDATE SKIP LOCKED`

// TaskStore manages the bookmark_task queue backed by PostgreSQL.
//
// The queue gives at-least-once delivery: Dequeue leases a task by advancing
// next_delivery instead of deleting the row, so a crashed consumer's task
// becomes visible again once the lease expires. Consumers must be idempotent.
//
// TaskStore is safe for concurrent use by multiple goroutines.
type TaskStore struct {
	pool         *pgxpool.Pool
	leaseWindow  time.Duration
	retryCeiling int
	logger       *slog.Logger
}

// NewTaskStore creates a TaskStore.
func NewTaskStore(pool *pgxpool.Pool, leaseWindow time.Duration, retryCeiling int, logger *slog.Logger) (*TaskStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if leaseWindow <= 0 {
		return nil, fmt.Errorf("lease window must be positive, got %s", leaseWindow)
	}
	if retryCeiling < 1 {
		return nil, fmt.Errorf("retry ceiling must be at least 1, got %d", retryCeiling)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		pool:         pool,
		leaseWindow:  leaseWindow,
		retryCeiling: retryCeiling,
		logger:       logger,
	}, nil
}

// Create inserts a pending task for the given submission. The task becomes
// deliverable immediately (next_delivery = now).
func (s *TaskStore) Create(ctx context.Context, userID uuid.UUID, url string, tags []string) (*Task, error) {
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	task := &Task{
		ID:     uuid.New(),
		UserID: userID,
		URL:    url,
		Status: TaskStatusPending,
		Tags:   tags,
	}

	row := s.pool.QueryRow(ctx, `INSERT INTO bookmark_task (task_id, user_id, url, status, tags)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING next_delivery, created_at, updated_at`,
		task.ID, task.UserID, task.URL, task.Status, task.Tags)
	if err := row.Scan(&task.NextDelivery, &task.CreatedAt, &task.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("task %s: %w", task.ID, ErrDuplicate)
		}
		return nil, fmt.Errorf("inserting task: %w", err)
	}

	s.logger.Debug("task created", "task_id", task.ID, "user_id", userID, "url", url)
	return task, nil
}

// Dequeue leases up to limit pending tasks due at now. Within a single
// transaction it selects due rows with FOR UPDATE SKIP LOCKED, then advances
// their next_delivery by the lease window before committing. Concurrent
// callers never receive the same task while a lease is live.
func (s *TaskStore) Dequeue(ctx context.Context, now time.Time, limit int) ([]*Task, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be at least 1, got %d", limit)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning dequeue transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, dequeueTasksSQL, now, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting due tasks: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		// Nothing due; commit to release the (empty) lock set promptly.
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("committing empty dequeue: %w", err)
		}
		return nil, nil
	}

	lease := now.Add(s.leaseWindow)
	ids := make([]uuid.UUID, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
		t.NextDelivery = lease
	}

	if _, err := tx.Exec(ctx, `UPDATE bookmark_task
		SET next_delivery = $1, updated_at = now()
		WHERE task_id = ANY($2)`, lease, ids); err != nil {
		return nil, fmt.Errorf("advancing lease: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing dequeue: %w", err)
	}

	s.logger.Debug("tasks dequeued", "count", len(tasks), "lease_until", lease)
	return tasks, nil
}

// Complete records the outcome of a processed task. A nil taskErr marks the
// task done. Otherwise the retry counter is incremented; while it stays under
// the ceiling the task remains pending and will be re-leased, once the
// ceiling is reached the task fails terminally with taskErr recorded.
func (s *TaskStore) Complete(ctx context.Context, task *Task, taskErr error) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}

	if taskErr == nil {
		if _, err := s.pool.Exec(ctx, `UPDATE bookmark_task
			SET status = 'done', updated_at = now()
			WHERE task_id = $1`, task.ID); err != nil {
			return fmt.Errorf("marking task done: %w", err)
		}
		task.Status = TaskStatusDone
		return nil
	}

	retries := int16(task.RetryCount() + 1)
	if int(retries) >= s.retryCeiling {
		reason := taskErr.Error()
		if _, err := s.pool.Exec(ctx, `UPDATE bookmark_task
			SET status = 'fail', retries = $2, fail_reason = $3, updated_at = now()
			WHERE task_id = $1`, task.ID, retries, reason); err != nil {
			return fmt.Errorf("marking task failed: %w", err)
		}
		task.Status = TaskStatusFail
		task.Retries = &retries
		task.FailReason = &reason
		s.logger.Warn("task failed terminally",
			"task_id", task.ID, "retries", retries, "reason", reason)
		return nil
	}

	if _, err := s.pool.Exec(ctx, `UPDATE bookmark_task
		SET retries = $2, updated_at = now()
		WHERE task_id = $1`, task.ID, retries); err != nil {
		return fmt.Errorf("incrementing task retries: %w", err)
	}
	task.Retries = &retries
	s.logger.Debug("task requeued", "task_id", task.ID, "retries", retries, "error", taskErr)
	return nil
}

// Get returns one task owned by the user.
func (s *TaskStore) Get(ctx context.Context, userID, taskID uuid.UUID) (*Task, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+taskCols+`
		FROM bookmark_task
		WHERE task_id = $1 AND user_id = $2`, taskID, userID)
	if err != nil {
		return nil, fmt.Errorf("selecting task: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return tasks[0], nil
}

// List returns the user's tasks, newest first.
func (s *TaskStore) List(ctx context.Context, userID uuid.UUID, limit int) ([]*Task, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be at least 1, got %d", limit)
	}
	rows, err := s.pool.Query(ctx, `SELECT `+taskCols+`
		FROM bookmark_task
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return scanTasks(rows)
}

// scanTasks drains rows into tasks, closing rows when done.
func scanTasks(rows pgx.Rows) ([]*Task, error) {
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.UserID, &t.URL, &t.Status, &t.Tags, &t.Summary,
			&t.NextDelivery, &t.Retries, &t.FailReason, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task rows: %w", err)
	}
	return tasks, nil
}
