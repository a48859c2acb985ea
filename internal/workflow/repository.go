package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteTaskRepository keeps build task history in the build_tasks table.
type SQLiteTaskRepository struct {
	db *sql.DB
}

// NewSQLiteTaskRepository creates a repository over an open database.
func NewSQLiteTaskRepository(db *sql.DB) *SQLiteTaskRepository {
	return &SQLiteTaskRepository{db: db}
}

// SaveTask inserts or updates a task snapshot.
func (r *SQLiteTaskRepository) SaveTask(ctx context.Context, info TaskInfo) error {
	var finished any
	if info.FinishedAt != nil {
		finished = info.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO build_tasks (id, device_id, targets, status, placed, attempts, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     status = excluded.status,
		     placed = excluded.placed,
		     attempts = excluded.attempts,
		     error = excluded.error,
		     finished_at = excluded.finished_at`,
		info.ID, info.Device, info.Targets, string(info.Status), info.Placed, info.Attempts, info.Error,
		info.StartedAt.UTC().Format(time.RFC3339Nano), finished,
	)
	if err != nil {
		return fmt.Errorf("saving build task: %w", err)
	}
	return nil
}

// GetTask returns a stored task.
func (r *SQLiteTaskRepository) GetTask(ctx context.Context, id string) (TaskInfo, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, device_id, targets, status, placed, attempts, error, started_at, finished_at
		 FROM build_tasks WHERE id = ?`, id)
	info, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TaskInfo{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return info, err
}

// ListTasks returns stored tasks, most recent first. An empty deviceID
// matches every device; limit <= 0 means 50.
func (r *SQLiteTaskRepository) ListTasks(ctx context.Context, deviceID string, limit int) ([]TaskInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, device_id, targets, status, placed, attempts, error, started_at, finished_at
		 FROM build_tasks`
	var args []any
	if deviceID != "" {
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing build tasks: %w", err)
	}
	defer rows.Close()

	var tasks []TaskInfo
	for rows.Next() {
		info, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating build tasks: %w", err)
	}
	return tasks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (TaskInfo, error) {
	var (
		info     TaskInfo
		status   string
		started  string
		finished sql.NullString
	)
	if err := s.Scan(&info.ID, &info.Device, &info.Targets, &status, &info.Placed, &info.Attempts,
		&info.Error, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TaskInfo{}, err
		}
		return TaskInfo{}, fmt.Errorf("scanning build task: %w", err)
	}
	info.Status = Status(status)

	var err error
	if info.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return TaskInfo{}, fmt.Errorf("parsing started_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return TaskInfo{}, fmt.Errorf("parsing finished_at: %w", err)
		}
		info.FinishedAt = &t
	}
	return info, nil
}
