package execlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Filter selects execution records. Empty fields match everything.
type Filter struct {
	Device  string
	Service string
	Status  string // SUCCESS or FAILURE
	Limit   int    // default 50, max 200
	Offset  int
}

// ListResult is one page of execution records, most recent first.
type ListResult struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// Repository stores and queries execution records.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository mirrors the execution log into the execution_records table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Write implements Sink.
func (r *SQLiteRepository) Write(ctx context.Context, rec Record) error {
	return r.Create(ctx, &rec)
}

// Create inserts rec. ID and Timestamp are generated when empty.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = "exe-" + uuid.NewString()[:8]
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	success := 0
	if rec.Success {
		success = 1
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO execution_records (id, device_id, service, success, duration_ms, error_kind, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Device, rec.Service, success,
		rec.Duration.Milliseconds(), rec.ErrorKind, rec.Error,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting execution record: %w", err)
	}
	return nil
}

// List returns records matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Device != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.Device)
	}
	if filter.Service != "" {
		conditions = append(conditions, "service = ?")
		args = append(args, filter.Service)
	}
	switch strings.ToUpper(filter.Status) {
	case "":
	case StatusSuccess:
		conditions = append(conditions, "success = 1")
	case StatusFailure:
		conditions = append(conditions, "success = 0")
	default:
		return nil, fmt.Errorf("invalid status filter %q", filter.Status)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM execution_records %s", where) //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting execution records: %w", err)
	}

	// rowid breaks ties between records stamped in the same instant.
	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions
		`SELECT id, device_id, service, success, duration_ms, error_kind, error, created_at
		 FROM execution_records %s ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying execution records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var success int
		var durationMS int64
		var createdAt string

		if err := rows.Scan(&rec.ID, &rec.Device, &rec.Service, &success,
			&durationMS, &rec.ErrorKind, &rec.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning execution record: %w", err)
		}
		rec.Success = success == 1
		rec.Duration = time.Duration(durationMS) * time.Millisecond

		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing execution record timestamp %q: %w", createdAt, err)
		}
		rec.Timestamp = t

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating execution records: %w", err)
	}

	return &ListResult{
		Records: records,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
