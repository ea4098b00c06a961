package task

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound collapses not-found and not-owned into one error so
// repository callers can't distinguish "doesn't exist" from "belongs
// to someone else".
var ErrNotFound = errors.New("task: not found")

// ErrValidation marks a caller error: malformed input or a missing
// required field. Never retried.
var ErrValidation = errors.New("task: validation failed")

// Priority is the closed set of task priorities.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Task is a single owner's task record.
type Task struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	Title        string
	Description  *string
	Completed    bool
	Priority     Priority
	Tags         []string
	DueAt        *time.Time
	RecurrenceID *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// Repository provides ownership-checked task persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a task repository over pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const taskColumns = `id, owner_id, title, description, completed, priority, tags,
	due_at, recurrence_id, created_at, updated_at, completed_at`

func scanTask(row pgx.Row) (*Task, error) {
	t := &Task{}
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Completed, &t.Priority, &t.Tags,
		&t.DueAt, &t.RecurrenceID, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// Create inserts task, minting an id if one is not already set.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, t *Task) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	query := `
		INSERT INTO tasks (id, owner_id, title, description, completed, priority, tags,
			due_at, recurrence_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	exec := queryRower(ctx, r.pool, tx)
	err := exec.QueryRow(ctx, query,
		t.ID, t.OwnerID, t.Title, t.Description, t.Completed, t.Priority, t.Tags,
		t.DueAt, t.RecurrenceID,
	).Scan(&t.CreatedAt, &t.UpdatedAt)

	return err
}

// GetByID fetches a task owned by ownerID. Returns ErrNotFound if the
// task does not exist or belongs to someone else.
func (r *Repository) GetByID(ctx context.Context, id, ownerID uuid.UUID) (*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND owner_id = $2`
	return scanTask(r.pool.QueryRow(ctx, query, id, ownerID))
}

// ListOptions filters and paginates List.
type ListOptions struct {
	Completed *bool
	OverdueOnly bool
	Limit       int
	Offset      int
}

// List returns tasks owned by ownerID, newest-created first by default.
func (r *Repository) List(ctx context.Context, ownerID uuid.UUID, opts ListOptions) ([]*Task, int, error) {
	where := `WHERE owner_id = $1`
	args := []interface{}{ownerID}
	argNum := 2

	if opts.Completed != nil {
		where += ` AND completed = $` + strconv.Itoa(argNum)
		args = append(args, *opts.Completed)
		argNum++
	}
	if opts.OverdueOnly {
		where += ` AND completed = false AND due_at IS NOT NULL AND due_at < NOW()`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		listQuery += ` LIMIT $` + strconv.Itoa(argNum)
		args = append(args, opts.Limit)
		argNum++
	}
	if opts.Offset > 0 {
		listQuery += ` OFFSET $` + strconv.Itoa(argNum)
		args = append(args, opts.Offset)
	}

	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

// Update persists every mutable field of t, scoped to (t.ID,
// t.OwnerID). Returns ErrNotFound if the row does not exist or is not
// owned by t.OwnerID.
func (r *Repository) Update(ctx context.Context, tx pgx.Tx, t *Task) error {
	query := `
		UPDATE tasks
		SET title = $3, description = $4, completed = $5, priority = $6, tags = $7,
			due_at = $8, recurrence_id = $9, completed_at = $10, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
		RETURNING updated_at
	`

	exec := queryRower(ctx, r.pool, tx)
	err := exec.QueryRow(ctx, query,
		t.ID, t.OwnerID, t.Title, t.Description, t.Completed, t.Priority, t.Tags,
		t.DueAt, t.RecurrenceID, t.CompletedAt,
	).Scan(&t.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Delete removes the task owned by ownerID. Returns ErrNotFound if it
// does not exist or is not owned by ownerID; callers that want
// idempotent delete semantics should treat ErrNotFound as a no-op.
func (r *Repository) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOverdue returns every incomplete, overdue task for ownerID.
func (r *Repository) ListOverdue(ctx context.Context, ownerID uuid.UUID) ([]*Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE owner_id = $1 AND completed = false AND due_at IS NOT NULL AND due_at < NOW()
		ORDER BY due_at ASC
	`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// queryRow is the minimal surface Create/Update need, satisfied by
// both *pgxpool.Pool and pgx.Tx, so callers can run either standalone
// or as part of a larger transaction.
type queryRow interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func queryRower(ctx context.Context, pool *pgxpool.Pool, tx pgx.Tx) queryRow {
	if tx != nil {
		return tx
	}
	return pool
}
