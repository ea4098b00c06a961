package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a reminder row does not exist.
var ErrNotFound = errors.New("reminder: not found")

// Reminder is a single pre-due notification row.
type Reminder struct {
	ID        uuid.UUID
	TaskID    uuid.UUID
	OwnerID   uuid.UUID
	Offset    string
	Channels  []string
	SentAt    *time.Time
	CreatedAt time.Time
}

// Due is a reminder joined with the fields the scheduler needs from
// its owning task, without exposing the task store's internals.
type Due struct {
	Reminder
	TaskTitle       string
	TaskDescription *string
	DueAt           time.Time
	// OwnerEmail is populated by the scheduler from a user directory
	// lookup, not from this query; the reminder store has no user
	// table of its own.
	OwnerEmail string
}

// Repository provides reminder persistence. Rows are unsorted per the
// store's spec; callers that need an order impose it themselves.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reminder repository over pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgx.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *Repository) execer(tx pgx.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.pool
}

// Create inserts rem, minting an id if unset. A reminder exists only
// for a task with a due timestamp; callers are expected to have
// validated that before calling.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, rem *Reminder) error {
	if rem.ID == uuid.Nil {
		rem.ID = uuid.New()
	}
	query := `
		INSERT INTO task_reminders (id, task_id, owner_id, fire_offset, channels)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	return r.execer(tx).QueryRow(ctx, query, rem.ID, rem.TaskID, rem.OwnerID, rem.Offset, rem.Channels).
		Scan(&rem.CreatedAt)
}

// ListByTaskID returns every reminder attached to taskID.
func (r *Repository) ListByTaskID(ctx context.Context, taskID uuid.UUID) ([]*Reminder, error) {
	query := `
		SELECT id, task_id, owner_id, fire_offset, channels, sent_at, created_at
		FROM task_reminders
		WHERE task_id = $1
	`
	rows, err := r.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []*Reminder
	for rows.Next() {
		rem := &Reminder{}
		if err := rows.Scan(&rem.ID, &rem.TaskID, &rem.OwnerID, &rem.Offset, &rem.Channels, &rem.SentAt, &rem.CreatedAt); err != nil {
			return nil, err
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

// ListCandidates returns every unsent reminder belonging to an
// incomplete, due task, irrespective of offset: the scheduler itself
// decides which of these have actually crossed their firing window,
// since the offset determines when due_at - offset <= now, and that
// comparison depends on parsing fire_offset in Go rather than SQL.
func (r *Repository) ListCandidates(ctx context.Context) ([]*Due, error) {
	query := `
		SELECT r.id, r.task_id, r.owner_id, r.fire_offset, r.channels, r.sent_at, r.created_at,
			t.title, t.description, t.due_at
		FROM task_reminders r
		JOIN tasks t ON t.id = r.task_id
		WHERE r.sent_at IS NULL AND t.completed = false AND t.due_at IS NOT NULL
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*Due
	for rows.Next() {
		d := &Due{}
		if err := rows.Scan(
			&d.ID, &d.TaskID, &d.OwnerID, &d.Offset, &d.Channels, &d.SentAt, &d.CreatedAt,
			&d.TaskTitle, &d.TaskDescription, &d.DueAt,
		); err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

// MarkSent stamps sent_at for id, but only if it is still NULL, so a
// racing scheduler tick (or a retry after a crash) can never move
// sent_at backward or re-fire a reminder. Returns ErrNotFound if the
// row doesn't exist or was already marked sent by someone else.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, now time.Time) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE task_reminders SET sent_at = $2 WHERE id = $1 AND sent_at IS NULL`, id, now)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
