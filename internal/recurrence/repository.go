package recurrence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a recurrence row does not exist.
var ErrNotFound = errors.New("recurrence: not found")

// Config is a recurrence configuration linked to a task.
type Config struct {
	ID         uuid.UUID
	TaskID     uuid.UUID
	Pattern    Pattern
	Interval   int
	DaysOfWeek []int
	DayOfMonth int
	NextFireAt time.Time
	Active     bool
	CreatedAt  time.Time
}

// Repository provides recurrence persistence, queried by owning task
// id rather than by id directly, per the store's one-way-reference
// rule: the task holds a pointer to its recurrence, the recurrence
// never navigates back to the task in memory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recurrence repository over pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type execer interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgx.CommandTag, error)
}

func (r *Repository) execer(tx pgx.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.pool
}

// Create inserts cfg, minting an id if unset.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, cfg *Config) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	query := `
		INSERT INTO task_recurrences (id, task_id, pattern, interval, days_of_week,
			day_of_month, next_fire_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	return r.execer(tx).QueryRow(ctx, query,
		cfg.ID, cfg.TaskID, cfg.Pattern, cfg.Interval, cfg.DaysOfWeek, cfg.DayOfMonth,
		cfg.NextFireAt, cfg.Active,
	).Scan(&cfg.CreatedAt)
}

// GetByTaskID returns the active recurrence owned by taskID, if any.
func (r *Repository) GetByTaskID(ctx context.Context, taskID uuid.UUID) (*Config, error) {
	query := `
		SELECT id, task_id, pattern, interval, days_of_week, day_of_month, next_fire_at,
			active, created_at
		FROM task_recurrences
		WHERE task_id = $1 AND active = true
	`
	cfg := &Config{}
	err := r.pool.QueryRow(ctx, query, taskID).Scan(
		&cfg.ID, &cfg.TaskID, &cfg.Pattern, &cfg.Interval, &cfg.DaysOfWeek, &cfg.DayOfMonth,
		&cfg.NextFireAt, &cfg.Active, &cfg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return cfg, nil
}

// UpdateNextFire advances a recurrence's next_fire_at, used after the
// recurrence engine derives a successor's due date.
func (r *Repository) UpdateNextFire(ctx context.Context, tx pgx.Tx, id uuid.UUID, nextFireAt time.Time) error {
	_, err := r.execer(tx).Exec(ctx, `UPDATE task_recurrences SET next_fire_at = $2 WHERE id = $1`, id, nextFireAt)
	return err
}

// Deactivate terminally disables a recurrence. Deactivation is
// terminal: a deactivated recurrence never re-activates, so there is
// no corresponding Activate.
func (r *Repository) Deactivate(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := r.execer(tx).Exec(ctx, `UPDATE task_recurrences SET active = false WHERE id = $1`, id)
	return err
}
