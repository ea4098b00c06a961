package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is the closed set of delivery outcomes recorded per channel
// attempt.
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Record is one row of the notifications table: the outcome of sending
// a single reminder through a single channel. TaskID is nullable
// because the task may have been deleted by the time the record is
// written.
type Record struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	TaskID    *uuid.UUID
	Channel   string
	Status    Status
	Message   string
	Error     *string
	CreatedAt time.Time
}

// Repository persists notification delivery records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a delivery-record repository over pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes rec, minting an id if one is not already set.
func (r *Repository) Insert(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO notifications (id, owner_id, task_id, channel, status, message, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	return r.pool.QueryRow(ctx, query,
		rec.ID, rec.OwnerID, rec.TaskID, rec.Channel, rec.Status, rec.Message, rec.Error,
	).Scan(&rec.CreatedAt)
}

// ListByOwner returns the most recent delivery records for ownerID,
// newest first, capped at limit.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, owner_id, task_id, channel, status, message, error, created_at
		FROM notifications
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.TaskID, &rec.Channel,
			&rec.Status, &rec.Message, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
