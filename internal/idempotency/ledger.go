// Package idempotency implements the Idempotency Ledger (C4): a shared
// claim table that lets every consumer in the fabric decide, with one
// conditional insert (plus one lookup when a claim already exists),
// whether it has already processed a given event.
//
// Grounded on internal/job/queue.go's Enqueue, which uses
// INSERT ... ON CONFLICT (idempotency_key) DO NOTHING RETURNING id and
// treats pgx.ErrNoRows as "already exists". That single-column pattern
// is generalized here to the composite primary key (event_id,
// consumer_service) the spec's idempotency entry names, since the same
// event fans out to more than one consumer service and each needs its
// own claim.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outcome reports what Claim did.
type Outcome int

const (
	// Claimed means this call is the first to process the event for
	// this consumer; the caller should proceed.
	Claimed Outcome = iota
	// AlreadyProcessed means a prior call already claimed and
	// succeeded; the caller should skip processing and ack.
	AlreadyProcessed
	// PreviouslyFailed means a prior claim exists but was never marked
	// processed (it failed, or is still in flight or was abandoned); the
	// caller may retry processing.
	PreviouslyFailed
)

// Ledger is the Idempotency Ledger (C4), backed by a PostgreSQL table
// with primary key (event_id, consumer_service).
type Ledger struct {
	db *pgxpool.Pool
}

// New builds a Ledger over db.
func New(db *pgxpool.Pool) *Ledger {
	return &Ledger{db: db}
}

// Claim attempts to record that consumer is about to process eventID.
// A fresh row wins Claimed. If a row already exists and its
// processed_at is set, the event was already handled successfully and
// Claim returns AlreadyProcessed. If the existing row's processed_at
// is still NULL (an earlier claim never completed, e.g. the consumer
// crashed mid-processing) Claim returns PreviouslyFailed so the caller
// can retry.
func (l *Ledger) Claim(ctx context.Context, eventID uuid.UUID, consumer, eventType string, now time.Time) (Outcome, error) {
	const insert = `
		INSERT INTO idempotency_entries (event_id, consumer_service, event_type, claimed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, consumer_service) DO NOTHING
		RETURNING event_id
	`

	var returned uuid.UUID
	err := l.db.QueryRow(ctx, insert, eventID, consumer, eventType, now).Scan(&returned)
	if err == nil {
		return Claimed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("idempotency: claim: %w", err)
	}

	const lookup = `
		SELECT processed_at IS NOT NULL
		FROM idempotency_entries
		WHERE event_id = $1 AND consumer_service = $2
	`
	var processed bool
	if err := l.db.QueryRow(ctx, lookup, eventID, consumer).Scan(&processed); err != nil {
		return 0, fmt.Errorf("idempotency: lookup existing claim: %w", err)
	}
	if processed {
		return AlreadyProcessed, nil
	}
	return PreviouslyFailed, nil
}

// MarkProcessed records that consumer finished eventID successfully.
func (l *Ledger) MarkProcessed(ctx context.Context, eventID uuid.UUID, consumer string, now time.Time) error {
	const query = `
		UPDATE idempotency_entries
		SET processed_at = $3, last_error = NULL
		WHERE event_id = $1 AND consumer_service = $2
	`
	if _, err := l.db.Exec(ctx, query, eventID, consumer, now); err != nil {
		return fmt.Errorf("idempotency: mark processed: %w", err)
	}
	return nil
}

// RecordFailure records that consumer's attempt at eventID failed,
// leaving processed_at NULL so a later Claim reports PreviouslyFailed
// and allows a retry.
func (l *Ledger) RecordFailure(ctx context.Context, eventID uuid.UUID, consumer string, cause error) error {
	const query = `
		UPDATE idempotency_entries
		SET last_error = $3
		WHERE event_id = $1 AND consumer_service = $2
	`
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := l.db.Exec(ctx, query, eventID, consumer, msg); err != nil {
		return fmt.Errorf("idempotency: record failure: %w", err)
	}
	return nil
}

// Purge deletes claimed entries older than the retention window,
// measured from claimed_at, and reports how many rows were removed.
// Intended to be run periodically so the ledger does not grow
// unbounded; the spec's default retention is 168 hours (7 days).
func (l *Ledger) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	const query = `DELETE FROM idempotency_entries WHERE claimed_at < $1`
	tag, err := l.db.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("idempotency: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
