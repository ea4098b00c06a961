// Package recurrenceengine implements the Recurrence Engine consumer
// (C11). It lives in its own package, rather than alongside the pure
// calculator in internal/recurrence, because it depends on
// internal/task for successor creation while internal/task's service
// depends on internal/recurrence for the calculator and the
// recurrence store — folding the consumer into internal/recurrence
// would create an import cycle between the two.
package recurrenceengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskfabric/backbone/internal/event"
	"github.com/taskfabric/backbone/internal/idempotency"
	"github.com/taskfabric/backbone/internal/recurrence"
	"github.com/taskfabric/backbone/internal/task"
)

// ConsumerService is the idempotency ledger's consumer identity for
// this engine, named by the spec's recurrence engine operation.
const ConsumerService = "recurring-task-service"

// Claimer is the subset of idempotency.Ledger the engine needs.
type Claimer interface {
	Claim(ctx context.Context, eventID uuid.UUID, consumer, eventType string, now time.Time) (idempotency.Outcome, error)
	MarkProcessed(ctx context.Context, eventID uuid.UUID, consumer string, now time.Time) error
	RecordFailure(ctx context.Context, eventID uuid.UUID, consumer string, cause error) error
}

// TaskReader resolves the metadata of the just-completed task so the
// successor can carry the same title, description, priority, and tags.
// task.completed.v1 itself carries no metadata beyond the recurrence
// descriptor, so the engine reads it back from the task store.
type TaskReader interface {
	GetByID(ctx context.Context, id, ownerID uuid.UUID) (*task.Task, error)
}

// TaskCreator is the subset of task.Service the engine needs to spawn
// a successor task.
type TaskCreator interface {
	CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error)
}

// Engine is the Recurrence Engine (C11): it consumes task.completed.v1
// and, for recurring tasks, derives and creates the next occurrence.
//
// Grounded on internal/job/worker.go's claim-then-process shape and on
// the original task_completed_consumer.py / recurrence_handler.py,
// which compute next_due via the recurrence calculator and re-invoke
// task creation with the same recurrence descriptor so the chain
// continues indefinitely.
type Engine struct {
	claims     Claimer
	taskReader TaskReader
	taskWriter TaskCreator
	logger     *slog.Logger
}

// NewEngine builds an Engine.
func NewEngine(claims Claimer, reader TaskReader, writer TaskCreator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{claims: claims, taskReader: reader, taskWriter: writer, logger: logger}
}

// HandleTaskCompleted processes one task.completed.v1 envelope. It
// returns an error only for cases the caller should NOT ack (a
// transient failure that should be redelivered); a duplicate claim or
// a non-recurring task both return nil so the caller acks and moves
// on.
func (e *Engine) HandleTaskCompleted(ctx context.Context, env event.Envelope, now time.Time) error {
	if env.EventType != event.TypeTaskCompleted {
		return nil
	}

	outcome, err := e.claims.Claim(ctx, env.EventID, ConsumerService, env.EventType, now)
	if err != nil {
		return err
	}
	if outcome == idempotency.AlreadyProcessed {
		return nil
	}

	var payload event.TaskCompleted
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		_ = e.claims.RecordFailure(ctx, env.EventID, ConsumerService, err)
		return err
	}

	if !payload.HasRecurrence || payload.RecurrenceDescriptor == nil || payload.DueAt == nil {
		return e.claims.MarkProcessed(ctx, env.EventID, ConsumerService, now)
	}

	nextDue, err := recurrence.NextOccurrence(*payload.DueAt, recurrence.Pattern(payload.Pattern),
		payload.Interval, payload.DaysOfWeek, payload.DayOfMonth)
	if err != nil {
		_ = e.claims.RecordFailure(ctx, env.EventID, ConsumerService, err)
		return err
	}

	original, err := e.taskReader.GetByID(ctx, payload.TaskID, payload.UserID)
	if err != nil {
		_ = e.claims.RecordFailure(ctx, env.EventID, ConsumerService, err)
		return fmt.Errorf("recurrence engine: load completed task: %w", err)
	}

	req := task.CreateRequest{
		OwnerID:     payload.UserID,
		Title:       original.Title,
		Description: original.Description,
		Priority:    original.Priority,
		Tags:        original.Tags,
		DueAt:       &nextDue,
		Recurrence: &task.RecurrenceSpec{
			Pattern:    recurrence.Pattern(payload.Pattern),
			Interval:   payload.Interval,
			DaysOfWeek: payload.DaysOfWeek,
			DayOfMonth: payload.DayOfMonth,
		},
	}

	if _, err := e.taskWriter.CreateTask(ctx, req); err != nil {
		e.logger.Error("recurrence engine: failed to create successor task",
			"event_id", env.EventID, "task_id", payload.TaskID, "error", err)
		_ = e.claims.RecordFailure(ctx, env.EventID, ConsumerService, err)
		return err
	}

	return e.claims.MarkProcessed(ctx, env.EventID, ConsumerService, now)
}
