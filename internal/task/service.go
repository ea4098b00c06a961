package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskfabric/backbone/internal/clock"
	"github.com/taskfabric/backbone/internal/event"
	"github.com/taskfabric/backbone/internal/recurrence"
	"github.com/taskfabric/backbone/internal/reminder"
)

// Publisher is the subset of eventbus.Publisher the service needs.
type Publisher interface {
	Publish(ctx context.Context, topic, eventType string, payload any, eventID uuid.UUID) (uuid.UUID, error)
}

// RecurrenceSpec describes the recurrence a new task should carry.
type RecurrenceSpec struct {
	Pattern    recurrence.Pattern
	Interval   int
	DaysOfWeek []int
	DayOfMonth int
}

// ReminderSpec describes one reminder a new task should carry.
type ReminderSpec struct {
	Offset   string
	Channels []string
}

// CreateRequest is the input to Service.CreateTask.
type CreateRequest struct {
	OwnerID     uuid.UUID
	Title       string
	Description *string
	Priority    Priority
	Tags        []string
	DueAt       *time.Time
	Recurrence  *RecurrenceSpec
	Reminders   []ReminderSpec
}

// UpdateRequest is the input to Service.UpdateTask. Each field is a
// pointer so the caller can distinguish "leave unchanged" from
// "set to this value"; nil means unchanged.
type UpdateRequest struct {
	Title       *string
	Description **string
	Priority    *Priority
	Tags        *[]string
	DueAt       **time.Time
}

// Service is the Task Lifecycle Service (C9): task CRUD plus
// completion semantics, transactional persistence of a task and its
// recurrence/reminders, and lifecycle event publishing.
type Service struct {
	pool          *pgxpool.Pool
	tasks         *Repository
	recurrences   *recurrence.Repository
	reminders     *reminder.Repository
	publisher     Publisher
	clock         clock.Clock
	logger        *slog.Logger
}

// NewService builds a Service over pool, wiring its own repositories
// for tasks, recurrences, and reminders.
func NewService(pool *pgxpool.Pool, publisher Publisher, c clock.Clock, logger *slog.Logger) *Service {
	if c == nil {
		c = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pool:        pool,
		tasks:       NewRepository(pool),
		recurrences: recurrence.NewRepository(pool),
		reminders:   reminder.NewRepository(pool),
		publisher:   publisher,
		clock:       c,
		logger:      logger,
	}
}

// Repository exposes the underlying task repository for read paths
// (list/get) that don't need the service's transactional machinery.
func (s *Service) Repository() *Repository { return s.tasks }

// CreateTask validates the request, persists the task and its
// optional recurrence/reminders in a single transaction, and publishes
// task.created.v1. Persistence failure is fatal to the call and no
// event is published; a publish failure after a successful commit is
// logged and swallowed, since the publisher's own buffer/retry
// machinery is responsible for eventual delivery.
func (s *Service) CreateTask(ctx context.Context, req CreateRequest) (*Task, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(req.Reminders) > 0 && req.DueAt == nil {
		return nil, fmt.Errorf("%w: reminders require a due date", ErrValidation)
	}

	priority := req.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	now := s.clock.Now()

	t := &Task{
		OwnerID:     req.OwnerID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    priority,
		Tags:        req.Tags,
		DueAt:       req.DueAt,
	}

	var recCfg *recurrence.Config
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("task: begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.tasks.Create(ctx, tx, t); err != nil {
		return nil, fmt.Errorf("task: create: %w", err)
	}

	if req.Recurrence != nil {
		nextFire, err := firstOccurrence(*req.DueAt, *req.Recurrence)
		if err != nil {
			return nil, err
		}
		recCfg = &recurrence.Config{
			TaskID:     t.ID,
			Pattern:    req.Recurrence.Pattern,
			Interval:   req.Recurrence.Interval,
			DaysOfWeek: req.Recurrence.DaysOfWeek,
			DayOfMonth: req.Recurrence.DayOfMonth,
			NextFireAt: nextFire,
			Active:     true,
		}
		if err := s.recurrences.Create(ctx, tx, recCfg); err != nil {
			return nil, fmt.Errorf("task: create recurrence: %w", err)
		}
		t.RecurrenceID = &recCfg.ID
		if err := s.tasks.Update(ctx, tx, t); err != nil {
			return nil, fmt.Errorf("task: link recurrence: %w", err)
		}
	}

	for _, rs := range req.Reminders {
		rem := &reminder.Reminder{
			TaskID:   t.ID,
			OwnerID:  t.OwnerID,
			Offset:   rs.Offset,
			Channels: rs.Channels,
		}
		if err := s.reminders.Create(ctx, tx, rem); err != nil {
			return nil, fmt.Errorf("task: create reminder: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("task: commit: %w", err)
	}

	payload := event.TaskCreated{
		TaskID:        t.ID,
		UserID:        t.OwnerID,
		Title:         t.Title,
		Description:   t.Description,
		Priority:      string(t.Priority),
		Tags:          t.Tags,
		DueAt:         t.DueAt,
		HasRecurrence: recCfg != nil,
		CreatedAt:     now,
	}
	if recCfg != nil {
		payload.RecurrenceDescriptor = descriptorOf(recCfg)
	}

	s.publish(ctx, event.TopicTaskEvents, event.TypeTaskCreated, payload)

	return t, nil
}

// UpdateTask diffs req against the stored task, persists any changed
// fields, and publishes task.updated.v1 carrying an old/new map. A
// request with no actual changes publishes nothing.
func (s *Service) UpdateTask(ctx context.Context, id, ownerID uuid.UUID, req UpdateRequest) (*Task, error) {
	t, err := s.tasks.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	changes := map[string]event.FieldDiff{}

	if req.Title != nil && *req.Title != t.Title {
		changes["title"] = event.FieldDiff{Old: t.Title, New: *req.Title}
		t.Title = *req.Title
	}
	if req.Description != nil && !stringPtrEqual(*req.Description, t.Description) {
		changes["description"] = event.FieldDiff{Old: t.Description, New: *req.Description}
		t.Description = *req.Description
	}
	if req.Priority != nil && *req.Priority != t.Priority {
		changes["priority"] = event.FieldDiff{Old: t.Priority, New: *req.Priority}
		t.Priority = *req.Priority
	}
	if req.Tags != nil && !tagsEqual(*req.Tags, t.Tags) {
		changes["tags"] = event.FieldDiff{Old: t.Tags, New: *req.Tags}
		t.Tags = *req.Tags
	}
	if req.DueAt != nil && !timePtrEqual(*req.DueAt, t.DueAt) {
		changes["due_at"] = event.FieldDiff{Old: t.DueAt, New: *req.DueAt}
		t.DueAt = *req.DueAt
	}

	if len(changes) == 0 {
		return t, nil
	}

	if err := s.tasks.Update(ctx, nil, t); err != nil {
		return nil, fmt.Errorf("task: update: %w", err)
	}

	payload := event.TaskUpdated{
		TaskID:    t.ID,
		UserID:    t.OwnerID,
		Changes:   changes,
		UpdatedAt: t.UpdatedAt,
	}
	s.publish(ctx, event.TopicTaskEvents, event.TypeTaskUpdated, payload)

	return t, nil
}

// CompleteTask implements the pending<->completed toggle. Only the
// pending->completed edge emits task.completed.v1; the reverse edge
// (toggling back to pending) emits task.updated.v1 with a
// completed:{old:true,new:false} entry instead, and does not cancel
// any successor task the recurrence engine may already have created.
func (s *Service) CompleteTask(ctx context.Context, id, ownerID uuid.UUID, completed bool) (*Task, error) {
	t, err := s.tasks.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	if t.Completed == completed {
		return t, nil
	}

	now := s.clock.Now()
	wasCompletion := !t.Completed && completed

	t.Completed = completed
	if completed {
		t.CompletedAt = &now
	} else {
		t.CompletedAt = nil
	}

	if err := s.tasks.Update(ctx, nil, t); err != nil {
		return nil, fmt.Errorf("task: complete: %w", err)
	}

	if wasCompletion {
		var recCfg *recurrence.Config
		if t.RecurrenceID != nil {
			recCfg, err = s.recurrences.GetByTaskID(ctx, t.ID)
			if err != nil && err != recurrence.ErrNotFound {
				s.logger.Error("task: failed to load recurrence for completion event", "task_id", t.ID, "error", err)
			}
		}

		payload := event.TaskCompleted{
			TaskID:        t.ID,
			UserID:        t.OwnerID,
			CompletedAt:   now,
			DueAt:         t.DueAt,
			HasRecurrence: recCfg != nil,
		}
		if recCfg != nil {
			payload.RecurrenceDescriptor = descriptorOf(recCfg)
		}
		s.publish(ctx, event.TopicTaskEvents, event.TypeTaskCompleted, payload)
		return t, nil
	}

	payload := event.TaskUpdated{
		TaskID: t.ID,
		UserID: t.OwnerID,
		Changes: map[string]event.FieldDiff{
			"completed": {Old: true, New: false},
		},
		UpdatedAt: t.UpdatedAt,
	}
	s.publish(ctx, event.TopicTaskEvents, event.TypeTaskUpdated, payload)

	return t, nil
}

// DeleteTask removes a task, relying on the tasks->task_reminders FK's
// ON DELETE CASCADE to remove its reminders in the same statement, and
// publishes task.deleted.v1. Delete is idempotent: calling it again on
// an already-gone task returns (false, nil) and emits nothing.
func (s *Service) DeleteTask(ctx context.Context, id, ownerID uuid.UUID) (bool, error) {
	if err := s.tasks.Delete(ctx, id, ownerID); err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("task: delete: %w", err)
	}

	payload := event.TaskDeleted{
		TaskID:    id,
		UserID:    ownerID,
		DeletedAt: s.clock.Now(),
	}
	s.publish(ctx, event.TopicTaskEvents, event.TypeTaskDeleted, payload)

	return true, nil
}

func (s *Service) publish(ctx context.Context, topic, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, topic, eventType, payload, uuid.Nil); err != nil {
		s.logger.Error("task: publish failed, state persisted but event not delivered",
			"event_type", eventType, "error", err)
	}
}

func descriptorOf(cfg *recurrence.Config) *event.RecurrenceDescriptor {
	return &event.RecurrenceDescriptor{
		Pattern:    string(cfg.Pattern),
		Interval:   cfg.Interval,
		DaysOfWeek: cfg.DaysOfWeek,
		DayOfMonth: cfg.DayOfMonth,
	}
}

func firstOccurrence(dueAt time.Time, spec RecurrenceSpec) (time.Time, error) {
	return recurrence.NextOccurrence(dueAt, spec.Pattern, spec.Interval, spec.DaysOfWeek, spec.DayOfMonth)
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func tagsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
