package recurrenceengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskfabric/backbone/internal/event"
	"github.com/taskfabric/backbone/internal/idempotency"
	"github.com/taskfabric/backbone/internal/task"
)

type fakeClaimer struct {
	outcome    idempotency.Outcome
	processed  []uuid.UUID
	failed     []uuid.UUID
	claimCalls int
}

func (f *fakeClaimer) Claim(ctx context.Context, eventID uuid.UUID, consumer, eventType string, now time.Time) (idempotency.Outcome, error) {
	f.claimCalls++
	return f.outcome, nil
}

func (f *fakeClaimer) MarkProcessed(ctx context.Context, eventID uuid.UUID, consumer string, now time.Time) error {
	f.processed = append(f.processed, eventID)
	return nil
}

func (f *fakeClaimer) RecordFailure(ctx context.Context, eventID uuid.UUID, consumer string, cause error) error {
	f.failed = append(f.failed, eventID)
	return nil
}

type fakeTaskReader struct {
	task *task.Task
	err  error
}

func (f *fakeTaskReader) GetByID(ctx context.Context, id, ownerID uuid.UUID) (*task.Task, error) {
	return f.task, f.err
}

type fakeTaskCreator struct {
	calls []task.CreateRequest
	err   error
}

func (f *fakeTaskCreator) CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &task.Task{ID: uuid.New(), OwnerID: req.OwnerID, Title: req.Title}, nil
}

func buildCompletedEnvelope(t *testing.T, payload event.TaskCompleted) event.Envelope {
	t.Helper()
	env, err := event.New(uuid.New(), event.TypeTaskCompleted, time.Now(), payload)
	if err != nil {
		t.Fatalf("failed to build envelope: %v", err)
	}
	return env
}

func TestEngine_DuplicateClaimSkipsProcessing(t *testing.T) {
	claims := &fakeClaimer{outcome: idempotency.AlreadyProcessed}
	reader := &fakeTaskReader{}
	writer := &fakeTaskCreator{}
	eng := NewEngine(claims, reader, writer, nil)

	env := buildCompletedEnvelope(t, event.TaskCompleted{TaskID: uuid.New(), UserID: uuid.New()})

	if err := eng.HandleTaskCompleted(context.Background(), env, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(writer.calls) != 0 {
		t.Error("expected no successor task to be created for an already-processed event")
	}
}

func TestEngine_NonRecurringTaskIsAcked(t *testing.T) {
	claims := &fakeClaimer{outcome: idempotency.Claimed}
	writer := &fakeTaskCreator{}
	eng := NewEngine(claims, &fakeTaskReader{}, writer, nil)

	env := buildCompletedEnvelope(t, event.TaskCompleted{
		TaskID:        uuid.New(),
		UserID:        uuid.New(),
		HasRecurrence: false,
	})

	if err := eng.HandleTaskCompleted(context.Background(), env, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(writer.calls) != 0 {
		t.Error("expected no successor task for a non-recurring completion")
	}
	if len(claims.processed) != 1 {
		t.Error("expected the claim to be marked processed")
	}
}

func TestEngine_RecurringTaskCreatesSuccessorWithOriginalMetadata(t *testing.T) {
	claims := &fakeClaimer{outcome: idempotency.Claimed}
	ownerID := uuid.New()
	taskID := uuid.New()
	desc := "daily team sync"

	reader := &fakeTaskReader{task: &task.Task{
		ID:          taskID,
		OwnerID:     ownerID,
		Title:       "Standup",
		Description: &desc,
		Priority:    task.PriorityHigh,
		Tags:        []string{"team"},
	}}
	writer := &fakeTaskCreator{}
	eng := NewEngine(claims, reader, writer, nil)

	dueAt := time.Date(2026, time.January, 6, 10, 0, 0, 0, time.UTC)
	env := buildCompletedEnvelope(t, event.TaskCompleted{
		TaskID:        taskID,
		UserID:        ownerID,
		CompletedAt:   dueAt,
		DueAt:         &dueAt,
		HasRecurrence: true,
		RecurrenceDescriptor: &event.RecurrenceDescriptor{
			Pattern:  "daily",
			Interval: 1,
		},
	})

	if err := eng.HandleTaskCompleted(context.Background(), env, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(writer.calls) != 1 {
		t.Fatalf("expected exactly one successor task creation, got %d", len(writer.calls))
	}
	got := writer.calls[0]
	if got.Title != "Standup" || got.Priority != task.PriorityHigh {
		t.Errorf("successor did not carry original metadata: %+v", got)
	}
	wantDue := time.Date(2026, time.January, 7, 10, 0, 0, 0, time.UTC)
	if got.DueAt == nil || !got.DueAt.Equal(wantDue) {
		t.Errorf("successor due_at = %v, want %v", got.DueAt, wantDue)
	}
	if len(claims.processed) != 1 {
		t.Error("expected the claim to be marked processed")
	}
}

func TestEngine_CreateFailureRecordsFailureAndReturnsError(t *testing.T) {
	claims := &fakeClaimer{outcome: idempotency.Claimed}
	dueAt := time.Date(2026, time.January, 6, 10, 0, 0, 0, time.UTC)
	reader := &fakeTaskReader{task: &task.Task{Title: "Standup"}}
	writer := &fakeTaskCreator{err: errors.New("db unavailable")}
	eng := NewEngine(claims, reader, writer, nil)

	env := buildCompletedEnvelope(t, event.TaskCompleted{
		TaskID:               uuid.New(),
		UserID:               uuid.New(),
		DueAt:                &dueAt,
		HasRecurrence:        true,
		RecurrenceDescriptor: &event.RecurrenceDescriptor{Pattern: "daily", Interval: 1},
	})

	err := eng.HandleTaskCompleted(context.Background(), env, time.Now())
	if err == nil {
		t.Fatal("expected an error to propagate so the broker redelivers")
	}
	if len(claims.failed) != 1 {
		t.Error("expected the claim to be recorded as failed")
	}
	if len(claims.processed) != 0 {
		t.Error("expected the claim not to be marked processed")
	}
}
