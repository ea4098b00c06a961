package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskfabric/backbone/internal/clock"
	"github.com/taskfabric/backbone/internal/event"
	"github.com/taskfabric/backbone/internal/idempotency"
)

type fakeClaimer struct {
	outcome    idempotency.Outcome
	processed  []uuid.UUID
	failed     []uuid.UUID
}

func (f *fakeClaimer) Claim(ctx context.Context, eventID uuid.UUID, consumer, eventType string, now time.Time) (idempotency.Outcome, error) {
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

type fakeRecorder struct {
	records []*Record
}

func (f *fakeRecorder) Insert(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	f.records = append(f.records, rec)
	return nil
}

type fakePublisher struct {
	eventTypes []string
}

func (f *fakePublisher) Publish(ctx context.Context, topic, eventType string, payload any, eventID uuid.UUID) (uuid.UUID, error) {
	f.eventTypes = append(f.eventTypes, eventType)
	return uuid.New(), nil
}

type fakeChannel struct {
	name     string
	fails    int
	attempts int
	lastErr  error
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Send(ctx context.Context, recipient Recipient, msg RenderedMessage) error {
	c.attempts++
	if c.attempts <= c.fails {
		if c.lastErr != nil {
			return c.lastErr
		}
		return errors.New("transient send failure")
	}
	return nil
}

func buildDueEnvelope(t *testing.T, payload event.ReminderDue) event.Envelope {
	t.Helper()
	env, err := event.New(uuid.New(), event.TypeReminderDue, time.Now(), payload)
	if err != nil {
		t.Fatalf("failed to build envelope: %v", err)
	}
	return env
}

func TestDispatcher_DuplicateClaimSkipsProcessing(t *testing.T) {
	claims := &fakeClaimer{outcome: idempotency.AlreadyProcessed}
	pub := &fakePublisher{}
	d := NewDispatcher(claims, nil, pub, nil, Config{Clock: clock.NewManual(time.Now())})

	env := buildDueEnvelope(t, event.ReminderDue{TaskID: uuid.New(), UserID: uuid.New(), Channels: []string{"email"}})

	if err := d.HandleReminderDue(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.eventTypes) != 0 {
		t.Error("expected no outcome events for an already-processed reminder")
	}
}

func TestDispatcher_SucceedsOnFirstAttempt(t *testing.T) {
	claims := &fakeClaimer{outcome: idempotency.Claimed}
	pub := &fakePublisher{}
	emailCh := &fakeChannel{name: "email"}
	d := NewDispatcher(claims, &fakeRecorder{}, pub, []Channel{emailCh}, Config{Clock: clock.NewManual(time.Now())})

	env := buildDueEnvelope(t, event.ReminderDue{
		TaskID: uuid.New(), UserID: uuid.New(), TaskTitle: "Standup",
		DueAt: time.Now(), Channels: []string{"email"},
	})

	if err := d.HandleReminderDue(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emailCh.attempts != 1 {
		t.Errorf("expected exactly one send attempt, got %d", emailCh.attempts)
	}
	if len(pub.eventTypes) != 1 || pub.eventTypes[0] != event.TypeNotificationSent {
		t.Errorf("expected one notification.sent.v1 event, got %v", pub.eventTypes)
	}
	if len(claims.processed) != 1 {
		t.Error("expected the claim to be marked processed")
	}
}

func TestDispatcher_UnknownChannelRecordsPermanentFailure(t *testing.T) {
	claims := &fakeClaimer{outcome: idempotency.Claimed}
	pub := &fakePublisher{}
	d := NewDispatcher(claims, &fakeRecorder{}, pub, nil, Config{Clock: clock.NewManual(time.Now())})

	env := buildDueEnvelope(t, event.ReminderDue{
		TaskID: uuid.New(), UserID: uuid.New(), Channels: []string{"carrier-pigeon"},
	})

	if err := d.HandleReminderDue(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.eventTypes) != 1 || pub.eventTypes[0] != event.TypeNotificationFailed {
		t.Errorf("expected one notification.failed.v1 event, got %v", pub.eventTypes)
	}
}

func TestDispatcher_PermanentErrorSkipsRemainingRetries(t *testing.T) {
	claims := &fakeClaimer{outcome: idempotency.Claimed}
	pub := &fakePublisher{}
	emailCh := &fakeChannel{name: "email", fails: 99, lastErr: ErrPermanent}
	d := NewDispatcher(claims, &fakeRecorder{}, pub, []Channel{emailCh}, Config{
		MaxRetryAttempts: 3,
		Clock:            clock.NewManual(time.Now()),
	})

	env := buildDueEnvelope(t, event.ReminderDue{
		TaskID: uuid.New(), UserID: uuid.New(), Channels: []string{"email"},
	})

	if err := d.HandleReminderDue(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emailCh.attempts != 1 {
		t.Errorf("expected a permanent error to stop retries after one attempt, got %d attempts", emailCh.attempts)
	}
	if len(pub.eventTypes) != 1 || pub.eventTypes[0] != event.TypeNotificationFailed {
		t.Errorf("expected one notification.failed.v1 event, got %v", pub.eventTypes)
	}
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	claims := &fakeClaimer{outcome: idempotency.Claimed}
	pub := &fakePublisher{}
	emailCh := &fakeChannel{name: "email", fails: 2}
	d := NewDispatcher(claims, &fakeRecorder{}, pub, []Channel{emailCh}, Config{
		MaxRetryAttempts: 3,
		RetryBackoffBase: 1, // keep the test fast: 1^attempt seconds == 1s, still bounded
		RetryBackoffMax:  1 * time.Millisecond,
		Clock:            clock.NewManual(time.Now()),
	})

	env := buildDueEnvelope(t, event.ReminderDue{
		TaskID: uuid.New(), UserID: uuid.New(), Channels: []string{"email"},
	})

	if err := d.HandleReminderDue(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emailCh.attempts != 3 {
		t.Errorf("expected 3 attempts (2 failures then a success), got %d", emailCh.attempts)
	}
	if len(pub.eventTypes) != 1 || pub.eventTypes[0] != event.TypeNotificationSent {
		t.Errorf("expected eventual success to publish notification.sent.v1, got %v", pub.eventTypes)
	}
}
