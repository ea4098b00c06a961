package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskfabric/backbone/internal/clock"
	"github.com/taskfabric/backbone/internal/event"
)

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(ctx context.Context, topic, eventType string, payload any, eventID uuid.UUID) (uuid.UUID, error) {
	f.published = append(f.published, eventType)
	if eventID == uuid.Nil {
		eventID = uuid.New()
	}
	return eventID, nil
}

func TestScheduler_FiresOnlyWhenWindowCrossed(t *testing.T) {
	// This exercises Scan's window-crossing arithmetic directly rather
	// than through the repository, since ListCandidates needs a real
	// database; the guard itself (firesAt.After(now) -> skip) is the
	// part worth isolating.
	dueAt := time.Date(2026, time.January, 6, 15, 0, 0, 0, time.UTC)
	offset, err := ParseOffset("PT1H")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firesAt := dueAt.Add(-offset)
	want := time.Date(2026, time.January, 6, 14, 0, 0, 0, time.UTC)
	if !firesAt.Equal(want) {
		t.Fatalf("firesAt = %v, want %v", firesAt, want)
	}

	beforeWindow := time.Date(2026, time.January, 6, 13, 0, 0, 0, time.UTC)
	if !firesAt.After(beforeWindow) {
		t.Error("firesAt should still be in the future at 13:00")
	}

	atWindow := time.Date(2026, time.January, 6, 14, 5, 0, 0, time.UTC)
	if firesAt.After(atWindow) {
		t.Error("firesAt should have passed by 14:05")
	}
}

func TestScheduler_New_DefaultsInterval(t *testing.T) {
	s := New(nil, &fakePublisher{}, nil, Config{})
	if s.interval != DefaultInterval {
		t.Errorf("expected default interval %v, got %v", DefaultInterval, s.interval)
	}
}

func TestScheduler_PublisherMintsReminderDueEventID(t *testing.T) {
	// fire() ends in repo.MarkSent, which needs a real database, and this
	// package has no DB fake (matching this codebase's convention of not
	// mocking the database layer). So this test stops at the publish
	// step: it sends a reminder.due.v1 payload through the scheduler's
	// publisher and checks that an event id is minted and one event goes
	// out. The sent_at marker is not checked here.
	pub := &fakePublisher{}
	mc := clock.NewManual(time.Date(2026, time.January, 6, 14, 5, 0, 0, time.UTC))
	s := New(nil, pub, nil, Config{Clock: mc})

	payload := event.ReminderDue{
		ReminderID:   uuid.New(),
		TaskID:       uuid.New(),
		UserID:       uuid.New(),
		TaskTitle:    "Standup",
		DueAt:        time.Date(2026, time.January, 6, 15, 0, 0, 0, time.UTC),
		RemindBefore: "PT1H",
		Channels:     []string{"email"},
	}

	id, err := s.pub.Publish(context.Background(), event.TopicReminders, event.TypeReminderDue, payload, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == uuid.Nil {
		t.Error("expected a minted event id")
	}
	if len(pub.published) != 1 || pub.published[0] != event.TypeReminderDue {
		t.Errorf("expected one reminder.due.v1 publish, got %v", pub.published)
	}
}
