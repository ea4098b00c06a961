package task

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestStringPtrEqual(t *testing.T) {
	a, b := "x", "x"
	c := "y"

	cases := []struct {
		name string
		a, b *string
		want bool
	}{
		{"both nil", nil, nil, true},
		{"one nil", &a, nil, false},
		{"equal values", &a, &b, true},
		{"different values", &a, &c, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stringPtrEqual(tc.a, tc.b); got != tc.want {
				t.Errorf("stringPtrEqual(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestTimePtrEqual(t *testing.T) {
	t1 := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)
	t3 := time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)

	if !timePtrEqual(&t1, &t2) {
		t.Error("expected equal times to compare equal")
	}
	if timePtrEqual(&t1, &t3) {
		t.Error("expected different times to compare unequal")
	}
	if !timePtrEqual(nil, nil) {
		t.Error("expected both-nil to compare equal")
	}
	if timePtrEqual(&t1, nil) {
		t.Error("expected nil vs non-nil to compare unequal")
	}
}

func TestTagsEqual(t *testing.T) {
	if !tagsEqual([]string{"a", "b"}, []string{"a", "b"}) {
		t.Error("expected identical tag slices to be equal")
	}
	if tagsEqual([]string{"a", "b"}, []string{"b", "a"}) {
		t.Error("expected order-sensitive comparison to reject a reordered slice")
	}
	if tagsEqual([]string{"a"}, []string{"a", "b"}) {
		t.Error("expected different lengths to be unequal")
	}
	if !tagsEqual(nil, nil) {
		t.Error("expected two nil slices to be equal")
	}
}

func TestCreateTask_ValidationErrors(t *testing.T) {
	svc := &Service{}

	t.Run("empty title is rejected", func(t *testing.T) {
		_, err := svc.CreateTask(nil, CreateRequest{OwnerID: uuid.New(), Title: ""})
		if err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("reminders without a due date are rejected", func(t *testing.T) {
		_, err := svc.CreateTask(nil, CreateRequest{
			OwnerID:   uuid.New(),
			Title:     "Standup",
			DueAt:     nil,
			Reminders: []ReminderSpec{{Offset: "PT1H", Channels: []string{"email"}}},
		})
		if err == nil {
			t.Fatal("expected an error")
		}
	})
}
