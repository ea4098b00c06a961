package recurrence

import (
	"testing"
	"time"
)

func TestNextDaily(t *testing.T) {
	t.Run("adds interval days, preserving time of day", func(t *testing.T) {
		current := time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)
		got := NextDaily(current, 3)
		want := time.Date(2026, time.January, 8, 10, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("default interval of 1", func(t *testing.T) {
		current := time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)
		got := NextDaily(current, 1)
		want := time.Date(2026, time.January, 6, 10, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

func TestNextWeekly(t *testing.T) {
	t.Run("next day falls later in the same week", func(t *testing.T) {
		// 2026-01-05 is a Monday.
		current := time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)
		got := NextWeekly(current, 1, []int{0, 3, 5}) // Mon, Thu, Sat
		want := time.Date(2026, time.January, 8, 10, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("wraps to next week when no later day remains", func(t *testing.T) {
		// 2026-01-10 is a Saturday.
		current := time.Date(2026, time.January, 10, 10, 0, 0, 0, time.UTC)
		got := NextWeekly(current, 1, []int{0, 3}) // Mon, Thu
		want := time.Date(2026, time.January, 12, 10, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("wraps an extra interval-1 weeks", func(t *testing.T) {
		current := time.Date(2026, time.January, 10, 10, 0, 0, 0, time.UTC) // Saturday
		got := NextWeekly(current, 2, []int{0})
		want := time.Date(2026, time.January, 19, 10, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("unsorted input does not change the result", func(t *testing.T) {
		current := time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)
		got := NextWeekly(current, 1, []int{5, 0, 3})
		want := time.Date(2026, time.January, 8, 10, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

func TestNextMonthly(t *testing.T) {
	t.Run("clamps to the last day of a shorter month", func(t *testing.T) {
		current := time.Date(2026, time.January, 31, 10, 0, 0, 0, time.UTC)
		got := NextMonthly(current, 1, 31)
		want := time.Date(2026, time.February, 28, 10, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("leap year february has 29 days", func(t *testing.T) {
		current := time.Date(2028, time.January, 31, 10, 0, 0, 0, time.UTC)
		got := NextMonthly(current, 1, 31)
		want := time.Date(2028, time.February, 29, 10, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("target month with enough days uses day_of_month exactly", func(t *testing.T) {
		current := time.Date(2026, time.February, 28, 10, 0, 0, 0, time.UTC)
		got := NextMonthly(current, 1, 31)
		want := time.Date(2026, time.March, 31, 10, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("year wraparound", func(t *testing.T) {
		current := time.Date(2026, time.December, 15, 10, 0, 0, 0, time.UTC)
		got := NextMonthly(current, 2, 15)
		want := time.Date(2027, time.February, 15, 10, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

func TestNextOccurrence(t *testing.T) {
	t.Run("dispatches to daily", func(t *testing.T) {
		current := time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)
		got, err := NextOccurrence(current, PatternDaily, 1, nil, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := time.Date(2026, time.January, 6, 10, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("weekly without days of week is an error", func(t *testing.T) {
		current := time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)
		if _, err := NextOccurrence(current, PatternWeekly, 1, nil, 0); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("monthly without day of month is an error", func(t *testing.T) {
		current := time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)
		if _, err := NextOccurrence(current, PatternMonthly, 1, nil, 0); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("unknown pattern is an error", func(t *testing.T) {
		current := time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)
		if _, err := NextOccurrence(current, Pattern("yearly"), 1, nil, 0); err == nil {
			t.Error("expected an error")
		}
	})
}
