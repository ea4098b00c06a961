package idempotency

import "testing"

func TestOutcomeConstants(t *testing.T) {
	t.Run("outcomes are distinct", func(t *testing.T) {
		seen := map[Outcome]bool{}
		for _, o := range []Outcome{Claimed, AlreadyProcessed, PreviouslyFailed} {
			if seen[o] {
				t.Errorf("outcome %d reused", o)
			}
			seen[o] = true
		}
	})

	t.Run("Claimed is the zero value", func(t *testing.T) {
		var zero Outcome
		if zero != Claimed {
			t.Error("Claimed should be the zero value so an unset Outcome never reads as success")
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("builds a ledger over a pool reference", func(t *testing.T) {
		l := New(nil)
		if l == nil {
			t.Fatal("expected non-nil ledger")
		}
		if l.db != nil {
			t.Error("expected db to be stored as given")
		}
	})
}
