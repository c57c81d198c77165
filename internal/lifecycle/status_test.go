package lifecycle

import (
	"slices"
	"testing"
)

func TestCanTransitionTable(t *testing.T) {
	legal := map[Status][]Status{
		StatusPendingCreation:  {StatusCreationInFlight, StatusFailed},
		StatusCreationInFlight: {StatusCreated, StatusFailed},
		StatusCreated:          {StatusConfirming, StatusFailed},
		StatusConfirming:       {StatusConfirmed, StatusFailed},
		StatusConfirmed:        {StatusInTransit, StatusFailed},
		StatusInTransit:        {StatusOutForDelivery, StatusFailed},
		StatusOutForDelivery:   {StatusDelivered, StatusFailed},
		StatusDelivered:        nil,
		StatusFailed:           nil,
	}

	for _, from := range All() {
		for _, to := range All() {
			want := slices.Contains(legal[from], to)
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestSkippingStatesIsRejected(t *testing.T) {
	if CanTransition(StatusCreationInFlight, StatusDelivered) {
		t.Fatal("delivered must not be reachable from creation_in_flight")
	}
	if CanTransition(StatusCreationInFlight, StatusConfirming) {
		t.Fatal("confirming must not be reachable without created")
	}
}

func TestTerminalStatesHaveNoSuccessors(t *testing.T) {
	for _, s := range []Status{StatusDelivered, StatusFailed} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
		if len(Successors(s)) != 0 {
			t.Fatalf("%s should have no successors", s)
		}
	}
}

func TestFailedReachableFromEveryNonTerminal(t *testing.T) {
	for _, s := range All() {
		if s.Terminal() {
			continue
		}
		if !CanTransition(s, StatusFailed) {
			t.Fatalf("failed should be reachable from %s", s)
		}
	}
}

func TestPredecessors(t *testing.T) {
	got := Predecessors(StatusFailed)
	want := []Status{
		StatusPendingCreation, StatusCreationInFlight, StatusCreated, StatusConfirming,
		StatusConfirmed, StatusInTransit, StatusOutForDelivery,
	}
	if !slices.Equal(got, want) {
		t.Fatalf("Predecessors(failed) = %v, want %v", got, want)
	}

	if got := Predecessors(StatusDelivered); !slices.Equal(got, []Status{StatusOutForDelivery}) {
		t.Fatalf("Predecessors(delivered) = %v", got)
	}
	if got := Predecessors(StatusPendingCreation); len(got) != 0 {
		t.Fatalf("pending_creation is initial, got predecessors %v", got)
	}
}

func TestCanRetry(t *testing.T) {
	for _, s := range All() {
		want := s == StatusPendingCreation || s == StatusCreationInFlight || s == StatusFailed
		if got := CanRetry(s); got != want {
			t.Errorf("CanRetry(%s) = %v, want %v", s, got, want)
		}
	}
}

func TestParse(t *testing.T) {
	if s, err := Parse("in_transit"); err != nil || s != StatusInTransit {
		t.Fatalf("parse in_transit: %v %v", s, err)
	}
	if _, err := Parse("lost_at_sea"); err == nil {
		t.Fatal("expected unknown status error")
	}
}
