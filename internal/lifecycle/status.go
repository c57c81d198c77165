// Package lifecycle holds the shipment status machine. It is pure: callers
// pair its decisions with a durable write themselves.
package lifecycle

import "fmt"

// Status is a shipment lifecycle state.
type Status string

const (
	StatusPendingCreation  Status = "pending_creation"
	StatusCreationInFlight Status = "creation_in_flight"
	StatusCreated          Status = "created"
	StatusConfirming       Status = "confirming"
	StatusConfirmed        Status = "confirmed"
	StatusInTransit        Status = "in_transit"
	StatusOutForDelivery   Status = "out_for_delivery"
	StatusDelivered        Status = "delivered"
	StatusFailed           Status = "failed"
)

// ordered lists the happy path; each state's only non-failure successor is
// the next entry.
var ordered = []Status{
	StatusPendingCreation,
	StatusCreationInFlight,
	StatusCreated,
	StatusConfirming,
	StatusConfirmed,
	StatusInTransit,
	StatusOutForDelivery,
	StatusDelivered,
}

var successors = buildSuccessors()

func buildSuccessors() map[Status][]Status {
	m := make(map[Status][]Status, len(ordered)+1)
	for i, s := range ordered {
		if i+1 < len(ordered) {
			m[s] = []Status{ordered[i+1], StatusFailed}
		}
	}
	m[StatusDelivered] = nil
	m[StatusFailed] = nil
	return m
}

// retrySources are the states from which an operator may reset a shipment
// back to pending_creation.
var retrySources = []Status{StatusPendingCreation, StatusCreationInFlight, StatusFailed}

// All returns every known status in lifecycle order, failed last.
func All() []Status {
	out := make([]Status, 0, len(ordered)+1)
	out = append(out, ordered...)
	return append(out, StatusFailed)
}

// Parse validates a raw status string.
func Parse(raw string) (Status, error) {
	s := Status(raw)
	if _, ok := successors[s]; !ok {
		return "", fmt.Errorf("unknown shipment status %q", raw)
	}
	return s, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := successors[s]
	return ok
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// String implements fmt.Stringer.
func (s Status) String() string { return string(s) }

// Successors returns the states reachable from s in one step.
func Successors(s Status) []Status {
	next := successors[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether moving from -> to is legal. Skipping
// intermediate states is never legal, and nothing leaves a terminal state.
func CanTransition(from, to Status) bool {
	for _, next := range successors[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Predecessors returns every state from which to is directly reachable. The
// store uses this set as the guard of a conditional update.
func Predecessors(to Status) []Status {
	var out []Status
	for _, from := range All() {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// RetrySources returns the states from which a manual retry is permitted.
func RetrySources() []Status {
	out := make([]Status, len(retrySources))
	copy(out, retrySources)
	return out
}

// CanRetry reports whether a manual retry is permitted from s.
func CanRetry(s Status) bool {
	for _, src := range retrySources {
		if src == s {
			return true
		}
	}
	return false
}

// Strings converts statuses for use in SQL IN clauses and messages.
func Strings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
