package person

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/zeferini/eventsourcing"
)

// evolve folds one event into the state of a single aggregate. A nil state
// means the aggregate does not exist.
var evolve = eventsourcing.Hydrate(
	eventsourcing.On[*Person](EventCreated, applyCreated),
	eventsourcing.On[*Person](EventUpdated, applyUpdated),
	eventsourcing.On[*Person](EventDeleted, applyDeleted),
)

// applyCreated replaces any prior state.
func applyCreated(_ *Person, e *eventsourcing.Event) *Person {
	createdAt := parseTime(e.EventData.Text("createdAt"))
	return &Person{
		ID:        e.EventData.Text("id"),
		Name:      e.EventData.Text("name"),
		Email:     e.EventData.Text("email"),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// applyUpdated overwrites the fields present in the event. Updates for an
// aggregate that does not exist are dropped.
func applyUpdated(state *Person, e *eventsourcing.Event) *Person {
	if state == nil {
		return nil
	}
	next := *state
	if name, ok := e.EventData.Lookup("name"); ok {
		next.Name = name
	}
	if email, ok := e.EventData.Lookup("email"); ok {
		next.Email = email
	}
	next.UpdatedAt = parseTime(e.EventData.Text("updatedAt"))
	return &next
}

func applyDeleted(_ *Person, _ *eventsourcing.Event) *Person {
	return nil
}

// Replay folds the oldest-first history of one aggregate. It reports false
// when the aggregate was never created or its last lifecycle event is a
// deletion.
func Replay(events []*eventsourcing.Event) (Person, bool) {
	p := eventsourcing.Fold[*Person](nil, events, evolve)
	if p == nil {
		return Person{}, false
	}
	return *p, true
}

// Project folds an oldest-first stream spanning many aggregates and returns
// the live persons ordered by createdAt. Persons sharing a createdAt keep
// the order in which their aggregates first appeared.
func Project(events []*eventsourcing.Event) []Person {
	state := make(map[string]*Person)
	var order []string
	for _, e := range events {
		prev, seen := state[e.AggregateID]
		if !seen {
			order = append(order, e.AggregateID)
		}
		state[e.AggregateID] = evolve(prev, e)
	}

	out := make([]Person, 0, len(state))
	for _, id := range order {
		if p := state[id]; p != nil {
			out = append(out, *p)
		}
	}
	slices.SortStableFunc(out, func(a, b Person) int {
		return cmp.Compare(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	})
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseTime reads an ISO 8601 instant. Values without an offset are taken
// as UTC; unparsable values yield the zero time.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
