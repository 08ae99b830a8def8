package eventsourcing

import (
	"cmp"
	"context"
	"slices"
)

// EventStore is an append-only log of events.
//
// Implementations must guarantee:
//   - Append writes one record atomically or not at all.
//   - No update or delete of an appended record is possible.
//   - LoadAggregate yields oldest → newest by CreatedAt.
//   - LoadAggregateType yields newest → oldest by CreatedAt.
//   - Every query reads storage; nothing is cached between calls.
//
// Failures of the storage itself are reported as *StorageError.
type EventStore interface {
	// Append validates the event, assigns its id, version and timestamps when
	// absent and persists it. The stored record is returned.
	Append(ctx context.Context, event Event) (Event, error)

	// LoadAggregate returns the full history of one aggregate, oldest first.
	LoadAggregate(ctx context.Context, aggregateID string) (*Iterator[*Event], error)

	// LoadAggregateType returns every event of an aggregate type, newest first.
	LoadAggregateType(ctx context.Context, aggregateType string) (*Iterator[*Event], error)

	// Close releases the store's resources. Close is idempotent.
	Close() error
}

// SortByCreatedAt orders events by creation time. Events with equal
// timestamps keep their relative order when ascending and are reversed when
// descending, so reversing a descending result restores append order.
func SortByCreatedAt(events []*Event, descending bool) {
	slices.SortStableFunc(events, func(a, b *Event) int {
		return cmp.Compare(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	})
	if descending {
		slices.Reverse(events)
	}
}

// OldestFirst turns a newest-first result of LoadAggregateType into replay
// order. The input is reversed before a stable sort, so ties keep append
// order and a store that broke the ordering contract is still replayed
// chronologically.
func OldestFirst(newestFirst []*Event) []*Event {
	out := slices.Clone(newestFirst)
	slices.Reverse(out)
	SortByCreatedAt(out, false)
	return out
}
