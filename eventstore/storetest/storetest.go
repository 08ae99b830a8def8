// Package storetest holds the behaviour every EventStore implementation must
// share. Adapters run it from their own tests:
//
//	func TestStore(t *testing.T) {
//		storetest.Run(t, func(t *testing.T) eventsourcing.EventStore { ... })
//	}
package storetest

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	es "github.com/zeferini/eventsourcing"
)

// Factory opens a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) es.EventStore

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store es.EventStore)
	}{
		{"AppendAssignsIdentity", testAppendAssignsIdentity},
		{"AppendRejectsInvalid", testAppendRejectsInvalid},
		{"AppendRejectsDuplicateID", testAppendRejectsDuplicateID},
		{"PayloadRoundTrip", testPayloadRoundTrip},
		{"LoadAggregateOldestFirst", testLoadAggregateOldestFirst},
		{"LoadAggregateTypeNewestFirst", testLoadAggregateTypeNewestFirst},
		{"EqualTimestampsKeepAppendOrder", testEqualTimestamps},
		{"UnknownStreamsAreEmpty", testUnknownStreams},
		{"QueriesSeeLaterAppends", testQueriesSeeLaterAppends},
		{"RecordsAreNotShared", testRecordsAreNotShared},
		{"ConcurrentAppends", testConcurrentAppends},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := open(t)
			t.Cleanup(func() { _ = store.Close() })
			tt.fn(t, store)
		})
	}

	t.Run("ClosedStoreFails", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Close())

		_, err := store.Append(t.Context(), personEvent("p1", "PersonCreated", base))
		assert.Error(t, err)
		assert.True(t, es.IsStorageError(err), "expected storage error, got %v", err)
	})
}

func personEvent(id, eventType string, createdAt time.Time) es.Event {
	e := es.NewEvent("Person", id, eventType, es.Payload{"id": es.String(id)}, es.Payload{"source": es.String("storetest")})
	e.CreatedAt = createdAt
	e.Timestamp = createdAt
	return e
}

// collect returns a func that takes a query's results directly, so calls
// read collect(t)(store.LoadAggregate(ctx, id)).
func collect(t *testing.T) func(it *es.Iterator[*es.Event], err error) []*es.Event {
	t.Helper()
	return func(it *es.Iterator[*es.Event], err error) []*es.Event {
		t.Helper()
		require.NoError(t, err)
		events, err := it.All(t.Context())
		require.NoError(t, err)
		return events
	}
}

func aggregateIDs(events []*es.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.AggregateID
	}
	return out
}

func eventTypes(events []*es.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.EventType
	}
	return out
}

func testAppendAssignsIdentity(t *testing.T, store es.EventStore) {
	stored, err := store.Append(t.Context(), es.NewEvent("Person", "p1", "PersonCreated", es.Payload{}, nil))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, stored.ID)
	assert.Equal(t, es.DefaultVersion, stored.Version)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.False(t, stored.Timestamp.IsZero())

	events := collect(t)(store.LoadAggregate(t.Context(), "p1"))
	require.Len(t, events, 1)
	assert.Equal(t, stored.ID, events[0].ID)
	assert.True(t, stored.CreatedAt.Equal(events[0].CreatedAt), "createdAt %v != %v", stored.CreatedAt, events[0].CreatedAt)
}

func testAppendRejectsInvalid(t *testing.T, store es.EventStore) {
	_, err := store.Append(t.Context(), es.NewEvent("Person", "", "PersonCreated", es.Payload{}, nil))
	assert.ErrorIs(t, err, es.ErrInvalidEvent)
	assert.False(t, es.IsStorageError(err))

	events := collect(t)(store.LoadAggregateType(t.Context(), "Person"))
	assert.Empty(t, events)
}

func testAppendRejectsDuplicateID(t *testing.T, store es.EventStore) {
	e := personEvent("p1", "PersonCreated", base)
	e.ID = uuid.New()

	_, err := store.Append(t.Context(), e)
	require.NoError(t, err)

	_, err = store.Append(t.Context(), e)
	assert.ErrorIs(t, err, es.ErrDuplicateEvent)
	assert.True(t, es.IsStorageError(err))

	events := collect(t)(store.LoadAggregate(t.Context(), "p1"))
	assert.Len(t, events, 1)
}

func testPayloadRoundTrip(t *testing.T, store es.EventStore) {
	data := es.Payload{
		"id":      es.String("p1"),
		"name":    es.String("Zoë 🚀"),
		"age":     es.Int(36),
		"active":  es.Bool(true),
		"tags":    es.Array(es.String("a"), es.Int(2)),
		"address": es.Object(map[string]es.Value{"city": es.String("London")}),
	}
	meta := es.Payload{"source": es.String("storetest"), "userId": es.Null()}

	_, err := store.Append(t.Context(), es.NewEvent("Person", "p1", "PersonCreated", data, meta))
	require.NoError(t, err)

	events := collect(t)(store.LoadAggregate(t.Context(), "p1"))
	require.Len(t, events, 1)
	assert.True(t, data.Equal(events[0].EventData), "event data: %v", events[0].EventData)
	assert.True(t, meta.Equal(events[0].Metadata), "metadata: %v", events[0].Metadata)
	assert.Equal(t, "Person", events[0].AggregateType)
	assert.Equal(t, "PersonCreated", events[0].EventType)
}

func testLoadAggregateOldestFirst(t *testing.T, store es.EventStore) {
	// appended out of chronological order on purpose
	for _, e := range []es.Event{
		personEvent("p1", "PersonUpdated", base.Add(2*time.Second)),
		personEvent("p1", "PersonCreated", base),
		personEvent("p2", "PersonCreated", base.Add(time.Second)),
		personEvent("p1", "PersonDeleted", base.Add(3*time.Second)),
	} {
		_, err := store.Append(t.Context(), e)
		require.NoError(t, err)
	}

	events := collect(t)(store.LoadAggregate(t.Context(), "p1"))
	assert.Equal(t, []string{"PersonCreated", "PersonUpdated", "PersonDeleted"}, eventTypes(events))
}

func testLoadAggregateTypeNewestFirst(t *testing.T, store es.EventStore) {
	for i, id := range []string{"p1", "p2", "p3"} {
		_, err := store.Append(t.Context(), personEvent(id, "PersonCreated", base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}
	other := es.NewEvent("Order", "o1", "OrderPlaced", es.Payload{}, nil)
	_, err := store.Append(t.Context(), other)
	require.NoError(t, err)

	events := collect(t)(store.LoadAggregateType(t.Context(), "Person"))
	assert.Equal(t, []string{"p3", "p2", "p1"}, aggregateIDs(events))

	orders := collect(t)(store.LoadAggregateType(t.Context(), "Order"))
	assert.Equal(t, []string{"o1"}, aggregateIDs(orders))
}

func testEqualTimestamps(t *testing.T, store es.EventStore) {
	for _, eventType := range []string{"PersonCreated", "PersonUpdated", "PersonDeleted"} {
		_, err := store.Append(t.Context(), personEvent("p1", eventType, base))
		require.NoError(t, err)
	}

	asc := collect(t)(store.LoadAggregate(t.Context(), "p1"))
	assert.Equal(t, []string{"PersonCreated", "PersonUpdated", "PersonDeleted"}, eventTypes(asc))

	desc := collect(t)(store.LoadAggregateType(t.Context(), "Person"))
	assert.Equal(t, []string{"PersonCreated", "PersonUpdated", "PersonDeleted"}, eventTypes(es.OldestFirst(desc)))
}

func testUnknownStreams(t *testing.T, store es.EventStore) {
	assert.Empty(t, collect(t)(store.LoadAggregate(t.Context(), uuid.NewString())))
	assert.Empty(t, collect(t)(store.LoadAggregateType(t.Context(), "Nothing")))
}

func testQueriesSeeLaterAppends(t *testing.T, store es.EventStore) {
	_, err := store.Append(t.Context(), personEvent("p1", "PersonCreated", base))
	require.NoError(t, err)
	require.Len(t, collect(t)(store.LoadAggregate(t.Context(), "p1")), 1)
	require.Len(t, collect(t)(store.LoadAggregateType(t.Context(), "Person")), 1)

	_, err = store.Append(t.Context(), personEvent("p1", "PersonUpdated", base.Add(time.Second)))
	require.NoError(t, err)

	events := collect(t)(store.LoadAggregate(t.Context(), "p1"))
	assert.Equal(t, []string{"PersonCreated", "PersonUpdated"}, eventTypes(events))
	assert.Len(t, collect(t)(store.LoadAggregateType(t.Context(), "Person")), 2)
}

func testRecordsAreNotShared(t *testing.T, store es.EventStore) {
	stored, err := store.Append(t.Context(), personEvent("p1", "PersonCreated", base))
	require.NoError(t, err)
	stored.EventData["id"] = es.String("tampered")

	first := collect(t)(store.LoadAggregate(t.Context(), "p1"))
	require.Len(t, first, 1)
	first[0].EventData["id"] = es.String("tampered")

	again := collect(t)(store.LoadAggregate(t.Context(), "p1"))
	require.Len(t, again, 1)
	assert.Equal(t, "p1", again[0].EventData.Text("id"))
}

func testConcurrentAppends(t *testing.T, store es.EventStore) {
	const writers = 16

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%02d", i)
			if _, err := store.Append(t.Context(), es.NewEvent("Person", id, "PersonCreated", es.Payload{"id": es.String(id)}, nil)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	var joined error
	for err := range errs {
		joined = errors.Join(joined, err)
	}
	require.NoError(t, joined)

	events := collect(t)(store.LoadAggregateType(t.Context(), "Person"))
	assert.Len(t, events, writers)
}
