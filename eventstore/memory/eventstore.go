package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/zeferini/eventsourcing"
)

var _ eventsourcing.EventStore = (*MemoryStore)(nil)

// MemoryStore keeps the log in process memory. Records are copied on the way
// in and out so callers never share state with the log.
type MemoryStore struct {
	mu     sync.RWMutex
	global []*eventsourcing.Event
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		global: make([]*eventsourcing.Event, 0),
	}
}

func (m *MemoryStore) Append(ctx context.Context, event eventsourcing.Event) (eventsourcing.Event, error) {
	if err := ctx.Err(); err != nil {
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", err)
	}

	stored, err := eventsourcing.Prepare(event)
	if err != nil {
		return eventsourcing.Event{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", eventsourcing.ErrStoreClosed)
	}

	for _, e := range m.global {
		if e.ID == stored.ID {
			return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", fmt.Errorf("%w: %s", eventsourcing.ErrDuplicateEvent, stored.ID))
		}
	}

	m.global = append(m.global, stored.Clone())
	return *stored.Clone(), nil
}

func (m *MemoryStore) LoadAggregate(ctx context.Context, aggregateID string) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
	events, err := m.filter("load aggregate", func(e *eventsourcing.Event) bool {
		return e.AggregateID == aggregateID
	})
	if err != nil {
		return nil, err
	}
	eventsourcing.SortByCreatedAt(events, false)
	return eventsourcing.NewSliceIterator(events), nil
}

func (m *MemoryStore) LoadAggregateType(ctx context.Context, aggregateType string) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
	events, err := m.filter("load aggregate type", func(e *eventsourcing.Event) bool {
		return e.AggregateType == aggregateType
	})
	if err != nil {
		return nil, err
	}
	eventsourcing.SortByCreatedAt(events, true)
	return eventsourcing.NewSliceIterator(events), nil
}

func (m *MemoryStore) filter(op string, match func(*eventsourcing.Event) bool) ([]*eventsourcing.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, eventsourcing.WrapStorageError(op, eventsourcing.ErrStoreClosed)
	}

	var out []*eventsourcing.Event
	for _, e := range m.global {
		if match(e) {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

// Len returns the number of appended events.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.global)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
