package fixtures

import (
	"context"
	"sync"

	es "github.com/zeferini/eventsourcing"
)

var _ es.EventStore = (*StoreSpy)(nil)

// StoreSpy is a configurable in-memory EventStore for testing.
// It tracks calls and allows injecting custom behavior or failures.
type StoreSpy struct {
	mu sync.Mutex

	// Function overrides for custom behavior
	AppendFn            func(ctx context.Context, event es.Event) (es.Event, error)
	LoadAggregateFn     func(ctx context.Context, id string) (*es.Iterator[*es.Event], error)
	LoadAggregateTypeFn func(ctx context.Context, aggregateType string) (*es.Iterator[*es.Event], error)
	CloseFn             func() error

	// Call tracking
	AppendCalls            int
	LoadAggregateCalls     int
	LoadAggregateTypeCalls int
	CloseCalls             int

	// Captured arguments
	Appended          []es.Event
	LastAggregateID   string
	LastAggregateType string

	events []*es.Event

	// Error injection
	loadErr   error
	appendErr error
}

// NewStoreSpy creates a new StoreSpy with default behavior.
func NewStoreSpy() *StoreSpy {
	return &StoreSpy{}
}

// WithEvents pre-populates the store. Events are kept as given; ids and
// timestamps are not assigned.
func (s *StoreSpy) WithEvents(events ...*es.Event) *StoreSpy {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.events = append(s.events, e.Clone())
	}
	return s
}

// FailOnLoad configures the store to return an error on load operations.
func (s *StoreSpy) FailOnLoad(err error) *StoreSpy {
	s.loadErr = err
	return s
}

// FailOnAppend configures the store to return an error on append.
func (s *StoreSpy) FailOnAppend(err error) *StoreSpy {
	s.appendErr = err
	return s
}

// Append implements EventStore.Append.
func (s *StoreSpy) Append(ctx context.Context, event es.Event) (es.Event, error) {
	s.mu.Lock()
	s.AppendCalls++
	s.mu.Unlock()

	if s.AppendFn != nil {
		return s.AppendFn(ctx, event)
	}

	if s.appendErr != nil {
		return es.Event{}, s.appendErr
	}

	stored, err := es.Prepare(event)
	if err != nil {
		return es.Event{}, err
	}

	s.mu.Lock()
	s.Appended = append(s.Appended, stored)
	s.events = append(s.events, stored.Clone())
	s.mu.Unlock()

	return stored, nil
}

// LoadAggregate implements EventStore.LoadAggregate.
func (s *StoreSpy) LoadAggregate(ctx context.Context, id string) (*es.Iterator[*es.Event], error) {
	s.mu.Lock()
	s.LoadAggregateCalls++
	s.LastAggregateID = id
	s.mu.Unlock()

	if s.LoadAggregateFn != nil {
		return s.LoadAggregateFn(ctx, id)
	}

	if s.loadErr != nil {
		return nil, s.loadErr
	}

	events := s.filter(func(e *es.Event) bool { return e.AggregateID == id })
	es.SortByCreatedAt(events, false)
	return SliceIterator(events), nil
}

// LoadAggregateType implements EventStore.LoadAggregateType.
func (s *StoreSpy) LoadAggregateType(ctx context.Context, aggregateType string) (*es.Iterator[*es.Event], error) {
	s.mu.Lock()
	s.LoadAggregateTypeCalls++
	s.LastAggregateType = aggregateType
	s.mu.Unlock()

	if s.LoadAggregateTypeFn != nil {
		return s.LoadAggregateTypeFn(ctx, aggregateType)
	}

	if s.loadErr != nil {
		return nil, s.loadErr
	}

	events := s.filter(func(e *es.Event) bool { return e.AggregateType == aggregateType })
	es.SortByCreatedAt(events, true)
	return SliceIterator(events), nil
}

func (s *StoreSpy) filter(match func(*es.Event) bool) []*es.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*es.Event
	for _, e := range s.events {
		if match(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}

// LastAppended returns the most recently appended event, if any.
func (s *StoreSpy) LastAppended() (es.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Appended) == 0 {
		return es.Event{}, false
	}
	return s.Appended[len(s.Appended)-1], true
}

// Close implements EventStore.Close.
func (s *StoreSpy) Close() error {
	s.mu.Lock()
	s.CloseCalls++
	s.mu.Unlock()

	if s.CloseFn != nil {
		return s.CloseFn()
	}
	return nil
}

// Reset clears all call counts and stored data.
func (s *StoreSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.AppendCalls = 0
	s.LoadAggregateCalls = 0
	s.LoadAggregateTypeCalls = 0
	s.CloseCalls = 0
	s.Appended = nil
	s.LastAggregateID = ""
	s.LastAggregateType = ""
	s.events = nil
	s.loadErr = nil
	s.appendErr = nil
}

// Pre-built store scenarios.

// FailingStore returns a StoreSpy that fails on all operations.
func FailingStore(err error) *StoreSpy {
	return NewStoreSpy().FailOnLoad(err).FailOnAppend(err)
}

// FailingIteratorStore returns a StoreSpy whose queries succeed but whose
// iterators fail with err.
func FailingIteratorStore(err error) *StoreSpy {
	store := NewStoreSpy()
	store.LoadAggregateFn = func(ctx context.Context, id string) (*es.Iterator[*es.Event], error) {
		return FailingIterator(err), nil
	}
	store.LoadAggregateTypeFn = func(ctx context.Context, aggregateType string) (*es.Iterator[*es.Event], error) {
		return FailingIterator(err), nil
	}
	return store
}
