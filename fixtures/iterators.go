package fixtures

import (
	"context"
	"io"

	es "github.com/zeferini/eventsourcing"
)

// SliceIterator creates an iterator from a slice of event pointers.
func SliceIterator(events []*es.Event) *es.Iterator[*es.Event] {
	idx := 0
	return es.NewIteratorFunc(func(ctx context.Context) (*es.Event, error) {
		if idx >= len(events) {
			return nil, io.EOF
		}
		e := events[idx]
		idx++
		return e, nil
	})
}

// FailingIterator returns an iterator that fails with the given error.
func FailingIterator(err error) *es.Iterator[*es.Event] {
	return es.NewIteratorFunc(func(ctx context.Context) (*es.Event, error) {
		return nil, err
	})
}

// FailAfterNIterator returns an iterator that yields n items, then fails.
func FailAfterNIterator(events []*es.Event, n int, err error) *es.Iterator[*es.Event] {
	idx := 0
	return es.NewIteratorFunc(func(ctx context.Context) (*es.Event, error) {
		if idx >= n {
			return nil, err
		}
		if idx >= len(events) {
			return nil, io.EOF
		}
		e := events[idx]
		idx++
		return e, nil
	})
}
