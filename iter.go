package eventsourcing

import (
	"context"
	"errors"
	"io"
)

// Iterator is a pull-based cursor over query results. The producing function
// returns io.EOF once exhausted; any other error stops iteration and is
// reported by Err.
type Iterator[T any] struct {
	nextFunc func(ctx context.Context) (T, error)
	current  T
	err      error
	done     bool
}

// NewIteratorFunc creates an Iterator from a function that produces the next item.
func NewIteratorFunc[T any](nextFunc func(ctx context.Context) (T, error)) *Iterator[T] {
	return &Iterator[T]{nextFunc: nextFunc}
}

// NewSliceIterator yields the items of a slice in order.
func NewSliceIterator[T any](items []T) *Iterator[T] {
	idx := 0
	return NewIteratorFunc(func(ctx context.Context) (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if idx >= len(items) {
			return zero, io.EOF
		}
		item := items[idx]
		idx++
		return item, nil
	})
}

// Next advances the iterator. It returns false once the iterator is
// exhausted or failed.
func (it *Iterator[T]) Next(ctx context.Context) bool {
	if it.done {
		return false
	}
	item, err := it.nextFunc(ctx)
	if err != nil {
		it.done = true
		var zero T
		it.current = zero
		if !errors.Is(err, io.EOF) {
			it.err = err
		}
		return false
	}
	it.current = item
	return true
}

func (it *Iterator[T]) Value() T {
	return it.current
}

// Err returns the error that stopped iteration, or nil on a clean end.
func (it *Iterator[T]) Err() error {
	return it.err
}

// All consumes the iterator and returns the remaining items.
func (it *Iterator[T]) All(ctx context.Context) ([]T, error) {
	var results []T
	for it.Next(ctx) {
		results = append(results, it.Value())
	}
	return results, it.Err()
}
