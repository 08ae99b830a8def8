package eventsourcing

import "context"

// Evolver applies one historical event to a state and returns the new state.
// Evolvers must not mutate the state they are given.
type Evolver[T any] func(state T, event *Event) T

// HydrateHandler binds an Evolver to the event type it handles.
type HydrateHandler[T any] struct {
	EventType string
	Apply     Evolver[T]
}

// On creates a HydrateHandler for eventType.
func On[T any](eventType string, apply Evolver[T]) HydrateHandler[T] {
	return HydrateHandler[T]{EventType: eventType, Apply: apply}
}

// Hydrate combines handlers into a single Evolver that dispatches on the
// event type. Events without a handler leave the state unchanged, so streams
// written by newer code can still be replayed.
func Hydrate[T any](handlers ...HydrateHandler[T]) Evolver[T] {
	byType := make(map[string]Evolver[T], len(handlers))
	for _, h := range handlers {
		byType[h.EventType] = h.Apply
	}
	return func(state T, event *Event) T {
		if apply, ok := byType[event.EventType]; ok {
			return apply(state, event)
		}
		return state
	}
}

// Fold replays events in slice order.
func Fold[T any](initial T, events []*Event, evolve Evolver[T]) T {
	state := initial
	for _, e := range events {
		state = evolve(state, e)
	}
	return state
}

// FoldIterator replays events as the iterator yields them.
func FoldIterator[T any](ctx context.Context, initial T, it *Iterator[*Event], evolve Evolver[T]) (T, error) {
	state := initial
	for it.Next(ctx) {
		state = evolve(state, it.Value())
	}
	if err := it.Err(); err != nil {
		return initial, err
	}
	return state, nil
}
