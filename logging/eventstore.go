package logging

import (
	"context"
	"io"
	"log/slog"

	"github.com/zeferini/eventsourcing"
)

var _ eventsourcing.EventStore = (*storeLogger)(nil)

type storeLogger struct {
	logger *slog.Logger
	next   eventsourcing.EventStore
}

// WithStoreLogging wraps an EventStore and logs every append and query.
// Successes are logged at debug level, failures at error level.
func WithStoreLogging(logger *slog.Logger, next eventsourcing.EventStore) eventsourcing.EventStore {
	return &storeLogger{logger: logger, next: next}
}

func (s *storeLogger) Append(ctx context.Context, event eventsourcing.Event) (eventsourcing.Event, error) {
	l := s.logger.With(
		"aggregateType", event.AggregateType,
		"aggregateId", event.AggregateID,
		"eventType", event.EventType,
		"causation", eventsourcing.CausationFromContext(ctx),
	)

	stored, err := s.next.Append(ctx, event)
	if err != nil {
		l.ErrorContext(ctx, "error appending event", "error", err)
		return stored, err
	}

	l.DebugContext(ctx, "event appended", "eventId", stored.ID, "createdAt", stored.CreatedAt)
	return stored, nil
}

func (s *storeLogger) LoadAggregate(ctx context.Context, aggregateID string) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
	l := s.logger.With("aggregateId", aggregateID)
	it, err := s.next.LoadAggregate(ctx, aggregateID)
	if err != nil {
		l.ErrorContext(ctx, "error loading aggregate", "error", err)
		return nil, err
	}
	return s.counting(l, "aggregate loaded", it), nil
}

func (s *storeLogger) LoadAggregateType(ctx context.Context, aggregateType string) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
	l := s.logger.With("aggregateType", aggregateType)
	it, err := s.next.LoadAggregateType(ctx, aggregateType)
	if err != nil {
		l.ErrorContext(ctx, "error loading aggregate type", "error", err)
		return nil, err
	}
	return s.counting(l, "aggregate type loaded", it), nil
}

// counting passes events through and logs once the iterator is drained.
func (s *storeLogger) counting(l *slog.Logger, msg string, it *eventsourcing.Iterator[*eventsourcing.Event]) *eventsourcing.Iterator[*eventsourcing.Event] {
	count := 0
	return eventsourcing.NewIteratorFunc(func(ctx context.Context) (*eventsourcing.Event, error) {
		if it.Next(ctx) {
			count++
			return it.Value(), nil
		}
		if err := it.Err(); err != nil {
			l.ErrorContext(ctx, "error reading events", "events", count, "error", err)
			return nil, err
		}
		l.DebugContext(ctx, msg, "events", count)
		return nil, io.EOF
	})
}

func (s *storeLogger) Close() error {
	err := s.next.Close()
	if err != nil {
		s.logger.Error("error closing event store", "error", err)
	}
	return err
}
