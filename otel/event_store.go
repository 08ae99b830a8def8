package otel

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/zeferini/eventsourcing"
)

var _ eventsourcing.EventStore = TelemetryStore{}

type TelemetryStore struct {
	next eventsourcing.EventStore
	cfg  config
}

// WithStoreTelemetry wraps an EventStore with spans and metrics. Appended
// events get the trace id as correlationId, the causation id from the
// context as causationId and the propagation headers of the active span in
// their metadata.
func WithStoreTelemetry(next eventsourcing.EventStore, options ...Option) eventsourcing.EventStore {
	return TelemetryStore{next: next, cfg: newConfig(options)}
}

// Append with metrics + span
func (t TelemetryStore) Append(ctx context.Context, event eventsourcing.Event) (eventsourcing.Event, error) {
	ctx, span := tracer.Start(ctx, "EventStore.Append",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.cfg.spanAttributes(ctx,
			AttrOperation.String("append"),
			AttrAggregateType.String(event.AggregateType),
			AttrAggregateID.String(event.AggregateID),
			AttrEventType.String(event.EventType),
		)...),
	)
	defer span.End()

	event.Metadata = stampMetadata(ctx, span, event.Metadata)

	start := time.Now()
	stored, err := t.next.Append(ctx, event)
	EventStoreDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrOperation.String("append")),
	)

	if err != nil {
		EventStoreErrors.Add(ctx, 1, metric.WithAttributes(AttrOperation.String("append")))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stored, err
	}

	EventsAppended.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(stored.EventType)))
	span.SetAttributes(AttrEventID.String(stored.ID.String()))
	span.SetStatus(codes.Ok, "")
	return stored, nil
}

// stampMetadata returns a copy of metadata carrying trace provenance.
func stampMetadata(ctx context.Context, span trace.Span, metadata eventsourcing.Payload) eventsourcing.Payload {
	out := metadata.Clone()
	if out == nil {
		out = eventsourcing.Payload{}
	}

	if causationID := eventsourcing.CausationFromContext(ctx); causationID != "" {
		out["causationId"] = eventsourcing.String(causationID)
	}
	if span.SpanContext().HasTraceID() {
		out["correlationId"] = eventsourcing.String(span.SpanContext().TraceID().String())
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for key, value := range carrier {
		out[key] = eventsourcing.String(value)
	}
	return out
}

// LoadAggregate with inline tracing middleware
func (t TelemetryStore) LoadAggregate(ctx context.Context, id string) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
	return t.load(ctx, "EventStore.LoadAggregate", "load_aggregate",
		func(ctx context.Context) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
			return t.next.LoadAggregate(ctx, id)
		},
		AttrAggregateID.String(id),
	)
}

// LoadAggregateType with inline tracing middleware
func (t TelemetryStore) LoadAggregateType(ctx context.Context, aggregateType string) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
	return t.load(ctx, "EventStore.LoadAggregateType", "load_aggregate_type",
		func(ctx context.Context) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
			return t.next.LoadAggregateType(ctx, aggregateType)
		},
		AttrAggregateType.String(aggregateType),
	)
}

// load keeps the span open until the returned iterator is drained or fails.
// Callers should drain the iterator; a span left open ends with the query's
// context error once that context is done.
func (t TelemetryStore) load(
	ctx context.Context,
	spanName, operation string,
	query func(ctx context.Context) (*eventsourcing.Iterator[*eventsourcing.Event], error),
	attrs ...attribute.KeyValue,
) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
	startedAt := time.Now()
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.cfg.spanAttributes(ctx, append(attrs, AttrOperation.String(operation))...)...),
	)
	opAttr := metric.WithAttributes(AttrOperation.String(operation))

	iter, err := query(ctx)
	if err != nil {
		EventStoreErrors.Add(ctx, 1, opAttr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}

	var (
		eventCount atomic.Int64
		once       sync.Once
	)
	finish := func(ctx context.Context, err error) {
		once.Do(func() {
			span.SetAttributes(AttrEventCount.Int64(eventCount.Load()))
			if err == nil {
				EventStoreDuration.Record(ctx, float64(time.Since(startedAt).Milliseconds()), opAttr)
				span.SetStatus(codes.Ok, "")
			} else {
				EventStoreErrors.Add(ctx, 1, opAttr)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		})
	}
	stop := context.AfterFunc(ctx, func() {
		finish(context.WithoutCancel(ctx), ctx.Err())
	})

	return eventsourcing.NewIteratorFunc(func(ctx context.Context) (*eventsourcing.Event, error) {
		if !iter.Next(ctx) {
			stop()
			err := iter.Err()
			finish(ctx, err)
			if err == nil {
				return nil, io.EOF
			}
			return nil, err
		}

		eventCount.Add(1)
		EventsLoaded.Add(ctx, 1, opAttr)
		return iter.Value(), nil
	}), nil
}

// Close just forwards
func (t TelemetryStore) Close() error {
	return t.next.Close()
}
