package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zeferini/eventsourcing"
)

const (
	instrumentationName = "github.com/zeferini/eventsourcing"
)

// Semantic attribute keys following OpenTelemetry conventions
const (
	// Aggregate attributes
	AttrAggregateID   = attribute.Key("eventsourcing.aggregate.id")
	AttrAggregateType = attribute.Key("eventsourcing.aggregate.type")

	// EventData attributes
	AttrEventType  = attribute.Key("eventsourcing.event.type")
	AttrEventID    = attribute.Key("eventsourcing.event.id")
	AttrEventCount = attribute.Key("eventsourcing.events.count")

	// Operation attributes
	AttrOperation = attribute.Key("eventsourcing.operation")
	AttrOutcome   = attribute.Key("eventsourcing.outcome")
)

var (
	meter  = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(eventsourcing.InstrumentationVersion))
	tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(eventsourcing.InstrumentationVersion))

	// EventData metrics
	EventsAppended, _ = meter.Int64Counter(
		"eventsourcing.events.appended",
		metric.WithDescription("Number of events appended to the store"),
		metric.WithUnit("{event}"),
	)

	EventsLoaded, _ = meter.Int64Counter(
		"eventsourcing.events.loaded",
		metric.WithDescription("Number of events loaded from the store"),
		metric.WithUnit("{event}"),
	)

	// EventStore metrics
	EventStoreDuration, _ = meter.Float64Histogram(
		"eventsourcing.eventstore.duration",
		metric.WithDescription("Event store operation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	EventStoreErrors, _ = meter.Int64Counter(
		"eventsourcing.eventstore.errors",
		metric.WithDescription("Number of event store errors"),
		metric.WithUnit("{error}"),
	)

	// Person operation metrics
	OperationsHandled, _ = meter.Int64Counter(
		"eventsourcing.person.operations",
		metric.WithDescription("Number of person operations handled"),
		metric.WithUnit("{operation}"),
	)

	OperationsDuration, _ = meter.Float64Histogram(
		"eventsourcing.person.duration",
		metric.WithDescription("Person operation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	OperationsInFlight, _ = meter.Int64UpDownCounter(
		"eventsourcing.person.in_flight",
		metric.WithDescription("Number of person operations currently being processed"),
		metric.WithUnit("{operation}"),
	)
)
