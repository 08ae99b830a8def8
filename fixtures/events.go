package fixtures

import (
	"time"

	"github.com/google/uuid"

	es "github.com/zeferini/eventsourcing"
)

// EventBuilder provides a fluent API for constructing stored events.
type EventBuilder struct {
	id            uuid.UUID
	aggregateType string
	aggregateID   string
	eventType     string
	data          es.Payload
	metadata      es.Payload
	at            time.Time
}

// NewEvent creates an EventBuilder with sensible defaults.
func NewEvent() *EventBuilder {
	return &EventBuilder{
		aggregateType: "Test",
		aggregateID:   "aggregate-1",
		eventType:     "TestEvent",
		data:          es.Payload{},
		at:            time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// WithAggregate sets the aggregate type and id.
func (b *EventBuilder) WithAggregate(aggregateType, id string) *EventBuilder {
	b.aggregateType = aggregateType
	b.aggregateID = id
	return b
}

// WithType sets the event type.
func (b *EventBuilder) WithType(eventType string) *EventBuilder {
	b.eventType = eventType
	return b
}

// WithData sets the payload from native values.
func (b *EventBuilder) WithData(data map[string]any) *EventBuilder {
	b.data = es.NewPayload(data)
	return b
}

// WithMetadata sets the metadata from native values.
func (b *EventBuilder) WithMetadata(metadata map[string]any) *EventBuilder {
	b.metadata = es.NewPayload(metadata)
	return b
}

// WithID sets the event id.
func (b *EventBuilder) WithID(id uuid.UUID) *EventBuilder {
	b.id = id
	return b
}

// At sets the timestamp and createdAt of the event.
func (b *EventBuilder) At(t time.Time) *EventBuilder {
	b.at = t.UTC()
	return b
}

// Build constructs the event. A random id is used unless one was set.
func (b *EventBuilder) Build() *es.Event {
	id := b.id
	if id == uuid.Nil {
		id = uuid.New()
	}
	metadata := b.metadata
	if metadata == nil {
		metadata = es.Payload{}
	}
	return &es.Event{
		ID:            id,
		AggregateID:   b.aggregateID,
		AggregateType: b.aggregateType,
		EventType:     b.eventType,
		EventData:     b.data.Clone(),
		Metadata:      metadata.Clone(),
		Version:       es.DefaultVersion,
		Timestamp:     b.at,
		CreatedAt:     b.at,
	}
}

// BuildN constructs n events one second apart starting at the configured
// instant.
func (b *EventBuilder) BuildN(n int) []*es.Event {
	events := make([]*es.Event, n)
	start := b.at
	for i := range n {
		events[i] = b.At(start.Add(time.Duration(i) * time.Second)).WithID(uuid.Nil).Build()
	}
	b.at = start
	return events
}
