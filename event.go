package eventsourcing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultVersion is recorded on every event. Streams carry no per-aggregate
// sequence; ordering comes from CreatedAt alone.
const DefaultVersion uint64 = 1

var now = time.Now

// Event is an immutable fact recorded about an aggregate.
//
// EventData holds the business payload and is never nil once an event has
// been appended. Metadata carries provenance (source system, acting user,
// trace identifiers) and may contain null values.
type Event struct {
	ID            uuid.UUID
	AggregateID   string
	AggregateType string
	EventType     string
	EventData     Payload
	Metadata      Payload
	Version       uint64
	Timestamp     time.Time
	CreatedAt     time.Time
}

// NewEvent builds an event for the given aggregate. Identity and timestamps
// are left for the store to assign on append.
func NewEvent(aggregateType, aggregateID, eventType string, data Payload, metadata Payload) Event {
	if data == nil {
		data = Payload{}
	}
	return Event{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		EventData:     data,
		Metadata:      metadata,
		Version:       DefaultVersion,
	}
}

// Validate checks the record invariants every store enforces before writing.
func (e Event) Validate() error {
	switch {
	case e.AggregateID == "":
		return fmt.Errorf("%w: aggregate id is required", ErrInvalidEvent)
	case e.AggregateType == "":
		return fmt.Errorf("%w: aggregate type is required", ErrInvalidEvent)
	case e.EventType == "":
		return fmt.Errorf("%w: event type is required", ErrInvalidEvent)
	case e.EventData == nil:
		return fmt.Errorf("%w: event data is required", ErrInvalidEvent)
	}
	return nil
}

// Prepare validates the event and fills in the id, version and creation
// instants when absent. Stores call it exactly once, at append time.
func Prepare(e Event) (Event, error) {
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Version == 0 {
		e.Version = DefaultVersion
	}
	ts := now().UTC()
	if e.Timestamp.IsZero() {
		e.Timestamp = ts
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = e.Timestamp
	}
	if e.Metadata == nil {
		e.Metadata = Payload{}
	}
	return e, nil
}

// Clone returns a deep copy so callers cannot mutate a stored record.
func (e *Event) Clone() *Event {
	c := *e
	c.EventData = e.EventData.Clone()
	c.Metadata = e.Metadata.Clone()
	return &c
}
