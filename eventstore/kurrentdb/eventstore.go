package kurrentdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/kurrent-io/KurrentDB-Client-Go/kurrentdb"
	"github.com/zeferini/eventsourcing"
)

var _ eventsourcing.EventStore = (*eventstore)(nil)

// DefaultAggregateTypes are the stream categories searched by LoadAggregate
// when no types are configured.
var DefaultAggregateTypes = []string{"Person"}

type eventstore struct {
	client *kurrentdb.Client
	codec  eventsourcing.Codec
	types  []string
}

// NewEventStore creates a KurrentDB-backed eventstore. Each aggregate lives in
// its own stream named "<aggregateType>-<aggregateID>"; the per-type query
// reads the "$ce-<aggregateType>" category projection, which must be enabled
// on the server.
//
// LoadAggregate receives only an id, so it probes one stream per known
// aggregate type.
func NewEventStore(db *kurrentdb.Client, aggregateTypes ...string) eventsourcing.EventStore {
	if len(aggregateTypes) == 0 {
		aggregateTypes = DefaultAggregateTypes
	}
	return &eventstore{
		client: db,
		codec:  eventsourcing.DefaultCodec,
		types:  aggregateTypes,
	}
}

// Open connects to the server described by a kurrentdb:// connection string.
func Open(connectionString string, aggregateTypes ...string) (eventsourcing.EventStore, error) {
	settings, err := kurrentdb.ParseConnectionString(connectionString)
	if err != nil {
		return nil, eventsourcing.WrapStorageError("open", err)
	}
	client, err := kurrentdb.NewClient(settings)
	if err != nil {
		return nil, eventsourcing.WrapStorageError("open", err)
	}
	return NewEventStore(client, aggregateTypes...), nil
}

func streamName(aggregateType, aggregateID string) string {
	return aggregateType + "-" + aggregateID
}

func categoryStream(aggregateType string) string {
	return "$ce-" + aggregateType
}

func (e *eventstore) Append(ctx context.Context, event eventsourcing.Event) (eventsourcing.Event, error) {
	stored, err := eventsourcing.Prepare(event)
	if err != nil {
		return eventsourcing.Event{}, err
	}
	if strings.Contains(stored.AggregateType, "-") {
		return eventsourcing.Event{}, fmt.Errorf("%w: aggregate type %q must not contain '-'", eventsourcing.ErrInvalidEvent, stored.AggregateType)
	}

	kevent, err := toEventData(e.codec, &stored)
	if err != nil {
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", err)
	}

	_, err = e.client.AppendToStream(ctx, streamName(stored.AggregateType, stored.AggregateID), kurrentdb.AppendToStreamOptions{
		StreamState: kurrentdb.Any{},
	}, kevent)
	if err != nil {
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", err)
	}

	return stored, nil
}

func (e *eventstore) LoadAggregate(ctx context.Context, id string) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
	var events []*eventsourcing.Event
	for _, aggregateType := range e.types {
		found, err := e.readAll(ctx, streamName(aggregateType, id), kurrentdb.ReadStreamOptions{
			Direction: kurrentdb.Forwards,
			From:      kurrentdb.Start{},
		})
		if err != nil {
			return nil, eventsourcing.WrapStorageError("load aggregate", err)
		}
		events = append(events, found...)
	}

	eventsourcing.SortByCreatedAt(events, false)
	return eventsourcing.NewSliceIterator(events), nil
}

func (e *eventstore) LoadAggregateType(ctx context.Context, aggregateType string) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
	// Read forwards and sort so ties on createdAt reverse to append order.
	events, err := e.readAll(ctx, categoryStream(aggregateType), kurrentdb.ReadStreamOptions{
		Direction:      kurrentdb.Forwards,
		From:           kurrentdb.Start{},
		ResolveLinkTos: true,
	})
	if err != nil {
		return nil, eventsourcing.WrapStorageError("load aggregate type", err)
	}

	eventsourcing.SortByCreatedAt(events, true)
	return eventsourcing.NewSliceIterator(events), nil
}

// readAll drains a stream. A stream that does not exist yields no events.
func (e *eventstore) readAll(ctx context.Context, stream string, opts kurrentdb.ReadStreamOptions) ([]*eventsourcing.Event, error) {
	streamer, err := e.client.ReadStream(ctx, stream, opts, math.MaxInt64)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	defer streamer.Close()

	var events []*eventsourcing.Event
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resolved, err := streamer.Recv()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			return nil, err
		}

		// Links whose target was deleted resolve to nothing.
		if resolved == nil || resolved.Event == nil {
			continue
		}

		ev, err := fromRecorded(e.codec, resolved.Event)
		if err != nil {
			return nil, fmt.Errorf("cannot decode event %s: %w", resolved.Event.EventID, err)
		}
		events = append(events, ev)
	}
}

func isNotFound(err error) bool {
	var kerr *kurrentdb.Error
	return errors.As(err, &kerr) && kerr.Code() == kurrentdb.ErrorCodeResourceNotFound
}

func (e *eventstore) Close() error {
	return e.client.Close()
}

// recordMetadata is written as the KurrentDB user metadata. It carries the
// record fields the server has no column for, next to the event metadata.
type recordMetadata struct {
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	Version       uint64          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	CreatedAt     time.Time       `json:"createdAt"`
	Metadata      json.RawMessage `json:"metadata"`
}

func toEventData(codec eventsourcing.Codec, e *eventsourcing.Event) (kurrentdb.EventData, error) {
	data, err := codec.Encode(e.EventData)
	if err != nil {
		return kurrentdb.EventData{}, err
	}
	meta, err := codec.Encode(e.Metadata)
	if err != nil {
		return kurrentdb.EventData{}, err
	}
	envelope, err := json.Marshal(recordMetadata{
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Version:       e.Version,
		Timestamp:     e.Timestamp,
		CreatedAt:     e.CreatedAt,
		Metadata:      meta,
	})
	if err != nil {
		return kurrentdb.EventData{}, err
	}

	return kurrentdb.EventData{
		EventID:     e.ID,
		EventType:   e.EventType,
		ContentType: kurrentdb.ContentTypeJson,
		Data:        data,
		Metadata:    envelope,
	}, nil
}

func fromRecorded(codec eventsourcing.Codec, rec *kurrentdb.RecordedEvent) (*eventsourcing.Event, error) {
	data, err := codec.Decode(rec.Data)
	if err != nil {
		return nil, err
	}

	var envelope recordMetadata
	if len(rec.UserMetadata) > 0 {
		if err := json.Unmarshal(rec.UserMetadata, &envelope); err != nil {
			return nil, err
		}
	}
	meta, err := codec.Decode(envelope.Metadata)
	if err != nil {
		return nil, err
	}

	ev := &eventsourcing.Event{
		ID:            rec.EventID,
		AggregateID:   envelope.AggregateID,
		AggregateType: envelope.AggregateType,
		EventType:     rec.EventType,
		EventData:     data,
		Metadata:      meta,
		Version:       envelope.Version,
		Timestamp:     envelope.Timestamp,
		CreatedAt:     envelope.CreatedAt,
	}

	// Events written by other clients only have the server's view.
	if ev.AggregateType == "" || ev.AggregateID == "" {
		ev.AggregateType, ev.AggregateID, _ = strings.Cut(rec.StreamID, "-")
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = rec.CreatedDate.UTC()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = ev.CreatedAt
	}
	if ev.Version == 0 {
		ev.Version = eventsourcing.DefaultVersion
	}
	return ev, nil
}
