package eventsourcing

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	actorKey       ctxKey = "actor"
	causationKey   ctxKey = "causation"
	eventIDKey     ctxKey = "eventID"
	aggregateIDKey ctxKey = "aggregateID"
	eventTypeKey   ctxKey = "eventType"
)

// WithActor records the user on whose behalf events are appended.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey, userID)
}

// ActorFromContext returns the acting user or "" if not present.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey).(string); ok {
		return v
	}
	return ""
}

// WithCausation records the id of the request or message that caused the
// events appended under ctx.
func WithCausation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, causationKey, id)
}

// CausationFromContext returns the causation id or "" if not present.
func CausationFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(causationKey).(string); ok {
		return v
	}
	return ""
}

// WithEvent adds the identity of an event to the context.
func WithEvent(ctx context.Context, e *Event) context.Context {
	ctx = context.WithValue(ctx, eventIDKey, e.ID)
	ctx = context.WithValue(ctx, aggregateIDKey, e.AggregateID)
	ctx = context.WithValue(ctx, eventTypeKey, e.EventType)
	return ctx
}

// EventIDFromContext returns the EventID or uuid.Nil if not present
func EventIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(eventIDKey).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// AggregateIDFromContext returns the aggregate id or "" if not present
func AggregateIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(aggregateIDKey).(string); ok {
		return v
	}
	return ""
}

// EventTypeFromContext returns the event type or "" if not present
func EventTypeFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(eventTypeKey).(string); ok {
		return v
	}
	return ""
}
