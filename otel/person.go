package otel

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zeferini/eventsourcing/person"
)

var _ person.Operations = (*telemetryOperations)(nil)

// WithServiceTelemetry wraps the person operations with a span and duration,
// count and in-flight metrics per call. Not-found and validation outcomes
// are recorded as attributes, not as span errors.
func WithServiceTelemetry(next person.Operations, options ...Option) person.Operations {
	return &telemetryOperations{next: next, cfg: newConfig(options)}
}

type telemetryOperations struct {
	next person.Operations
	cfg  config
}

func (h *telemetryOperations) observe(ctx context.Context, operation string, id string, fn func(ctx context.Context) error) {
	attrs := []attribute.KeyValue{AttrOperation.String(operation)}
	if id != "" {
		attrs = append(attrs, AttrAggregateID.String(id))
	}

	ctx, span := tracer.Start(ctx, "person."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(h.cfg.spanAttributes(ctx, attrs...)...),
	)
	defer span.End()

	opAttr := metric.WithAttributes(AttrOperation.String(operation))
	OperationsInFlight.Add(ctx, 1, opAttr)
	defer OperationsInFlight.Add(ctx, -1, opAttr)

	startTime := time.Now()
	err := fn(ctx)
	OperationsDuration.Record(ctx, float64(time.Since(startTime).Milliseconds()), opAttr)

	outcome := "ok"
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, person.ErrNotFound):
		outcome = "not_found"
		span.SetStatus(codes.Ok, "not found")
	case person.IsValidation(err):
		outcome = "invalid"
		span.SetStatus(codes.Ok, "invalid input")
	default:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(AttrOutcome.String(outcome))
	OperationsHandled.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(operation), AttrOutcome.String(outcome)))
}

func (h *telemetryOperations) Create(ctx context.Context, req person.CreateRequest) (p person.Person, err error) {
	h.observe(ctx, "create", "", func(ctx context.Context) error {
		p, err = h.next.Create(ctx, req)
		return err
	})
	return p, err
}

func (h *telemetryOperations) List(ctx context.Context) (list []person.Person, err error) {
	h.observe(ctx, "list", "", func(ctx context.Context) error {
		list, err = h.next.List(ctx)
		return err
	})
	return list, err
}

func (h *telemetryOperations) Get(ctx context.Context, id string) (p person.Person, err error) {
	h.observe(ctx, "get", id, func(ctx context.Context) error {
		p, err = h.next.Get(ctx, id)
		return err
	})
	return p, err
}

func (h *telemetryOperations) Update(ctx context.Context, id string, req person.UpdateRequest) (p person.Person, err error) {
	h.observe(ctx, "update", id, func(ctx context.Context) error {
		p, err = h.next.Update(ctx, id, req)
		return err
	})
	return p, err
}

func (h *telemetryOperations) Delete(ctx context.Context, id string) (p person.Person, err error) {
	h.observe(ctx, "delete", id, func(ctx context.Context) error {
		p, err = h.next.Delete(ctx, id)
		return err
	})
	return p, err
}
