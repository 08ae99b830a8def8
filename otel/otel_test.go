package otel

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zeferini/eventsourcing"
	"github.com/zeferini/eventsourcing/fixtures"
	"github.com/zeferini/eventsourcing/person"
)

// The global provider delegates only once, so every test shares one recorder.
var recorder = tracetest.NewSpanRecorder()

func TestMain(m *testing.M) {
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	otel.SetTextMapPropagator(propagation.TraceContext{})
	os.Exit(m.Run())
}

func findSpan(t *testing.T, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	spans := recorder.Ended()
	for i := len(spans) - 1; i >= 0; i-- {
		if spans[i].Name() == name {
			return spans[i]
		}
	}
	t.Fatalf("span %q not recorded", name)
	return nil
}

func attr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestStoreTelemetry_AppendStampsMetadata(t *testing.T) {
	spy := fixtures.NewStoreSpy()
	store := WithStoreTelemetry(spy)

	metadata := eventsourcing.Payload{"source": eventsourcing.String("tests")}
	ctx := eventsourcing.WithCausation(t.Context(), "req-1")
	event := eventsourcing.NewEvent("Person", "p1", "PersonCreated", eventsourcing.Payload{}, metadata)

	stored, err := store.Append(ctx, event)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if got := stored.Metadata.Text("causationId"); got != "req-1" {
		t.Fatalf("expected causationId, got %q", got)
	}
	if stored.Metadata.Text("correlationId") == "" {
		t.Fatalf("expected correlationId in %v", stored.Metadata)
	}
	if stored.Metadata.Text("traceparent") == "" {
		t.Fatalf("expected traceparent in %v", stored.Metadata)
	}
	if stored.Metadata.Text("source") != "tests" {
		t.Fatalf("existing metadata lost: %v", stored.Metadata)
	}
	if _, ok := metadata["correlationId"]; ok {
		t.Fatalf("caller metadata must not be mutated")
	}

	span := findSpan(t, "EventStore.Append")
	if v, ok := attr(span, AttrEventID); !ok || v.AsString() != stored.ID.String() {
		t.Fatalf("expected event id attribute, got %v", v)
	}
	if span.SpanContext().TraceID().String() != stored.Metadata.Text("correlationId") {
		t.Fatalf("correlationId does not match trace id")
	}
}

func TestStoreTelemetry_AppendError(t *testing.T) {
	boom := errors.New("connection reset")
	store := WithStoreTelemetry(fixtures.NewStoreSpy().FailOnAppend(boom))

	_, err := store.Append(t.Context(), eventsourcing.NewEvent("Person", "p2", "PersonCreated", nil, nil))
	if !errors.Is(err, boom) {
		t.Fatalf("expected error to pass through, got %v", err)
	}
	span := findSpan(t, "EventStore.Append")
	if span.Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", span.Status())
	}
}

func TestStoreTelemetry_LoadEndsSpanAfterDrain(t *testing.T) {
	events := fixtures.NewEvent().WithAggregate("Person", "p3").BuildN(4)
	store := WithStoreTelemetry(fixtures.NewStoreSpy().WithEvents(events...))

	it, err := store.LoadAggregate(t.Context(), "p3")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, err := it.All(t.Context())
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d", len(got))
	}

	span := findSpan(t, "EventStore.LoadAggregate")
	if v, ok := attr(span, AttrEventCount); !ok || v.AsInt64() != 4 {
		t.Fatalf("expected event count 4, got %v", v)
	}
}

func TestStoreTelemetry_LoadEndsSpanWhenAbandoned(t *testing.T) {
	events := fixtures.NewEvent().WithAggregate("Person", "p-abandoned").BuildN(3)
	store := WithStoreTelemetry(fixtures.NewStoreSpy().WithEvents(events...))

	ctx, cancel := context.WithCancel(t.Context())
	it, err := store.LoadAggregate(ctx, "p-abandoned")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !it.Next(ctx) {
		t.Fatalf("expected a first event, got %v", it.Err())
	}
	cancel()

	var span sdktrace.ReadOnlySpan
	deadline := time.Now().Add(2 * time.Second)
	for span == nil && time.Now().Before(deadline) {
		for _, s := range recorder.Ended() {
			if v, ok := attr(s, AttrAggregateID); ok && v.AsString() == "p-abandoned" {
				span = s
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	if span == nil {
		t.Fatal("span of an undrained iterator never ended")
	}
	if span.Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", span.Status())
	}
	if v, ok := attr(span, AttrEventCount); !ok || v.AsInt64() != 1 {
		t.Fatalf("expected event count 1, got %v", v)
	}
}

func TestStoreTelemetry_LoadTypeIteratorError(t *testing.T) {
	boom := errors.New("read failed")
	store := WithStoreTelemetry(fixtures.FailingIteratorStore(boom))

	it, err := store.LoadAggregateType(t.Context(), "Person")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := it.All(t.Context()); !errors.Is(err, boom) {
		t.Fatalf("expected iterator error, got %v", err)
	}
	span := findSpan(t, "EventStore.LoadAggregateType")
	if span.Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", span.Status())
	}
}

func TestServiceTelemetry_Outcomes(t *testing.T) {
	svc := WithServiceTelemetry(person.NewService(fixtures.NewStoreSpy()),
		WithAttributes(attribute.String("service", "tests")),
	)

	if _, err := svc.Get(t.Context(), uuid.NewString()); !errors.Is(err, person.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	span := findSpan(t, "person.get")
	if span.Status().Code == codes.Error {
		t.Fatalf("not found must not mark the span as failed")
	}
	if v, _ := attr(span, AttrOutcome); v.AsString() != "not_found" {
		t.Fatalf("expected not_found outcome, got %q", v.AsString())
	}
	if v, _ := attr(span, "service"); v.AsString() != "tests" {
		t.Fatalf("default attributes missing")
	}

	if _, err := svc.Create(t.Context(), person.CreateRequest{Name: "A", Email: "a@x.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if v, _ := attr(findSpan(t, "person.create"), AttrOutcome); v.AsString() != "ok" {
		t.Fatalf("expected ok outcome, got %q", v.AsString())
	}
}

func TestSetup_DisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(t.Context(), SetupConfig{Enabled: false, Endpoint: "http://localhost:4318"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(t.Context()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
