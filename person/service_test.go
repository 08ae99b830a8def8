package person

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/zeferini/eventsourcing"
	"github.com/zeferini/eventsourcing/eventstore/memory"
	"github.com/zeferini/eventsourcing/fixtures"
)

// stepClock returns a clock that advances by step on every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	current := start.Add(-step)
	return func() time.Time {
		current = current.Add(step)
		return current
	}
}

func ptr(s string) *string { return &s }

func TestService_CreateThenGet(t *testing.T) {
	ctx := t.Context()
	svc := NewService(memory.NewMemoryStore())

	p, err := svc.Create(ctx, CreateRequest{Name: "Grace Hopper", Email: "grace@navy.mil"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := uuid.Parse(p.ID); err != nil {
		t.Fatalf("expected uuid id, got %q", p.ID)
	}

	got, err := svc.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Grace Hopper" || got.Email != "grace@navy.mil" {
		t.Fatalf("unexpected person: %+v", got)
	}
	if !got.CreatedAt.Equal(got.UpdatedAt) {
		t.Fatalf("expected createdAt == updatedAt, got %v / %v", got.CreatedAt, got.UpdatedAt)
	}
	if !got.CreatedAt.Equal(p.CreatedAt) {
		t.Fatalf("replayed createdAt %v differs from returned %v", got.CreatedAt, p.CreatedAt)
	}
}

func TestService_CreateRecordsEvent(t *testing.T) {
	store := fixtures.NewStoreSpy()
	svc := NewService(store, WithSource("tests"))
	ctx := eventsourcing.WithActor(t.Context(), "user-7")

	p, err := svc.Create(ctx, CreateRequest{Name: "A", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	e, ok := store.LastAppended()
	if !ok {
		t.Fatalf("no event appended")
	}
	if e.EventType != EventCreated || e.AggregateType != AggregateType || e.AggregateID != p.ID {
		t.Fatalf("unexpected event header: %+v", e)
	}
	if e.Version != 1 {
		t.Fatalf("expected version 1, got %d", e.Version)
	}
	for _, key := range []string{"id", "name", "email", "createdAt"} {
		if _, ok := e.EventData.Lookup(key); !ok {
			t.Fatalf("event data misses %q: %v", key, e.EventData)
		}
	}
	if got := e.Metadata.Text("source"); got != "tests" {
		t.Fatalf("expected source metadata, got %q", got)
	}
	if got := e.Metadata.Text("userId"); got != "user-7" {
		t.Fatalf("expected userId metadata, got %q", got)
	}
}

func TestService_AnonymousActorIsNull(t *testing.T) {
	store := fixtures.NewStoreSpy()
	svc := NewService(store)

	if _, err := svc.Create(t.Context(), CreateRequest{Name: "A", Email: "a@x.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	e, _ := store.LastAppended()
	v, ok := e.Metadata["userId"]
	if !ok || !v.IsNull() {
		t.Fatalf("expected null userId, got %v (present=%v)", v, ok)
	}
}

func TestService_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		req    CreateRequest
		fields []string
	}{
		{"empty name", CreateRequest{Name: "", Email: "a@x.com"}, []string{"name"}},
		{"blank name", CreateRequest{Name: "   ", Email: "a@x.com"}, []string{"name"}},
		{"long name", CreateRequest{Name: strings.Repeat("n", 121), Email: "a@x.com"}, []string{"name"}},
		{"bad email", CreateRequest{Name: "A", Email: "not-an-email"}, []string{"email"}},
		{"long email", CreateRequest{Name: "A", Email: strings.Repeat("e", 175) + "@x.com"}, []string{"email"}},
		{"both", CreateRequest{}, []string{"name", "email"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := fixtures.NewStoreSpy()
			svc := NewService(store)

			_, err := svc.Create(t.Context(), tt.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(ve.Fields) != len(tt.fields) {
				t.Fatalf("expected fields %v, got %+v", tt.fields, ve.Fields)
			}
			for i, f := range tt.fields {
				if ve.Fields[i].Field != f {
					t.Fatalf("expected field %q at %d, got %q", f, i, ve.Fields[i].Field)
				}
			}
			if store.AppendCalls != 0 {
				t.Fatalf("no event may be appended on validation failure")
			}
		})
	}
}

func TestService_CreateBoundaries(t *testing.T) {
	svc := NewService(memory.NewMemoryStore())
	name := strings.Repeat("é", 120)
	email := strings.Repeat("l", 60) + "@" + strings.Repeat("d", 50) + "." + strings.Repeat("d", 50) + "." + strings.Repeat("d", 13) + ".com"

	if len(email) != 180 {
		t.Fatalf("bad fixture: %d", len(email))
	}
	if _, err := svc.Create(t.Context(), CreateRequest{Name: name, Email: email}); err != nil {
		t.Fatalf("expected limits to be accepted, got %v", err)
	}
	if _, err := svc.Create(t.Context(), CreateRequest{Name: "X", Email: "x@y.io"}); err != nil {
		t.Fatalf("expected single character name to be accepted, got %v", err)
	}
}

func TestService_GetMalformedID(t *testing.T) {
	store := fixtures.NewStoreSpy()
	svc := NewService(store)

	_, err := svc.Get(t.Context(), "not-a-uuid")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err.Error() != "Person with ID not-a-uuid not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if store.LoadAggregateCalls != 0 {
		t.Fatalf("malformed id must not reach the store")
	}
}

func TestService_GetUnknownID(t *testing.T) {
	svc := NewService(memory.NewMemoryStore())
	_, err := svc.Get(t.Context(), uuid.NewString())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_PartialUpdate(t *testing.T) {
	ctx := t.Context()
	svc := NewService(memory.NewMemoryStore())

	p, err := svc.Create(ctx, CreateRequest{Name: "A", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	up, err := svc.Update(ctx, p.ID, UpdateRequest{Name: ptr("B")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if up.Name != "B" || up.Email != "a@x.com" {
		t.Fatalf("unexpected returned person: %+v", up)
	}
	if !up.UpdatedAt.After(p.UpdatedAt) {
		t.Fatalf("updatedAt %v not after %v", up.UpdatedAt, p.UpdatedAt)
	}

	got, err := svc.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "B" || got.Email != "a@x.com" || !got.UpdatedAt.Equal(up.UpdatedAt) {
		t.Fatalf("projection %+v does not match update %+v", got, up)
	}
}

func TestService_UpdateWritesOnlyGivenFields(t *testing.T) {
	store := fixtures.NewStoreSpy()
	svc := NewService(store)

	p, err := svc.Create(t.Context(), CreateRequest{Name: "A", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Update(t.Context(), p.ID, UpdateRequest{Email: ptr("b@x.com")}); err != nil {
		t.Fatalf("update: %v", err)
	}

	e, _ := store.LastAppended()
	if e.EventType != EventUpdated {
		t.Fatalf("expected %s, got %s", EventUpdated, e.EventType)
	}
	if _, ok := e.EventData["name"]; ok {
		t.Fatalf("name must not be written when not requested: %v", e.EventData)
	}
	if e.EventData.Text("email") != "b@x.com" {
		t.Fatalf("email not written: %v", e.EventData)
	}
	if _, ok := e.EventData.Lookup("updatedAt"); !ok {
		t.Fatalf("updatedAt is mandatory: %v", e.EventData)
	}
}

func TestService_UpdateWithFrozenClock(t *testing.T) {
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(memory.NewMemoryStore(), WithClock(func() time.Time { return frozen }))

	p, err := svc.Create(t.Context(), CreateRequest{Name: "A", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	up, err := svc.Update(t.Context(), p.ID, UpdateRequest{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !up.UpdatedAt.After(p.UpdatedAt) {
		t.Fatalf("updatedAt must move forward, got %v after %v", up.UpdatedAt, p.UpdatedAt)
	}
}

func TestService_UpdateValidation(t *testing.T) {
	store := fixtures.NewStoreSpy()
	svc := NewService(store)

	tests := []struct {
		name string
		req  UpdateRequest
	}{
		{"empty name", UpdateRequest{Name: ptr("")}},
		{"long name", UpdateRequest{Name: ptr(strings.Repeat("n", 121))}},
		{"bad email", UpdateRequest{Email: ptr("nope")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Validation runs before the lookup, so even an unknown id fails validation.
			_, err := svc.Update(t.Context(), uuid.NewString(), tt.req)
			if !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if store.AppendCalls != 0 || store.LoadAggregateCalls != 0 {
		t.Fatalf("store must not be touched on invalid input")
	}
}

func TestService_UpdateNotFound(t *testing.T) {
	store := fixtures.NewStoreSpy()
	svc := NewService(store)

	_, err := svc.Update(t.Context(), uuid.NewString(), UpdateRequest{Name: ptr("B")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if store.AppendCalls != 0 {
		t.Fatalf("no event may be appended for a missing person")
	}
}

func TestService_DeleteNotFound(t *testing.T) {
	svc := NewService(memory.NewMemoryStore())
	_, err := svc.Delete(t.Context(), "garbage")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_DeleteTwice(t *testing.T) {
	svc := NewService(memory.NewMemoryStore())
	p, _ := svc.Create(t.Context(), CreateRequest{Name: "A", Email: "a@x.com"})

	if _, err := svc.Delete(t.Context(), p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Delete(t.Context(), p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}

func TestService_ListOrderedByCreatedAt(t *testing.T) {
	svc := NewService(memory.NewMemoryStore(), WithClock(stepClock(t0, time.Second)))
	ctx := t.Context()

	var ids []string
	for _, name := range []string{"first", "second", "third"} {
		p, err := svc.Create(ctx, CreateRequest{Name: name, Email: name + "@x.com"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, p.ID)
	}
	if _, err := svc.Delete(ctx, ids[1]); err != nil {
		t.Fatalf("delete: %v", err)
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != ids[0] || list[1].ID != ids[2] {
		t.Fatalf("unexpected listing: %+v", list)
	}
}

func TestService_ListIgnoresStoreOrder(t *testing.T) {
	t1, t2, t3 := t0, t0.Add(time.Minute), t0.Add(2*time.Minute)
	store := fixtures.NewStoreSpy()
	// The store hands back events in an arbitrary order.
	store.LoadAggregateTypeFn = func(_ context.Context, _ string) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
		return fixtures.SliceIterator([]*eventsourcing.Event{
			created("b", "B", "b@x.com", t2),
			created("c", "C", "c@x.com", t3),
			created("a", "A", "a@x.com", t1),
		}), nil
	}

	list, err := NewService(store).List(t.Context())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got []string
	for _, p := range list {
		got = append(got, p.ID)
	}
	if strings.Join(got, ",") != "a,b,c" {
		t.Fatalf("expected a,b,c, got %v", got)
	}
}

func TestService_StorageErrors(t *testing.T) {
	boom := &eventsourcing.StorageError{Op: "append", Err: errors.New("connection refused")}

	t.Run("append", func(t *testing.T) {
		svc := NewService(fixtures.NewStoreSpy().FailOnAppend(boom))
		_, err := svc.Create(t.Context(), CreateRequest{Name: "A", Email: "a@x.com"})
		if !eventsourcing.IsStorageError(err) {
			t.Fatalf("expected storage error, got %v", err)
		}
	})

	t.Run("load", func(t *testing.T) {
		svc := NewService(fixtures.FailingStore(boom))
		if _, err := svc.Get(t.Context(), uuid.NewString()); !eventsourcing.IsStorageError(err) {
			t.Fatalf("expected storage error from get, got %v", err)
		}
		if _, err := svc.List(t.Context()); !eventsourcing.IsStorageError(err) {
			t.Fatalf("expected storage error from list, got %v", err)
		}
	})

	t.Run("iteration", func(t *testing.T) {
		svc := NewService(fixtures.FailingIteratorStore(boom))
		if _, err := svc.List(t.Context()); !errors.Is(err, boom) {
			t.Fatalf("expected iterator error, got %v", err)
		}
	})
}

func TestService_AdaLovelace(t *testing.T) {
	ctx := t.Context()
	svc := NewService(memory.NewMemoryStore())

	p, err := svc.Create(ctx, CreateRequest{Name: "Ada Lovelace", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == "" || p.Name != "Ada Lovelace" || p.Email != "ada@example.com" {
		t.Fatalf("unexpected created person: %+v", p)
	}

	up, err := svc.Update(ctx, p.ID, UpdateRequest{Email: ptr("ada@turing.org")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if up.Name != "Ada Lovelace" || up.Email != "ada@turing.org" {
		t.Fatalf("unexpected updated person: %+v", up)
	}

	del, err := svc.Delete(ctx, p.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if del.Name != "Ada Lovelace" || del.Email != "ada@turing.org" {
		t.Fatalf("unexpected deleted snapshot: %+v", del)
	}

	if _, err := svc.Get(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
