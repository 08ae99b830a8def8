// Package person implements the Person aggregate on top of an event store:
// the events it records, the projection that folds them into current state
// and the service exposing create, list, get, update and delete.
package person

import (
	"context"
	"time"
)

// AggregateType is the aggregate type recorded on every Person event.
const AggregateType = "Person"

// Event types emitted for the Person aggregate.
const (
	EventCreated = "PersonCreated"
	EventUpdated = "PersonUpdated"
	EventDeleted = "PersonDeleted"
)

// Person is the current state of one aggregate. It is never stored; it is
// either built by a write or replayed from the aggregate's events.
type Person struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateRequest struct {
	Name  string `json:"name" validate:"notblank,max=120"`
	Email string `json:"email" validate:"notblank,email,max=180"`
}

// UpdateRequest carries a partial update. Nil fields are left untouched.
type UpdateRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitnil,notblank,max=120"`
	Email *string `json:"email,omitempty" validate:"omitnil,notblank,email,max=180"`
}

// Operations is the public surface of the Person aggregate. Lookups that
// find no live person fail with an error matching ErrNotFound.
type Operations interface {
	Create(ctx context.Context, req CreateRequest) (Person, error)
	List(ctx context.Context) ([]Person, error)
	Get(ctx context.Context, id string) (Person, error)
	Update(ctx context.Context, id string, req UpdateRequest) (Person, error)
	Delete(ctx context.Context, id string) (Person, error)
}
