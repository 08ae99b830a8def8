package person

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zeferini/eventsourcing"
)

// DefaultSource is recorded as the metadata source of every event unless
// overridden with WithSource.
const DefaultSource = "person-service-go"

var _ Operations = (*Service)(nil)

// Service translates CRUD intent into Person events. It holds no state
// between calls; every read replays the store.
type Service struct {
	store  eventsourcing.EventStore
	now    func() time.Time
	newID  func() uuid.UUID
	source string
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces uuid.New for new person ids.
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(s *Service) { s.newID = gen }
}

// WithSource sets the metadata source stamped on events.
func WithSource(source string) Option {
	return func(s *Service) { s.source = source }
}

func NewService(store eventsourcing.EventStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		now:    time.Now,
		newID:  uuid.New,
		source: DefaultSource,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the request, records PersonCreated and returns the new
// person as built, without reading it back.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Person, error) {
	if err := req.Validate(); err != nil {
		return Person{}, err
	}

	now := s.now().UTC()
	p := Person{
		ID:        s.newID().String(),
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data := eventsourcing.Payload{
		"id":        eventsourcing.String(p.ID),
		"name":      eventsourcing.String(p.Name),
		"email":     eventsourcing.String(p.Email),
		"createdAt": eventsourcing.String(formatTime(p.CreatedAt)),
	}
	if err := s.append(ctx, p.ID, EventCreated, data); err != nil {
		return Person{}, err
	}
	return p, nil
}

// List replays every Person event and returns the live persons ordered by
// createdAt.
func (s *Service) List(ctx context.Context) ([]Person, error) {
	it, err := s.store.LoadAggregateType(ctx, AggregateType)
	if err != nil {
		return nil, fmt.Errorf("load persons: %w", err)
	}
	newestFirst, err := it.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load persons: %w", err)
	}
	return Project(eventsourcing.OldestFirst(newestFirst)), nil
}

// Get replays one aggregate. Malformed ids are reported as not found.
func (s *Service) Get(ctx context.Context, id string) (Person, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Person{}, &NotFoundError{ID: id}
	}

	it, err := s.store.LoadAggregate(ctx, parsed.String())
	if err != nil {
		return Person{}, fmt.Errorf("load person %s: %w", id, err)
	}
	events, err := it.All(ctx)
	if err != nil {
		return Person{}, fmt.Errorf("load person %s: %w", id, err)
	}

	p, ok := Replay(events)
	if !ok {
		return Person{}, &NotFoundError{ID: id}
	}
	return p, nil
}

// Update applies the non-nil fields of req to the current state and records
// PersonUpdated carrying only those fields and updatedAt.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (Person, error) {
	if err := req.Validate(); err != nil {
		return Person{}, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return Person{}, err
	}

	next := current
	data := eventsourcing.Payload{
		"id": eventsourcing.String(current.ID),
	}
	if req.Name != nil {
		next.Name = *req.Name
		data["name"] = eventsourcing.String(next.Name)
	}
	if req.Email != nil {
		next.Email = *req.Email
		data["email"] = eventsourcing.String(next.Email)
	}

	// updatedAt only moves forward, even when the clock does not.
	next.UpdatedAt = s.now().UTC()
	if !next.UpdatedAt.After(current.UpdatedAt) {
		next.UpdatedAt = current.UpdatedAt.Add(time.Microsecond)
	}
	data["updatedAt"] = eventsourcing.String(formatTime(next.UpdatedAt))

	if err := s.append(ctx, aggregateID(id), EventUpdated, data); err != nil {
		return Person{}, err
	}
	return next, nil
}

// Delete records PersonDeleted with a snapshot of the last known state and
// returns that snapshot.
func (s *Service) Delete(ctx context.Context, id string) (Person, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Person{}, err
	}

	data := eventsourcing.Payload{
		"id":        eventsourcing.String(current.ID),
		"name":      eventsourcing.String(current.Name),
		"email":     eventsourcing.String(current.Email),
		"createdAt": eventsourcing.String(formatTime(current.CreatedAt)),
		"updatedAt": eventsourcing.String(formatTime(current.UpdatedAt)),
		"deletedAt": eventsourcing.String(formatTime(s.now())),
	}
	if err := s.append(ctx, aggregateID(id), EventDeleted, data); err != nil {
		return Person{}, err
	}
	return current, nil
}

// aggregateID returns the canonical form of an id that Get already accepted.
func aggregateID(id string) string {
	return uuid.MustParse(id).String()
}

func (s *Service) append(ctx context.Context, aggregateID, eventType string, data eventsourcing.Payload) error {
	event := eventsourcing.NewEvent(AggregateType, aggregateID, eventType, data, s.metadata(ctx))
	if _, err := s.store.Append(ctx, event); err != nil {
		return fmt.Errorf("append %s for %s: %w", eventType, aggregateID, err)
	}
	return nil
}

func (s *Service) metadata(ctx context.Context) eventsourcing.Payload {
	userID := eventsourcing.Null()
	if actor := eventsourcing.ActorFromContext(ctx); actor != "" {
		userID = eventsourcing.String(actor)
	}
	return eventsourcing.Payload{
		"source": eventsourcing.String(s.source),
		"userId": userID,
	}
}
