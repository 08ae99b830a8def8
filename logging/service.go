package logging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zeferini/eventsourcing/person"
)

var _ person.Operations = (*serviceLogger)(nil)

type serviceLogger struct {
	logger *slog.Logger
	next   person.Operations
}

// WithServiceLogging wraps the person operations. Not-found outcomes are
// logged at info level, validation failures at warn and anything else at
// error.
func WithServiceLogging(logger *slog.Logger, next person.Operations) person.Operations {
	return &serviceLogger{logger: logger, next: next}
}

func (s *serviceLogger) outcome(ctx context.Context, l *slog.Logger, err error) {
	switch {
	case err == nil:
		l.DebugContext(ctx, "person operation succeeded")
	case errors.Is(err, person.ErrNotFound):
		l.InfoContext(ctx, "person not found")
	case person.IsValidation(err):
		l.WarnContext(ctx, "person input rejected", "error", err)
	default:
		l.ErrorContext(ctx, "person operation failed", "error", err)
	}
}

func (s *serviceLogger) Create(ctx context.Context, req person.CreateRequest) (person.Person, error) {
	p, err := s.next.Create(ctx, req)
	s.outcome(ctx, s.logger.With("operation", "create", "id", p.ID), err)
	return p, err
}

func (s *serviceLogger) List(ctx context.Context) ([]person.Person, error) {
	list, err := s.next.List(ctx)
	s.outcome(ctx, s.logger.With("operation", "list", "count", len(list)), err)
	return list, err
}

func (s *serviceLogger) Get(ctx context.Context, id string) (person.Person, error) {
	p, err := s.next.Get(ctx, id)
	s.outcome(ctx, s.logger.With("operation", "get", "id", id), err)
	return p, err
}

func (s *serviceLogger) Update(ctx context.Context, id string, req person.UpdateRequest) (person.Person, error) {
	p, err := s.next.Update(ctx, id, req)
	s.outcome(ctx, s.logger.With("operation", "update", "id", id), err)
	return p, err
}

func (s *serviceLogger) Delete(ctx context.Context, id string) (person.Person, error) {
	p, err := s.next.Delete(ctx, id)
	s.outcome(ctx, s.logger.With("operation", "delete", "id", id), err)
	return p, err
}
