// Package sqlite provides a single-file event store on modernc's pure Go
// SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/zeferini/eventsourcing"
	"github.com/zeferini/eventsourcing/eventstore/sqlite/migrations"
)

var _ eventsourcing.EventStore = (*Store)(nil)

// Store persists events in a SQLite table. Times are stored as Unix
// nanoseconds; the autoincrement seq column breaks createdAt ties in append
// order.
type Store struct {
	db    *sql.DB
	codec eventsourcing.Codec
}

// Open opens (or creates) the database at path and applies embedded
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, eventsourcing.WrapStorageError("open", errors.New("storage path is required"))
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eventsourcing.WrapStorageError("open", fmt.Errorf("open sqlite db: %w", err))
	}
	// A single writer connection serializes appends.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, eventsourcing.WrapStorageError("open", fmt.Errorf("ping sqlite db: %w", err))
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, eventsourcing.WrapStorageError("migrate", err)
	}

	return &Store{db: db, codec: eventsourcing.DefaultCodec}, nil
}

func (s *Store) Append(ctx context.Context, event eventsourcing.Event) (eventsourcing.Event, error) {
	stored, err := eventsourcing.Prepare(event)
	if err != nil {
		return eventsourcing.Event{}, err
	}

	data, err := eventsourcing.EncodeString(s.codec, stored.EventData)
	if err != nil {
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", err)
	}
	meta, err := eventsourcing.EncodeString(s.codec, stored.Metadata)
	if err != nil {
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (
		   id,
		   aggregate_id,
		   aggregate_type,
		   event_type,
		   event_data,
		   metadata,
		   version,
		   timestamp,
		   created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID.String(),
		stored.AggregateID,
		stored.AggregateType,
		stored.EventType,
		data,
		meta,
		int64(stored.Version),
		stored.Timestamp.UnixNano(),
		stored.CreatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("%w: %s", eventsourcing.ErrDuplicateEvent, stored.ID)
		}
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", err)
	}
	return stored, nil
}

func (s *Store) LoadAggregate(ctx context.Context, aggregateID string) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
	events, err := s.query(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, timestamp, created_at
		   FROM events
		  WHERE aggregate_id = ?
		  ORDER BY created_at ASC, seq ASC`,
		aggregateID,
	)
	if err != nil {
		return nil, eventsourcing.WrapStorageError("load aggregate", err)
	}
	return eventsourcing.NewSliceIterator(events), nil
}

func (s *Store) LoadAggregateType(ctx context.Context, aggregateType string) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
	events, err := s.query(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, timestamp, created_at
		   FROM events
		  WHERE aggregate_type = ?
		  ORDER BY created_at DESC, seq DESC`,
		aggregateType,
	)
	if err != nil {
		return nil, eventsourcing.WrapStorageError("load aggregate type", err)
	}
	return eventsourcing.NewSliceIterator(events), nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*eventsourcing.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*eventsourcing.Event
	for rows.Next() {
		var (
			id, data, meta     string
			version            int64
			timestamp, created int64
			ev                 eventsourcing.Event
		)
		if err := rows.Scan(&id, &ev.AggregateID, &ev.AggregateType, &ev.EventType, &data, &meta, &version, &timestamp, &created); err != nil {
			return nil, err
		}

		if ev.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse event id %q: %w", id, err)
		}
		if ev.EventData, err = eventsourcing.DecodeString(s.codec, data); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", id, err)
		}
		if ev.Metadata, err = eventsourcing.DecodeString(s.codec, meta); err != nil {
			return nil, fmt.Errorf("decode metadata %s: %w", id, err)
		}
		ev.Version = uint64(version)
		ev.Timestamp = time.Unix(0, timestamp).UTC()
		ev.CreatedAt = time.Unix(0, created).UTC()
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// isUniqueViolation relies on extended result codes, which the driver
// enables on every connection. Other constraint failures such as NOT NULL
// stay plain storage errors.
func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
