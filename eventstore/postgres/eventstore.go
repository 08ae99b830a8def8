package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/zeferini/eventsourcing"
)

var _ eventsourcing.EventStore = (*Store)(nil)

// record maps the eventstore.events table. Column names are camelCase and
// therefore quoted by gorm.
type record struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Position      int64     `gorm:"column:position;autoIncrement;not null;<-:false"`
	AggregateID   string    `gorm:"column:aggregateId;type:varchar(255);not null;index:idx_events_aggregate_id"`
	AggregateType string    `gorm:"column:aggregateType;type:varchar(255);not null;index:idx_events_aggregate_type"`
	EventType     string    `gorm:"column:eventType;type:varchar(255);not null"`
	EventData     string    `gorm:"column:eventData;type:jsonb;not null"`
	Metadata      string    `gorm:"column:metadata;type:jsonb;not null"`
	Version       int64     `gorm:"column:version;not null"`
	Timestamp     time.Time `gorm:"column:timestamp;type:timestamptz;not null"`
	CreatedAt     time.Time `gorm:"column:createdAt;type:timestamptz;not null;index:idx_events_created_at"`
}

func (record) TableName() string {
	return "eventstore.events"
}

// Options tune Open.
type Options struct {
	// AutoMigrate creates the eventstore schema and table when missing.
	AutoMigrate bool
	// ConnectTimeout bounds the start-up retries. Zero means a single attempt.
	ConnectTimeout time.Duration
}

type Store struct {
	db    *gorm.DB
	codec eventsourcing.Codec
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db, codec: eventsourcing.DefaultCodec}
}

// Open connects to Postgres, retrying with exponential backoff until
// opts.ConnectTimeout has elapsed. dsn may be a key/value DSN or a
// postgresql:// URI.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if dsn == "" {
		return nil, eventsourcing.WrapStorageError("open", errors.New("postgres dsn is required"))
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if opts.ConnectTimeout > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.MaxElapsedTime = opts.ConnectTimeout
		b = eb
	}

	db, err := backoff.RetryWithData(func() (*gorm.DB, error) {
		return connect(ctx, dsn)
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, eventsourcing.WrapStorageError("open", err)
	}

	s := New(db)
	if opts.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

func connect(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("resolve postgres sql db handle: %w", err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		if !retryable(err) {
			return nil, backoff.Permanent(fmt.Errorf("ping postgres: %w", err))
		}
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// retryable reports whether a connection failure may go away on its own.
// Server-side rejections such as bad credentials or an unknown database are
// final.
func retryable(err error) bool {
	if pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception. Class 57: operator intervention
		// (server starting up or shutting down).
		return len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57")
	}
	return true
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Migrate creates the schema, table and indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.Exec(`CREATE SCHEMA IF NOT EXISTS eventstore`).Error; err != nil {
		return eventsourcing.WrapStorageError("migrate", err)
	}
	if err := db.AutoMigrate(&record{}); err != nil {
		return eventsourcing.WrapStorageError("migrate", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, event eventsourcing.Event) (eventsourcing.Event, error) {
	stored, err := eventsourcing.Prepare(event)
	if err != nil {
		return eventsourcing.Event{}, err
	}

	rec, err := toRecord(s.codec, &stored)
	if err != nil {
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", err)
	}

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("%w: %s", eventsourcing.ErrDuplicateEvent, stored.ID)
		}
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", err)
	}
	return stored, nil
}

func (s *Store) LoadAggregate(ctx context.Context, aggregateID string) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
	events, err := s.query(ctx, "aggregateId", aggregateID, false)
	if err != nil {
		return nil, eventsourcing.WrapStorageError("load aggregate", err)
	}
	return eventsourcing.NewSliceIterator(events), nil
}

func (s *Store) LoadAggregateType(ctx context.Context, aggregateType string) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
	events, err := s.query(ctx, "aggregateType", aggregateType, true)
	if err != nil {
		return nil, eventsourcing.WrapStorageError("load aggregate type", err)
	}
	return eventsourcing.NewSliceIterator(events), nil
}

func (s *Store) query(ctx context.Context, column, value string, desc bool) ([]*eventsourcing.Event, error) {
	var rows []record
	err := s.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "createdAt"}, Desc: desc},
			{Column: clause.Column{Name: "position"}, Desc: desc},
		}}).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	events := make([]*eventsourcing.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := fromRecord(s.codec, row)
		if err != nil {
			return nil, fmt.Errorf("decode event %s: %w", row.ID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(codec eventsourcing.Codec, e *eventsourcing.Event) (record, error) {
	data, err := eventsourcing.EncodeString(codec, e.EventData)
	if err != nil {
		return record{}, err
	}
	meta, err := eventsourcing.EncodeString(codec, e.Metadata)
	if err != nil {
		return record{}, err
	}
	return record{
		ID:            e.ID,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		EventType:     e.EventType,
		EventData:     data,
		Metadata:      meta,
		Version:       int64(e.Version),
		Timestamp:     e.Timestamp,
		CreatedAt:     e.CreatedAt,
	}, nil
}

func fromRecord(codec eventsourcing.Codec, r record) (*eventsourcing.Event, error) {
	data, err := eventsourcing.DecodeString(codec, r.EventData)
	if err != nil {
		return nil, err
	}
	meta, err := eventsourcing.DecodeString(codec, r.Metadata)
	if err != nil {
		return nil, err
	}
	return &eventsourcing.Event{
		ID:            r.ID,
		AggregateID:   r.AggregateID,
		AggregateType: r.AggregateType,
		EventType:     r.EventType,
		EventData:     data,
		Metadata:      meta,
		Version:       uint64(r.Version),
		Timestamp:     r.Timestamp.UTC(),
		CreatedAt:     r.CreatedAt.UTC(),
	}, nil
}
