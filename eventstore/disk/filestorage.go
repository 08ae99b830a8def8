package disk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeferini/eventsourcing"
)

var _ eventsourcing.EventStore = (*FilesStore)(nil)

const (
	eventsDir     = "events"
	aggregatesDir = "aggregates"
	typesDir      = "types"
)

// FilesStore keeps one JSON file per event under <dir>/events, named by a
// global sequence number. Per-aggregate and per-type indexes are symlinks
// into that directory.
//
//	<dir>/events/00000000000000000042-<event id>.json
//	<dir>/aggregates/<aggregate id>/00000000000000000042-PersonCreated.json -> ../../events/...
//	<dir>/types/<aggregate type>/00000000000000000042-PersonCreated.json    -> ../../events/...
type FilesStore struct {
	baseDir   string
	codec     eventsourcing.Codec
	mu        sync.Mutex
	globalSeq uint64
	closed    bool
}

func NewFileStore(dir string) (*FilesStore, error) {
	for _, sub := range []string{eventsDir, aggregatesDir, typesDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, eventsourcing.WrapStorageError("open", err)
		}
	}

	seq, err := lastSequence(filepath.Join(dir, eventsDir))
	if err != nil {
		return nil, eventsourcing.WrapStorageError("open", err)
	}

	return &FilesStore{
		baseDir:   dir,
		codec:     eventsourcing.DefaultCodec,
		globalSeq: seq,
	}, nil
}

func lastSequence(dir string) (uint64, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var last uint64
	for _, fi := range files {
		if seq, ok := sequenceOf(fi.Name()); ok && seq > last {
			last = seq
		}
	}
	return last, nil
}

func sequenceOf(name string) (uint64, bool) {
	if !strings.HasSuffix(name, ".json") {
		return 0, false
	}
	prefix, _, ok := strings.Cut(name, "-")
	if !ok {
		return 0, false
	}
	seq, err := strconv.ParseUint(prefix, 10, 64)
	return seq, err == nil
}

func (f *FilesStore) aggregateDir(id string) string {
	return filepath.Join(f.baseDir, aggregatesDir, url.PathEscape(id))
}

func (f *FilesStore) typeDir(aggregateType string) string {
	return filepath.Join(f.baseDir, typesDir, url.PathEscape(aggregateType))
}

func (f *FilesStore) Append(ctx context.Context, event eventsourcing.Event) (eventsourcing.Event, error) {
	if err := ctx.Err(); err != nil {
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", err)
	}

	stored, err := eventsourcing.Prepare(event)
	if err != nil {
		return eventsourcing.Event{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", eventsourcing.ErrStoreClosed)
	}

	existing, err := filepath.Glob(filepath.Join(f.baseDir, eventsDir, "*-"+stored.ID.String()+".json"))
	if err != nil {
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", err)
	}
	if len(existing) > 0 {
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", fmt.Errorf("%w: %s", eventsourcing.ErrDuplicateEvent, stored.ID))
	}

	seq := f.globalSeq + 1
	record, err := f.toStored(&stored, seq)
	if err != nil {
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", err)
	}

	name := fmt.Sprintf("%020d-%s.json", seq, stored.ID)
	path := filepath.Join(f.baseDir, eventsDir, name)
	if err := writeAtomic(path, data); err != nil {
		return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", err)
	}

	link := fmt.Sprintf("%020d-%s.json", seq, url.PathEscape(stored.EventType))
	var linked []string
	for _, dir := range []string{f.aggregateDir(stored.AggregateID), f.typeDir(stored.AggregateType)} {
		if err := f.linkInto(dir, link, path); err != nil {
			for _, l := range linked {
				_ = os.Remove(l)
			}
			_ = os.Remove(path)
			return eventsourcing.Event{}, eventsourcing.WrapStorageError("append", err)
		}
		linked = append(linked, filepath.Join(dir, link))
	}

	f.globalSeq = seq
	return stored, nil
}

func (f *FilesStore) linkInto(dir, name, target string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return err
	}
	return os.Symlink(rel, filepath.Join(dir, name))
}

// writeAtomic writes to a temporary file and renames it into place so a
// crash never leaves a torn record behind.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (f *FilesStore) LoadAggregate(ctx context.Context, id string) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
	events, err := f.loadFromDir(ctx, f.aggregateDir(id))
	if err != nil {
		return nil, eventsourcing.WrapStorageError("load aggregate", err)
	}
	eventsourcing.SortByCreatedAt(events, false)
	return eventsourcing.NewSliceIterator(events), nil
}

func (f *FilesStore) LoadAggregateType(ctx context.Context, aggregateType string) (*eventsourcing.Iterator[*eventsourcing.Event], error) {
	events, err := f.loadFromDir(ctx, f.typeDir(aggregateType))
	if err != nil {
		return nil, eventsourcing.WrapStorageError("load aggregate type", err)
	}
	eventsourcing.SortByCreatedAt(events, true)
	return eventsourcing.NewSliceIterator(events), nil
}

// loadFromDir reads every record linked from dir in sequence order. A
// missing directory is an empty stream.
func (f *FilesStore) loadFromDir(ctx context.Context, dir string) ([]*eventsourcing.Event, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, eventsourcing.ErrStoreClosed
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	events := make([]*eventsourcing.Event, 0, len(files))
	for _, fi := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := sequenceOf(fi.Name()); !ok {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, fi.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fi.Name(), err)
		}

		var rec storedEvent
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", fi.Name(), err)
		}

		ev, err := f.fromStored(rec)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", fi.Name(), err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (f *FilesStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FilesStore) toStored(e *eventsourcing.Event, seq uint64) (storedEvent, error) {
	data, err := f.codec.Encode(e.EventData)
	if err != nil {
		return storedEvent{}, err
	}
	meta, err := f.codec.Encode(e.Metadata)
	if err != nil {
		return storedEvent{}, err
	}
	return storedEvent{
		Sequence:      seq,
		ID:            e.ID,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		EventType:     e.EventType,
		EventData:     data,
		Metadata:      meta,
		Version:       e.Version,
		Timestamp:     e.Timestamp,
		CreatedAt:     e.CreatedAt,
	}, nil
}

func (f *FilesStore) fromStored(rec storedEvent) (*eventsourcing.Event, error) {
	data, err := f.codec.Decode(rec.EventData)
	if err != nil {
		return nil, err
	}
	meta, err := f.codec.Decode(rec.Metadata)
	if err != nil {
		return nil, err
	}
	return &eventsourcing.Event{
		ID:            rec.ID,
		AggregateID:   rec.AggregateID,
		AggregateType: rec.AggregateType,
		EventType:     rec.EventType,
		EventData:     data,
		Metadata:      meta,
		Version:       rec.Version,
		Timestamp:     rec.Timestamp,
		CreatedAt:     rec.CreatedAt,
	}, nil
}

type storedEvent struct {
	Sequence      uint64          `json:"sequence"`
	ID            uuid.UUID       `json:"id"`
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	EventType     string          `json:"eventType"`
	EventData     json.RawMessage `json:"eventData"`
	Metadata      json.RawMessage `json:"metadata"`
	Version       uint64          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	CreatedAt     time.Time       `json:"createdAt"`
}
