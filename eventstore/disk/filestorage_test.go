package disk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	es "github.com/zeferini/eventsourcing"
	"github.com/zeferini/eventsourcing/eventstore/storetest"
)

func TestFileStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) es.EventStore {
		store, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		return store
	})
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	first, err := store.Append(t.Context(), es.NewEvent("Person", "p1", "PersonCreated", es.Payload{"name": es.String("Ada")}, nil))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, uint64(1), reopened.globalSeq)

	second, err := reopened.Append(t.Context(), es.NewEvent("Person", "p1", "PersonUpdated", es.Payload{"name": es.String("Ada L.")}, nil))
	require.NoError(t, err)

	it, err := reopened.LoadAggregate(t.Context(), "p1")
	require.NoError(t, err)
	events, err := it.All(t.Context())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, second.ID, events[1].ID)
	assert.Equal(t, "Ada L.", events[1].EventData.Text("name"))
}

func TestFileStoreLayout(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	stored, err := store.Append(t.Context(), es.NewEvent("Person", "a/b", "PersonCreated", es.Payload{}, nil))
	require.NoError(t, err)

	record := filepath.Join(dir, eventsDir, "00000000000000000001-"+stored.ID.String()+".json")
	_, err = os.Stat(record)
	require.NoError(t, err)

	// ids are escaped so they cannot leave the index directory
	link := filepath.Join(dir, aggregatesDir, "a%2Fb", "00000000000000000001-PersonCreated.json")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("..", "..", eventsDir, filepath.Base(record)), target)
}

func TestFileStoreSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := es.NewEvent("Person", "p1", "PersonCreated", es.Payload{}, nil)
	e.CreatedAt = created
	_, err = store.Append(t.Context(), e)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(store.aggregateDir("p1"), ".DS_Store"), []byte("x"), 0o644))

	it, err := store.LoadAggregate(t.Context(), "p1")
	require.NoError(t, err)
	events, err := it.All(t.Context())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, created.Equal(events[0].CreatedAt))
}

func TestSequenceOf(t *testing.T) {
	tests := []struct {
		name string
		want uint64
		ok   bool
	}{
		{"00000000000000000042-abc.json", 42, true},
		{"00000000000000000042-abc.tmp", 0, false},
		{".tmp-123", 0, false},
		{"nope-abc.json", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := sequenceOf(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
