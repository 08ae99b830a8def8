package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	es "github.com/zeferini/eventsourcing"
	"github.com/zeferini/eventsourcing/eventstore/memory"
	"github.com/zeferini/eventsourcing/eventstore/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) es.EventStore {
		return memory.NewMemoryStore()
	})
}

func TestMemoryStoreLen(t *testing.T) {
	store := memory.NewMemoryStore()
	_, err := store.Append(t.Context(), es.NewEvent("Person", "p1", "PersonCreated", es.Payload{}, nil))
	require.NoError(t, err)
	_, err = store.Append(t.Context(), es.NewEvent("Person", "", "PersonCreated", es.Payload{}, nil))
	require.Error(t, err)

	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreCloseIsIdempotent(t *testing.T) {
	store := memory.NewMemoryStore()
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.LoadAggregate(t.Context(), "p1")
	assert.ErrorIs(t, err, es.ErrStoreClosed)
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	store := memory.NewMemoryStore()
	_, err := store.Append(t.Context(), es.NewEvent("Person", "p1", "PersonCreated", es.Payload{}, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err = store.Append(ctx, es.NewEvent("Person", "p1", "PersonUpdated", es.Payload{}, nil))
	assert.True(t, es.IsStorageError(err))
	assert.Equal(t, 1, store.Len())
}
