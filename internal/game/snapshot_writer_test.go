package game

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/cache"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/database/testutil"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/models"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/store"
)

func newWriterUnderTest(t *testing.T, opts ...WriterOption) (*SnapshotWriter, *store.GameStore) {
	t.Helper()
	db := testutil.MustOpenTestDB(t)
	gameStore, err := store.NewGameStore(db, cache.NewMemoryStore())
	require.NoError(t, err)
	return NewSnapshotWriter(gameStore, opts...), gameStore
}

func snapshotRecord(id string, die1 int) *models.Game {
	return &models.Game{
		ID:          id,
		Status:      models.StatusInProgress,
		CurrentTurn: "white",
		Die1:        die1,
		CubeValue:   1,
	}
}

func TestWriterStopDrainsQueue(t *testing.T) {
	w, gameStore := newWriterUnderTest(t)
	w.Start()

	id := uuid.NewString()
	w.Enqueue(snapshotRecord(id, 4))
	w.Stop()

	record, err := gameStore.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 4, record.Die1)
}

func TestWriterLastSnapshotWins(t *testing.T) {
	w, gameStore := newWriterUnderTest(t)
	w.Start()

	id := uuid.NewString()
	for die := 1; die <= 6; die++ {
		w.Enqueue(snapshotRecord(id, die))
	}
	w.Stop()

	record, err := gameStore.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 6, record.Die1)
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	// No worker running, so the queue can only hold two entries and every
	// further enqueue must displace the oldest rather than block.
	w, gameStore := newWriterUnderTest(t, WithQueueSize(2))

	id := uuid.NewString()
	for die := 1; die <= 6; die++ {
		w.Enqueue(snapshotRecord(id, die))
	}

	w.Start()
	w.Stop()

	record, err := gameStore.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 6, record.Die1)
}

func TestEnqueueNilIsNoop(t *testing.T) {
	w, _ := newWriterUnderTest(t)
	w.Start()
	w.Enqueue(nil)
	w.Stop()
}

func TestWriterKeepsDistinctGamesApart(t *testing.T) {
	w, gameStore := newWriterUnderTest(t)
	w.Start()

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = uuid.NewString()
		w.Enqueue(snapshotRecord(ids[i], i+1))
	}
	w.Stop()

	for i, id := range ids {
		record, err := gameStore.Load(context.Background(), id)
		require.NoError(t, err, fmt.Sprintf("game %d", i))
		assert.Equal(t, i+1, record.Die1)
	}
}
