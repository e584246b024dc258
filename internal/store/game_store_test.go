package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/cache"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/database/testutil"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/models"
)

func newTestStore(t *testing.T) *GameStore {
	t.Helper()
	db := testutil.MustOpenTestDB(t)
	s, err := NewGameStore(db, cache.NewMemoryStore())
	require.NoError(t, err)
	return s
}

func sampleGame(id string) *models.Game {
	return &models.Game{
		ID:             id,
		WhitePlayerID:  "alice",
		RedPlayerID:    "bot:greedy",
		Points:         datatypes.JSON([]byte(`[]`)),
		RemainingMoves: datatypes.JSON([]byte(`[]`)),
		MoveHistory:    datatypes.JSON([]byte(`[]`)),
		CurrentTurn:    "white",
		CubeValue:      1,
		Status:         models.StatusInProgress,
		LastActivityAt: time.Now(),
	}
}

func TestSaveIsUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	game := sampleGame("11111111-1111-1111-1111-111111111111")
	require.NoError(t, s.Save(ctx, game))

	game.CubeValue = 4
	game.CurrentTurn = "red"
	require.NoError(t, s.Save(ctx, game))

	loaded, err := s.Load(ctx, game.ID)
	require.NoError(t, err)
	require.Equal(t, 4, loaded.CubeValue)
	require.Equal(t, "red", loaded.CurrentTurn)
}

func TestLoadMissingGame(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load(context.Background(), "22222222-2222-2222-2222-222222222222")
	require.ErrorIs(t, err, ErrGameNotFound)
}

func TestListExpiredReturnsOnlyOverdueInProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	overdue := sampleGame("33333333-3333-3333-3333-333333333333")
	past := now.Add(-time.Hour)
	overdue.TurnDeadline = &past
	require.NoError(t, s.Save(ctx, overdue))

	fresh := sampleGame("44444444-4444-4444-4444-444444444444")
	future := now.Add(time.Hour)
	fresh.TurnDeadline = &future
	require.NoError(t, s.Save(ctx, fresh))

	finished := sampleGame("55555555-5555-5555-5555-555555555555")
	finished.TurnDeadline = &past
	finished.Status = models.StatusCompleted
	require.NoError(t, s.Save(ctx, finished))

	expired, err := s.ListExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, overdue.ID, expired[0].ID)
}

func TestForfeitExpiredIsConditional(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	game := sampleGame("66666666-6666-6666-6666-666666666666")
	past := now.Add(-time.Minute)
	game.TurnDeadline = &past
	require.NoError(t, s.Save(ctx, game))

	applied, err := s.ForfeitExpired(ctx, game.ID, "red", now)
	require.NoError(t, err)
	require.True(t, applied)

	loaded, err := s.Load(ctx, game.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusAbandoned, loaded.Status)
	require.Equal(t, "red", loaded.Winner)

	// A second sweep is a no-op once the status changed.
	applied, err = s.ForfeitExpired(ctx, game.ID, "red", now)
	require.NoError(t, err)
	require.False(t, applied)
}

func TestForfeitSkipsGamesWithRefreshedDeadline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	game := sampleGame("77777777-7777-7777-7777-777777777777")
	future := now.Add(time.Hour)
	game.TurnDeadline = &future
	require.NoError(t, s.Save(ctx, game))

	applied, err := s.ForfeitExpired(ctx, game.ID, "red", now)
	require.NoError(t, err)
	require.False(t, applied)
}
