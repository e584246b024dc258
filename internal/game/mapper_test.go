package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/models"
	apperrors "github.com/GarrettBeatty/doublecube.gg-sub001/pkg/errors"
)

func TestIsRegisteredAgent(t *testing.T) {
	assert.True(t, IsRegisteredAgent("alice"))
	assert.False(t, IsRegisteredAgent(""))
	assert.False(t, IsRegisteredAgent("bot:greedy"))
	assert.False(t, IsRegisteredAgent("guest:4f2a"))
}

func TestCaptureRestoreRoundTrip(t *testing.T) {
	h := newHarness(t)
	s := newSeatedSession(t, 5, 3)
	s.SetPlayerName("alice", "Alice")
	s.SetPlayerName("bob", "Bob")
	ctx := context.Background()

	require.True(t, h.orch.Roll(ctx, s, "conn-a").OK)
	require.True(t, h.orch.Move(ctx, s, "conn-a", 13, 8).OK)

	record, err := h.mapper.Capture(s)
	require.NoError(t, err)
	assert.Equal(t, s.ID, record.ID)
	assert.Equal(t, "white", record.CurrentTurn)
	assert.Equal(t, 5, record.Die1)

	restored, err := h.mapper.Restore(record, engine.New)
	require.NoError(t, err)

	assert.Equal(t, s.Engine().Snapshot(), restored.Engine().Snapshot())
	assert.Equal(t, s.Status(), restored.Status())
	assert.Equal(t, s.Modes(), restored.Modes())
	assert.Equal(t, engine.ColorWhite, restored.ColorOf("alice"))
	assert.Equal(t, engine.ColorRed, restored.ColorOf("bob"))

	white, red := restored.PlayerNames()
	assert.Equal(t, "Alice", white)
	assert.Equal(t, "Bob", red)

	// Capturing the restored session again yields the same record body.
	again, err := h.mapper.Restore(record, engine.New)
	require.NoError(t, err)
	assert.Equal(t, restored.Engine().Snapshot(), again.Engine().Snapshot())
}

func TestRestoreRejectsCorruptBoard(t *testing.T) {
	h := newHarness(t)
	s := newSeatedSession(t, 5, 3)

	record, err := h.mapper.Capture(s)
	require.NoError(t, err)

	// Drop a checker: 14 white on the board fails whole-state validation.
	record.Points = []byte(`[{"color":1,"count":14}]`)
	record.BarWhite = 0
	record.OffWhite = 0

	_, err = h.mapper.Restore(record, engine.New)
	require.Error(t, err)
	assert.True(t, apperrors.IsIntegrity(err))
}

func TestRestoreRejectsUndecodableColumns(t *testing.T) {
	h := newHarness(t)
	s := newSeatedSession(t, 5, 3)

	record, err := h.mapper.Capture(s)
	require.NoError(t, err)
	record.MoveHistory = []byte(`{not json`)

	_, err = h.mapper.Restore(record, engine.New)
	require.Error(t, err)
	assert.True(t, apperrors.IsIntegrity(err))
}

func TestRestoreNilRecord(t *testing.T) {
	h := newHarness(t)
	_, err := h.mapper.Restore(nil, engine.New)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestCaptureCarriesDeclinedResult(t *testing.T) {
	h := newHarness(t)
	s := newSeatedSession(t, 5, 3, 6, 2)
	openPlay(t, h, s)

	_, err := h.doubles.Offer(context.Background(), s, "alice")
	require.NoError(t, err)
	require.NoError(t, h.doubles.Decline(context.Background(), s, "bob"))

	record, err := h.mapper.Capture(s)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, record.Status)
	assert.Equal(t, "white", record.Winner)
	assert.Equal(t, 1, record.Stakes)
	assert.Equal(t, 1, record.DeclinedStakes)
}
