package game

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/bots"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/models"
	apperrors "github.com/GarrettBeatty/doublecube.gg-sub001/pkg/errors"
)

// lazyStrategy returns a plan that leaves playable dice on the table.
type lazyStrategy struct{}

func (lazyStrategy) BotID() string { return "bot:lazy" }

func (lazyStrategy) ChooseMoves(context.Context, engine.Engine) ([]engine.Move, error) {
	return nil, nil
}

func (lazyStrategy) ShouldOfferDouble(context.Context, engine.Engine) (bool, error) {
	return false, nil
}

func TestExecuteTurnPlaysAndPassesMove(t *testing.T) {
	h := newHarness(t)
	s := newBotSession(t, "bot:random", 5, 3, 6, 2)
	ctx := context.Background()

	require.True(t, h.orch.Roll(ctx, s, "conn-a").OK)
	require.True(t, h.orch.Move(ctx, s, "conn-a", 13, 8).OK)
	require.True(t, h.orch.Move(ctx, s, "conn-a", 24, 21).OK)
	historyBefore := len(s.Engine().MoveHistory())
	require.True(t, h.orch.EndTurn(ctx, s, "conn-a").OK)

	// EndTurn hands the move to the bot, which plays to completion.
	require.Eventually(t, func() bool {
		st := s.State()
		return st.CurrentPlayer == engine.ColorWhite && len(st.RemainingMoves) == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Greater(t, len(s.Engine().MoveHistory()), historyBefore)
	assert.Equal(t, models.StatusInProgress, s.Status())
}

func TestExecuteTurnPausesOnCubeOffer(t *testing.T) {
	h := newHarness(t)
	s := newBotSession(t, "bot:greedy", 5, 3)

	// Hand-build a race the bot leads by well over the doubling margin:
	// red needs 75 pips, white 360.
	var state engine.State
	state.Points[23] = engine.Point{Color: engine.ColorWhite, Count: 15}
	state.Points[19] = engine.Point{Color: engine.ColorRed, Count: 15}
	state.CurrentPlayer = engine.ColorRed
	state.Cube = engine.Cube{Value: 1, Owner: engine.ColorNone}
	state.GameStarted = true
	require.NoError(t, s.LoadState(state))

	outcome, err := h.ai.ExecuteTurn(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, TurnPaused, outcome)
	assert.Equal(t, "bot:greedy", s.PendingDouble())
	assert.False(t, s.Engine().Dice().Rolled())
	assert.NotEmpty(t, h.broadcaster.eventsNamed(EventDoubleOffered))
}

func TestExecuteTurnSuspendsOnUnusedDice(t *testing.T) {
	h := newHarness(t, bots.WithStrategy("bot:lazy", lazyStrategy{}))
	s := newBotSession(t, "bot:lazy", 5, 3, 6, 2)
	ctx := context.Background()

	require.True(t, h.orch.Roll(ctx, s, "conn-a").OK)
	require.True(t, h.orch.Move(ctx, s, "conn-a", 13, 8).OK)
	require.True(t, h.orch.Move(ctx, s, "conn-a", 24, 21).OK)
	require.True(t, h.orch.EndTurn(ctx, s, "conn-a").OK)

	// The scheduled bot turn rolls and then plays nothing.
	require.Eventually(t, func() bool {
		return s.Status() == models.StatusSuspended
	}, 2*time.Second, 10*time.Millisecond)

	// The quarantine is permanent for this session.
	res := h.orch.Roll(ctx, s, "conn-a")
	assert.Equal(t, apperrors.ErrSessionSuspended.Code, res.ErrorCode)
}

func TestExecuteTurnRecordsWin(t *testing.T) {
	h := newHarness(t)
	eng := engine.New(engine.WithRand(scriptedRolls(6, 6)))
	s := NewSession("bot-win", eng)
	_, ok := s.AddPlayer("alice", "conn-a")
	require.True(t, ok)
	_, ok = s.AddPlayer("bot:random", "")
	require.True(t, ok)

	// Red has one checker left on its 6-point; any roll bears it off.
	var state engine.State
	state.Points[23] = engine.Point{Color: engine.ColorWhite, Count: 15}
	state.Points[18] = engine.Point{Color: engine.ColorRed, Count: 1}
	state.OffRed = 14
	state.CurrentPlayer = engine.ColorRed
	state.Cube = engine.Cube{Value: 1, Owner: engine.ColorNone}
	state.GameStarted = true
	require.NoError(t, s.LoadState(state))
	s.SetStatus(models.StatusInProgress)

	outcome, err := h.ai.ExecuteTurn(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, TurnCompleted, outcome)
	assert.Equal(t, engine.ColorRed, s.Engine().Winner())
	assert.Equal(t, models.StatusCompleted, s.Status())
	assert.NotEmpty(t, h.broadcaster.eventsNamed(EventGameOver))
}

func TestExecuteTurnFailsOnUnknownBot(t *testing.T) {
	h := newHarness(t)
	s := newBotSession(t, "bot:nonexistent", 5, 3)

	var state engine.State
	state.Points[0] = engine.Point{Color: engine.ColorWhite, Count: 15}
	state.Points[23] = engine.Point{Color: engine.ColorRed, Count: 15}
	state.CurrentPlayer = engine.ColorRed
	state.Cube = engine.Cube{Value: 1, Owner: engine.ColorNone}
	state.GameStarted = true
	require.NoError(t, s.LoadState(state))

	_, err := h.ai.ExecuteTurn(context.Background(), s)
	require.Error(t, err)
	assert.False(t, errors.As(err, new(*apperrors.AppError)))
}
