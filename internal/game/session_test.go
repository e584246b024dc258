package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/models"
)

func TestAddPlayerSeating(t *testing.T) {
	s := NewSession("seats", engine.New())

	color, ok := s.AddPlayer("alice", "conn-a")
	require.True(t, ok)
	assert.Equal(t, engine.ColorWhite, color)
	assert.Equal(t, models.StatusWaiting, s.Status())
	assert.False(t, s.Full())

	color, ok = s.AddPlayer("bob", "conn-b")
	require.True(t, ok)
	assert.Equal(t, engine.ColorRed, color)
	assert.Equal(t, models.StatusInProgress, s.Status())
	assert.True(t, s.Full())

	// A third identity finds no seat.
	color, ok = s.AddPlayer("carol", "conn-c")
	assert.False(t, ok)
	assert.Equal(t, engine.ColorNone, color)
}

func TestAddPlayerReseatsSameAgent(t *testing.T) {
	s := NewSession("reseat", engine.New())

	_, ok := s.AddPlayer("alice", "tab-1")
	require.True(t, ok)

	// The same account opening a second tab keeps its seat; both tabs
	// receive events.
	color, ok := s.AddPlayer("alice", "tab-2")
	require.True(t, ok)
	assert.Equal(t, engine.ColorWhite, color)
	assert.ElementsMatch(t, []string{"tab-1", "tab-2"}, s.Connections())

	s.RemoveConnection("tab-1")
	assert.ElementsMatch(t, []string{"tab-2"}, s.Connections())
	assert.Equal(t, engine.ColorWhite, s.ColorOf("alice"))
}

func TestSpectatorsReceiveEventsButHoldNoSeat(t *testing.T) {
	s := NewSession("watch", engine.New())
	s.AddPlayer("alice", "conn-a")
	s.AddPlayer("bob", "conn-b")
	s.AddSpectator("conn-w")

	assert.ElementsMatch(t, []string{"conn-a", "conn-b", "conn-w"}, s.Connections())
	assert.False(t, s.IsPlayerTurn("conn-w"))

	view := s.ViewFor("conn-w")
	assert.True(t, view.Spectator)
	assert.Empty(t, view.YourColor)
}

func TestIsPlayerTurnDuringOpeningRoll(t *testing.T) {
	s := NewSession("opening", engine.New())
	s.AddPlayer("alice", "conn-a")
	s.AddPlayer("bob", "conn-b")

	// Before the opening roll resolves either side may act.
	assert.True(t, s.IsPlayerTurn("conn-a"))
	assert.True(t, s.IsPlayerTurn("conn-b"))
	assert.False(t, s.IsPlayerTurn("conn-x"))
}

func TestActionLockIsExclusive(t *testing.T) {
	s := NewSession("lock", engine.New())

	require.True(t, s.TryAcquire())
	assert.False(t, s.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Acquire(ctx))

	s.Release()
	assert.True(t, s.TryAcquire())
	s.Release()
}

func TestViewPerspectives(t *testing.T) {
	eng := engine.New(engine.WithRand(scriptedRolls(5, 3)))
	s := NewSession("views", eng)
	s.AddPlayer("alice", "conn-a")
	s.AddPlayer("bob", "conn-b")
	eng.RollDice()
	s.refreshState()

	white := s.ViewFor("conn-a")
	assert.Equal(t, "white", white.YourColor)
	assert.True(t, white.YourTurn)
	assert.Equal(t, "white", white.CurrentTurn)

	red := s.ViewFor("conn-b")
	assert.Equal(t, "red", red.YourColor)
	assert.False(t, red.YourTurn)
}

func TestViewForConcurrentWithActions(t *testing.T) {
	h := newHarness(t)
	s := newSeatedSession(t, 5, 3)
	ctx := context.Background()

	// REST reads and snapshot captures run with no lock while actions
	// mutate the engine; both must see only settled state.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = s.ViewFor("")
				_, _ = h.mapper.Capture(s)
			}
		}
	}()

	require.True(t, h.orch.Roll(ctx, s, "conn-a").OK)
	require.True(t, h.orch.Move(ctx, s, "conn-a", 13, 8).OK)
	require.True(t, h.orch.Move(ctx, s, "conn-a", 24, 21).OK)
	require.True(t, h.orch.EndTurn(ctx, s, "conn-a").OK)

	close(stop)
	wg.Wait()

	view := s.ViewFor("")
	assert.Equal(t, "red", view.CurrentTurn)
	assert.Len(t, view.MoveHistory, 2)
}

func TestLoadStateRefreshesViews(t *testing.T) {
	s := NewSession("import", engine.New())
	s.AddPlayer("alice", "conn-a")
	s.AddPlayer("bob", "conn-b")

	var state engine.State
	state.Points[23] = engine.Point{Color: engine.ColorWhite, Count: 15}
	state.Points[0] = engine.Point{Color: engine.ColorRed, Count: 15}
	state.CurrentPlayer = engine.ColorRed
	state.Cube = engine.Cube{Value: 2, Owner: engine.ColorRed}
	state.GameStarted = true
	require.NoError(t, s.LoadState(state))

	view := s.ViewFor("conn-b")
	assert.Equal(t, "red", view.CurrentTurn)
	assert.True(t, view.YourTurn)
	assert.Equal(t, 2, view.CubeValue)
	assert.False(t, s.IsPlayerTurn("conn-a"))
}

func TestClockTransfersOverageToReserve(t *testing.T) {
	now := time.Now()
	s := NewSession("clock", engine.New(), WithClock(10*time.Second, time.Minute))
	s.clock.now = func() time.Time { return now }

	s.clock.start(engine.ColorWhite)
	assert.Equal(t, now.Add(10*time.Second+time.Minute), s.clock.deadline())

	// White overruns the per-turn allowance by 15s.
	now = now.Add(25 * time.Second)
	remaining := s.clock.stop()
	assert.Equal(t, 45*time.Second, remaining)

	white, red := s.clock.reserves()
	assert.Equal(t, 45*time.Second, white)
	assert.Equal(t, time.Minute, red)
}

func TestClockWithinAllowanceKeepsReserve(t *testing.T) {
	now := time.Now()
	s := NewSession("clock-fast", engine.New(), WithClock(10*time.Second, time.Minute))
	s.clock.now = func() time.Time { return now }

	s.clock.start(engine.ColorRed)
	now = now.Add(4 * time.Second)
	s.clock.stop()

	white, red := s.clock.reserves()
	assert.Equal(t, time.Minute, white)
	assert.Equal(t, time.Minute, red)
}
