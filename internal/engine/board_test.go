package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedRolls returns an option feeding predetermined die values.
func scriptedRolls(values ...int) Option {
	i := 0
	return WithRand(func() int {
		v := values[i%len(values)]
		i++
		return v
	})
}

func checkerSum(s State, c Color) int {
	total := 0
	for _, pt := range s.Points {
		if pt.Color == c {
			total += pt.Count
		}
	}
	if c == ColorWhite {
		return total + s.BarWhite + s.OffWhite
	}
	return total + s.BarRed + s.OffRed
}

func TestOpeningRollDecidesStarter(t *testing.T) {
	e := New(scriptedRolls(5, 2))

	require.True(t, e.IsOpeningRoll())
	require.False(t, e.GameStarted())

	dice := e.RollDice()
	require.Equal(t, Dice{Die1: 5, Die2: 2}, dice)
	require.Equal(t, ColorWhite, e.CurrentPlayer())
	require.True(t, e.GameStarted())
	require.False(t, e.IsOpeningRoll())
	require.ElementsMatch(t, []int{5, 2}, e.RemainingMoves())
}

func TestOpeningRollTieRerolls(t *testing.T) {
	e := New(scriptedRolls(3, 3, 2, 6))

	e.RollDice()
	require.Equal(t, ColorRed, e.CurrentPlayer())
	require.ElementsMatch(t, []int{2, 6}, e.RemainingMoves())
}

func TestDoublesGrantFourMoves(t *testing.T) {
	e := New(scriptedRolls(5, 2))
	e.RollDice()
	playOutTurn(t, e)
	require.NoError(t, e.EndTurn())

	e2 := e.(*gameEngine)
	e2.roll = func() int { return 4 }
	e.RollDice()
	require.Equal(t, []int{4, 4, 4, 4}, e.RemainingMoves())
}

func TestMoveConsumesDieAndPreservesCheckerCount(t *testing.T) {
	e := New(scriptedRolls(6, 1))
	e.RollDice() // white starts with 6-1

	moves := e.ValidMoves()
	require.NotEmpty(t, moves)

	require.NoError(t, e.MakeMove(moves[0].From, moves[0].To))
	require.Len(t, e.RemainingMoves(), 1)

	s := e.Snapshot()
	require.Equal(t, CheckersPerColor, checkerSum(s, ColorWhite))
	require.Equal(t, CheckersPerColor, checkerSum(s, ColorRed))
}

func TestIllegalMoveRejected(t *testing.T) {
	e := New(scriptedRolls(6, 1))
	e.RollDice()

	err := e.MakeMove(3, 2)
	require.Error(t, err)
}

func TestHitSendsBlotToBar(t *testing.T) {
	e := New(scriptedRolls(2, 1))
	state := openPlayState(ColorWhite, []int{4})
	state.Points[5] = Point{Color: ColorWhite, Count: 1}  // point 6
	state.Points[1] = Point{Color: ColorRed, Count: 1}    // point 2, a blot
	state.Points[22] = Point{Color: ColorWhite, Count: 14} // rest parked
	state.Points[18] = Point{Color: ColorRed, Count: 14}
	require.NoError(t, e.LoadState(state))

	require.NoError(t, e.MakeMove(6, 2))

	s := e.Snapshot()
	require.Equal(t, 1, s.BarRed)
	require.Equal(t, ColorWhite, s.Points[1].Color)
	require.Contains(t, e.MoveHistory()[len(e.MoveHistory())-1], "*")
}

func TestBarEntryIsForced(t *testing.T) {
	e := New()
	state := openPlayState(ColorWhite, []int{3, 5})
	state.BarWhite = 1
	state.Points[5] = Point{Color: ColorWhite, Count: 14} // point 6
	state.Points[0] = Point{Color: ColorRed, Count: 15}
	require.NoError(t, e.LoadState(state))

	for _, m := range e.ValidMoves() {
		require.Equal(t, WhiteBar, m.From)
	}
}

func TestBearOffExactAndOvershoot(t *testing.T) {
	e := New()
	state := openPlayState(ColorWhite, []int{6, 3})
	state.Points[2] = Point{Color: ColorWhite, Count: 2}  // point 3
	state.OffWhite = 13
	state.Points[23] = Point{Color: ColorRed, Count: 15}
	require.NoError(t, e.LoadState(state))

	moves := e.ValidMoves()
	// Exact bear-off with the 3 and overshoot with the 6, both from point 3.
	require.Contains(t, moves, Move{From: 3, To: WhiteOff, DieValue: 3})
	require.Contains(t, moves, Move{From: 3, To: WhiteOff, DieValue: 6})
}

func TestWinnerAndGammonStakes(t *testing.T) {
	e := New()
	state := openPlayState(ColorWhite, []int{1})
	state.Points[0] = Point{Color: ColorWhite, Count: 1} // point 1
	state.OffWhite = 14
	state.Points[23] = Point{Color: ColorRed, Count: 15} // red has borne off nothing
	require.NoError(t, e.LoadState(state))

	require.NoError(t, e.MakeMove(1, WhiteOff))
	require.Equal(t, ColorWhite, e.Winner())

	res := e.Result()
	require.Equal(t, ColorWhite, res.Winner)
	require.Equal(t, 2, res.Stakes) // gammon at cube value 1
}

func TestBackgammonStakes(t *testing.T) {
	e := New()
	state := openPlayState(ColorWhite, []int{1})
	state.Points[0] = Point{Color: ColorWhite, Count: 1}
	state.OffWhite = 14
	state.Points[3] = Point{Color: ColorRed, Count: 15} // red stuck in white's home
	require.NoError(t, e.LoadState(state))

	require.NoError(t, e.MakeMove(1, WhiteOff))
	require.Equal(t, 3, e.Result().Stakes)
}

func TestDeclinedDoubleSettlesAtPreDoubleStake(t *testing.T) {
	e := New()
	state := openPlayState(ColorWhite, nil)
	state.Points[0] = Point{Color: ColorWhite, Count: 15}
	state.Points[23] = Point{Color: ColorRed, Count: 15}
	state.Cube = Cube{Value: 2, Owner: ColorWhite}
	require.NoError(t, e.LoadState(state))

	e.DeclineDouble(ColorWhite)
	res := e.Result()
	require.Equal(t, ColorWhite, res.Winner)
	require.Equal(t, 2, res.Stakes)
}

func TestAcceptDoubleFlipsOwnershipToAcceptingSide(t *testing.T) {
	e := New()
	state := openPlayState(ColorWhite, nil)
	state.Points[0] = Point{Color: ColorWhite, Count: 15}
	state.Points[23] = Point{Color: ColorRed, Count: 15}
	require.NoError(t, e.LoadState(state))

	require.True(t, e.CanDouble(ColorWhite))
	e.AcceptDouble()

	cube := e.Cube()
	require.Equal(t, 2, cube.Value)
	require.Equal(t, ColorRed, cube.Owner)
}

func TestCanDoubleRespectsOwnershipAndCrawford(t *testing.T) {
	e := New()
	state := openPlayState(ColorWhite, nil)
	state.Points[0] = Point{Color: ColorWhite, Count: 15}
	state.Points[23] = Point{Color: ColorRed, Count: 15}
	state.Cube = Cube{Value: 2, Owner: ColorRed}
	require.NoError(t, e.LoadState(state))

	require.False(t, e.CanDouble(ColorWhite))
	require.True(t, e.CanDouble(ColorRed))

	state.CrawfordGame = true
	require.NoError(t, e.LoadState(state))
	require.False(t, e.CanDouble(ColorRed))
}

func TestLoadStateRejectsCheckerCountMismatch(t *testing.T) {
	e := New()
	state := openPlayState(ColorWhite, nil)
	state.Points[0] = Point{Color: ColorWhite, Count: 10}
	state.BarWhite = 3
	state.OffWhite = 1 // sums to 14
	state.Points[23] = Point{Color: ColorRed, Count: 15}

	err := e.LoadState(state)
	require.Error(t, err)
	require.Contains(t, err.Error(), "sum to 14")
}

func TestLoadStateAcceptsSplitCheckers(t *testing.T) {
	e := New()
	state := openPlayState(ColorWhite, nil)
	state.Points[0] = Point{Color: ColorWhite, Count: 10}
	state.BarWhite = 3
	state.OffWhite = 2 // sums to 15
	state.Points[23] = Point{Color: ColorRed, Count: 15}

	require.NoError(t, e.LoadState(state))
}

func TestSnapshotRoundTrip(t *testing.T) {
	e := New(scriptedRolls(6, 1))
	e.RollDice()
	moves := e.ValidMoves()
	require.NoError(t, e.MakeMove(moves[0].From, moves[0].To))

	snap := e.Snapshot()

	restored := New()
	require.NoError(t, restored.LoadState(snap))
	require.Equal(t, snap, restored.Snapshot())
}

func TestCloneIsIndependent(t *testing.T) {
	e := New(scriptedRolls(6, 1))
	e.RollDice()

	clone := e.Clone()
	moves := clone.ValidMoves()
	require.NoError(t, clone.MakeMove(moves[0].From, moves[0].To))

	require.Len(t, e.RemainingMoves(), 2)
	require.Len(t, clone.RemainingMoves(), 1)
}

func TestTurnTimerMeasuresElapsed(t *testing.T) {
	e := New()

	require.Zero(t, e.EndTurnTimer(), "timer never started")

	e.StartTurnTimer()
	time.Sleep(5 * time.Millisecond)
	elapsed := e.EndTurnTimer()
	require.GreaterOrEqual(t, elapsed, int64(5))

	require.Zero(t, e.EndTurnTimer(), "timer resets after reading")
}

// playOutTurn applies legal moves until none remain so the turn can end.
func playOutTurn(t *testing.T, e Engine) {
	t.Helper()
	for len(e.RemainingMoves()) > 0 {
		moves := e.ValidMoves()
		if len(moves) == 0 {
			return
		}
		require.NoError(t, e.MakeMove(moves[0].From, moves[0].To))
	}
}

// openPlayState builds a started mid-game state shell; callers place the
// checkers.
func openPlayState(current Color, remaining []int) State {
	s := State{
		CurrentPlayer:  current,
		Cube:           Cube{Value: 1, Owner: ColorNone},
		GameStarted:    true,
		RemainingMoves: remaining,
	}
	if len(remaining) > 0 {
		s.Dice = Dice{Die1: remaining[0], Die2: remaining[len(remaining)-1]}
	}
	return s
}
