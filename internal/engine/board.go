package engine

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	apperrors "github.com/GarrettBeatty/doublecube.gg-sub001/pkg/errors"
)

const maxCubeValue = 64

// Option customises a game engine.
type Option func(*gameEngine)

// WithRand injects a deterministic dice source, primarily for testing. The
// function must return a value in [1, 6].
func WithRand(roll func() int) Option {
	return func(e *gameEngine) {
		if roll != nil {
			e.roll = roll
		}
	}
}

// WithCrawford marks the game as a Crawford game: the cube is frozen for its
// duration.
func WithCrawford() Option {
	return func(e *gameEngine) {
		e.crawford = true
	}
}

type gameEngine struct {
	points         [24]Point
	barWhite       int
	barRed         int
	offWhite       int
	offRed         int
	current        Color
	dice           Dice
	remaining      []int
	cube           Cube
	history        []string
	started        bool
	crawford       bool
	winner         Color
	declinedStakes int
	opening        bool

	turnStart time.Time
	roll      func() int
}

// New builds an engine with the standard backgammon starting position.
func New(opts ...Option) Engine {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	e := &gameEngine{
		cube:    Cube{Value: 1, Owner: ColorNone},
		opening: true,
		roll:    func() int { return rng.Intn(6) + 1 },
	}
	e.setupBoard()

	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *gameEngine) setupBoard() {
	place := func(point int, c Color, count int) {
		e.points[point-1] = Point{Color: c, Count: count}
	}
	place(24, ColorWhite, 2)
	place(13, ColorWhite, 5)
	place(8, ColorWhite, 3)
	place(6, ColorWhite, 5)
	place(1, ColorRed, 2)
	place(12, ColorRed, 5)
	place(17, ColorRed, 3)
	place(19, ColorRed, 5)
}

func (e *gameEngine) RollDice() Dice {
	if e.winner != ColorNone {
		return e.dice
	}

	if e.opening {
		// Each side rolls one die; the higher roll starts and plays both
		// dice. Ties re-roll.
		var a, b int
		for {
			a, b = e.roll(), e.roll()
			if a != b {
				break
			}
		}
		if a > b {
			e.current = ColorWhite
		} else {
			e.current = ColorRed
		}
		e.dice = Dice{Die1: a, Die2: b}
		e.remaining = []int{a, b}
		e.started = true
		e.opening = false
		return e.dice
	}

	if len(e.remaining) > 0 {
		return e.dice
	}

	a, b := e.roll(), e.roll()
	e.dice = Dice{Die1: a, Die2: b}
	if a == b {
		e.remaining = []int{a, a, a, a}
	} else {
		e.remaining = []int{a, b}
	}
	return e.dice
}

func (e *gameEngine) ValidMoves() []Move {
	if e.winner != ColorNone || len(e.remaining) == 0 {
		return nil
	}

	c := e.current
	dice := uniqueDice(e.remaining)
	var moves []Move

	// Checkers on the bar must re-enter before anything else may move.
	if e.barCount(c) > 0 {
		for _, d := range dice {
			to := entryPoint(c, d)
			if e.landable(c, to) {
				moves = append(moves, Move{From: barIndex(c), To: to, DieValue: d})
			}
		}
		return moves
	}

	bearingOff := e.canBearOff(c)
	for p := 1; p <= 24; p++ {
		pt := e.points[p-1]
		if pt.Color != c || pt.Count == 0 {
			continue
		}
		for _, d := range dice {
			to := destination(c, p, d)
			switch {
			case to >= 1 && to <= 24:
				if e.landable(c, to) {
					moves = append(moves, Move{From: p, To: to, DieValue: d})
				}
			case bearingOff:
				if exitDistance(c, p) == d || (exitDistance(c, p) < d && e.isFarthest(c, p)) {
					moves = append(moves, Move{From: p, To: offIndex(c), DieValue: d})
				}
			}
		}
	}
	return moves
}

func (e *gameEngine) MakeMove(from, to int) error {
	var chosen *Move
	for _, m := range e.ValidMoves() {
		if m.From == from && m.To == to {
			if chosen == nil || m.DieValue < chosen.DieValue {
				m := m
				chosen = &m
			}
		}
	}
	if chosen == nil {
		return apperrors.ErrIllegalMove.WithMessage(fmt.Sprintf("no legal move from %d to %d", from, to))
	}

	c := e.current
	hit := false

	// Lift the checker.
	if from == barIndex(c) {
		e.addBar(c, -1)
	} else {
		e.removeChecker(from)
	}

	// Land it.
	if to == offIndex(c) {
		e.addOff(c, 1)
	} else {
		dst := &e.points[to-1]
		if dst.Color == c.Opponent() && dst.Count == 1 {
			hit = true
			e.addBar(c.Opponent(), 1)
			dst.Color = ColorNone
			dst.Count = 0
		}
		dst.Color = c
		dst.Count++
	}

	e.consumeDie(chosen.DieValue)
	e.history = append(e.history, moveNotation(c, from, to, hit))

	if e.offCount(c) == CheckersPerColor {
		e.winner = c
		e.remaining = nil
	}
	return nil
}

func (e *gameEngine) EndTurn() error {
	if !e.started {
		return apperrors.ErrGameNotStarted
	}
	if e.winner != ColorNone {
		e.remaining = nil
		e.dice = Dice{}
		return nil
	}
	if len(e.remaining) > 0 && len(e.ValidMoves()) > 0 {
		return apperrors.ErrWrongPhase.WithMessage("playable dice remain")
	}

	e.remaining = nil
	e.dice = Dice{}
	e.current = e.current.Opponent()
	return nil
}

func (e *gameEngine) OfferDouble() bool {
	return e.CanDouble(e.current)
}

func (e *gameEngine) AcceptDouble() {
	// Called while the offering side is still the current player: the cube
	// doubles and passes to the accepting (opposing) side.
	e.cube.Value *= 2
	e.cube.Owner = e.current.Opponent()
}

func (e *gameEngine) DeclineDouble(winner Color) {
	// A declined double is settled at the pre-double stake; gammon and
	// backgammon multipliers never apply.
	e.declinedStakes = e.cube.Value
	e.winner = winner
	e.remaining = nil
	e.dice = Dice{}
}

func (e *gameEngine) StartTurnTimer() {
	e.turnStart = time.Now()
}

func (e *gameEngine) EndTurnTimer() int64 {
	if e.turnStart.IsZero() {
		return 0
	}
	elapsed := time.Since(e.turnStart).Milliseconds()
	e.turnStart = time.Time{}
	return elapsed
}

func (e *gameEngine) Result() Result {
	if e.winner == ColorNone {
		return Result{}
	}
	if e.declinedStakes > 0 {
		return Result{Winner: e.winner, Stakes: e.declinedStakes}
	}

	loser := e.winner.Opponent()
	multiplier := 1
	if e.offCount(loser) == 0 {
		multiplier = 2 // gammon
		if e.barCount(loser) > 0 || e.hasCheckerInHome(loser, e.winner) {
			multiplier = 3 // backgammon
		}
	}
	return Result{Winner: e.winner, Stakes: e.cube.Value * multiplier}
}

func (e *gameEngine) CurrentPlayer() Color { return e.current }
func (e *gameEngine) Dice() Dice           { return e.dice }
func (e *gameEngine) Cube() Cube           { return e.cube }
func (e *gameEngine) Winner() Color        { return e.winner }
func (e *gameEngine) GameStarted() bool    { return e.started }
func (e *gameEngine) IsOpeningRoll() bool  { return e.opening }
func (e *gameEngine) IsCrawfordGame() bool { return e.crawford }

func (e *gameEngine) RemainingMoves() []int {
	out := make([]int, len(e.remaining))
	copy(out, e.remaining)
	return out
}

func (e *gameEngine) MoveHistory() []string {
	out := make([]string, len(e.history))
	copy(out, e.history)
	return out
}

func (e *gameEngine) CanDouble(c Color) bool {
	if !e.started || e.winner != ColorNone || e.crawford {
		return false
	}
	if e.cube.Value >= maxCubeValue {
		return false
	}
	return e.cube.Owner == ColorNone || e.cube.Owner == c
}

func (e *gameEngine) Snapshot() State {
	return State{
		Points:         e.points,
		BarWhite:       e.barWhite,
		BarRed:         e.barRed,
		OffWhite:       e.offWhite,
		OffRed:         e.offRed,
		CurrentPlayer:  e.current,
		Dice:           e.dice,
		RemainingMoves: e.RemainingMoves(),
		Cube:           e.cube,
		MoveHistory:    e.MoveHistory(),
		GameStarted:    e.started,
		CrawfordGame:   e.crawford,
		Winner:         e.winner,
		DeclinedStakes: e.declinedStakes,
	}
}

func (e *gameEngine) LoadState(s State) error {
	if err := validateState(s); err != nil {
		return err
	}

	e.points = s.Points
	e.barWhite = s.BarWhite
	e.barRed = s.BarRed
	e.offWhite = s.OffWhite
	e.offRed = s.OffRed
	e.current = s.CurrentPlayer
	e.dice = s.Dice
	e.remaining = append([]int(nil), s.RemainingMoves...)
	e.cube = s.Cube
	e.history = append([]string(nil), s.MoveHistory...)
	e.started = s.GameStarted
	e.crawford = s.CrawfordGame
	e.winner = s.Winner
	e.declinedStakes = s.DeclinedStakes
	e.opening = !s.GameStarted
	e.turnStart = time.Time{}
	return nil
}

func (e *gameEngine) Clone() Engine {
	cpy := *e
	cpy.remaining = append([]int(nil), e.remaining...)
	cpy.history = append([]string(nil), e.history...)
	return &cpy
}

func validateState(s State) error {
	for _, c := range []Color{ColorWhite, ColorRed} {
		total := 0
		for _, pt := range s.Points {
			if pt.Count < 0 {
				return apperrors.NewIntegrity("negative checker count on board", nil)
			}
			if pt.Count > 0 && pt.Color == c {
				total += pt.Count
			}
			if pt.Count == 0 && pt.Color != ColorNone {
				return apperrors.NewIntegrity("empty point carries a color", nil)
			}
		}
		bar, off := s.BarWhite, s.OffWhite
		if c == ColorRed {
			bar, off = s.BarRed, s.OffRed
		}
		if bar < 0 || off < 0 {
			return apperrors.NewIntegrity("negative bar or borne-off count", nil)
		}
		if sum := total + bar + off; sum != CheckersPerColor {
			return apperrors.NewIntegrity(
				fmt.Sprintf("%s checkers sum to %d, want %d", c, sum, CheckersPerColor), nil)
		}
	}

	for _, d := range []int{s.Dice.Die1, s.Dice.Die2} {
		if d < 0 || d > 6 {
			return apperrors.NewIntegrity(fmt.Sprintf("die value %d out of range", d), nil)
		}
	}
	if len(s.RemainingMoves) > 4 {
		return apperrors.NewIntegrity("more than four remaining moves", nil)
	}
	for _, d := range s.RemainingMoves {
		if d < 1 || d > 6 {
			return apperrors.NewIntegrity(fmt.Sprintf("remaining move die %d out of range", d), nil)
		}
	}
	if s.Cube.Value < 1 || s.Cube.Value&(s.Cube.Value-1) != 0 {
		return apperrors.NewIntegrity(fmt.Sprintf("cube value %d is not a power of two", s.Cube.Value), nil)
	}
	return nil
}

func (e *gameEngine) barCount(c Color) int {
	if c == ColorWhite {
		return e.barWhite
	}
	return e.barRed
}

func (e *gameEngine) offCount(c Color) int {
	if c == ColorWhite {
		return e.offWhite
	}
	return e.offRed
}

func (e *gameEngine) addBar(c Color, delta int) {
	if c == ColorWhite {
		e.barWhite += delta
	} else {
		e.barRed += delta
	}
}

func (e *gameEngine) addOff(c Color, delta int) {
	if c == ColorWhite {
		e.offWhite += delta
	} else {
		e.offRed += delta
	}
}

func (e *gameEngine) removeChecker(point int) {
	pt := &e.points[point-1]
	pt.Count--
	if pt.Count == 0 {
		pt.Color = ColorNone
	}
}

// landable reports whether c may land on the point: open, own, or a lone
// opposing blot.
func (e *gameEngine) landable(c Color, point int) bool {
	pt := e.points[point-1]
	return pt.Color != c.Opponent() || pt.Count <= 1
}

// canBearOff reports whether every checker of c is in its home board.
func (e *gameEngine) canBearOff(c Color) bool {
	if e.barCount(c) > 0 {
		return false
	}
	for p := 1; p <= 24; p++ {
		if e.points[p-1].Color == c && e.points[p-1].Count > 0 && !inHome(c, p) {
			return false
		}
	}
	return true
}

// isFarthest reports whether p is the farthest-from-off point still occupied
// by c; overshooting bear-offs are only legal from there.
func (e *gameEngine) isFarthest(c Color, p int) bool {
	if c == ColorWhite {
		for q := p + 1; q <= 6; q++ {
			if e.points[q-1].Color == ColorWhite && e.points[q-1].Count > 0 {
				return false
			}
		}
		return true
	}
	for q := 19; q < p; q++ {
		if e.points[q-1].Color == ColorRed && e.points[q-1].Count > 0 {
			return false
		}
	}
	return true
}

func (e *gameEngine) hasCheckerInHome(c, homeOf Color) bool {
	for p := 1; p <= 24; p++ {
		if inHome(homeOf, p) && e.points[p-1].Color == c && e.points[p-1].Count > 0 {
			return true
		}
	}
	return false
}

func inHome(c Color, point int) bool {
	if c == ColorWhite {
		return point >= 1 && point <= 6
	}
	return point >= 19 && point <= 24
}

func entryPoint(c Color, die int) int {
	if c == ColorWhite {
		return 25 - die
	}
	return die
}

func destination(c Color, from, die int) int {
	if c == ColorWhite {
		return from - die
	}
	return from + die
}

// exitDistance is the pip count needed to bear the checker off exactly.
func exitDistance(c Color, point int) int {
	if c == ColorWhite {
		return point
	}
	return 25 - point
}

func barIndex(c Color) int {
	if c == ColorWhite {
		return WhiteBar
	}
	return RedBar
}

func offIndex(c Color) int {
	if c == ColorWhite {
		return WhiteOff
	}
	return RedOff
}

func (e *gameEngine) consumeDie(value int) {
	for i, d := range e.remaining {
		if d == value {
			e.remaining = append(e.remaining[:i], e.remaining[i+1:]...)
			return
		}
	}
}

func moveNotation(c Color, from, to int, hit bool) string {
	fromStr := fmt.Sprintf("%d", from)
	if from == barIndex(c) {
		fromStr = "bar"
	}
	toStr := fmt.Sprintf("%d", to)
	if to == offIndex(c) {
		toStr = "off"
	}
	notation := fmt.Sprintf("%s %s/%s", c, fromStr, toStr)
	if hit {
		notation += "*"
	}
	return notation
}

func uniqueDice(remaining []int) []int {
	seen := make(map[int]struct{}, 2)
	var out []int
	for _, d := range remaining {
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out
}
