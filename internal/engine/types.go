package engine

// CheckersPerColor is the fixed number of checkers each side plays with.
// Board occupancy + bar + borne-off must sum to this at every observable
// instant; restores that violate it are rejected.
const CheckersPerColor = 15

// Board position aliases. Points are numbered 1..24; white travels 24 -> 1
// and bears off past point 1, red travels 1 -> 24 and bears off past 24.
const (
	WhiteBar = 25
	RedBar   = 0
	WhiteOff = 0
	RedOff   = 25
)

// Color identifies one side of the match.
type Color int

const (
	ColorNone Color = iota
	ColorWhite
	ColorRed
)

func (c Color) String() string {
	switch c {
	case ColorWhite:
		return "white"
	case ColorRed:
		return "red"
	default:
		return "none"
	}
}

// Opponent returns the other side, or ColorNone for ColorNone.
func (c Color) Opponent() Color {
	switch c {
	case ColorWhite:
		return ColorRed
	case ColorRed:
		return ColorWhite
	default:
		return ColorNone
	}
}

// ParseColor maps the wire representation back to a Color.
func ParseColor(s string) Color {
	switch s {
	case "white":
		return ColorWhite
	case "red":
		return ColorRed
	default:
		return ColorNone
	}
}

// Dice holds the values of the current roll. Zero values mean no roll yet.
type Dice struct {
	Die1 int `json:"die1"`
	Die2 int `json:"die2"`
}

// Rolled reports whether any die has been rolled this turn.
func (d Dice) Rolled() bool {
	return d.Die1 != 0 || d.Die2 != 0
}

// IsDouble reports whether the roll is a double.
func (d Dice) IsDouble() bool {
	return d.Rolled() && d.Die1 == d.Die2
}

// Move is a single checker hop consuming one die.
type Move struct {
	From     int `json:"from"`
	To       int `json:"to"`
	DieValue int `json:"die_value"`
}

// Cube describes the doubling cube.
type Cube struct {
	Value int   `json:"value"`
	Owner Color `json:"owner"` // ColorNone while centered
}

// Point is the occupancy of a single board point.
type Point struct {
	Color Color `json:"color"`
	Count int   `json:"count"`
}

// Result carries the final outcome of a finished game.
type Result struct {
	Winner Color `json:"winner"`
	Stakes int   `json:"stakes"`
}

// State is the full externally observable engine state. It is the unit of
// snapshot capture and the only way to reconstruct an engine: LoadState
// validates it as a whole instead of exposing piecemeal privileged setters.
type State struct {
	Points         [24]Point `json:"points"` // index 0 is point 1
	BarWhite       int       `json:"bar_white"`
	BarRed         int       `json:"bar_red"`
	OffWhite       int       `json:"off_white"`
	OffRed         int       `json:"off_red"`
	CurrentPlayer  Color     `json:"current_player"`
	Dice           Dice      `json:"dice"`
	RemainingMoves []int     `json:"remaining_moves"`
	Cube           Cube      `json:"cube"`
	MoveHistory    []string  `json:"move_history"`
	GameStarted    bool      `json:"game_started"`
	CrawfordGame   bool      `json:"crawford_game"`
	Winner         Color     `json:"winner"`
	DeclinedStakes int       `json:"declined_stakes,omitempty"` // set when the game ended on a declined double
}

// Engine is the rules authority owning board, dice, and cube legality. The
// session layer never inspects board geometry directly; it drives play
// through this interface and reads state back for views and snapshots.
type Engine interface {
	// RollDice produces the next roll. During the opening roll the higher
	// die decides who starts and both dice are played by the starter.
	RollDice() Dice
	// ValidMoves enumerates every legal single hop for the current player
	// with the dice still remaining.
	ValidMoves() []Move
	// MakeMove applies one hop. The move must match a ValidMoves entry.
	MakeMove(from, to int) error
	// EndTurn passes play to the opponent. Remaining dice are forfeited
	// only when no legal move exists for them.
	EndTurn() error

	// OfferDouble reports whether the current player is entitled to turn
	// the cube right now (ownership and Crawford rules only; the turn
	// phase restriction is enforced by the offer protocol above).
	OfferDouble() bool
	// AcceptDouble doubles the cube and hands it to the accepting side.
	AcceptDouble()
	// DeclineDouble ends the game in favour of winner at the pre-double
	// stake.
	DeclineDouble(winner Color)

	// StartTurnTimer marks the beginning of the current player's clock.
	StartTurnTimer()
	// EndTurnTimer stops the clock and returns the elapsed turn duration
	// in milliseconds.
	EndTurnTimer() int64

	// Result is only meaningful once Winner is non-none.
	Result() Result

	CurrentPlayer() Color
	Dice() Dice
	RemainingMoves() []int
	Cube() Cube
	CanDouble(c Color) bool
	Winner() Color
	GameStarted() bool
	IsOpeningRoll() bool
	IsCrawfordGame() bool
	MoveHistory() []string

	// Snapshot captures the complete observable state.
	Snapshot() State
	// LoadState replaces the engine state wholesale after validating the
	// snapshot's internal consistency.
	LoadState(State) error
	// Clone returns an independent deep copy, used to pre-validate
	// multi-hop moves without mutating live state.
	Clone() Engine
}

// Factory builds a fresh engine for a new session.
type Factory func(opts ...Option) Engine
