package game

import (
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
)

// StateView is the connection-specific projection of session state pushed to
// clients. Backgammon is fully observable, so the per-viewer shaping mostly
// governs "your color"/"your turn" framing; spectators get no color.
type StateView struct {
	SessionID string `json:"session_id"`
	MatchID   string `json:"match_id,omitempty"`

	YourColor string `json:"your_color,omitempty"`
	YourTurn  bool   `json:"your_turn"`
	Spectator bool   `json:"spectator,omitempty"`

	WhitePlayer string `json:"white_player"`
	RedPlayer   string `json:"red_player"`
	WhiteName   string `json:"white_name,omitempty"`
	RedName     string `json:"red_name,omitempty"`

	Points         [24]engine.Point `json:"points"`
	BarWhite       int              `json:"bar_white"`
	BarRed         int              `json:"bar_red"`
	OffWhite       int              `json:"off_white"`
	OffRed         int              `json:"off_red"`
	CurrentTurn    string           `json:"current_turn"`
	Dice           engine.Dice      `json:"dice"`
	RemainingMoves []int            `json:"remaining_moves"`
	CubeValue      int              `json:"cube_value"`
	CubeOwner      string           `json:"cube_owner"`
	MoveHistory    []string         `json:"move_history"`

	PendingDoubleFrom string `json:"pending_double_from,omitempty"`

	Status string `json:"status"`
	Winner string `json:"winner,omitempty"`
	Stakes int    `json:"stakes,omitempty"`

	Modes Modes `json:"modes"`

	WhiteReserveMS int64 `json:"white_reserve_ms"`
	RedReserveMS   int64 `json:"red_reserve_ms"`
}

// ViewFor produces the view of the session for one connection. Unknown
// connections are treated as spectators.
func (s *GameSession) ViewFor(connID string) StateView {
	snap := s.State()
	color := s.colorOfConn(connID)
	whiteName, redName := s.PlayerNames()
	whiteReserve, redReserve := s.clock.reserves()

	view := StateView{
		SessionID:         s.ID,
		MatchID:           s.MatchID,
		YourTurn:          color != engine.ColorNone && s.IsPlayerTurn(connID),
		Spectator:         color == engine.ColorNone,
		WhitePlayer:       s.AgentFor(engine.ColorWhite),
		RedPlayer:         s.AgentFor(engine.ColorRed),
		WhiteName:         whiteName,
		RedName:           redName,
		Points:            snap.Points,
		BarWhite:          snap.BarWhite,
		BarRed:            snap.BarRed,
		OffWhite:          snap.OffWhite,
		OffRed:            snap.OffRed,
		CurrentTurn:       snap.CurrentPlayer.String(),
		Dice:              snap.Dice,
		RemainingMoves:    snap.RemainingMoves,
		CubeValue:         snap.Cube.Value,
		CubeOwner:         snap.Cube.Owner.String(),
		MoveHistory:       snap.MoveHistory,
		PendingDoubleFrom: s.PendingDouble(),
		Status:            s.Status(),
		Modes:             s.Modes(),
		WhiteReserveMS:    whiteReserve.Milliseconds(),
		RedReserveMS:      redReserve.Milliseconds(),
	}

	if color != engine.ColorNone {
		view.YourColor = color.String()
	}
	if snap.Winner != engine.ColorNone {
		res := s.Result()
		view.Winner = res.Winner.String()
		view.Stakes = res.Stakes
	}
	return view
}
