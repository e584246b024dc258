package game

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/models"
	apperrors "github.com/GarrettBeatty/doublecube.gg-sub001/pkg/errors"
)

// IsRegisteredAgent distinguishes registered accounts from automated and
// anonymous participants by identifier shape.
func IsRegisteredAgent(agentID string) bool {
	return agentID != "" &&
		!strings.HasPrefix(agentID, "bot:") &&
		!strings.HasPrefix(agentID, "guest:")
}

// Mapper translates between a live session+engine and the persisted Game
// record. Capture is lossless for everything the engine observes; Restore
// rebuilds a session whose engine state is revalidated as a whole.
type Mapper struct{}

// NewMapper constructs a Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// Capture flattens the session and its engine into a Game record suitable
// for a full-replacement save.
func (m *Mapper) Capture(s *GameSession) (*models.Game, error) {
	snap := s.State()

	points, err := json.Marshal(snap.Points)
	if err != nil {
		return nil, fmt.Errorf("encode points: %w", err)
	}
	remaining, err := json.Marshal(snap.RemainingMoves)
	if err != nil {
		return nil, fmt.Errorf("encode remaining moves: %w", err)
	}
	history, err := json.Marshal(snap.MoveHistory)
	if err != nil {
		return nil, fmt.Errorf("encode move history: %w", err)
	}

	whiteName, redName := s.PlayerNames()
	whiteReserve, redReserve := s.clock.reserves()
	modes := s.Modes()

	record := &models.Game{
		ID:                   s.ID,
		MatchID:              s.MatchID,
		WhitePlayerID:        s.AgentFor(engine.ColorWhite),
		RedPlayerID:          s.AgentFor(engine.ColorRed),
		WhitePlayerName:      whiteName,
		RedPlayerName:        redName,
		Points:               datatypes.JSON(points),
		BarWhite:             snap.BarWhite,
		BarRed:               snap.BarRed,
		OffWhite:             snap.OffWhite,
		OffRed:               snap.OffRed,
		CurrentTurn:          snap.CurrentPlayer.String(),
		Die1:                 snap.Dice.Die1,
		Die2:                 snap.Dice.Die2,
		RemainingMoves:       datatypes.JSON(remaining),
		CubeValue:            snap.Cube.Value,
		CubeOwner:            snap.Cube.Owner.String(),
		PendingDouble:        s.PendingDouble(),
		MoveHistory:          datatypes.JSON(history),
		GameStarted:          snap.GameStarted,
		CrawfordGame:         snap.CrawfordGame,
		DeclinedStakes:       snap.DeclinedStakes,
		Status:               s.Status(),
		ChatEnabled:          modes.Chat,
		DoubleEnabled:        modes.Double,
		ImportExportEnabled:  modes.ImportExport,
		AnalysisBadgeEnabled: modes.AnalysisBadge,
		WhiteReserveMS:       whiteReserve.Milliseconds(),
		RedReserveMS:         redReserve.Milliseconds(),
		LastActivityAt:       s.LastActivity(),
	}

	if snap.Winner != engine.ColorNone {
		res := s.Result()
		record.Winner = res.Winner.String()
		record.Stakes = res.Stakes
	}

	if deadline := s.clock.deadline(); !deadline.IsZero() {
		record.TurnDeadline = &deadline
	}

	return record, nil
}

// Restore rebuilds a live session from a persisted record. Participants are
// re-admitted without connections; they reattach when they reconnect. The
// reconstructed engine state is validated as a whole: a checker-count
// mismatch aborts the restore instead of returning a corrupt session.
func (m *Mapper) Restore(record *models.Game, factory engine.Factory, opts ...SessionOption) (*GameSession, error) {
	if record == nil {
		return nil, apperrors.ErrSessionNotFound
	}

	state := engine.State{
		BarWhite:       record.BarWhite,
		BarRed:         record.BarRed,
		OffWhite:       record.OffWhite,
		OffRed:         record.OffRed,
		CurrentPlayer:  engine.ParseColor(record.CurrentTurn),
		Dice:           engine.Dice{Die1: record.Die1, Die2: record.Die2},
		Cube:           engine.Cube{Value: record.CubeValue, Owner: engine.ParseColor(record.CubeOwner)},
		GameStarted:    record.GameStarted,
		CrawfordGame:   record.CrawfordGame,
		Winner:         engine.ParseColor(record.Winner),
		DeclinedStakes: record.DeclinedStakes,
	}

	if len(record.Points) > 0 {
		if err := json.Unmarshal(record.Points, &state.Points); err != nil {
			return nil, apperrors.NewIntegrity("decode persisted board points", err)
		}
	}
	if len(record.RemainingMoves) > 0 {
		if err := json.Unmarshal(record.RemainingMoves, &state.RemainingMoves); err != nil {
			return nil, apperrors.NewIntegrity("decode persisted remaining moves", err)
		}
	}
	if len(record.MoveHistory) > 0 {
		if err := json.Unmarshal(record.MoveHistory, &state.MoveHistory); err != nil {
			return nil, apperrors.NewIntegrity("decode persisted move history", err)
		}
	}

	eng := factory()
	if err := eng.LoadState(state); err != nil {
		return nil, err
	}

	opts = append(opts, WithModes(Modes{
		Chat:          record.ChatEnabled,
		Double:        record.DoubleEnabled,
		ImportExport:  record.ImportExportEnabled,
		AnalysisBadge: record.AnalysisBadgeEnabled,
	}))
	if record.MatchID != "" {
		opts = append(opts, WithMatchID(record.MatchID))
	}

	s := NewSession(record.ID, eng, opts...)

	if record.WhitePlayerID != "" {
		s.AddPlayer(record.WhitePlayerID, "")
		s.SetPlayerName(record.WhitePlayerID, record.WhitePlayerName)
	}
	if record.RedPlayerID != "" {
		s.AddPlayer(record.RedPlayerID, "")
		s.SetPlayerName(record.RedPlayerID, record.RedPlayerName)
	}

	if record.PendingDouble != "" {
		s.SetPendingDouble(record.PendingDouble)
	}

	s.clock.setReserves(
		time.Duration(record.WhiteReserveMS)*time.Millisecond,
		time.Duration(record.RedReserveMS)*time.Millisecond,
	)
	s.SetStatus(record.Status)

	return s, nil
}
