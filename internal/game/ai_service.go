package game

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/bots"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/models"
	apperrors "github.com/GarrettBeatty/doublecube.gg-sub001/pkg/errors"
	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/logger"
	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/metrics"
)

// TurnOutcome reports how an automated turn ended.
type TurnOutcome int

const (
	// TurnCompleted means the bot rolled, played what it could and passed
	// the move to the opponent (or won).
	TurnCompleted TurnOutcome = iota
	// TurnPaused means the bot offered a double and is waiting for the
	// opponent's response before rolling.
	TurnPaused
	// TurnSkipped means another driver already held this session's
	// automated turn and the call was a no-op.
	TurnSkipped
)

func (o TurnOutcome) String() string {
	switch o {
	case TurnCompleted:
		return "completed"
	case TurnPaused:
		return "paused"
	case TurnSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Delays are presentational pauses inserted between the visible steps of an
// automated turn. They never overlap with the session action lock.
type Delays struct {
	Thinking time.Duration
	ShowDice time.Duration
	PerMove  time.Duration
}

// AIService drives a full automated turn: optional cube offer, roll, move
// selection and end of turn. Each discrete mutation takes the session action
// lock on its own so human actions and spectator joins interleave freely
// with the bot's presentational pauses.
type AIService struct {
	resolver    *bots.Resolver
	doubles     *DoubleService
	broadcaster Broadcaster
	snapshots   *SnapshotWriter
	mapper      *Mapper
	delays      Delays
	log         *zap.Logger
}

// NewAIService wires the automated turn driver.
func NewAIService(r *bots.Resolver, d *DoubleService, b Broadcaster, w *SnapshotWriter, m *Mapper, delays Delays) *AIService {
	return &AIService{
		resolver:    r,
		doubles:     d,
		broadcaster: b,
		snapshots:   w,
		mapper:      m,
		delays:      delays,
		log:         logger.WithModule("ai_service"),
	}
}

// ExecuteTurn plays the current bot's turn to completion or to a pending
// cube offer. Callers must not hold the session action lock. Overlapping
// calls for the same session collapse to the one already running.
func (a *AIService) ExecuteTurn(ctx context.Context, s *GameSession) (TurnOutcome, error) {
	if !s.beginAutoTurn() {
		return TurnSkipped, nil
	}
	defer s.endAutoTurn()

	st := s.State()
	if st.CurrentPlayer == engine.ColorNone {
		// The opening roll is shared; the human side drives it. Only an
		// all-bot table rolls it here.
		if !a.resolver.IsAgent(s.AgentFor(engine.ColorWhite)) || !a.resolver.IsAgent(s.AgentFor(engine.ColorRed)) {
			return TurnCompleted, nil
		}
		if err := a.roll(ctx, s); err != nil {
			metrics.AITurns.WithLabelValues("error").Inc()
			return TurnCompleted, err
		}
		broadcastView(a.broadcaster, s, EventGameUpdate)
		a.pause(ctx, a.delays.ShowDice)
		st = s.State()
	}

	agentID := s.AgentFor(st.CurrentPlayer)
	strategy, err := a.resolver.Resolve(agentID)
	if err != nil {
		return TurnCompleted, err
	}
	log := logger.WithSession("ai_service", s.ID).With(zap.String("agent_id", agentID))

	if !st.Dice.Rolled() {
		paused, err := a.maybeOfferDouble(ctx, s, strategy, agentID, log)
		if err != nil {
			metrics.AITurns.WithLabelValues("error").Inc()
			return TurnCompleted, err
		}
		if paused {
			metrics.AITurns.WithLabelValues("paused").Inc()
			return TurnPaused, nil
		}

		a.pause(ctx, a.delays.Thinking)
		if err := a.roll(ctx, s); err != nil {
			metrics.AITurns.WithLabelValues("error").Inc()
			return TurnCompleted, err
		}
		broadcastView(a.broadcaster, s, EventGameUpdate)
		a.pause(ctx, a.delays.ShowDice)
	} else {
		// Resuming after an accepted double or a restart mid-turn.
		broadcastView(a.broadcaster, s, EventGameUpdate)
		a.pause(ctx, a.delays.ShowDice)
	}

	eng, err := a.planningEngine(ctx, s)
	if err != nil {
		metrics.AITurns.WithLabelValues("error").Inc()
		return TurnCompleted, err
	}
	plan, err := strategy.ChooseMoves(ctx, eng)
	if err != nil {
		metrics.AITurns.WithLabelValues("error").Inc()
		return TurnCompleted, err
	}

	for _, mv := range plan {
		if err := a.applyMove(ctx, s, mv); err != nil {
			metrics.AITurns.WithLabelValues("error").Inc()
			return TurnCompleted, err
		}
		broadcastView(a.broadcaster, s, EventGameUpdate)
		a.pause(ctx, a.delays.PerMove)
	}

	over, err := a.finishTurn(ctx, s, log)
	if err != nil {
		return TurnCompleted, err
	}

	metrics.AITurns.WithLabelValues("completed").Inc()
	if over {
		broadcastView(a.broadcaster, s, EventGameOver)
	} else {
		broadcastView(a.broadcaster, s, EventGameUpdate)
	}
	a.persist(s)
	return TurnCompleted, nil
}

// planningEngine hands strategies a private copy of the engine, captured
// under the action lock so planning never races a live mutation.
func (a *AIService) planningEngine(ctx context.Context, s *GameSession) (engine.Engine, error) {
	if err := s.Acquire(ctx); err != nil {
		return nil, apperrors.Wrap(err, "session busy")
	}
	defer s.Release()
	return s.Engine().Clone(), nil
}

// maybeOfferDouble consults the strategy before rolling. A true result means
// an offer went out and the turn is paused awaiting the response.
func (a *AIService) maybeOfferDouble(ctx context.Context, s *GameSession, strategy bots.Strategy, agentID string, log *zap.Logger) (bool, error) {
	if !s.Modes().Double {
		return false, nil
	}
	eng, err := a.planningEngine(ctx, s)
	if err != nil {
		return false, err
	}
	if !eng.CanDouble(eng.CurrentPlayer()) {
		return false, nil
	}

	want, err := strategy.ShouldOfferDouble(ctx, eng)
	if err != nil {
		log.Warn("cube consultation failed, rolling instead", zap.Error(err))
		return false, nil
	}
	if !want {
		return false, nil
	}

	if _, err := a.doubles.Offer(ctx, s, agentID); err != nil {
		// Losing the race to a human action is not a turn failure.
		log.Debug("cube offer rejected, rolling instead", zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (a *AIService) roll(ctx context.Context, s *GameSession) error {
	if err := s.Acquire(ctx); err != nil {
		return apperrors.Wrap(err, "session busy")
	}
	defer func() {
		s.refreshState()
		s.Release()
	}()

	eng := s.Engine()
	if eng.Dice().Rolled() || len(eng.RemainingMoves()) > 0 {
		return apperrors.ErrWrongPhase.WithMessage("dice already rolled this turn")
	}

	starting := eng.IsOpeningRoll()
	eng.RollDice()
	if starting {
		s.SetStatus(models.StatusInProgress)
		s.clock.start(eng.CurrentPlayer())
	}
	eng.StartTurnTimer()
	s.markTurnStart(eng.Snapshot())
	s.Touch()
	return nil
}

func (a *AIService) applyMove(ctx context.Context, s *GameSession, mv engine.Move) error {
	if err := s.Acquire(ctx); err != nil {
		return apperrors.Wrap(err, "session busy")
	}
	defer func() {
		s.refreshState()
		s.Release()
	}()

	if err := s.Engine().MakeMove(mv.From, mv.To); err != nil {
		return apperrors.ErrIllegalMove.WithInternal(err)
	}
	s.Touch()
	return nil
}

// finishTurn verifies the bot exhausted its dice, then ends the turn or
// records the win. A bot that stops with playable dice remaining corrupts
// the session, so the session is quarantined rather than handed to the
// opponent in a half-played state.
func (a *AIService) finishTurn(ctx context.Context, s *GameSession, log *zap.Logger) (gameOver bool, err error) {
	if err := s.Acquire(ctx); err != nil {
		return false, apperrors.Wrap(err, "session busy")
	}
	defer func() {
		s.refreshState()
		s.Release()
	}()

	eng := s.Engine()
	if eng.Winner() != engine.ColorNone {
		s.clock.stop()
		s.SetStatus(models.StatusCompleted)
		s.clearTurnStart()
		return true, nil
	}

	if len(eng.RemainingMoves()) > 0 {
		if len(eng.ValidMoves()) > 0 {
			s.SetStatus(models.StatusSuspended)
			metrics.SuspendedSessions.Inc()
			metrics.AITurns.WithLabelValues("integrity_violation").Inc()
			ierr := apperrors.NewIntegrity("automated turn left playable dice unused", nil)
			log.Error("session suspended", zap.Int("remaining", len(eng.RemainingMoves())), zap.Error(ierr))
			return false, ierr
		}
		log.Debug("automated side blocked, forfeiting remaining dice",
			zap.Int("remaining", len(eng.RemainingMoves())))
	}

	if err := eng.EndTurn(); err != nil {
		return false, apperrors.Wrap(err, "end automated turn")
	}
	s.clock.stop()
	s.clock.start(eng.CurrentPlayer())
	s.clearTurnStart()
	s.Touch()
	return false, nil
}

// pause sleeps unless the context ends first.
func (a *AIService) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func (a *AIService) persist(s *GameSession) {
	record, err := a.mapper.Capture(s)
	if err != nil {
		a.log.Warn("snapshot capture failed", zap.String("session_id", s.ID), zap.Error(err))
		return
	}
	a.snapshots.Enqueue(record)
}
