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

// ActionResult is the uniform outcome of every player-initiated action.
// Validation failures populate Error/ErrorCode and are never raised.
type ActionResult struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	GameOver  bool   `json:"game_over"`
}

// MoveRequest is one hop of a (possibly combined) move.
type MoveRequest struct {
	From int `json:"from" binding:"min=0,max=25"`
	To   int `json:"to" binding:"min=0,max=25"`
}

// Orchestrator is the single entry point for player actions: it serializes
// against the session's action lock, validates turn ownership and phase,
// delegates the mutation to the rules engine, then broadcasts, persists, and
// schedules an automated turn when the move passes to a bot.
type Orchestrator struct {
	broadcaster Broadcaster
	snapshots   *SnapshotWriter
	mapper      *Mapper
	resolver    *bots.Resolver
	ai          *AIService
	doubles     *DoubleService
	log         *zap.Logger
}

// NewOrchestrator wires the action pipeline.
func NewOrchestrator(b Broadcaster, w *SnapshotWriter, m *Mapper, r *bots.Resolver) *Orchestrator {
	return &Orchestrator{
		broadcaster: b,
		snapshots:   w,
		mapper:      m,
		resolver:    r,
		log:         logger.WithModule("orchestrator"),
	}
}

// BindAI attaches the automated-turn driver. Done post-construction because
// the AI service shares this orchestrator's collaborators.
func (o *Orchestrator) BindAI(ai *AIService) {
	o.ai = ai
}

// BindDoubles attaches the cube protocol so Resume can re-deliver a pending
// offer.
func (o *Orchestrator) BindDoubles(d *DoubleService) {
	o.doubles = d
}

// Resume re-arms automated play on a session that re-entered memory, after
// a snapshot restore or a reconnect: a pending cube offer is re-delivered
// (and answered when the responder is a bot), otherwise a bot holding the
// move gets its turn scheduled.
func (o *Orchestrator) Resume(s *GameSession) {
	if s.Status() != models.StatusInProgress {
		return
	}
	if o.doubles != nil && o.doubles.ResumePending(s) {
		return
	}
	o.maybeScheduleAI(s)
}

// Roll rolls the dice for the connection's side.
func (o *Orchestrator) Roll(ctx context.Context, s *GameSession, connID string) ActionResult {
	return o.perform(ctx, s, connID, "roll", func(eng engine.Engine) error {
		if !s.Full() {
			return apperrors.ErrGameNotStarted.WithMessage("waiting for an opponent")
		}
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
		return nil
	})
}

// Move applies a single checker hop.
func (o *Orchestrator) Move(ctx context.Context, s *GameSession, connID string, from, to int) ActionResult {
	return o.perform(ctx, s, connID, "move", func(eng engine.Engine) error {
		if len(eng.RemainingMoves()) == 0 {
			return apperrors.ErrWrongPhase.WithMessage("roll the dice before moving")
		}
		return eng.MakeMove(from, to)
	})
}

// MoveSequence applies a combined move spanning multiple dice atomically:
// every hop is validated against a cloned engine first, so an illegal hop
// anywhere rejects the whole sequence with no effect.
func (o *Orchestrator) MoveSequence(ctx context.Context, s *GameSession, connID string, hops []MoveRequest) ActionResult {
	return o.perform(ctx, s, connID, "move_sequence", func(eng engine.Engine) error {
		if len(hops) == 0 {
			return apperrors.NewBadRequest("a combined move needs at least one hop")
		}
		if len(eng.RemainingMoves()) == 0 {
			return apperrors.ErrWrongPhase.WithMessage("roll the dice before moving")
		}

		scratch := eng.Clone()
		for _, hop := range hops {
			if err := scratch.MakeMove(hop.From, hop.To); err != nil {
				return err
			}
		}
		for _, hop := range hops {
			if err := eng.MakeMove(hop.From, hop.To); err != nil {
				// The dry run above makes this unreachable short of an
				// engine defect.
				return apperrors.NewIntegrity("combined move diverged from dry run", err)
			}
		}
		return nil
	})
}

// EndTurn passes the move to the opponent and transfers the turn clock.
func (o *Orchestrator) EndTurn(ctx context.Context, s *GameSession, connID string) ActionResult {
	return o.perform(ctx, s, connID, "end_turn", func(eng engine.Engine) error {
		if !eng.Dice().Rolled() {
			return apperrors.ErrWrongPhase.WithMessage("roll the dice before ending the turn")
		}
		elapsed := eng.EndTurnTimer()
		if err := eng.EndTurn(); err != nil {
			return err
		}
		s.clock.stop()
		s.clock.start(eng.CurrentPlayer())
		s.clearTurnStart()
		o.log.Debug("turn ended",
			zap.String("session_id", s.ID),
			zap.Int64("turn_ms", elapsed))
		return nil
	})
}

// Undo rewinds the current turn to the moment its dice settled.
func (o *Orchestrator) Undo(ctx context.Context, s *GameSession, connID string) ActionResult {
	return o.perform(ctx, s, connID, "undo", func(eng engine.Engine) error {
		start, ok := s.turnStartState()
		if !ok || !eng.Dice().Rolled() {
			return apperrors.ErrWrongPhase.WithMessage("nothing to undo")
		}
		if len(eng.MoveHistory()) == len(start.MoveHistory) {
			return apperrors.ErrWrongPhase.WithMessage("no moves made this turn")
		}
		return eng.LoadState(start)
	})
}

// perform runs the uniform pipeline around one mutation. The action lock is
// held for validation and mutation only; broadcast and persistence happen
// after release so a slow downstream cannot starve the next action.
func (o *Orchestrator) perform(ctx context.Context, s *GameSession, connID, action string, mutate func(engine.Engine) error) ActionResult {
	if err := s.Acquire(ctx); err != nil {
		return o.reject(s, action, apperrors.Wrap(err, "session busy"))
	}

	started := time.Now()
	err := o.validateAndMutate(s, connID, action, mutate)
	gameOver := s.Engine().Winner() != engine.ColorNone
	if err == nil && gameOver {
		s.clock.stop()
		s.SetStatus(models.StatusCompleted)
		s.clearTurnStart()
	}
	s.refreshState()
	s.Release()

	metrics.ActionLatency.WithLabelValues(action).Observe(time.Since(started).Seconds())

	if err != nil {
		return o.reject(s, action, err)
	}

	metrics.GameActions.WithLabelValues(action, "ok").Inc()

	event := EventGameUpdate
	if gameOver {
		event = EventGameOver
	}
	broadcastView(o.broadcaster, s, event)
	o.persist(s)

	if !gameOver {
		o.maybeScheduleAI(s)
	}

	return ActionResult{OK: true, GameOver: gameOver}
}

func (o *Orchestrator) validateAndMutate(s *GameSession, connID, action string, mutate func(engine.Engine) error) error {
	switch s.Status() {
	case models.StatusSuspended:
		return apperrors.ErrSessionSuspended
	case models.StatusCompleted, models.StatusAbandoned:
		return apperrors.ErrGameFinished
	}

	if s.PendingDouble() != "" {
		return apperrors.ErrDoublePending
	}
	if !s.IsPlayerTurn(connID) {
		return apperrors.ErrNotYourTurn
	}

	if err := mutate(s.Engine()); err != nil {
		return err
	}
	s.Touch()
	return nil
}

func (o *Orchestrator) reject(s *GameSession, action string, err error) ActionResult {
	appErr := apperrors.FromError(err)

	result := "rejected"
	if !apperrors.IsValidation(appErr) {
		result = "error"
		o.log.Error("action failed",
			zap.String("session_id", s.ID),
			zap.String("action", action),
			zap.Error(appErr))
	} else {
		o.log.Debug("action rejected",
			zap.String("session_id", s.ID),
			zap.String("action", action),
			zap.String("code", appErr.Code))
	}
	metrics.GameActions.WithLabelValues(action, result).Inc()

	return ActionResult{Error: appErr.Message, ErrorCode: appErr.Code}
}

// persist enqueues a best-effort snapshot save.
func (o *Orchestrator) persist(s *GameSession) {
	record, err := o.mapper.Capture(s)
	if err != nil {
		o.log.Warn("snapshot capture failed", zap.String("session_id", s.ID), zap.Error(err))
		return
	}
	o.snapshots.Enqueue(record)
}

// maybeScheduleAI launches the automated turn driver when the move now
// belongs to a bot. Bot-vs-bot games chain turns until a human holds the
// move or the game ends.
func (o *Orchestrator) maybeScheduleAI(s *GameSession) {
	if o.ai == nil || s.Status() != models.StatusInProgress {
		return
	}
	agent := s.AgentFor(s.State().CurrentPlayer)
	if agent == "" {
		// Opening roll not resolved yet; only an all-bot table drives it.
		if !o.resolver.IsAgent(s.AgentFor(engine.ColorWhite)) || !o.resolver.IsAgent(s.AgentFor(engine.ColorRed)) {
			return
		}
	} else if !o.resolver.IsAgent(agent) {
		return
	}

	go func() {
		for {
			outcome, err := o.ai.ExecuteTurn(context.Background(), s)
			if err != nil {
				o.log.Error("automated turn failed", zap.String("session_id", s.ID), zap.Error(err))
				return
			}
			o.log.Debug("automated turn finished",
				zap.String("session_id", s.ID),
				zap.String("outcome", outcome.String()))
			if outcome != TurnCompleted || s.Status() != models.StatusInProgress {
				return
			}
			if !o.resolver.IsAgent(s.AgentFor(s.State().CurrentPlayer)) {
				return
			}
		}
	}()
}
