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

// DefaultBotAcceptThreshold is the largest prospective cube value an
// automated opponent will take.
const DefaultBotAcceptThreshold = 4

// DoubleOffer reports the stake change a pending offer proposes.
type DoubleOffer struct {
	OfferedBy    string `json:"offered_by"`
	CurrentValue int    `json:"current_value"`
	NewValue     int    `json:"new_value"`
}

// DoubleService runs the cube offer protocol:
// no offer -> offered(by) -> accepted | declined. While an offer is
// pending, roll and move actions are rejected until it resolves.
type DoubleService struct {
	broadcaster Broadcaster
	snapshots   *SnapshotWriter
	mapper      *Mapper
	resolver    *bots.Resolver
	ai          *AIService

	acceptThreshold int
	responseDelay   time.Duration
	log             *zap.Logger
}

// DoubleOption customises the service.
type DoubleOption func(*DoubleService)

// WithAcceptThreshold overrides the automated-opponent take point.
func WithAcceptThreshold(v int) DoubleOption {
	return func(d *DoubleService) {
		if v > 0 {
			d.acceptThreshold = v
		}
	}
}

// WithResponseDelay sets the presentational pause before a bot responds.
func WithResponseDelay(delay time.Duration) DoubleOption {
	return func(d *DoubleService) {
		if delay >= 0 {
			d.responseDelay = delay
		}
	}
}

// NewDoubleService wires the cube protocol.
func NewDoubleService(b Broadcaster, w *SnapshotWriter, m *Mapper, r *bots.Resolver, opts ...DoubleOption) *DoubleService {
	d := &DoubleService{
		broadcaster:     b,
		snapshots:       w,
		mapper:          m,
		resolver:        r,
		acceptThreshold: DefaultBotAcceptThreshold,
		responseDelay:   time.Second,
		log:             logger.WithModule("double_service"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// BindAI attaches the automated-turn driver so an accepted offer can resume
// a paused bot turn.
func (d *DoubleService) BindAI(ai *AIService) {
	d.ai = ai
}

// Offer records a cube offer by the agent. Permitted only before the dice
// are rolled, by the side holding the move, when the engine confirms cube
// entitlement.
func (d *DoubleService) Offer(ctx context.Context, s *GameSession, agentID string) (DoubleOffer, error) {
	if err := s.Acquire(ctx); err != nil {
		return DoubleOffer{}, apperrors.Wrap(err, "session busy")
	}

	offer, err := d.offerLocked(s, agentID)
	s.Release()
	if err != nil {
		d.log.Debug("double offer rejected", zap.String("session_id", s.ID), zap.Error(err))
		return DoubleOffer{}, err
	}

	metrics.DoubleOffers.WithLabelValues("offered").Inc()

	// The offer broadcast precedes any later roll or move broadcast in
	// this turn because both run on the same serialized action path.
	for _, connID := range s.Connections() {
		d.broadcaster.Send(connID, EventDoubleOffered, offer)
	}
	d.persist(s)

	d.maybeRespondAsBot(s, offer)
	return offer, nil
}

func (d *DoubleService) offerLocked(s *GameSession, agentID string) (DoubleOffer, error) {
	switch s.Status() {
	case models.StatusSuspended:
		return DoubleOffer{}, apperrors.ErrSessionSuspended
	case models.StatusCompleted, models.StatusAbandoned:
		return DoubleOffer{}, apperrors.ErrGameFinished
	}
	if !s.Modes().Double {
		return DoubleOffer{}, apperrors.ErrDoubleNotAllowed.WithMessage("doubling is disabled for this match")
	}
	if s.PendingDouble() != "" {
		return DoubleOffer{}, apperrors.ErrDoublePending
	}

	eng := s.Engine()
	if !eng.GameStarted() {
		return DoubleOffer{}, apperrors.ErrGameNotStarted
	}
	if eng.Dice().Rolled() || len(eng.RemainingMoves()) > 0 {
		return DoubleOffer{}, apperrors.ErrDoubleNotAllowed.WithMessage("the dice have already been rolled this turn")
	}

	color := s.ColorOf(agentID)
	if color == engine.ColorNone || eng.CurrentPlayer() != color {
		return DoubleOffer{}, apperrors.ErrNotYourTurn
	}
	if !eng.OfferDouble() {
		return DoubleOffer{}, apperrors.ErrDoubleNotAllowed
	}

	s.SetPendingDouble(agentID)
	current := eng.Cube().Value
	return DoubleOffer{
		OfferedBy:    agentID,
		CurrentValue: current,
		NewValue:     current * 2,
	}, nil
}

// Accept resolves the pending offer: the cube doubles and passes to the
// accepting side, then play resumes with the offerer still on roll.
func (d *DoubleService) Accept(ctx context.Context, s *GameSession, agentID string) error {
	if err := s.Acquire(ctx); err != nil {
		return apperrors.Wrap(err, "session busy")
	}

	err := func() error {
		if err := d.validateResponse(s, agentID); err != nil {
			return err
		}
		s.Engine().AcceptDouble()
		s.ClearPendingDouble()
		return nil
	}()
	s.refreshState()
	s.Release()

	if err != nil {
		d.log.Debug("double accept rejected", zap.String("session_id", s.ID), zap.Error(err))
		return err
	}

	metrics.DoubleOffers.WithLabelValues("accepted").Inc()
	broadcastView(d.broadcaster, s, EventDoubleAccepted)
	d.persist(s)

	// A bot whose offer paused its turn resumes now.
	d.maybeResumeBotTurn(s)
	return nil
}

// Decline resolves the pending offer by conceding: the offering side wins
// immediately at the pre-double stake.
func (d *DoubleService) Decline(ctx context.Context, s *GameSession, agentID string) error {
	if err := s.Acquire(ctx); err != nil {
		return apperrors.Wrap(err, "session busy")
	}

	err := func() error {
		if err := d.validateResponse(s, agentID); err != nil {
			return err
		}

		offerer := s.ColorOf(s.PendingDouble())
		s.Engine().DeclineDouble(offerer)
		s.ClearPendingDouble()
		s.clock.stop()
		s.SetStatus(models.StatusCompleted)
		return nil
	}()
	s.refreshState()
	s.Release()

	if err != nil {
		d.log.Debug("double decline rejected", zap.String("session_id", s.ID), zap.Error(err))
		return err
	}

	metrics.DoubleOffers.WithLabelValues("declined").Inc()
	broadcastView(d.broadcaster, s, EventDoubleDeclined)
	broadcastView(d.broadcaster, s, EventGameOver)
	d.persist(s)
	return nil
}

// validateResponse checks that agentID is the non-offering participant of a
// live game with an offer pending. Callers hold the action lock.
func (d *DoubleService) validateResponse(s *GameSession, agentID string) error {
	switch s.Status() {
	case models.StatusSuspended:
		return apperrors.ErrSessionSuspended
	case models.StatusCompleted, models.StatusAbandoned:
		return apperrors.ErrGameFinished
	}
	if !s.Engine().GameStarted() {
		return apperrors.ErrGameNotStarted
	}

	offeredBy := s.PendingDouble()
	if offeredBy == "" {
		return apperrors.ErrWrongPhase.WithMessage("no double offer is pending")
	}
	if agentID == offeredBy || s.ColorOf(agentID) == engine.ColorNone {
		return apperrors.ErrNotYourTurn.WithMessage("only the opposing side may respond to the offer")
	}
	return nil
}

// maybeRespondAsBot applies the automated response policy: take when the
// prospective value stays within the threshold, otherwise drop. The delay
// is purely presentational.
func (d *DoubleService) maybeRespondAsBot(s *GameSession, offer DoubleOffer) {
	responder := s.AgentFor(s.ColorOf(offer.OfferedBy).Opponent())
	if !d.resolver.IsAgent(responder) {
		return
	}

	go func() {
		time.Sleep(d.responseDelay)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var err error
		if offer.NewValue <= d.acceptThreshold {
			err = d.Accept(ctx, s, responder)
		} else {
			err = d.Decline(ctx, s, responder)
		}
		if err != nil {
			d.log.Warn("automated double response failed",
				zap.String("session_id", s.ID), zap.Error(err))
		}
	}()
}

// ResumePending re-delivers a pending cube offer after the session returned
// to memory: humans see the prompt again and an automated responder answers
// it.
func (d *DoubleService) ResumePending(s *GameSession) bool {
	offeredBy := s.PendingDouble()
	if offeredBy == "" {
		return false
	}

	current := s.State().Cube.Value
	offer := DoubleOffer{
		OfferedBy:    offeredBy,
		CurrentValue: current,
		NewValue:     current * 2,
	}
	for _, connID := range s.Connections() {
		d.broadcaster.Send(connID, EventDoubleOffered, offer)
	}
	d.maybeRespondAsBot(s, offer)
	return true
}

// maybeResumeBotTurn reschedules the automated turn driver when the side on
// roll is a bot (its turn was paused by the offer).
func (d *DoubleService) maybeResumeBotTurn(s *GameSession) {
	if d.ai == nil {
		return
	}
	agent := s.AgentFor(s.State().CurrentPlayer)
	if !d.resolver.IsAgent(agent) {
		return
	}
	go func() {
		for {
			outcome, err := d.ai.ExecuteTurn(context.Background(), s)
			if err != nil {
				d.log.Error("resumed automated turn failed", zap.String("session_id", s.ID), zap.Error(err))
				return
			}
			if outcome != TurnCompleted || s.Status() != models.StatusInProgress {
				return
			}
			if !d.resolver.IsAgent(s.AgentFor(s.State().CurrentPlayer)) {
				return
			}
		}
	}()
}

func (d *DoubleService) persist(s *GameSession) {
	record, err := d.mapper.Capture(s)
	if err != nil {
		d.log.Warn("snapshot capture failed", zap.String("session_id", s.ID), zap.Error(err))
		return
	}
	d.snapshots.Enqueue(record)
}
