package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/game"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/models"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/store"
	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/logger"
	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/metrics"
)

const defaultSweepSpec = "@every 30s"

// TimeoutNotice is the payload of a timeout forfeit broadcast.
type TimeoutNotice struct {
	SessionID string `json:"session_id"`
	Winner    string `json:"winner"`
	Reason    string `json:"reason"`
}

// Sweeper forfeits games whose turn deadline has passed. It works against
// the store with a conditional status transition, so it is idempotent and
// safe to run while the same game is being played in memory: a move that
// lands before the sweep refreshes the deadline and the forfeit misses.
type Sweeper struct {
	store       *store.GameStore
	manager     *game.SessionManager
	broadcaster game.Broadcaster

	cron     *cron.Cron
	schedule string
	now      func() time.Time
	log      *zap.Logger
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithSchedule overrides the cron expression for periodic sweeps.
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithNow overrides the clock used for deadline comparisons.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper constructs a Sweeper. The manager and broadcaster may be nil;
// forfeits then happen against the store only.
func NewSweeper(st *store.GameStore, manager *game.SessionManager, b game.Broadcaster, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:       st,
		manager:     manager,
		broadcaster: b,
		schedule:    defaultSweepSpec,
		now:         time.Now,
		log:         logger.WithModule("maintenance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s
}

// Start registers the sweep with the scheduler and launches it.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("timeout sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to complete.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce scans for expired games and forfeits each one.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	now := s.now()
	expired, err := s.store.ListExpired(ctx, now)
	if err != nil {
		return err
	}

	var errs error
	for i := range expired {
		if err := s.forfeit(ctx, &expired[i], now); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (s *Sweeper) forfeit(ctx context.Context, record *models.Game, now time.Time) error {
	// The side to move ran out of time; the opponent wins.
	mover := engine.ParseColor(record.CurrentTurn)
	if mover == engine.ColorNone {
		return nil
	}
	winner := mover.Opponent()

	applied, err := s.store.ForfeitExpired(ctx, record.ID, winner.String(), now)
	if err != nil {
		return err
	}
	if !applied {
		// A move landed between the scan and the update.
		return nil
	}

	metrics.TimeoutForfeits.Inc()
	s.log.Info("game forfeited on time",
		zap.String("game_id", record.ID),
		zap.String("loser", mover.String()),
		zap.String("winner", winner.String()))

	s.notifyLive(record.ID, winner)
	return nil
}

// notifyLive pushes the forfeit to a session still resident in memory.
func (s *Sweeper) notifyLive(id string, winner engine.Color) {
	if s.manager == nil {
		return
	}
	live, ok := s.manager.Get(id)
	if !ok {
		return
	}

	live.SetStatus(models.StatusAbandoned)

	if s.broadcaster == nil {
		return
	}
	notice := TimeoutNotice{SessionID: id, Winner: winner.String(), Reason: "timeout"}
	for _, connID := range live.Connections() {
		s.broadcaster.Send(connID, game.EventGameOver, notice)
	}
}
