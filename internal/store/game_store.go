package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/cache"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/models"
	apperrors "github.com/GarrettBeatty/doublecube.gg-sub001/pkg/errors"
	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/logger"
)

const snapshotCacheTTL = 30 * time.Minute

// ErrGameNotFound indicates no snapshot exists for the requested ID.
var ErrGameNotFound = errors.New("game store: game not found")

// GameStore persists game snapshots. Every save fully replaces the row for
// the game ID; the optional cache keeps hot snapshots close for reconnects.
type GameStore struct {
	db    *gorm.DB
	cache cache.Store
	log   *zap.Logger
}

// NewGameStore constructs a GameStore. The cache is optional.
func NewGameStore(db *gorm.DB, cacheStore cache.Store) (*GameStore, error) {
	if db == nil {
		return nil, errors.New("game store: db is required")
	}
	return &GameStore{
		db:    db,
		cache: cacheStore,
		log:   logger.WithModule("game_store"),
	}, nil
}

// Save upserts the snapshot by game ID. Cache write failures are logged and
// swallowed; the database row is the durable record.
func (s *GameStore) Save(ctx context.Context, game *models.Game) error {
	if game == nil || game.ID == "" {
		return errors.New("game store: snapshot with id is required")
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(game).Error
	if err != nil {
		return err
	}

	s.cacheSet(ctx, game)
	return nil
}

// Load retrieves a snapshot, consulting the cache first.
func (s *GameStore) Load(ctx context.Context, id string) (*models.Game, error) {
	if id == "" {
		return nil, apperrors.ErrSessionNotFound
	}

	if cached := s.cacheGet(ctx, id); cached != nil {
		return cached, nil
	}

	var game models.Game
	err := s.db.WithContext(ctx).First(&game, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, &game)
	return &game, nil
}

// ListExpired returns in-progress games whose turn deadline has passed.
func (s *GameStore) ListExpired(ctx context.Context, now time.Time) ([]models.Game, error) {
	var games []models.Game
	err := s.db.WithContext(ctx).
		Where("status = ? AND turn_deadline IS NOT NULL AND turn_deadline < ?", models.StatusInProgress, now).
		Find(&games).Error
	if err != nil {
		return nil, err
	}
	return games, nil
}

// ForfeitExpired marks a timed-out game abandoned with the given winner. The
// update is conditional on the deadline still being expired, so it is safe
// to run concurrently with live play on the same game: a move that already
// pushed the deadline forward makes this a no-op.
func (s *GameStore) ForfeitExpired(ctx context.Context, id, winner string, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Game{}).
		Where("id = ? AND status = ? AND turn_deadline IS NOT NULL AND turn_deadline < ?", id, models.StatusInProgress, now).
		Updates(map[string]any{
			"status":           models.StatusAbandoned,
			"winner":           winner,
			"last_activity_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}

	if res.RowsAffected > 0 {
		s.invalidate(ctx, id)
		return true, nil
	}
	return false, nil
}

func (s *GameStore) cacheSet(ctx context.Context, game *models.Game) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(game)
	if err != nil {
		s.log.Warn("marshal snapshot for cache", zap.String("game_id", game.ID), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, cacheKey(game.ID), payload, snapshotCacheTTL); err != nil {
		s.log.Warn("cache snapshot", zap.String("game_id", game.ID), zap.Error(err))
	}
}

func (s *GameStore) cacheGet(ctx context.Context, id string) *models.Game {
	if s.cache == nil {
		return nil
	}
	payload, ok, err := s.cache.Get(ctx, cacheKey(id))
	if err != nil {
		s.log.Warn("cache lookup", zap.String("game_id", id), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	var game models.Game
	if err := json.Unmarshal(payload, &game); err != nil {
		s.log.Warn("decode cached snapshot", zap.String("game_id", id), zap.Error(err))
		return nil
	}
	return &game
}

func (s *GameStore) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(id)); err != nil {
		s.log.Warn("cache invalidation", zap.String("game_id", id), zap.Error(err))
	}
}

func cacheKey(id string) string {
	return "game:" + id
}
