package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/analysis"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/api"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/app"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/app/maintenance"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/bots"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/cache"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/database"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/game"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/handlers"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/realtime"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/store"
	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/logger"
)

// runtimeStack bundles the long-lived services behind the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Redis   *cache.RedisStore
	Writer  *game.SnapshotWriter
	Hub     *realtime.Hub
	Sweeper *maintenance.Sweeper
	Router  *gin.Engine
}

// bootstrapRuntime initialises the database, caches, game services, and the
// HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	success := false

	defer func() {
		if !success {
			stack.Shutdown(log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}
	stack.DB = db

	var cacheStore cache.Store = cache.NewMemoryStore()
	if cfg.Cache.Redis.Enabled {
		redisStore, redisErr := cache.NewRedisStore(cache.RedisConfig{
			Address:  cfg.Cache.Redis.Address,
			Username: cfg.Cache.Redis.Username,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Timeout:  cfg.Cache.Redis.Timeout,
		})
		if redisErr != nil {
			log.Warn("redis unavailable; falling back to in-memory view cache", zap.Error(redisErr))
		} else {
			stack.Redis = redisStore
			cacheStore = redisStore
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	gameStore, err := store.NewGameStore(db, cacheStore)
	if err != nil {
		return nil, fmt.Errorf("initialise game store: %w", err)
	}

	stack.Writer = game.NewSnapshotWriter(gameStore,
		game.WithQueueSize(cfg.Game.SnapshotQueueSize),
		game.WithRetry(cfg.Game.SnapshotMaxAttempts, 0),
	)
	stack.Writer.Start()

	stack.Hub = realtime.NewHub()

	var analysisClient *analysis.Client
	var resolverOpts []bots.ResolverOption
	if cfg.Analysis.Enabled {
		analysisClient = analysis.NewClient(cfg.Analysis.BaseURL, cfg.Analysis.Timeout)
		resolverOpts = append(resolverOpts, bots.WithGnubg(analysisClient))

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if analysisClient.Healthy(pingCtx) {
			log.Info("analysis sidecar enabled", zap.String("base_url", cfg.Analysis.BaseURL))
		} else {
			log.Warn("analysis sidecar unreachable, gnubg bots will fall back to greedy play",
				zap.String("base_url", cfg.Analysis.BaseURL))
		}
		cancel()
	}
	resolver := bots.NewResolver(resolverOpts...)

	mapper := game.NewMapper()
	orch := game.NewOrchestrator(stack.Hub, stack.Writer, mapper, resolver)
	doubles := game.NewDoubleService(stack.Hub, stack.Writer, mapper, resolver,
		game.WithAcceptThreshold(cfg.Game.BotAcceptThreshold),
		game.WithResponseDelay(cfg.Game.BotResponseDelay),
	)
	ai := game.NewAIService(resolver, doubles, stack.Hub, stack.Writer, mapper, game.Delays{
		Thinking: cfg.Game.BotThinkingDelay,
		ShowDice: cfg.Game.BotShowDiceDelay,
		PerMove:  cfg.Game.BotPerMoveDelay,
	})
	orch.BindAI(ai)
	orch.BindDoubles(doubles)
	doubles.BindAI(ai)

	manager := game.NewSessionManager(gameStore, mapper, engine.New)
	manager.BindResume(orch.Resume)

	stack.Sweeper = maintenance.NewSweeper(gameStore, manager, stack.Hub,
		maintenance.WithSchedule(cfg.Game.SweepSchedule),
	)
	if err := stack.Sweeper.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	games := handlers.NewGameHandler(manager, orch, mapper, stack.Writer, resolver, analysisClient, handlers.ClockSettings{
		TurnAllowance: cfg.Game.TurnAllowance,
		Reserve:       cfg.Game.Reserve,
	})
	ws := handlers.NewWSHandler(manager, orch, doubles, stack.Hub)

	stack.Router, err = api.NewRouter(db, stack.Hub, games, ws)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background workers and releases resources. Safe to call on a
// partially initialised stack.
func (s *runtimeStack) Shutdown(log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Sweeper != nil {
		stopCtx := s.Sweeper.Stop()
		if err := s.Sweeper.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown sweep failed", zap.Error(err))
		}
	}

	if s.Hub != nil {
		s.Hub.Shutdown()
	}

	// Stop the writer after the hub so snapshots triggered by final
	// disconnects still land.
	if s.Writer != nil {
		s.Writer.Stop()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.OpenAndMigrate(dbCfg)
	if err != nil {
		return nil, err
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}
