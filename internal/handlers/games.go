package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/analysis"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/bots"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/game"
	apperrors "github.com/GarrettBeatty/doublecube.gg-sub001/pkg/errors"
	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/logger"
	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/response"
)

// ClockSettings are the server defaults for new games; zero disables the
// turn clock.
type ClockSettings struct {
	TurnAllowance time.Duration
	Reserve       time.Duration
}

// GameHandler owns the REST surface for creating and inspecting games.
type GameHandler struct {
	manager  *game.SessionManager
	orch     *game.Orchestrator
	mapper   *game.Mapper
	snapshot *game.SnapshotWriter
	resolver *bots.Resolver
	analysis *analysis.Client
	clock    ClockSettings
	log      *zap.Logger
}

// NewGameHandler wires the game REST surface.
func NewGameHandler(
	manager *game.SessionManager,
	orch *game.Orchestrator,
	mapper *game.Mapper,
	snapshot *game.SnapshotWriter,
	resolver *bots.Resolver,
	analysisClient *analysis.Client,
	clock ClockSettings,
) *GameHandler {
	return &GameHandler{
		manager:  manager,
		orch:     orch,
		mapper:   mapper,
		snapshot: snapshot,
		resolver: resolver,
		analysis: analysisClient,
		clock:    clock,
		log:      logger.WithModule("game_handler"),
	}
}

type createGameRequest struct {
	AgentID    string `json:"agent_id" validate:"required,max=128,agentid"`
	PlayerName string `json:"player_name" validate:"omitempty,max=64"`
	Opponent   string `json:"opponent" validate:"omitempty,max=128,agentid"`
	MatchID    string `json:"match_id" validate:"omitempty,max=128"`
	Crawford   bool   `json:"crawford"`

	Modes *game.Modes `json:"modes"`
}

type createGameResponse struct {
	SessionID string `json:"session_id"`
	YourColor string `json:"your_color"`
}

// Create opens a new game. The creator takes the white seat immediately;
// a bot opponent (bot:random, bot:greedy, bot:gnubg:N) is seated at once,
// while a human opponent joins over the websocket later.
func (h *GameHandler) Create(c *gin.Context) {
	var req createGameRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if req.Opponent != "" && h.resolver.IsAgent(req.Opponent) {
		if _, err := h.resolver.Resolve(req.Opponent); err != nil {
			response.Error(c, apperrors.NewBadRequest(err.Error()))
			return
		}
	}

	opts := []game.SessionOption{
		game.WithClock(h.clock.TurnAllowance, h.clock.Reserve),
	}
	if req.Modes != nil {
		opts = append(opts, game.WithModes(*req.Modes))
	}
	if req.MatchID != "" {
		opts = append(opts, game.WithMatchID(req.MatchID))
	}

	s := h.manager.Create(opts...)
	if req.Crawford {
		// Crawford applies to the whole game; re-seed the engine before
		// anyone has acted.
		_ = s.LoadState(crawfordState(s.State()))
	}

	color, _ := s.AddPlayer(req.AgentID, "")
	if req.PlayerName != "" {
		s.SetPlayerName(req.AgentID, req.PlayerName)
	}
	if req.Opponent != "" && h.resolver.IsAgent(req.Opponent) {
		s.AddPlayer(req.Opponent, "")
	}

	// An all-bot table has no human to start play; the orchestrator
	// drives it from the opening roll.
	h.orch.Resume(s)

	h.log.Info("game created",
		zap.String("session_id", s.ID),
		zap.String("creator", req.AgentID),
		zap.Bool("registered", game.IsRegisteredAgent(req.AgentID)),
		zap.String("opponent", req.Opponent))

	response.Success(c, http.StatusCreated, createGameResponse{
		SessionID: s.ID,
		YourColor: color.String(),
	})
}

type gameSummary struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	White     string `json:"white,omitempty"`
	Red       string `json:"red,omitempty"`
	Full      bool   `json:"full"`
}

// List summarizes the sessions currently resident in memory. Games that
// idled out of the registry are reachable individually by ID.
func (h *GameHandler) List(c *gin.Context) {
	sessions := h.manager.All()
	out := make([]gameSummary, 0, len(sessions))
	for _, s := range sessions {
		white, red := s.PlayerNames()
		out = append(out, gameSummary{
			SessionID: s.ID,
			Status:    s.Status(),
			White:     white,
			Red:       red,
			Full:      s.Full(),
		})
	}
	response.Success(c, http.StatusOK, out)
}

// Get returns the neutral (spectator) view of a game, restoring it from its
// snapshot when it is not resident.
func (h *GameHandler) Get(c *gin.Context) {
	s, err := h.manager.GetOrRestore(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, s.ViewFor(""))
}

// Export returns the complete engine state for transfer or analysis.
func (h *GameHandler) Export(c *gin.Context) {
	s, err := h.manager.GetOrRestore(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !s.Modes().ImportExport {
		response.Error(c, apperrors.ErrBadRequest.WithMessage("import/export is disabled for this game"))
		return
	}
	response.Success(c, http.StatusOK, s.State())
}

// Import replaces the game's state wholesale with a previously exported
// position. The state is validated as a whole before it takes effect.
func (h *GameHandler) Import(c *gin.Context) {
	s, err := h.manager.GetOrRestore(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !s.Modes().ImportExport {
		response.Error(c, apperrors.ErrBadRequest.WithMessage("import/export is disabled for this game"))
		return
	}

	var state engine.State
	if err := c.ShouldBindJSON(&state); err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	if err := s.Acquire(c.Request.Context()); err != nil {
		response.Error(c, apperrors.Wrap(err, "session busy"))
		return
	}
	err = s.LoadState(state)
	s.Release()
	if err != nil {
		response.Error(c, err)
		return
	}

	if record, capErr := h.mapper.Capture(s); capErr == nil {
		h.snapshot.Enqueue(record)
	}
	response.Success(c, http.StatusOK, s.ViewFor(""))
}

// Analysis evaluates the current position through the gnubg sidecar.
func (h *GameHandler) Analysis(c *gin.Context) {
	s, err := h.manager.GetOrRestore(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !s.Modes().AnalysisBadge {
		response.Error(c, apperrors.ErrBadRequest.WithMessage("analysis is disabled for this game"))
		return
	}
	if h.analysis == nil {
		response.Error(c, apperrors.ErrBadRequest.WithMessage("no analysis service is configured"))
		return
	}

	plies := 0
	if raw := c.Query("plies"); raw != "" {
		if v, convErr := strconv.Atoi(raw); convErr == nil && v >= 0 && v <= 4 {
			plies = v
		}
	}

	eval, err := h.analysis.Evaluate(c.Request.Context(), analysis.EncodePosition(s.State()), plies)
	if err != nil {
		h.log.Warn("analysis request failed", zap.String("session_id", s.ID), zap.Error(err))
		response.Error(c, apperrors.Wrap(err, "position evaluation failed"))
		return
	}
	response.Success(c, http.StatusOK, eval)
}

// crawfordState re-seeds a fresh game's state with the Crawford flag set.
func crawfordState(state engine.State) engine.State {
	state.CrawfordGame = true
	return state
}
