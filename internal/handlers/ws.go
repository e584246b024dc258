package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/game"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/realtime"
	apperrors "github.com/GarrettBeatty/doublecube.gg-sub001/pkg/errors"
	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/logger"
)

const actionTimeout = 30 * time.Second

// wsRequest is one action frame from a client. Action selects the
// operation; the remaining fields are per-action arguments.
type wsRequest struct {
	Action string `json:"action" binding:"required"`

	From int                `json:"from"`
	To   int                `json:"to"`
	Hops []game.MoveRequest `json:"hops"`
}

// seat ties a live connection to its session and identity.
type seat struct {
	session *game.GameSession
	agentID string
}

// WSHandler attaches websocket connections to sessions and dispatches their
// action frames into the game layer.
type WSHandler struct {
	manager *game.SessionManager
	orch    *game.Orchestrator
	doubles *game.DoubleService
	hub     *realtime.Hub

	mu    sync.RWMutex
	seats map[string]seat

	log *zap.Logger
}

// NewWSHandler wires the websocket surface and registers itself as the
// hub's frame and disconnect sink.
func NewWSHandler(manager *game.SessionManager, orch *game.Orchestrator, doubles *game.DoubleService, hub *realtime.Hub) *WSHandler {
	h := &WSHandler{
		manager: manager,
		orch:    orch,
		doubles: doubles,
		hub:     hub,
		seats:   make(map[string]seat),
		log:     logger.WithModule("ws_handler"),
	}
	hub.SetHandlers(h.handleFrame, h.handleDisconnect)
	return h
}

// Attach upgrades GET /ws/games/:id. Query parameters: agent_id (required
// to take a seat), name (display name), spectate=1 to watch only.
func (h *WSHandler) Attach(c *gin.Context) {
	s, err := h.manager.GetOrRestore(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(404, gin.H{"error": "game not found"})
		return
	}

	agentID := c.Query("agent_id")
	name := c.Query("name")
	spectate := c.Query("spectate") == "1" || agentID == ""

	h.hub.Serve(c.Writer, c.Request, func(connID string) {
		h.seatConnection(s, connID, agentID, name, spectate)
	})
}

func (h *WSHandler) seatConnection(s *game.GameSession, connID, agentID, name string, spectate bool) {
	seated := false
	if !spectate {
		if _, ok := s.AddPlayer(agentID, connID); ok {
			seated = true
			if name != "" {
				s.SetPlayerName(agentID, name)
			}
		}
	}
	if !seated {
		// Both seats taken, or the client asked to watch.
		s.AddSpectator(connID)
		if !spectate {
			h.hub.Send(connID, "action_result", resultFromError(apperrors.ErrSessionFull))
		}
		agentID = ""
	}

	h.mu.Lock()
	h.seats[connID] = seat{session: s, agentID: agentID}
	h.mu.Unlock()

	switch {
	case !seated:
		for _, id := range s.Connections() {
			h.hub.Send(id, game.EventSpectatorJoined, s.ViewFor(id))
		}
	case s.Full():
		for _, id := range s.Connections() {
			h.hub.Send(id, game.EventGameStart, s.ViewFor(id))
		}
	default:
		h.hub.Send(connID, game.EventWaitingForOpponent, s.ViewFor(connID))
	}

	if seated {
		// A reconnect may find a bot holding the move, or a cube offer
		// still unanswered; re-arm automated play either way.
		h.orch.Resume(s)
	}

	h.log.Info("connection attached",
		zap.String("session_id", s.ID),
		zap.String("conn_id", connID),
		zap.String("agent_id", agentID),
		zap.Bool("spectator", !seated))
}

func (h *WSHandler) handleDisconnect(connID string) {
	h.mu.Lock()
	st, ok := h.seats[connID]
	delete(h.seats, connID)
	h.mu.Unlock()

	if ok {
		st.session.RemoveConnection(connID)
		h.log.Debug("connection detached",
			zap.String("session_id", st.session.ID),
			zap.String("conn_id", connID))
	}
}

func (h *WSHandler) handleFrame(connID string, payload []byte) {
	h.mu.RLock()
	st, ok := h.seats[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	var req wsRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.hub.Send(connID, "action_result", game.ActionResult{
			Error:     "malformed action frame",
			ErrorCode: apperrors.ErrBadRequest.Code,
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	res := h.dispatch(ctx, st, connID, req)
	h.hub.Send(connID, "action_result", res)
}

func (h *WSHandler) dispatch(ctx context.Context, st seat, connID string, req wsRequest) game.ActionResult {
	s := st.session

	switch req.Action {
	case "roll":
		return h.orch.Roll(ctx, s, connID)
	case "move":
		return h.orch.Move(ctx, s, connID, req.From, req.To)
	case "moves":
		return h.orch.MoveSequence(ctx, s, connID, req.Hops)
	case "end_turn":
		return h.orch.EndTurn(ctx, s, connID)
	case "undo":
		return h.orch.Undo(ctx, s, connID)
	case "double_offer":
		if st.agentID == "" {
			return resultFromError(apperrors.ErrNotYourTurn)
		}
		_, err := h.doubles.Offer(ctx, s, st.agentID)
		return resultFromError(err)
	case "double_accept":
		if st.agentID == "" {
			return resultFromError(apperrors.ErrNotYourTurn)
		}
		return resultFromError(h.doubles.Accept(ctx, s, st.agentID))
	case "double_decline":
		if st.agentID == "" {
			return resultFromError(apperrors.ErrNotYourTurn)
		}
		err := h.doubles.Decline(ctx, s, st.agentID)
		res := resultFromError(err)
		res.GameOver = err == nil
		return res
	default:
		return resultFromError(apperrors.NewBadRequest("unknown action " + req.Action))
	}
}

func resultFromError(err error) game.ActionResult {
	if err == nil {
		return game.ActionResult{OK: true}
	}
	appErr := apperrors.FromError(err)
	return game.ActionResult{Error: appErr.Message, ErrorCode: appErr.Code}
}
