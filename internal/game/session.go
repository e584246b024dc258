package game

import (
	"context"
	"sync"
	"time"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/models"
)

// Modes are the per-match feature flags.
type Modes struct {
	Chat          bool `json:"chat"`
	Double        bool `json:"double"`
	ImportExport  bool `json:"import_export"`
	AnalysisBadge bool `json:"analysis_badge"`
}

// DefaultModes enables the standard feature set.
func DefaultModes() Modes {
	return Modes{Chat: true, Double: true, ImportExport: true}
}

// participant is one seated side: an agent identity plus every connection
// (browser tab) it currently holds.
type participant struct {
	agentID string
	name    string
	conns   map[string]struct{}
}

// GameSession is the live, lockable state container for one match. It owns
// exactly one engine instance for its lifetime. All state-mutating action
// sequences must hold the action lock; participant bookkeeping is guarded
// separately so views never contend with in-flight turns.
type GameSession struct {
	ID      string
	MatchID string

	engine engine.Engine

	mu           sync.RWMutex
	white        participant
	red          participant
	spectators   map[string]struct{}
	modes        Modes
	status       string
	pendingOffer string // agent ID of the offering side, empty when none
	lastActivity time.Time
	turnStart    *engine.State // engine snapshot when the dice settled, for undo

	// Engine snapshot re-captured under the action lock after every
	// mutation. Views, snapshots and turn checks read this copy so they
	// never touch the live engine concurrently with an action.
	snapshot engine.State
	outcome  engine.Result

	aiRunning bool

	clock sessionClock

	// Binary semaphore: at most one in-flight state-mutating action.
	actionLock chan struct{}
}

// SessionOption customises a new session.
type SessionOption func(*GameSession)

// WithModes overrides the default feature flags.
func WithModes(m Modes) SessionOption {
	return func(s *GameSession) { s.modes = m }
}

// WithMatchID links the session to a multi-game match.
func WithMatchID(matchID string) SessionOption {
	return func(s *GameSession) { s.MatchID = matchID }
}

// WithClock configures the per-turn allowance and starting reserve.
func WithClock(turnAllowance, reserve time.Duration) SessionOption {
	return func(s *GameSession) {
		s.clock = newSessionClock(turnAllowance, reserve)
	}
}

// NewSession constructs a session around a fresh engine.
func NewSession(id string, eng engine.Engine, opts ...SessionOption) *GameSession {
	s := &GameSession{
		ID:           id,
		engine:       eng,
		white:        participant{conns: make(map[string]struct{})},
		red:          participant{conns: make(map[string]struct{})},
		spectators:   make(map[string]struct{}),
		modes:        DefaultModes(),
		status:       models.StatusWaiting,
		lastActivity: time.Now(),
		clock:        newSessionClock(0, 0),
		actionLock:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snapshot = eng.Snapshot()
	return s
}

// Engine exposes the session's rules engine. Callers must hold the action
// lock; lock-free readers go through State instead.
func (s *GameSession) Engine() engine.Engine { return s.engine }

// State returns the engine snapshot captured at the end of the last action.
func (s *GameSession) State() engine.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Result returns the final outcome captured with the last snapshot. It is
// meaningful only once State().Winner is set.
func (s *GameSession) Result() engine.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outcome
}

// refreshState re-captures the engine snapshot into the read cache. Callers
// must hold the action lock.
func (s *GameSession) refreshState() {
	snap := s.engine.Snapshot()
	var res engine.Result
	if snap.Winner != engine.ColorNone {
		res = s.engine.Result()
	}
	s.mu.Lock()
	s.snapshot = snap
	s.outcome = res
	s.mu.Unlock()
}

// LoadState replaces the engine state wholesale and refreshes the read
// cache. On a live session the caller must hold the action lock.
func (s *GameSession) LoadState(state engine.State) error {
	if err := s.engine.LoadState(state); err != nil {
		return err
	}
	s.refreshState()
	return nil
}

// beginAutoTurn claims the automated-turn driver for this session, so
// overlapping schedules collapse to a single run.
func (s *GameSession) beginAutoTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aiRunning {
		return false
	}
	s.aiRunning = true
	return true
}

func (s *GameSession) endAutoTurn() {
	s.mu.Lock()
	s.aiRunning = false
	s.mu.Unlock()
}

// Acquire takes the action lock, waiting until it is free or the context is
// cancelled.
func (s *GameSession) Acquire(ctx context.Context) error {
	select {
	case s.actionLock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the action lock only if it is immediately available.
func (s *GameSession) TryAcquire() bool {
	select {
	case s.actionLock <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the action lock.
func (s *GameSession) Release() {
	select {
	case <-s.actionLock:
	default:
	}
}

// AddPlayer seats the agent, or adds another connection for an already
// seated agent. It returns the assigned color and false when both seats are
// taken by other agents; callers then fall back to AddSpectator.
func (s *GameSession) AddPlayer(agentID, connID string) (engine.Color, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	switch {
	case s.white.agentID == agentID:
		s.addConnLocked(&s.white, connID)
		return engine.ColorWhite, true
	case s.red.agentID == agentID:
		s.addConnLocked(&s.red, connID)
		return engine.ColorRed, true
	case s.white.agentID == "":
		s.white.agentID = agentID
		s.addConnLocked(&s.white, connID)
		return engine.ColorWhite, true
	case s.red.agentID == "":
		s.red.agentID = agentID
		s.addConnLocked(&s.red, connID)
		if s.status == models.StatusWaiting {
			s.status = models.StatusInProgress
		}
		return engine.ColorRed, true
	default:
		return engine.ColorNone, false
	}
}

func (s *GameSession) addConnLocked(p *participant, connID string) {
	if connID != "" {
		p.conns[connID] = struct{}{}
	}
}

// AddSpectator registers a watching connection.
func (s *GameSession) AddSpectator(connID string) {
	if connID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spectators[connID] = struct{}{}
	s.touchLocked()
}

// RemoveConnection drops a connection from whichever set holds it.
func (s *GameSession) RemoveConnection(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.white.conns, connID)
	delete(s.red.conns, connID)
	delete(s.spectators, connID)
	s.touchLocked()
}

// SetPlayerName records a display name for a seated agent.
func (s *GameSession) SetPlayerName(agentID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.white.agentID == agentID {
		s.white.name = name
	}
	if s.red.agentID == agentID {
		s.red.name = name
	}
	s.touchLocked()
}

// ColorOf returns the seat held by the agent, or ColorNone.
func (s *GameSession) ColorOf(agentID string) engine.Color {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch agentID {
	case "":
		return engine.ColorNone
	case s.white.agentID:
		return engine.ColorWhite
	case s.red.agentID:
		return engine.ColorRed
	default:
		return engine.ColorNone
	}
}

// AgentFor returns the agent ID seated on the color.
func (s *GameSession) AgentFor(c engine.Color) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch c {
	case engine.ColorWhite:
		return s.white.agentID
	case engine.ColorRed:
		return s.red.agentID
	default:
		return ""
	}
}

// colorOfConn resolves which seat a connection belongs to.
func (s *GameSession) colorOfConn(connID string) engine.Color {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.white.conns[connID]; ok {
		return engine.ColorWhite
	}
	if _, ok := s.red.conns[connID]; ok {
		return engine.ColorRed
	}
	return engine.ColorNone
}

// IsPlayerTurn reports whether the connection currently holds the move.
// During the opening roll either seated side may act.
func (s *GameSession) IsPlayerTurn(connID string) bool {
	c := s.colorOfConn(connID)
	if c == engine.ColorNone {
		return false
	}
	st := s.State()
	if !st.GameStarted && st.Winner == engine.ColorNone {
		return true
	}
	return st.CurrentPlayer == c
}

// Full reports whether both seats are occupied.
func (s *GameSession) Full() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.white.agentID != "" && s.red.agentID != ""
}

// Connections returns every participant and spectator connection ID.
func (s *GameSession) Connections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.white.conns)+len(s.red.conns)+len(s.spectators))
	for id := range s.white.conns {
		out = append(out, id)
	}
	for id := range s.red.conns {
		out = append(out, id)
	}
	for id := range s.spectators {
		out = append(out, id)
	}
	return out
}

// Modes returns the feature flags.
func (s *GameSession) Modes() Modes {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modes
}

// Status returns the lifecycle status.
func (s *GameSession) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus transitions the lifecycle status.
func (s *GameSession) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.touchLocked()
}

// PendingDouble returns the agent ID of the side whose cube offer awaits a
// response, or empty.
func (s *GameSession) PendingDouble() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingOffer
}

// SetPendingDouble records a cube offer.
func (s *GameSession) SetPendingDouble(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingOffer = agentID
	s.touchLocked()
}

// ClearPendingDouble resolves the cube offer.
func (s *GameSession) ClearPendingDouble() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingOffer = ""
	s.touchLocked()
}

// LastActivity returns the most recent state-affecting call time.
func (s *GameSession) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Touch refreshes the activity timestamp.
func (s *GameSession) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
}

func (s *GameSession) touchLocked() {
	s.lastActivity = time.Now()
}

// PlayerNames returns the display names for both seats.
func (s *GameSession) PlayerNames() (white, red string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.white.name, s.red.name
}

// markTurnStart snapshots engine state so the turn can be undone back to the
// moment the dice settled. Callers must hold the action lock.
func (s *GameSession) markTurnStart(state engine.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnStart = &state
}

// turnStartState returns the snapshot taken when the current turn's dice
// settled, if any.
func (s *GameSession) turnStartState() (engine.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.turnStart == nil {
		return engine.State{}, false
	}
	return *s.turnStart, true
}

// clearTurnStart forgets the undo snapshot once the turn ends.
func (s *GameSession) clearTurnStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnStart = nil
}
