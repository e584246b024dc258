package game

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/store"
	apperrors "github.com/GarrettBeatty/doublecube.gg-sub001/pkg/errors"
	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/logger"
	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/metrics"
)

// SessionManager holds every session resident in memory and lazily restores
// sessions from persisted snapshots on first access.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*GameSession

	store   *store.GameStore
	mapper  *Mapper
	factory engine.Factory
	resume  func(*GameSession)
	log     *zap.Logger
}

// NewSessionManager builds an empty registry. The store may be nil in tests;
// GetOrRestore then behaves like Get.
func NewSessionManager(st *store.GameStore, m *Mapper, factory engine.Factory) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*GameSession),
		store:    st,
		mapper:   m,
		factory:  factory,
		log:      logger.WithModule("session_manager"),
	}
}

// BindResume sets the hook invoked after a snapshot restore, so automated
// play picks back up when a bot holds the move or owes a cube response.
func (sm *SessionManager) BindResume(fn func(*GameSession)) {
	sm.resume = fn
}

// Create registers a brand new session and returns it.
func (sm *SessionManager) Create(opts ...SessionOption) *GameSession {
	s := NewSession(uuid.NewString(), sm.factory(), opts...)

	sm.mu.Lock()
	sm.sessions[s.ID] = s
	sm.mu.Unlock()

	metrics.ActiveSessions.Inc()
	sm.log.Info("session created", zap.String("session_id", s.ID))
	return s
}

// Get returns a resident session.
func (sm *SessionManager) Get(id string) (*GameSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[id]
	return s, ok
}

// GetOrRestore returns the resident session, or rebuilds one from its
// persisted snapshot. Concurrent restores of the same ID collapse to a
// single winner.
func (sm *SessionManager) GetOrRestore(ctx context.Context, id string) (*GameSession, error) {
	if s, ok := sm.Get(id); ok {
		return s, nil
	}
	if sm.store == nil {
		return nil, apperrors.ErrSessionNotFound
	}

	record, err := sm.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrGameNotFound) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, apperrors.Wrap(err, "load session snapshot")
	}

	restored, err := sm.mapper.Restore(record, sm.factory)
	if err != nil {
		return nil, err
	}

	sm.mu.Lock()
	if existing, ok := sm.sessions[id]; ok {
		sm.mu.Unlock()
		return existing, nil
	}
	sm.sessions[id] = restored
	sm.mu.Unlock()

	metrics.ActiveSessions.Inc()
	sm.log.Info("session restored from snapshot", zap.String("session_id", id))

	if sm.resume != nil {
		sm.resume(restored)
	}
	return restored, nil
}

// Remove evicts a session from memory. Its snapshot stays persisted.
func (sm *SessionManager) Remove(id string) {
	sm.mu.Lock()
	_, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if ok {
		metrics.ActiveSessions.Dec()
		sm.log.Info("session removed", zap.String("session_id", id))
	}
}

// All returns a point-in-time slice of resident sessions, for sweeps.
func (sm *SessionManager) All() []*GameSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*GameSession, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	return out
}
