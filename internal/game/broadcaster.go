package game

// Realtime event names pushed to clients. One event is delivered per
// affected connection; payloads are connection-specific views.
const (
	EventGameUpdate         = "game_update"
	EventGameStart          = "game_start"
	EventGameOver           = "game_over"
	EventSpectatorJoined    = "spectator_joined"
	EventWaitingForOpponent = "waiting_for_opponent"
	EventDoubleOffered      = "double_offered"
	EventDoubleAccepted     = "double_accepted"
	EventDoubleDeclined     = "double_declined"
)

// Broadcaster delivers directed events to individual connections. The game
// layer never blocks on delivery; implementations must buffer or drop.
type Broadcaster interface {
	Send(connectionID, event string, payload any)
}

// broadcastView fans an event out to every connection with its own view.
func broadcastView(b Broadcaster, s *GameSession, event string) {
	if b == nil {
		return
	}
	for _, connID := range s.Connections() {
		b.Send(connID, event, s.ViewFor(connID))
	}
}
