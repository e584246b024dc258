package game

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/bots"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/cache"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/database/testutil"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/store"
)

type sentEvent struct {
	ConnID  string
	Event   string
	Payload any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []sentEvent
}

func (f *fakeBroadcaster) Send(connID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{ConnID: connID, Event: event, Payload: payload})
}

func (f *fakeBroadcaster) eventsNamed(name string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.events {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

// scriptedRolls returns a die roller that replays values in order and keeps
// repeating the final value.
func scriptedRolls(values ...int) func() int {
	i := 0
	return func() int {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}

type harness struct {
	broadcaster *fakeBroadcaster
	store       *store.GameStore
	writer      *SnapshotWriter
	mapper      *Mapper
	resolver    *bots.Resolver
	orch        *Orchestrator
	doubles     *DoubleService
	ai          *AIService
}

func newHarness(t *testing.T, resolverOpts ...bots.ResolverOption) *harness {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	gameStore, err := store.NewGameStore(db, cache.NewMemoryStore())
	require.NoError(t, err)

	writer := NewSnapshotWriter(gameStore, WithRetry(1, time.Millisecond))
	writer.Start()
	t.Cleanup(writer.Stop)

	b := &fakeBroadcaster{}
	mapper := NewMapper()
	resolver := bots.NewResolver(resolverOpts...)

	orch := NewOrchestrator(b, writer, mapper, resolver)
	doubles := NewDoubleService(b, writer, mapper, resolver, WithResponseDelay(time.Millisecond))
	ai := NewAIService(resolver, doubles, b, writer, mapper, Delays{})
	orch.BindAI(ai)
	orch.BindDoubles(doubles)
	doubles.BindAI(ai)

	return &harness{
		broadcaster: b,
		store:       gameStore,
		writer:      writer,
		mapper:      mapper,
		resolver:    resolver,
		orch:        orch,
		doubles:     doubles,
		ai:          ai,
	}
}

// newSeatedSession builds a two-human session with scripted dice. Agent
// "alice" plays white on conn-a and "bob" plays red on conn-b.
func newSeatedSession(t *testing.T, rolls ...int) *GameSession {
	t.Helper()

	eng := engine.New(engine.WithRand(scriptedRolls(rolls...)))
	s := NewSession("s-"+t.Name(), eng)

	colorA, ok := s.AddPlayer("alice", "conn-a")
	require.True(t, ok)
	require.Equal(t, engine.ColorWhite, colorA)

	colorB, ok := s.AddPlayer("bob", "conn-b")
	require.True(t, ok)
	require.Equal(t, engine.ColorRed, colorB)
	return s
}

// newBotSession seats "alice" as white against botID as red.
func newBotSession(t *testing.T, botID string, rolls ...int) *GameSession {
	t.Helper()

	eng := engine.New(engine.WithRand(scriptedRolls(rolls...)))
	s := NewSession("s-"+t.Name(), eng)

	_, ok := s.AddPlayer("alice", "conn-a")
	require.True(t, ok)
	_, ok = s.AddPlayer(botID, "")
	require.True(t, ok)
	return s
}
