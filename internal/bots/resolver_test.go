package bots

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/analysis"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
)

func TestResolverBuiltins(t *testing.T) {
	r := NewResolver()

	random, err := r.Resolve("bot:random")
	require.NoError(t, err)
	assert.IsType(t, &RandomStrategy{}, random)
	assert.Equal(t, "bot:random", random.BotID())

	greedy, err := r.Resolve("bot:greedy")
	require.NoError(t, err)
	assert.IsType(t, &GreedyStrategy{}, greedy)

	_, err = r.Resolve("bot:mystery")
	assert.Error(t, err)
	_, err = r.Resolve("alice")
	assert.Error(t, err)
}

func TestResolverIsAgent(t *testing.T) {
	r := NewResolver()
	assert.True(t, r.IsAgent("bot:random"))
	assert.True(t, r.IsAgent("bot:gnubg:2"))
	assert.False(t, r.IsAgent("alice"))
	assert.False(t, r.IsAgent(""))
}

func TestResolverGnubgTier(t *testing.T) {
	bare := NewResolver()
	_, err := bare.Resolve("bot:gnubg:2")
	assert.Error(t, err, "gnubg tier needs the sidecar option")

	client := analysis.NewClient("http://127.0.0.1:1", time.Second)
	r := NewResolver(WithGnubg(client))

	s, err := r.Resolve("bot:gnubg:2")
	require.NoError(t, err)
	assert.IsType(t, &GnubgStrategy{}, s)
	assert.Equal(t, "bot:gnubg:2", s.BotID())

	_, err = r.Resolve("bot:gnubg:x")
	assert.Error(t, err)
	_, err = r.Resolve("bot:gnubg:-1")
	assert.Error(t, err)
}

type fixedStrategy struct{ id string }

func (f fixedStrategy) BotID() string { return f.id }
func (f fixedStrategy) ChooseMoves(context.Context, engine.Engine) ([]engine.Move, error) {
	return nil, nil
}
func (f fixedStrategy) ShouldOfferDouble(context.Context, engine.Engine) (bool, error) {
	return false, nil
}

func TestWithStrategyOverridesBuiltin(t *testing.T) {
	override := fixedStrategy{id: "bot:greedy"}
	r := NewResolver(WithStrategy("bot:greedy", override))

	s, err := r.Resolve("bot:greedy")
	require.NoError(t, err)
	assert.Equal(t, override, s)
}
