package bots

import (
	"context"
	"math/rand"
	"time"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
)

// RandomStrategy plays uniformly random legal moves and never doubles. It is
// the easiest opponent tier.
type RandomStrategy struct {
	id  string
	rng *rand.Rand
}

// NewRandomStrategy constructs the random bot.
func NewRandomStrategy(id string) *RandomStrategy {
	return &RandomStrategy{
		id:  id,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *RandomStrategy) BotID() string { return s.id }

func (s *RandomStrategy) ChooseMoves(ctx context.Context, eng engine.Engine) ([]engine.Move, error) {
	return applyAll(ctx, eng.Clone(), func(moves []engine.Move) engine.Move {
		return moves[s.rng.Intn(len(moves))]
	})
}

func (s *RandomStrategy) ShouldOfferDouble(context.Context, engine.Engine) (bool, error) {
	return false, nil
}
