package bots

import (
	"context"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
)

// GreedyStrategy plays a simple material heuristic: prefer hitting an
// opposing blot, then bearing off, then the longest pip advance. It offers a
// double when clearly ahead on the race.
type GreedyStrategy struct {
	id string
}

// NewGreedyStrategy constructs the greedy bot.
func NewGreedyStrategy(id string) *GreedyStrategy {
	return &GreedyStrategy{id: id}
}

func (s *GreedyStrategy) BotID() string { return s.id }

func (s *GreedyStrategy) ChooseMoves(ctx context.Context, eng engine.Engine) ([]engine.Move, error) {
	scratch := eng.Clone()
	return applyAll(ctx, scratch, func(moves []engine.Move) engine.Move {
		best := moves[0]
		bestScore := s.score(scratch, best)
		for _, m := range moves[1:] {
			if sc := s.score(scratch, m); sc > bestScore {
				best, bestScore = m, sc
			}
		}
		return best
	})
}

func (s *GreedyStrategy) score(eng engine.Engine, m engine.Move) int {
	c := eng.CurrentPlayer()
	snap := eng.Snapshot()

	score := m.DieValue // longer advance as baseline
	if m.To == offTarget(c) {
		score += 50
	} else if m.To >= 1 && m.To <= 24 {
		pt := snap.Points[m.To-1]
		if pt.Color == c.Opponent() && pt.Count == 1 {
			score += 100 // hit
		}
		if pt.Color == c && pt.Count >= 1 {
			score += 10 // make or extend a point
		}
	}
	return score
}

// ShouldOfferDouble turns the cube when the bot leads the pip count by a
// comfortable margin.
func (s *GreedyStrategy) ShouldOfferDouble(_ context.Context, eng engine.Engine) (bool, error) {
	c := eng.CurrentPlayer()
	if !eng.CanDouble(c) {
		return false, nil
	}
	own, opp := pipCounts(eng.Snapshot(), c)
	return opp-own >= 20, nil
}

func offTarget(c engine.Color) int {
	if c == engine.ColorWhite {
		return engine.WhiteOff
	}
	return engine.RedOff
}

// pipCounts returns the race distance for the player and the opponent.
func pipCounts(snap engine.State, c engine.Color) (own, opp int) {
	for p := 1; p <= 24; p++ {
		pt := snap.Points[p-1]
		if pt.Count == 0 {
			continue
		}
		distance := p // white exits past point 1
		if pt.Color == engine.ColorRed {
			distance = 25 - p
		}
		if pt.Color == c {
			own += distance * pt.Count
		} else {
			opp += distance * pt.Count
		}
	}
	own += barPips(snap, c)
	opp += barPips(snap, c.Opponent())
	return own, opp
}

func barPips(snap engine.State, c engine.Color) int {
	if c == engine.ColorWhite {
		return snap.BarWhite * 25
	}
	return snap.BarRed * 25
}
