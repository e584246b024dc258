package bots

import (
	"context"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
)

// Strategy selects a full turn's moves for an automated agent. ChooseMoves
// plans on a scratch copy of the engine and never mutates the live game; the
// caller applies the returned moves itself so it can interleave them with
// other session activity.
type Strategy interface {
	BotID() string
	ChooseMoves(ctx context.Context, eng engine.Engine) ([]engine.Move, error)
	ShouldOfferDouble(ctx context.Context, eng engine.Engine) (bool, error)
}

// applyAll plays moves picked by choose until no legal moves remain.
func applyAll(ctx context.Context, eng engine.Engine, choose func(moves []engine.Move) engine.Move) ([]engine.Move, error) {
	var applied []engine.Move
	for {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		moves := eng.ValidMoves()
		if len(moves) == 0 {
			return applied, nil
		}
		move := choose(moves)
		if err := eng.MakeMove(move.From, move.To); err != nil {
			return applied, err
		}
		applied = append(applied, move)
	}
}
