package bots

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/analysis"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/logger"
)

// GnubgStrategy consults the external gnubg sidecar for move hints and cube
// decisions. Sidecar failures degrade to the fallback strategy rather than
// failing the turn.
type GnubgStrategy struct {
	id       string
	client   *analysis.Client
	plies    int
	fallback Strategy
	log      *zap.Logger
}

// NewGnubgStrategy constructs the gnubg-backed bot at the given search depth.
func NewGnubgStrategy(id string, client *analysis.Client, plies int, fallback Strategy) *GnubgStrategy {
	if plies < 0 {
		plies = 0
	}
	return &GnubgStrategy{
		id:       id,
		client:   client,
		plies:    plies,
		fallback: fallback,
		log:      logger.WithModule("gnubg_strategy"),
	}
}

func (s *GnubgStrategy) BotID() string { return s.id }

func (s *GnubgStrategy) ChooseMoves(ctx context.Context, eng engine.Engine) ([]engine.Move, error) {
	if s.client == nil {
		return s.fallback.ChooseMoves(ctx, eng)
	}

	sgf := analysis.EncodePosition(eng.Snapshot())
	hints, err := s.client.Hint(ctx, sgf, s.plies)
	if err != nil || len(hints) == 0 {
		s.log.Debug("hint unavailable; using fallback strategy", zap.Error(err))
		return s.fallback.ChooseMoves(ctx, eng)
	}

	// Resolve the hint on a clone so a notation we cannot apply never
	// produces a half-validated plan.
	plan, err := resolveNotation(eng.Clone(), eng.CurrentPlayer(), hints[0].Notation)
	if err != nil {
		s.log.Debug("could not resolve hint notation; using fallback strategy",
			zap.String("notation", hints[0].Notation), zap.Error(err))
		return s.fallback.ChooseMoves(ctx, eng)
	}
	return plan, nil
}

func (s *GnubgStrategy) ShouldOfferDouble(ctx context.Context, eng engine.Engine) (bool, error) {
	if s.client == nil {
		return s.fallback.ShouldOfferDouble(ctx, eng)
	}

	decision, err := s.client.Cube(ctx, analysis.EncodePosition(eng.Snapshot()), s.plies)
	if err != nil {
		s.log.Debug("cube decision unavailable; using fallback strategy", zap.Error(err))
		return s.fallback.ShouldOfferDouble(ctx, eng)
	}
	return decision.ShouldDouble(), nil
}

// resolveNotation expands gnubg play notation ("8/5 6/5", "bar/20",
// "13/7*(2)", "24/13") into concrete single-die hops by applying it to the
// scratch engine. Both players' points are written in the mover's own
// numbering, counting down toward their bear-off.
func resolveNotation(scratch engine.Engine, mover engine.Color, notation string) ([]engine.Move, error) {
	var plan []engine.Move

	for _, token := range strings.Fields(notation) {
		from, to, repeat, err := parseToken(token, mover)
		if err != nil {
			return nil, err
		}
		for i := 0; i < repeat; i++ {
			hops, err := chaseHops(scratch, from, to)
			if err != nil {
				return nil, err
			}
			plan = append(plan, hops...)
		}
	}
	return plan, nil
}

func parseToken(token string, mover engine.Color) (from, to, repeat int, err error) {
	repeat = 1
	token = strings.TrimSpace(token)

	if idx := strings.Index(token, "("); idx >= 0 {
		end := strings.Index(token, ")")
		if end <= idx {
			return 0, 0, 0, fmt.Errorf("malformed repeat in %q", token)
		}
		repeat, err = strconv.Atoi(token[idx+1 : end])
		if err != nil || repeat < 1 {
			return 0, 0, 0, fmt.Errorf("malformed repeat in %q", token)
		}
		token = token[:idx]
	}
	token = strings.ReplaceAll(token, "*", "")

	parts := strings.Split(token, "/")
	if len(parts) < 2 {
		return 0, 0, 0, fmt.Errorf("malformed move token %q", token)
	}

	from, err = parseBoardRef(parts[0], mover)
	if err != nil {
		return 0, 0, 0, err
	}
	// Intermediate landing points in chained tokens (e.g. 24/18/13) are
	// redundant; the final element is the destination.
	to, err = parseBoardRef(parts[len(parts)-1], mover)
	if err != nil {
		return 0, 0, 0, err
	}
	return from, to, repeat, nil
}

func parseBoardRef(ref string, mover engine.Color) (int, error) {
	switch strings.ToLower(ref) {
	case "bar":
		if mover == engine.ColorWhite {
			return engine.WhiteBar, nil
		}
		return engine.RedBar, nil
	case "off":
		if mover == engine.ColorWhite {
			return engine.WhiteOff, nil
		}
		return engine.RedOff, nil
	}

	own, err := strconv.Atoi(ref)
	if err != nil || own < 1 || own > 24 {
		return 0, fmt.Errorf("bad point reference %q", ref)
	}
	// White's own numbering is the absolute numbering; red mirrors it.
	if mover == engine.ColorRed {
		return 25 - own, nil
	}
	return own, nil
}

// chaseHops walks the scratch engine from `from` to `to`, possibly through
// intermediate points when the notation compresses two dice into one token.
func chaseHops(scratch engine.Engine, from, to int) ([]engine.Move, error) {
	var hops []engine.Move
	cur := from

	for cur != to {
		candidates := scratch.ValidMoves()
		next, ok := pickHop(candidates, cur, to)
		if !ok {
			return nil, fmt.Errorf("no path from %d to %d", from, to)
		}
		if err := scratch.MakeMove(next.From, next.To); err != nil {
			return nil, err
		}
		hops = append(hops, next)
		cur = next.To

		if len(hops) > 4 {
			return nil, fmt.Errorf("hop chain from %d to %d too long", from, to)
		}
	}
	return hops, nil
}

func pickHop(candidates []engine.Move, cur, target int) (engine.Move, bool) {
	// Prefer an exact landing, then any hop that keeps the checker between
	// the current point and the target.
	for _, m := range candidates {
		if m.From == cur && m.To == target {
			return m, true
		}
	}
	for _, m := range candidates {
		if m.From != cur {
			continue
		}
		if between(cur, m.To, target) {
			return m, true
		}
	}
	return engine.Move{}, false
}

func between(cur, hop, target int) bool {
	if cur < target {
		return hop > cur && hop < target
	}
	return hop < cur && hop > target
}
