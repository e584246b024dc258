package bots

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/analysis"
)

// Agent identifier prefixes. Bot agents are addressed by naming convention:
//
//	bot:random          uniformly random play
//	bot:greedy          material heuristic
//	bot:gnubg:<plies>   gnubg sidecar at the given search depth
const agentPrefix = "bot:"

// entry pairs an identifier predicate with a strategy factory.
type entry struct {
	match func(id string) bool
	build func(id string) (Strategy, error)
}

// Resolver maps agent identifiers to configured strategies. It is built once
// at startup and holds no mutable state.
type Resolver struct {
	entries []entry
}

// ResolverOption customises the registry.
type ResolverOption func(*Resolver)

// WithGnubg registers the gnubg-backed tier using the given sidecar client.
// Without it, bot:gnubg identifiers fail to resolve.
func WithGnubg(client *analysis.Client) ResolverOption {
	return func(r *Resolver) {
		r.entries = append(r.entries, entry{
			match: func(id string) bool { return strings.HasPrefix(id, "bot:gnubg:") },
			build: func(id string) (Strategy, error) {
				plies, err := strconv.Atoi(strings.TrimPrefix(id, "bot:gnubg:"))
				if err != nil || plies < 0 {
					return nil, fmt.Errorf("bot resolver: bad gnubg depth in %q", id)
				}
				return NewGnubgStrategy(id, client, plies, NewGreedyStrategy(id)), nil
			},
		})
	}
}

// WithStrategy registers a fixed strategy for one exact identifier. Later
// registrations win over the built-in tiers for the same ID.
func WithStrategy(id string, s Strategy) ResolverOption {
	return func(r *Resolver) {
		r.entries = append([]entry{{
			match: func(candidate string) bool { return candidate == id },
			build: func(string) (Strategy, error) { return s, nil },
		}}, r.entries...)
	}
}

// NewResolver builds the registry with the built-in strategy tiers.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		entries: []entry{
			{
				match: func(id string) bool { return id == "bot:random" },
				build: func(id string) (Strategy, error) { return NewRandomStrategy(id), nil },
			},
			{
				match: func(id string) bool { return id == "bot:greedy" },
				build: func(id string) (Strategy, error) { return NewGreedyStrategy(id), nil },
			},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsAgent reports whether the identifier names an automated participant.
func (r *Resolver) IsAgent(id string) bool {
	return strings.HasPrefix(id, agentPrefix)
}

// Resolve returns the strategy for a bot identifier, failing on unrecognized
// prefixes.
func (r *Resolver) Resolve(id string) (Strategy, error) {
	for _, e := range r.entries {
		if e.match(id) {
			return e.build(id)
		}
	}
	return nil, fmt.Errorf("bot resolver: unrecognized agent identifier %q", id)
}
