// Package matcher maps a source entry onto at most one entry of a target
// pool with a fixed cascade of heuristic strategies.
package matcher

import "github.com/grrywlsn/plexmatch/catalog"

// Options tunes the cascade.
type Options struct {
	// RankThreshold is the exclusive ceiling on the combined distance
	// accepted by the ranking strategy. Zero selects DefaultRankThreshold.
	RankThreshold int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{RankThreshold: DefaultRankThreshold}
}

// Cascade tries the strategies in a fixed order and keeps the first match.
type Cascade struct {
	pool       *Pool
	strategies []Strategy
}

// NewCascade builds the cascade over targets. Entries are expected to be
// case folded already (see catalog.Fold).
func NewCascade(targets []catalog.Entry, opts Options) *Cascade {
	affix := Affix{}
	ranking := Ranking{Threshold: opts.RankThreshold}
	chars := CharacterReplacement{Affix: affix, Ranking: ranking}

	return &Cascade{
		pool: NewPool(targets),
		strategies: []Strategy{
			affix,
			ranking,
			chars,
			SectionRemoval{Affix: affix, Ranking: ranking, CharacterReplacement: chars},
		},
	}
}

// Pool returns the candidate pool.
func (c *Cascade) Pool() *Pool {
	return c.pool
}

// Strategies returns the strategies in the order they are tried.
func (c *Cascade) Strategies() []Strategy {
	return c.strategies
}

// Match returns the first result produced by the cascade. The target of the
// result is always the unmodified pool entry.
func (c *Cascade) Match(source catalog.Entry) (Result, bool) {
	for _, s := range c.strategies {
		if res, ok := s.Match(source, c.pool); ok {
			return res, true
		}
	}
	return Result{}, false
}
