package matcher

import (
	"strconv"
	"strings"

	"github.com/grrywlsn/plexmatch/catalog"
)

// StrategyName identifies a matching strategy.
type StrategyName string

const (
	StrategyAffix                StrategyName = "affix"
	StrategyRanking              StrategyName = "ranking"
	StrategyCharacterReplacement StrategyName = "character_replacement"
	StrategySectionRemoval       StrategyName = "section_removal"
)

// DefaultRankThreshold is the combined artist and track distance a ranked
// candidate must stay strictly below to be accepted.
const DefaultRankThreshold = 11

// Result pairs a source entry with the target entry chosen for it.
type Result struct {
	Source catalog.Entry
	Target catalog.Entry
	// Index is the position of Target in the candidate pool.
	Index int
	// Strategy is the cascade step that produced the match and Basis the
	// comparison that accepted it (affix or ranking).
	Strategy StrategyName
	Basis    StrategyName
	// Section names the section rule that was last applied, for matches
	// found by section removal.
	Section string
	// Distance is the combined score, for matches accepted by ranking.
	Distance int
}

// Strategy tries to find a single target for source among the candidates
// of pool. A false return means no candidate cleared the strategy's bar.
type Strategy interface {
	Name() StrategyName
	Match(source catalog.Entry, pool *Pool) (Result, bool)
}

// Affix accepts the first candidate where, for some pair of artists, the
// target artist and track start with the source artist and track, or the
// other way around.
type Affix struct{}

// Name returns StrategyAffix.
func (Affix) Name() StrategyName { return StrategyAffix }

// Match returns the first pool entry related to source by affix.
func (a Affix) Match(source catalog.Entry, pool *Pool) (Result, bool) {
	for i, target := range pool.Entries() {
		for _, targetArtist := range target.Artists {
			for _, sourceArtist := range source.Artists {
				if affixRelated(sourceArtist, targetArtist, source.Track, target.Track) {
					return Result{
						Source:   source,
						Target:   target,
						Index:    i,
						Strategy: StrategyAffix,
						Basis:    StrategyAffix,
					}, true
				}
			}
		}
	}
	return Result{}, false
}

// affixRelated reports whether both target fields extend the source fields,
// or both source fields extend the target fields. Empty strings never relate.
func affixRelated(sourceArtist, targetArtist, sourceTrack, targetTrack string) bool {
	if sourceArtist == "" || targetArtist == "" || sourceTrack == "" || targetTrack == "" {
		return false
	}
	return (strings.HasPrefix(targetArtist, sourceArtist) && strings.HasPrefix(targetTrack, sourceTrack)) ||
		(strings.HasPrefix(sourceArtist, targetArtist) && strings.HasPrefix(sourceTrack, targetTrack))
}

// Ranking scores every candidate by its closest artist pair plus the track
// distance and accepts the lowest score when it is below Threshold. Equal
// scores keep pool order.
type Ranking struct {
	Threshold int
}

// Name returns StrategyRanking.
func (Ranking) Name() StrategyName { return StrategyRanking }

// Match returns the lowest scoring pool entry when its score is below the
// threshold.
func (r Ranking) Match(source catalog.Entry, pool *Pool) (Result, bool) {
	best, bestScore := -1, 0
	for i, target := range pool.Entries() {
		score := Score(source, target)
		if best < 0 || score < bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 || bestScore >= r.threshold() {
		return Result{}, false
	}
	return Result{
		Source:   source,
		Target:   pool.Entry(best),
		Index:    best,
		Strategy: StrategyRanking,
		Basis:    StrategyRanking,
		Distance: bestScore,
	}, true
}

func (r Ranking) threshold() int {
	if r.Threshold <= 0 {
		return DefaultRankThreshold
	}
	return r.Threshold
}

// Score returns the combined artist and track distance used by Ranking.
func Score(source, target catalog.Entry) int {
	return ArtistDistance(source.Artists, target.Artists) + Distance(source.Track, target.Track)
}

// CharacterReplacement normalizes both sides with ReplaceCharacters and
// retries the affix and ranking strategies.
type CharacterReplacement struct {
	Affix   Affix
	Ranking Ranking
}

// Name returns StrategyCharacterReplacement.
func (CharacterReplacement) Name() StrategyName { return StrategyCharacterReplacement }

// Match retries affix then ranking on the character-replaced text of both
// sides. The result refers to the original source and pool entries.
func (c CharacterReplacement) Match(source catalog.Entry, pool *Pool) (Result, bool) {
	normalized := source.WithText(ReplaceCharacters)
	view := pool.derive("characters", ReplaceCharacters)

	for _, s := range []Strategy{c.Affix, c.Ranking} {
		if res, ok := s.Match(normalized, view); ok {
			return rebase(res, StrategyCharacterReplacement, source, pool), true
		}
	}
	return Result{}, false
}

// SectionRemoval strips parenthesised annotations one rule at a time, most
// specific first, and after each rule retries affix, ranking and character
// replacement against the stripped text.
type SectionRemoval struct {
	Affix                Affix
	Ranking              Ranking
	CharacterReplacement CharacterReplacement
}

// Name returns StrategySectionRemoval.
func (SectionRemoval) Name() StrategyName { return StrategySectionRemoval }

// Match applies the section rules cumulatively and returns the first stage
// that matches, with Section naming its rule.
func (s SectionRemoval) Match(source catalog.Entry, pool *Pool) (Result, bool) {
	for stage, rule := range sectionRules {
		strip := func(text string) string { return stripThrough(text, stage) }
		stripped := source.WithText(strip)
		view := pool.derive("sections/"+strconv.Itoa(stage), strip)

		for _, inner := range []Strategy{s.Affix, s.Ranking, s.CharacterReplacement} {
			if res, ok := inner.Match(stripped, view); ok {
				res = rebase(res, StrategySectionRemoval, source, pool)
				res.Section = rule.Name
				return res, true
			}
		}
	}
	return Result{}, false
}

// rebase points a result found in a derived view back at the entries the
// caller passed in.
func rebase(res Result, name StrategyName, source catalog.Entry, pool *Pool) Result {
	res.Strategy = name
	res.Source = source
	res.Target = pool.Entry(res.Index)
	return res
}
