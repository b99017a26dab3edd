package reconcile

import (
	"github.com/grrywlsn/plexmatch/catalog"
	"github.com/grrywlsn/plexmatch/matcher"
)

// OutcomeKind classifies how a source entry was resolved.
type OutcomeKind string

const (
	// OutcomeMatched entries were matched and added to the playlist.
	OutcomeMatched OutcomeKind = "matched"
	// OutcomeDuplicate entries matched an item that was already claimed.
	OutcomeDuplicate OutcomeKind = "duplicate"
	// OutcomeUnmatched entries found no target.
	OutcomeUnmatched OutcomeKind = "unmatched"
	// OutcomeFailed entries were matched but the playlist could not be
	// updated. A failed outcome always ends the run.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the resolution of one source entry.
type Outcome struct {
	Kind   OutcomeKind
	Source catalog.Entry
	// Match is set for every kind but OutcomeUnmatched.
	Match *matcher.Result
	// Previous is the source entry that claimed the item first, for
	// duplicates. It is nil when the item was already in the playlist.
	Previous *catalog.Entry
	// NearMisses lists library entries sharing an artist or the album with
	// an unmatched source.
	NearMisses []catalog.Entry
	Err        error
}

// Report summarizes one reconciliation run.
type Report struct {
	RunID        string
	PlaylistName string
	PlaylistID   string
	// Created is set when this run created the playlist.
	Created  bool
	Outcomes []Outcome
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Filter returns the outcomes of the given kind in source order.
func (r *Report) Filter(kind OutcomeKind) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

func (r *Report) count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Matched returns the number of entries added to the playlist.
func (r *Report) Matched() int { return r.count(OutcomeMatched) }

// Duplicates returns the number of entries that resolved to an item
// already claimed.
func (r *Report) Duplicates() int { return r.count(OutcomeDuplicate) }

// Unmatched returns the number of entries without a target.
func (r *Report) Unmatched() int { return r.count(OutcomeUnmatched) }

// Total returns the number of processed source entries.
func (r *Report) Total() int { return len(r.Outcomes) }

// MatchPercentage returns the share of processed entries that resolved to a
// library item, duplicates included.
func (r *Report) MatchPercentage() float64 {
	if len(r.Outcomes) == 0 {
		return 0
	}
	resolved := r.Matched() + r.Duplicates()
	return float64(resolved) / float64(len(r.Outcomes)) * 100
}
