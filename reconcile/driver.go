// Package reconcile drives a source playlist through the matching cascade
// and builds the destination playlist on the media server.
//
// Entries are processed strictly in source order. Each library item is
// added at most once per run and the playlist is created lazily with the
// first matched item.
package reconcile

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/grrywlsn/plexmatch/catalog"
	"github.com/grrywlsn/plexmatch/matcher"
)

// Options configures a Driver.
type Options struct {
	PlaylistName string
	Match        matcher.Options
	Logger       *log.Logger
}

// Session carries the state that outlives a single entry: the destination
// playlist and the claimed items.
type Session struct {
	State   *PlaylistState
	Tracker *Tracker
}

// NewSession returns a session for a playlist that does not exist yet.
func NewSession() *Session {
	return &Session{State: &PlaylistState{}, Tracker: NewTracker()}
}

// ResumeSession returns a session that appends to the existing playlist id.
// Items already in the playlist are seeded so they are not added again.
func ResumeSession(playlistID string, existing []catalog.Entry) *Session {
	s := &Session{State: &PlaylistState{ID: playlistID}, Tracker: NewTracker()}
	for _, e := range existing {
		if _, ok := e.Identity(); ok {
			s.Tracker.Seed(e)
		}
	}
	return s
}

// Driver reconciles source playlists against a target catalog.
type Driver struct {
	builder *Builder
	match   matcher.Options
	logger  *log.Logger
}

// NewDriver returns a Driver writing through mutator.
func NewDriver(mutator PlaylistMutator, opts Options) *Driver {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Driver{
		builder: NewBuilder(mutator, opts.PlaylistName),
		match:   opts.Match,
		logger:  logger,
	}
}

// Run reconciles sources against targets into a new playlist.
func (d *Driver) Run(ctx context.Context, sources, targets []catalog.Entry) (*Report, error) {
	return d.RunSession(ctx, NewSession(), sources, targets)
}

// RunSession reconciles sources against targets using session. When a
// playlist mutation fails the run stops and the report built so far is
// returned with the error.
func (d *Driver) RunSession(ctx context.Context, session *Session, sources, targets []catalog.Entry) (*Report, error) {
	usable := usableTargets(targets, d.logger)
	folded := catalog.FoldAll(usable)
	cascade := matcher.NewCascade(folded, d.match)

	report := &Report{
		RunID:        uuid.NewString(),
		PlaylistName: d.builder.Name(),
		PlaylistID:   session.State.ID,
	}
	logger := d.logger.With("run", report.RunID, "playlist", report.PlaylistName)
	logger.Info("reconciling playlist", "sources", len(sources), "targets", len(folded))

	for i, raw := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		entry := catalog.Fold(raw)
		entryLog := logger.With("position", i+1, "track", raw.Track)

		res, ok := cascade.Match(entry)
		if !ok {
			misses := NearMisses(entry, folded)
			entryLog.Warn("no match found", "artists", raw.Artists, "near_misses", len(misses))
			report.add(Outcome{Kind: OutcomeUnmatched, Source: raw, NearMisses: misses})
			continue
		}
		// Report the library's own text rather than the folded copy
		res.Source, res.Target = raw, usable[res.Index]

		entryLog.Info("matched", "strategy", res.Strategy, "target", res.Target.String())
		entryLog.Debug("match details", "basis", res.Basis, "section", res.Section, "distance", res.Distance)

		prior, claimed := session.Tracker.Claim(raw, res.Target)
		if !claimed {
			o := Outcome{Kind: OutcomeDuplicate, Source: raw, Match: &res}
			if prior.Seeded {
				entryLog.Warn("skipping track already in playlist", "target", res.Target.String())
			} else {
				previous := prior.Source
				o.Previous = &previous
				entryLog.Warn("skipping duplicate", "target", res.Target.String(), "first", previous.String())
			}
			report.add(o)
			continue
		}

		created, err := d.builder.EnsureContains(ctx, session.State, res.Target)
		if err != nil {
			entryLog.Error("playlist update failed", "err", err)
			report.add(Outcome{Kind: OutcomeFailed, Source: raw, Match: &res, Err: err})
			return report, fmt.Errorf("reconciling %q: %w", raw.Track, err)
		}
		if created {
			report.Created = true
			report.PlaylistID = session.State.ID
			entryLog.Info("created playlist", "id", session.State.ID)
		}
		report.add(Outcome{Kind: OutcomeMatched, Source: raw, Match: &res})
	}

	logger.Info("reconciliation finished",
		"matched", report.Matched(),
		"duplicates", report.Duplicates(),
		"unmatched", report.Unmatched(),
	)
	return report, nil
}

// usableTargets drops entries that cannot be added to a playlist.
func usableTargets(targets []catalog.Entry, logger *log.Logger) []catalog.Entry {
	out := make([]catalog.Entry, 0, len(targets))
	for _, t := range targets {
		if id, ok := t.Identity(); !ok || id.ItemID == "" {
			logger.Debug("ignoring target without library identity", "target", t.String())
			continue
		}
		out = append(out, t)
	}
	return out
}

// NearMisses returns the targets that share an artist with source, or its
// album when that is known. Both sides are expected to be folded already.
// Each library item is listed once.
func NearMisses(source catalog.Entry, targets []catalog.Entry) []catalog.Entry {
	artists := make(map[string]struct{}, len(source.Artists))
	for _, a := range source.Artists {
		if a != "" {
			artists[a] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	var out []catalog.Entry
	for _, t := range targets {
		if !related(source, t, artists) {
			continue
		}
		key := itemKey(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func related(source, target catalog.Entry, artists map[string]struct{}) bool {
	if source.Album != "" && source.Album == target.Album {
		return true
	}
	for _, a := range target.Artists {
		if _, ok := artists[a]; ok {
			return true
		}
	}
	return false
}
