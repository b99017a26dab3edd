package reconcile

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grrywlsn/plexmatch/catalog"
)

type fakeMutator struct {
	calls     []Mutation
	createID  string
	createErr error
	appendErr error
}

func (m *fakeMutator) CreatePlaylist(_ context.Context, name, uri string) (string, error) {
	m.calls = append(m.calls, Mutation{Op: "create", Name: name, URI: uri})
	if m.createErr != nil {
		return "", m.createErr
	}
	if m.createID == "" {
		return "pl-1", nil
	}
	return m.createID, nil
}

func (m *fakeMutator) AddToPlaylist(_ context.Context, playlistID, uri string) error {
	m.calls = append(m.calls, Mutation{Op: "append", PlaylistID: playlistID, URI: uri})
	return m.appendErr
}

func libraryEntry(id, track, album string, artists ...string) catalog.Entry {
	return catalog.Entry{
		Track:   track,
		Album:   album,
		Artists: artists,
		Origin: catalog.TargetOrigin{Identity: catalog.LibraryIdentity{
			ItemID:    id,
			MachineID: "machine",
		}},
	}
}

func playlistEntry(track string, artists ...string) catalog.Entry {
	return catalog.Entry{
		Track:   track,
		Artists: artists,
		Origin:  catalog.SourceOrigin{URI: "spotify:track:" + track},
	}
}

func library() []catalog.Entry {
	return []catalog.Entry{
		libraryEntry("1", "Closer", "Collage", "The Chainsmokers"),
		libraryEntry("2", "Hello", "25", "Adele"),
	}
}

func newDriver(m PlaylistMutator) *Driver {
	return NewDriver(m, Options{PlaylistName: "Discover Weekly"})
}

func TestRunEndToEnd(t *testing.T) {
	m := &fakeMutator{}
	sources := []catalog.Entry{
		playlistEntry("Closer", "The Chainsmokers"),
		playlistEntry("Hello", "Adele"),
		playlistEntry("Bohemian Rhapsody", "Queen"),
	}

	session := NewSession()
	report, err := newDriver(m).RunSession(context.Background(), session, sources, library())
	require.NoError(t, err)

	require.Len(t, m.calls, 2)
	assert.Equal(t, Mutation{Op: "create", Name: "Discover Weekly", URI: "server://machine/com.plexapp.plugins.library/library/metadata/1"}, m.calls[0])
	assert.Equal(t, Mutation{Op: "append", PlaylistID: "pl-1", URI: "server://machine/com.plexapp.plugins.library/library/metadata/2"}, m.calls[1])

	assert.Equal(t, 2, session.Tracker.Len())
	assert.Equal(t, "pl-1", session.State.ID)

	assert.True(t, report.Created)
	assert.Equal(t, "pl-1", report.PlaylistID)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Matched())
	assert.Equal(t, 1, report.Unmatched())
	assert.Equal(t, 3, report.Total())

	unmatched := report.Filter(OutcomeUnmatched)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "Bohemian Rhapsody", unmatched[0].Source.Track)
	assert.Nil(t, unmatched[0].Match)
	assert.Empty(t, unmatched[0].NearMisses)
}

func TestRunKeepsRawSourceInOutcomes(t *testing.T) {
	report, err := newDriver(&fakeMutator{}).Run(context.Background(),
		[]catalog.Entry{playlistEntry("  Closer ", "The Chainsmokers")}, library())
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	o := report.Outcomes[0]
	assert.Equal(t, "  Closer ", o.Source.Track)
	require.NotNil(t, o.Match)
	assert.Equal(t, "Closer", o.Match.Target.Track)
}

func TestRunSkipsDuplicateClaims(t *testing.T) {
	m := &fakeMutator{}
	sources := []catalog.Entry{
		playlistEntry("Closer", "The Chainsmokers"),
		playlistEntry("Closer (feat. Halsey)", "The Chainsmokers"),
	}

	session := NewSession()
	report, err := newDriver(m).RunSession(context.Background(), session, sources, library())
	require.NoError(t, err)

	// only the first claim reaches the playlist
	require.Len(t, m.calls, 1)
	assert.Equal(t, 1, session.Tracker.Len())

	dups := report.Filter(OutcomeDuplicate)
	require.Len(t, dups, 1)
	require.NotNil(t, dups[0].Previous)
	assert.Equal(t, "Closer", dups[0].Previous.Track)
	assert.Equal(t, "Closer (feat. Halsey)", dups[0].Source.Track)

	// duplicates count as resolved and are not reported as unmatched
	assert.Equal(t, 0, report.Unmatched())
	assert.Equal(t, 1, report.Duplicates())
	assert.InDelta(t, 100.0, report.MatchPercentage(), 0.001)
}

func TestRunLogsMatchesAndDuplicates(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf)
	sources := []catalog.Entry{
		playlistEntry("Closer", "The Chainsmokers"),
		playlistEntry("Closer (feat. Halsey)", "The Chainsmokers"),
	}

	driver := NewDriver(&fakeMutator{}, Options{PlaylistName: "Discover Weekly", Logger: logger})
	_, err := driver.Run(context.Background(), sources, library())
	require.NoError(t, err)

	lines := map[string]string{}
	for _, line := range strings.Split(buf.String(), "\n") {
		for _, msg := range []string{"matched", "skipping duplicate"} {
			if strings.Contains(line, " "+msg+" ") {
				lines[msg] = line
			}
		}
	}

	require.Contains(t, lines, "matched")
	assert.True(t, strings.HasPrefix(lines["matched"], "INFO"), lines["matched"])
	assert.Contains(t, lines["matched"], "strategy=")

	require.Contains(t, lines, "skipping duplicate")
	assert.True(t, strings.HasPrefix(lines["skipping duplicate"], "WARN"), lines["skipping duplicate"])
	assert.Contains(t, lines["skipping duplicate"], `first="The Chainsmokers - Closer"`)
}

func TestRunNoMatchDoesNotMutate(t *testing.T) {
	m := &fakeMutator{}
	session := NewSession()

	report, err := newDriver(m).RunSession(context.Background(), session,
		[]catalog.Entry{playlistEntry("Bohemian Rhapsody", "Queen")}, library())
	require.NoError(t, err)

	assert.Empty(t, m.calls)
	assert.False(t, session.State.IsSet())
	assert.False(t, report.Created)
	assert.Equal(t, 0, session.Tracker.Len())
}

func TestRunStopsOnAppendFailure(t *testing.T) {
	m := &fakeMutator{appendErr: errors.New("connection reset")}
	sources := []catalog.Entry{
		playlistEntry("Closer", "The Chainsmokers"),
		playlistEntry("Hello", "Adele"),
		playlistEntry("Bohemian Rhapsody", "Queen"),
	}

	report, err := newDriver(m).Run(context.Background(), sources, library())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAppendPlaylist)
	assert.Contains(t, err.Error(), "connection reset")

	require.NotNil(t, report)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, OutcomeMatched, report.Outcomes[0].Kind)
	assert.Equal(t, OutcomeFailed, report.Outcomes[1].Kind)
	assert.ErrorIs(t, report.Outcomes[1].Err, ErrAppendPlaylist)
	assert.True(t, report.Created)
	assert.Len(t, m.calls, 2)
}

func TestRunStopsOnCreateFailure(t *testing.T) {
	m := &fakeMutator{createErr: errors.New("unauthorized")}
	session := NewSession()

	report, err := newDriver(m).RunSession(context.Background(), session,
		[]catalog.Entry{playlistEntry("Closer", "The Chainsmokers"), playlistEntry("Hello", "Adele")}, library())
	assert.ErrorIs(t, err, ErrCreatePlaylist)

	assert.False(t, session.State.IsSet())
	assert.False(t, report.Created)
	assert.Len(t, m.calls, 1)
}

func TestRunResumesExistingPlaylist(t *testing.T) {
	m := &fakeMutator{}
	lib := library()
	session := ResumeSession("pl-9", []catalog.Entry{lib[0]})

	report, err := newDriver(m).RunSession(context.Background(), session,
		[]catalog.Entry{playlistEntry("Closer", "The Chainsmokers"), playlistEntry("Hello", "Adele")}, lib)
	require.NoError(t, err)

	require.Len(t, m.calls, 1)
	assert.Equal(t, "append", m.calls[0].Op)
	assert.Equal(t, "pl-9", m.calls[0].PlaylistID)
	assert.False(t, report.Created)
	assert.Equal(t, "pl-9", report.PlaylistID)

	dups := report.Filter(OutcomeDuplicate)
	require.Len(t, dups, 1)
	assert.Nil(t, dups[0].Previous)
}

func TestRunHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newDriver(&fakeMutator{}).Run(ctx, []catalog.Entry{playlistEntry("Closer", "The Chainsmokers")}, library())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Outcomes)
}

func TestRunIgnoresTargetsWithoutIdentity(t *testing.T) {
	m := &fakeMutator{}
	targets := []catalog.Entry{{Track: "Closer", Artists: []string{"The Chainsmokers"}}}

	report, err := newDriver(m).Run(context.Background(), []catalog.Entry{playlistEntry("Closer", "The Chainsmokers")}, targets)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unmatched())
	assert.Empty(t, m.calls)
}

func TestRunWithDryRun(t *testing.T) {
	dry := &DryRun{}
	report, err := newDriver(dry).Run(context.Background(),
		[]catalog.Entry{playlistEntry("Closer", "The Chainsmokers"), playlistEntry("Hello", "Adele")}, library())
	require.NoError(t, err)

	assert.Equal(t, DryRunPlaylistID, report.PlaylistID)
	mutations := dry.Mutations()
	require.Len(t, mutations, 2)
	assert.Equal(t, "create", mutations[0].Op)
	assert.Equal(t, "append", mutations[1].Op)
	assert.Equal(t, DryRunPlaylistID, mutations[1].PlaylistID)
}

func TestBuilderCreatesOnce(t *testing.T) {
	m := &fakeMutator{createID: "abc"}
	b := NewBuilder(m, "Mix")
	state := &PlaylistState{}
	lib := library()

	created, err := b.EnsureContains(context.Background(), state, lib[0])
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "abc", state.ID)

	created, err = b.EnsureContains(context.Background(), state, lib[1])
	require.NoError(t, err)
	assert.False(t, created)

	require.Len(t, m.calls, 2)
	assert.Equal(t, "create", m.calls[0].Op)
	assert.Equal(t, "append", m.calls[1].Op)
	assert.Equal(t, "abc", m.calls[1].PlaylistID)
}

func TestBuilderRejectsEmptyPlaylistID(t *testing.T) {
	m := &emptyIDMutator{}
	state := &PlaylistState{}

	_, err := NewBuilder(m, "Mix").EnsureContains(context.Background(), state, library()[0])
	assert.ErrorIs(t, err, ErrCreatePlaylist)
	assert.False(t, state.IsSet())
}

func TestBuilderRequiresIdentity(t *testing.T) {
	_, err := NewBuilder(&fakeMutator{}, "Mix").EnsureContains(context.Background(), &PlaylistState{}, playlistEntry("x", "y"))
	assert.ErrorIs(t, err, ErrNoIdentity)
}

type emptyIDMutator struct{ fakeMutator }

func (e *emptyIDMutator) CreatePlaylist(context.Context, string, string) (string, error) {
	return "", nil
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	lib := library()
	first := playlistEntry("Closer", "The Chainsmokers")
	second := playlistEntry("Closer - Live", "The Chainsmokers")

	c, ok := tr.Claim(first, lib[0])
	require.True(t, ok)
	assert.Equal(t, first, c.Source)

	prior, ok := tr.Claim(second, lib[0])
	assert.False(t, ok)
	assert.Equal(t, first, prior.Source)
	assert.Equal(t, 1, tr.Len())

	assert.True(t, tr.Seed(lib[1]))
	assert.False(t, tr.Seed(lib[1]))
	assert.Equal(t, 2, tr.Len())

	seeded, ok := tr.Claim(playlistEntry("Hello", "Adele"), lib[1])
	assert.False(t, ok)
	assert.True(t, seeded.Seeded)
	assert.Equal(t, "Hello", seeded.Target.Track)
}

func TestTrackerKeysOnItemID(t *testing.T) {
	tr := NewTracker()
	// the same library item listed once per credited artist
	a := libraryEntry("7", "Stay", "", "Justin Bieber")
	b := libraryEntry("7", "Stay", "", "The Kid LAROI")

	_, ok := tr.Claim(playlistEntry("Stay", "Justin Bieber"), a)
	require.True(t, ok)
	_, ok = tr.Claim(playlistEntry("Stay", "The Kid LAROI"), b)
	assert.False(t, ok)
}

func TestNearMisses(t *testing.T) {
	targets := catalog.FoldAll([]catalog.Entry{
		libraryEntry("1", "Closer", "Collage", "The Chainsmokers"),
		libraryEntry("2", "Paris", "Memories...Do Not Open", "The Chainsmokers"),
		libraryEntry("3", "Don't Let Me Down", "Collage", "Daya"),
		libraryEntry("3", "Don't Let Me Down", "Collage", "The Chainsmokers"),
		libraryEntry("4", "Hello", "25", "Adele"),
	})

	src := catalog.Fold(catalog.Entry{Track: "Roses", Album: "Collage", Artists: []string{"The Chainsmokers"}})
	misses := NearMisses(src, targets)

	var ids []string
	for _, m := range misses {
		id, _ := m.Identity()
		ids = append(ids, id.ItemID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)

	// an empty album never relates
	src = catalog.Fold(catalog.Entry{Track: "x", Artists: []string{"nobody"}})
	assert.Empty(t, NearMisses(src, catalog.FoldAll([]catalog.Entry{libraryEntry("9", "y", "", "someone")})))
}

func TestMatchPercentage(t *testing.T) {
	assert.Equal(t, 0.0, (&Report{}).MatchPercentage())

	r := &Report{Outcomes: []Outcome{
		{Kind: OutcomeMatched},
		{Kind: OutcomeDuplicate},
		{Kind: OutcomeUnmatched},
		{Kind: OutcomeUnmatched},
	}}
	assert.InDelta(t, 50.0, r.MatchPercentage(), 0.001)
}
