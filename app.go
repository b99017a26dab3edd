package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/grrywlsn/plexmatch/catalog"
	"github.com/grrywlsn/plexmatch/config"
	"github.com/grrywlsn/plexmatch/matcher"
	"github.com/grrywlsn/plexmatch/plex"
	"github.com/grrywlsn/plexmatch/reconcile"
	"github.com/grrywlsn/plexmatch/spotify"
)

// ErrNoPlaylists is returned when there is nothing to reconcile
var ErrNoPlaylists = errors.New("no playlists to process")

// Mode selects what happens to a Plex playlist that already exists
type Mode int

const (
	// ModeCreate always creates a new playlist
	ModeCreate Mode = iota
	// ModeExtend appends to an existing playlist of the same name
	ModeExtend
	// ModeReplace empties an existing playlist of the same name first
	ModeReplace
)

// PlaylistMeta represents metadata for a playlist
type PlaylistMeta struct {
	ID          string
	Name        string
	Description string
}

// sourceCatalog lists Spotify playlists and their tracks
type sourceCatalog interface {
	GetUserPublicPlaylists(ctx context.Context, username string) ([]spotify.PlaylistInfo, error)
	GetPlaylistInfo(ctx context.Context, playlistID string) (*spotify.PlaylistInfo, error)
	GetPlaylistEntries(ctx context.Context, playlistID string) ([]catalog.Entry, error)
}

// targetCatalog is the Plex library and its playlists
type targetCatalog interface {
	plex.PlaylistAPI
	GetLibraryEntries(ctx context.Context) ([]catalog.Entry, error)
	FindPlaylist(ctx context.Context, title string) (*plex.Playlist, error)
	GetPlaylistEntries(ctx context.Context, playlistID string) ([]catalog.Entry, error)
	ClearPlaylist(ctx context.Context, playlistID string) error
	UpdatePlaylistMetadata(ctx context.Context, playlistID, title, summary string) error
}

// recordingLookup finds MusicBrainz recordings for unmatched tracks
type recordingLookup interface {
	Lookup(ctx context.Context, entry catalog.Entry) (string, error)
}

// Application represents the main application state
type Application struct {
	config *config.Config
	logger *log.Logger
	out    io.Writer
	source sourceCatalog
	target targetCatalog
	lookup recordingLookup
	mode   Mode

	// shared is the session of the fixed PLEX_PLAYLIST_NAME playlist once
	// the first source playlist has opened it
	shared *reconcile.Session
}

// Run reconciles every configured playlist against the Plex library
func (app *Application) Run(ctx context.Context) error {
	// Get playlist metadata
	playlistMetas, err := app.getPlaylistMetadata(ctx)
	if err != nil {
		return fmt.Errorf("failed to get playlist metadata: %w", err)
	}
	playlistMetas = app.filterExcludedPlaylists(playlistMetas)

	// Validate we have playlists to process
	if len(playlistMetas) == 0 {
		app.printNoPlaylistsMessage()
		return ErrNoPlaylists
	}

	// The library is fetched once and shared by every playlist
	library, err := app.target.GetLibraryEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load Plex library: %w", err)
	}
	app.logger.Info("loaded Plex library", "tracks", len(library))

	return app.processPlaylists(ctx, playlistMetas, library)
}

// getPlaylistMetadata retrieves metadata for all playlists to be processed
func (app *Application) getPlaylistMetadata(ctx context.Context) ([]PlaylistMeta, error) {
	var playlistMetas []PlaylistMeta

	if username := app.config.Spotify.Username; username != "" {
		// Fetch all public playlists for the user
		publicPlaylists, err := app.source.GetUserPublicPlaylists(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch public playlists for user %s: %w", username, err)
		}

		for _, pl := range publicPlaylists {
			playlistMetas = append(playlistMetas, PlaylistMeta{
				ID:          pl.ID,
				Name:        pl.Name,
				Description: pl.Description,
			})
		}
		app.logger.Info("processing public playlists", "user", username, "count", len(playlistMetas))
		return playlistMetas, nil
	}

	// Process specific playlist IDs
	for _, playlistID := range app.config.Spotify.PlaylistIDs {
		playlistInfo, err := app.source.GetPlaylistInfo(ctx, playlistID)
		if err != nil {
			app.logger.Error("failed to get playlist info", "playlist", playlistID, "err", err)
			continue
		}
		playlistMetas = append(playlistMetas, PlaylistMeta{
			ID:          playlistID,
			Name:        playlistInfo.Name,
			Description: playlistInfo.Description,
		})
	}
	app.logger.Info("processing playlists", "count", len(playlistMetas))
	return playlistMetas, nil
}

// filterExcludedPlaylists drops the playlists listed in SPOTIFY_PLAYLIST_EXCLUDED_ID
func (app *Application) filterExcludedPlaylists(playlists []PlaylistMeta) []PlaylistMeta {
	excluded := app.config.Spotify.ExcludedPlaylistIDs
	if len(excluded) == 0 {
		return playlists
	}

	filtered := make([]PlaylistMeta, 0, len(playlists))
	for _, pl := range playlists {
		if slices.Contains(excluded, pl.ID) {
			app.logger.Info("skipping excluded playlist", "playlist", pl.ID, "name", pl.Name)
			continue
		}
		filtered = append(filtered, pl)
	}
	return filtered
}

// processPlaylists processes each playlist sequentially. A failed playlist
// does not stop the others.
func (app *Application) processPlaylists(ctx context.Context, playlistMetas []PlaylistMeta, library []catalog.Entry) error {
	var failed int
	for i, meta := range playlistMetas {
		app.logger.Info("processing playlist", "index", i+1, "total", len(playlistMetas), "playlist", meta.ID, "name", meta.Name)

		report, err := app.processPlaylist(ctx, meta, library)
		if report != nil {
			renderReport(app.out, report, app.lookupRecordings(ctx, report))
		}
		if err != nil {
			app.logger.Error("failed to process playlist", "playlist", meta.ID, "err", err)
			failed++
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d playlists failed", failed, len(playlistMetas))
	}
	app.logger.Info("all playlists processed", "count", len(playlistMetas))
	return nil
}

// processPlaylist reconciles a single Spotify playlist into Plex
func (app *Application) processPlaylist(ctx context.Context, meta PlaylistMeta, library []catalog.Entry) (*reconcile.Report, error) {
	sources, err := app.source.GetPlaylistEntries(ctx, meta.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist songs: %w", err)
	}

	name := app.config.Plex.PlaylistName
	if name == "" {
		name = meta.Name
	}
	summary := plex.SyncSummary(meta.Description, meta.ID)

	session, err := app.session(ctx, name, summary)
	if err != nil {
		return nil, err
	}

	driver := reconcile.NewDriver(app.mutator(summary), reconcile.Options{
		PlaylistName: name,
		Match:        matcher.Options{RankThreshold: app.config.Match.Threshold},
		Logger:       app.logger,
	})
	return driver.RunSession(ctx, session, sources, library)
}

// mutator returns the playlist writer for a run
func (app *Application) mutator(summary string) reconcile.PlaylistMutator {
	if app.config.Match.DryRun {
		return &reconcile.DryRun{}
	}
	return &plex.PlaylistWriter{Client: app.target, Summary: summary}
}

// session returns the destination session for a playlist. With a fixed
// playlist name every source playlist of the run lands in the same Plex
// playlist, so only the first one goes through the mode.
func (app *Application) session(ctx context.Context, name, summary string) (*reconcile.Session, error) {
	if app.config.Plex.PlaylistName == "" {
		return app.openSession(ctx, name, summary)
	}
	if app.shared != nil {
		app.logger.Info("adding to playlist opened earlier in this run", "name", name, "id", app.shared.State.ID)
		return app.shared, nil
	}

	session, err := app.openSession(ctx, name, summary)
	if err != nil {
		return nil, err
	}
	app.shared = session
	return session, nil
}

// openSession prepares the destination playlist according to the mode. A
// playlist that does not exist yet is always created.
func (app *Application) openSession(ctx context.Context, name, summary string) (*reconcile.Session, error) {
	if app.mode == ModeCreate {
		return reconcile.NewSession(), nil
	}

	existing, err := app.target.FindPlaylist(ctx, name)
	if errors.Is(err, plex.ErrPlaylistNotFound) {
		app.logger.Info("no existing playlist, creating a new one", "name", name)
		return reconcile.NewSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up playlist %q: %w", name, err)
	}

	if app.mode == ModeReplace {
		if app.config.Match.DryRun {
			app.logger.Info("dry run: would clear playlist", "name", name, "id", existing.ID)
			return reconcile.ResumeSession(existing.ID, nil), nil
		}
		if err := app.target.ClearPlaylist(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to clear playlist %q: %w", name, err)
		}
		if err := app.target.UpdatePlaylistMetadata(ctx, existing.ID, name, summary); err != nil {
			app.logger.Warn("failed to update playlist metadata", "name", name, "err", err)
		}
		return reconcile.ResumeSession(existing.ID, nil), nil
	}

	entries, err := app.target.GetPlaylistEntries(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist %q: %w", name, err)
	}
	app.logger.Info("extending existing playlist", "name", name, "id", existing.ID, "tracks", len(entries))
	return reconcile.ResumeSession(existing.ID, entries), nil
}

// lookupRecordings finds MusicBrainz recording IDs for the unmatched tracks
// of a report, keyed by outcome index
func (app *Application) lookupRecordings(ctx context.Context, report *reconcile.Report) map[int]string {
	if app.lookup == nil || report.Unmatched() == 0 {
		return nil
	}

	app.logger.Info("looking up MusicBrainz IDs for missing tracks", "count", report.Unmatched())
	recordings := make(map[int]string)
	for i, o := range report.Outcomes {
		if o.Kind != reconcile.OutcomeUnmatched {
			continue
		}
		id, err := app.lookup.Lookup(ctx, o.Source)
		if err != nil {
			app.logger.Debug("no MusicBrainz recording", "track", o.Source.String(), "err", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		recordings[i] = id
	}
	return recordings
}

// printNoPlaylistsMessage displays a helpful message when no playlists are specified
func (app *Application) printNoPlaylistsMessage() {
	fmt.Fprintln(app.out, "❌ No playlists specified!")
	fmt.Fprintln(app.out, "Please provide either:")
	fmt.Fprintln(app.out, "  - SPOTIFY_USERNAME environment variable to fetch all public playlists for a user")
	fmt.Fprintln(app.out, "  - SPOTIFY_PLAYLIST_ID environment variable with comma-separated playlist IDs")
	fmt.Fprintln(app.out, "  - --username command line flag to specify a Spotify username")
	fmt.Fprintln(app.out, "  - --playlists command line flag to specify playlist IDs")
	fmt.Fprintln(app.out, "\nExample:")
	fmt.Fprintln(app.out, "  ./plexmatch --username your_spotify_username")
	fmt.Fprintln(app.out, "  ./plexmatch --playlists 37i9dQZF1DXcBWIGoYBM5M,37i9dQZF1DXcBWIGoYBM5N")
	fmt.Fprintln(app.out, "  ./plexmatch --debug --dry-run --playlists 37i9dQZF1DXcBWIGoYBM5M  # preview with debug output")
}
