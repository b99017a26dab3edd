package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/grrywlsn/plexmatch/catalog"
	"github.com/grrywlsn/plexmatch/config"
	"github.com/grrywlsn/plexmatch/logging"
)

// PageSize is the number of playlist tracks requested per call
const PageSize = 100

// Client wraps the Spotify API client
type Client struct {
	client *spotify.Client
	config *config.Config
	logger *log.Logger
}

// PlaylistInfo represents basic information about a playlist
type PlaylistInfo struct {
	ID          string
	Name        string
	Description string
	Owner       string
	TrackCount  int
	Public      bool
}

// NewClient creates a new Spotify client authenticated with the client
// credentials flow, which needs no user interaction and can read public
// playlists. The first token is fetched up front so bad credentials fail
// here; later tokens are fetched whenever the current one expires.
func NewClient(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Client, error) {
	return newClientCredentials(ctx, cfg, spotifyauth.TokenURL, logger)
}

func newClientCredentials(ctx context.Context, cfg *config.Config, tokenURL string, logger *log.Logger, opts ...spotify.ClientOption) (*Client, error) {
	creds := &clientcredentials.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		TokenURL:     tokenURL,
	}

	source := creds.TokenSource(ctx)
	if _, err := source.Token(); err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	return NewClientWithHTTP(cfg, oauth2.NewClient(ctx, source), logger, opts...), nil
}

// NewClientWithHTTP creates a client that sends requests through httpClient.
func NewClientWithHTTP(cfg *config.Config, httpClient *http.Client, logger *log.Logger, opts ...spotify.ClientOption) *Client {
	return &Client{
		client: spotify.New(httpClient, opts...),
		config: cfg,
		logger: logging.Component(logger, "spotify"),
	}
}

// GetUserPublicPlaylists fetches all public playlists for a Spotify user
func (c *Client) GetUserPublicPlaylists(ctx context.Context, username string) ([]PlaylistInfo, error) {
	var playlists []PlaylistInfo

	// Get user's public playlists
	userPlaylists, err := c.client.GetPlaylistsForUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user playlists: %w", err)
	}

	// Collect all playlists, handling pagination
	for {
		for _, playlist := range userPlaylists.Playlists {
			if playlist.IsPublic {
				playlists = append(playlists, PlaylistInfo{
					ID:          string(playlist.ID),
					Name:        playlist.Name,
					Description: playlist.Description,
					Owner:       playlist.Owner.DisplayName,
					TrackCount:  int(playlist.Tracks.Total),
					Public:      playlist.IsPublic,
				})
			}
		}
		if err := c.client.NextPage(ctx, userPlaylists); err != nil {
			break
		}
	}

	c.logger.Debug("fetched user playlists", "user", username, "public", len(playlists))
	return playlists, nil
}

// GetPlaylistInfo returns basic information about a playlist
func (c *Client) GetPlaylistInfo(ctx context.Context, playlistID string) (*PlaylistInfo, error) {
	playlist, err := c.client.GetPlaylist(ctx, spotify.ID(playlistID))
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist info: %w", err)
	}

	return &PlaylistInfo{
		ID:          string(playlist.ID),
		Name:        playlist.Name,
		Description: playlist.Description,
		Owner:       playlist.Owner.DisplayName,
		TrackCount:  int(playlist.Tracks.Total),
		Public:      playlist.IsPublic,
	}, nil
}

// GetPlaylistEntries fetches every track of a playlist as source catalog
// entries, in playlist order. Local files and removed tracks without a
// name are skipped.
func (c *Client) GetPlaylistEntries(ctx context.Context, playlistID string) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	skipped := 0
	page := 1

	// Iterate through all tracks in the playlist
	for {
		playlistTracks, err := c.client.GetPlaylistTracks(ctx, spotify.ID(playlistID), spotify.Offset((page-1)*PageSize), spotify.Limit(PageSize))
		if err != nil {
			return nil, fmt.Errorf("failed to get playlist tracks (page %d): %w", page, err)
		}

		for _, item := range playlistTracks.Tracks {
			entry, ok := trackEntry(item.Track)
			if !ok {
				skipped++
				continue
			}
			entries = append(entries, entry)
		}

		// Check if we've processed all tracks
		if len(playlistTracks.Tracks) < PageSize {
			break
		}
		page++
	}

	c.logger.Debug("fetched playlist tracks", "playlist", playlistID, "tracks", len(entries), "skipped", skipped)
	return entries, nil
}

// trackEntry converts a Spotify track to a source entry keeping every
// credited artist
func trackEntry(track spotify.FullTrack) (catalog.Entry, bool) {
	if strings.TrimSpace(track.Name) == "" {
		return catalog.Entry{}, false
	}

	artists := make([]string, 0, len(track.Artists))
	for _, a := range track.Artists {
		if a.Name != "" {
			artists = append(artists, a.Name)
		}
	}

	return catalog.Entry{
		Track:   track.Name,
		Album:   track.Album.Name,
		Artists: artists,
		Origin: catalog.SourceOrigin{
			URI:  string(track.URI),
			ID:   string(track.ID),
			ISRC: track.ExternalIDs["isrc"],
		},
	}, true
}
