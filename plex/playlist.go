package plex

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"net/url"

	"github.com/grrywlsn/plexmatch/catalog"
)

// SyncSummary adds a sync attribution line to the description
func SyncSummary(description, spotifyPlaylistID string) string {
	if spotifyPlaylistID == "" {
		return escapeDescription(description)
	}

	// Create the attribution line
	syncLine := fmt.Sprintf("synced from Spotify: https://open.spotify.com/playlist/%s", spotifyPlaylistID)

	// If there's existing description, add newlines before the attribution
	if description != "" {
		return escapeDescription(description + "\n\n" + syncLine)
	}

	return syncLine
}

// escapeDescription decodes HTML entities in playlist descriptions
func escapeDescription(description string) string {
	// This handles cases like &#x2F; -> /
	return html.UnescapeString(description)
}

// CreatePlaylist creates a new audio playlist holding the item at uri. Plex
// cannot create an empty playlist.
func (c *Client) CreatePlaylist(ctx context.Context, title, summary, uri string) (*Playlist, error) {
	// Add parameters to URL query string (matching Plex Web behavior)
	params := url.Values{}
	params.Add("type", "audio")
	params.Add("title", title)
	params.Add("smart", "0")
	params.Add("uri", uri)
	if summary != "" {
		params.Add("summary", summary)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/playlists", params)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := c.do(req, http.StatusOK, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Parse the JSON response to get the created playlist
	var playlistResp struct {
		MediaContainer struct {
			Metadata []Playlist `json:"Metadata"`
		} `json:"MediaContainer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&playlistResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode playlist creation response: %w", ErrAPIRequest, err)
	}

	if len(playlistResp.MediaContainer.Metadata) == 0 || playlistResp.MediaContainer.Metadata[0].ID == "" {
		return nil, fmt.Errorf("%w: no playlist returned from creation request", ErrAPIRequest)
	}

	created := playlistResp.MediaContainer.Metadata[0]
	c.logger.Info("created playlist", "title", created.Title, "id", created.ID)
	return &created, nil
}

// AddToPlaylist appends the item at uri to a playlist
func (c *Client) AddToPlaylist(ctx context.Context, playlistID, uri string) error {
	params := url.Values{}
	params.Add("uri", uri)

	req, err := c.newRequest(ctx, http.MethodPut, "/playlists/"+url.PathEscape(playlistID)+"/items", params)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Check if the response indicates the track was added
	var result mediaContainer
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.Debug("playlist append response was not a media container", "playlist", playlistID, "err", err)
		return nil
	}
	if result.LeafCountAdded == "0" {
		return fmt.Errorf("%w: %s (leafCountAdded=0); check that playlist modifications are enabled and the token has write permissions", ErrTrackNotAdded, uri)
	}

	c.logger.Debug("added item to playlist", "playlist", playlistID, "uri", uri)
	return nil
}

// GetPlaylists retrieves all audio playlists from the Plex server
func (c *Client) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	params := url.Values{}
	params.Set("playlistType", "audio")

	var resp mediaContainer
	if err := c.getXML(ctx, "/playlists", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to get playlists: %w", err)
	}
	return resp.Playlists, nil
}

// FindPlaylist returns the first regular playlist called title
func (c *Client) FindPlaylist(ctx context.Context, title string) (*Playlist, error) {
	playlists, err := c.GetPlaylists(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range playlists {
		if p.Title == title && !p.Smart {
			found := p
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrPlaylistNotFound, title)
}

// GetPlaylistEntries lists the tracks of a playlist as target entries
func (c *Client) GetPlaylistEntries(ctx context.Context, playlistID string) ([]catalog.Entry, error) {
	var resp mediaContainer
	if err := c.getXML(ctx, "/playlists/"+url.PathEscape(playlistID)+"/items", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	entries := make([]catalog.Entry, 0, len(resp.Tracks))
	for _, t := range resp.Tracks {
		if entry, ok := c.trackEntry(t); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// UpdatePlaylistMetadata updates the title and summary of an existing playlist
func (c *Client) UpdatePlaylistMetadata(ctx context.Context, playlistID, title, summary string) error {
	params := url.Values{}
	params.Add("type", "audio")
	if title != "" {
		params.Add("title", title)
	}
	if summary != "" {
		params.Add("summary", summary)
	}

	req, err := c.newRequest(ctx, http.MethodPut, "/playlists/"+url.PathEscape(playlistID), params)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := c.do(req, http.StatusOK, http.StatusCreated, http.StatusNoContent)
	if err != nil {
		return err
	}
	resp.Body.Close()

	c.logger.Debug("updated playlist metadata", "playlist", playlistID, "title", title)
	return nil
}

// ClearPlaylist removes all tracks from an existing playlist
func (c *Client) ClearPlaylist(ctx context.Context, playlistID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/playlists/"+url.PathEscape(playlistID)+"/items", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.do(req, http.StatusOK, http.StatusNoContent)
	if err != nil {
		return err
	}
	resp.Body.Close()

	c.logger.Info("cleared playlist", "playlist", playlistID)
	return nil
}

// PlaylistAPI is the part of the Plex playlist API a reconciliation run writes through.
type PlaylistAPI interface {
	CreatePlaylist(ctx context.Context, title, summary, uri string) (*Playlist, error)
	AddToPlaylist(ctx context.Context, playlistID, uri string) error
}

// PlaylistWriter adapts a PlaylistAPI to the playlist mutations of a
// reconciliation run. Summary is set on playlists it creates.
type PlaylistWriter struct {
	Client  PlaylistAPI
	Summary string
}

// CreatePlaylist creates the playlist seeded with uri and returns its ID.
func (w *PlaylistWriter) CreatePlaylist(ctx context.Context, name, uri string) (string, error) {
	p, err := w.Client.CreatePlaylist(ctx, name, w.Summary, uri)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// AddToPlaylist appends uri to the playlist.
func (w *PlaylistWriter) AddToPlaylist(ctx context.Context, playlistID, uri string) error {
	return w.Client.AddToPlaylist(ctx, playlistID, uri)
}
