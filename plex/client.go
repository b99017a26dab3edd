package plex

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/grrywlsn/plexmatch/catalog"
	"github.com/grrywlsn/plexmatch/config"
	"github.com/grrywlsn/plexmatch/logging"
)

// Constants for Plex API
const (
	// Plex API constants
	PlexMusicTrackType = "10"

	// HTTP timeouts
	DefaultHTTPTimeout = 30 * time.Second

	// LibraryPageSize is the number of tracks requested per library page
	LibraryPageSize = 500

	// MusicSectionTitle is the library section picked when none is configured
	MusicSectionTitle = "Music"
)

var (
	ErrAPIRequest       = errors.New("plex API request failed")
	ErrNoMusicSection   = errors.New("no music library section found")
	ErrPlaylistNotFound = errors.New("playlist not found")
	ErrTrackNotAdded    = errors.New("track was not added to playlist")
)

// Client wraps the Plex API client
type Client struct {
	baseURL    string
	token      string
	sectionID  int
	serverID   string
	providerID string
	httpClient *http.Client
	logger     *log.Logger
}

// Track represents a track from Plex
type Track struct {
	ID            string `xml:"ratingKey,attr"`
	Key           string `xml:"key,attr"`
	Title         string `xml:"title,attr"`
	Artist        string `xml:"grandparentTitle,attr"`
	OriginalTitle string `xml:"originalTitle,attr"` // track-level artist credit, if it differs
	Album         string `xml:"parentTitle,attr"`
}

// Playlist represents a Plex playlist
type Playlist struct {
	ID          string `xml:"ratingKey,attr" json:"ratingKey"`
	Title       string `xml:"title,attr" json:"title"`
	Description string `xml:"summary,attr" json:"summary"`
	TrackCount  int    `xml:"leafCount,attr" json:"leafCount"`
	Smart       bool   `xml:"smart,attr" json:"smart"`
}

// ServerInfo represents server information from Plex API
type ServerInfo struct {
	FriendlyName      string `xml:"friendlyName,attr"`
	MachineIdentifier string `xml:"machineIdentifier,attr"`
	Version           string `xml:"version,attr"`
	Platform          string `xml:"platform,attr"`
	PlatformVersion   string `xml:"platformVersion,attr"`
}

// mediaContainer is the envelope of every XML response
type mediaContainer struct {
	XMLName xml.Name `xml:"MediaContainer"`
	ServerInfo
	Size           int             `xml:"size,attr"`
	TotalSize      int             `xml:"totalSize,attr"`
	Offset         int             `xml:"offset,attr"`
	LeafCountAdded string          `xml:"leafCountAdded,attr"`
	Tracks         []Track         `xml:"Track"`
	Playlists      []Playlist      `xml:"Playlist"`
	Providers      []mediaProvider `xml:"MediaProvider"`
}

type mediaProvider struct {
	Identifier string    `xml:"identifier,attr"`
	Title      string    `xml:"title,attr"`
	Features   []feature `xml:"Feature"`
}

type feature struct {
	Type        string      `xml:"type,attr"`
	Directories []directory `xml:"Directory"`
}

// directory is a library section advertised by a provider
type directory struct {
	ID    string `xml:"id,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

// NewClient creates a new Plex client
func NewClient(cfg *config.Config, logger *log.Logger) *Client {
	return newClient(cfg, &http.Client{Timeout: DefaultHTTPTimeout}, logger)
}

// NewClientWithTLSConfig creates a new Plex client with custom TLS configuration
func NewClientWithTLSConfig(cfg *config.Config, skipTLSVerify bool, logger *log.Logger) *Client {
	httpClient := &http.Client{Timeout: DefaultHTTPTimeout}

	if skipTLSVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return newClient(cfg, httpClient, logger)
}

func newClient(cfg *config.Config, httpClient *http.Client, logger *log.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.Plex.URL, "/"),
		token:      cfg.Plex.Token,
		sectionID:  cfg.Plex.LibrarySectionID,
		serverID:   cfg.Plex.ServerID,
		httpClient: httpClient,
		logger:     logging.Component(logger, "plex"),
	}
}

// GetServerInfo retrieves server information from the Plex API
func (c *Client) GetServerInfo(ctx context.Context) (*ServerInfo, error) {
	var resp mediaContainer
	if err := c.getXML(ctx, "/", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get server info: %w", err)
	}
	return &resp.ServerInfo, nil
}

// GetServerID retrieves the server ID (machine identifier) from the Plex API
func (c *Client) GetServerID(ctx context.Context) (string, error) {
	serverInfo, err := c.GetServerInfo(ctx)
	if err != nil {
		return "", err
	}

	if serverInfo.MachineIdentifier == "" {
		return "", fmt.Errorf("%w: server info response does not contain machine identifier", ErrAPIRequest)
	}

	return serverInfo.MachineIdentifier, nil
}

// Discover fills in the server ID, the library provider and the music
// section from /media/providers, asking the server root for its identifier
// when the providers listing has none. Configured values are kept.
func (c *Client) Discover(ctx context.Context) error {
	var resp mediaContainer
	if err := c.getXML(ctx, "/media/providers", nil, &resp); err != nil {
		return fmt.Errorf("failed to get media providers: %w", err)
	}

	if c.serverID == "" {
		c.serverID = resp.MachineIdentifier
	}
	// Older servers leave the identifier off the providers listing
	if c.serverID == "" {
		serverID, err := c.GetServerID(ctx)
		if err != nil {
			return err
		}
		c.serverID = serverID
	}
	if c.providerID == "" && len(resp.Providers) > 0 {
		c.providerID = resp.Providers[0].Identifier
	}
	if c.sectionID == 0 {
		sectionID, ok := musicSection(resp.Providers)
		if !ok {
			return ErrNoMusicSection
		}
		c.sectionID = sectionID
	}

	c.logger.Debug("discovered server", "server_id", c.serverID, "provider", c.providerID, "section", c.sectionID)
	return nil
}

// GetMusicSectionID returns the configured music section, discovering it
// when unset.
func (c *Client) GetMusicSectionID(ctx context.Context) (int, error) {
	if c.sectionID != 0 {
		return c.sectionID, nil
	}
	if err := c.Discover(ctx); err != nil {
		return 0, err
	}
	return c.sectionID, nil
}

// musicSection picks the first directory titled "Music", falling back to
// the first artist directory.
func musicSection(providers []mediaProvider) (int, bool) {
	fallback := ""
	for _, p := range providers {
		for _, f := range p.Features {
			for _, d := range f.Directories {
				if d.ID == "" {
					continue
				}
				if d.Title == MusicSectionTitle {
					return parseSectionID(d.ID)
				}
				if fallback == "" && d.Type == "artist" {
					fallback = d.ID
				}
			}
		}
	}
	if fallback == "" {
		return 0, false
	}
	return parseSectionID(fallback)
}

func parseSectionID(id string) (int, bool) {
	n, err := strconv.Atoi(id)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// identity builds the library identity of a track on this server
func (c *Client) identity(t Track) catalog.LibraryIdentity {
	return catalog.LibraryIdentity{
		ItemID:     t.ID,
		MachineID:  c.serverID,
		ProviderID: c.providerID,
		Key:        t.Key,
	}
}

// newRequest builds an authenticated request against the server
func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values) (*http.Request, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("X-Plex-Token", c.token)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	req.Header.Set("X-Plex-Token", c.token)
	return req, nil
}

// do sends req and fails unless the response status is one of accepted.
// The caller closes the body.
func (c *Client) do(req *http.Request, accepted ...int) (*http.Response, error) {
	c.logger.Debug("request", "method", req.Method, "path", req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrAPIRequest, req.Method, req.URL.Path, err)
	}

	for _, code := range accepted {
		if resp.StatusCode == code {
			return resp, nil
		}
	}

	// Read the response body to get more details about the error
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return nil, fmt.Errorf("%w: %s %s returned status %d: %s", ErrAPIRequest, req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
}

// getXML performs a GET and decodes the XML media container into out
func (c *Client) getXML(ctx context.Context, path string, params url.Values, out *mediaContainer) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, params)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %w", ErrAPIRequest, path, err)
	}
	return nil
}
