package musicbrainz

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/grrywlsn/plexmatch/catalog"
	"github.com/grrywlsn/plexmatch/logging"
)

const (
	// DefaultBaseURL is the MusicBrainz web service root
	DefaultBaseURL = "https://musicbrainz.org/ws/2"

	// RequestsPerSecond is the rate MusicBrainz allows anonymous clients
	RequestsPerSecond = 1

	userAgent = "plexmatch/1.0 (https://github.com/grrywlsn/plexmatch)"
)

var (
	ErrEmptyQuery = errors.New("musicbrainz: empty query")
	ErrNotFound   = errors.New("musicbrainz: no recording found")
	ErrAPIRequest = errors.New("musicbrainz: api request failed")
)

// Client looks up MusicBrainz recordings
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *log.Logger
}

// Recording represents a MusicBrainz recording
type Recording struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"title"`
}

// searchResponse is the body of a recording search
type searchResponse struct {
	RecordingList struct {
		Recordings []Recording `xml:"recording"`
	} `xml:"recording-list"`
}

// isrcResponse is the body of an ISRC lookup
type isrcResponse struct {
	ISRC struct {
		RecordingList struct {
			Recordings []Recording `xml:"recording"`
		} `xml:"recording-list"`
	} `xml:"isrc"`
}

// NewClient creates a client for the public MusicBrainz service
func NewClient(logger *log.Logger) *Client {
	return NewWithBaseURL(DefaultBaseURL, rate.NewLimiter(RequestsPerSecond, 1), logger)
}

// NewWithBaseURL creates a client against a custom base URL and limiter.
// A nil limiter disables rate limiting.
func NewWithBaseURL(baseURL string, limiter *rate.Limiter, logger *log.Logger) *Client {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    limiter,
		logger:     logging.Component(logger, "musicbrainz"),
	}
}

// GetMusicBrainzIDByISRC returns the first recording ID registered for isrc
func (c *Client) GetMusicBrainzIDByISRC(ctx context.Context, isrc string) (string, error) {
	if isrc == "" {
		return "", fmt.Errorf("%w: ISRC cannot be empty", ErrEmptyQuery)
	}

	var resp isrcResponse
	if err := c.get(ctx, "/isrc/"+url.PathEscape(isrc), nil, &resp); err != nil {
		return "", err
	}

	recordings := resp.ISRC.RecordingList.Recordings
	if len(recordings) == 0 {
		return "", fmt.Errorf("%w for ISRC %s", ErrNotFound, isrc)
	}
	return recordings[0].ID, nil
}

// GetMusicBrainzIDByArtistAndTitle returns the best recording ID for a
// search on artist and title
func (c *Client) GetMusicBrainzIDByArtistAndTitle(ctx context.Context, artist, title string) (string, error) {
	if artist == "" || title == "" {
		return "", fmt.Errorf("%w: artist and title cannot be empty", ErrEmptyQuery)
	}

	params := url.Values{}
	params.Set("query", fmt.Sprintf("artist:%s AND recording:%s", quote(artist), quote(title)))
	params.Set("limit", "1")

	var resp searchResponse
	if err := c.get(ctx, "/recording/", params, &resp); err != nil {
		return "", err
	}

	recordings := resp.RecordingList.Recordings
	if len(recordings) == 0 {
		return "", fmt.Errorf("%w for artist %q, title %q", ErrNotFound, artist, title)
	}
	return recordings[0].ID, nil
}

// Lookup resolves a source entry to a recording ID, by ISRC when the entry
// carries one and by primary artist and title otherwise.
func (c *Client) Lookup(ctx context.Context, entry catalog.Entry) (string, error) {
	if src, ok := entry.Source(); ok && src.ISRC != "" {
		id, err := c.GetMusicBrainzIDByISRC(ctx, src.ISRC)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
		c.logger.Debug("no recording for ISRC, searching by title", "isrc", src.ISRC, "track", entry.Track)
	}
	return c.GetMusicBrainzIDByArtistAndTitle(ctx, entry.PrimaryArtist(), entry.Track)
}

// quote wraps a Lucene phrase, escaping embedded quotes
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("fmt", "xml")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	// An unknown ISRC is a 404 rather than an empty list
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w at %s", ErrNotFound, path)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d: %s", ErrAPIRequest, resp.StatusCode, string(body))
	}

	if err := xml.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: failed to decode XML response: %w", ErrAPIRequest, err)
	}
	return nil
}
