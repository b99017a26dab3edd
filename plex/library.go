package plex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/grrywlsn/plexmatch/catalog"
)

// GetLibraryEntries pulls every track of the music section, one page at a
// time, as target catalog entries. The server, provider and section are
// discovered first when they are not configured.
func (c *Client) GetLibraryEntries(ctx context.Context) ([]catalog.Entry, error) {
	if c.serverID == "" {
		if err := c.Discover(ctx); err != nil {
			return nil, err
		}
	}
	sectionID, err := c.GetMusicSectionID(ctx)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/library/sections/%d/all", sectionID)
	var entries []catalog.Entry
	skipped := 0

	for start := 0; ; {
		params := url.Values{}
		params.Set("type", PlexMusicTrackType) // Type 10 = music tracks
		params.Set("X-Plex-Container-Start", strconv.Itoa(start))
		params.Set("X-Plex-Container-Size", strconv.Itoa(LibraryPageSize))

		var page mediaContainer
		if err := c.getXML(ctx, path, params, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch library page at %d: %w", start, err)
		}

		for _, t := range page.Tracks {
			entry, ok := c.trackEntry(t)
			if !ok {
				skipped++
				continue
			}
			entries = append(entries, entry)
		}

		start += len(page.Tracks)
		c.logger.Debug("fetched library page", "tracks", start, "total", page.TotalSize)

		if len(page.Tracks) == 0 || lastPage(start, len(page.Tracks), page.TotalSize) {
			break
		}
	}

	c.logger.Info("loaded library", "section", sectionID, "tracks", len(entries), "skipped", skipped)
	return entries, nil
}

// lastPage reports whether paging is done. Servers that omit totalSize are
// paged until a short page comes back.
func lastPage(fetched, pageLen, total int) bool {
	if total > 0 {
		return fetched >= total
	}
	return pageLen < LibraryPageSize
}

// trackEntry converts a Plex track into a target entry. Tracks without a
// rating key or title cannot be matched or added and are dropped.
func (c *Client) trackEntry(t Track) (catalog.Entry, bool) {
	if t.ID == "" || strings.TrimSpace(t.Title) == "" {
		return catalog.Entry{}, false
	}
	return catalog.Entry{
		Track:   t.Title,
		Album:   t.Album,
		Artists: trackArtists(t),
		Origin:  catalog.TargetOrigin{Identity: c.identity(t)},
	}, true
}

// trackArtists lists the album artist followed by every name credited in
// originalTitle, without repeats.
func trackArtists(t Track) []string {
	var artists []string
	seen := make(map[string]bool)
	add := func(name string) {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			return
		}
		seen[key] = true
		artists = append(artists, name)
	}

	add(t.Artist)
	for _, name := range catalog.SplitArtists(t.OriginalTitle) {
		add(name)
	}
	return artists
}
