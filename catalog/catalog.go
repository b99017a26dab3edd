// Package catalog defines the entries exchanged between the source playlist,
// the target library and the matching engine.
package catalog

import (
	"fmt"
	"strings"
)

// DefaultProviderID is the library provider used by Plex for local media.
const DefaultProviderID = "com.plexapp.plugins.library"

// Entry is a single track described only by free-text metadata.
//
// Track and Artists form the comparison key. Album is advisory and only
// used when reporting near-misses.
type Entry struct {
	Track   string
	Album   string
	Artists []string
	Origin  Origin
}

// Origin records where an entry came from. It is either a SourceOrigin or a
// TargetOrigin.
type Origin interface {
	isOrigin()
}

// SourceOrigin identifies an entry of the external playlist.
type SourceOrigin struct {
	URI  string
	ID   string
	ISRC string
}

// TargetOrigin identifies an entry of the personal media library.
type TargetOrigin struct {
	Identity LibraryIdentity
}

func (SourceOrigin) isOrigin() {}
func (TargetOrigin) isOrigin() {}

// LibraryIdentity addresses one media item on a Plex server. ItemID is the
// deduplication key; two entries with the same ItemID are the same item even
// when their artists differ.
type LibraryIdentity struct {
	ItemID     string
	MachineID  string
	ProviderID string
	Key        string
}

// Address returns the server URI used to add the item to a playlist.
func (id LibraryIdentity) Address() string {
	provider := id.ProviderID
	if provider == "" {
		provider = DefaultProviderID
	}
	key := id.Key
	if key == "" {
		key = "/library/metadata/" + id.ItemID
	}
	return fmt.Sprintf("server://%s/%s%s", id.MachineID, provider, key)
}

// Identity returns the library identity of a target entry.
func (e Entry) Identity() (LibraryIdentity, bool) {
	if o, ok := e.Origin.(TargetOrigin); ok {
		return o.Identity, true
	}
	return LibraryIdentity{}, false
}

// Source returns the source origin of a source entry.
func (e Entry) Source() (SourceOrigin, bool) {
	if o, ok := e.Origin.(SourceOrigin); ok {
		return o, true
	}
	return SourceOrigin{}, false
}

// PrimaryArtist returns the first artist, or an empty string.
func (e Entry) PrimaryArtist() string {
	if len(e.Artists) == 0 {
		return ""
	}
	return e.Artists[0]
}

// String renders the entry as "artist - track (album)".
func (e Entry) String() string {
	s := strings.Join(e.Artists, ", ") + " - " + e.Track
	if e.Album != "" {
		s += " (" + e.Album + ")"
	}
	return s
}

// WithText returns a copy of the entry with fn applied to Track and every
// artist. Album and Origin are kept as is.
func (e Entry) WithText(fn func(string) string) Entry {
	out := e
	out.Track = fn(e.Track)
	out.Artists = make([]string, len(e.Artists))
	for i, a := range e.Artists {
		out.Artists[i] = fn(a)
	}
	return out
}

// Fold lower-cases and trims every text field of the entry. It is applied
// once to both catalogs before any matching happens.
func Fold(e Entry) Entry {
	fold := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	out := e.WithText(fold)
	out.Album = fold(e.Album)
	return out
}

// FoldAll applies Fold to every entry.
func FoldAll(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Fold(e)
	}
	return out
}

// SplitArtists splits a credit such as "A, B & C / D" into its names.
func SplitArtists(credit string) []string {
	parts := strings.FieldsFunc(credit, func(r rune) bool {
		return r == ',' || r == '&' || r == '/'
	})
	var artists []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			artists = append(artists, p)
		}
	}
	return artists
}
