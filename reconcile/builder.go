package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/grrywlsn/plexmatch/catalog"
)

var (
	ErrCreatePlaylist = errors.New("playlist creation failed")
	ErrAppendPlaylist = errors.New("playlist append failed")
	ErrNoIdentity     = errors.New("target entry has no library identity")
)

// PlaylistMutator creates and extends playlists on the media server. uri is
// the server address of a library item (see catalog.LibraryIdentity.Address).
type PlaylistMutator interface {
	CreatePlaylist(ctx context.Context, name, uri string) (string, error)
	AddToPlaylist(ctx context.Context, playlistID, uri string) error
}

// PlaylistState holds the destination playlist of a run. ID is empty until
// the first item has been added.
type PlaylistState struct {
	ID string
}

// IsSet reports whether the destination playlist exists.
func (s *PlaylistState) IsSet() bool {
	return s.ID != ""
}

// Builder adds matched items to the destination playlist, creating it with
// the first item.
type Builder struct {
	mutator PlaylistMutator
	name    string
}

// NewBuilder returns a Builder for the playlist called name.
func NewBuilder(mutator PlaylistMutator, name string) *Builder {
	return &Builder{mutator: mutator, name: name}
}

// Name returns the destination playlist name.
func (b *Builder) Name() string {
	return b.name
}

// EnsureContains adds target to the playlist in state. It reports whether
// the playlist was created by this call. State is only updated when the
// creation succeeded.
func (b *Builder) EnsureContains(ctx context.Context, state *PlaylistState, target catalog.Entry) (bool, error) {
	id, ok := target.Identity()
	if !ok {
		return false, ErrNoIdentity
	}
	uri := id.Address()

	if !state.IsSet() {
		playlistID, err := b.mutator.CreatePlaylist(ctx, b.name, uri)
		if err != nil {
			return false, fmt.Errorf("%w: %q: %w", ErrCreatePlaylist, b.name, err)
		}
		if playlistID == "" {
			return false, fmt.Errorf("%w: %q: no playlist id returned", ErrCreatePlaylist, b.name)
		}
		state.ID = playlistID
		return true, nil
	}

	if err := b.mutator.AddToPlaylist(ctx, state.ID, uri); err != nil {
		return false, fmt.Errorf("%w: playlist %s: %w", ErrAppendPlaylist, state.ID, err)
	}
	return false, nil
}
