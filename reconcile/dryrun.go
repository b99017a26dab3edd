package reconcile

import (
	"context"
	"sync"
)

// DryRunPlaylistID is returned by DryRun in place of a real playlist id.
const DryRunPlaylistID = "dry-run"

// Mutation is a playlist change recorded by DryRun.
type Mutation struct {
	Op         string // "create" or "append"
	PlaylistID string
	Name       string
	URI        string
}

// DryRun is a PlaylistMutator that records changes instead of applying them.
type DryRun struct {
	mu        sync.Mutex
	mutations []Mutation
}

// CreatePlaylist records the creation and returns DryRunPlaylistID.
func (d *DryRun) CreatePlaylist(_ context.Context, name, uri string) (string, error) {
	d.record(Mutation{Op: "create", PlaylistID: DryRunPlaylistID, Name: name, URI: uri})
	return DryRunPlaylistID, nil
}

// AddToPlaylist records the append.
func (d *DryRun) AddToPlaylist(_ context.Context, playlistID, uri string) error {
	d.record(Mutation{Op: "append", PlaylistID: playlistID, URI: uri})
	return nil
}

// Mutations returns the recorded changes in order.
func (d *DryRun) Mutations() []Mutation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Mutation, len(d.mutations))
	copy(out, d.mutations)
	return out
}

func (d *DryRun) record(m Mutation) {
	d.mu.Lock()
	d.mutations = append(d.mutations, m)
	d.mu.Unlock()
}
