package reconcile

import "github.com/grrywlsn/plexmatch/catalog"

// Claim records the source entry that first took a library item.
type Claim struct {
	Source catalog.Entry
	Target catalog.Entry
	// Seeded is set for items that were already in the destination
	// playlist before the run started.
	Seeded bool
}

// Tracker remembers which library items have been claimed during a run,
// keyed by LibraryIdentity.ItemID. Claims are never removed.
type Tracker struct {
	claims map[string]Claim
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{claims: make(map[string]Claim)}
}

// Claim records target for source. When the item was claimed before, the
// existing claim is returned with false and nothing changes.
func (t *Tracker) Claim(source, target catalog.Entry) (Claim, bool) {
	key := itemKey(target)
	if prior, ok := t.claims[key]; ok {
		return prior, false
	}

	c := Claim{Source: source, Target: target}
	t.claims[key] = c
	return c, true
}

// Seed marks target as already present. It reports false when the item was
// known already.
func (t *Tracker) Seed(target catalog.Entry) bool {
	key := itemKey(target)
	if _, ok := t.claims[key]; ok {
		return false
	}
	t.claims[key] = Claim{Target: target, Seeded: true}
	return true
}

// Len returns the number of claimed items, seeded ones included.
func (t *Tracker) Len() int {
	return len(t.claims)
}

func itemKey(target catalog.Entry) string {
	id, _ := target.Identity()
	return id.ItemID
}
