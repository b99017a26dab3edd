package matcher

import "github.com/grrywlsn/plexmatch/catalog"

// Pool is the static set of target candidates for one run. Views of the pool
// with a text transform applied are computed once and reused; a derived view
// keeps the index of every entry, so an index found in a view addresses the
// same item in its parent.
//
// A Pool is not safe for concurrent use.
type Pool struct {
	entries []catalog.Entry
	views   map[string]*Pool
}

// NewPool wraps entries as a candidate pool. The slice must not be modified
// while the pool is in use.
func NewPool(entries []catalog.Entry) *Pool {
	return &Pool{entries: entries}
}

// Len returns the number of candidates.
func (p *Pool) Len() int {
	return len(p.entries)
}

// Entry returns the candidate at index i.
func (p *Pool) Entry(i int) catalog.Entry {
	return p.entries[i]
}

// Entries returns the candidates in iteration order.
func (p *Pool) Entries() []catalog.Entry {
	return p.entries
}

// derive returns the view of p with fn applied to every track and artist,
// memoized under key.
func (p *Pool) derive(key string, fn func(string) string) *Pool {
	if v, ok := p.views[key]; ok {
		return v
	}
	if p.views == nil {
		p.views = make(map[string]*Pool)
	}

	entries := make([]catalog.Entry, len(p.entries))
	for i, e := range p.entries {
		entries[i] = e.WithText(fn)
	}
	v := &Pool{entries: entries}
	p.views[key] = v
	return v
}
