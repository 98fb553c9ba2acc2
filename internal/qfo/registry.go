package qfo

import "sync"

// releaseState tracks where a release is in its lifecycle.
type releaseState int

const (
	releaseSubmitted releaseState = iota + 1
	releaseRetired
)

type release struct {
	barrier Barrier
	state   releaseState
}

type entry struct {
	mu       sync.Mutex
	releases []release
}

// Registry is the device-wide map from resource to outstanding releases.
//
// Thread-safety: safe for concurrent use. Entries are looked up through a
// sync.Map and each entry has its own mutex.
type Registry struct {
	entries sync.Map // resourceKey -> *entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) entry(k resourceKey, create bool) *entry {
	if v, ok := r.entries.Load(k); ok {
		return v.(*entry)
	}
	if !create {
		return nil
	}
	v, _ := r.entries.LoadOrStore(k, &entry{})
	return v.(*entry)
}

// AddPending records releases from a submission that has been accepted but
// has not retired yet.
func (r *Registry) AddPending(releases []Barrier) {
	for _, b := range releases {
		e := r.entry(b.key(), true)
		e.mu.Lock()
		e.releases = append(e.releases, release{barrier: b, state: releaseSubmitted})
		e.mu.Unlock()
	}
}

// Retire merges the releases of a retired submission into the released set.
// Releases already consumed by an acquire are skipped.
func (r *Registry) Retire(releases []Barrier) {
	for _, b := range releases {
		e := r.entry(b.key(), false)
		if e == nil {
			continue
		}
		e.mu.Lock()
		for i := range e.releases {
			if e.releases[i].barrier == b && e.releases[i].state == releaseSubmitted {
				e.releases[i].state = releaseRetired
				break
			}
		}
		e.mu.Unlock()
	}
}

// HasRelease reports whether a release matching b is outstanding.
func (r *Registry) HasRelease(b Barrier) bool {
	e := r.entry(b.key(), false)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rel := range e.releases {
		if rel.barrier == b {
			return true
		}
	}
	return false
}

// Match reports whether acquire has a matching outstanding release.
func (r *Registry) Match(acquire Barrier) bool {
	return r.HasRelease(acquire)
}

// Consume removes the oldest release matching acquire. Returns false when
// there was none.
func (r *Registry) Consume(acquire Barrier) bool {
	e := r.entry(acquire.key(), false)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, rel := range e.releases {
		if rel.barrier == acquire {
			e.releases = append(e.releases[:i], e.releases[i+1:]...)
			return true
		}
	}
	return false
}

// Forget drops every release for a destroyed resource.
func (r *Registry) Forget(kind ResourceKind, handle uint64) {
	r.entries.Delete(resourceKey{kind: kind, handle: handle})
}

// Outstanding returns every outstanding release barrier.
func (r *Registry) Outstanding() []Barrier {
	var out []Barrier
	r.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		for _, rel := range e.releases {
			out = append(out, rel.barrier)
		}
		e.mu.Unlock()
		return true
	})
	return out
}

// Len returns the number of outstanding releases.
func (r *Registry) Len() int {
	return len(r.Outstanding())
}
