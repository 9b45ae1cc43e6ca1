package provider

import "sync"

// Registered pairs a descriptor with its adapter.
type Registered struct {
	Descriptor Descriptor
	Provider   Provider
}

// Registry holds the ranked provider list. The ranked slice is replaced
// wholesale on reorder (copy-on-write) so concurrent readers see either the
// old or the new order, never a partial one.
type Registry struct {
	mu     sync.RWMutex
	ranked []Registered
	byName map[string]Provider
}

// NewRegistry builds a registry; providers are ranked in registration order,
// rank 1 first.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{byName: make(map[string]Provider, len(providers))}
	for i, p := range providers {
		r.ranked = append(r.ranked, Registered{
			Descriptor: Descriptor{Name: p.Name(), Rank: i + 1, Capabilities: p.Capabilities()},
			Provider:   p,
		})
		r.byName[p.Name()] = p
	}
	return r
}

// Ranked returns the current ranked list snapshot. Callers must not mutate it.
func (r *Registry) Ranked() []Registered {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ranked
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Rank returns the current rank of name (1 = most trusted), or 0 if unknown.
func (r *Registry) Rank(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.ranked {
		if reg.Descriptor.Name == name {
			return reg.Descriptor.Rank
		}
	}
	return 0
}

// SetPreferred moves name to rank 1, shifting the rest down in their current
// relative order. Returns false when name is unknown. The new list is built
// aside and swapped in under the write lock.
func (r *Registry) SetPreferred(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := -1
	for i, reg := range r.ranked {
		if reg.Descriptor.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	next := make([]Registered, 0, len(r.ranked))
	next = append(next, r.ranked[idx])
	for i, reg := range r.ranked {
		if i != idx {
			next = append(next, reg)
		}
	}
	for i := range next {
		next[i].Descriptor.Rank = i + 1
	}
	r.ranked = next
	return true
}

// Names returns provider names in rank order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.ranked))
	for i, reg := range r.ranked {
		out[i] = reg.Descriptor.Name
	}
	return out
}
