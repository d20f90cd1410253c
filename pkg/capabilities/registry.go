package capabilities

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/iln-nexus/iln/pkg/core"
)

type entry struct {
	profile Profile
	backend Backend
}

// Registry is the catalog of backends and their profiles. One RWMutex
// guards all entries; ids keep their first insertion position even when
// re-registered.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register inserts or overwrites the backend under id.
func (r *Registry) Register(id string, profile Profile, backend Backend) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return core.ValidationError("registry.Register", "backend id is required")
	}
	if backend == nil {
		return core.ValidationError("registry.Register", "backend %s has no handler", id)
	}
	profile = profile.Clone()
	profile.ID = id
	if err := profile.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; !exists {
		r.order = append(r.order, id)
	}
	r.entries[id] = &entry{profile: profile, backend: backend}
	return nil
}

// Get returns the backend registered under id. Unknown ids fail with a
// not-found error that lists every registered id.
func (r *Registry) Get(id string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[id]; ok {
		return e.backend, nil
	}
	return nil, &core.Error{
		Op:      "registry.Get",
		Kind:    core.KindNotFound,
		ID:      id,
		Message: fmt.Sprintf("backend %q not found; registered backends: %s", id, strings.Join(r.order, ", ")),
		Err:     core.ErrNotFound,
	}
}

// Profile returns a copy of the profile registered under id.
func (r *Registry) Profile(id string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Profile{}, false
	}
	return e.profile.Clone(), true
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// IsMeta reports whether id is a registered placeholder entry.
func (r *Registry) IsMeta(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return ok && e.profile.Meta
}

// List returns ids in insertion order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Candidates returns the non-meta ids in insertion order.
func (r *Registry) Candidates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if !r.entries[id].profile.Meta {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of registered backends.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Close releases backends implementing io.Closer and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, id := range r.order {
		if c, ok := r.entries[id].backend.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("closing backend %s: %w", id, err)
			}
		}
	}
	r.order = nil
	r.entries = make(map[string]*entry)
	return firstErr
}
