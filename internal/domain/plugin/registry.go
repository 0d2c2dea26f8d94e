package plugin

import (
	"fmt"
	"strings"
	"sync"
)

// Entry pairs a plugin's data with its optional code hooks.
type Entry struct {
	Plugin *Plugin
	Hooks  interface{}
}

// Registry maps window classes to registered plugins. Registration is
// explicit: there is no search-path discovery, loading YAML configs is a
// separate, deliberate step (see LoadDir).
type Registry struct {
	mu      sync.RWMutex
	byClass map[string]*Entry
	byName  map[string]*Entry
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		byClass: make(map[string]*Entry),
		byName:  make(map[string]*Entry),
	}
}

// Register adds a plugin with optional hooks. hooks may be nil for
// data-only plugins, or any value implementing a subset of the capability
// interfaces.
func (r *Registry) Register(p *Plugin, hooks interface{}) error {
	if p.Name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}
	if len(p.Classes) == 0 {
		return fmt.Errorf("plugin %s declares no window classes", p.Name)
	}

	entry := &Entry{Plugin: p, Hooks: hooks}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[p.Name] = entry
	for _, class := range p.Classes {
		r.byClass[strings.ToLower(class)] = entry
	}
	return nil
}

// ForClass returns the plugin registered for a window class, if any.
// Lookup is case-insensitive.
func (r *Registry) ForClass(class string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byClass[strings.ToLower(class)]
	return e, ok
}

// ByName returns a plugin by its registered name.
func (r *Registry) ByName(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e, ok
}

// All returns every registered plugin entry.
func (r *Registry) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.byName))
	for _, e := range r.byName {
		out = append(out, e)
	}
	return out
}

// SharedIdentity reports whether two classes resolve to one plugin, or a
// registered IdentitySharer links them. Used for indirect launch matches and
// class-migration recognition.
func (r *Registry) SharedIdentity(classA, classB string) bool {
	ea, okA := r.ForClass(classA)
	eb, okB := r.ForClass(classB)
	if okA && okB && ea == eb {
		return true
	}
	if okA {
		if sharer, ok := ea.Hooks.(IdentitySharer); ok && sharer.SharesIdentity(classB) {
			return true
		}
	}
	if okB {
		if sharer, ok := eb.Hooks.(IdentitySharer); ok && sharer.SharesIdentity(classA) {
			return true
		}
	}
	return false
}

// Capability lookups. Each returns the typed hook and whether the plugin
// for the class implements it.

func (r *Registry) PreLauncher(class string) (PreLauncher, bool) {
	if e, ok := r.ForClass(class); ok {
		h, ok := e.Hooks.(PreLauncher)
		return h, ok
	}
	return nil, false
}

func (r *Registry) PostLauncher(class string) (PostLauncher, bool) {
	if e, ok := r.ForClass(class); ok {
		h, ok := e.Hooks.(PostLauncher)
		return h, ok
	}
	return nil, false
}

func (r *Registry) TitleParser(class string) (TitleParser, bool) {
	if e, ok := r.ForClass(class); ok {
		h, ok := e.Hooks.(TitleParser)
		return h, ok
	}
	return nil, false
}

func (r *Registry) RestoreSkipper(class string) (RestoreSkipper, bool) {
	if e, ok := r.ForClass(class); ok {
		h, ok := e.Hooks.(RestoreSkipper)
		return h, ok
	}
	return nil, false
}

func (r *Registry) Deduplicator(class string) (Deduplicator, bool) {
	if e, ok := r.ForClass(class); ok {
		h, ok := e.Hooks.(Deduplicator)
		return h, ok
	}
	return nil, false
}
