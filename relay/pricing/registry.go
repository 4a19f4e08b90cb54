package pricing

import (
	"sort"
	"sync"
)

// Registry is the set of known models. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models map[string]ModelInfo
}

// NewRegistry returns a registry preloaded with the built-in Claude models.
func NewRegistry() *Registry {
	r := &Registry{models: make(map[string]ModelInfo)}
	for _, m := range builtinModels() {
		m.Available = true
		m.Version = "1.0"
		m.Provider = "anthropic"
		r.models[m.ID] = m
	}
	return r
}

// Get returns the model with the given ID.
func (r *Registry) Get(id string) (ModelInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	return m, ok
}

// Register adds or replaces a model.
func (r *Registry) Register(info ModelInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[info.ID] = info
}

// MarkUnavailable hides a model from ListAvailable. Unknown IDs are ignored.
func (r *Registry) MarkUnavailable(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.models[id]; ok {
		m.Available = false
		r.models[id] = m
	}
}

// ListAvailable returns the available models sorted by ID.
func (r *Registry) ListAvailable() []ModelInfo {
	return r.filter(func(ModelInfo) bool { return true })
}

// WithCapability returns the available models that support c, sorted by ID.
func (r *Registry) WithCapability(c Capability) []ModelInfo {
	return r.filter(func(m ModelInfo) bool { return m.Supports(c) })
}

func (r *Registry) filter(keep func(ModelInfo) bool) []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModelInfo, 0, len(r.models))
	for _, m := range r.models {
		if m.Available && keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
