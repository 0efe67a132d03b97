package classify

import (
	"strings"
	"sync"
)

// Registry is a thread-safe name → Rule map for call-site rules resolved
// once at registration time.
type Registry struct {
	mu sync.RWMutex
	m  map[string]Rule
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[string]Rule)}
}

// Register associates name with r. Empty names are ignored.
func (r *Registry) Register(name string, rule Rule) {
	if r == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	r.mu.Lock()
	if r.m == nil {
		r.m = make(map[string]Rule)
	}
	r.m[name] = rule
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Rule, bool) {
	if r == nil {
		return Rule{}, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Rule{}, false
	}

	r.mu.RLock()
	rule, ok := r.m[name]
	r.mu.RUnlock()
	return rule, ok
}

// Names returns the registered names in no particular order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for name := range r.m {
		out = append(out, name)
	}
	return out
}
