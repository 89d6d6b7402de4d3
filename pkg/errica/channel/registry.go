package channel

import (
	"sort"
	"strings"
	"sync"

	"github.com/kart-io/errica/pkg/errica/config"
	"github.com/kart-io/errica/pkg/logger"
)

// Creator builds a channel from its configuration snapshot.
type Creator func(name string, settings config.ChannelSettings, log logger.Logger) (Channel, error)

// Registry maps channel types to creators. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	creators map[string]Creator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{creators: make(map[string]Creator)}
}

// Register installs creator for typ, replacing any previous one.
func (r *Registry) Register(typ string, creator Creator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creators[strings.ToLower(typ)] = creator
}

// Lookup returns the creator for typ.
func (r *Registry) Lookup(typ string) (Creator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.creators[strings.ToLower(typ)]
	return c, ok
}

// Types returns the registered types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.creators))
	for t := range r.creators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Clone returns an independent copy of the registry.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := NewRegistry()
	for t, c := range r.creators {
		out.creators[t] = c
	}
	return out
}
