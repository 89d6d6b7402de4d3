package core

import (
	"github.com/kart-io/errica/pkg/errica/config"
	"github.com/kart-io/errica/pkg/errica/event"
)

// Router maps a severity to the channel names it should reach. It reads the
// routing table from the configuration on every call.
type Router struct {
	cfg *config.Config
}

// NewRouter returns a router over cfg.
func NewRouter(cfg *config.Config) *Router {
	return &Router{cfg: cfg}
}

// Resolve returns the target channel names for level. Explicit names win and
// are returned as given, minus duplicates. Otherwise the routing entry of level
// is used; a level without an entry falls back to the nearest lower level that
// has one. Enablement is not considered here.
func (r *Router) Resolve(level event.Severity, explicit []string) []string {
	if explicit != nil {
		return dedupe(explicit)
	}
	for l := level; l >= event.Debug; l-- {
		path := config.RoutingPath(l.String())
		if r.cfg.Has(path) {
			return dedupe(r.cfg.StringSlice(path))
		}
	}
	return []string{}
}

// dedupe keeps the first occurrence of every non-empty name.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
