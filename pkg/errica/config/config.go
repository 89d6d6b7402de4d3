// Package config provides the hierarchical errica configuration: a tree of
// maps addressed by dotted paths such as "channels.slack.webhook_url" or
// "routing.level_routing.ERROR".
package config

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Well-known paths.
const (
	PathAppName        = "app.name"
	PathAppVersion     = "app.version"
	PathAppEnvironment = "app.environment"
	PathChannels       = "channels"
	PathLevelRouting   = "routing.level_routing"
	PathManagerTimeout = "manager.timeout"
	PathLogLevel       = "logging.level"
	PathTelemetry      = "telemetry"
)

// DefaultTimeout bounds a single channel call when nothing else is configured.
const DefaultTimeout = 10 * time.Second

// Config is a concurrency-safe configuration tree.
type Config struct {
	mu   sync.RWMutex
	tree map[string]any
}

// New returns a configuration populated with defaults: console enabled and
// every level from INFO upwards routed to it.
func New() *Config {
	c := NewEmpty()
	c.Set(PathAppName, "errica")
	c.Set(PathAppVersion, "0.0.0")
	c.Set(PathAppEnvironment, "development")
	c.Set("channels.console.enabled", true)
	c.Set("channels.console.use_colors", false)
	c.Set("channels.console.show_detailed_exceptions", false)
	for _, level := range []string{"INFO", "WARNING", "ERROR", "CRITICAL"} {
		c.Set(RoutingPath(level), []string{"console"})
	}
	c.Set(PathManagerTimeout, DefaultTimeout)
	return c
}

// NewEmpty returns a configuration without any defaults.
func NewEmpty() *Config {
	return &Config{tree: make(map[string]any)}
}

// RoutingPath returns the routing table path for a level name.
func RoutingPath(level string) string {
	return PathLevelRouting + "." + strings.ToUpper(level)
}

// ChannelPath returns the path of an option of a channel.
func ChannelPath(name, option string) string {
	return PathChannels + "." + name + "." + option
}

// Set stores value at path, creating intermediate levels as needed. A
// non-map value found on the way is replaced by a map. Maps and slices are
// copied, so later changes by the caller are not observed.
func (c *Config) Set(path string, value any) {
	keys := splitPath(path)
	if len(keys) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.tree
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[key] = next
		}
		current = next
	}
	current[keys[len(keys)-1]] = copyValue(value)
}

// Get returns the value at path, or def when any segment is absent.
// Maps and slices are returned as copies.
func (c *Config) Get(path string, def any) any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := lookup(c.tree, splitPath(path)); ok {
		return copyValue(v)
	}
	return def
}

// Has reports whether a value exists at path.
func (c *Config) Has(path string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := lookup(c.tree, splitPath(path))
	return ok
}

// Delete removes the value at path. Missing paths are ignored.
func (c *Config) Delete(path string) {
	keys := splitPath(path)
	if len(keys) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	parent := c.tree
	if len(keys) > 1 {
		v, ok := lookup(c.tree, keys[:len(keys)-1])
		if !ok {
			return
		}
		if parent, ok = v.(map[string]any); !ok {
			return
		}
	}
	delete(parent, keys[len(keys)-1])
}

// Merge deep-merges src into the tree. Values in src win.
func (c *Config) Merge(src map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mergeInto(c.tree, src)
}

// Replace swaps the whole tree for a copy of tree.
func (c *Config) Replace(tree map[string]any) {
	m, _ := copyValue(tree).(map[string]any)
	if m == nil {
		m = make(map[string]any)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree = m
}

// Snapshot returns a deep copy of the whole tree.
func (c *Config) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyValue(c.tree).(map[string]any)
}

// Clone returns an independent copy of the configuration.
func (c *Config) Clone() *Config {
	return &Config{tree: c.Snapshot()}
}

// String returns the string at path, or def.
func (c *Config) String(path, def string) string {
	return toString(c.Get(path, nil), def)
}

// Bool returns the boolean at path, or def.
func (c *Config) Bool(path string, def bool) bool {
	return toBool(c.Get(path, nil), def)
}

// Int returns the integer at path, or def.
func (c *Config) Int(path string, def int) int {
	return toInt(c.Get(path, nil), def)
}

// Duration returns the duration at path, or def.
func (c *Config) Duration(path string, def time.Duration) time.Duration {
	return toDuration(c.Get(path, nil), def)
}

// StringSlice returns the list of strings at path, or nil.
func (c *Config) StringSlice(path string) []string {
	return toStringSlice(c.Get(path, nil))
}

// Channel returns a read-only snapshot of the settings of channel name.
func (c *Config) Channel(name string) ChannelSettings {
	m, _ := c.Get(PathChannels+"."+name, nil).(map[string]any)
	if m == nil {
		m = make(map[string]any)
	}
	return ChannelSettings{name: name, values: m}
}

// ChannelNames returns every configured channel name, sorted.
func (c *Config) ChannelNames() []string {
	m, _ := c.Get(PathChannels, nil).(map[string]any)
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnabledChannels returns the names of channels whose enabled flag is true, sorted.
func (c *Config) EnabledChannels() []string {
	var names []string
	for _, name := range c.ChannelNames() {
		if c.Channel(name).Enabled() {
			names = append(names, name)
		}
	}
	return names
}

// IsEnabled reports whether channel name is enabled.
func (c *Config) IsEnabled(name string) bool {
	return c.Bool(ChannelPath(name, "enabled"), false)
}

// App returns the app.* values.
func (c *Config) App() (name, version, environment string) {
	return c.String(PathAppName, ""), c.String(PathAppVersion, ""), c.String(PathAppEnvironment, "")
}

func splitPath(path string) []string {
	parts := strings.Split(path, ".")
	keys := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

func lookup(tree map[string]any, keys []string) (any, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	current := tree
	for i, key := range keys {
		v, ok := current[key]
		if !ok {
			return nil, false
		}
		if i == len(keys)-1 {
			return v, true
		}
		if current, ok = v.(map[string]any); !ok {
			return nil, false
		}
	}
	return nil, false
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if sm, ok := v.(map[string]any); ok {
			dm, ok := dst[k].(map[string]any)
			if !ok {
				dm = make(map[string]any)
				dst[k] = dm
			}
			mergeInto(dm, sm)
			continue
		}
		dst[k] = copyValue(v)
	}
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = copyValue(val)
		}
		return m
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[toString(k, "")] = copyValue(val)
		}
		return m
	case map[string]string:
		m := make(map[string]string, len(t))
		for k, val := range t {
			m[k] = val
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = copyValue(val)
		}
		return s
	case []string:
		s := make([]string, len(t))
		copy(s, t)
		return s
	default:
		return v
	}
}

// ChannelType returns channels.<name>.type, which defaults to name.
func (c *Config) ChannelType(name string) string {
	return c.Channel(name).Type()
}

// Float returns the number at path, or def.
func (c *Config) Float(path string, def float64) float64 {
	return toFloat(c.Get(path, nil), def)
}

// StringMap returns the map of strings at path, e.g. HTTP headers.
func (c *Config) StringMap(path string) map[string]string {
	return toStringMap(c.Get(path, nil))
}
