package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ChannelSettings is a read-only snapshot of channels.<name>, handed to a
// channel when it is constructed.
type ChannelSettings struct {
	name   string
	values map[string]any
}

// NewChannelSettings builds settings from a plain map, mostly for tests and
// custom channel construction.
func NewChannelSettings(name string, values map[string]any) ChannelSettings {
	m, _ := copyValue(values).(map[string]any)
	if m == nil {
		m = make(map[string]any)
	}
	return ChannelSettings{name: name, values: m}
}

// Name returns the channel name the settings belong to.
func (s ChannelSettings) Name() string { return s.name }

// Type returns the channel type, which defaults to the channel name.
func (s ChannelSettings) Type() string {
	return strings.ToLower(s.String("type", s.name))
}

// Enabled reports the enabled flag.
func (s ChannelSettings) Enabled() bool { return s.Bool("enabled", false) }

// Has reports whether option is set.
func (s ChannelSettings) Has(option string) bool {
	_, ok := s.values[option]
	return ok
}

// Get returns the raw value of option, or def.
func (s ChannelSettings) Get(option string, def any) any {
	if v, ok := s.values[option]; ok {
		return copyValue(v)
	}
	return def
}

// String returns option as a string, or def.
func (s ChannelSettings) String(option, def string) string {
	return toString(s.values[option], def)
}

// Bool returns option as a boolean, or def.
func (s ChannelSettings) Bool(option string, def bool) bool {
	return toBool(s.values[option], def)
}

// Int returns option as an integer, or def.
func (s ChannelSettings) Int(option string, def int) int {
	return toInt(s.values[option], def)
}

// Duration returns option as a duration, or def.
func (s ChannelSettings) Duration(option string, def time.Duration) time.Duration {
	return toDuration(s.values[option], def)
}

// StringSlice returns option as a list of strings.
func (s ChannelSettings) StringSlice(option string) []string {
	return toStringSlice(s.values[option])
}

// StringMap returns option as a map of strings, e.g. HTTP headers.
func (s ChannelSettings) StringMap(option string) map[string]string {
	return toStringMap(s.values[option])
}

// Options returns the option names, sorted.
func (s ChannelSettings) Options() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toStringMap(v any) map[string]string {
	switch t := v.(type) {
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, v := range t {
			out[k] = v
		}
		return out
	case map[string]any:
		out := make(map[string]string, len(t))
		for k, v := range t {
			out[k] = toString(v, "")
		}
		return out
	default:
		return map[string]string{}
	}
}

func toString(v any, def string) string {
	switch t := v.(type) {
	case nil:
		return def
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toBool(v any, def bool) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "yes", "on":
				return true
			case "no", "off":
				return false
			}
			return def
		}
		return b
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return def
	}
}

func toInt(v any, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case int32:
		return int(t)
	case int64:
		return int(t)
	case uint:
		return int(t)
	case uint64:
		return int(t)
	case float64:
		return int(t)
	case float32:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

func toFloat(v any, def float64) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}

// toDuration accepts a time.Duration, a Go duration string, or a number of seconds.
func toDuration(v any, def time.Duration) time.Duration {
	switch t := v.(type) {
	case time.Duration:
		return t
	case int:
		return time.Duration(t) * time.Second
	case int64:
		return time.Duration(t) * time.Second
	case float64:
		return time.Duration(t * float64(time.Second))
	case string:
		s := strings.TrimSpace(t)
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
		return def
	default:
		return def
	}
}

// toStringSlice accepts []string, []any, or a comma-separated string.
func toStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(toString(item, "")); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return []string{}
		}
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}
