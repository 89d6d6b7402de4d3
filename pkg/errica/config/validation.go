package config

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/kart-io/errica/pkg/errica/event"
)

// RoutingKey is the key under which Validate reports routing problems.
const RoutingKey = "routing"

var (
	botTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)
	discordPattern  = regexp.MustCompile(`/webhooks/\d+/[^/]+/?$`)
)

type channelRule func(s ChannelSettings) []string

var channelRules = map[string]channelRule{
	"console":  validateConsole,
	"telegram": validateTelegram,
	"slack":    validateSlack,
	"webhook":  validateWebhook,
	"discord":  validateDiscord,
	"redis":    validateRedis,
}

// Validate checks every enabled channel and the routing table and returns the
// problems found, keyed by channel name (or RoutingKey). An empty map means the
// configuration is usable. Validate never fails.
func (c *Config) Validate() map[string][]string {
	problems := make(map[string][]string)
	add := func(key, format string, args ...any) {
		problems[key] = append(problems[key], fmt.Sprintf(format, args...))
	}

	for _, name := range c.EnabledChannels() {
		s := c.Channel(name)
		rule, ok := channelRules[s.Type()]
		if !ok {
			add(name, "unknown channel type %q", s.Type())
			continue
		}
		for _, p := range rule(s) {
			add(name, "%s", p)
		}
		if s.Has("timeout") && s.Duration("timeout", 0) < 0 {
			add(name, "timeout must not be negative")
		}
		if s.Has("max_retries") && s.Int("max_retries", 0) < 0 {
			add(name, "max_retries must not be negative")
		}
		if s.Has("rate_limit") && s.Int("rate_limit", 0) < 0 {
			add(name, "rate_limit must not be negative")
		}
	}

	routing, _ := c.Get(PathLevelRouting, nil).(map[string]any)
	levels := make([]string, 0, len(routing))
	for level := range routing {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	for _, level := range levels {
		if _, err := event.ParseSeverity(level); err != nil {
			add(RoutingKey, "unknown level %q", level)
			continue
		}
		for _, name := range toStringSlice(routing[level]) {
			switch {
			case !c.Has(PathChannels + "." + name):
				add(RoutingKey, "%s routes to unconfigured channel %q", level, name)
			case !c.IsEnabled(name):
				add(RoutingKey, "%s routes to disabled channel %q", level, name)
			}
		}
	}
	return problems
}

func validateConsole(s ChannelSettings) []string {
	switch strings.ToLower(s.String("stream", "stderr")) {
	case "stderr", "stdout":
		return nil
	default:
		return []string{"stream must be stdout or stderr"}
	}
}

func validateTelegram(s ChannelSettings) []string {
	var out []string
	token := s.String("bot_token", "")
	switch {
	case token == "":
		out = append(out, "bot_token is required")
	case !botTokenPattern.MatchString(token):
		out = append(out, "bot_token must look like <id>:<secret>")
	}
	if s.String("chat_id", "") == "" {
		out = append(out, "chat_id is required")
	}
	return out
}

func validateSlack(s ChannelSettings) []string {
	return requireURL(s, "webhook_url")
}

func validateWebhook(s ChannelSettings) []string {
	out := requireURL(s, "url")

	switch strings.ToUpper(s.String("method", "POST")) {
	case "GET", "POST", "PUT", "PATCH":
	default:
		out = append(out, "method must be one of GET, POST, PUT, PATCH")
	}
	switch strings.ToLower(s.String("payload_format", "json")) {
	case "json", "slack", "teams":
	default:
		out = append(out, "payload_format must be one of json, slack, teams")
	}

	switch strings.ToLower(s.String("auth_type", "none")) {
	case "none", "":
	case "basic":
		if s.String("username", "") == "" || s.String("password", "") == "" {
			out = append(out, "basic auth requires username and password")
		}
	case "bearer":
		if s.String("token", "") == "" {
			out = append(out, "bearer auth requires token")
		}
	case "custom":
		if s.String("auth_header", "") == "" || s.String("token", "") == "" {
			out = append(out, "custom auth requires auth_header and token")
		}
	default:
		out = append(out, "auth_type must be one of none, basic, bearer, custom")
	}
	return out
}

func validateDiscord(s ChannelSettings) []string {
	out := requireURL(s, "webhook_url")
	if len(out) == 0 && !discordPattern.MatchString(s.String("webhook_url", "")) {
		out = append(out, "webhook_url must contain /webhooks/<id>/<token>")
	}
	return out
}

func validateRedis(s ChannelSettings) []string {
	var out []string
	if s.String("addr", "") == "" {
		out = append(out, "addr is required")
	}
	switch strings.ToLower(s.String("mode", "publish")) {
	case "publish", "stream":
	default:
		out = append(out, "mode must be publish or stream")
	}
	return out
}

func requireURL(s ChannelSettings, option string) []string {
	raw := s.String(option, "")
	if raw == "" {
		return []string{option + " is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []string{option + " must be an http(s) URL"}
	}
	return nil
}
