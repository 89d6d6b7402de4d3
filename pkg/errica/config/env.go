package config

import (
	"os"
	"strings"
)

// Recognized environment variables.
const (
	EnvAppName          = "APP_NAME"
	EnvAppVersion       = "APP_VERSION"
	EnvEnvironment      = "ENVIRONMENT"
	EnvTelegramBotToken = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID   = "TELEGRAM_CHAT_ID"
	EnvSlackWebhookURL  = "SLACK_WEBHOOK_URL"
	EnvWebhookURL       = "WEBHOOK_URL"
	EnvDiscordWebhook   = "DISCORD_WEBHOOK_URL"
	EnvRedisAddr        = "REDIS_ADDR"
	EnvRedisChannel     = "REDIS_CHANNEL"
	EnvLogLevel         = "ERRICA_LOG_LEVEL"
	EnvOTLPEndpoint     = "ERRICA_OTLP_ENDPOINT"
	EnvConfigFile       = "ERRICA_CONFIG_FILE"
)

// FromEnv returns the defaults overlaid with the YAML file named by
// ERRICA_CONFIG_FILE (if any) and then with the recognized environment
// variables. Explicit Set calls made afterwards win over all of them.
// A file that cannot be read is recorded under config_file.error and otherwise
// ignored.
func FromEnv() *Config {
	return fromLookup(os.LookupEnv)
}

// ApplyEnv overlays the recognized environment variables onto c. The config
// file variable is not consulted.
func (c *Config) ApplyEnv() {
	applyEnv(c, os.LookupEnv)
}

func fromLookup(lookupEnv func(string) (string, bool)) *Config {
	cfg := New()
	if v, _ := lookupEnv(EnvConfigFile); strings.TrimSpace(v) != "" {
		if err := cfg.MergeFile(strings.TrimSpace(v)); err != nil {
			cfg.Set("config_file.error", err.Error())
		}
	}
	applyEnv(cfg, lookupEnv)
	return cfg
}

func applyEnv(cfg *Config, lookupEnv func(string) (string, bool)) {
	env := func(key string) string {
		v, _ := lookupEnv(key)
		return strings.TrimSpace(v)
	}

	if v := env(EnvAppName); v != "" {
		cfg.Set(PathAppName, v)
	}
	if v := env(EnvAppVersion); v != "" {
		cfg.Set(PathAppVersion, v)
	}
	if v := env(EnvEnvironment); v != "" {
		cfg.Set(PathAppEnvironment, v)
	}
	if v := env(EnvLogLevel); v != "" {
		cfg.Set(PathLogLevel, strings.ToLower(v))
	}
	if v := env(EnvOTLPEndpoint); v != "" {
		cfg.Set(PathTelemetry+".enabled", true)
		cfg.Set(PathTelemetry+".endpoint", v)
	}

	var alerting []string

	token, chatID := env(EnvTelegramBotToken), env(EnvTelegramChatID)
	if token != "" && chatID != "" {
		cfg.Set(ChannelPath("telegram", "enabled"), true)
		cfg.Set(ChannelPath("telegram", "bot_token"), token)
		cfg.Set(ChannelPath("telegram", "chat_id"), chatID)
		alerting = append(alerting, "telegram")
	}
	if v := env(EnvSlackWebhookURL); v != "" {
		cfg.Set(ChannelPath("slack", "enabled"), true)
		cfg.Set(ChannelPath("slack", "webhook_url"), v)
		alerting = append(alerting, "slack")
	}
	if v := env(EnvWebhookURL); v != "" {
		cfg.Set(ChannelPath("webhook", "enabled"), true)
		cfg.Set(ChannelPath("webhook", "url"), v)
		alerting = append(alerting, "webhook")
	}
	if v := env(EnvDiscordWebhook); v != "" {
		cfg.Set(ChannelPath("discord", "enabled"), true)
		cfg.Set(ChannelPath("discord", "webhook_url"), v)
		alerting = append(alerting, "discord")
	}
	if v := env(EnvRedisAddr); v != "" {
		cfg.Set(ChannelPath("redis", "enabled"), true)
		cfg.Set(ChannelPath("redis", "addr"), v)
		if ch := env(EnvRedisChannel); ch != "" {
			cfg.Set(ChannelPath("redis", "channel"), ch)
		}
		alerting = append(alerting, "redis")
	}

	for _, level := range []string{"ERROR", "CRITICAL"} {
		cfg.Set(RoutingPath(level), appendUnique(cfg.StringSlice(RoutingPath(level)), alerting...))
	}
}

func appendUnique(list []string, names ...string) []string {
	seen := make(map[string]bool, len(list)+len(names))
	out := make([]string, 0, len(list)+len(names))
	for _, n := range append(list, names...) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
