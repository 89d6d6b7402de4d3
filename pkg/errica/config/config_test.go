package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg := New()

	name, version, env := cfg.App()
	assert.Equal(t, "errica", name)
	assert.Equal(t, "0.0.0", version)
	assert.Equal(t, "development", env)
	assert.Equal(t, []string{"console"}, cfg.EnabledChannels())
	assert.Equal(t, []string{"console"}, cfg.StringSlice(RoutingPath("error")))
	assert.False(t, cfg.Has(RoutingPath("DEBUG")))
	assert.Equal(t, DefaultTimeout, cfg.Duration(PathManagerTimeout, 0))
	assert.Empty(t, cfg.Validate())
}

func TestConfig_SetGet(t *testing.T) {
	cfg := NewEmpty()

	cfg.Set("channels.slack.webhook_url", "https://hooks.slack.com/services/x")
	assert.Equal(t, "https://hooks.slack.com/services/x", cfg.Get("channels.slack.webhook_url", nil))
	assert.Equal(t, "fallback", cfg.Get("channels.slack.missing", "fallback"))
	assert.Equal(t, "fallback", cfg.Get("nope.nothing.here", "fallback"))

	// a scalar on the way is replaced by a map
	cfg.Set("app", "scalar")
	cfg.Set("app.name", "demo")
	assert.Equal(t, "demo", cfg.String(PathAppName, ""))

	// empty path is ignored
	cfg.Set("", 1)
	cfg.Set(" . ", 1)
	assert.Equal(t, []string{"slack"}, cfg.ChannelNames())
}

func TestConfig_ValuesAreCopied(t *testing.T) {
	cfg := NewEmpty()
	routes := []string{"console", "slack"}
	cfg.Set(RoutingPath("ERROR"), routes)
	routes[0] = "mutated"

	assert.Equal(t, []string{"console", "slack"}, cfg.StringSlice(RoutingPath("ERROR")))

	got := cfg.Get(RoutingPath("ERROR"), nil).([]string)
	got[1] = "mutated"
	assert.Equal(t, []string{"console", "slack"}, cfg.StringSlice(RoutingPath("ERROR")))
}

func TestConfig_Delete(t *testing.T) {
	cfg := New()
	cfg.Delete(RoutingPath("WARNING"))
	assert.False(t, cfg.Has(RoutingPath("WARNING")))
	assert.True(t, cfg.Has(RoutingPath("INFO")))

	cfg.Delete("does.not.exist")
	cfg.Delete("app.name.deeper")
	assert.True(t, cfg.Has(PathAppName))
}

func TestConfig_TypedGetters(t *testing.T) {
	cfg := NewEmpty()
	cfg.Set("a.dur_str", "250ms")
	cfg.Set("a.dur_num", 2)
	cfg.Set("a.dur_float", "1.5")
	cfg.Set("a.bool_str", "yes")
	cfg.Set("a.int_str", "7")
	cfg.Set("a.list_str", "console, slack,,webhook")
	cfg.Set("a.list_any", []any{"x", 1})

	assert.Equal(t, 250*time.Millisecond, cfg.Duration("a.dur_str", 0))
	assert.Equal(t, 2*time.Second, cfg.Duration("a.dur_num", 0))
	assert.Equal(t, 1500*time.Millisecond, cfg.Duration("a.dur_float", 0))
	assert.Equal(t, time.Minute, cfg.Duration("a.bool_str", time.Minute))
	assert.True(t, cfg.Bool("a.bool_str", false))
	assert.Equal(t, 7, cfg.Int("a.int_str", 0))
	assert.Equal(t, 3, cfg.Int("a.list_str", 3))
	assert.Equal(t, []string{"console", "slack", "webhook"}, cfg.StringSlice("a.list_str"))
	assert.Equal(t, []string{"x", "1"}, cfg.StringSlice("a.list_any"))
	assert.Nil(t, cfg.StringSlice("a.missing"))

	cfg.Set("a.ratio", "0.25")
	cfg.Set("a.headers", map[string]string{"X-Key": "v"})
	assert.Equal(t, 0.25, cfg.Float("a.ratio", 1))
	assert.Equal(t, 1.0, cfg.Float("a.missing", 1))
	assert.Equal(t, map[string]string{"X-Key": "v"}, cfg.StringMap("a.headers"))
	assert.Equal(t, map[string]string{}, cfg.StringMap("a.missing"))
}

func TestConfig_ChannelSettings(t *testing.T) {
	cfg := NewEmpty()
	cfg.Set("channels.alerts.type", "Webhook")
	cfg.Set("channels.alerts.enabled", true)
	cfg.Set("channels.alerts.headers", map[string]any{"X-Team": "ops", "X-Retry": 3})
	cfg.Set("channels.off.enabled", false)

	s := cfg.Channel("alerts")
	assert.Equal(t, "alerts", s.Name())
	assert.Equal(t, "webhook", s.Type())
	assert.Equal(t, "webhook", cfg.ChannelType("alerts"))
	assert.Equal(t, "off", cfg.ChannelType("off"))
	assert.True(t, s.Enabled())
	assert.Equal(t, map[string]string{"X-Team": "ops", "X-Retry": "3"}, s.StringMap("headers"))
	assert.Equal(t, []string{"enabled", "headers", "type"}, s.Options())
	assert.Equal(t, []string{"alerts"}, cfg.EnabledChannels())
	assert.True(t, cfg.IsEnabled("alerts"))
	assert.False(t, cfg.IsEnabled("off"))

	// snapshot is detached from later writes
	cfg.Set("channels.alerts.enabled", false)
	assert.True(t, s.Enabled())
}

func TestConfig_MergeAndClone(t *testing.T) {
	cfg := New()
	cfg.Merge(map[string]any{
		"channels": map[string]any{
			"slack": map[string]any{"enabled": true, "webhook_url": "https://example.com/hook"},
		},
	})
	assert.Equal(t, []string{"console", "slack"}, cfg.EnabledChannels())

	clone := cfg.Clone()
	clone.Set("channels.slack.enabled", false)
	assert.True(t, cfg.IsEnabled("slack"))
	assert.False(t, clone.IsEnabled("slack"))
}

func TestConfig_ConcurrentAccess(t *testing.T) {
	cfg := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			cfg.Set("counters.value", i)
		}(i)
		go func() {
			defer wg.Done()
			_ = cfg.Get("counters.value", 0)
			_ = cfg.EnabledChannels()
		}()
	}
	wg.Wait()
	assert.True(t, cfg.Has("counters.value"))
}

func TestFromEnv(t *testing.T) {
	env := map[string]string{
		EnvAppName:          "billing",
		EnvAppVersion:       "2.1.0",
		EnvEnvironment:      "production",
		EnvTelegramBotToken: "123456:ABC-def",
		EnvSlackWebhookURL:  "https://hooks.slack.com/services/T/B/X",
		EnvWebhookURL:       "https://alerts.example.com/in",
		EnvLogLevel:         "DEBUG",
	}
	lookup := mapLookup(env)

	cfg := fromLookup(lookup)
	name, version, environment := cfg.App()
	assert.Equal(t, "billing", name)
	assert.Equal(t, "2.1.0", version)
	assert.Equal(t, "production", environment)
	assert.Equal(t, "debug", cfg.String(PathLogLevel, ""))

	// telegram needs both token and chat id
	assert.False(t, cfg.IsEnabled("telegram"))
	assert.Equal(t, []string{"console", "slack", "webhook"}, cfg.EnabledChannels())
	assert.Equal(t, []string{"console", "slack", "webhook"}, cfg.StringSlice(RoutingPath("ERROR")))
	assert.Equal(t, []string{"console"}, cfg.StringSlice(RoutingPath("WARNING")))

	env[EnvTelegramChatID] = "-100200"
	cfg = fromLookup(lookup)
	assert.True(t, cfg.IsEnabled("telegram"))
	assert.Equal(t, "-100200", cfg.String(ChannelPath("telegram", "chat_id"), ""))
	assert.Equal(t, []string{"console", "telegram", "slack", "webhook"}, cfg.StringSlice(RoutingPath("CRITICAL")))

	// explicit Set wins over env
	cfg.Set(PathAppName, "override")
	assert.Equal(t, "override", cfg.String(PathAppName, ""))
}

func TestFromEnv_ProcessEnvironment(t *testing.T) {
	t.Setenv(EnvAppName, "from-process")
	t.Setenv(EnvRedisAddr, "localhost:6379")
	t.Setenv(EnvRedisChannel, "alerts")

	cfg := FromEnv()
	assert.Equal(t, "from-process", cfg.String(PathAppName, ""))
	assert.Equal(t, "alerts", cfg.Channel("redis").String("channel", ""))
	assert.Contains(t, cfg.StringSlice(RoutingPath("ERROR")), "redis")
}

func TestFromEnv_ConfigFile(t *testing.T) {
	path := writeFile(t, `
app:
  name: from-file
channels:
  webhook:
    enabled: true
    url: https://file.example.com/hook
`)
	env := map[string]string{EnvConfigFile: path, EnvAppName: "from-env"}
	cfg := fromLookup(mapLookup(env))

	assert.Equal(t, "from-env", cfg.String(PathAppName, ""))
	assert.Equal(t, "https://file.example.com/hook", cfg.Channel("webhook").String("url", ""))

	env[EnvConfigFile] = filepath.Join(t.TempDir(), "missing.yaml")
	cfg = fromLookup(mapLookup(env))
	assert.NotEmpty(t, cfg.String("config_file.error", ""))
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
channels:
  slack:
    enabled: true
    webhook_url: https://hooks.slack.com/services/a
    timeout: 3s
routing:
  level_routing:
    ERROR: [console, slack]
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"console", "slack"}, cfg.StringSlice(RoutingPath("ERROR")))
	assert.Equal(t, 3*time.Second, cfg.Channel("slack").Duration("timeout", 0))
	assert.Equal(t, "errica", cfg.String(PathAppName, ""))

	_, err = LoadFile(writeFile(t, "channels: [unclosed"))
	assert.Error(t, err)
}

func TestMergeFile_KeepsStateOnError(t *testing.T) {
	cfg := New()
	err := cfg.MergeYAML([]byte("app: {name: [broken"))
	require.Error(t, err)
	assert.Equal(t, "errica", cfg.String(PathAppName, ""))
}

func TestWatch(t *testing.T) {
	path := writeFile(t, "app:\n  name: first\n")
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloads atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, cfg, nil, func(err error) {
			if err == nil {
				reloads.Add(1)
			}
		})
	}()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("app:\n  name: second\n"), 0o600)
		return reloads.Load() > 0 && cfg.String(PathAppName, "") == "second"
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_RemovedKeysDisappear(t *testing.T) {
	path := writeFile(t, "app:\n  name: first\nchannels:\n  slack:\n    enabled: true\n    webhook_url: https://hooks.example\n")
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	cfg.Set("manager.max_retries", 2)
	require.True(t, cfg.IsEnabled("slack"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloads atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, path, cfg, nil, func(err error) {
			if err == nil {
				reloads.Add(1)
			}
		}, WithOverlay(func(c *Config) { c.Set("manager.max_retries", 2) }))
	}()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("app:\n  name: second\n"), 0o600)
		return reloads.Load() > 0 && cfg.String(PathAppName, "") == "second"
	}, 5*time.Second, 100*time.Millisecond)

	assert.False(t, cfg.Has("channels.slack"))
	assert.True(t, cfg.IsEnabled("console"))
	assert.Equal(t, 2, cfg.Int("manager.max_retries", 0))

	cancel()
	<-done
}

func TestConfig_Replace(t *testing.T) {
	cfg := New()
	tree := map[string]any{"app": map[string]any{"name": "x"}}
	cfg.Replace(tree)
	tree["app"].(map[string]any)["name"] = "mutated"

	assert.Equal(t, "x", cfg.String(PathAppName, ""))
	assert.False(t, cfg.Has("channels.console"))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvSlackWebhookURL, "https://hooks.example/env")
	cfg := New()
	cfg.ApplyEnv()
	assert.True(t, cfg.IsEnabled("slack"))
	assert.Contains(t, cfg.StringSlice(RoutingPath("ERROR")), "slack")
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "errica.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}
