package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kart-io/errica"
	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/errica/config"
	"github.com/kart-io/errica/pkg/errica/event"
	"github.com/kart-io/errica/pkg/logger"
)

// =============================================================================
// Helpers
// =============================================================================

// loadConfig reads --config (or the environment) and applies --set overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	var cfg *config.Config
	if flags.configPath != "" {
		loaded, err := config.LoadFile(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.FromEnv()
		if msg := cfg.String("config_file.error", ""); msg != "" {
			return nil, fmt.Errorf("config file: %s", msg)
		}
	}

	if err := applySets(cfg, flags.sets); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applySets applies --set path=value overrides. Values are parsed as YAML.
func applySets(cfg *config.Config, sets []string) error {
	for _, kv := range sets {
		path, raw, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(path) == "" {
			return fmt.Errorf("invalid --set %q, expected path=value", kv)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		cfg.Set(strings.TrimSpace(path), value)
	}
	return nil
}

func newLogger(cmd *cobra.Command, flags *globalFlags, cfg *config.Config) logger.Logger {
	name := flags.logLevel
	if name == "" {
		name = cfg.String(config.PathLogLevel, "warn")
	}
	level, _ := logger.ParseLevel(name)
	return logger.NewSlogLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)), level)
}

// setup builds a monitor from the flags. The caller must shut the manager down.
func setup(cmd *cobra.Command, flags *globalFlags) (*errica.Manager, *errica.Handler, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, err
	}
	return errica.CreateMonitor(cfg, errica.WithLogger(newLogger(cmd, flags, cfg)))
}

func printResults(out io.Writer, results map[string]channel.Result) (failed int) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		res := results[name]
		if !res.Success {
			failed++
		}
		fmt.Fprintf(out, "  %-12s %s\n", name, res)
	}
	return failed
}

func parseFields(pairs []string) (event.Fields, error) {
	kv := make([]any, 0, 2*len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return event.Fields{}, fmt.Errorf("invalid --field %q, expected key=value", p)
		}
		kv = append(kv, k, v)
	}
	return event.F(kv...), nil
}

// =============================================================================
// Handlers
// =============================================================================

func runValidate(cmd *cobra.Command, flags *globalFlags, watch bool) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	problems := report(out, cfg)
	if !watch {
		if problems > 0 {
			return fmt.Errorf("%d configuration problem(s)", problems)
		}
		return nil
	}

	if flags.configPath == "" {
		return fmt.Errorf("--watch requires --config")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return config.Watch(ctx, flags.configPath, cfg, newLogger(cmd, flags, cfg), func(err error) {
		if err != nil {
			fmt.Fprintf(out, "reload failed: %v\n", err)
			return
		}
		report(out, cfg)
	}, config.WithOverlay(func(c *config.Config) { _ = applySets(c, flags.sets) }))
}

// report prints the validation problems of cfg and returns their number.
func report(out io.Writer, cfg *config.Config) int {
	problems := cfg.Validate()
	if len(problems) == 0 {
		fmt.Fprintf(out, "Configuration OK (%d enabled channel(s): %s)\n",
			len(cfg.EnabledChannels()), strings.Join(cfg.EnabledChannels(), ", "))
		return 0
	}

	keys := make([]string, 0, len(problems))
	for k := range problems {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n := 0
	for _, k := range keys {
		fmt.Fprintf(out, "%s:\n", k)
		for _, p := range problems[k] {
			fmt.Fprintf(out, "  - %s\n", p)
			n++
		}
	}
	return n
}

func runHealth(cmd *cobra.Command, flags *globalFlags, asJSON bool) error {
	m, _, err := setup(cmd, flags)
	if err != nil {
		return err
	}
	defer m.Shutdown()

	results := m.HealthCheck(cmd.Context())
	out := cmd.OutOrStdout()
	failed := 0
	if asJSON {
		for _, r := range results {
			if !r.Success {
				failed++
			}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, "Channel health:")
		failed = printResults(out, results)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d channel(s) unhealthy", failed, len(results))
	}
	return nil
}

func runSend(cmd *cobra.Command, flags *globalFlags, message, levelName string, channels, fieldPairs []string) error {
	level, err := event.ParseSeverity(levelName)
	if err != nil {
		return err
	}
	fields, err := parseFields(fieldPairs)
	if err != nil {
		return err
	}
	m, h, err := setup(cmd, flags)
	if err != nil {
		return err
	}
	defer m.Shutdown()

	var opts []errica.CaptureOption
	if len(channels) > 0 {
		opts = append(opts, errica.WithChannels(channels...))
	}
	results := h.Capture(cmd.Context(), message, level, nil, fields, opts...)

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No enabled channel targeted.")
		return nil
	}
	fmt.Fprintf(out, "Sent %s event:\n", level)
	if failed := printResults(out, results); failed > 0 {
		return fmt.Errorf("%d of %d deliveries failed", failed, len(results))
	}
	return nil
}

func runTest(cmd *cobra.Command, flags *globalFlags) error {
	m, h, err := setup(cmd, flags)
	if err != nil {
		return err
	}
	errica.SetGlobalManager(m, h)
	defer errica.Shutdown()

	if !errica.TestMonitoring(context.WithoutCancel(cmd.Context())) {
		return fmt.Errorf("monitoring test failed; run 'errica health' for details")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Monitoring test passed on %s\n", strings.Join(m.EnabledChannels(), ", "))
	return nil
}

func runStats(cmd *cobra.Command, flags *globalFlags) error {
	m, _, err := setup(cmd, flags)
	if err != nil {
		return err
	}
	defer m.Shutdown()

	stats := m.Stats()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Enabled channels: %s\n", strings.Join(stats.EnabledChannels, ", "))
	if len(stats.InitFailures) == 0 {
		return nil
	}
	names := make([]string, 0, len(stats.InitFailures))
	for name := range stats.InitFailures {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(out, "Failed to construct:")
	for _, name := range names {
		fmt.Fprintf(out, "  %-12s %s\n", name, stats.InitFailures[name])
	}
	return nil
}

// secretOptions are redacted by the config command.
var secretOptions = []string{"token", "password", "secret", "webhook_url", "api_key"}

func runConfig(cmd *cobra.Command, flags *globalFlags, showSecrets bool) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	tree := cfg.Snapshot()
	if !showSecrets {
		redact(tree)
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(tree); err != nil {
		return err
	}
	return enc.Close()
}

func redact(m map[string]any) {
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			redact(sub)
			continue
		}
		lower := strings.ToLower(k)
		for _, s := range secretOptions {
			if strings.Contains(lower, s) {
				if str, ok := v.(string); ok && str != "" {
					m[k] = "********"
				}
				break
			}
		}
	}
}
