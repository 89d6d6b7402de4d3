package config

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/kart-io/errica/pkg/logger"
)

// LoadFile returns the defaults overlaid with the YAML document at path.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := cfg.MergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeFile deep-merges the YAML document at path into c. On error c is left
// unchanged.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	return c.MergeYAML(data)
}

// MergeYAML deep-merges a YAML document into c. On error c is left unchanged.
func (c *Config) MergeYAML(data []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	normalized, _ := copyValue(doc).(map[string]any)
	c.Merge(normalized)
	return nil
}

// WatchOption configures Watch.
type WatchOption func(*watchOptions)

type watchOptions struct {
	base     func() *Config
	overlays []func(*Config)
}

// WithBase sets the tree a reload starts from. The default is New.
func WithBase(base func() *Config) WatchOption {
	return func(o *watchOptions) {
		if base != nil {
			o.base = base
		}
	}
}

// WithOverlay registers fn to run on every reloaded tree after the file is
// merged, e.g. to re-apply environment variables or command-line overrides.
func WithOverlay(fn func(*Config)) WatchOption {
	return func(o *watchOptions) {
		if fn != nil {
			o.overlays = append(o.overlays, fn)
		}
	}
}

// Watch reloads cfg every time the YAML file at path is written and then
// calls onReload with the error of the reload (nil on success). It runs until
// ctx is cancelled. A reload rebuilds the whole tree from the base, the file
// and the overlays, so keys removed from the file disappear. A failed reload
// keeps the previous state.
func Watch(ctx context.Context, path string, cfg *Config, log logger.Logger, onReload func(error), opts ...WatchOption) error {
	o := watchOptions{base: New}
	for _, opt := range opts {
		opt(&o)
	}
	log = logger.OrDiscard(log)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	log.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// editors often save by rename, which shows up as Create
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			err := cfg.reload(path, o)
			if err != nil {
				log.Error("config: reload failed, keeping previous config", "path", path, "error", err)
			} else {
				log.Info("config: reloaded", "path", path)
			}
			if onReload != nil {
				onReload(err)
			}
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("config: watcher error", "error", err)
		}
	}
}

func (c *Config) reload(path string, o watchOptions) error {
	next := o.base()
	if err := next.MergeFile(path); err != nil {
		return err
	}
	for _, fn := range o.overlays {
		fn(next)
	}
	c.Replace(next.Snapshot())
	return nil
}
