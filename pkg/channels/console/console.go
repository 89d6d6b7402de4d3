// Package console writes events as text to stderr or stdout.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/errica/config"
	"github.com/kart-io/errica/pkg/errica/errors"
	"github.com/kart-io/errica/pkg/errica/event"
	"github.com/kart-io/errica/pkg/logger"
)

// Type is the channel type name.
const Type = "console"

const ansiReset = "\033[0m"

var levelColors = map[event.Severity]string{
	event.Debug:    "\033[90m",
	event.Info:     "\033[36m",
	event.Warning:  "\033[33m",
	event.Error:    "\033[31m",
	event.Critical: "\033[1;31m",
}

// Channel renders events to a writer. Writes are serialized so concurrent
// events never interleave.
type Channel struct {
	name      string
	useColors bool
	detailed  bool
	logger    logger.Logger

	mu sync.Mutex
	w  io.Writer
}

// Option configures a console channel.
type Option func(*Channel)

// WithWriter replaces the output stream.
func WithWriter(w io.Writer) Option {
	return func(c *Channel) { c.w = w }
}

// New builds a console channel from settings. Recognized options:
// stream (stderr|stdout), use_colors, show_detailed_exceptions.
func New(name string, settings config.ChannelSettings, log logger.Logger, opts ...Option) (*Channel, error) {
	c := &Channel{
		name:      name,
		useColors: settings.Bool("use_colors", false),
		detailed:  settings.Bool("show_detailed_exceptions", false),
		logger:    logger.OrDiscard(log),
		w:         os.Stderr,
	}
	switch strings.ToLower(settings.String("stream", "stderr")) {
	case "stderr":
	case "stdout":
		c.w = os.Stdout
	default:
		return nil, errors.Newf(errors.ErrInvalidConfig, "unknown stream %q", settings.String("stream", "")).WithChannel(name)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Creator adapts New to channel.Creator.
func Creator(name string, settings config.ChannelSettings, log logger.Logger) (channel.Channel, error) {
	c, err := New(name, settings, log)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Name implements channel.Channel.
func (c *Channel) Name() string { return c.name }

// Send writes the rendered event followed by a blank line.
func (c *Channel) Send(_ context.Context, ev *event.Event) channel.Result {
	start := time.Now()
	text := channel.Render(ev, channel.RenderOptions{Trace: c.detailed})
	if c.useColors {
		color := levelColors[ev.Level]
		title, rest, _ := strings.Cut(text, "\n")
		text = color + title + ansiReset
		if rest != "" {
			text += "\n" + rest
		}
	}

	c.mu.Lock()
	_, err := fmt.Fprintf(c.w, "%s\n\n", text)
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("console write failed", "channel", c.name, "error", err)
		return channel.Fail(err, "console write failed").WithLatency(time.Since(start))
	}
	return channel.OK("written to console").WithLatency(time.Since(start))
}

// HealthCheck always succeeds; the process streams are assumed writable.
func (c *Channel) HealthCheck(context.Context) channel.Result {
	return channel.OK("console available")
}

// Close is a no-op; the process streams are not owned by the channel.
func (c *Channel) Close() error { return nil }
