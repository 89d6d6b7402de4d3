// Package redis publishes events to Redis pub/sub or appends them to a stream.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/errica/config"
	"github.com/kart-io/errica/pkg/errica/errors"
	"github.com/kart-io/errica/pkg/errica/event"
	"github.com/kart-io/errica/pkg/logger"
)

// Type is the channel type name.
const Type = "redis"

// Delivery modes.
const (
	ModePublish = "publish"
	ModeStream  = "stream"
)

// Client is the subset of the go-redis client the channel uses.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Channel writes JSON-encoded events to Redis.
type Channel struct {
	name   string
	mode   string
	target string
	maxLen int64
	client Client
	logger logger.Logger
}

// Option configures a redis channel.
type Option func(*Channel)

// WithClient replaces the redis client.
func WithClient(c Client) Option {
	return func(ch *Channel) { ch.client = c }
}

// New builds a redis channel. Required option: addr. Optional: password, db,
// mode (publish|stream), channel (pub/sub name), stream, max_len, timeout.
func New(name string, settings config.ChannelSettings, log logger.Logger, opts ...Option) (*Channel, error) {
	c := &Channel{
		name:   name,
		mode:   strings.ToLower(settings.String("mode", ModePublish)),
		maxLen: int64(settings.Int("max_len", 0)),
		logger: logger.OrDiscard(log),
	}
	switch c.mode {
	case ModePublish:
		c.target = settings.String("channel", "errica:events")
	case ModeStream:
		c.target = settings.String("stream", "errica:events")
	default:
		return nil, errors.Newf(errors.ErrInvalidConfig, "unsupported mode %q", c.mode).WithChannel(name)
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		addr := settings.String("addr", "")
		if addr == "" {
			return nil, errors.New(errors.ErrMissingConfig, "addr is required").WithChannel(name)
		}
		timeout := settings.Duration("timeout", 5*time.Second)
		c.client = redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     settings.String("password", ""),
			DB:           settings.Int("db", 0),
			DialTimeout:  timeout,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		})
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

// Send publishes the event or appends it to the stream.
func (c *Channel) Send(ctx context.Context, ev *event.Event) channel.Result {
	start := time.Now()
	data, err := json.Marshal(ev)
	if err != nil {
		return channel.Fail(err, "encode event").WithLatency(time.Since(start))
	}

	var msg string
	switch c.mode {
	case ModeStream:
		args := &redis.XAddArgs{
			Stream: c.target,
			Values: map[string]any{
				"id":    ev.ID,
				"level": ev.Level.String(),
				"event": string(data),
			},
		}
		if c.maxLen > 0 {
			args.MaxLen = c.maxLen
			args.Approx = true
		}
		var id string
		id, err = c.client.XAdd(ctx, args).Result()
		msg = fmt.Sprintf("appended to stream %s as %s", c.target, id)
	default:
		var receivers int64
		receivers, err = c.client.Publish(ctx, c.target, data).Result()
		msg = fmt.Sprintf("published to %s (%d receivers)", c.target, receivers)
	}
	if err != nil {
		c.logger.Warn("redis send failed", "channel", c.name, "mode", c.mode, "error", err)
		return channel.Fail(err, "redis send failed").WithLatency(time.Since(start))
	}
	return channel.OK(msg).WithLatency(time.Since(start))
}

// HealthCheck pings the server.
func (c *Channel) HealthCheck(ctx context.Context) channel.Result {
	start := time.Now()
	if err := c.client.Ping(ctx).Err(); err != nil {
		return channel.Fail(err, "redis health check failed").WithLatency(time.Since(start))
	}
	return channel.OK("redis reachable").WithLatency(time.Since(start))
}

// Close releases the connection pool.
func (c *Channel) Close() error {
	return c.client.Close()
}
