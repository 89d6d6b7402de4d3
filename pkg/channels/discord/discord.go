// Package discord delivers events to a Discord webhook.
package discord

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/errica/config"
	"github.com/kart-io/errica/pkg/errica/errors"
	"github.com/kart-io/errica/pkg/errica/event"
	"github.com/kart-io/errica/pkg/logger"
)

// Type is the channel type name.
const Type = "discord"

// Discord embed limits.
const (
	maxFields     = 25
	maxFieldValue = 1024
	maxDesc       = 4096
)

var webhookPattern = regexp.MustCompile(`/webhooks/(\d+)/([^/?]+)`)

var levelColors = map[event.Severity]int{
	event.Debug:    0x9E9E9E,
	event.Info:     0x2196F3,
	event.Warning:  0xFF9800,
	event.Error:    0xF44336,
	event.Critical: 0x8B0000,
}

// WebhookClient is the subset of *discordgo.Session the channel uses.
type WebhookClient interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	WebhookWithToken(webhookID, token string, options ...discordgo.RequestOption) (*discordgo.Webhook, error)
}

// Channel posts events as embeds.
type Channel struct {
	name      string
	webhookID string
	token     string
	username  string
	avatarURL string
	detailed  bool
	client    WebhookClient
	logger    logger.Logger
}

// Option configures a discord channel.
type Option func(*Channel)

// WithClient replaces the discord client.
func WithClient(c WebhookClient) Option {
	return func(ch *Channel) { ch.client = c }
}

// New builds a discord channel. Required option: webhook_url of the form
// https://discord.com/api/webhooks/<id>/<token>. Optional: username,
// avatar_url, show_detailed_exceptions, timeout.
func New(name string, settings config.ChannelSettings, log logger.Logger, opts ...Option) (*Channel, error) {
	m := webhookPattern.FindStringSubmatch(settings.String("webhook_url", ""))
	if m == nil {
		return nil, errors.New(errors.ErrMissingConfig, "webhook_url with /webhooks/<id>/<token> is required").WithChannel(name)
	}
	c := &Channel{
		name:      name,
		webhookID: m[1],
		token:     m[2],
		username:  settings.String("username", "errica"),
		avatarURL: settings.String("avatar_url", ""),
		detailed:  settings.Bool("show_detailed_exceptions", false),
		logger:    logger.OrDiscard(log),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		s, err := discordgo.New("")
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrChannelInit, "create discord session").WithChannel(name)
		}
		s.Client = &http.Client{Timeout: settings.Duration("timeout", config.DefaultTimeout)}
		s.ShouldRetryOnRateLimit = false
		c.client = s
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

// Send executes the webhook with one embed.
func (c *Channel) Send(ctx context.Context, ev *event.Event) channel.Result {
	start := time.Now()
	params := &discordgo.WebhookParams{
		Username:  c.username,
		AvatarURL: c.avatarURL,
		Embeds:    []*discordgo.MessageEmbed{c.embed(ev)},
	}
	msg, err := c.client.WebhookExecute(c.webhookID, c.token, true, params, discordgo.WithContext(ctx))
	if err != nil {
		err = restError(err)
		c.logger.Warn("discord send failed", "channel", c.name, "error", err)
		return channel.Fail(err, "discord send failed").WithLatency(time.Since(start))
	}
	text := "posted to discord"
	if msg != nil && msg.ID != "" {
		text = fmt.Sprintf("posted to discord (message %s)", msg.ID)
	}
	return channel.OK(text).WithLatency(time.Since(start))
}

// HealthCheck fetches the webhook by id and token.
func (c *Channel) HealthCheck(ctx context.Context) channel.Result {
	start := time.Now()
	wh, err := c.client.WebhookWithToken(c.webhookID, c.token, discordgo.WithContext(ctx))
	if err != nil {
		return channel.Fail(restError(err), "discord health check failed").WithLatency(time.Since(start))
	}
	return channel.OK(fmt.Sprintf("webhook %q reachable", wh.Name)).WithLatency(time.Since(start))
}

// Close is a no-op; webhook calls hold no gateway connection.
func (c *Channel) Close() error { return nil }

func (c *Channel) embed(ev *event.Event) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:     clip(ev.Title(), 256),
		Color:     levelColors[ev.Level],
		Timestamp: ev.Timestamp.Format(time.RFC3339),
	}
	if app := channel.AppLine(ev); app != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: app}
	}
	if ev.Task != nil {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "task", Value: ev.Task.Name, Inline: true})
	}
	for _, f := range ev.Context.All() {
		if len(e.Fields) == maxFields {
			break
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   clip(f.Key, 256),
			Value:  clip(channel.FormatValue(f.Value), maxFieldValue),
			Inline: true,
		})
	}
	if ev.HasException() {
		desc := fmt.Sprintf("**%s**: %s", ev.Exception.Kind, ev.Exception.Message)
		if c.detailed && ev.Exception.Trace != "" {
			desc += "\n```\n" + ev.Exception.Trace + "```"
		}
		e.Description = clip(desc, maxDesc)
	}
	return e
}

func restError(err error) error {
	var re *discordgo.RESTError
	if !stderrors.As(err, &re) || re.Response == nil {
		return err
	}
	code := errors.ErrChannelRejected
	switch re.Response.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		code = errors.ErrChannelAuth
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = errors.ErrChannelTimeout
	}
	return errors.Wrap(err, code, "discord webhook")
}

func clip(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}
