// Package telegram delivers events through a Telegram bot.
package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/errica/config"
	"github.com/kart-io/errica/pkg/errica/errors"
	"github.com/kart-io/errica/pkg/errica/event"
	"github.com/kart-io/errica/pkg/logger"
)

// Type is the channel type name.
const Type = "telegram"

// maxMessageLen is the Telegram limit for one text message.
const maxMessageLen = 4096

var levelIcons = map[event.Severity]string{
	event.Debug:    "🔍",
	event.Info:     "ℹ️",
	event.Warning:  "⚠️",
	event.Error:    "❌",
	event.Critical: "🚨",
}

// BotClient is the subset of *bot.Bot the channel uses.
type BotClient interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	GetMe(ctx context.Context) (*models.User, error)
}

// Channel sends rendered events to one chat.
type Channel struct {
	name      string
	chatID    string
	parseMode models.ParseMode
	silent    bool
	detailed  bool
	client    BotClient
	logger    logger.Logger
}

// Option configures a telegram channel.
type Option func(*Channel)

// WithClient replaces the bot client.
func WithClient(c BotClient) Option {
	return func(ch *Channel) { ch.client = c }
}

// New builds a telegram channel. Required options: bot_token, chat_id.
// Optional: parse_mode (HTML|MarkdownV2|none), api_url, disable_notification,
// show_detailed_exceptions.
func New(name string, settings config.ChannelSettings, log logger.Logger, opts ...Option) (*Channel, error) {
	token := settings.String("bot_token", "")
	chatID := settings.String("chat_id", "")
	if chatID == "" {
		return nil, errors.New(errors.ErrMissingConfig, "chat_id is required").WithChannel(name)
	}

	c := &Channel{
		name:     name,
		chatID:   chatID,
		silent:   settings.Bool("disable_notification", false),
		detailed: settings.Bool("show_detailed_exceptions", true),
		logger:   logger.OrDiscard(log),
	}
	switch mode := settings.String("parse_mode", "HTML"); strings.ToLower(mode) {
	case "html":
		c.parseMode = models.ParseModeHTML
	case "markdownv2":
		c.parseMode = models.ParseModeMarkdown
	case "none", "":
	default:
		return nil, errors.Newf(errors.ErrInvalidConfig, "unsupported parse_mode %q", mode).WithChannel(name)
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		if token == "" {
			return nil, errors.New(errors.ErrMissingConfig, "bot_token is required").WithChannel(name)
		}
		botOpts := []bot.Option{bot.WithSkipGetMe()}
		if apiURL := settings.String("api_url", ""); apiURL != "" {
			botOpts = append(botOpts, bot.WithServerURL(apiURL))
		}
		b, err := bot.New(token, botOpts...)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrChannelInit, "create telegram bot").WithChannel(name)
		}
		c.client = b
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

// Send posts the event to the configured chat.
func (c *Channel) Send(ctx context.Context, ev *event.Event) channel.Result {
	start := time.Now()
	params := &bot.SendMessageParams{
		ChatID:              c.chatID,
		Text:                c.format(ev),
		ParseMode:           c.parseMode,
		DisableNotification: c.silent,
	}

	msg, err := c.client.SendMessage(ctx, params)
	if err != nil {
		c.logger.Warn("telegram send failed", "channel", c.name, "chat_id", c.chatID, "error", err)
		return channel.Fail(err, "telegram send failed").WithLatency(time.Since(start))
	}
	id := 0
	if msg != nil {
		id = msg.ID
	}
	return channel.OK(fmt.Sprintf("sent to chat %s (message %d)", c.chatID, id)).WithLatency(time.Since(start))
}

// HealthCheck verifies the token with getMe.
func (c *Channel) HealthCheck(ctx context.Context) channel.Result {
	start := time.Now()
	me, err := c.client.GetMe(ctx)
	if err != nil {
		return channel.Fail(err, "telegram health check failed").WithLatency(time.Since(start))
	}
	return channel.OK("bot @" + me.Username + " reachable").WithLatency(time.Since(start))
}

// Close is a no-op; the bot client holds no long-lived connection.
func (c *Channel) Close() error { return nil }

func (c *Channel) format(ev *event.Event) string {
	opts := channel.RenderOptions{Trace: c.detailed, MaxTrace: 2000}
	switch c.parseMode {
	case models.ParseModeHTML:
		opts.Escape = html.EscapeString
	case models.ParseModeMarkdown:
		opts.Escape = bot.EscapeMarkdown
	}
	text := channel.Render(ev, opts)
	if c.parseMode == models.ParseModeHTML {
		title, rest, _ := strings.Cut(text, "\n")
		text = "<b>" + title + "</b>"
		if rest != "" {
			text += "\n" + rest
		}
	}
	text = levelIcons[ev.Level] + " " + text

	if r := []rune(text); len(r) > maxMessageLen {
		text = string(r[:maxMessageLen-3]) + "..."
	}
	return text
}
