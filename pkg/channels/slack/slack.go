// Package slack delivers events to a Slack incoming webhook.
package slack

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/slack-go/slack"

	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/errica/config"
	"github.com/kart-io/errica/pkg/errica/errors"
	"github.com/kart-io/errica/pkg/errica/event"
	"github.com/kart-io/errica/pkg/logger"
)

// Type is the channel type name.
const Type = "slack"

var levelColors = map[event.Severity]string{
	event.Debug:    "#9e9e9e",
	event.Info:     "good",
	event.Warning:  "warning",
	event.Error:    "danger",
	event.Critical: "#8b0000",
}

// Channel posts events as colored attachments.
type Channel struct {
	name         string
	webhookURL   string
	channelName  string
	username     string
	iconEmoji    string
	threadErrors bool
	threadTS     string
	detailed     bool
	client       *http.Client
	logger       logger.Logger
}

// Option configures a slack channel.
type Option func(*Channel)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(ch *Channel) { ch.client = c }
}

// New builds a slack channel. Required option: webhook_url. Optional:
// channel, username, icon_emoji, thread_errors with thread_ts,
// show_detailed_exceptions.
func New(name string, settings config.ChannelSettings, log logger.Logger, opts ...Option) (*Channel, error) {
	url := settings.String("webhook_url", "")
	if url == "" {
		return nil, errors.New(errors.ErrMissingConfig, "webhook_url is required").WithChannel(name)
	}
	c := &Channel{
		name:         name,
		webhookURL:   url,
		channelName:  settings.String("channel", ""),
		username:     settings.String("username", "errica"),
		iconEmoji:    settings.String("icon_emoji", ""),
		threadErrors: settings.Bool("thread_errors", false),
		threadTS:     settings.String("thread_ts", ""),
		detailed:     settings.Bool("show_detailed_exceptions", false),
		client:       &http.Client{Timeout: settings.Duration("timeout", config.DefaultTimeout)},
		logger:       logger.OrDiscard(log),
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

// Send posts the event to the webhook.
func (c *Channel) Send(ctx context.Context, ev *event.Event) channel.Result {
	start := time.Now()
	err := slack.PostWebhookCustomHTTPContext(ctx, c.webhookURL, c.client, c.message(ev))
	if err != nil {
		err = statusError(err)
		c.logger.Warn("slack send failed", "channel", c.name, "error", err)
		return channel.Fail(err, "slack send failed").WithLatency(time.Since(start))
	}
	return channel.OK("posted to slack").WithLatency(time.Since(start))
}

// HealthCheck probes the webhook URL. Slack answers a bare request with 400
// (no payload), which still proves the endpoint is reachable.
func (c *Channel) HealthCheck(ctx context.Context) channel.Result {
	start := time.Now()
	err := channel.ProbeURL(ctx, c.client, c.webhookURL, nil)
	if err != nil && channel.HTTPStatus(err) != http.StatusBadRequest {
		return channel.Fail(err, "slack health check failed").WithLatency(time.Since(start))
	}
	return channel.OK("slack webhook reachable").WithLatency(time.Since(start))
}

// Close releases idle connections.
func (c *Channel) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Channel) message(ev *event.Event) *slack.WebhookMessage {
	att := slack.Attachment{
		Color:  levelColors[ev.Level],
		Title:  ev.Message,
		Footer: channel.AppLine(ev),
		Ts:     jsonNumber(ev.Timestamp),
	}
	if ev.Task != nil {
		task := ev.Task.Name
		if ev.Task.Category != "" {
			task += " (" + ev.Task.Category + ")"
		}
		att.Fields = append(att.Fields, slack.AttachmentField{Title: "Task", Value: task, Short: true})
	}
	for _, f := range ev.Context.All() {
		att.Fields = append(att.Fields, slack.AttachmentField{Title: f.Key, Value: channel.FormatValue(f.Value), Short: true})
	}
	if ev.HasException() {
		att.Text = fmt.Sprintf("*%s*: %s", ev.Exception.Kind, ev.Exception.Message)
		if c.detailed && ev.Exception.Trace != "" {
			att.Text += "\n```" + truncate(ev.Exception.Trace, 2500) + "```"
		}
	}

	msg := &slack.WebhookMessage{
		Channel:     c.channelName,
		Username:    c.username,
		IconEmoji:   c.iconEmoji,
		Text:        ev.Title(),
		Attachments: []slack.Attachment{att},
	}
	if c.threadErrors && c.threadTS != "" && ev.Level.AtLeast(event.Error) {
		msg.ThreadTimestamp = c.threadTS
	}
	return msg
}

// statusError turns slack's status error into a coded one.
func statusError(err error) error {
	var sce slack.StatusCodeError
	if !stderrors.As(err, &sce) {
		return err
	}
	code := errors.ErrChannelRejected
	switch sce.Code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		code = errors.ErrChannelAuth
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = errors.ErrChannelTimeout
	}
	return errors.Wrap(err, code, "slack webhook")
}

func jsonNumber(t time.Time) json.Number {
	return json.Number(strconv.FormatInt(t.Unix(), 10))
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "\n..."
}
