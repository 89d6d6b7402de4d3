// Package webhook delivers events to a generic HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/errica/config"
	"github.com/kart-io/errica/pkg/errica/errors"
	"github.com/kart-io/errica/pkg/errica/event"
	"github.com/kart-io/errica/pkg/logger"
)

// Type is the channel type name.
const Type = "webhook"

const userAgent = "errica-webhook/1.0"

// Payload formats.
const (
	FormatJSON  = "json"
	FormatSlack = "slack"
	FormatTeams = "teams"
)

// Payload is the body sent in the json format.
type Payload struct {
	Source string       `json:"source"`
	Title  string       `json:"title"`
	Event  *event.Event `json:"event"`
}

// Channel sends events over HTTP.
type Channel struct {
	name       string
	url        string
	method     string
	format     string
	headers    map[string]string
	authType   string
	token      string
	authHeader string
	username   string
	password   string
	client     *http.Client
	logger     logger.Logger
}

// Option configures a webhook channel.
type Option func(*Channel)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(ch *Channel) { ch.client = c }
}

// New builds a webhook channel. Required option: url. Optional: method,
// headers, payload_format, auth_type (none|basic|bearer|custom) with
// token/auth_header/username/password, verify_ssl, timeout.
func New(name string, settings config.ChannelSettings, log logger.Logger, opts ...Option) (*Channel, error) {
	target := settings.String("url", "")
	if target == "" {
		return nil, errors.New(errors.ErrMissingConfig, "url is required").WithChannel(name)
	}

	c := &Channel{
		name:       name,
		url:        target,
		method:     strings.ToUpper(settings.String("method", http.MethodPost)),
		format:     strings.ToLower(settings.String("payload_format", FormatJSON)),
		headers:    settings.StringMap("headers"),
		authType:   strings.ToLower(settings.String("auth_type", "none")),
		token:      settings.String("token", ""),
		authHeader: settings.String("auth_header", "Authorization"),
		username:   settings.String("username", ""),
		password:   settings.String("password", ""),
		logger:     logger.OrDiscard(log),
	}
	switch c.method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, errors.Newf(errors.ErrInvalidConfig, "unsupported method %q", c.method).WithChannel(name)
	}
	switch c.format {
	case FormatJSON, FormatSlack, FormatTeams:
	default:
		return nil, errors.Newf(errors.ErrInvalidConfig, "unsupported payload_format %q", c.format).WithChannel(name)
	}

	c.client = &http.Client{
		Timeout: settings.Duration("timeout", config.DefaultTimeout),
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !settings.Bool("verify_ssl", true)},
			IdleConnTimeout: 30 * time.Second,
		},
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

// Send delivers the event. GET requests carry the event as query parameters
// (id, level, message, and each context field as ctx.<key>), every other
// method as a JSON body.
func (c *Channel) Send(ctx context.Context, ev *event.Event) channel.Result {
	start := time.Now()
	req, err := c.newRequest(ctx, ev)
	if err != nil {
		return channel.Fail(err, "webhook request build failed").WithLatency(time.Since(start))
	}

	c.logger.Debug("sending webhook request", "channel", c.name, "url", c.url, "method", c.method, "format", c.format)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("webhook send failed", "channel", c.name, "error", err)
		return channel.Fail(err, "webhook send failed").WithLatency(time.Since(start))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := channel.StatusError(resp)
		c.logger.Warn("webhook rejected", "channel", c.name, "status", resp.StatusCode)
		return channel.Fail(err, "webhook send failed").WithLatency(time.Since(start))
	}
	return channel.OK(fmt.Sprintf("webhook accepted (status %d)", resp.StatusCode)).WithLatency(time.Since(start))
}

// HealthCheck sends HEAD to the endpoint; 2xx and 405 are healthy.
func (c *Channel) HealthCheck(ctx context.Context) channel.Result {
	start := time.Now()
	header := make(http.Header)
	c.decorate(header)
	if err := channel.ProbeURL(ctx, c.client, c.url, header); err != nil {
		return channel.Fail(err, "webhook health check failed").WithLatency(time.Since(start))
	}
	return channel.OK("webhook endpoint reachable").WithLatency(time.Since(start))
}

// Close releases idle connections.
func (c *Channel) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// contextParam prefixes context fields in GET query strings.
const contextParam = "ctx."

func (c *Channel) newRequest(ctx context.Context, ev *event.Event) (*http.Request, error) {
	if c.method == http.MethodGet {
		u, err := url.Parse(c.url)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		for _, f := range ev.Context.All() {
			q.Set(contextParam+f.Key, channel.FormatValue(f.Value))
		}
		q.Set("id", ev.ID)
		q.Set("level", ev.Level.String())
		q.Set("message", ev.Message)
		u.RawQuery = q.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		c.decorate(req.Header)
		return req, nil
	}

	body, err := json.Marshal(c.payload(ev))
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.decorate(req.Header)
	return req, nil
}

// decorate applies user agent, custom headers and authentication.
func (c *Channel) decorate(h http.Header) {
	h.Set("User-Agent", userAgent)
	for k, v := range c.headers {
		h.Set(k, v)
	}
	switch c.authType {
	case "basic":
		if c.username != "" {
			creds := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password))
			h.Set("Authorization", "Basic "+creds)
		}
	case "bearer":
		if c.token != "" {
			h.Set("Authorization", "Bearer "+c.token)
		}
	case "custom":
		if c.token != "" {
			h.Set(c.authHeader, c.token)
		}
	}
}

func (c *Channel) payload(ev *event.Event) any {
	switch c.format {
	case FormatSlack:
		return slackPayload(ev)
	case FormatTeams:
		return teamsPayload(ev)
	default:
		return Payload{Source: "errica", Title: ev.Title(), Event: ev}
	}
}
