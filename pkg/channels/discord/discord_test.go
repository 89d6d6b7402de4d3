package discord

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/errica/pkg/errica/config"
	erricaerrors "github.com/kart-io/errica/pkg/errica/errors"
	"github.com/kart-io/errica/pkg/errica/event"
)

type mockClient struct {
	id, token string
	params    *discordgo.WebhookParams
	execErr   error
	getErr    error
}

func (m *mockClient) WebhookExecute(webhookID, token string, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.id, m.token, m.params = webhookID, token, data
	if m.execErr != nil {
		return nil, m.execErr
	}
	return &discordgo.Message{ID: "m-1"}, nil
}

func (m *mockClient) WebhookWithToken(webhookID, token string, _ ...discordgo.RequestOption) (*discordgo.Webhook, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &discordgo.Webhook{ID: webhookID, Name: "alerts"}, nil
}

const hookURL = "https://discord.com/api/webhooks/123456789/tok-en_1"

func newChannel(t *testing.T, mc *mockClient, extra map[string]any) *Channel {
	t.Helper()
	values := map[string]any{"webhook_url": hookURL}
	for k, v := range extra {
		values[k] = v
	}
	ch, err := New("discord", config.NewChannelSettings("discord", values), nil, WithClient(mc))
	require.NoError(t, err)
	return ch
}

func TestDiscord_Send(t *testing.T) {
	mc := &mockClient{}
	ch := newChannel(t, mc, map[string]any{"show_detailed_exceptions": true})

	ev := event.New("Backup failed", event.Error,
		event.WithFields(event.F("db", "orders", "size_mb", 512)),
		event.WithTrace("main.backup\n"),
		event.WithError(errors.New("disk full")),
		event.WithTask("nightly_backup", "maintenance"),
		event.WithApp(event.AppInfo{Name: "ops", Environment: "prod"}),
	)
	res := ch.Send(context.Background(), ev)
	require.True(t, res.Success, res.String())
	assert.Equal(t, "posted to discord (message m-1)", res.Message)

	assert.Equal(t, "123456789", mc.id)
	assert.Equal(t, "tok-en_1", mc.token)
	require.Len(t, mc.params.Embeds, 1)
	e := mc.params.Embeds[0]
	assert.Equal(t, "[ERROR] Backup failed", e.Title)
	assert.Equal(t, 0xF44336, e.Color)
	assert.Equal(t, "ops (prod)", e.Footer.Text)
	require.Len(t, e.Fields, 3)
	assert.Equal(t, "task", e.Fields[0].Name)
	assert.Equal(t, "size_mb", e.Fields[2].Name)
	assert.Equal(t, "512", e.Fields[2].Value)
	assert.True(t, strings.HasPrefix(e.Description, "***errors.errorString**: disk full"), e.Description)
	assert.Contains(t, e.Description, "main.backup")
}

func TestDiscord_FieldLimit(t *testing.T) {
	mc := &mockClient{}
	ch := newChannel(t, mc, nil)

	kv := make([]any, 0, 60)
	for i := 0; i < 30; i++ {
		kv = append(kv, strings.Repeat("k", i+1), strings.Repeat("v", 2000))
	}
	require.True(t, ch.Send(context.Background(), event.New("many", event.Info, event.WithFields(event.F(kv...)))).Success)
	e := mc.params.Embeds[0]
	assert.Len(t, e.Fields, maxFields)
	assert.Len(t, e.Fields[0].Value, maxFieldValue)
}

func TestDiscord_Failures(t *testing.T) {
	restErr := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}
	mc := &mockClient{execErr: restErr, getErr: restErr}
	ch := newChannel(t, mc, nil)

	res := ch.Send(context.Background(), event.New("x", event.Error))
	assert.False(t, res.Success)
	assert.Equal(t, erricaerrors.ErrChannelAuth, res.Code)

	res = ch.HealthCheck(context.Background())
	assert.False(t, res.Success)
	assert.Equal(t, erricaerrors.ErrChannelAuth, res.Code)

	mc.getErr = context.DeadlineExceeded
	assert.Contains(t, ch.HealthCheck(context.Background()).Message, "timeout")
}

func TestDiscord_HealthCheck(t *testing.T) {
	ch := newChannel(t, &mockClient{}, nil)
	res := ch.HealthCheck(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, `webhook "alerts" reachable`, res.Message)
	assert.NoError(t, ch.Close())
}

func TestDiscord_Config(t *testing.T) {
	_, err := Creator("discord", config.NewChannelSettings("discord", map[string]any{"webhook_url": "https://discord.com/api/other"}), nil)
	assert.Equal(t, erricaerrors.ErrMissingConfig, erricaerrors.CodeOf(err))

	ch, err := New("discord", config.NewChannelSettings("discord", map[string]any{"webhook_url": hookURL}), nil)
	require.NoError(t, err)
	assert.Equal(t, "discord", ch.Name())
}
