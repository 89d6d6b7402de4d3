package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/errica/pkg/errica/config"
	erricaerrors "github.com/kart-io/errica/pkg/errica/errors"
	"github.com/kart-io/errica/pkg/errica/event"
)

type mockBot struct {
	mu      sync.Mutex
	sent    []*bot.SendMessageParams
	sendErr error
	meErr   error
}

func (m *mockBot) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, params)
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return &models.Message{ID: len(m.sent)}, nil
}

func (m *mockBot) GetMe(context.Context) (*models.User, error) {
	if m.meErr != nil {
		return nil, m.meErr
	}
	return &models.User{Username: "errica_bot"}, nil
}

func settings(extra map[string]any) config.ChannelSettings {
	values := map[string]any{"bot_token": "123:abc", "chat_id": "-1001"}
	for k, v := range extra {
		values[k] = v
	}
	return config.NewChannelSettings("telegram", values)
}

func TestTelegram_Send(t *testing.T) {
	mb := &mockBot{}
	ch, err := New("telegram", settings(nil), nil, WithClient(mb))
	require.NoError(t, err)

	ev := event.New("Order <42> failed", event.Error, event.WithFields(event.F("order_id", 42)))
	res := ch.Send(context.Background(), ev)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "sent to chat -1001 (message 1)", res.Message)

	require.Len(t, mb.sent, 1)
	p := mb.sent[0]
	assert.Equal(t, "-1001", p.ChatID)
	assert.Equal(t, models.ParseModeHTML, p.ParseMode)
	assert.True(t, strings.HasPrefix(p.Text, "❌ <b>[ERROR] Order &lt;42&gt; failed</b>\n"), p.Text)
	assert.Contains(t, p.Text, "order_id: 42")
}

func TestTelegram_SendFailure(t *testing.T) {
	mb := &mockBot{sendErr: errors.New("unauthorized")}
	ch, err := New("telegram", settings(nil), nil, WithClient(mb))
	require.NoError(t, err)

	res := ch.Send(context.Background(), event.New("x", event.Critical))
	assert.False(t, res.Success)
	assert.Equal(t, erricaerrors.ErrChannelAuth, res.Code)
}

func TestTelegram_PlainAndTruncated(t *testing.T) {
	mb := &mockBot{}
	ch, err := New("telegram", settings(map[string]any{"parse_mode": "none", "disable_notification": true}), nil, WithClient(mb))
	require.NoError(t, err)

	long := strings.Repeat("x", 5000)
	require.True(t, ch.Send(context.Background(), event.New(long, event.Info)).Success)

	p := mb.sent[0]
	assert.Empty(t, p.ParseMode)
	assert.True(t, p.DisableNotification)
	assert.Len(t, []rune(p.Text), maxMessageLen)
	assert.True(t, strings.HasSuffix(p.Text, "..."))
}

func TestTelegram_HealthCheck(t *testing.T) {
	ch, err := New("telegram", settings(nil), nil, WithClient(&mockBot{}))
	require.NoError(t, err)
	res := ch.HealthCheck(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, "bot @errica_bot reachable", res.Message)

	ch, err = New("telegram", settings(nil), nil, WithClient(&mockBot{meErr: context.DeadlineExceeded}))
	require.NoError(t, err)
	res = ch.HealthCheck(context.Background())
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "timeout")
}

func TestTelegram_Config(t *testing.T) {
	_, err := New("telegram", config.NewChannelSettings("telegram", map[string]any{"bot_token": "1:a"}), nil)
	assert.True(t, errors.Is(err, erricaerrors.New(erricaerrors.ErrMissingConfig, "")))

	_, err = New("telegram", settings(map[string]any{"parse_mode": "bbcode"}), nil)
	assert.Error(t, err)

	ch, err := New("telegram", settings(map[string]any{"api_url": "http://127.0.0.1:1"}), nil)
	require.NoError(t, err)
	assert.Equal(t, "telegram", ch.Name())
	assert.NoError(t, ch.Close())
}
