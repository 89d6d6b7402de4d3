package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/errica/pkg/errica/config"
	erricaerrors "github.com/kart-io/errica/pkg/errica/errors"
	"github.com/kart-io/errica/pkg/errica/event"
)

type capture struct {
	method string
	header http.Header
	query  map[string][]string
	body   map[string]any
}

func newServer(t *testing.T, status int) (*httptest.Server, *capture) {
	t.Helper()
	got := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.header = r.Header.Clone()
		got.query = r.URL.Query()
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			require.NoError(t, json.Unmarshal(b, &got.body))
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func newChannel(t *testing.T, values map[string]any) *Channel {
	t.Helper()
	ch, err := New("webhook", config.NewChannelSettings("webhook", values), nil)
	require.NoError(t, err)
	return ch
}

func TestWebhook_SendJSON(t *testing.T) {
	srv, got := newServer(t, http.StatusAccepted)
	ch := newChannel(t, map[string]any{
		"url":       srv.URL,
		"headers":   map[string]any{"X-Team": "ops"},
		"auth_type": "bearer",
		"token":     "secret",
	})

	ev := event.New("Database connection lost", event.Critical,
		event.WithFields(event.F("host", "db-1", "retries", 3)),
		event.WithError(errors.New("dial timeout")),
	)
	res := ch.Send(context.Background(), ev)
	require.True(t, res.Success, res.String())
	assert.Equal(t, "webhook accepted (status 202)", res.Message)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "application/json", got.header.Get("Content-Type"))
	assert.Equal(t, "Bearer secret", got.header.Get("Authorization"))
	assert.Equal(t, "ops", got.header.Get("X-Team"))
	assert.Equal(t, userAgent, got.header.Get("User-Agent"))

	assert.Equal(t, "errica", got.body["source"])
	assert.Equal(t, "[CRITICAL] Database connection lost", got.body["title"])
	evBody := got.body["event"].(map[string]any)
	assert.Equal(t, "CRITICAL", evBody["level"])
	assert.Equal(t, map[string]any{"host": "db-1", "retries": float64(3)}, evBody["context"])
	assert.Equal(t, "dial timeout", evBody["exception"].(map[string]any)["message"])
}

func TestWebhook_Formats(t *testing.T) {
	ev := event.New("Queue backlog", event.Warning, event.WithFields(event.F("depth", 1200)))

	srv, got := newServer(t, http.StatusOK)
	ch := newChannel(t, map[string]any{"url": srv.URL, "payload_format": "slack"})
	require.True(t, ch.Send(context.Background(), ev).Success)
	assert.Equal(t, "[WARNING] Queue backlog", got.body["text"])
	att := got.body["attachments"].([]any)[0].(map[string]any)
	assert.Equal(t, "#FF9800", att["color"])

	srv, got = newServer(t, http.StatusOK)
	ch = newChannel(t, map[string]any{"url": srv.URL, "payload_format": "teams", "method": "put"})
	require.True(t, ch.Send(context.Background(), ev).Success)
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "MessageCard", got.body["@type"])
	assert.Equal(t, "FF9800", got.body["themeColor"])
	facts := got.body["sections"].([]any)[0].(map[string]any)["facts"].([]any)
	assert.Equal(t, map[string]any{"name": "depth", "value": "1200"}, facts[0])
}

func TestWebhook_SendGET(t *testing.T) {
	srv, got := newServer(t, http.StatusOK)
	ch := newChannel(t, map[string]any{"url": srv.URL + "?team=ops", "method": "GET", "auth_type": "basic", "username": "u", "password": "p"})

	require.True(t, ch.Send(context.Background(), event.New("ping", event.Info, event.WithFields(event.F("k", "v")))).Success)
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "ops", got.query["team"][0])
	assert.Equal(t, "INFO", got.query["level"][0])
	assert.Equal(t, "v", got.query["ctx.k"][0])
	assert.Equal(t, "Basic dTpw", got.header.Get("Authorization"))
}

func TestWebhook_SendGETContextDoesNotOverrideEvent(t *testing.T) {
	srv, got := newServer(t, http.StatusOK)
	ch := newChannel(t, map[string]any{"url": srv.URL, "method": "GET"})

	ev := event.New("real message", event.Critical,
		event.WithID("ev-1"),
		event.WithFields(event.F("level", "db", "message", "ctx msg", "id", "other")))
	require.True(t, ch.Send(context.Background(), ev).Success)

	assert.Equal(t, []string{"CRITICAL"}, got.query["level"])
	assert.Equal(t, []string{"real message"}, got.query["message"])
	assert.Equal(t, []string{"ev-1"}, got.query["id"])
	assert.Equal(t, []string{"db"}, got.query["ctx.level"])
	assert.Equal(t, []string{"ctx msg"}, got.query["ctx.message"])
	assert.Equal(t, []string{"other"}, got.query["ctx.id"])
}

func TestWebhook_Failures(t *testing.T) {
	srv, _ := newServer(t, http.StatusUnauthorized)
	res := newChannel(t, map[string]any{"url": srv.URL}).Send(context.Background(), event.New("x", event.Error))
	assert.False(t, res.Success)
	assert.Equal(t, erricaerrors.ErrChannelAuth, res.Code)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res = newChannel(t, map[string]any{"url": slow.URL}).Send(ctx, event.New("x", event.Error))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "timeout")
}

func TestWebhook_HealthCheck(t *testing.T) {
	srv, got := newServer(t, http.StatusMethodNotAllowed)
	ch := newChannel(t, map[string]any{"url": srv.URL, "auth_type": "custom", "auth_header": "X-Api-Key", "token": "k"})
	assert.True(t, ch.HealthCheck(context.Background()).Success)
	assert.Equal(t, http.MethodHead, got.method)
	assert.Equal(t, "k", got.header.Get("X-Api-Key"))

	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()
	res := newChannel(t, map[string]any{"url": url}).HealthCheck(context.Background())
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unreachable")
	assert.NoError(t, ch.Close())
}

func TestWebhook_Config(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		code   erricaerrors.Code
	}{
		{"missing url", map[string]any{}, erricaerrors.ErrMissingConfig},
		{"bad method", map[string]any{"url": "http://x", "method": "DELETE"}, erricaerrors.ErrInvalidConfig},
		{"bad format", map[string]any{"url": "http://x", "payload_format": "xml"}, erricaerrors.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, err := Creator("webhook", config.NewChannelSettings("webhook", tt.values), nil)
			assert.Nil(t, ch)
			assert.Equal(t, tt.code, erricaerrors.CodeOf(err))
		})
	}
}
