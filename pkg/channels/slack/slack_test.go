package slack

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/errica/pkg/errica/config"
	erricaerrors "github.com/kart-io/errica/pkg/errica/errors"
	"github.com/kart-io/errica/pkg/errica/event"
)

func newServer(t *testing.T, status int, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && got != nil {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(body, got))
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSlack_Send(t *testing.T) {
	var payload map[string]any
	srv := newServer(t, http.StatusOK, &payload)

	ch, err := New("slack", config.NewChannelSettings("slack", map[string]any{
		"webhook_url":   srv.URL,
		"channel":       "#alerts",
		"username":      "monitor",
		"thread_errors": true,
		"thread_ts":     "1700000000.000100",
	}), nil)
	require.NoError(t, err)

	ev := event.New("Sync failed", event.Error,
		event.WithFields(event.F("users_failed", 3)),
		event.WithError(errors.New("rate limited")),
		event.WithTask("user_sync", "sync"),
	)
	res := ch.Send(context.Background(), ev)
	require.True(t, res.Success, res.String())

	assert.Equal(t, "#alerts", payload["channel"])
	assert.Equal(t, "monitor", payload["username"])
	assert.Equal(t, "[ERROR] Sync failed", payload["text"])
	assert.Equal(t, "1700000000.000100", payload["thread_ts"])

	atts := payload["attachments"].([]any)
	require.Len(t, atts, 1)
	att := atts[0].(map[string]any)
	assert.Equal(t, "danger", att["color"])
	assert.Equal(t, "*errors.errorString*: rate limited", att["text"])
	fields := att["fields"].([]any)
	require.Len(t, fields, 2)
	assert.Equal(t, "user_sync (sync)", fields[0].(map[string]any)["value"])
	assert.Equal(t, "users_failed", fields[1].(map[string]any)["title"])
}

func TestSlack_NoThreadBelowError(t *testing.T) {
	var payload map[string]any
	srv := newServer(t, http.StatusOK, &payload)
	ch, err := New("slack", config.NewChannelSettings("slack", map[string]any{
		"webhook_url": srv.URL, "thread_errors": true, "thread_ts": "1.2",
	}), nil)
	require.NoError(t, err)

	require.True(t, ch.Send(context.Background(), event.New("fyi", event.Info)).Success)
	assert.NotContains(t, payload, "thread_ts")
}

func TestSlack_SendRejected(t *testing.T) {
	tests := []struct {
		status int
		code   erricaerrors.Code
	}{
		{http.StatusForbidden, erricaerrors.ErrChannelAuth},
		{http.StatusInternalServerError, erricaerrors.ErrChannelRejected},
	}
	for _, tt := range tests {
		srv := newServer(t, tt.status, nil)
		ch, err := New("slack", config.NewChannelSettings("slack", map[string]any{"webhook_url": srv.URL}), nil)
		require.NoError(t, err)

		res := ch.Send(context.Background(), event.New("x", event.Error))
		assert.False(t, res.Success)
		assert.Equal(t, tt.code, res.Code)
	}
}

func TestSlack_HealthCheck(t *testing.T) {
	srv := newServer(t, http.StatusBadRequest, nil)
	ch, err := New("slack", config.NewChannelSettings("slack", map[string]any{"webhook_url": srv.URL}), nil)
	require.NoError(t, err)
	assert.True(t, ch.HealthCheck(context.Background()).Success)

	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()
	ch, err = New("slack", config.NewChannelSettings("slack", map[string]any{"webhook_url": url}), nil)
	require.NoError(t, err)
	res := ch.HealthCheck(context.Background())
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unreachable")
	assert.NoError(t, ch.Close())
}

func TestSlack_RequiresURL(t *testing.T) {
	_, err := Creator("slack", config.NewChannelSettings("slack", nil), nil)
	assert.Equal(t, erricaerrors.ErrMissingConfig, erricaerrors.CodeOf(err))
}

func TestTruncate_RuneBoundary(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	trace := strings.Repeat("é", 3000)
	got := truncate(trace, 2500)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 2500)+"\n...", got)
}
