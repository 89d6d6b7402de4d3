package console

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/errica/pkg/errica/config"
	erricaerrors "github.com/kart-io/errica/pkg/errica/errors"
	"github.com/kart-io/errica/pkg/errica/event"
)

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("pipe closed") }

func TestConsole_Send(t *testing.T) {
	var buf bytes.Buffer
	ch, err := New("console", config.NewChannelSettings("console", nil), nil, WithWriter(&buf))
	require.NoError(t, err)

	ev := event.New("disk almost full", event.Warning,
		event.WithFields(event.F("mount", "/var", "used_pct", 93)),
		event.WithTrace("main.check\n\tmain.go:3\n"),
		event.WithError(errors.New("threshold exceeded")),
	)
	res := ch.Send(context.Background(), ev)
	require.True(t, res.Success, res.Message)

	out := buf.String()
	assert.Contains(t, out, "[WARNING] disk almost full\n")
	assert.Contains(t, out, "  mount: /var\n  used_pct: 93\n")
	assert.Contains(t, out, "Exception: *errors.errorString: threshold exceeded")
	assert.NotContains(t, out, "main.check")
	assert.NotContains(t, out, "\033[")
}

func TestConsole_ColorsAndDetails(t *testing.T) {
	var buf bytes.Buffer
	settings := config.NewChannelSettings("console", map[string]any{
		"use_colors":               true,
		"show_detailed_exceptions": true,
	})
	ch, err := New("console", settings, nil, WithWriter(&buf))
	require.NoError(t, err)

	ev := event.New("boom", event.Critical, event.WithTrace("main.boom\n"), event.WithError(errors.New("x")))
	require.True(t, ch.Send(context.Background(), ev).Success)

	out := buf.String()
	assert.Contains(t, out, "\033[1;31m[CRITICAL] boom\033[0m\n")
	assert.Contains(t, out, "main.boom")
}

func TestConsole_WriteFailure(t *testing.T) {
	ch, err := New("console", config.NewChannelSettings("console", nil), nil, WithWriter(brokenWriter{}))
	require.NoError(t, err)

	res := ch.Send(context.Background(), event.New("x", event.Info))
	assert.False(t, res.Success)
	assert.Equal(t, "pipe closed", res.Error)
}

func TestConsole_Settings(t *testing.T) {
	_, err := New("console", config.NewChannelSettings("console", map[string]any{"stream": "printer"}), nil)
	require.Error(t, err)
	assert.Equal(t, erricaerrors.ErrInvalidConfig, erricaerrors.CodeOf(err))
	var coded *erricaerrors.Error
	require.True(t, errors.As(err, &coded))
	assert.Equal(t, "console", coded.Channel)

	ch, err := New("out", config.NewChannelSettings("out", map[string]any{"stream": "stdout"}), nil)
	require.NoError(t, err)
	assert.Equal(t, "out", ch.Name())
	assert.True(t, ch.HealthCheck(context.Background()).Success)
	assert.NoError(t, ch.Close())
}
