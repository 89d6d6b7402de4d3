package channel

import (
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/errica/pkg/errica/event"
)

// RenderOptions tunes Render.
type RenderOptions struct {
	// Trace includes the exception trace.
	Trace bool
	// MaxTrace truncates the trace to this many bytes when positive.
	MaxTrace int
	// Escape is applied to every caller-provided string, e.g. html.EscapeString.
	Escape func(string) string
}

// Render formats ev as plain text: a title line, app and task lines, the
// context fields in order and the exception block.
func Render(ev *event.Event, opts RenderOptions) string {
	esc := opts.Escape
	if esc == nil {
		esc = func(s string) string { return s }
	}

	var b strings.Builder
	b.WriteString(esc(ev.Title()))
	b.WriteByte('\n')

	if app := AppLine(ev); app != "" {
		fmt.Fprintf(&b, "App: %s\n", esc(app))
	}
	if ev.Task != nil {
		task := ev.Task.Name
		if ev.Task.Category != "" {
			task += " (" + ev.Task.Category + ")"
		}
		fmt.Fprintf(&b, "Task: %s\n", esc(task))
	}
	fmt.Fprintf(&b, "Time: %s\n", ev.Timestamp.Format(time.RFC3339))

	if ev.Context.Len() > 0 {
		b.WriteString("Context:\n")
		for _, f := range ev.Context.All() {
			fmt.Fprintf(&b, "  %s: %s\n", esc(f.Key), esc(FormatValue(f.Value)))
		}
	}

	if ev.HasException() {
		fmt.Fprintf(&b, "Exception: %s: %s\n", esc(ev.Exception.Kind), esc(ev.Exception.Message))
		if opts.Trace && ev.Exception.Trace != "" {
			trace := ev.Exception.Trace
			if opts.MaxTrace > 0 && len(trace) > opts.MaxTrace {
				trace = trace[:opts.MaxTrace] + "\n..."
			}
			b.WriteString(esc(strings.TrimRight(trace, "\n")))
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// AppLine returns "name version (environment)" with empty parts left out.
func AppLine(ev *event.Event) string {
	parts := make([]string, 0, 3)
	if ev.App.Name != "" {
		parts = append(parts, ev.App.Name)
	}
	if ev.App.Version != "" {
		parts = append(parts, ev.App.Version)
	}
	if ev.App.Environment != "" {
		parts = append(parts, "("+ev.App.Environment+")")
	}
	return strings.Join(parts, " ")
}

// FormatValue renders a context value for text output.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return t
	case error:
		return t.Error()
	case float64:
		return fmt.Sprintf("%g", t)
	case time.Duration:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
