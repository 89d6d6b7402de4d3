package handler

import (
	"context"
	"log/slog"

	"github.com/kart-io/errica/pkg/errica/event"
)

// LevelCritical is the slog level mapped to CRITICAL.
const LevelCritical = slog.LevelError + 4

// SlogHandler returns an slog.Handler that captures records at or above
// level as events. Attributes become context fields in order. Error values
// are kept under their key as the error text, and the first one also becomes
// the event exception.
func (h *Handler) SlogHandler(level slog.Leveler) slog.Handler {
	if level == nil {
		level = slog.LevelError
	}
	return &slogHandler{h: h, level: level}
}

type slogHandler struct {
	h      *Handler
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func (s *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return s.h.Enabled() && level >= s.level.Level()
}

func (s *slogHandler) Handle(ctx context.Context, r slog.Record) error {
	var (
		kv  []any
		err error
	)
	add := func(prefix string, a slog.Attr) {
		if e, ok := a.Value.Any().(error); ok && err == nil {
			err = e
		}
		kv = appendAttr(kv, prefix, a)
	}
	for _, a := range s.attrs {
		add("", a)
	}
	prefix := groupPrefix(s.groups)
	r.Attrs(func(a slog.Attr) bool {
		add(prefix, a)
		return true
	})

	s.h.Capture(ctx, r.Message, severityOf(r.Level), err, event.F(kv...), WithCallerSkip(3))
	return nil
}

func (s *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := groupPrefix(s.groups)
	out := s.clone()
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + a.Key
		}
		out.attrs = append(out.attrs, a)
	}
	return out
}

func (s *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	out := s.clone()
	out.groups = append(out.groups, name)
	return out
}

func (s *slogHandler) clone() *slogHandler {
	return &slogHandler{
		h:      s.h,
		level:  s.level,
		attrs:  append([]slog.Attr(nil), s.attrs...),
		groups: append([]string(nil), s.groups...),
	}
}

// appendAttr flattens group attributes into dotted keys.
func appendAttr(kv []any, prefix string, a slog.Attr) []any {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, g := range a.Value.Group() {
			kv = appendAttr(kv, p, g)
		}
		return kv
	}
	if a.Key == "" {
		return kv
	}
	if e, ok := a.Value.Any().(error); ok {
		return append(kv, prefix+a.Key, e.Error())
	}
	return append(kv, prefix+a.Key, a.Value.Any())
}

func groupPrefix(groups []string) string {
	p := ""
	for _, g := range groups {
		p += g + "."
	}
	return p
}

func severityOf(l slog.Level) event.Severity {
	switch {
	case l >= LevelCritical:
		return event.Critical
	case l >= slog.LevelError:
		return event.Error
	case l >= slog.LevelWarn:
		return event.Warning
	case l >= slog.LevelInfo:
		return event.Info
	default:
		return event.Debug
	}
}
