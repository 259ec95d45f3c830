package slogbridge

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/obsidianstack/logshipper/pkg/types"
)

// Shipper is the part of *shipper.Shipper the handler needs.
type Shipper interface {
	Ship(rec types.Record)
	MinLevel() types.Level
}

// Options configures a Handler.
type Options struct {
	// Channel names the logical log source. Defaults to "app".
	Channel string

	// AddSource records file, line and function of the log call in Extra.
	AddSource bool
}

// Handler is a slog.Handler that ships every record it handles.
// Handlers returned by WithAttrs, WithGroup and WithChannel share the
// Shipper but no mutable state.
type Handler struct {
	s    Shipper
	opts Options
	goas []groupOrAttrs
}

// groupOrAttrs is one WithGroup or WithAttrs call, replayed in order.
type groupOrAttrs struct {
	group string
	attrs []slog.Attr
}

// NewHandler returns a Handler shipping through s.
func NewHandler(s Shipper, opts Options) *Handler {
	if opts.Channel == "" {
		opts.Channel = "app"
	}
	return &Handler{s: s, opts: opts}
}

// Enabled reports whether the shipper would keep a record at level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return types.LevelFromSlog(level) >= h.s.MinLevel()
}

// Handle converts r and ships it.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	rec := types.Record{
		Time:    r.Time,
		Level:   types.LevelFromSlog(r.Level),
		Channel: h.opts.Channel,
		Message: r.Message,
		Context: h.context(r),
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	if h.opts.AddSource && r.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := fs.Next()
		rec.Extra = map[string]any{
			"file":     f.File,
			"line":     f.Line,
			"function": f.Function,
		}
	}

	h.s.Ship(rec)
	return nil
}

// context replays the handler's groups and attrs, then adds the record's.
func (h *Handler) context(r slog.Record) map[string]any {
	root := make(map[string]any)
	cur := root
	type opened struct {
		parent map[string]any
		key    string
		m      map[string]any
	}
	var groups []opened

	for _, g := range h.goas {
		if g.group != "" {
			m := make(map[string]any)
			cur[g.group] = m
			groups = append(groups, opened{parent: cur, key: g.group, m: m})
			cur = m
			continue
		}
		for _, a := range g.attrs {
			addAttr(cur, a)
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(cur, a)
		return true
	})

	// A group with no attrs is dropped, innermost first.
	for i := len(groups) - 1; i >= 0; i-- {
		if len(groups[i].m) == 0 {
			delete(groups[i].parent, groups[i].key)
		}
	}
	return root
}

func addAttr(m map[string]any, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	switch a.Value.Kind() {
	case slog.KindGroup:
		attrs := a.Value.Group()
		if len(attrs) == 0 {
			return
		}
		if a.Key == "" {
			for _, ga := range attrs {
				addAttr(m, ga)
			}
			return
		}
		sub := make(map[string]any, len(attrs))
		for _, ga := range attrs {
			addAttr(sub, ga)
		}
		m[a.Key] = sub
	case slog.KindTime:
		m[a.Key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		m[a.Key] = a.Value.Duration().String()
	default:
		v := a.Value.Any()
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		m[a.Key] = v
	}
}

// WithAttrs returns a Handler that adds attrs to every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(groupOrAttrs{attrs: attrs})
}

// WithGroup returns a Handler that nests later attrs under name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(groupOrAttrs{group: name})
}

// WithChannel returns a Handler that ships under a different channel.
func (h *Handler) WithChannel(channel string) *Handler {
	h2 := *h
	h2.opts.Channel = channel
	return &h2
}

func (h *Handler) with(g groupOrAttrs) *Handler {
	h2 := *h
	h2.goas = make([]groupOrAttrs, len(h.goas)+1)
	copy(h2.goas, h.goas)
	h2.goas[len(h.goas)] = g
	return &h2
}
