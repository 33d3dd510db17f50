package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CompactHandler formats logs for a console:
//
//	[LEVEL] HH:MM:SS [component] (project) message | key=value key=value
//
// The component and project attributes become the prefix; check and request IDs
// are cut to their first 8 characters.
type CompactHandler struct {
	opts   slog.HandlerOptions
	mu     *sync.Mutex
	out    io.Writer
	attrs  []slog.Attr // from WithAttrs, keys already grouped
	prefix string      // group prefix for keys, e.g. "http."
}

// NewCompactHandler creates a compact handler writing to w
func NewCompactHandler(w io.Writer, opts *slog.HandlerOptions) *CompactHandler {
	h := &CompactHandler{mu: &sync.Mutex{}, out: w}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *CompactHandler) Enabled(_ context.Context, level slog.Level) bool {
	threshold := slog.LevelInfo
	if h.opts.Level != nil {
		threshold = h.opts.Level.Level()
	}
	return level >= threshold
}

// Attribute keys with a place of their own in the line
const (
	keyComponent = "component"
	keyProject   = "project"
	keyCheckID   = "checkID"
	keyRequestID = "requestID"
	keyReason    = "reason"
	keyDuration  = "durationMs"
)

func levelLabel(l slog.Level) string {
	switch {
	case l < slog.LevelDebug:
		return "[TRACE] "
	case l < slog.LevelInfo:
		return "[DEBUG] "
	case l < slog.LevelWarn:
		return "[INFO]  "
	case l < slog.LevelError:
		return "[WARN]  "
	}
	return "[ERROR] "
}

func (h *CompactHandler) Handle(_ context.Context, r slog.Record) error {
	var component, project string
	rest := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	collect := func(a slog.Attr) bool {
		switch {
		case a.Equal(slog.Attr{}):
		case a.Key == keyComponent:
			component = a.Value.String()
		case a.Key == keyProject:
			project = a.Value.String()
		case a.Key == keyReason && a.Value.String() == "":
		default:
			rest = append(rest, a)
		}
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if h.prefix != "" && a.Key != keyComponent && a.Key != keyProject {
			a.Key = h.prefix + a.Key
		}
		return collect(a)
	})

	var b strings.Builder
	b.WriteString(levelLabel(r.Level))
	b.WriteString(r.Time.Format("15:04:05"))
	b.WriteByte(' ')
	if component != "" {
		b.WriteString("[" + component + "] ")
	}
	if project != "" {
		b.WriteString("(" + project + ") ")
	}
	b.WriteString(r.Message)
	for i, a := range rest {
		if i == 0 {
			b.WriteString(" |")
		}
		b.WriteByte(' ')
		writeAttr(&b, a)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func writeAttr(b *strings.Builder, a slog.Attr) {
	v := a.Value.Resolve()
	switch a.Key {
	case keyCheckID:
		b.WriteString("check=" + shortID(v.String()))
		return
	case keyRequestID:
		b.WriteString("req=" + shortID(v.String()))
		return
	case keyDuration:
		b.WriteString("duration=" + v.String() + "ms")
		return
	}

	b.WriteString(a.Key)
	b.WriteByte('=')
	switch v.Kind() {
	case slog.KindString:
		b.WriteString(quoteIfNeeded(v.String()))
	case slog.KindTime:
		b.WriteString(v.Time().Format(time.RFC3339))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			b.WriteString(strconv.Quote(err.Error()))
			return
		}
		b.WriteString(quoteIfNeeded(fmt.Sprint(v.Any())))
	default:
		// Numbers, bools and durations print plainly
		b.WriteString(v.String())
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=|") {
		return strconv.Quote(s)
	}
	return s
}

func (h *CompactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" && a.Key != keyComponent && a.Key != keyProject {
			a.Key = h.prefix + a.Key
		}
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *CompactHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}
