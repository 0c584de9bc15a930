package logging

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// GelfHandler sends records to Graylog. Attributes become GELF additional
// fields; groups are flattened with "." separators.
type GelfHandler struct {
	w     *gelf.Writer
	level slog.Leveler
	host  string
	attrs map[string]interface{}
	group string
}

// NewGelfHandler dials addr (UDP) and returns a handler for records at or
// above level. Close the returned writer on shutdown.
func NewGelfHandler(addr string, level string) (*GelfHandler, *gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, nil, err
	}
	host, _ := os.Hostname()
	return &GelfHandler{
		w:     w,
		level: parseLevel(level),
		host:  host,
		attrs: map[string]interface{}{},
	}, w, nil
}

// Enabled reports whether level passes the handler's threshold.
func (h *GelfHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle converts r to a GELF message and sends it.
func (h *GelfHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	for k, v := range h.attrs {
		extra[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		addGelfField(extra, h.group, a)
		return true
	})

	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	return h.w.WriteMessage(&gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(t.UnixNano()) / float64(time.Second),
		Level:    syslogLevel(r.Level),
		Facility: "rwtas",
		Extra:    extra,
	})
}

// WithAttrs returns a handler that adds attrs to every message.
func (h *GelfHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for _, a := range attrs {
		addGelfField(next.attrs, h.group, a)
	}
	return next
}

// WithGroup returns a handler that prefixes later attribute keys with name.
func (h *GelfHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.group = h.group + name + "."
	return next
}

func (h *GelfHandler) clone() *GelfHandler {
	attrs := make(map[string]interface{}, len(h.attrs))
	for k, v := range h.attrs {
		attrs[k] = v
	}
	return &GelfHandler{w: h.w, level: h.level, host: h.host, attrs: attrs, group: h.group}
}

func addGelfField(dst map[string]interface{}, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range v.Group() {
			addGelfField(dst, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	key := "_" + prefix + a.Key
	switch v.Kind() {
	case slog.KindInt64:
		dst[key] = v.Int64()
	case slog.KindUint64:
		dst[key] = v.Uint64()
	case slog.KindFloat64:
		dst[key] = v.Float64()
	case slog.KindBool:
		dst[key] = v.Bool()
	default:
		dst[key] = v.String()
	}
}

// syslogLevel maps slog levels onto the syslog severities GELF uses.
func syslogLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return 3
	case l >= slog.LevelWarn:
		return 4
	case l >= slog.LevelInfo:
		return 6
	default:
		return 7
	}
}
