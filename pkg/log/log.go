package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.999Z07:00"

// New returns the logger of the binaries, writing to stderr. Under Kubernetes
// it writes zerolog JSON lines, on a console colored text.
func New(level slog.Leveler) *slog.Logger {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return NewJSON(os.Stderr, level)
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: consoleTimeFormat,
	}))
}

// NewJSON returns a logger writing zerolog JSON lines to w. A nil level
// means slog.LevelInfo.
func NewJSON(w io.Writer, level slog.Leveler) *slog.Logger {
	if level == nil {
		level = slog.LevelInfo
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return slog.New(&zerologHandler{
		log:   zerolog.New(w).With().Timestamp().Logger(),
		level: level,
	})
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(s))
	return l, err
}

type zerologHandler struct {
	log    zerolog.Logger
	level  slog.Leveler
	prefix string
}

func (h *zerologHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *zerologHandler) Handle(_ context.Context, r slog.Record) error {
	ev := h.log.WithLevel(zerologLevel(r.Level))
	r.Attrs(func(a slog.Attr) bool {
		addAttr(ev, h.prefix, a)
		return true
	})
	ev.Msg(r.Message)
	return nil
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	ctx := h.log.With().Fields(collect(attrs, h.prefix))
	return &zerologHandler{log: ctx.Logger(), level: h.level, prefix: h.prefix}
}

func (h *zerologHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &zerologHandler{log: h.log, level: h.level, prefix: h.prefix + name + "."}
}

func addAttr(ev *zerolog.Event, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range v.Group() {
			addAttr(ev, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}

	key := prefix + a.Key
	switch v.Kind() {
	case slog.KindString:
		ev.Str(key, v.String())
	case slog.KindInt64:
		ev.Int64(key, v.Int64())
	case slog.KindUint64:
		ev.Uint64(key, v.Uint64())
	case slog.KindFloat64:
		ev.Float64(key, v.Float64())
	case slog.KindBool:
		ev.Bool(key, v.Bool())
	case slog.KindDuration:
		ev.Dur(key, v.Duration())
	case slog.KindTime:
		ev.Time(key, v.Time())
	default:
		if err, ok := v.Any().(error); ok {
			ev.AnErr(key, err)
			return
		}
		ev.Interface(key, v.Any())
	}
}

func collect(attrs []slog.Attr, prefix string) map[string]any {
	fields := make(map[string]any, len(attrs))
	var walk func(p string, as []slog.Attr)
	walk = func(p string, as []slog.Attr) {
		for _, a := range as {
			v := a.Value.Resolve()
			if v.Kind() == slog.KindGroup {
				walk(p+a.Key+".", v.Group())
				continue
			}
			if a.Key == "" {
				continue
			}
			if err, ok := v.Any().(error); ok {
				fields[p+a.Key] = err.Error()
				continue
			}
			fields[p+a.Key] = v.Any()
		}
	}
	walk(prefix, attrs)
	return fields
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l >= slog.LevelError:
		return zerolog.ErrorLevel
	case l >= slog.LevelWarn:
		return zerolog.WarnLevel
	case l >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
