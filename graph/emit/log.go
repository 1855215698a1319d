package emit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
)

// LogEmitter writes events as structured log records.
//
// Text mode produces logfmt-style lines; JSON mode produces one JSON
// object per line:
//
//	time=... level=INFO msg=node_end run_id=run-001 step=2 node_id=critic meta.duration_ms=12
//	{"time":"...","level":"INFO","msg":"node_end","run_id":"run-001","step":2,"node_id":"critic","meta":{"duration_ms":12}}
//
// Events carrying an "error" meta key are logged at ERROR, router
// fallbacks at WARN, everything else at INFO.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter returns a LogEmitter writing to w (stdout when nil).
func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	if w == nil {
		w = os.Stdout
	}
	var h slog.Handler
	if jsonMode {
		h = slog.NewJSONHandler(w, nil)
	} else {
		h = slog.NewTextHandler(w, nil)
	}
	return &LogEmitter{logger: slog.New(h)}
}

// NewSlogEmitter returns a LogEmitter that writes through an existing logger.
func NewSlogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(event Event) {
	level := slog.LevelInfo
	switch {
	case event.Msg == MsgRouterFallback:
		level = slog.LevelWarn
	case event.Meta["error"] != nil:
		level = slog.LevelError
	}

	attrs := []slog.Attr{slog.String("run_id", event.RunID)}
	if event.Step > 0 {
		attrs = append(attrs, slog.Int("step", event.Step))
	}
	if event.NodeID != "" {
		attrs = append(attrs, slog.String("node_id", event.NodeID))
	}
	if len(event.Meta) > 0 {
		keys := make([]string, 0, len(event.Meta))
		for k := range event.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		meta := make([]any, 0, len(keys))
		for _, k := range keys {
			meta = append(meta, slog.Any(k, event.Meta[k]))
		}
		attrs = append(attrs, slog.Group("meta", meta...))
	}

	l.logger.LogAttrs(context.Background(), level, event.Msg, attrs...)
}
