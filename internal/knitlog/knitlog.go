// Package knitlog builds the structured logger every knit component takes
// as a *slog.Logger field, defaulting to slog.Default() when unset. Grounded
// on the teacher's internal/logger design (a slog-backed Logger fanning out
// to stderr and a rotated file) and on go.mod's samber/slog-multi +
// natefinch/lumberjack, which the teacher carries for exactly that fan-out.
package knitlog

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jmou/knit/internal/config"
)

// New builds a logger that writes to stderr as text, or as JSON when
// cfg.LogFormat is "json" (or discards output when cfg.Quiet) and, when
// cfg.LogDir is set, JSON lines to
// a size-rotated file under that directory via lumberjack.
func New(cfg config.Config) *slog.Logger {
	level := parseLevel(cfg.LogLevel)

	var stderr io.Writer = os.Stderr
	if cfg.Quiet {
		stderr = io.Discard
	}
	handlers := []slog.Handler{newHandler(cfg.LogFormat, stderr, level)}

	if cfg.LogDir != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.LogDir + "/knit.log",
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
		}
		handlers = append(handlers, slog.NewJSONHandler(rotated, &slog.HandlerOptions{Level: level}))
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = slogmulti.Fanout(handlers...)
	}
	return slog.New(handler)
}

func newHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
