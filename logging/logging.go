// Package logging builds the process logger: slog records written to a
// rotating file, optionally mirrored to stderr.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"iflow_prompt_generator/config"
)

// Options adjusts New beyond the file configuration.
type Options struct {
	// Verbose forces the Debug level.
	Verbose bool
	// Stderr is the mirror target when cfg.Stderr is set; nil means os.Stderr.
	Stderr io.Writer
}

// New returns a logger for cfg and the closer for its file sink.
func New(cfg config.LogConfig, opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	var w io.Writer = file
	if cfg.Stderr {
		mirror := opts.Stderr
		if mirror == nil {
			mirror = os.Stderr
		}
		w = io.MultiWriter(file, mirror)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		h = slog.NewJSONHandler(w, handlerOpts)
	default:
		h = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(h), file, nil
}

// ParseLevel accepts debug, info, warn and error; empty means info.
func ParseLevel(s string) (slog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// Preview shortens s for debug logging.
func Preview(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
