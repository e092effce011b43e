// Package logging builds the slog loggers used by the chatstream binaries.
//
// Records go to the console and, when Options.File is set, to a size-rotated
// log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New. The zero value logs text at info level to stderr.
type Options struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json

	// File enables a rotated log file next to the console output.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`  // 0 → 10
	MaxBackups int    `yaml:"max_backups"`  // 0 → 5
	MaxAgeDays int    `yaml:"max_age_days"` // 0 → keep forever
	Compress   bool   `yaml:"compress"`

	// Console receives records besides the file. nil → os.Stderr;
	// io.Discard silences the console.
	Console io.Writer `yaml:"-"`
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// New builds a logger. The returned closer flushes and closes the log file;
// it is safe to call when no file is configured.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	w := console
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: create log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
			LocalTime:  true,
		}
		closer = file
		if console == io.Discard {
			w = file
		} else {
			w = io.MultiWriter(console, file)
		}
	}

	ho := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		h = slog.NewJSONHandler(w, ho)
	case "", "text":
		h = slog.NewTextHandler(w, ho)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}
	return slog.New(h), closer, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
