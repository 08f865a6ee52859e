// Package logging builds the process logger from resolved settings.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the level and destination of log output.
type Config struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string
	// File, when set, receives JSON records and is rotated by size.
	File string
	// MaxSizeMB is the size at which File is rotated. Values <= 0 mean 10.
	MaxSizeMB int
	// MaxFiles is the number of rotated backups kept. Negative means 5;
	// zero keeps none.
	MaxFiles int
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

// New returns a logger writing text to stderr, or JSON to cfg.File when it is
// set. The caller must Close the returned closer when done.
func New(cfg Config, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.File == "" {
		return slog.New(slog.NewTextHandler(stderr, opts)), nopCloser{}, nil
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxFiles := cfg.MaxFiles
	if maxFiles < 0 {
		maxFiles = 5
	}
	w := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: maxFiles,
	}
	return slog.New(slog.NewJSONHandler(w, opts)), w, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
