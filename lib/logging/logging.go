// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps "debug", "info", "warn", and "error" to slog levels.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", name)
}

// NewCommandLogger creates the logger for a command writing to stderr.
// Format "auto" uses slog.TextHandler when stderr is a terminal and
// slog.JSONHandler when it is piped or redirected; "text" and "json"
// force one or the other.
func NewCommandLogger(level slog.Level, format string) *slog.Logger {
	return slog.New(newHandler(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level, format))
}

func newHandler(output io.Writer, terminal bool, level slog.Level, format string) slog.Handler {
	options := &slog.HandlerOptions{Level: level}
	switch format {
	case "text":
		return slog.NewTextHandler(output, options)
	case "json":
		return slog.NewJSONHandler(output, options)
	}
	if terminal {
		return slog.NewTextHandler(output, options)
	}
	return slog.NewJSONHandler(output, options)
}

// Log files rotate at logFileMaxSize megabytes, keeping logFileBackups
// compressed predecessors.
const (
	logFileMaxSize = 10
	logFileBackups = 3
)

// OpenFileHandler opens path for appending and returns a JSON handler
// writing every record at or above level to it. The file is created
// with owner-only permissions and rotated by size. Call the returned
// function to close the file.
func OpenFileHandler(path string, level slog.Level) (slog.Handler, func(), error) {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logFileMaxSize,
		MaxBackups: logFileBackups,
		Compress:   true,
	}
	// lumberjack opens lazily; an empty write surfaces open errors now.
	if _, err := rotator.Write(nil); err != nil {
		return nil, nil, fmt.Errorf("logging: opening %s: %w", path, err)
	}
	handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: level})
	return handler, func() { rotator.Close() }, nil
}

// Fanout is a slog.Handler that sends each record to multiple
// underlying handlers. A record is enabled if any sub-handler is
// enabled for that level.
type Fanout []slog.Handler

func (handlers Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (handlers Fanout) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (handlers Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(Fanout, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithAttrs(attrs)
	}
	return derived
}

func (handlers Fanout) WithGroup(name string) slog.Handler {
	derived := make(Fanout, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithGroup(name)
	}
	return derived
}
