// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package overlayui

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// logRecordMsg delivers a slog record to the model for display in the
// status line.
type logRecordMsg struct {
	Summary string
	Level   slog.Level
}

// logRecordFadeMsg clears the status line once a record has been shown
// for logRecordFadeDelay. Generation identifies the record it belongs
// to, so a newer record is not cleared early.
type logRecordFadeMsg struct {
	Generation int
}

// logRecordFadeDelay is how long a log record stays in the status line
// before the key help returns.
const logRecordFadeDelay = 5 * time.Second

// LogHandler is a slog.Handler that routes records into a running
// bubbletea program as status-line messages. Records below the
// configured level are dropped, as are records that arrive before
// SetProgram.
//
// Handlers derived via WithAttrs and WithGroup share the program
// pointer of the handler they came from.
type LogHandler struct {
	level   slog.Level
	program *atomic.Pointer[tea.Program]
	attrs   []slog.Attr
	groups  []string
}

// NewLogHandler creates a handler that delivers records at or above
// level. Call SetProgram once the tea.Program exists.
func NewLogHandler(level slog.Level) *LogHandler {
	return &LogHandler{
		level:   level,
		program: &atomic.Pointer[tea.Program]{},
	}
}

// SetProgram sets the program that receives log records. Safe to call
// from any goroutine.
func (handler *LogHandler) SetProgram(program *tea.Program) {
	handler.program.Store(program)
}

func (handler *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= handler.level
}

// Handle formats the record as "message (key=value, ...)" and sends it
// to the program.
func (handler *LogHandler) Handle(_ context.Context, record slog.Record) error {
	program := handler.program.Load()
	if program == nil {
		return nil
	}
	program.Send(logRecordMsg{
		Summary: handler.summarize(record),
		Level:   record.Level,
	})
	return nil
}

func (handler *LogHandler) summarize(record slog.Record) string {
	var parts []string
	for _, attr := range handler.attrs {
		parts = append(parts, attr.Key+"="+attr.Value.String())
	}
	prefix := ""
	if len(handler.groups) > 0 {
		prefix = strings.Join(handler.groups, ".") + "."
	}
	record.Attrs(func(attr slog.Attr) bool {
		parts = append(parts, prefix+attr.Key+"="+attr.Value.String())
		return true
	})
	if len(parts) == 0 {
		return record.Message
	}
	return record.Message + " (" + strings.Join(parts, ", ") + ")"
}

func (handler *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(handler.groups) > 0 {
		prefix = strings.Join(handler.groups, ".") + "."
	}
	combined := slices.Clone(handler.attrs)
	for _, attr := range attrs {
		combined = append(combined, slog.Attr{Key: prefix + attr.Key, Value: attr.Value})
	}
	return &LogHandler{
		level:   handler.level,
		program: handler.program,
		attrs:   combined,
		groups:  slices.Clone(handler.groups),
	}
}

func (handler *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return handler
	}
	return &LogHandler{
		level:   handler.level,
		program: handler.program,
		attrs:   slices.Clone(handler.attrs),
		groups:  append(slices.Clone(handler.groups), name),
	}
}
