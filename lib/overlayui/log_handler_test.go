// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package overlayui

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestLogHandlerEnabled(t *testing.T) {
	handler := NewLogHandler(slog.LevelWarn)
	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info enabled at warn level")
	}
	if !handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("error not enabled at warn level")
	}
}

func TestLogHandlerDropsWithoutProgram(t *testing.T) {
	handler := NewLogHandler(slog.LevelWarn)
	record := slog.NewRecord(time.Now(), slog.LevelWarn, "dropped", 0)
	if err := handler.Handle(context.Background(), record); err != nil {
		t.Fatalf("Handle: %v", err)
	}
}

func TestLogHandlerSummary(t *testing.T) {
	root := NewLogHandler(slog.LevelWarn)
	derived := root.WithAttrs([]slog.Attr{slog.String("component", "sync")}).
		WithGroup("request").(*LogHandler)

	if derived.program != root.program {
		t.Fatal("derived handler does not share the program pointer")
	}

	record := slog.NewRecord(time.Now(), slog.LevelWarn, "sync failed", 0)
	record.AddAttrs(slog.Int("status", 502))
	got := derived.summarize(record)
	want := "sync failed (component=sync, request.status=502)"
	if got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}

	bare := slog.NewRecord(time.Now(), slog.LevelWarn, "plain", 0)
	if got := root.summarize(bare); got != "plain" {
		t.Errorf("summary = %q, want %q", got, "plain")
	}
}
