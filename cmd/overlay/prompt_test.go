// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/bureau-foundation/overlay/chat"
)

func TestTerminalChooser(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		preset string
		prompt chat.RoomPrompt
		want   chat.RoomChoice
	}{
		{
			name:   "host",
			input:  "y\n",
			prompt: chat.RoomPrompt{Attempt: 1},
			want:   chat.RoomChoice{Create: true},
		},
		{
			name:   "join typed room",
			input:  "n\n#lobby:local\n",
			prompt: chat.RoomPrompt{Attempt: 1, Suggestion: "#old:local"},
			want:   chat.RoomChoice{Room: "#lobby:local"},
		},
		{
			name:   "accept suggestion",
			input:  "\n\n",
			prompt: chat.RoomPrompt{Attempt: 1, Suggestion: "#old:local"},
			want:   chat.RoomChoice{Room: "#old:local"},
		},
		{
			name:   "nothing to join reprompts",
			input:  "\n\n",
			prompt: chat.RoomPrompt{Attempt: 1},
			want:   chat.RoomChoice{},
		},
		{
			name:   "preset join",
			preset: "!room:local",
			prompt: chat.RoomPrompt{Attempt: 1},
			want:   chat.RoomChoice{Room: "!room:local"},
		},
		{
			name:   "preset host",
			preset: "NEW",
			prompt: chat.RoomPrompt{Attempt: 1},
			want:   chat.RoomChoice{Create: true},
		},
		{
			name:   "preset only answers the first prompt",
			preset: "!room:local",
			input:  "y\n",
			prompt: chat.RoomPrompt{Attempt: 2, LastErr: errors.New("M_NOT_FOUND")},
			want:   chat.RoomChoice{Create: true},
		},
		{
			name:   "answer without trailing newline",
			input:  "n\n#last:local",
			prompt: chat.RoomPrompt{Attempt: 1},
			want:   chat.RoomChoice{Room: "#last:local"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var output strings.Builder
			chooser := newTerminalChooser(strings.NewReader(test.input), &output, test.preset)
			got, err := chooser.ChooseRoom(context.Background(), test.prompt)
			if err != nil {
				t.Fatalf("ChooseRoom: %v", err)
			}
			if got != test.want {
				t.Errorf("choice = %+v, want %+v", got, test.want)
			}
			if test.prompt.LastErr != nil && !strings.Contains(output.String(), test.prompt.LastErr.Error()) {
				t.Errorf("previous failure not shown: %q", output.String())
			}
		})
	}
}

func TestTerminalChooserEndOfInput(t *testing.T) {
	chooser := newTerminalChooser(strings.NewReader(""), io.Discard, "")
	_, err := chooser.ChooseRoom(context.Background(), chat.RoomPrompt{Attempt: 1})
	if !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestTerminalChooserCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chooser := newTerminalChooser(strings.NewReader("y\n"), io.Discard, "")
	if _, err := chooser.ChooseRoom(ctx, chat.RoomPrompt{Attempt: 1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
