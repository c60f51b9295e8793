// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bureau-foundation/overlay/chat"
)

// terminalChooser asks on the terminal whether to host a new room or
// join an existing one. It runs before the TUI takes over the screen.
type terminalChooser struct {
	input  *bufio.Reader
	output io.Writer

	// preset answers the first prompt without asking: "new" hosts,
	// anything else is a room to join. Set from --room.
	preset string
}

func newTerminalChooser(input io.Reader, output io.Writer, preset string) *terminalChooser {
	return &terminalChooser{
		input:  bufio.NewReader(input),
		output: output,
		preset: strings.TrimSpace(preset),
	}
}

func (chooser *terminalChooser) ChooseRoom(ctx context.Context, prompt chat.RoomPrompt) (chat.RoomChoice, error) {
	if err := ctx.Err(); err != nil {
		return chat.RoomChoice{}, err
	}
	if prompt.LastErr != nil {
		fmt.Fprintf(chooser.output, "Failed to join room: %v\n", prompt.LastErr)
	}
	if prompt.Attempt == 1 && chooser.preset != "" {
		if strings.EqualFold(chooser.preset, "new") {
			return chat.RoomChoice{Create: true}, nil
		}
		return chat.RoomChoice{Room: chooser.preset}, nil
	}

	answer, err := chooser.ask("Host a new room? [y/N]: ")
	if err != nil {
		return chat.RoomChoice{}, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return chat.RoomChoice{Create: true}, nil
	}

	question := "Enter room link: "
	if prompt.Suggestion != "" {
		question = fmt.Sprintf("Enter room link (or leave as suggested) [%s]: ", prompt.Suggestion)
	}
	room, err := chooser.ask(question)
	if err != nil {
		return chat.RoomChoice{}, err
	}
	if room == "" {
		room = prompt.Suggestion
	}
	// An empty choice asks to be prompted again.
	return chat.RoomChoice{Room: room}, nil
}

// ask prints question and returns the trimmed answer line. End of
// input before any answer aborts the prompt.
func (chooser *terminalChooser) ask(question string) (string, error) {
	fmt.Fprint(chooser.output, question)
	line, err := chooser.input.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}
