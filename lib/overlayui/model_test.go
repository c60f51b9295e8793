// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package overlayui

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/overlay/chat"
)

// TestMain renders without color so views compare as plain text
// whatever terminal the tests run under.
func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

// newSizedModel returns a model that has received its first window
// size, as a running program would.
func newSizedModel(t *testing.T, config Config) Model {
	t.Helper()
	model := NewModel(config)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	return updated.(Model)
}

func deliver(t *testing.T, model Model, event chat.Event) Model {
	t.Helper()
	updated, _ := model.Update(eventMsg{Event: event})
	return updated.(Model)
}

func requireView(t *testing.T, model Model, want string) {
	t.Helper()
	if view := model.View(); !strings.Contains(view, want) {
		t.Fatalf("view does not contain %q:\n%s", want, view)
	}
}

func TestViewBeforeSize(t *testing.T) {
	model := NewModel(Config{})
	if view := model.View(); view != "" {
		t.Errorf("View() before WindowSizeMsg = %q, want empty", view)
	}
}

func TestRemoteMessageStripsEscapes(t *testing.T) {
	model := newSizedModel(t, Config{})
	model = deliver(t, model, chat.MessageEvent{
		RoomID: "!room:local",
		Sender: "@bob:local",
		Body:   "hi \x1b[31mthere\x1b[0m\x1b]0;pwned\x07",
	})

	if len(model.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(model.entries))
	}
	if got := model.entries[0].text; got != "hi there" {
		t.Errorf("stored text = %q, want escapes stripped", got)
	}
	requireView(t, model, "@bob:local:")
	requireView(t, model, "hi there")
}

func TestRoomCreatedShowsLink(t *testing.T) {
	model := newSizedModel(t, Config{Title: "overlay"})
	model = deliver(t, model, chat.RoomResult{
		Success: true,
		RoomID:  "!new:local",
		Alias:   "#room_42:local",
		Created: true,
	})
	requireView(t, model, "Room created! Link: #room_42:local")
	if model.title != "#room_42:local" {
		t.Errorf("title = %q, want the room alias", model.title)
	}
}

func TestRoomResults(t *testing.T) {
	tests := []struct {
		name   string
		result chat.RoomResult
		want   string
	}{
		{
			name:   "joined by alias",
			result: chat.RoomResult{Success: true, RoomID: "!a:local", Alias: "#lobby:local"},
			want:   "Joined #lobby:local.",
		},
		{
			name:   "joined by id",
			result: chat.RoomResult{Success: true, RoomID: "!a:local"},
			want:   "Joined !a:local.",
		},
		{
			name:   "join failed",
			result: chat.RoomResult{Err: errors.New("M_NOT_FOUND")},
			want:   "Failed to join room: M_NOT_FOUND",
		},
		{
			name:   "create failed",
			result: chat.RoomResult{Created: true, Err: errors.New("M_ROOM_IN_USE")},
			want:   "Failed to create room: M_ROOM_IN_USE",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			model := deliver(t, newSizedModel(t, Config{}), test.result)
			requireView(t, model, test.want)
		})
	}
}

func TestLoginResults(t *testing.T) {
	model := newSizedModel(t, Config{})
	model = deliver(t, model, chat.LoginResult{Success: true, UserID: "@me:local", Restored: true})
	requireView(t, model, "Signed in as @me:local (saved session).")

	model = deliver(t, model, chat.LoginResult{Err: chat.ErrAuthExpired})
	requireView(t, model, "Login failed: "+chat.ErrAuthExpired.Error())
}

func TestSendFailureWithoutRoom(t *testing.T) {
	model := newSizedModel(t, Config{})
	model = deliver(t, model, chat.SendFailure{
		Text: "hello",
		Err:  fmt.Errorf("chat: send: %w", chat.ErrNoRoom),
	})
	requireView(t, model, "No room joined yet")

	model = deliver(t, model, chat.SendFailure{Text: "hello", Err: errors.New("M_FORBIDDEN")})
	requireView(t, model, "Message not sent: M_FORBIDDEN")
}

func TestSubmit(t *testing.T) {
	var sent []string
	model := newSizedModel(t, Config{
		Self: "@me:local",
		Send: func(text string) error {
			sent = append(sent, text)
			return nil
		},
	})

	// Blank input is ignored.
	model.input.SetValue("   ")
	updated, command := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = updated.(Model)
	if command != nil || len(model.entries) != 0 {
		t.Fatal("blank input was submitted")
	}

	model.input.SetValue("  hello world ")
	updated, command = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = updated.(Model)
	if command == nil {
		t.Fatal("submit returned no command")
	}
	if model.input.Value() != "" {
		t.Errorf("input = %q after submit, want cleared", model.input.Value())
	}
	requireView(t, model, "@me:local: hello world")

	result := command()
	if _, ok := result.(sendResultMsg); !ok {
		t.Fatalf("command produced %T, want sendResultMsg", result)
	}
	if len(sent) != 1 || sent[0] != "hello world" {
		t.Fatalf("sent = %q, want [hello world]", sent)
	}

	updated, _ = model.Update(result)
	model = updated.(Model)
	if strings.Contains(model.View(), "Message not sent") {
		t.Error("successful send reported a failure")
	}
}

func TestSubmitError(t *testing.T) {
	model := newSizedModel(t, Config{
		Send: func(string) error { return errors.New("websocket: not connected") },
	})
	model.input.SetValue("ping")
	updated, command := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = updated.(Model)
	updated, _ = model.Update(command())
	model = updated.(Model)
	requireView(t, model, "Message not sent: websocket: not connected")
}

func TestSubmitWithoutSender(t *testing.T) {
	model := newSizedModel(t, Config{})
	model.input.SetValue("ping")
	updated, command := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = updated.(Model)
	if command != nil {
		t.Error("submit without Send returned a command")
	}
	requireView(t, model, "Sending is not available.")
}

func TestQuit(t *testing.T) {
	model := newSizedModel(t, Config{})
	_, command := model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if command == nil {
		t.Fatal("esc returned no command")
	}
	if _, ok := command().(tea.QuitMsg); !ok {
		t.Error("esc did not quit")
	}
}

func TestListenForEvent(t *testing.T) {
	if listenForEvent(nil) != nil {
		t.Error("listenForEvent(nil) returned a command")
	}

	events := make(chan chat.Event, 1)
	events <- chat.MessageEvent{Body: "one"}
	message := listenForEvent(events)()
	received, ok := message.(eventMsg)
	if !ok {
		t.Fatalf("got %T, want eventMsg", message)
	}
	if body := received.Event.(chat.MessageEvent).Body; body != "one" {
		t.Errorf("body = %q", body)
	}

	close(events)
	if _, ok := listenForEvent(events)().(eventsClosedMsg); !ok {
		t.Error("closed stream did not produce eventsClosedMsg")
	}
}

func TestEventRearmsListener(t *testing.T) {
	events := make(chan chat.Event, 1)
	model := newSizedModel(t, Config{Events: events})
	_, command := model.Update(eventMsg{Event: chat.MessageEvent{Body: "one"}})
	if command == nil {
		t.Fatal("event handling did not re-arm the event listener")
	}
	events <- chat.MessageEvent{Body: "two"}
	if message, ok := command().(eventMsg); !ok || message.Event.(chat.MessageEvent).Body != "two" {
		t.Errorf("re-armed listener produced %+v", message)
	}
}

func TestEventsClosed(t *testing.T) {
	model := newSizedModel(t, Config{})
	updated, command := model.Update(eventsClosedMsg{})
	model = updated.(Model)
	if command != nil {
		t.Error("closed stream re-armed the listener")
	}
	requireView(t, model, "Disconnected.")
	requireView(t, model, "disconnected")
}

func TestLogRecordFades(t *testing.T) {
	model := newSizedModel(t, Config{})

	updated, command := model.Update(logRecordMsg{Summary: "sync failed (error=timeout)", Level: slog.LevelWarn})
	model = updated.(Model)
	if command == nil {
		t.Fatal("log record did not schedule a fade")
	}
	requireView(t, model, "sync failed (error=timeout)")
	first := model.statusGeneration

	updated, _ = model.Update(logRecordMsg{Summary: "second", Level: slog.LevelError})
	model = updated.(Model)

	// The fade for the first record must not clear the second.
	updated, _ = model.Update(logRecordFadeMsg{Generation: first})
	model = updated.(Model)
	requireView(t, model, "second")

	updated, _ = model.Update(logRecordFadeMsg{Generation: model.statusGeneration})
	model = updated.(Model)
	if model.status != "" {
		t.Errorf("status = %q after fade, want cleared", model.status)
	}
	requireView(t, model, "enter send")
}

func TestScrollKeepsPosition(t *testing.T) {
	model := newSizedModel(t, Config{})
	for index := range 40 {
		model = deliver(t, model, chat.MessageEvent{Sender: "@bob:local", Body: fmt.Sprintf("line %d", index)})
	}
	if !model.history.AtBottom() {
		t.Fatal("history is not following new messages")
	}

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyPgUp})
	model = updated.(Model)
	if model.history.AtBottom() {
		t.Fatal("page up did not scroll")
	}
	offset := model.history.YOffset

	model = deliver(t, model, chat.MessageEvent{Sender: "@bob:local", Body: "late"})
	if model.history.YOffset != offset {
		t.Errorf("YOffset moved from %d to %d while scrolled up", offset, model.history.YOffset)
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	model = updated.(Model)
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	model = updated.(Model)
	if !model.history.AtBottom() {
		t.Error("page down did not return to the bottom")
	}
}
