// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package overlayui

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/overlay/chat"
)

// chromeHeight is the number of rows outside the history viewport:
// header, status line, compose box.
const chromeHeight = 3

// Config configures a Model.
type Config struct {
	// Events is the session's event stream. The model reads it until
	// it is closed.
	Events <-chan chat.Event

	// Send delivers one submitted line. It runs off the UI goroutine.
	// A returned error is shown in the history; failures reported
	// later arrive on Events as chat.SendFailure.
	Send func(text string) error

	// Title is shown in the header until a room is entered.
	Title string

	// Self labels the local user's own lines. Defaults to "you".
	Self string

	// Keys defaults to DefaultKeyMap.
	Keys *KeyMap

	// Theme defaults to DefaultTheme.
	Theme *Theme
}

type entryKind int

const (
	entryRemote entryKind = iota
	entrySelf
	entryNotice
	entryLink
	entryError
)

// entry is one line of history before wrapping.
type entry struct {
	kind   entryKind
	sender string
	text   string
}

// eventMsg carries one chat event into Update.
type eventMsg struct {
	Event chat.Event
}

// eventsClosedMsg reports that the event stream has ended.
type eventsClosedMsg struct{}

// sendResultMsg carries the synchronous result of Config.Send.
type sendResultMsg struct {
	Text string
	Err  error
}

// Model is the bubbletea model for the overlay TUI.
type Model struct {
	events <-chan chat.Event
	send   func(text string) error
	self   string
	keys   KeyMap
	theme  Theme

	title   string
	entries []entry
	closed  bool

	history viewport.Model
	input   textinput.Model
	width   int
	height  int
	ready   bool

	status           string
	statusLevel      slog.Level
	statusGeneration int
}

// NewModel creates a Model from config.
func NewModel(config Config) Model {
	keys := DefaultKeyMap
	if config.Keys != nil {
		keys = *config.Keys
	}
	theme := DefaultTheme
	if config.Theme != nil {
		theme = *config.Theme
	}
	self := config.Self
	if self == "" {
		self = "you"
	}

	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "Type a message"
	input.Focus()

	return Model{
		events: config.Events,
		send:   config.Send,
		self:   self,
		keys:   keys,
		theme:  theme,
		title:  config.Title,
		input:  input,
	}
}

// Init starts the cursor blink and the first read of the event stream.
func (model Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, listenForEvent(model.events))
}

// listenForEvent returns a command that blocks until the next event or
// the end of the stream. Update re-issues it after each event.
func listenForEvent(events <-chan chat.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{Event: event}
	}
}

// sendCommand runs send off the UI goroutine.
func sendCommand(send func(string) error, text string) tea.Cmd {
	return func() tea.Msg {
		return sendResultMsg{Text: text, Err: send(text)}
	}
}

// Update handles one message.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.resize(message.Width, message.Height)
		return model, nil

	case tea.KeyMsg:
		return model.handleKey(message)

	case eventMsg:
		model.handleEvent(message.Event)
		return model, listenForEvent(model.events)

	case eventsClosedMsg:
		model.closed = true
		model.appendEntry(entry{kind: entryNotice, text: "Disconnected."})
		return model, nil

	case sendResultMsg:
		if message.Err != nil {
			model.appendEntry(entry{kind: entryError, text: "Message not sent: " + message.Err.Error()})
		}
		return model, nil

	case logRecordMsg:
		model.status = ansi.Strip(message.Summary)
		model.statusLevel = message.Level
		model.statusGeneration++
		generation := model.statusGeneration
		return model, tea.Tick(logRecordFadeDelay, func(time.Time) tea.Msg {
			return logRecordFadeMsg{Generation: generation}
		})

	case logRecordFadeMsg:
		if message.Generation == model.statusGeneration {
			model.status = ""
		}
		return model, nil
	}

	var command tea.Cmd
	model.input, command = model.input.Update(message)
	return model, command
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Submit):
		text := strings.TrimSpace(model.input.Value())
		if text == "" {
			return model, nil
		}
		model.input.Reset()
		if model.send == nil {
			model.appendEntry(entry{kind: entryError, text: "Sending is not available."})
			return model, nil
		}
		model.appendEntry(entry{kind: entrySelf, sender: model.self, text: text})
		return model, sendCommand(model.send, text)

	case key.Matches(message, model.keys.PageUp):
		model.history.LineUp(max(1, model.history.Height-1))
		return model, nil

	case key.Matches(message, model.keys.PageDown):
		model.history.LineDown(max(1, model.history.Height-1))
		return model, nil
	}

	var command tea.Cmd
	model.input, command = model.input.Update(message)
	return model, command
}

// handleEvent turns one chat event into history entries.
func (model *Model) handleEvent(event chat.Event) {
	switch event := event.(type) {
	case chat.MessageEvent:
		model.appendEntry(entry{
			kind:   entryRemote,
			sender: ansi.Strip(event.Sender),
			text:   ansi.Strip(event.Body),
		})

	case chat.LoginResult:
		switch {
		case event.Success && event.Restored:
			model.appendEntry(entry{kind: entryNotice, text: "Signed in as " + event.UserID + " (saved session)."})
		case event.Success:
			model.appendEntry(entry{kind: entryNotice, text: "Signed in as " + event.UserID + "."})
		default:
			model.appendEntry(entry{kind: entryError, text: "Login failed: " + errorText(event.Err)})
		}

	case chat.RoomResult:
		model.handleRoomResult(event)

	case chat.SendFailure:
		if errors.Is(event.Err, chat.ErrNoRoom) {
			model.appendEntry(entry{kind: entryError, text: "No room joined yet"})
			return
		}
		model.appendEntry(entry{kind: entryError, text: "Message not sent: " + errorText(event.Err)})
	}
}

func (model *Model) handleRoomResult(event chat.RoomResult) {
	if !event.Success {
		if event.Created {
			model.appendEntry(entry{kind: entryError, text: "Failed to create room: " + errorText(event.Err)})
		} else {
			model.appendEntry(entry{kind: entryError, text: "Failed to join room: " + errorText(event.Err)})
		}
		return
	}
	name := event.Alias
	if name == "" {
		name = event.RoomID
	}
	model.title = name
	if event.Created && event.Alias != "" {
		model.appendEntry(entry{kind: entryLink, text: event.Alias})
		return
	}
	model.appendEntry(entry{kind: entryNotice, text: "Joined " + name + "."})
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func (model *Model) appendEntry(item entry) {
	model.entries = append(model.entries, item)
	model.refresh()
}

func (model *Model) resize(width, height int) {
	model.width = width
	model.height = height
	model.history.Width = width
	model.history.Height = max(1, height-chromeHeight)
	model.ready = true
	model.input.Width = max(1, width-lipgloss.Width(model.input.Prompt)-1)
	model.refresh()
}

// refresh re-renders every entry at the current width. The view stays
// pinned to the newest line unless the user has scrolled up.
func (model *Model) refresh() {
	if !model.ready {
		return
	}
	following := model.history.AtBottom()
	rendered := make([]string, 0, len(model.entries))
	for _, item := range model.entries {
		rendered = append(rendered, model.renderEntry(item))
	}
	model.history.SetContent(strings.Join(rendered, "\n"))
	if following {
		model.history.GotoBottom()
	}
}

func (model Model) renderEntry(item entry) string {
	wrap := lipgloss.NewStyle().Width(model.width)
	switch item.kind {
	case entryRemote, entrySelf:
		color := model.theme.RemoteSender
		if item.kind == entrySelf {
			color = model.theme.SelfSender
		}
		sender := lipgloss.NewStyle().Foreground(color).Bold(true).Render(item.sender + ":")
		body := lipgloss.NewStyle().Foreground(model.theme.NormalText).Render(item.text)
		return wrap.Render(sender + " " + body)
	case entryLink:
		link := lipgloss.NewStyle().Foreground(model.theme.LinkForeground).Underline(true).Render(item.text)
		return wrap.Render(lipgloss.NewStyle().Foreground(model.theme.NoticeText).Render("Room created! Link: ") + link)
	case entryError:
		return wrap.Foreground(model.theme.ErrorText).Render(item.text)
	default:
		return wrap.Foreground(model.theme.NoticeText).Italic(true).Render(item.text)
	}
}

// View renders the header, history, status line, and compose box.
func (model Model) View() string {
	if !model.ready {
		return ""
	}
	title := model.title
	if title == "" {
		title = "overlay"
	}
	header := lipgloss.NewStyle().
		Width(model.width).
		Foreground(model.theme.HeaderForeground).
		Background(model.theme.HeaderBackground).
		Bold(true).
		Render(ansi.Truncate(title, model.width, "…"))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		model.history.View(),
		model.statusLine(),
		model.input.View(),
	)
}

func (model Model) statusLine() string {
	style := lipgloss.NewStyle().Width(model.width).MaxHeight(1)
	switch {
	case model.status != "" && model.statusLevel >= slog.LevelError:
		return style.Foreground(model.theme.ErrorText).Render(ansi.Truncate(model.status, model.width, "…"))
	case model.status != "":
		return style.Foreground(model.theme.WarnText).Render(ansi.Truncate(model.status, model.width, "…"))
	case model.closed:
		return style.Foreground(model.theme.ErrorText).Render("disconnected  " + model.keys.helpLine())
	default:
		return style.Foreground(model.theme.HelpText).Render(model.keys.helpLine())
	}
}
