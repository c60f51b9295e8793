// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package overlayui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for the overlay TUI. Printable keys
// all go to the compose box, so only control and navigation keys are
// bound here.
type KeyMap struct {
	Submit   key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "send"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("pgup", "scroll up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("pgdn", "scroll down"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("esc", "quit"),
	),
}

// helpLine renders the bindings as "key action" pairs for the status
// line.
func (keys KeyMap) helpLine() string {
	bindings := []key.Binding{keys.Submit, keys.PageUp, keys.PageDown, keys.Quit}
	line := ""
	for index, binding := range bindings {
		if index > 0 {
			line += "  "
		}
		help := binding.Help()
		line += help.Key + " " + help.Desc
	}
	return line
}
