// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package overlayui

import "github.com/charmbracelet/lipgloss"

// Theme is the color palette of the overlay TUI. All colors use
// lipgloss ANSI 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Sender names: the local user and everyone else.
	SelfSender   lipgloss.Color
	RemoteSender lipgloss.Color

	// Notices about login, rooms, and delivery.
	NoticeText lipgloss.Color
	ErrorText  lipgloss.Color
	WarnText   lipgloss.Color

	// Room link in the "room created" notice.
	LinkForeground lipgloss.Color

	HeaderForeground lipgloss.Color
	HeaderBackground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelfSender:   lipgloss.Color("114"), // green
	RemoteSender: lipgloss.Color("75"),  // blue

	NoticeText: lipgloss.Color("245"),
	ErrorText:  lipgloss.Color("196"),
	WarnText:   lipgloss.Color("220"),

	LinkForeground: lipgloss.Color("141"), // light purple

	HeaderForeground: lipgloss.Color("255"),
	HeaderBackground: lipgloss.Color("236"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),
}
