// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package overlayui is the terminal front end of the overlay binaries:
// a scrolling message history above a single-line compose box.
//
// The [Model] consumes the event stream of a chat session (a
// <-chan chat.Event) and hands submitted lines to a send function. Both
// build variants drive the same model: the Matrix variant passes
// chat.Client.Events and chat.Client.Send directly, the WebSocket
// variant adapts its connection into the same shapes.
//
// Text from remote users is stripped of terminal escape sequences
// before display. [LogHandler] routes slog warnings into the status
// line while the program owns the terminal.
package overlayui
