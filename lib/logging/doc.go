// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the slog loggers used by the overlay
// commands: a stderr logger whose format follows the terminal, a rotating
// JSON file handler for when the terminal UI owns the screen, and a fanout
// handler to combine them.
package logging
