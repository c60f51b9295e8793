// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package websocket is a minimal RFC 6455 client used by the
// WebSocket build of the overlay. It speaks only single-frame text
// messages: [Encode] produces masked client frames, [Decode] and
// [DecodeAll] parse server frames, and [Conn] owns the socket, the
// upgrade handshake, and a receive goroutine that delivers text
// payloads on [Conn.Messages].
//
// Frames of any other type are skipped, except close, which ends the
// connection. There is no reconnection; callers dial again.
package websocket
