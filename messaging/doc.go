// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is the Matrix client-server API surface used by
// the overlay.
//
// [Gateway] performs single request/response cycles: no connection
// reuse, bounded body reads, and a Cancel that aborts every request in
// flight. Responses carrying an "errcode" are returned as [*MatrixError]
// regardless of HTTP status; transport failures wrap [ErrNetwork].
//
// [Client] is unauthenticated and handles password and SSO token
// logins. [Session] holds an access token in protected memory and
// covers the rest: whoami, room creation and joins, message sends,
// read receipts, and long-poll sync. Transaction IDs come from a
// per-session counter so rapid sends never collide.
//
// [NewTextMessage] attaches an HTML rendering when the body contains
// Markdown.
package messaging
