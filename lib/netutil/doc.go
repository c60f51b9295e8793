// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small I/O helpers shared by the HTTP gateway
// and the WebSocket transport: bounded body reads, header-block reads
// off a raw socket, and classification of ordinary close errors.
package netutil
