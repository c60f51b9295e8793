// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ssologin completes single sign-on for a desktop client: it
// listens on a loopback port, opens the homeserver's sign-on page in a
// browser, and reads the loginToken from the one redirect request that
// comes back. Each [Listener.AwaitToken] call is a fresh, single-use
// listener.
package ssologin
