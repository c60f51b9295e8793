// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credstore persists the access token and user ID of the last
// login, plus the last room entered, in a per-user directory.
//
// The credential blob is CBOR, sealed with an age X25519 identity that
// the store generates on first save and keeps in the same directory
// with mode 0600. Only a process running as the same user can read the
// identity, and so only that user can open the blob. Load never fails
// loudly: anything short of a clean decrypt reports "nothing stored" so
// the caller falls through to interactive login.
package credstore
