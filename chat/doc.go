// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat is the session client: it drives a messaging.Session
// through login, room entry, and a background sync loop, and delivers
// outbound messages as tracked background tasks.
//
// A Client reports to its consumer over a single channel (Events)
// rather than callbacks, so presentation code never runs on the sync
// goroutine or a send goroutine. The consumer sees:
//
//   - LoginResult, once per Login or LoginWithPassword call
//   - RoomResult, once per CreateRoom or JoinRoom call
//   - MessageEvent, for each text message from another user in the
//     current room
//   - SendFailure, for each message that could not be delivered
//
// Login first tries credentials from the CredentialStore, checking
// them with a whoami call, and falls back to an interactive sign-on
// token from the TokenSource. Successful logins are persisted.
//
// The sync loop issues one sync at a time, advancing the cursor only
// when the server returns a new one, and pauses SyncInterval between
// iterations whether or not anything arrived. Each forwarded message
// is immediately acknowledged with a read receipt.
//
// Stop cancels login, room, and sync requests, waits for the sync
// loop, and then waits for every outbound task to finish. It is safe
// to call Stop from the goroutine reading Events.
package chat
