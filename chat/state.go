// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "fmt"

// State is the session's position in its lifecycle.
//
//	Unauthenticated -> Authenticating -> Authenticated -> InRoom -> Syncing
//
// Stopped is reachable from every state and is final. A failed login
// returns to Unauthenticated.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateInRoom
	StateSyncing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateInRoom:
		return "in-room"
	case StateSyncing:
		return "syncing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
