// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

// Event is a notification from a Client to its consumer, read from
// Client.Events. The concrete types are MessageEvent, LoginResult,
// RoomResult, and SendFailure.
type Event interface {
	event()
}

// MessageEvent is a text message from another user in the current room.
// A read receipt for EventID has been (or is being) sent.
type MessageEvent struct {
	RoomID  string
	EventID string
	Sender  string
	Body    string
}

// LoginResult reports the outcome of one login attempt.
type LoginResult struct {
	Success bool

	// UserID is set on success.
	UserID string

	// Restored is true when stored credentials were accepted and no
	// interactive login took place.
	Restored bool

	Err error
}

// RoomResult reports the outcome of one create or join attempt.
type RoomResult struct {
	Success bool
	RoomID  string

	// Alias is the shareable "#name:server" link: the generated alias
	// for a created room, or the alias the user joined by.
	Alias string

	// Created is true when this client created the room.
	Created bool

	Err error
}

// SendFailure reports an outbound message that was not delivered.
// Failed sends are not retried.
type SendFailure struct {
	Text string
	Err  error
}

func (MessageEvent) event() {}
func (LoginResult) event()  {}
func (RoomResult) event()   {}
func (SendFailure) event()  {}
