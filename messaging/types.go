// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import "time"

// Login types accepted by /login.
const (
	LoginTypePassword = "m.login.password"
	LoginTypeToken    = "m.login.token"
)

// Event and message types the client produces or consumes.
const (
	EventTypeMessage = "m.room.message"
	MsgTypeText      = "m.text"
	ReceiptTypeRead  = "m.read"
)

// LoginRequest is the body of POST /login for both login types.
type LoginRequest struct {
	Type                     string      `json:"type"`
	Identifier               *Identifier `json:"identifier,omitempty"`
	Password                 string      `json:"password,omitempty"`
	Token                    string      `json:"token,omitempty"`
	InitialDeviceDisplayName string      `json:"initial_device_display_name,omitempty"`
}

// Identifier names the account for a password login.
type Identifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// AuthResponse is the successful /login response.
type AuthResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

// WhoAmIResponse is the /account/whoami response.
type WhoAmIResponse struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
}

// CreateRoomRequest is the body of POST /createRoom.
type CreateRoomRequest struct {
	Name       string `json:"name,omitempty"`
	Topic      string `json:"topic,omitempty"`
	Alias      string `json:"room_alias_name,omitempty"` // local part, without # or :server
	Visibility string `json:"visibility,omitempty"`      // "public" or "private"
	Preset     string `json:"preset,omitempty"`          // "private_chat", "public_chat", "trusted_private_chat"
}

// CreateRoomResponse is the /createRoom response.
type CreateRoomResponse struct {
	RoomID    string `json:"room_id"`
	RoomAlias string `json:"room_alias,omitempty"`
}

// JoinResponse is the /join response.
type JoinResponse struct {
	RoomID string `json:"room_id"`
}

// MessageContent is the content of an m.room.message event.
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// SendEventResponse is the response to PUT /rooms/{id}/send.
type SendEventResponse struct {
	EventID string `json:"event_id"`
}

// Event is a room timeline event. Content is kept raw-typed so that
// non-message events in the timeline decode without error.
type Event struct {
	EventID        string         `json:"event_id"`
	Type           string         `json:"type"`
	Sender         string         `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
}

// TextBody returns the body of an m.text message and true, or "" and
// false for any other event.
func (e Event) TextBody() (string, bool) {
	if e.Type != EventTypeMessage {
		return "", false
	}
	msgType, _ := e.Content["msgtype"].(string)
	if msgType != MsgTypeText {
		return "", false
	}
	body, ok := e.Content["body"].(string)
	return body, ok
}

// SyncOptions are the query parameters of GET /sync.
type SyncOptions struct {
	// Since is the cursor from the previous response. Empty on the
	// first call, which omits the parameter.
	Since string

	// Timeout is the server-side long-poll duration. Zero omits the
	// parameter and the server answers immediately.
	Timeout time.Duration

	// Filter is an inline JSON filter or a stored filter ID.
	Filter string
}

// SyncResponse is the subset of the /sync response the client reads.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection groups rooms by membership.
type RoomsSection struct {
	Join map[string]JoinedRoom `json:"join,omitempty"`
}

// JoinedRoom is one joined room's update.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
}

// TimelineSection holds new timeline events in order.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch,omitempty"`
	Limited   bool    `json:"limited,omitempty"`
}
