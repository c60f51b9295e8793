// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
)

var (
	// ErrLoginFailed is returned by Run when Login fails.
	ErrLoginFailed = errors.New("chat: login failed")

	// ErrRoomFailed is returned by Run when no room was entered.
	ErrRoomFailed = errors.New("chat: no room entered")
)

// Run performs the whole startup flow: Login, ChooseRoom, StartSync.
// It returns once syncing has started; the LoginResult and final
// RoomResult events carry the details of any failure.
func (c *Client) Run(ctx context.Context, chooser RoomChooser) error {
	if !c.Login(ctx) {
		return ErrLoginFailed
	}
	if !c.ChooseRoom(ctx, chooser) {
		return ErrRoomFailed
	}
	return c.StartSync()
}
