// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"strings"

	"github.com/bureau-foundation/overlay/messaging"
)

// StartSync starts the background sync loop. It requires a session;
// a room is optional, and until one is entered the loop only advances
// the cursor. The loop runs until Stop.
func (c *Client) StartSync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.state == StateStopped:
		return ErrStopped
	case c.session == nil:
		return ErrNotAuthenticated
	case c.syncDone != nil:
		return ErrSyncRunning
	}
	c.syncDone = make(chan struct{})
	c.state = StateSyncing
	go c.syncLoop(c.lifetime, c.session, c.syncDone)
	c.logger.Info("sync started", "room_id", c.roomID, "interval", c.syncInterval)
	return nil
}

// syncLoop runs sync iterations strictly one after another, pausing
// SyncInterval between them. Failures are logged and the loop carries
// on.
func (c *Client) syncLoop(ctx context.Context, session *messaging.Session, done chan struct{}) {
	defer close(done)
	for {
		c.syncOnce(ctx, session)
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.syncInterval):
		}
	}
}

func (c *Client) syncOnce(ctx context.Context, session *messaging.Session) {
	response, err := session.Sync(ctx, messaging.SyncOptions{
		Since:   c.Cursor(),
		Timeout: c.syncTimeout,
		Filter:  c.syncFilter,
	})
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("sync failed", "error", err)
		}
		return
	}
	c.advanceCursor(response.NextBatch)

	roomID := c.RoomID()
	if roomID == "" {
		return
	}
	room, ok := response.Rooms.Join[roomID]
	if !ok {
		return
	}
	self := session.UserID()
	for _, event := range room.Timeline.Events {
		if event.Sender == self {
			continue
		}
		body, ok := event.TextBody()
		if !ok {
			continue
		}
		c.emit(MessageEvent{
			RoomID:  roomID,
			EventID: event.EventID,
			Sender:  event.Sender,
			Body:    strings.ToValidUTF8(body, "\uFFFD"),
		})
		if event.EventID == "" {
			continue
		}
		if err := session.SendReceipt(ctx, roomID, event.EventID); err != nil && ctx.Err() == nil {
			c.logger.Warn("read receipt failed", "event_id", event.EventID, "error", err)
		}
	}
}
