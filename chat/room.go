// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/overlay/messaging"
)

// RoomPrompt is what a RoomChooser is shown on each attempt.
type RoomPrompt struct {
	// Suggestion is the last room entered on this machine, or "".
	Suggestion string

	// Attempt counts from 1.
	Attempt int

	// LastErr is the failure of the previous attempt, if any.
	LastErr error
}

// RoomChoice is the user's answer: host a new room, or join Room.
// A zero RoomChoice asks to be prompted again.
type RoomChoice struct {
	Create bool
	Room   string
}

// RoomChooser asks the user which room to enter. An error aborts
// ChooseRoom.
type RoomChooser interface {
	ChooseRoom(ctx context.Context, prompt RoomPrompt) (RoomChoice, error)
}

// RoomChooserFunc adapts a function to RoomChooser.
type RoomChooserFunc func(ctx context.Context, prompt RoomPrompt) (RoomChoice, error)

func (f RoomChooserFunc) ChooseRoom(ctx context.Context, prompt RoomPrompt) (RoomChoice, error) {
	return f(ctx, prompt)
}

// CreateRoom creates a public room under a generated alias and joins
// it. The join is retried up to JoinAttempts times, JoinInterval
// apart, because a fresh room may not yet be joinable; exhausting the
// attempts fails the operation. If the create request itself fails,
// the generated alias is joined once in case the room exists anyway,
// unless the failure was the context ending.
//
// Exactly one RoomResult is emitted.
func (c *Client) CreateRoom(ctx context.Context) bool {
	session, release, err := c.acquireSession()
	if err != nil {
		c.emit(RoomResult{Created: true, Err: err})
		return false
	}
	defer release()
	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	localpart := fmt.Sprintf("room_%d", c.clock.Now().UnixNano())
	alias := "#" + localpart + ":" + c.aliasServer(session)

	response, createErr := session.CreateRoom(ctx, messaging.CreateRoomRequest{
		Alias:      localpart,
		Visibility: "public",
		Preset:     "private_chat",
	})
	if createErr != nil && ctx.Err() != nil {
		return c.finishRoom(RoomResult{
			Alias:   alias,
			Created: true,
			Err:     fmt.Errorf("chat: creating room: %w", createErr),
		})
	}
	if createErr != nil {
		c.logger.Warn("room creation failed, joining by alias", "alias", alias, "error", createErr)
		roomID, joinErr := session.JoinRoom(ctx, alias)
		if joinErr != nil {
			return c.finishRoom(RoomResult{
				Alias:   alias,
				Created: true,
				Err:     fmt.Errorf("chat: creating room: %w", errors.Join(createErr, joinErr)),
			})
		}
		return c.finishRoom(RoomResult{Success: true, RoomID: roomID, Alias: alias, Created: true})
	}

	roomID, err := c.joinCreated(ctx, session, response.RoomID)
	if err != nil {
		return c.finishRoom(RoomResult{RoomID: response.RoomID, Alias: alias, Created: true, Err: err})
	}
	return c.finishRoom(RoomResult{Success: true, RoomID: roomID, Alias: alias, Created: true})
}

func (c *Client) joinCreated(ctx context.Context, session *messaging.Session, roomID string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.joinAttempts; attempt++ {
		joined, err := session.JoinRoom(ctx, roomID)
		if err == nil {
			return joined, nil
		}
		lastErr = err
		c.logger.Debug("join after create failed",
			"room_id", roomID,
			"attempt", attempt,
			"error", err,
		)
		if ctx.Err() != nil || attempt == c.joinAttempts {
			break
		}
		select {
		case <-c.clock.After(c.joinInterval):
		case <-ctx.Done():
			return "", fmt.Errorf("chat: joining created room %s: %w", roomID, ctx.Err())
		}
	}
	return "", fmt.Errorf("chat: joining created room %s: %w", roomID, lastErr)
}

// JoinRoom joins a room by ID or alias. Exactly one RoomResult is
// emitted.
func (c *Client) JoinRoom(ctx context.Context, idOrAlias string) bool {
	idOrAlias = strings.TrimSpace(idOrAlias)
	if idOrAlias == "" {
		if _, err := c.currentSession(); err != nil {
			c.emit(RoomResult{Err: err})
			return false
		}
		c.emit(RoomResult{Err: fmt.Errorf("chat: empty room")})
		return false
	}
	session, release, err := c.acquireSession()
	if err != nil {
		c.emit(RoomResult{Alias: idOrAlias, Err: err})
		return false
	}
	defer release()
	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	alias := ""
	if strings.HasPrefix(idOrAlias, "#") {
		alias = idOrAlias
	}
	roomID, err := session.JoinRoom(ctx, idOrAlias)
	if err != nil {
		return c.finishRoom(RoomResult{Alias: alias, Err: fmt.Errorf("chat: joining %s: %w", idOrAlias, err)})
	}
	c.rememberRoom(idOrAlias)
	return c.finishRoom(RoomResult{Success: true, RoomID: roomID, Alias: alias})
}

// ChooseRoom prompts until a room is entered, the chooser fails, or
// MaxRoomPrompts prompts have been shown. A failed join prompts again;
// a failed create does not. Every create or join attempt emits its own
// RoomResult, and giving up emits a final one carrying ErrNoRoomChosen
// or the chooser's error.
func (c *Client) ChooseRoom(ctx context.Context, chooser RoomChooser) bool {
	suggestion := ""
	if c.store != nil {
		suggestion, _ = c.store.LoadLastRoom()
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRoomPrompts; attempt++ {
		choice, err := chooser.ChooseRoom(ctx, RoomPrompt{
			Suggestion: suggestion,
			Attempt:    attempt,
			LastErr:    lastErr,
		})
		if err != nil {
			c.emit(RoomResult{Err: fmt.Errorf("chat: choosing room: %w", err)})
			return false
		}
		if choice.Create {
			return c.CreateRoom(ctx)
		}
		if strings.TrimSpace(choice.Room) == "" {
			lastErr = nil
			continue
		}
		if c.JoinRoom(ctx, choice.Room) {
			return true
		}
		if _, err := c.currentSession(); err != nil {
			return false
		}
		lastErr = fmt.Errorf("chat: could not join %s", strings.TrimSpace(choice.Room))
	}
	c.emit(RoomResult{Err: ErrNoRoomChosen})
	return false
}

func (c *Client) finishRoom(result RoomResult) bool {
	if result.Err == nil {
		c.mu.Lock()
		if c.state == StateStopped {
			result = RoomResult{Alias: result.Alias, Created: result.Created, Err: ErrStopped}
		} else {
			c.roomID = result.RoomID
			c.roomAlias = result.Alias
			if c.state == StateAuthenticated {
				c.state = StateInRoom
			}
		}
		c.mu.Unlock()
	}
	if result.Err != nil {
		c.logger.Warn("entering room failed", "alias", result.Alias, "error", result.Err)
		c.emit(result)
		return false
	}
	if result.Created {
		c.rememberRoom(result.Alias)
	}
	c.logger.Info("entered room", "room_id", result.RoomID, "alias", result.Alias, "created", result.Created)
	c.emit(result)
	return true
}

func (c *Client) rememberRoom(room string) {
	if c.store == nil || room == "" {
		return
	}
	if err := c.store.SaveLastRoom(room); err != nil {
		c.logger.Warn("saving last room", "error", err)
	}
}

func (c *Client) aliasServer(session *messaging.Session) string {
	if c.serverName != "" {
		return c.serverName
	}
	return session.ServerName()
}
