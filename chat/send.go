// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/bureau-foundation/overlay/messaging"
)

// OutboundTask is one message being delivered in the background.
type OutboundTask struct {
	ID     uint64
	RoomID string
	Text   string

	done    chan struct{}
	eventID string
	err     error
}

// Done is closed when the task has finished.
func (t *OutboundTask) Done() <-chan struct{} { return t.done }

// Result returns the delivered event ID or the failure. Valid after
// Done is closed.
func (t *OutboundTask) Result() (string, error) {
	<-t.done
	return t.eventID, t.err
}

func (t *OutboundTask) finish(eventID string, err error) {
	t.eventID = eventID
	t.err = err
	close(t.done)
}

// Send delivers text to the current room on a background goroutine and
// returns the tracking task. A failed delivery emits a SendFailure and
// is not retried. Without a room (or session) the task fails
// immediately with ErrNoRoom (or the session error).
func (c *Client) Send(text string) *OutboundTask {
	task := &OutboundTask{Text: text, done: make(chan struct{})}

	session, err := c.currentSession()
	roomID := c.RoomID()
	if err == nil && roomID == "" {
		err = ErrNoRoom
	}
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("chat: empty message")
	}
	if err != nil {
		task.finish("", err)
		c.emit(SendFailure{Text: text, Err: err})
		return task
	}
	task.RoomID = roomID

	c.tasksMu.Lock()
	if c.tasksClosed {
		c.tasksMu.Unlock()
		task.finish("", ErrStopped)
		c.emit(SendFailure{Text: text, Err: ErrStopped})
		return task
	}
	c.nextTaskID++
	task.ID = c.nextTaskID
	c.tasks[task] = struct{}{}
	c.taskWait.Add(1)
	c.tasksMu.Unlock()

	go c.deliver(session, task)
	return task
}

// deliver runs one task. The task leaves the tracking set before its
// outcome is published, so a consumer reacting to that outcome can
// call Stop without waiting on this goroutine.
func (c *Client) deliver(session *messaging.Session, task *OutboundTask) {
	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	eventID, err := session.SendMessage(ctx, task.RoomID, messaging.NewTextMessage(task.Text))
	cancel()

	c.tasksMu.Lock()
	delete(c.tasks, task)
	c.tasksMu.Unlock()
	c.taskWait.Done()

	if err != nil {
		err = fmt.Errorf("chat: sending message: %w", err)
		task.finish("", err)
		c.logger.Warn("message not delivered", "room_id", task.RoomID, "task", task.ID, "error", err)
		c.emit(SendFailure{Text: task.Text, Err: err})
		return
	}
	task.finish(eventID, nil)
	c.logger.Debug("message delivered", "room_id", task.RoomID, "event_id", eventID)
}

// PendingTasks returns the number of outbound tasks still in flight.
func (c *Client) PendingTasks() int {
	c.tasksMu.Lock()
	defer c.tasksMu.Unlock()
	return len(c.tasks)
}
