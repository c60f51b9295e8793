// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/overlay/lib/clock"
	"github.com/bureau-foundation/overlay/lib/credstore"
	"github.com/bureau-foundation/overlay/messaging"
)

const (
	DefaultSyncInterval   = time.Second
	DefaultSyncTimeout    = time.Second
	DefaultJoinAttempts   = 20
	DefaultJoinInterval   = 500 * time.Millisecond
	DefaultMaxRoomPrompts = 5
	DefaultSendTimeout    = 30 * time.Second
	DefaultEventBuffer    = 64
)

var (
	// ErrAuthExpired means stored credentials were rejected by the
	// homeserver or belong to a different user.
	ErrAuthExpired = errors.New("chat: stored credentials expired")

	// ErrNoTokenSource means interactive login was needed but the
	// client has no TokenSource.
	ErrNoTokenSource = errors.New("chat: interactive login unavailable")

	// ErrNotAuthenticated means the operation needs a logged-in session.
	ErrNotAuthenticated = errors.New("chat: not logged in")

	// ErrAlreadyAuthenticated means Login was called on a client that
	// already has a session or is logging in.
	ErrAlreadyAuthenticated = errors.New("chat: already logged in")

	// ErrNoRoom means a message was sent before any room was joined.
	ErrNoRoom = errors.New("chat: no room joined yet")

	// ErrNoRoomChosen means the room chooser ran out of prompts.
	ErrNoRoomChosen = errors.New("chat: no room chosen")

	// ErrSyncRunning means StartSync was called twice.
	ErrSyncRunning = errors.New("chat: sync already running")

	// ErrStopped means the client has been stopped.
	ErrStopped = errors.New("chat: client stopped")
)

// CredentialStore persists the login and the last room between runs.
// *credstore.Store implements it.
type CredentialStore interface {
	Save(credentials credstore.Credentials) error
	Load() (credstore.Credentials, bool)
	Clear() error
	SaveLastRoom(room string) error
	LoadLastRoom() (string, bool)
}

// TokenSource delivers a single-use login token from an interactive
// sign-on. *ssologin.Listener implements it.
type TokenSource interface {
	AwaitToken(ctx context.Context) (string, error)
}

// Config configures a Client.
type Config struct {
	// Matrix is the homeserver client. Required.
	Matrix *messaging.Client

	// Store persists credentials and the last room. Nil disables
	// persistence: every Login is interactive.
	Store CredentialStore

	// Tokens supplies login tokens for interactive sign-on. Nil
	// disables the SSO fallback.
	Tokens TokenSource

	// ServerName is the server part of generated room aliases
	// ("#room_123:ServerName"). Defaults to the server part of the
	// logged-in user ID.
	ServerName string

	// SyncInterval is the pause between sync iterations, applied
	// whether or not the previous iteration returned data.
	SyncInterval time.Duration

	// SyncTimeout is the server-side long-poll duration of each sync.
	SyncTimeout time.Duration

	// SyncFilter is passed through as the sync "filter" parameter.
	SyncFilter string

	// JoinAttempts bounds the joins tried after creating a room, to
	// ride out room propagation on the server.
	JoinAttempts int

	// JoinInterval spaces those join attempts.
	JoinInterval time.Duration

	// MaxRoomPrompts bounds ChooseRoom.
	MaxRoomPrompts int

	// SendTimeout bounds each outbound message. Sends are not
	// cancelled by Stop; Stop waits for them.
	SendTimeout time.Duration

	// EventBuffer is the capacity of the Events channel.
	EventBuffer int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Client is one chat session: login, a current room, a background sync
// loop, and outbound message tasks. Build one with New and release it
// with Stop. All methods are safe for concurrent use.
type Client struct {
	matrix         *messaging.Client
	store          CredentialStore
	tokens         TokenSource
	serverName     string
	syncInterval   time.Duration
	syncTimeout    time.Duration
	syncFilter     string
	joinAttempts   int
	joinInterval   time.Duration
	maxRoomPrompts int
	sendTimeout    time.Duration
	clock          clock.Clock
	logger         *slog.Logger

	events chan Event

	// stopping is closed when Stop begins. lifetime is cancelled at
	// the same moment and parents every login, room, and sync request.
	stopping chan struct{}
	lifetime context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	// mu guards the session fields below. operations counts login and
	// room calls in flight; Add happens only under mu while the state
	// is not StateStopped, so Stop can wait for them before closing
	// the session.
	mu         sync.Mutex
	operations sync.WaitGroup
	state     State
	session   *messaging.Session
	roomID    string
	roomAlias string
	syncDone  chan struct{}

	cursorMu sync.Mutex
	cursor   string

	// tasksMu guards tasks and tasksClosed. taskWait counts tracked
	// tasks; Add happens only under tasksMu while tasksClosed is false.
	tasksMu     sync.Mutex
	tasks       map[*OutboundTask]struct{}
	tasksClosed bool
	taskWait    sync.WaitGroup
	nextTaskID  uint64
}

// New returns a Client in StateUnauthenticated.
func New(config Config) (*Client, error) {
	if config.Matrix == nil {
		return nil, fmt.Errorf("chat: Matrix client is required")
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = DefaultSyncInterval
	}
	if config.SyncTimeout < 0 {
		return nil, fmt.Errorf("chat: negative sync timeout %v", config.SyncTimeout)
	}
	if config.SyncTimeout == 0 {
		config.SyncTimeout = DefaultSyncTimeout
	}
	if config.JoinAttempts <= 0 {
		config.JoinAttempts = DefaultJoinAttempts
	}
	if config.JoinInterval <= 0 {
		config.JoinInterval = DefaultJoinInterval
	}
	if config.MaxRoomPrompts <= 0 {
		config.MaxRoomPrompts = DefaultMaxRoomPrompts
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultSendTimeout
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = DefaultEventBuffer
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	lifetime, cancel := context.WithCancel(context.Background())
	return &Client{
		matrix:         config.Matrix,
		store:          config.Store,
		tokens:         config.Tokens,
		serverName:     config.ServerName,
		syncInterval:   config.SyncInterval,
		syncTimeout:    config.SyncTimeout,
		syncFilter:     config.SyncFilter,
		joinAttempts:   config.JoinAttempts,
		joinInterval:   config.JoinInterval,
		maxRoomPrompts: config.MaxRoomPrompts,
		sendTimeout:    config.SendTimeout,
		clock:          config.Clock,
		logger:         config.Logger,
		events:         make(chan Event, config.EventBuffer),
		stopping:       make(chan struct{}),
		lifetime:       lifetime,
		cancel:         cancel,
		tasks:          make(map[*OutboundTask]struct{}),
	}, nil
}

// Events returns the channel of notifications for the consumer. It is
// never closed; select on Done to notice Stop.
func (c *Client) Events() <-chan Event { return c.events }

// Done is closed when Stop begins.
func (c *Client) Done() <-chan struct{} { return c.stopping }

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the logged-in user, or "".
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.UserID()
}

// RoomID returns the current room, or "".
func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// RoomAlias returns the alias of the current room when known, or "".
func (c *Client) RoomAlias() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomAlias
}

// Cursor returns the sync resumption token, or "" before the first
// sync that returned one.
func (c *Client) Cursor() string {
	c.cursorMu.Lock()
	defer c.cursorMu.Unlock()
	return c.cursor
}

// advanceCursor records next as the cursor. Empty values are ignored
// so a degenerate response never rewinds the stream.
func (c *Client) advanceCursor(next string) {
	if next == "" {
		return
	}
	c.cursorMu.Lock()
	c.cursor = next
	c.cursorMu.Unlock()
}

// Stop shuts the client down: new work is refused, the sync loop and
// any login or room request are cancelled, the sync loop is joined,
// every login and room call is awaited, and every outbound task is
// awaited. The session is closed only after all of them have left.
// Stop is idempotent and may be called from a goroutine that is
// consuming Events, but not from a RoomChooser or TokenSource.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.state = StateStopped
		syncDone := c.syncDone
		c.mu.Unlock()

		c.tasksMu.Lock()
		c.tasksClosed = true
		c.tasksMu.Unlock()

		close(c.stopping)
		c.cancel()

		if syncDone != nil {
			<-syncDone
		}
		c.taskWait.Wait()
		c.operations.Wait()

		// Anything still in flight at this point belongs to a caller
		// that did not pass a cancellable context.
		c.matrix.Cancel()

		c.mu.Lock()
		session := c.session
		c.session = nil
		c.mu.Unlock()
		if session != nil {
			session.Close()
		}
		c.logger.Info("chat client stopped")
	})
}

// emit delivers an event. It blocks while the consumer is behind, until
// Stop is called, after which undeliverable events are dropped.
func (c *Client) emit(event Event) {
	select {
	case c.events <- event:
		return
	default:
	}
	select {
	case c.events <- event:
	case <-c.stopping:
		c.logger.Debug("dropping event after stop", "event", fmt.Sprintf("%T", event))
	}
}

// operationContext derives a context from ctx that is also cancelled
// by Stop.
func (c *Client) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	operation, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.lifetime, cancel)
	return operation, func() {
		stop()
		cancel()
	}
}

// acquireSession is currentSession for an operation that keeps using
// the session: the caller must call release when done, and Stop waits
// for that before closing the session.
func (c *Client) acquireSession() (session *messaging.Session, release func(), err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateStopped {
		return nil, nil, ErrStopped
	}
	if c.session == nil {
		return nil, nil, ErrNotAuthenticated
	}
	c.operations.Add(1)
	return c.session, c.operations.Done, nil
}

// currentSession returns the session, or ErrNotAuthenticated (or
// ErrStopped).
func (c *Client) currentSession() (*messaging.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateStopped {
		return nil, ErrStopped
	}
	if c.session == nil {
		return nil, ErrNotAuthenticated
	}
	return c.session, nil
}
