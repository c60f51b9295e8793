// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package websocket

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/overlay/lib/netutil"
)

var (
	// ErrHandshakeFailed is wrapped by Connect when the server's upgrade
	// response is missing the 101 status or the expected accept key.
	ErrHandshakeFailed = errors.New("websocket: handshake failed")

	// ErrNotConnected is returned by Send outside the Connected state.
	ErrNotConnected = errors.New("websocket: not connected")

	// ErrAlreadyStarted is returned by Connect on a Conn that has
	// already been connected once. A Conn is single-use.
	ErrAlreadyStarted = errors.New("websocket: connection already started")
)

// State is the lifecycle position of a Conn.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshakeInFlight
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshakeInFlight:
		return "handshake"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	readChunkSize         = 2048
	defaultMessageBuffer  = 64
	defaultHandshakeLimit = 10 * time.Second
)

// Config configures a Conn.
type Config struct {
	// Address is the server's host:port.
	Address string

	// Path is the request target of the upgrade request. Defaults to "/".
	Path string

	// HandshakeTimeout bounds dial plus handshake when the context has
	// no earlier deadline. Defaults to 10s.
	HandshakeTimeout time.Duration

	// MessageBuffer is the capacity of the Messages channel.
	// Defaults to 64.
	MessageBuffer int

	// OnMessage, when set, receives each text payload on the receive
	// goroutine instead of the Messages channel.
	OnMessage func(text string)

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Conn is a client WebSocket connection over a raw TCP socket. It
// sends single masked text frames and delivers received text frames
// in arrival order.
//
// One goroutine reads from the socket for the lifetime of the
// connection. Send may be called from any goroutine.
type Conn struct {
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	socket   net.Conn
	started  bool
	stopping chan struct{}

	writeMu sync.Mutex

	messages  chan string
	done      chan struct{}
	closeOnce sync.Once
}

// New returns a disconnected Conn.
func New(config Config) *Conn {
	if config.Path == "" {
		config.Path = "/"
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaultHandshakeLimit
	}
	if config.MessageBuffer <= 0 {
		config.MessageBuffer = defaultMessageBuffer
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		config:   config,
		logger:   logger.With("address", config.Address),
		stopping: make(chan struct{}),
		messages: make(chan string, config.MessageBuffer),
		done:     make(chan struct{}),
	}
}

// Dial creates a Conn and connects it.
func Dial(ctx context.Context, config Config) (*Conn, error) {
	conn := New(config)
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages delivers received text payloads. It is closed when the
// receive loop exits. Unused when Config.OnMessage is set.
func (c *Conn) Messages() <-chan string { return c.messages }

// Done is closed when the receive loop has exited.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Connect dials the server, performs the upgrade handshake, and starts
// the receive loop. There is no retry: on any failure the socket is
// closed, the Conn returns to Disconnected, and the error is returned.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	select {
	case <-c.stopping:
		c.mu.Unlock()
		return fmt.Errorf("websocket: connect after close: %w", net.ErrClosed)
	default:
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.state = StateConnecting
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.config.HandshakeTimeout)
	defer cancel()

	var dialer net.Dialer
	socket, err := dialer.DialContext(ctx, "tcp", c.config.Address)
	if err != nil {
		c.fail()
		return fmt.Errorf("websocket: dial %s: %w", c.config.Address, err)
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Close ran while dialing.
		c.mu.Unlock()
		socket.Close()
		c.fail()
		return fmt.Errorf("websocket: closed during connect: %w", net.ErrClosed)
	}
	c.socket = socket
	c.state = StateHandshakeInFlight
	c.mu.Unlock()

	reader, err := c.handshake(ctx, socket)
	if err != nil {
		c.fail()
		return err
	}

	c.mu.Lock()
	if c.state != StateHandshakeInFlight {
		c.mu.Unlock()
		c.fail()
		return fmt.Errorf("websocket: closed during handshake: %w", net.ErrClosed)
	}
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info("websocket connected", "path", c.config.Path)
	go c.receiveLoop(reader)
	return nil
}

// handshake writes the upgrade request and validates the response.
// The returned reader holds any frame bytes that arrived in the same
// segment as the response headers.
func (c *Conn) handshake(ctx context.Context, socket net.Conn) (io.Reader, error) {
	if deadline, ok := ctx.Deadline(); ok {
		socket.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		socket.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	clientKey, err := NewClientKey()
	if err != nil {
		return nil, err
	}

	host := c.config.Address
	if _, err := io.WriteString(socket, handshakeRequest(host, c.config.Path, clientKey)); err != nil {
		return nil, fmt.Errorf("websocket: sending handshake: %w", err)
	}

	reader := bufio.NewReaderSize(socket, readChunkSize)
	response, err := netutil.ReadHeaderBlock(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrHandshakeFailed, err)
	}
	if !ValidateResponse(string(response), clientKey) {
		statusLine, _, _ := strings.Cut(string(response), "\r\n")
		return nil, fmt.Errorf("%w: server answered %q", ErrHandshakeFailed, statusLine)
	}

	socket.SetDeadline(time.Time{})
	return reader, nil
}

// fail tears down a connection attempt that never reached Connected.
func (c *Conn) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.socket != nil {
		c.socket.Close()
		c.socket = nil
	}
	c.state = StateDisconnected
	close(c.done)
	close(c.messages)
}

// Send writes text as one masked text frame.
func (c *Conn) Send(text string) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	socket := c.socket
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := socket.Write(Encode(text)); err != nil {
		return fmt.Errorf("websocket: send: %w", err)
	}
	return nil
}

// Close stops the receive loop and closes the socket. It blocks until
// the loop has exited. Safe to call more than once and from any state.
func (c *Conn) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		started := c.started
		// A Conn closed before Connect stays closed; Connect sees
		// stopping and refuses.
		c.started = true
		connected := c.state == StateConnected
		if c.state != StateDisconnected {
			c.state = StateClosing
		}
		close(c.stopping)
		if c.socket != nil {
			if err := c.socket.Close(); err != nil && !netutil.IsExpectedCloseError(err) {
				closeErr = fmt.Errorf("websocket: close: %w", err)
			}
		}
		c.mu.Unlock()

		if connected {
			<-c.done
		}
		c.mu.Lock()
		c.state = StateDisconnected
		if !started {
			close(c.done)
			close(c.messages)
		}
		c.mu.Unlock()
	})
	return closeErr
}

// receiveLoop reads until the socket fails. A read error, whatever its
// cause, is the only way the loop ends besides a close frame or an
// undecodable stream.
func (c *Conn) receiveLoop(reader io.Reader) {
	defer func() {
		c.mu.Lock()
		if c.state == StateConnected {
			c.state = StateDisconnected
		}
		if c.socket != nil {
			c.socket.Close()
		}
		c.mu.Unlock()
		close(c.messages)
		close(c.done)
	}()

	chunk := make([]byte, readChunkSize)
	var pending []byte
	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)
			consumed, keepGoing := c.process(pending)
			pending = append(pending[:0], pending[consumed:]...)
			if !keepGoing {
				return
			}
		}
		if err != nil {
			select {
			case <-c.stopping:
				c.logger.Debug("websocket receive loop stopped")
			default:
				if netutil.IsExpectedCloseError(err) {
					c.logger.Info("websocket closed by server")
				} else {
					c.logger.Warn("websocket read failed", "error", err)
				}
			}
			return
		}
	}
}

// process decodes and dispatches every complete frame in pending. It
// returns the bytes consumed and whether the loop should continue.
func (c *Conn) process(pending []byte) (int, bool) {
	frames, consumed, err := DecodeAll(pending)
	for _, frame := range frames {
		switch frame.Opcode {
		case OpText:
			if !c.deliver(strings.ToValidUTF8(string(frame.Payload), "\uFFFD")) {
				return consumed, false
			}
		case OpClose:
			c.logger.Info("websocket close frame received")
			return consumed, false
		default:
			c.logger.Debug("skipping unsupported frame", "opcode", frame.Opcode.String(), "length", len(frame.Payload))
		}
	}
	if err != nil {
		c.logger.Error("websocket stream is not decodable", "error", err)
		return consumed, false
	}
	return consumed, true
}

func (c *Conn) deliver(text string) bool {
	if c.config.OnMessage != nil {
		c.config.OnMessage(text)
		return true
	}
	select {
	case c.messages <- text:
		return true
	case <-c.stopping:
		return false
	}
}
