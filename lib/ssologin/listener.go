// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ssologin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/browser"
	"github.com/skip2/go-qrcode"
)

// DefaultPort is the loopback port the homeserver redirects the
// browser to after sign-on.
const DefaultPort = 8080

// ErrNoTokenFound is returned when the callback request is missing the
// loginToken parameter or could not be read as an HTTP request.
var ErrNoTokenFound = errors.New("ssologin: no login token in callback")

const callbackReadTimeout = 30 * time.Second

const successPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Signed in</title></head>
<body><p>Login successful. You can close this tab and return to the overlay.</p></body></html>
`

const failurePage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Sign-in failed</title></head>
<body><p>No login token was received. Return to the overlay and try again.</p></body></html>
`

// Config configures a Listener.
type Config struct {
	// Port is the loopback port to bind. Zero picks a free port, which
	// only works with homeservers that accept arbitrary redirect URLs.
	Port int

	// RedirectURL maps the local callback URL to the homeserver URL
	// that starts sign-on. Required.
	RedirectURL func(callbackURL string) string

	// OpenBrowser opens url in the user's browser. Defaults to the
	// system browser. A failure is logged; the URL is still shown on
	// Output so the user can open it by hand.
	OpenBrowser func(url string) error

	// Output, when set, receives the sign-on URL and a terminal QR code
	// of it. Both redirect to the loopback listener, so the sign-on
	// only completes in a browser on this machine.
	Output io.Writer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Listener waits for the browser redirect that completes single
// sign-on and extracts the login token from it.
type Listener struct {
	config Config
	logger *slog.Logger
}

// New returns a Listener. It binds nothing until AwaitToken.
func New(config Config) *Listener {
	if config.OpenBrowser == nil {
		config.OpenBrowser = openSystemBrowser
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{config: config, logger: logger}
}

func openSystemBrowser(url string) error {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return browser.OpenURL(url)
}

// CallbackURL is the redirect target for a listener bound to port.
func CallbackURL(port int) string {
	return "http://localhost:" + strconv.Itoa(port) + "/"
}

// AwaitToken binds 127.0.0.1 on the configured port, sends the user's
// browser to the sign-on page, accepts exactly one connection, and
// returns the loginToken query parameter of its request. The browser
// receives a short confirmation page either way. Cancelling ctx closes
// the listener and returns ctx's error.
func (l *Listener) AwaitToken(ctx context.Context) (string, error) {
	if l.config.RedirectURL == nil {
		return "", fmt.Errorf("ssologin: RedirectURL is required")
	}

	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(l.config.Port)))
	if err != nil {
		return "", fmt.Errorf("ssologin: binding callback port %d: %w", l.config.Port, err)
	}
	defer listener.Close()
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	port := listener.Addr().(*net.TCPAddr).Port
	signOnURL := l.config.RedirectURL(CallbackURL(port))
	l.announce(signOnURL)
	if err := l.config.OpenBrowser(signOnURL); err != nil {
		l.logger.Warn("could not open browser for sign-on", "error", err)
	}
	l.logger.Info("waiting for sign-on callback", "port", port)

	conn, err := listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("ssologin: waiting for callback: %w", ctx.Err())
		}
		return "", fmt.Errorf("ssologin: accepting callback: %w", err)
	}
	defer conn.Close()
	return l.handle(conn)
}

func (l *Listener) handle(conn net.Conn) (string, error) {
	conn.SetDeadline(time.Now().Add(callbackReadTimeout))

	request, err := http.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		writePage(conn, http.StatusBadRequest, failurePage)
		return "", fmt.Errorf("%w: reading request: %v", ErrNoTokenFound, err)
	}
	token := request.URL.Query().Get("loginToken")
	if token == "" {
		writePage(conn, http.StatusBadRequest, failurePage)
		return "", fmt.Errorf("%w: request for %s", ErrNoTokenFound, request.URL.Path)
	}

	writePage(conn, http.StatusOK, successPage)
	l.logger.Info("received sign-on callback")
	return token, nil
}

func writePage(w io.Writer, status int, page string) {
	fmt.Fprintf(w, "HTTP/1.1 %d %s\r\nContent-Type: text/html; charset=utf-8\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, http.StatusText(status), len(page), page)
}

func (l *Listener) announce(signOnURL string) {
	if l.config.Output == nil {
		return
	}
	fmt.Fprintf(l.config.Output, "Sign in through your browser:\n  %s\n", signOnURL)
	code, err := qrcode.New(signOnURL, qrcode.Low)
	if err != nil {
		l.logger.Debug("sign-on URL does not fit a QR code", "error", err)
		return
	}
	fmt.Fprintf(l.config.Output, "The same link as a QR code (it only completes on this machine):\n%s\n", code.ToSmallString(false))
}
