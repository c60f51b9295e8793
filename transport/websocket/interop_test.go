// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gorilla "github.com/gorilla/websocket"

	"github.com/bureau-foundation/overlay/lib/testutil"
)

// TestConnGorillaServer runs the client against gorilla/websocket,
// which rejects unmasked client frames and malformed upgrades.
func TestConnGorillaServer(t *testing.T) {
	upgrader := gorilla.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			http.NotFound(w, r)
			return
		}
		socket, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer socket.Close()
		for {
			messageType, payload, err := socket.ReadMessage()
			if err != nil {
				return
			}
			if messageType != gorilla.TextMessage {
				continue
			}
			reply := strings.ToUpper(string(payload))
			if err := socket.WriteMessage(gorilla.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	conn, err := Dial(context.Background(), Config{
		Address: strings.TrimPrefix(server.URL, "http://"),
		Path:    "/chat",
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	for _, text := range []string{"hello", strings.Repeat("x", 70000), "grüße"} {
		if err := conn.Send(text); err != nil {
			t.Fatalf("Send: %v", err)
		}
		got := testutil.RequireReceive(t, conn.Messages(), waitTimeout, "reply to %d bytes", len(text))
		if got != strings.ToUpper(text) {
			t.Fatalf("reply mismatch for %d-byte message", len(text))
		}
	}
}

func TestConnGorillaWrongPath(t *testing.T) {
	upgrader := gorilla.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			http.NotFound(w, r)
			return
		}
		if socket, err := upgrader.Upgrade(w, r, nil); err == nil {
			socket.Close()
		}
	}))
	t.Cleanup(server.Close)

	_, err := Dial(context.Background(), Config{
		Address: strings.TrimPrefix(server.URL, "http://"),
		Path:    "/elsewhere",
	})
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("err = %v, want ErrHandshakeFailed", err)
	}
}
