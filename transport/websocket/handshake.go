// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package websocket

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"
)

// AcceptGUID is the fixed value RFC 6455 §1.3 appends to the client
// key before hashing.
const AcceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// switchingProtocols must appear verbatim in a successful upgrade
// response.
const switchingProtocols = "101 Switching Protocols"

// ComputeAcceptKey returns the Sec-WebSocket-Accept value a server must
// answer with for clientKey.
func ComputeAcceptKey(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + AcceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// NewClientKey returns a Sec-WebSocket-Key: 16 random bytes, base64.
func NewClientKey() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("websocket: generating client key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// ValidateResponse reports whether raw, the server's response headers,
// accepts the upgrade requested with clientKey. The status text match
// is case-sensitive; the accept value may appear in any header.
func ValidateResponse(raw, clientKey string) bool {
	if !strings.Contains(raw, switchingProtocols) {
		return false
	}
	return strings.Contains(raw, ComputeAcceptKey(clientKey))
}

// handshakeRequest formats the HTTP/1.1 upgrade request. host is the
// authority as dialed, including the port.
func handshakeRequest(host, path, clientKey string) string {
	if path == "" {
		path = "/"
	}
	var request strings.Builder
	fmt.Fprintf(&request, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&request, "Host: %s\r\n", host)
	request.WriteString("Upgrade: websocket\r\n")
	request.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&request, "Sec-WebSocket-Key: %s\r\n", clientKey)
	request.WriteString("Sec-WebSocket-Version: 13\r\n")
	request.WriteString("\r\n")
	return request.String()
}
