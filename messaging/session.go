// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/overlay/lib/secret"
)

// Session is an authenticated connection to the homeserver. Its access
// token lives in protected memory; Close releases it.
type Session struct {
	client      *Client
	accessToken *secret.Buffer
	userID      string
	deviceID    string

	transactionCounter atomic.Int64
}

// UserID returns the fully-qualified user ID, e.g. "@alice:matrix.org".
func (s *Session) UserID() string { return s.userID }

// DeviceID returns the device ID from login, or "" for a session
// restored from a stored token.
func (s *Session) DeviceID() string { return s.deviceID }

// AccessToken returns a heap copy of the access token for persisting
// it. Do not log the result.
func (s *Session) AccessToken() string { return s.accessToken.String() }

// ServerName returns the server part of the user ID ("matrix.org" for
// "@alice:matrix.org"), or "" if the ID has no server part.
func (s *Session) ServerName() string { return ServerName(s.userID) }

// ServerName extracts the server name from a Matrix identifier such as
// "@alice:matrix.org" or "#room:matrix.org".
func ServerName(identifier string) string {
	_, server, found := strings.Cut(identifier, ":")
	if !found {
		return ""
	}
	return server
}

// Close releases the access token. Idempotent.
func (s *Session) Close() error {
	return s.accessToken.Close()
}

func (s *Session) do(ctx context.Context, method, path string, body any, query url.Values) ([]byte, error) {
	return s.client.gateway.Do(ctx, method, path, s.accessToken, body, query)
}

// WhoAmI returns the user ID the server associates with the token.
func (s *Session) WhoAmI(ctx context.Context) (string, error) {
	body, err := s.do(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", nil, nil)
	if err != nil {
		return "", fmt.Errorf("messaging: whoami failed: %w", err)
	}
	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: parsing whoami response: %w", err)
	}
	if response.UserID == "" {
		return "", fmt.Errorf("messaging: whoami response: %w", ErrMissingField)
	}
	return response.UserID, nil
}

// CreateRoom creates a room. A response without a room_id is an error
// wrapping ErrMissingField.
func (s *Session) CreateRoom(ctx context.Context, request CreateRoomRequest) (*CreateRoomResponse, error) {
	body, err := s.do(ctx, http.MethodPost, "/_matrix/client/v3/createRoom", request, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: create room failed: %w", err)
	}
	var response CreateRoomResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing create room response: %w", err)
	}
	if response.RoomID == "" {
		return nil, fmt.Errorf("messaging: create room response: %w", ErrMissingField)
	}
	s.client.logger.Info("created room",
		"room_id", response.RoomID,
		"alias", request.Alias,
	)
	return &response, nil
}

// JoinRoom joins a room by ID ("!abc:server") or alias ("#name:server")
// and returns the room ID.
func (s *Session) JoinRoom(ctx context.Context, idOrAlias string) (string, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(idOrAlias)
	body, err := s.do(ctx, http.MethodPost, path, struct{}{}, nil)
	if err != nil {
		return "", fmt.Errorf("messaging: join %s failed: %w", idOrAlias, err)
	}
	var response JoinResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: parsing join response: %w", err)
	}
	if response.RoomID == "" {
		return "", fmt.Errorf("messaging: join response: %w", ErrMissingField)
	}
	return response.RoomID, nil
}

// SendMessage sends an m.room.message event and returns its event ID.
func (s *Session) SendMessage(ctx context.Context, roomID string, content MessageContent) (string, error) {
	return s.SendEvent(ctx, roomID, EventTypeMessage, content)
}

// SendEvent sends a room event with a fresh transaction ID. The server
// deduplicates retries that reuse a transaction ID, so each call gets a
// new one.
func (s *Session) SendEvent(ctx context.Context, roomID, eventType string, content any) (string, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID),
		url.PathEscape(eventType),
		url.PathEscape(s.nextTransactionID()),
	)
	body, err := s.do(ctx, http.MethodPut, path, content, nil)
	if err != nil {
		return "", fmt.Errorf("messaging: send to %s failed: %w", roomID, err)
	}
	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: parsing send response: %w", err)
	}
	return response.EventID, nil
}

// SendReceipt marks eventID as read in roomID.
func (s *Session) SendReceipt(ctx context.Context, roomID, eventID string) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/receipt/%s/%s",
		url.PathEscape(roomID),
		ReceiptTypeRead,
		url.PathEscape(eventID),
	)
	if _, err := s.do(ctx, http.MethodPost, path, struct{}{}, nil); err != nil {
		return fmt.Errorf("messaging: read receipt for %s failed: %w", eventID, err)
	}
	return nil
}

// Sync performs one /sync call. When options.Timeout is set the server
// holds the request open until new events arrive or the timeout passes.
func (s *Session) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.Timeout > 0 {
		query.Set("timeout", strconv.FormatInt(options.Timeout.Milliseconds(), 10))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	body, err := s.do(ctx, http.MethodGet, "/_matrix/client/v3/sync", nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}
	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing sync response: %w", err)
	}
	return &response, nil
}

// nextTransactionID combines wall-clock milliseconds with a
// per-session counter, so IDs stay unique when sends share a
// millisecond or the clock steps backwards.
func (s *Session) nextTransactionID() string {
	counter := s.transactionCounter.Add(1)
	return fmt.Sprintf("overlay-%d-%d", time.Now().UnixMilli(), counter)
}
