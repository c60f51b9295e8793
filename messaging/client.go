// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/bureau-foundation/overlay/lib/secret"
)

const defaultDeviceName = "overlay"

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the homeserver, e.g. "https://matrix.org".
	HomeserverURL string

	// HTTPClient replaces the gateway's default client. Tests use it
	// to point at an httptest server with custom transports.
	HTTPClient *http.Client

	// DeviceDisplayName labels devices created by login. Defaults to "overlay".
	DeviceDisplayName string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is an unauthenticated homeserver client. It performs logins
// and hands out Sessions that share its Gateway.
type Client struct {
	gateway    *Gateway
	deviceName string
	logger     *slog.Logger
}

// NewClient creates a Client for the configured homeserver.
func NewClient(config ClientConfig) (*Client, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gateway, err := NewGateway(GatewayConfig{
		BaseURL:    config.HomeserverURL,
		HTTPClient: config.HTTPClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	deviceName := config.DeviceDisplayName
	if deviceName == "" {
		deviceName = defaultDeviceName
	}
	return &Client{
		gateway:    gateway,
		deviceName: deviceName,
		logger:     logger,
	}, nil
}

// Gateway returns the request gateway shared by this client's sessions.
func (c *Client) Gateway() *Gateway { return c.gateway }

// Cancel aborts every request in flight on this client or any of its
// sessions.
func (c *Client) Cancel() { c.gateway.Cancel() }

// Login authenticates with a user name and password. password is read
// but not closed.
func (c *Client) Login(ctx context.Context, user string, password *secret.Buffer) (*Session, error) {
	if user == "" {
		return nil, fmt.Errorf("messaging: user is required for login")
	}
	if password == nil {
		return nil, fmt.Errorf("messaging: password is required for login")
	}
	return c.login(ctx, LoginRequest{
		Type:                     LoginTypePassword,
		Identifier:               &Identifier{Type: "m.id.user", User: user},
		Password:                 password.String(),
		InitialDeviceDisplayName: c.deviceName,
	})
}

// LoginWithToken exchanges a single-use SSO login token for a session.
func (c *Client) LoginWithToken(ctx context.Context, loginToken string) (*Session, error) {
	if loginToken == "" {
		return nil, fmt.Errorf("messaging: login token is required")
	}
	return c.login(ctx, LoginRequest{
		Type:                     LoginTypeToken,
		Token:                    loginToken,
		InitialDeviceDisplayName: c.deviceName,
	})
}

func (c *Client) login(ctx context.Context, request LoginRequest) (*Session, error) {
	body, err := c.gateway.Do(ctx, http.MethodPost, "/_matrix/client/v3/login", nil, request, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: login (%s) failed: %w", request.Type, err)
	}

	var auth AuthResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, fmt.Errorf("messaging: parsing login response: %w", err)
	}
	if auth.AccessToken == "" || auth.UserID == "" {
		return nil, fmt.Errorf("messaging: login response: %w", ErrMissingField)
	}

	c.logger.Info("logged in",
		"user_id", auth.UserID,
		"device_id", auth.DeviceID,
		"login_type", request.Type,
	)
	session, err := c.SessionFromToken(auth.UserID, auth.AccessToken)
	if err != nil {
		return nil, err
	}
	session.deviceID = auth.DeviceID
	return session, nil
}

// SessionFromToken wraps a stored access token without contacting the
// server. The first authenticated call reveals whether it is valid.
// The caller must Close the returned Session.
func (c *Client) SessionFromToken(userID, accessToken string) (*Session, error) {
	token, err := secret.NewFromString(accessToken)
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return &Session{
		client:      c,
		accessToken: token,
		userID:      userID,
	}, nil
}

// SSORedirectURL returns the URL a browser opens to start single sign-on.
// After authenticating, the homeserver redirects the browser to
// redirectURL with a loginToken query parameter appended.
func (c *Client) SSORedirectURL(redirectURL string) string {
	query := url.Values{"redirectUrl": {redirectURL}}
	return c.gateway.BaseURL() + "/_matrix/client/v3/login/sso/redirect?" + query.Encode()
}
