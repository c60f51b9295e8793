// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/overlay/lib/credstore"
	"github.com/bureau-foundation/overlay/lib/secret"
	"github.com/bureau-foundation/overlay/messaging"
)

// errNothingStored distinguishes an empty store from rejected
// credentials, which is worth a warning.
var errNothingStored = errors.New("chat: no stored credentials")

// Login authenticates the client. Stored credentials are tried first
// and accepted only if the homeserver still reports the same user for
// the token. Otherwise the client falls back to interactive sign-on
// through the TokenSource and persists the resulting credentials.
//
// Exactly one LoginResult is emitted. The return value mirrors its
// Success field.
func (c *Client) Login(ctx context.Context) bool {
	if err := c.beginLogin(); err != nil {
		c.emit(LoginResult{Err: err})
		return false
	}
	defer c.operations.Done()
	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	session, err := c.restore(ctx)
	if err == nil {
		return c.finishLogin(session, true, nil)
	}
	if !errors.Is(err, errNothingStored) {
		c.logger.Warn("stored credentials not usable, falling back to interactive login", "error", err)
	}

	session, err = c.interactiveLogin(ctx)
	return c.finishLogin(session, false, err)
}

// LoginWithPassword authenticates with a user name and password and
// persists the resulting credentials. The password is only borrowed.
// Exactly one LoginResult is emitted.
func (c *Client) LoginWithPassword(ctx context.Context, user string, password *secret.Buffer) bool {
	if err := c.beginLogin(); err != nil {
		c.emit(LoginResult{Err: err})
		return false
	}
	defer c.operations.Done()
	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	session, err := c.matrix.Login(ctx, user, password)
	if err != nil {
		return c.finishLogin(nil, false, fmt.Errorf("chat: password login: %w", err))
	}
	c.persist(session)
	return c.finishLogin(session, false, nil)
}

// beginLogin moves to StateAuthenticating and registers the login as
// an operation. The caller must call c.operations.Done when finished.
func (c *Client) beginLogin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateStopped:
		return ErrStopped
	case StateUnauthenticated:
		c.state = StateAuthenticating
		c.operations.Add(1)
		return nil
	default:
		return ErrAlreadyAuthenticated
	}
}

func (c *Client) finishLogin(session *messaging.Session, restored bool, err error) bool {
	c.mu.Lock()
	if err == nil && c.state == StateStopped {
		err = ErrStopped
	}
	if err != nil {
		if c.state != StateStopped {
			c.state = StateUnauthenticated
		}
		c.mu.Unlock()
		if session != nil {
			session.Close()
		}
		c.logger.Warn("login failed", "error", err)
		c.emit(LoginResult{Err: err})
		return false
	}
	c.session = session
	c.state = StateAuthenticated
	c.mu.Unlock()

	c.logger.Info("logged in", "user_id", session.UserID(), "restored", restored)
	c.emit(LoginResult{Success: true, UserID: session.UserID(), Restored: restored})
	return true
}

// restore validates stored credentials with a whoami call. Credentials
// the server rejects, or that resolve to another user, are cleared.
// Network failures leave them in place for the next run.
func (c *Client) restore(ctx context.Context) (*messaging.Session, error) {
	if c.store == nil {
		return nil, errNothingStored
	}
	credentials, ok := c.store.Load()
	if !ok {
		return nil, errNothingStored
	}
	if credentials.Homeserver != "" && credentials.Homeserver != c.matrix.Gateway().BaseURL() {
		return nil, fmt.Errorf("%w: stored for %s", ErrAuthExpired, credentials.Homeserver)
	}

	session, err := c.matrix.SessionFromToken(credentials.UserID, credentials.AccessToken)
	if err != nil {
		return nil, err
	}
	userID, err := session.WhoAmI(ctx)
	if err == nil && userID == credentials.UserID {
		return session, nil
	}
	session.Close()

	if err == nil {
		err = fmt.Errorf("%w: token belongs to %s, not %s", ErrAuthExpired, userID, credentials.UserID)
	} else if errors.Is(err, messaging.ErrNetwork) {
		return nil, err
	} else {
		err = fmt.Errorf("%w: %w", ErrAuthExpired, err)
	}
	if clearErr := c.store.Clear(); clearErr != nil {
		c.logger.Warn("clearing rejected credentials", "error", clearErr)
	}
	return nil, err
}

func (c *Client) interactiveLogin(ctx context.Context) (*messaging.Session, error) {
	if c.tokens == nil {
		return nil, ErrNoTokenSource
	}
	loginToken, err := c.tokens.AwaitToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("chat: awaiting login token: %w", err)
	}
	session, err := c.matrix.LoginWithToken(ctx, loginToken)
	if err != nil {
		return nil, fmt.Errorf("chat: exchanging login token: %w", err)
	}
	c.persist(session)
	return session, nil
}

// persist saves the session's credentials. A failure costs the user a
// login next run, not this one, so it is only logged.
func (c *Client) persist(session *messaging.Session) {
	if c.store == nil {
		return
	}
	err := c.store.Save(credstore.Credentials{
		AccessToken: session.AccessToken(),
		UserID:      session.UserID(),
		Homeserver:  c.matrix.Gateway().BaseURL(),
	})
	if err != nil {
		c.logger.Warn("saving credentials", "error", err)
	}
}
