// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/bureau-foundation/overlay/lib/credstore"
	"github.com/bureau-foundation/overlay/lib/secret"
	"github.com/bureau-foundation/overlay/messaging"
)

func TestLoginInteractiveWhenNothingStored(t *testing.T) {
	harness := newHarness(t, func(server *fakeHomeserver, config *Config) {
		server.loginTokens["abc123"] = "@me:local"
	})
	harness.tokens.token = "abc123"

	if !harness.client.Login(context.Background()) {
		t.Fatal("Login returned false")
	}
	result := nextEvent[LoginResult](t, harness.client)
	if !result.Success || result.UserID != "@me:local" || result.Restored || result.Err != nil {
		t.Errorf("LoginResult = %+v", result)
	}
	requireNoEvent(t, harness.client)

	if harness.tokens.callCount() != 1 {
		t.Errorf("token source called %d times, want 1", harness.tokens.callCount())
	}
	if harness.client.State() != StateAuthenticated {
		t.Errorf("State = %v, want authenticated", harness.client.State())
	}
	if harness.client.UserID() != "@me:local" {
		t.Errorf("UserID = %q", harness.client.UserID())
	}

	stored, ok := harness.store.Load()
	if !ok {
		t.Fatal("credentials were not persisted")
	}
	want := credstore.Credentials{
		AccessToken: "token-me",
		UserID:      "@me:local",
		Homeserver:  harness.matrix.Gateway().BaseURL(),
	}
	if stored != want {
		t.Errorf("stored = %+v, want %+v", stored, want)
	}

	harness.server.mu.Lock()
	logins := harness.server.logins
	harness.server.mu.Unlock()
	if len(logins) != 1 || logins[0].Type != messaging.LoginTypeToken || logins[0].Token != "abc123" {
		t.Errorf("login requests = %+v", logins)
	}
}

func TestLoginRestoresStoredCredentials(t *testing.T) {
	harness := newHarness(t, func(server *fakeHomeserver, config *Config) {
		server.users["token-me"] = "@me:local"
	})
	harness.store.credentials = &credstore.Credentials{AccessToken: "token-me", UserID: "@me:local"}

	if !harness.client.Login(context.Background()) {
		t.Fatal("Login returned false")
	}
	result := nextEvent[LoginResult](t, harness.client)
	if !result.Success || !result.Restored {
		t.Errorf("LoginResult = %+v, want restored success", result)
	}
	if harness.tokens.callCount() != 0 {
		t.Error("interactive login used despite valid stored credentials")
	}
	if harness.store.clears != 0 || harness.store.saves != 0 {
		t.Errorf("store saves=%d clears=%d, want untouched", harness.store.saves, harness.store.clears)
	}
}

func TestLoginFallsBackWhenStoredCredentialsFail(t *testing.T) {
	tests := []struct {
		name       string
		stored     credstore.Credentials
		wantClears int
	}{
		{
			name:       "token unknown",
			stored:     credstore.Credentials{AccessToken: "stale", UserID: "@me:local"},
			wantClears: 1,
		},
		{
			name:       "token belongs to another user",
			stored:     credstore.Credentials{AccessToken: "token-other", UserID: "@me:local"},
			wantClears: 1,
		},
		{
			name: "stored for another homeserver",
			stored: credstore.Credentials{
				AccessToken: "token-me",
				UserID:      "@me:local",
				Homeserver:  "https://elsewhere.example",
			},
			wantClears: 0,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			harness := newHarness(t, func(server *fakeHomeserver, config *Config) {
				server.users["token-other"] = "@other:local"
				server.loginTokens["abc123"] = "@me:local"
			})
			stored := test.stored
			harness.store.credentials = &stored
			harness.tokens.token = "abc123"

			if !harness.client.Login(context.Background()) {
				t.Fatal("Login returned false")
			}
			result := nextEvent[LoginResult](t, harness.client)
			if !result.Success || result.Restored {
				t.Errorf("LoginResult = %+v, want interactive success", result)
			}
			requireNoEvent(t, harness.client)

			if harness.tokens.callCount() != 1 {
				t.Errorf("token source called %d times, want 1", harness.tokens.callCount())
			}
			if harness.store.clears != test.wantClears {
				t.Errorf("clears = %d, want %d", harness.store.clears, test.wantClears)
			}
			if current, _ := harness.store.Load(); current.AccessToken != "token-me" {
				t.Errorf("stored token after fallback = %q, want token-me", current.AccessToken)
			}
		})
	}
}

func TestLoginWithoutTokenSource(t *testing.T) {
	harness := newHarness(t, func(server *fakeHomeserver, config *Config) {
		config.Tokens = nil
	})

	if harness.client.Login(context.Background()) {
		t.Fatal("Login succeeded with nothing stored and no token source")
	}
	result := nextEvent[LoginResult](t, harness.client)
	if result.Success || !errors.Is(result.Err, ErrNoTokenSource) {
		t.Errorf("LoginResult = %+v, want ErrNoTokenSource", result)
	}
	if harness.client.State() != StateUnauthenticated {
		t.Errorf("State = %v, want unauthenticated", harness.client.State())
	}
}

func TestLoginTokenRejected(t *testing.T) {
	harness := newHarness(t, nil)
	harness.tokens.token = "bogus"

	if harness.client.Login(context.Background()) {
		t.Fatal("Login succeeded with a bogus token")
	}
	result := nextEvent[LoginResult](t, harness.client)
	if !messaging.IsMatrixError(result.Err, messaging.ErrCodeForbidden) {
		t.Errorf("LoginResult.Err = %v, want M_FORBIDDEN", result.Err)
	}
	if harness.store.saves != 0 {
		t.Error("failed login persisted credentials")
	}

	// A failed attempt leaves the client ready to try again.
	harness.server.mu.Lock()
	harness.server.loginTokens["good"] = "@me:local"
	harness.server.mu.Unlock()
	harness.tokens.token = "good"
	if !harness.client.Login(context.Background()) {
		t.Fatal("retry Login returned false")
	}
	nextEvent[LoginResult](t, harness.client)
}

func TestLoginTokenSourceError(t *testing.T) {
	harness := newHarness(t, nil)
	harness.tokens.err = errors.New("browser closed")

	if harness.client.Login(context.Background()) {
		t.Fatal("Login succeeded")
	}
	result := nextEvent[LoginResult](t, harness.client)
	if result.Err == nil || !errors.Is(result.Err, harness.tokens.err) {
		t.Errorf("LoginResult.Err = %v", result.Err)
	}
}

func TestLoginTwice(t *testing.T) {
	harness := loggedIn(t, nil)

	if harness.client.Login(context.Background()) {
		t.Fatal("second Login succeeded")
	}
	result := nextEvent[LoginResult](t, harness.client)
	if !errors.Is(result.Err, ErrAlreadyAuthenticated) {
		t.Errorf("Err = %v, want ErrAlreadyAuthenticated", result.Err)
	}
	if harness.client.State() != StateAuthenticated {
		t.Errorf("State = %v, want authenticated", harness.client.State())
	}
}

func TestLoginWithPassword(t *testing.T) {
	harness := newHarness(t, func(server *fakeHomeserver, config *Config) {
		server.passwords["@me:local"] = "hunter2"
	})

	password, err := secret.NewFromString("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	defer password.Close()

	if !harness.client.LoginWithPassword(context.Background(), "@me:local", password) {
		t.Fatal("LoginWithPassword returned false")
	}
	result := nextEvent[LoginResult](t, harness.client)
	if !result.Success || result.UserID != "@me:local" {
		t.Errorf("LoginResult = %+v", result)
	}
	if stored, ok := harness.store.Load(); !ok || stored.AccessToken != "token-me" {
		t.Errorf("stored = %+v, %v", stored, ok)
	}
	if password.String() != "hunter2" {
		t.Error("LoginWithPassword consumed the caller's password buffer")
	}
}

func TestLoginWithWrongPassword(t *testing.T) {
	harness := newHarness(t, func(server *fakeHomeserver, config *Config) {
		server.passwords["@me:local"] = "hunter2"
	})

	password, err := secret.NewFromString("wrong")
	if err != nil {
		t.Fatal(err)
	}
	defer password.Close()

	if harness.client.LoginWithPassword(context.Background(), "@me:local", password) {
		t.Fatal("LoginWithPassword succeeded with the wrong password")
	}
	result := nextEvent[LoginResult](t, harness.client)
	if !messaging.IsMatrixError(result.Err, messaging.ErrCodeForbidden) {
		t.Errorf("Err = %v, want M_FORBIDDEN", result.Err)
	}
}

func TestLoginAfterStop(t *testing.T) {
	harness := newHarness(t, nil)
	harness.client.Stop()

	if harness.client.Login(context.Background()) {
		t.Fatal("Login succeeded after Stop")
	}
	result := nextEvent[LoginResult](t, harness.client)
	if !errors.Is(result.Err, ErrStopped) {
		t.Errorf("Err = %v, want ErrStopped", result.Err)
	}
}

func TestLoginWithCredentialStoreOnDisk(t *testing.T) {
	store, err := credstore.New(credstore.Config{Directory: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	harness := newHarness(t, func(server *fakeHomeserver, config *Config) {
		server.loginTokens["abc123"] = "@me:local"
		config.Store = store
	})
	harness.tokens.token = "abc123"

	if !harness.client.Login(context.Background()) {
		t.Fatal("Login returned false")
	}
	nextEvent[LoginResult](t, harness.client)

	stored, ok := store.Load()
	if !ok || stored.AccessToken != "token-me" || stored.UserID != "@me:local" {
		t.Fatalf("store.Load = %+v, %v", stored, ok)
	}

	// A second client on the same store logs in silently.
	second, err := New(Config{Matrix: harness.matrix, Store: store, Clock: harness.clock})
	if err != nil {
		t.Fatal(err)
	}
	defer second.Stop()
	if !second.Login(context.Background()) {
		t.Fatal("second Login returned false")
	}
	result := nextEvent[LoginResult](t, second)
	if !result.Restored {
		t.Errorf("second login was not restored from disk: %+v", result)
	}
}
