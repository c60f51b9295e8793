// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/overlay/lib/clock"
	"github.com/bureau-foundation/overlay/lib/credstore"
	"github.com/bureau-foundation/overlay/lib/testutil"
	"github.com/bureau-foundation/overlay/messaging"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeHomeserver is an in-memory homeserver covering the endpoints the
// client uses. Fields are configured before the first request and the
// recorded slices are read under mu.
type fakeHomeserver struct {
	t *testing.T

	mu sync.Mutex

	// users maps access tokens to user IDs for whoami.
	users map[string]string
	// loginTokens maps SSO login tokens to the user they log in.
	loginTokens map[string]string
	// passwords maps user IDs to passwords.
	passwords map[string]string
	// aliases maps "#alias:server" to room IDs for join by alias.
	aliases map[string]string

	createStatus     int
	createOmitRoomID bool
	joinFailures     int
	sendStatus       int
	syncFailures     int

	// sendGate, when non-nil, holds each send until it is closed.
	sendGate chan struct{}

	// createHeld, when non-nil, is signalled by each create request,
	// which then waits for the client to abandon it.
	createHeld chan struct{}

	syncResponses []messaging.SyncResponse

	logins   []messaging.LoginRequest
	creates  []messaging.CreateRoomRequest
	joins    []string
	sends    []sentMessage
	receipts []string
	sinces   []string

	syncCalls   chan string
	sendArrived chan struct{}
}

type sentMessage struct {
	RoomID        string
	TransactionID string
	Content       messaging.MessageContent
}

func newFakeHomeserver(t *testing.T) *fakeHomeserver {
	return &fakeHomeserver{
		t:           t,
		users:       map[string]string{},
		loginTokens: map[string]string{},
		passwords:   map[string]string{},
		aliases:     map[string]string{},
		syncCalls:   make(chan string, 64),
		sendArrived: make(chan struct{}, 64),
	}
}

func (f *fakeHomeserver) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/login", f.handleLogin)
	mux.HandleFunc("GET /_matrix/client/v3/account/whoami", f.handleWhoAmI)
	mux.HandleFunc("POST /_matrix/client/v3/createRoom", f.handleCreateRoom)
	mux.HandleFunc("POST /_matrix/client/v3/join/{room}", f.handleJoin)
	mux.HandleFunc("PUT /_matrix/client/v3/rooms/{room}/send/{type}/{txn}", f.handleSend)
	mux.HandleFunc("POST /_matrix/client/v3/rooms/{room}/receipt/{type}/{event}", f.handleReceipt)
	mux.HandleFunc("GET /_matrix/client/v3/sync", f.handleSync)
	return mux
}

// authorized returns the user for the request's bearer token, writing
// M_UNKNOWN_TOKEN and returning "" when there is none.
func (f *fakeHomeserver) authorized(writer http.ResponseWriter, request *http.Request) string {
	token := strings.TrimPrefix(request.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	user := f.users[token]
	f.mu.Unlock()
	if user == "" {
		writeMatrixError(writer, http.StatusUnauthorized, messaging.ErrCodeUnknownToken, "unknown token")
	}
	return user
}

func (f *fakeHomeserver) handleLogin(writer http.ResponseWriter, request *http.Request) {
	var login messaging.LoginRequest
	if err := json.NewDecoder(request.Body).Decode(&login); err != nil {
		writeMatrixError(writer, http.StatusBadRequest, messaging.ErrCodeBadJSON, err.Error())
		return
	}
	f.mu.Lock()
	f.logins = append(f.logins, login)
	var user string
	switch login.Type {
	case messaging.LoginTypeToken:
		user = f.loginTokens[login.Token]
		delete(f.loginTokens, login.Token)
	case messaging.LoginTypePassword:
		if login.Identifier != nil && f.passwords[login.Identifier.User] == login.Password {
			user = login.Identifier.User
		}
	}
	var accessToken string
	if user != "" {
		accessToken = "token-" + strings.TrimPrefix(user, "@")
		f.users[accessToken] = user
	}
	f.mu.Unlock()

	if user == "" {
		writeMatrixError(writer, http.StatusForbidden, messaging.ErrCodeForbidden, "invalid login")
		return
	}
	writeJSON(writer, messaging.AuthResponse{UserID: user, AccessToken: accessToken, DeviceID: "DEVICE"})
}

func (f *fakeHomeserver) handleWhoAmI(writer http.ResponseWriter, request *http.Request) {
	user := f.authorized(writer, request)
	if user == "" {
		return
	}
	writeJSON(writer, messaging.WhoAmIResponse{UserID: user})
}

func (f *fakeHomeserver) handleCreateRoom(writer http.ResponseWriter, request *http.Request) {
	if f.authorized(writer, request) == "" {
		return
	}
	var create messaging.CreateRoomRequest
	json.NewDecoder(request.Body).Decode(&create)

	f.mu.Lock()
	f.creates = append(f.creates, create)
	status := f.createStatus
	omit := f.createOmitRoomID
	held := f.createHeld
	f.mu.Unlock()

	if held != nil {
		held <- struct{}{}
		<-request.Context().Done()
		return
	}

	if status != 0 {
		writeMatrixError(writer, status, messaging.ErrCodeRoomInUse, "create refused")
		return
	}
	if omit {
		writeJSON(writer, map[string]any{})
		return
	}
	writeJSON(writer, messaging.CreateRoomResponse{RoomID: "!created:local"})
}

func (f *fakeHomeserver) handleJoin(writer http.ResponseWriter, request *http.Request) {
	if f.authorized(writer, request) == "" {
		return
	}
	room := request.PathValue("room")

	f.mu.Lock()
	f.joins = append(f.joins, room)
	fail := f.joinFailures > 0
	if fail {
		f.joinFailures--
	}
	roomID := room
	known := true
	if strings.HasPrefix(room, "#") {
		roomID, known = f.aliases[room]
	}
	f.mu.Unlock()

	if fail {
		writeMatrixError(writer, http.StatusForbidden, messaging.ErrCodeForbidden, "not yet")
		return
	}
	if !known {
		writeMatrixError(writer, http.StatusNotFound, messaging.ErrCodeNotFound, "no such alias")
		return
	}
	writeJSON(writer, messaging.JoinResponse{RoomID: roomID})
}

func (f *fakeHomeserver) handleSend(writer http.ResponseWriter, request *http.Request) {
	if f.authorized(writer, request) == "" {
		return
	}
	var content messaging.MessageContent
	json.NewDecoder(request.Body).Decode(&content)

	f.mu.Lock()
	f.sends = append(f.sends, sentMessage{
		RoomID:        request.PathValue("room"),
		TransactionID: request.PathValue("txn"),
		Content:       content,
	})
	gate := f.sendGate
	status := f.sendStatus
	f.mu.Unlock()

	f.sendArrived <- struct{}{}
	if gate != nil {
		<-gate
	}
	if status != 0 {
		writeMatrixError(writer, status, messaging.ErrCodeForbidden, "send refused")
		return
	}
	writeJSON(writer, messaging.SendEventResponse{EventID: testutil.UniqueID("$sent")})
}

func (f *fakeHomeserver) handleReceipt(writer http.ResponseWriter, request *http.Request) {
	if f.authorized(writer, request) == "" {
		return
	}
	f.mu.Lock()
	f.receipts = append(f.receipts, request.PathValue("room")+" "+request.PathValue("event"))
	f.mu.Unlock()
	writeJSON(writer, map[string]any{})
}

func (f *fakeHomeserver) handleSync(writer http.ResponseWriter, request *http.Request) {
	if f.authorized(writer, request) == "" {
		return
	}
	since := request.URL.Query().Get("since")

	f.mu.Lock()
	f.sinces = append(f.sinces, since)
	if f.syncFailures > 0 {
		f.syncFailures--
		f.mu.Unlock()
		http.Error(writer, "upstream unavailable", http.StatusBadGateway)
		f.syncCalls <- since
		return
	}
	response := messaging.SyncResponse{}
	if len(f.syncResponses) > 0 {
		response = f.syncResponses[0]
		f.syncResponses = f.syncResponses[1:]
	}
	f.mu.Unlock()

	writeJSON(writer, response)
	f.syncCalls <- since
}

func (f *fakeHomeserver) recorded() (joins, receipts, sinces []string, sends []sentMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joins...),
		append([]string(nil), f.receipts...),
		append([]string(nil), f.sinces...),
		append([]sentMessage(nil), f.sends...)
}

func writeJSON(writer http.ResponseWriter, value any) {
	writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(writer).Encode(value)
}

func writeMatrixError(writer http.ResponseWriter, status int, code, message string) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(messaging.MatrixError{Code: code, Message: message})
}

// memoryStore is a CredentialStore that records its calls.
type memoryStore struct {
	mu          sync.Mutex
	credentials *credstore.Credentials
	lastRoom    string
	saves       int
	clears      int
}

func (s *memoryStore) Save(credentials credstore.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials = &credentials
	s.saves++
	return nil
}

func (s *memoryStore) Load() (credstore.Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credentials == nil {
		return credstore.Credentials{}, false
	}
	return *s.credentials, true
}

func (s *memoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials = nil
	s.clears++
	return nil
}

func (s *memoryStore) SaveLastRoom(room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRoom = room
	return nil
}

func (s *memoryStore) LoadLastRoom() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRoom, s.lastRoom != ""
}

// tokenSource hands out a fixed login token and counts requests.
type tokenSource struct {
	mu    sync.Mutex
	token string
	err   error
	calls int
}

func (s *tokenSource) AwaitToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.token, s.err
}

func (s *tokenSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testHarness struct {
	server *fakeHomeserver
	store  *memoryStore
	tokens *tokenSource
	clock  *clock.FakeClock
	matrix *messaging.Client
	client *Client
}

// newHarness builds a Client wired to a fake homeserver, an in-memory
// store, a token source, and a fake clock. configure may adjust the
// server and the client config before the client is built.
func newHarness(t *testing.T, configure func(*fakeHomeserver, *Config)) *testHarness {
	t.Helper()
	fake := newFakeHomeserver(t)
	server := httptest.NewServer(fake.handler())

	matrix, err := messaging.NewClient(messaging.ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("messaging.NewClient: %v", err)
	}

	harness := &testHarness{
		server: fake,
		store:  &memoryStore{},
		tokens: &tokenSource{},
		clock:  clock.Fake(testEpoch),
		matrix: matrix,
	}
	config := Config{
		Matrix: matrix,
		Store:  harness.store,
		Tokens: harness.tokens,
		Clock:  harness.clock,
	}
	if configure != nil {
		configure(fake, &config)
	}
	client, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	harness.client = client

	// Stop before closing the server so no goroutine is mid-request.
	t.Cleanup(server.Close)
	t.Cleanup(client.Stop)
	return harness
}

// loggedIn returns a harness whose client is logged in as @me:local.
func loggedIn(t *testing.T, configure func(*fakeHomeserver, *Config)) *testHarness {
	t.Helper()
	harness := newHarness(t, func(server *fakeHomeserver, config *Config) {
		server.users["token-me"] = "@me:local"
		if configure != nil {
			configure(server, config)
		}
	})
	harness.store.credentials = &credstore.Credentials{AccessToken: "token-me", UserID: "@me:local"}
	if !harness.client.Login(context.Background()) {
		t.Fatal("Login with stored credentials failed")
	}
	nextEvent[LoginResult](t, harness.client)
	return harness
}

// inRoom returns a logged-in harness that has joined !room:local.
func inRoom(t *testing.T, configure func(*fakeHomeserver, *Config)) *testHarness {
	t.Helper()
	harness := loggedIn(t, configure)
	if !harness.client.JoinRoom(context.Background(), "!room:local") {
		t.Fatal("JoinRoom failed")
	}
	nextEvent[RoomResult](t, harness.client)
	return harness
}

// nextEvent reads the next event and requires it to be of type T.
func nextEvent[T Event](t *testing.T, client *Client) T {
	t.Helper()
	select {
	case event := <-client.Events():
		typed, ok := event.(T)
		if !ok {
			t.Fatalf("next event is %T (%+v), want %T", event, event, *new(T))
		}
		return typed
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatalf("timed out waiting for %T", *new(T))
	}
	panic("unreachable")
}

func requireNoEvent(t *testing.T, client *Client) {
	t.Helper()
	select {
	case event := <-client.Events():
		t.Fatalf("unexpected event %T: %+v", event, event)
	case <-time.After(50 * time.Millisecond): //nolint:realclock bounded negative check
	}
}
