// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzhttp"

	"github.com/bureau-foundation/overlay/lib/netutil"
	"github.com/bureau-foundation/overlay/lib/secret"
	"github.com/bureau-foundation/overlay/lib/version"
)

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// BaseURL is the homeserver origin, e.g. "https://matrix.org".
	// An https scheme selects TLS.
	BaseURL string

	// HTTPClient overrides the default client. The default opens a new
	// connection for every request and accepts compressed responses.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Gateway performs one HTTP request/response cycle per call against a
// homeserver. Every in-flight call can be aborted with Cancel, which is
// how the session client interrupts a sync long-poll at shutdown.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.Mutex
	nextID   uint64
	inFlight map[uint64]context.CancelFunc
}

// NewGateway validates config and returns a Gateway.
func NewGateway(config GatewayConfig) (*Gateway, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("messaging: homeserver URL is required")
	}
	parsed, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("messaging: invalid homeserver URL %q: %w", config.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("messaging: homeserver URL %q must be http or https", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: newTransport()}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		inFlight:   make(map[uint64]context.CancelFunc),
	}, nil
}

// newTransport disables connection reuse so each call is an isolated
// cycle, and wraps it to negotiate gzip for large sync bodies.
func newTransport() http.RoundTripper {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.DisableKeepAlives = true
	return gzhttp.Transport(base)
}

// BaseURL returns the homeserver origin without a trailing slash.
func (g *Gateway) BaseURL() string { return g.baseURL }

// Do sends one request and returns the response body.
//
// token may be nil for unauthenticated endpoints; otherwise it is sent
// as a bearer token. body, when non-nil, is JSON-encoded. query may be
// nil.
//
// Errors: a transport failure or cancellation wraps ErrNetwork; a body
// with an "errcode" field or a non-2xx status is a *MatrixError; a 2xx
// with no body is ErrEmptyResponse.
func (g *Gateway) Do(ctx context.Context, method, path string, token *secret.Buffer, body any, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	id := g.track(cancel)
	defer g.untrack(id)

	requestURL := g.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("messaging: encoding %s %s body: %w", method, path, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("messaging: building %s %s: %w", method, path, err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != nil {
		request.Header.Set("Authorization", "Bearer "+token.String())
	}

	response, err := g.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: %s %s: %w: %w", method, path, ErrNetwork, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("messaging: reading %s %s: %w: %w", method, path, ErrNetwork, err)
	}

	if matrixErr := parseMatrixError(response.StatusCode, responseBody); matrixErr != nil {
		g.logger.Debug("homeserver returned error",
			"method", method,
			"path", path,
			"status", matrixErr.StatusCode,
			"errcode", matrixErr.Code,
		)
		return nil, matrixErr
	}
	if len(bytes.TrimSpace(responseBody)) == 0 {
		return nil, fmt.Errorf("%w: %s %s (HTTP %d)", ErrEmptyResponse, method, path, response.StatusCode)
	}
	return responseBody, nil
}

// parseMatrixError returns nil for a successful response without an
// errcode marker.
func parseMatrixError(status int, body []byte) *MatrixError {
	var matrixErr MatrixError
	jsonErr := json.Unmarshal(body, &matrixErr)
	if jsonErr == nil && matrixErr.Code != "" {
		matrixErr.StatusCode = status
		return &matrixErr
	}
	if status >= 200 && status < 300 {
		return nil
	}
	message := string(body)
	if len(message) > 512 {
		message = message[:512]
	}
	return &MatrixError{StatusCode: status, Message: message}
}

// Cancel aborts every request currently in flight. Their Do calls
// return errors wrapping ErrNetwork and context.Canceled. Requests
// started after Cancel returns are unaffected.
func (g *Gateway) Cancel() {
	g.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(g.inFlight))
	for _, cancel := range g.inFlight {
		cancels = append(cancels, cancel)
	}
	g.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if len(cancels) > 0 {
		g.logger.Debug("cancelled in-flight requests", "count", len(cancels))
	}
}

// InFlight returns the number of requests currently executing.
func (g *Gateway) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}

func (g *Gateway) track(cancel context.CancelFunc) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	g.inFlight[g.nextID] = cancel
	return g.nextID
}

func (g *Gateway) untrack(id uint64) {
	g.mu.Lock()
	cancel := g.inFlight[id]
	delete(g.inFlight, id)
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
