// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks a request that produced no response: the
	// connection, the send, or the receive failed, or the request was
	// cancelled. The underlying cause is wrapped alongside it.
	ErrNetwork = errors.New("messaging: network failure")

	// ErrEmptyResponse is returned when a successful status arrives with
	// no body. No endpoint used here legitimately answers with nothing.
	ErrEmptyResponse = errors.New("messaging: empty response body")

	// ErrMissingField is returned when a response parses but lacks the
	// field the call exists to obtain, such as room_id or access_token.
	ErrMissingField = errors.New("messaging: response missing required field")
)

// MatrixError is a structured error reported by the homeserver. A body
// carrying "errcode" is a MatrixError whatever its HTTP status; a
// non-2xx response without a recognizable body is reported with an
// empty Code and the raw body as Message.
//
//	var matrixErr *MatrixError
//	if errors.As(err, &matrixErr) && matrixErr.Code == ErrCodeForbidden { ... }
type MatrixError struct {
	Code       string `json:"errcode"`
	Message    string `json:"error"`
	StatusCode int    `json:"-"`
}

func (e *MatrixError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("matrix: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Matrix error codes the client reacts to.
const (
	ErrCodeForbidden     = "M_FORBIDDEN"
	ErrCodeUnknownToken  = "M_UNKNOWN_TOKEN"
	ErrCodeMissingToken  = "M_MISSING_TOKEN"
	ErrCodeNotFound      = "M_NOT_FOUND"
	ErrCodeLimitExceeded = "M_LIMIT_EXCEEDED"
	ErrCodeUnknown       = "M_UNKNOWN"
	ErrCodeRoomInUse     = "M_ROOM_IN_USE"
	ErrCodeBadJSON       = "M_BAD_JSON"
)

// IsMatrixError reports whether err wraps a *MatrixError with code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}
