// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// MaxResponseSize bounds a single homeserver response body. An initial
// sync for an account in many rooms is the largest legitimate response
// and is far below this.
const MaxResponseSize int64 = 64 << 20

// MaxHeaderSize bounds an HTTP/1.1 header block read directly off a
// socket, as in a WebSocket upgrade response.
const MaxHeaderSize = 16 << 10

// ErrHeaderTooLarge is returned by ReadHeaderBlock when no blank line
// appears within MaxHeaderSize bytes.
var ErrHeaderTooLarge = errors.New("netutil: header block exceeds limit")

// ReadResponse drains body up to MaxResponseSize bytes. Chunked and
// content-length bodies are handled identically by net/http before
// they reach here.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// ReadHeaderBlock reads from r through the first "\r\n\r\n" and returns
// everything read, terminator included. Bytes after the terminator stay
// buffered in r.
func ReadHeaderBlock(r *bufio.Reader) ([]byte, error) {
	var block bytes.Buffer
	for {
		line, err := r.ReadSlice('\n')
		block.Write(line)
		if block.Len() > MaxHeaderSize {
			return block.Bytes(), ErrHeaderTooLarge
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return block.Bytes(), fmt.Errorf("netutil: reading header block: %w", err)
		}
		if bytes.HasSuffix(block.Bytes(), []byte("\r\n\r\n")) {
			return block.Bytes(), nil
		}
	}
}
