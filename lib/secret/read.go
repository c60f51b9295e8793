// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ReadPassword prompts on stderr and reads a line from the terminal
// without echo. When stdin is not a terminal (piped input in scripts)
// the first line of stdin is read instead.
func ReadPassword(prompt string) (*Buffer, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("secret: reading password: %w", err)
		}
		return fromLine(data)
	}
	return ReadLine(os.Stdin)
}

// ReadLine reads one newline-terminated line from r into a protected
// buffer. Surrounding whitespace is trimmed.
func ReadLine(r io.Reader) (*Buffer, error) {
	var line []byte
	one := make([]byte, 1)
	for {
		n, err := r.Read(one)
		if n == 1 {
			if one[0] == '\n' {
				break
			}
			line = append(line, one[0])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			Zero(line)
			return nil, fmt.Errorf("secret: reading line: %w", err)
		}
	}
	return fromLine(line)
}

func fromLine(data []byte) (*Buffer, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		Zero(data)
		return nil, fmt.Errorf("secret: empty input")
	}
	buffer, err := NewFromBytes(trimmed)
	Zero(data)
	return buffer, err
}
