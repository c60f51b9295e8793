// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// FormatHTML is the format value for HTML formatted bodies.
const FormatHTML = "org.matrix.custom.html"

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

// markdown returns the shared converter. Raw HTML in the input is
// escaped (goldmark's default), so a typed "<script>" stays text.
func markdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
		)
	})
	return markdownInstance
}

// NewTextMessage builds m.text content for body. If body uses any
// Markdown beyond a single plain paragraph, an HTML formatted_body is
// attached; body itself is always sent unchanged.
func NewTextMessage(body string) MessageContent {
	content := MessageContent{MsgType: MsgTypeText, Body: body}

	source := []byte(body)
	document := markdown().Parser().Parse(text.NewReader(source))
	if isPlainParagraph(document) {
		return content
	}

	var rendered bytes.Buffer
	if err := markdown().Renderer().Render(&rendered, source, document); err != nil {
		return content
	}
	content.Format = FormatHTML
	content.FormattedBody = strings.TrimSpace(rendered.String())
	return content
}

// isPlainParagraph reports whether document is empty or one paragraph
// containing nothing but text.
func isPlainParagraph(document ast.Node) bool {
	first := document.FirstChild()
	if first == nil {
		return true
	}
	if first.NextSibling() != nil || first.Kind() != ast.KindParagraph {
		return false
	}
	for child := first.FirstChild(); child != nil; child = child.NextSibling() {
		if child.Kind() != ast.KindText {
			return false
		}
		if textNode := child.(*ast.Text); textNode.HardLineBreak() {
			return false
		}
	}
	return true
}
