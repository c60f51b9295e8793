// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package websocket

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/gobwas/ws"
)

// Opcode is the 4-bit frame type from RFC 6455 §5.2.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return fmt.Sprintf("reserved(0x%x)", byte(o))
	}
}

func (o Opcode) isControl() bool { return o&0x8 != 0 }

func (o Opcode) isDefined() bool {
	switch o {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	}
	return false
}

// MaxPayloadSize caps a single decoded payload. A peer announcing a
// larger frame is treated as malformed instead of being buffered.
const MaxPayloadSize = 16 << 20

// Frame is one decoded WebSocket frame. Payload is already unmasked.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// FrameErrorKind classifies a decode failure.
type FrameErrorKind int

const (
	// FrameTruncated means the buffer ends before the frame does. The
	// caller keeps the bytes and decodes again after reading more.
	FrameTruncated FrameErrorKind = iota + 1

	// FrameUnsupportedOpcode means a well-formed frame that is not a
	// text frame. Decode still returns the frame and its length so the
	// caller can skip it.
	FrameUnsupportedOpcode

	// FrameMalformed means the bytes cannot be a valid frame. The
	// stream cannot be resynchronized.
	FrameMalformed
)

// FrameError describes why Decode did not produce a text frame.
type FrameError struct {
	Kind   FrameErrorKind
	Opcode Opcode
	Detail string
}

func (e *FrameError) Error() string {
	switch e.Kind {
	case FrameTruncated:
		return "websocket: truncated frame"
	case FrameUnsupportedOpcode:
		return fmt.Sprintf("websocket: unsupported opcode %s", e.Opcode)
	default:
		return "websocket: malformed frame: " + e.Detail
	}
}

// Encode builds a single masked text frame carrying text, as a client
// must send it. A fresh mask is drawn for every frame.
func Encode(text string) []byte {
	var mask [4]byte
	binary.BigEndian.PutUint32(mask[:], rand.Uint32())
	return encodeFrame(OpText, []byte(text), &mask)
}

// EncodeServer builds the unmasked text frame a server sends.
func EncodeServer(text string) []byte {
	return encodeFrame(OpText, []byte(text), nil)
}

// encodeFrame writes a FIN frame with the given opcode. A nil mask
// produces an unmasked frame.
func encodeFrame(opcode Opcode, payload []byte, mask *[4]byte) []byte {
	length := len(payload)

	header := 2
	switch {
	case length > 0xFFFF:
		header += 8
	case length > 125:
		header += 2
	}
	if mask != nil {
		header += 4
	}

	out := make([]byte, header+length)
	out[0] = 0x80 | byte(opcode)

	offset := 2
	switch {
	case length > 0xFFFF:
		out[1] = 127
		binary.BigEndian.PutUint64(out[2:10], uint64(length))
		offset = 10
	case length > 125:
		out[1] = 126
		binary.BigEndian.PutUint16(out[2:4], uint16(length))
		offset = 4
	default:
		out[1] = byte(length)
	}

	if mask != nil {
		out[1] |= 0x80
		copy(out[offset:offset+4], mask[:])
		offset += 4
	}

	copy(out[offset:], payload)
	if mask != nil {
		ws.Cipher(out[offset:], *mask, 0)
	}
	return out
}

// Decode reads one frame starting at buffer[offset] and returns it
// along with the number of bytes it occupied.
//
// A text frame returns a nil error. Any other frame type returns the
// frame, its length, and a *FrameError of kind FrameUnsupportedOpcode.
// If the buffer does not yet hold the whole frame the error kind is
// FrameTruncated and consumed is zero. An offset past the end of the
// buffer is also FrameTruncated; a negative one is FrameMalformed.
func Decode(buffer []byte, offset int) (Frame, int, error) {
	if offset < 0 {
		return Frame{}, 0, malformed(fmt.Sprintf("negative offset %d", offset))
	}
	if offset > len(buffer) {
		return Frame{}, 0, &FrameError{Kind: FrameTruncated}
	}
	data := buffer[offset:]
	if len(data) < 2 {
		return Frame{}, 0, &FrameError{Kind: FrameTruncated}
	}

	frame := Frame{
		Fin:    data[0]&0x80 != 0,
		Opcode: Opcode(data[0] & 0x0F),
		Masked: data[1]&0x80 != 0,
	}
	if data[0]&0x70 != 0 {
		return Frame{}, 0, malformed("reserved bits set")
	}
	if !frame.Opcode.isDefined() {
		return Frame{}, 0, malformed(fmt.Sprintf("reserved opcode 0x%x", byte(frame.Opcode)))
	}

	length := uint64(data[1] & 0x7F)
	position := 2
	switch length {
	case 126:
		if len(data) < position+2 {
			return Frame{}, 0, &FrameError{Kind: FrameTruncated}
		}
		length = uint64(binary.BigEndian.Uint16(data[position:]))
		position += 2
	case 127:
		if len(data) < position+8 {
			return Frame{}, 0, &FrameError{Kind: FrameTruncated}
		}
		length = binary.BigEndian.Uint64(data[position:])
		position += 8
		if length&(1<<63) != 0 {
			return Frame{}, 0, malformed("64-bit length has most significant bit set")
		}
	}
	if length > MaxPayloadSize {
		return Frame{}, 0, malformed(fmt.Sprintf("payload length %d exceeds limit", length))
	}
	if frame.Opcode.isControl() && (length > 125 || !frame.Fin) {
		return Frame{}, 0, malformed("oversized or fragmented control frame")
	}

	if frame.Masked {
		if len(data) < position+4 {
			return Frame{}, 0, &FrameError{Kind: FrameTruncated}
		}
		copy(frame.MaskKey[:], data[position:position+4])
		position += 4
	}

	end := position + int(length)
	if len(data) < end {
		return Frame{}, 0, &FrameError{Kind: FrameTruncated}
	}
	frame.Payload = make([]byte, length)
	copy(frame.Payload, data[position:end])
	if frame.Masked {
		ws.Cipher(frame.Payload, frame.MaskKey, 0)
	}

	if frame.Opcode != OpText {
		return frame, end, &FrameError{Kind: FrameUnsupportedOpcode, Opcode: frame.Opcode}
	}
	if !frame.Fin {
		return Frame{}, 0, malformed("fragmented text frame")
	}
	return frame, end, nil
}

// DecodeAll decodes consecutive frames from the start of buffer until it
// runs out of complete frames. It returns every frame decoded, text or
// not, and the number of bytes they occupied. A truncated tail is not an
// error; the unconsumed bytes belong to the next read. A malformed frame
// stops decoding and is returned as the error alongside the frames that
// preceded it.
func DecodeAll(buffer []byte) ([]Frame, int, error) {
	var frames []Frame
	consumed := 0
	for consumed < len(buffer) {
		frame, n, err := Decode(buffer, consumed)
		if err != nil {
			frameErr, ok := err.(*FrameError)
			if !ok {
				return frames, consumed, err
			}
			switch frameErr.Kind {
			case FrameTruncated:
				return frames, consumed, nil
			case FrameUnsupportedOpcode:
			default:
				return frames, consumed, err
			}
		}
		frames = append(frames, frame)
		consumed += n
	}
	return frames, consumed, nil
}

func malformed(detail string) *FrameError {
	return &FrameError{Kind: FrameMalformed, Detail: detail}
}
