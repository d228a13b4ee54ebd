// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

import (
	"bytes"
	"fmt"
)

// Status is the completeness of a parsed buffer
type Status int

const (
	StatusIncomplete Status = iota
	StatusComplete
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusIncomplete:
		return "INCOMPLETE"
	case StatusComplete:
		return "COMPLETE"
	case StatusInvalid:
		return "INVALID"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Reason explains why a buffer is invalid
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnexpectedHeader
	ReasonTooLong
	ReasonChecksumMismatch
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUnexpectedHeader:
		return "unexpected header"
	case ReasonTooLong:
		return "too long"
	case ReasonChecksumMismatch:
		return "checksum mismatch"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Outcome is the result of parsing a buffer. Payload is set only when
// Status is StatusComplete, Reason only when Status is StatusInvalid.
type Outcome struct {
	Status  Status
	Payload []byte
	Reason  Reason
}

// Complete reports whether the outcome holds a validated payload
func (o Outcome) Complete() bool { return o.Status == StatusComplete }

// Invalid reports whether the buffer can never become a valid frame
func (o Outcome) Invalid() bool { return o.Status == StatusInvalid }

func (o Outcome) String() string {
	switch o.Status {
	case StatusComplete:
		return fmt.Sprintf("COMPLETE(%d bytes)", len(o.Payload))
	case StatusInvalid:
		return fmt.Sprintf("INVALID(%s)", o.Reason)
	default:
		return o.Status.String()
	}
}

func incomplete() Outcome { return Outcome{Status: StatusIncomplete} }

func invalid(r Reason) Outcome { return Outcome{Status: StatusInvalid, Reason: r} }

// Parse validates buf as a single response frame.
//
// A buffer shorter than its declared length is incomplete, a longer one is invalid.
// The returned payload is a copy and does not alias buf.
func Parse(buf []byte) Outcome {
	if len(buf) < HeaderSize+LengthSize {
		return incomplete()
	}

	if !bytes.Equal(buf[:HeaderSize], Header[:]) {
		return invalid(ReasonUnexpectedHeader)
	}

	expected := int(buf[HeaderSize]) + FrameOverhead
	if len(buf) < expected {
		return incomplete()
	}
	if len(buf) > expected {
		return invalid(ReasonTooLong)
	}

	body := buf[:len(buf)-ChecksumSize]
	want := checksumBytes(Checksum(body))
	if !bytes.Equal(buf[len(buf)-ChecksumSize:], want[:]) {
		return invalid(ReasonChecksumMismatch)
	}

	payload := make([]byte, len(body)-HeaderSize-LengthSize)
	copy(payload, body[HeaderSize+LengthSize:])
	return Outcome{Status: StatusComplete, Payload: payload}
}

// EncodeFrame builds a wire-formatted response frame around payload.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	frame := make([]byte, 0, len(payload)+FrameOverhead)
	frame = append(frame, Header[:]...)
	frame = append(frame, uint8(len(payload)))
	frame = append(frame, payload...)

	crc := checksumBytes(Checksum(frame))
	return append(frame, crc[:]...), nil
}

// SplitChunks cuts data into chunks of at most size bytes, the way a link
// with that MTU delivers it.
//
// A chunk equal to its predecessor would be dropped by the Assembler, so such
// a boundary is moved one byte earlier (or later when the chunk is a single byte).
func SplitChunks(data []byte, size int) [][]byte {
	if size < 1 {
		size = 1
	}

	var chunks [][]byte
	var prev []byte
	for start := 0; start < len(data); {
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		if prev != nil && bytes.Equal(data[start:end], prev) {
			if end-start > 1 {
				end--
			} else if end < len(data) {
				end++
			}
		}
		chunk := data[start:end]
		chunks = append(chunks, chunk)
		prev = chunk
		start = end
	}
	return chunks
}
