// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AssemblerState is the state of an in-flight response
type AssemblerState int

const (
	StateIdle AssemblerState = iota
	StateAccumulating
	StateComplete
	StateInvalid
	StateTimedOutIncomplete
)

func (s AssemblerState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAccumulating:
		return "ACCUMULATING"
	case StateComplete:
		return "COMPLETE"
	case StateInvalid:
		return "INVALID"
	case StateTimedOutIncomplete:
		return "TIMED_OUT_INCOMPLETE"
	default:
		return fmt.Sprintf("AssemblerState(%d)", int(s))
	}
}

// Terminal reports whether no further event changes the state
func (s AssemblerState) Terminal() bool {
	return s == StateComplete || s == StateInvalid || s == StateTimedOutIncomplete
}

// Assembler reassembles one response from transport chunks.
//
// The transport gives no message delimiter, so every accepted chunk is followed
// by a parse attempt; the inactivity timeout is the only other way out.
type Assembler struct {
	state      AssemblerState
	buffer     []byte
	previous   []byte
	duplicates int
	outcome    Outcome
	log        zerolog.Logger
}

// NewAssembler creates an idle assembler
func NewAssembler(log zerolog.Logger) *Assembler {
	return &Assembler{
		state:  StateIdle,
		buffer: make([]byte, 0, MaxFrameSize),
		log:    log,
	}
}

// Reset discards the buffer and returns to idle
func (a *Assembler) Reset() {
	a.state = StateIdle
	a.buffer = a.buffer[:0]
	a.previous = nil
	a.duplicates = 0
	a.outcome = Outcome{}
}

// State returns the current state
func (a *Assembler) State() AssemblerState {
	return a.state
}

// Buffered returns a copy of the bytes accumulated so far
func (a *Assembler) Buffered() []byte {
	return append([]byte(nil), a.buffer...)
}

// Duplicates returns the number of chunks dropped as repeats of their predecessor
func (a *Assembler) Duplicates() int {
	return a.duplicates
}

// Feed handles the chunk-received event.
// A chunk identical to the previous accepted chunk is dropped.
func (a *Assembler) Feed(chunk []byte) Outcome {
	if a.state.Terminal() {
		return a.outcome
	}

	if a.previous != nil && bytes.Equal(chunk, a.previous) {
		a.duplicates++
		a.log.Debug().Str("chunk", hex.EncodeToString(chunk)).Msg("duplicate chunk dropped")
		return incomplete()
	}

	a.previous = append(a.previous[:0], chunk...)
	a.buffer = append(a.buffer, chunk...)
	a.state = StateAccumulating

	out := Parse(a.buffer)
	a.log.Debug().
		Str("buffer", hex.EncodeToString(a.buffer)).
		Stringer("outcome", out).
		Msg("chunk accepted")

	switch out.Status {
	case StatusComplete:
		a.finish(StateComplete, out)
	case StatusInvalid:
		a.finish(StateInvalid, out)
	}
	return out
}

// Expire handles the inactivity-timeout event with one final parse attempt.
func (a *Assembler) Expire() Outcome {
	if a.state.Terminal() {
		return a.outcome
	}

	out := Parse(a.buffer)
	switch out.Status {
	case StatusComplete:
		a.finish(StateComplete, out)
	case StatusInvalid:
		a.finish(StateInvalid, out)
	default:
		a.finish(StateTimedOutIncomplete, out)
	}
	return out
}

func (a *Assembler) finish(state AssemblerState, out Outcome) {
	a.state = state
	a.outcome = out
}

// Run consumes chunks until the response is finalized.
//
// The inactivity timer restarts on every received chunk, duplicates included.
// A closed channel yields a StreamClosedError.
func (a *Assembler) Run(ctx context.Context, chunks <-chan []byte, inactivity time.Duration) ([]byte, error) {
	timer := time.NewTimer(inactivity)
	defer timer.Stop()

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return nil, &StreamClosedError{Raw: a.Buffered()}
			}
			a.log.Debug().Str("chunk", hex.EncodeToString(chunk)).Msg("RX notification")
			timer.Reset(inactivity)

			out := a.Feed(chunk)
			if out.Status != StatusIncomplete {
				return a.result(out, inactivity)
			}

		case <-timer.C:
			return a.result(a.Expire(), inactivity)

		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for response (buffer %s): %w", hexBytes(a.buffer), ctx.Err())
		}
	}
}

func (a *Assembler) result(out Outcome, inactivity time.Duration) ([]byte, error) {
	switch out.Status {
	case StatusComplete:
		return out.Payload, nil
	case StatusInvalid:
		return nil, &ProtocolError{Reason: out.Reason, Raw: a.Buffered()}
	default:
		return nil, &AssemblyTimeoutError{Timeout: inactivity, Raw: a.Buffered()}
	}
}

// Assemble reads one response from chunks with a fresh Assembler
func Assemble(ctx context.Context, chunks <-chan []byte, inactivity time.Duration) ([]byte, error) {
	return NewAssembler(zerolog.Nop()).Run(ctx, chunks, inactivity)
}
