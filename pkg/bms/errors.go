// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrDeviceNotFound is returned by Transport.Discover when no device matches the target
var ErrDeviceNotFound = errors.New("device not found")

// ErrNotConnected is returned when an operation needs a connection and none is open
var ErrNotConnected = errors.New("not connected")

func hexBytes(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// DiscoveryError indicates that the device or its service could not be found
type DiscoveryError struct {
	DeviceName string
	Err        error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover %q: %v", e.DeviceName, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ConnectError indicates that link establishment failed after all attempts
type ConnectError struct {
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// WriteError indicates that a command was not written completely
type WriteError struct {
	Command []byte
	Written int
	Err     error
}

func (e *WriteError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("short write of %s: %d of %d bytes", hexBytes(e.Command), e.Written, len(e.Command))
	}
	return fmt.Sprintf("write %s: %v", hexBytes(e.Command), e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// AssemblyTimeoutError indicates that the link went quiet before a complete frame arrived
type AssemblyTimeoutError struct {
	Timeout time.Duration
	Raw     []byte
}

func (e *AssemblyTimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s of inactivity waiting for response. The buffer content is: %s", e.Timeout, hexBytes(e.Raw))
}

// ProtocolError indicates a structurally broken response
type ProtocolError struct {
	Reason Reason
	Raw    []byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("invalid message: %s. The buffer content is: %s", e.Reason, hexBytes(e.Raw))
}

// StreamClosedError indicates that the notification stream ended.
// The device most likely disconnected; a fresh connection is required.
type StreamClosedError struct {
	Raw []byte
}

func (e *StreamClosedError) Error() string {
	if len(e.Raw) == 0 {
		return "notification stream closed"
	}
	return fmt.Sprintf("notification stream closed. The buffer content is: %s", hexBytes(e.Raw))
}

// DecodeError indicates a payload that does not fit the expected record layout
type DecodeError struct {
	Record string
	Length int
	Need   int
}

func (e *DecodeError) Error() string {
	if e.Length%2 != 0 {
		return fmt.Sprintf("%s payload has odd length %d", e.Record, e.Length)
	}
	return fmt.Sprintf("%s payload too short: %d bytes (need %d)", e.Record, e.Length, e.Need)
}

// ExchangeError names the request whose exchange failed
type ExchangeError struct {
	Request string
	Err     error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s exchange: %v", e.Request, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }
