// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

import (
	"context"
	"time"
)

// Target describes the device to look for during discovery
type Target struct {
	ServiceID  string
	DeviceName string
	// Address, when set, selects the device by address instead of name
	Address string
	Timeout time.Duration
}

// Device is a discovered device handle. Backends return their own
// implementation and accept only that implementation in Connect.
type Device interface {
	Name() string
	Address() string
}

// Conn is an established link with an active notification subscription
type Conn interface {
	// WriteCommand sends one command. A partial write is an error.
	WriteCommand(ctx context.Context, command []byte) error

	// Notifications returns the chunk stream of the subscription. The same
	// channel is returned on every call; it is closed when the stream ends.
	Notifications() <-chan []byte

	// Close releases the link
	Close() error
}

// Transport provides discovery and link setup for one backend
type Transport interface {
	Discover(ctx context.Context, target Target) (Device, error)
	Connect(ctx context.Context, dev Device) (Conn, error)
}
