// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

import (
	"time"

	"github.com/rs/zerolog"
)

// RetryPolicy bounds the connect step
type RetryPolicy struct {
	// MaxAttempts is the total number of connect attempts (minimum 1)
	MaxAttempts int
	// Delay is the wait before the second attempt; zero retries immediately
	Delay time.Duration
	// Multiplier scales Delay for every further attempt; values <= 1 keep it fixed
	Multiplier float64
}

// DefaultRetryPolicy returns three immediate attempts
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultConnectAttempts}
}

// Attempts returns the effective number of attempts
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the wait before the given attempt (1-based)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 1 || p.Delay <= 0 {
		return 0
	}
	d := p.Delay
	if p.Multiplier > 1 {
		for i := 2; i < attempt; i++ {
			d = time.Duration(float64(d) * p.Multiplier)
		}
	}
	return d
}

// Config holds the client configuration.
type Config struct {
	// Target selects the device during discovery
	Target Target

	// Retry bounds the connect step
	Retry RetryPolicy

	// InactivityTimeout ends a response that stops receiving chunks
	InactivityTimeout time.Duration

	// DrainWindow is the quiet period that ends discarding of stale chunks
	// before each request. Zero only discards what is already queued.
	DrainWindow time.Duration

	// Logger receives protocol traces (optional)
	Logger zerolog.Logger
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Target: Target{
			ServiceID:  NordicUARTServiceID,
			DeviceName: DefaultDeviceName,
			Timeout:    DefaultDiscoveryTimeout,
		},
		Retry:             DefaultRetryPolicy(),
		InactivityTimeout: DefaultInactivityTimeout,
		DrainWindow:       DefaultDrainWindow,
		Logger:            zerolog.Nop(),
	}
}

// Option is a functional option for configuring the Client.
type Option func(*Config)

// WithTarget replaces the discovery target.
//
// Example:
//
//	client := bms.NewClient(tr, bms.WithTarget(bms.Target{DeviceName: "BT_HC6172", Timeout: 10 * time.Second}))
func WithTarget(target Target) Option {
	return func(c *Config) {
		c.Target = target
	}
}

// WithDeviceName sets the advertised name to look for.
func WithDeviceName(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.Target.DeviceName = name
		}
	}
}

// WithDiscoveryTimeout bounds the discovery phase.
func WithDiscoveryTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Target.Timeout = timeout
	}
}

// WithRetryPolicy sets the connect retry policy.
//
// Example:
//
//	client := bms.NewClient(tr, bms.WithRetryPolicy(bms.RetryPolicy{MaxAttempts: 5, Delay: time.Second}))
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Config) {
		c.Retry = policy
	}
}

// WithInactivityTimeout sets the silence after which a response is finalized.
func WithInactivityTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.InactivityTimeout = timeout
		}
	}
}

// WithDrainWindow sets the quiet period used to discard stale chunks.
func WithDrainWindow(window time.Duration) Option {
	return func(c *Config) {
		if window >= 0 {
			c.DrainWindow = window
		}
	}
}

// WithLogger sets a logger for protocol traces.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
