// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Client reads battery state over a Transport.
//
// Responses carry no correlation id, so the client never has more than one
// request outstanding. Calls from several goroutines are serialized.
type Client struct {
	transport Transport
	config    Config
	log       zerolog.Logger

	mu     sync.Mutex
	device Device
	conn   Conn

	statsMu sync.Mutex
	stats   *Statistics
}

// NewClient creates a new Client over the given transport.
//
// Example:
//
//	client := bms.NewClient(transport.NewBLE(log),
//	    bms.WithDeviceName("BT_HC6172"),
//	    bms.WithInactivityTimeout(5*time.Second),
//	)
func NewClient(transport Transport, opts ...Option) *Client {
	if transport == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{
		transport: transport,
		config:    cfg,
		log:       cfg.Logger.With().Str("component", "client").Logger(),
		stats:     NewStatistics(),
	}
}

// Config returns the effective configuration
func (c *Client) Config() Config {
	return c.config
}

// Connect discovers the device if needed and opens a connection.
// It is a no-op when a connection is already open.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	if c.device == nil {
		dev, err := c.discover(ctx)
		if err != nil {
			return &DiscoveryError{DeviceName: c.targetLabel(), Err: err}
		}
		c.device = dev
		c.log.Info().Str("name", dev.Name()).Str("address", dev.Address()).Msg("device found")
	}

	var lastErr error
	attempts := c.config.Retry.Attempts()
	attempt := 0
	for attempt < attempts {
		if err := sleepContext(ctx, c.config.Retry.Backoff(attempt+1)); err != nil {
			lastErr = err
			break
		}

		attempt++
		c.withStats(func(s *Statistics) { s.ConnectAttempts++ })
		conn, err := c.transport.Connect(ctx, c.device)
		if err == nil {
			c.conn = conn
			c.withStats(func(s *Statistics) { s.Connects++ })
			c.log.Info().Int("attempt", attempt).Msg("connected")
			return nil
		}

		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", attempts).Msg("connect failed")
		if ctx.Err() != nil {
			break
		}
	}

	// Forget the handle so the next Connect rediscovers the device
	c.device = nil
	return &ConnectError{Attempts: attempt, Err: lastErr}
}

func (c *Client) discover(ctx context.Context) (Device, error) {
	if c.config.Target.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Target.Timeout)
		defer cancel()
	}
	c.log.Info().Str("target", c.targetLabel()).Dur("timeout", c.config.Target.Timeout).Msg("discovering device")
	return c.transport.Discover(ctx, c.config.Target)
}

func (c *Client) targetLabel() string {
	if c.config.Target.Address != "" {
		return c.config.Target.Address
	}
	return c.config.Target.DeviceName
}

// Connected reports whether a connection is open
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Disconnect releases the connection
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.log.Info().Msg("disconnected")
	return err
}

// FetchState performs the SOC and voltages exchanges and merges them into
// one snapshot. Any failure aborts the call; partial telemetry is never returned.
func (c *Client) FetchState(ctx context.Context) (BatteryState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.fetchLocked(ctx)
	c.withStats(func(s *Statistics) { s.RecordFetch(err) })
	return state, err
}

func (c *Client) fetchLocked(ctx context.Context) (BatteryState, error) {
	if err := c.connectLocked(ctx); err != nil {
		return BatteryState{}, err
	}

	var partial partialState
	for _, req := range Requests() {
		if err := c.exchange(ctx, req, &partial); err != nil {
			var closed *StreamClosedError
			if errors.As(err, &closed) {
				c.dropConnLocked()
			}
			return BatteryState{}, &ExchangeError{Request: req.Name, Err: err}
		}
	}

	return NewBatteryState(partial.soc, partial.volts, time.Now()), nil
}

// Exchange performs one request and returns its validated response payload
func (c *Client) Exchange(ctx context.Context, req Request) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	var scratch partialState
	payload, err := c.roundTrip(ctx, req)
	if err == nil && req.apply != nil {
		err = req.apply(payload, &scratch)
	}
	c.withStats(func(s *Statistics) { s.RecordExchange(err) })
	if err != nil {
		var closed *StreamClosedError
		if errors.As(err, &closed) {
			c.dropConnLocked()
		}
		return nil, &ExchangeError{Request: req.Name, Err: err}
	}
	return payload, nil
}

func (c *Client) exchange(ctx context.Context, req Request, p *partialState) error {
	payload, err := c.roundTrip(ctx, req)
	if err == nil {
		err = req.apply(payload, p)
	}
	c.withStats(func(s *Statistics) { s.RecordExchange(err) })
	return err
}

// roundTrip drains stale chunks, writes the command and assembles the response
func (c *Client) roundTrip(ctx context.Context, req Request) ([]byte, error) {
	notifications := c.conn.Notifications()

	if err := c.drain(ctx, notifications); err != nil {
		return nil, err
	}
	if err := c.write(ctx, req); err != nil {
		return nil, err
	}

	asm := NewAssembler(c.log)
	payload, err := asm.Run(ctx, notifications, c.config.InactivityTimeout)
	c.withStats(func(s *Statistics) { s.DuplicatesDropped += uint64(asm.Duplicates()) })
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("request", req.Name).Str("payload", hex.EncodeToString(payload)).Msg("response complete")
	return payload, nil
}

func (c *Client) write(ctx context.Context, req Request) error {
	command := req.Command[:]
	c.log.Debug().Str("request", req.Name).Str("tx", hex.EncodeToString(command)).Msg("TX")

	err := c.conn.WriteCommand(ctx, command)
	if err == nil {
		return nil
	}
	var writeErr *WriteError
	if errors.As(err, &writeErr) {
		return err
	}
	return &WriteError{Command: append([]byte(nil), command...), Err: err}
}

// drain discards chunks left over from a previous exchange until the link
// has been quiet for the drain window.
func (c *Client) drain(ctx context.Context, notifications <-chan []byte) error {
	discarded := 0
	defer func() {
		if discarded > 0 {
			c.withStats(func(s *Statistics) { s.StaleDiscarded += uint64(discarded) })
		}
	}()

	// Without a window only the already queued chunks are discarded
	var quiet <-chan time.Time
	var timer *time.Timer
	if c.config.DrainWindow > 0 {
		timer = time.NewTimer(c.config.DrainWindow)
		defer timer.Stop()
		quiet = timer.C
	}

	for {
		if timer == nil {
			select {
			case chunk, ok := <-notifications:
				if !ok {
					return &StreamClosedError{}
				}
				discarded++
				c.log.Debug().Str("chunk", hex.EncodeToString(chunk)).Msg("DISCARD stale notification")
				continue
			default:
				return nil
			}
		}

		select {
		case chunk, ok := <-notifications:
			if !ok {
				return &StreamClosedError{}
			}
			discarded++
			c.log.Debug().Str("chunk", hex.EncodeToString(chunk)).Msg("DISCARD stale notification")
			timer.Reset(c.config.DrainWindow)
		case <-quiet:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) dropConnLocked() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.log.Debug().Err(err).Msg("close after stream end")
	}
	c.conn = nil
	c.log.Warn().Msg("notification stream closed, connection dropped")
}

// Stats returns a snapshot of the session statistics
func (c *Client) Stats() Statistics {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.CalculateRates()
	return *c.stats
}

// ResetStats clears the session statistics
func (c *Client) ResetStats() {
	c.withStats(func(s *Statistics) { s.Reset() })
}

func (c *Client) withStats(fn func(s *Statistics)) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	fn(c.stats)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
