// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/Thermoquad/batteread/pkg/bms"
)

// link is a byte stream whose reads arrive as discrete chunks
type link interface {
	// ReadChunk blocks until the next chunk arrives
	ReadChunk() ([]byte, error)
	Write(p []byte) (int, error)
	Close() error
}

// streamDevice names the endpoint of a bridge; there is nothing to scan for
type streamDevice struct {
	name    string
	address string
}

func (d streamDevice) Name() string    { return d.name }
func (d streamDevice) Address() string { return d.address }

// streamConn adapts a link to bms.Conn with a reader goroutine
type streamConn struct {
	link  link
	queue *chunkQueue
	log   zerolog.Logger
	done  chan struct{}
}

func newStreamConn(l link, depth int, log zerolog.Logger) *streamConn {
	c := &streamConn{
		link:  l,
		queue: newChunkQueue(depth, log),
		log:   log,
		done:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *streamConn) readLoop() {
	defer close(c.done)
	defer c.queue.close()
	for {
		chunk, err := c.link.ReadChunk()
		if err != nil {
			c.log.Debug().Err(err).Msg("read loop ended")
			return
		}
		if len(chunk) > 0 {
			c.queue.push(chunk)
		}
	}
}

func (c *streamConn) WriteCommand(ctx context.Context, cmd []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.log.Debug().Hex("tx", cmd).Msg("TX")
	n, err := c.link.Write(cmd)
	if err != nil {
		return &bms.WriteError{Command: append([]byte(nil), cmd...), Written: n, Err: err}
	}
	if n != len(cmd) {
		return &bms.WriteError{Command: append([]byte(nil), cmd...), Written: n}
	}
	return nil
}

func (c *streamConn) Notifications() <-chan []byte { return c.queue.chunks() }

func (c *streamConn) Close() error {
	err := c.link.Close()
	<-c.done
	return err
}

// SerialConfig configures a serial bridge, for example an RFCOMM device
// or a UART-to-BLE dongle.
type SerialConfig struct {
	Port       string
	BaudRate   int
	QueueDepth int
}

// Serial reaches the BMS through a serial port
type Serial struct {
	config SerialConfig
	log    zerolog.Logger
}

// NewSerial creates a serial bridge transport
func NewSerial(config SerialConfig, log zerolog.Logger) *Serial {
	if config.BaudRate == 0 {
		config.BaudRate = 9600
	}
	return &Serial{config: config, log: log.With().Str("component", "stream").Str("port", config.Port).Logger()}
}

// Discover checks that the port exists
func (s *Serial) Discover(ctx context.Context, target bms.Target) (bms.Device, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	for _, p := range ports {
		if p == s.config.Port {
			return streamDevice{name: target.DeviceName, address: s.config.Port}, nil
		}
	}
	return nil, fmt.Errorf("%w: serial port %s", bms.ErrDeviceNotFound, s.config.Port)
}

// Connect opens the port
func (s *Serial) Connect(ctx context.Context, dev bms.Device) (bms.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: s.config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(s.config.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", s.config.Port, err)
	}
	s.log.Info().Int("baud", s.config.BaudRate).Msg("serial port open")
	return newStreamConn(&serialLink{port: port}, s.config.QueueDepth, s.log), nil
}

type serialLink struct {
	port serial.Port
	buf  [bms.MaxFrameSize]byte
}

func (l *serialLink) ReadChunk() ([]byte, error) {
	for {
		n, err := l.port.Read(l.buf[:])
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return append([]byte(nil), l.buf[:n]...), nil
		}
	}
}

func (l *serialLink) Write(p []byte) (int, error) { return l.port.Write(p) }
func (l *serialLink) Close() error                { return l.port.Close() }

// WebSocketConfig configures a WebSocket bridge
type WebSocketConfig struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
	QueueDepth    int
}

// WebSocket reaches the BMS through a WebSocket bridge that relays binary
// messages to and from the serial link.
type WebSocket struct {
	config WebSocketConfig
	log    zerolog.Logger
}

// NewWebSocket creates a WebSocket bridge transport
func NewWebSocket(config WebSocketConfig, log zerolog.Logger) *WebSocket {
	return &WebSocket{config: config, log: log.With().Str("component", "stream").Str("url", config.URL).Logger()}
}

// Discover validates the URL
func (w *WebSocket) Discover(ctx context.Context, target bms.Target) (bms.Device, error) {
	u, err := url.Parse(w.config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}
	return streamDevice{name: target.DeviceName, address: u.Host}, nil
}

// Connect dials the bridge with HTTP Basic auth
func (w *WebSocket) Connect(ctx context.Context, dev bms.Device) (bms.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if w.config.SkipSSLVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	headers := http.Header{}
	if w.config.Username != "" && w.config.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(w.config.Username + ":" + w.config.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, w.config.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	w.log.Info().Msg("websocket connected")
	return newStreamConn(&wsLink{conn: conn}, w.config.QueueDepth, w.log), nil
}

// errClosedByPeer ends the read loop on a normal close frame
var errClosedByPeer = errors.New("websocket closed by peer")

type wsLink struct {
	conn *websocket.Conn
}

func (l *wsLink) ReadChunk() ([]byte, error) {
	for {
		messageType, data, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, errClosedByPeer
			}
			return nil, err
		}
		// Text frames carry bridge status, not serial data
		if messageType != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

func (l *wsLink) Write(p []byte) (int, error) {
	if err := l.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (l *wsLink) Close() error { return l.conn.Close() }
