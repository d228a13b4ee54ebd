// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/batteread/pkg/bms"
)

// ErrSimulatorClosed is returned when writing to a closed simulated link
var ErrSimulatorClosed = errors.New("simulated link closed")

// SimConfig controls how the simulated BMS answers
type SimConfig struct {
	// ChunkSize splits responses the way a BLE MTU does (default 20)
	ChunkSize int
	// ChunkDelay separates consecutive chunks
	ChunkDelay time.Duration

	// DuplicateRate is the probability that a chunk is delivered twice
	DuplicateRate float64
	// CorruptRate is the probability that a response has a flipped byte
	CorruptRate float64
	// TruncateRate is the probability that a response loses its tail
	TruncateRate float64

	// Seed makes fault injection repeatable (0 picks a time-based seed)
	Seed int64

	// SOC and Voltages are the records the simulated battery reports
	SOC      bms.SOCRecord
	Voltages bms.VoltagesRecord
}

// DefaultSimConfig returns a healthy 8-cell pack
func DefaultSimConfig() SimConfig {
	return SimConfig{
		ChunkSize: 20,
		SOC: bms.SOCRecord{
			StateOfChargePct:    87,
			ResidualCapacityCAh: 34812,
			CyclesCount:         42,
		},
		Voltages: bms.VoltagesRecord{
			CellVoltageMV:    []uint16{3454, 3452, 3435, 3449, 3451, 3454, 3452, 3455},
			BatteryVoltageCV: 2759,
		},
	}
}

// Simulator is an in-process BMS answering the fixed requests
type Simulator struct {
	config SimConfig
	log    zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator creates a simulated transport
func NewSimulator(config SimConfig, log zerolog.Logger) *Simulator {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 20
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		config: config,
		log:    log.With().Str("component", "sim").Logger(),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

type simDevice struct{ name string }

func (d simDevice) Name() string    { return d.name }
func (d simDevice) Address() string { return "sim" }

// Discover always finds the simulated device
func (s *Simulator) Discover(ctx context.Context, target bms.Target) (bms.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return simDevice{name: target.DeviceName}, nil
}

// Connect opens a simulated link
func (s *Simulator) Connect(ctx context.Context, dev bms.Device) (bms.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &simConn{
		sim:   s,
		queue: newChunkQueue(DefaultQueueDepth, s.log),
		done:  make(chan struct{}),
	}
	return c, nil
}

// Response returns the chunks the simulator sends for cmd, with faults applied
func (s *Simulator) Response(cmd []byte) ([][]byte, error) {
	frame, err := s.frameFor(cmd)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(frame) > bms.FrameOverhead && s.chance(s.config.CorruptRate) {
		i := bms.HeaderSize + bms.LengthSize + s.rng.Intn(len(frame)-bms.FrameOverhead)
		frame[i] ^= 0xFF
		s.log.Debug().Int("offset", i).Msg("corrupting response")
	}
	if s.chance(s.config.TruncateRate) {
		frame = frame[:len(frame)/2]
		s.log.Debug().Int("length", len(frame)).Msg("truncating response")
	}

	var chunks [][]byte
	for _, chunk := range bms.SplitChunks(frame, s.config.ChunkSize) {
		chunks = append(chunks, chunk)
		if s.chance(s.config.DuplicateRate) {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

func (s *Simulator) frameFor(cmd []byte) ([]byte, error) {
	switch {
	case bytes.Equal(cmd, bms.SOCRequest.Command[:]):
		return bms.EncodeFrame(bms.EncodeSOC(s.config.SOC))
	case bytes.Equal(cmd, bms.VoltagesRequest.Command[:]):
		payload, err := bms.EncodeVoltages(s.config.Voltages)
		if err != nil {
			return nil, err
		}
		return bms.EncodeFrame(payload)
	default:
		return nil, fmt.Errorf("unknown command %x", cmd)
	}
}

func (s *Simulator) chance(p float64) bool {
	return p > 0 && s.rng.Float64() < p
}

type simConn struct {
	sim   *Simulator
	queue *chunkQueue

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

func (c *simConn) WriteCommand(ctx context.Context, cmd []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSimulatorClosed
	}

	chunks, err := c.sim.Response(cmd)
	if err != nil {
		// The device ignores commands it does not understand
		c.sim.log.Warn().Err(err).Msg("command ignored")
		return nil
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for i, chunk := range chunks {
			if i > 0 && c.sim.config.ChunkDelay > 0 {
				select {
				case <-time.After(c.sim.config.ChunkDelay):
				case <-c.done:
					return
				}
			}
			c.queue.push(chunk)
		}
	}()
	return nil
}

func (c *simConn) Notifications() <-chan []byte { return c.queue.chunks() }

func (c *simConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()
	c.queue.close()
	return nil
}
