// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides bms.Transport implementations: BLE with the
// Nordic UART service, serial and WebSocket bridges, and a simulator.
package transport

import (
	"encoding/hex"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultQueueDepth is the number of chunks buffered between the link and
// the client before new chunks are dropped.
const DefaultQueueDepth = 64

// chunkQueue hands received chunks to the client. Push never blocks: the
// BLE stack calls it from its own event loop.
type chunkQueue struct {
	mu      sync.Mutex
	ch      chan []byte
	closed  bool
	dropped int
	log     zerolog.Logger
}

func newChunkQueue(depth int, log zerolog.Logger) *chunkQueue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &chunkQueue{ch: make(chan []byte, depth), log: log}
}

// push copies data into the queue. It reports false when the chunk was
// dropped because the queue is full or closed.
func (q *chunkQueue) push(data []byte) bool {
	chunk := append([]byte(nil), data...)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.log.Debug().Str("rx", hex.EncodeToString(chunk)).Msg("RX")
	select {
	case q.ch <- chunk:
		return true
	default:
		q.dropped++
		q.log.Warn().Int("dropped", q.dropped).Msg("notification queue full, chunk dropped")
		return false
	}
}

// close ends the stream. Safe to call more than once.
func (q *chunkQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

func (q *chunkQueue) chunks() <-chan []byte { return q.ch }

// Dropped returns the number of chunks lost to a full queue
func (q *chunkQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
