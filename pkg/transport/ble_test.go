// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/batteread/pkg/bms"
)

func TestMatchesTarget(t *testing.T) {
	tests := []struct {
		name    string
		advName string
		address string
		target  bms.Target
		want    bool
	}{
		{"name match", "BT_HC6172", "C0:D6:3C:58:A4:10", bms.Target{DeviceName: "BT_HC6172"}, true},
		{"name mismatch", "BT_HC0001", "C0:D6:3C:58:A4:10", bms.Target{DeviceName: "BT_HC6172"}, false},
		{"anonymous advertisement", "", "C0:D6:3C:58:A4:10", bms.Target{DeviceName: ""}, false},
		{"address wins", "other", "c0:d6:3c:58:a4:10", bms.Target{DeviceName: "BT_HC6172", Address: "C0:D6:3C:58:A4:10"}, true},
		{"address mismatch", "BT_HC6172", "C0:D6:3C:58:A4:11", bms.Target{DeviceName: "BT_HC6172", Address: "C0:D6:3C:58:A4:10"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesTarget(tt.advName, tt.address, tt.target); got != tt.want {
				t.Errorf("matchesTarget(%q, %q) = %v, want %v", tt.advName, tt.address, got, tt.want)
			}
		})
	}
}

func TestDefaultBLEConfig(t *testing.T) {
	c := DefaultBLEConfig()
	if c.WriteCharacteristic != bms.NordicUARTWriteCharacterID || c.NotifyCharacteristic != bms.NordicUARTNotifyCharacterID {
		t.Errorf("unexpected characteristics: %+v", c)
	}
}

func newTestBLE() *BLE {
	return &BLE{log: zerolog.Nop(), conns: make(map[string]*bleConn)}
}

func streamOpen(ch <-chan []byte) bool {
	select {
	case _, ok := <-ch:
		return ok
	default:
		return true
	}
}

func TestBLE_DisconnectEndsStream(t *testing.T) {
	const addr = "C0:D6:3C:58:A4:10"
	b := newTestBLE()
	conn := &bleConn{owner: b, address: addr, queue: newChunkQueue(4, zerolog.Nop())}
	b.register(addr, conn)

	b.connectionChanged(addr, true)
	b.connectionChanged("C0:D6:3C:58:A4:11", false)
	assert.True(t, streamOpen(conn.Notifications()), "unrelated events must not end the stream")

	b.connectionChanged(addr, false)
	assert.False(t, streamOpen(conn.Notifications()))
	assert.Empty(t, b.conns)

	// A repeated event after the link is gone is a no-op
	b.connectionChanged(addr, false)
}

func TestBLE_DisconnectSurfacesStreamClosed(t *testing.T) {
	const addr = "C0:D6:3C:58:A4:10"
	b := newTestBLE()
	conn := &bleConn{owner: b, address: addr, queue: newChunkQueue(4, zerolog.Nop())}
	b.register(addr, conn)

	conn.queue.push([]byte{0x01, 0x03, 0x4c})
	go func() {
		time.Sleep(10 * time.Millisecond)
		b.connectionChanged(addr, false)
	}()

	_, err := bms.Assemble(context.Background(), conn.Notifications(), time.Second)
	var closedErr *bms.StreamClosedError
	require.True(t, errors.As(err, &closedErr), "got %v", err)
	assert.Equal(t, []byte{0x01, 0x03, 0x4c}, closedErr.Raw)
}

func TestBLE_UnregisterKeepsNewerLink(t *testing.T) {
	const addr = "C0:D6:3C:58:A4:10"
	b := newTestBLE()
	old := &bleConn{owner: b, address: addr, queue: newChunkQueue(4, zerolog.Nop())}
	current := &bleConn{owner: b, address: addr, queue: newChunkQueue(4, zerolog.Nop())}
	b.register(addr, old)
	b.register(addr, current)

	b.unregister(addr, old)
	assert.Same(t, current, b.conns[addr])
}
