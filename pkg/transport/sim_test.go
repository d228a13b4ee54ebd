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

func newSimClient(t *testing.T, config SimConfig) *bms.Client {
	t.Helper()
	sim := NewSimulator(config, zerolog.Nop())
	client := bms.NewClient(sim,
		bms.WithDrainWindow(0),
		bms.WithInactivityTimeout(50*time.Millisecond),
	)
	t.Cleanup(func() { _ = client.Disconnect() })
	return client
}

func TestSimulator_HealthyFetch(t *testing.T) {
	config := DefaultSimConfig()
	config.ChunkDelay = time.Millisecond
	client := newSimClient(t, config)

	state, err := client.FetchState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.SOC.StateOfChargePct, state.StateOfChargePct)
	assert.Equal(t, config.SOC.ResidualCapacityCAh, state.ResidualCapacityCAh)
	assert.Equal(t, config.Voltages.CellVoltageMV, state.CellVoltageMV)
	assert.Equal(t, config.Voltages.BatteryVoltageCV, state.BatteryVoltageCV)
}

func TestSimulator_DefaultConfigFetch(t *testing.T) {
	config := DefaultSimConfig()
	sim := NewSimulator(config, zerolog.Nop())

	for _, req := range bms.Requests() {
		chunks, err := sim.Response(req.Command[:])
		require.NoError(t, err)
		for i := 1; i < len(chunks); i++ {
			assert.NotEqual(t, chunks[i-1], chunks[i], "%s chunks %d and %d repeat", req.Name, i-1, i)
		}
	}

	client := newSimClient(t, config)
	state, err := client.FetchState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.Voltages.CellVoltageMV, state.CellVoltageMV)
	assert.Zero(t, client.Stats().DuplicatesDropped)
}

func TestSimulator_DuplicatesAreHarmless(t *testing.T) {
	config := DefaultSimConfig()
	config.DuplicateRate = 1
	config.Seed = 7
	client := newSimClient(t, config)

	_, err := client.FetchState(context.Background())
	require.NoError(t, err)
	assert.Positive(t, client.Stats().DuplicatesDropped)
}

func TestSimulator_Corruption(t *testing.T) {
	config := DefaultSimConfig()
	config.CorruptRate = 1
	config.Seed = 7
	client := newSimClient(t, config)

	_, err := client.FetchState(context.Background())
	var protoErr *bms.ProtocolError
	require.True(t, errors.As(err, &protoErr), "got %v", err)
	assert.Equal(t, bms.ReasonChecksumMismatch, protoErr.Reason)
}

func TestSimulator_Truncation(t *testing.T) {
	config := DefaultSimConfig()
	config.TruncateRate = 1
	client := newSimClient(t, config)

	_, err := client.FetchState(context.Background())
	var timeoutErr *bms.AssemblyTimeoutError
	require.True(t, errors.As(err, &timeoutErr), "got %v", err)
}

func TestSimulator_ResponseChunking(t *testing.T) {
	config := DefaultSimConfig()
	config.ChunkSize = 16
	sim := NewSimulator(config, zerolog.Nop())

	chunks, err := sim.Response(bms.VoltagesRequest.Command[:])
	require.NoError(t, err)
	// 81-byte frame in 16-byte chunks, one boundary moved inside the sentinel run
	require.Len(t, chunks, 6)
	assert.Len(t, chunks[3], 15)
	assert.Len(t, chunks[5], 2)

	_, err = sim.Response([]byte{0x01, 0x03, 0x00})
	assert.Error(t, err)
}

func TestSimulator_WriteAfterClose(t *testing.T) {
	sim := NewSimulator(DefaultSimConfig(), zerolog.Nop())
	conn, err := sim.Connect(context.Background(), simDevice{})
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.ErrorIs(t, conn.WriteCommand(context.Background(), bms.SOCRequest.Command[:]), ErrSimulatorClosed)
	_, ok := <-conn.Notifications()
	assert.False(t, ok)
}
