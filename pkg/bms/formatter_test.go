// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatState(t *testing.T) {
	state := NewBatteryState(
		SOCRecord{StateOfChargePct: 87, ResidualCapacityCAh: 34812, CyclesCount: 42},
		VoltagesRecord{CellVoltageMV: []uint16{3454, 3452, 3435, 3449, 3451, 3454, 3452, 3455, 3440}, BatteryVoltageCV: 2759},
		testTime,
	)

	s := FormatState(state)
	assert.Contains(t, s, "[12:00:00.000]")
	assert.Contains(t, s, "SOC 87%")
	assert.Contains(t, s, "27.59 V")
	assert.Contains(t, s, "348.12 Ah")
	assert.Contains(t, s, "42 cycles")
	assert.Contains(t, s, "Cells: 9")
	assert.Contains(t, s, "spread=20 mV")
	assert.Contains(t, s, " 1:3.454V")
	assert.Contains(t, s, " 9:3.440V")

	// Eight cells per row
	assert.Equal(t, 4, strings.Count(s, "\n"))
}

func TestFormatState_NoCells(t *testing.T) {
	s := FormatState(BatteryState{StateOfChargePct: 5})
	assert.Contains(t, s, "(none reported)")
	assert.NotContains(t, s, "[")
}

func TestFormatHex(t *testing.T) {
	assert.Equal(t, "(empty)\n", FormatHex(nil))
	assert.Equal(t, "01 03 \n", FormatHex([]byte{0x01, 0x03}))

	data := make([]byte, 17)
	assert.Equal(t, 2, strings.Count(FormatHex(data), "\n"))
}

func TestFormatFrame(t *testing.T) {
	s := FormatFrame(mustHex(t, vectorComplete))
	assert.Contains(t, s, "Header:   01 03")
	assert.Contains(t, s, "Checksum: BC 90 (calculated BC 90)")
	assert.Contains(t, s, "Payload:")

	s = FormatFrame(mustHex(t, vectorBadCRC))
	assert.Contains(t, s, "checksum")
	assert.NotContains(t, s, "Payload:")

	s = FormatFrame([]byte{0x01})
	assert.NotContains(t, s, "Header:")
}

func TestFormatRecord(t *testing.T) {
	s, err := FormatRecord(SOCRequest, socPayload(87, 34812, 42))
	require.NoError(t, err)
	assert.Equal(t, "SOC: 87%  residual=348.12 Ah  cycles=42\n", s)

	s, err = FormatRecord(VoltagesRequest, voltagesPayload([]uint16{3454, 3452}, 2759))
	require.NoError(t, err)
	assert.Contains(t, s, "battery=27.59 V  cells=2")
	assert.Contains(t, s, "slot  1: 3452 mV")
	assert.NotContains(t, s, "slot  2:")

	_, err = FormatRecord(SOCRequest, []byte{0x01})
	require.Error(t, err)

	_, err = FormatRecord(Request{Name: "bogus"}, nil)
	require.Error(t, err)
}

func TestRequestByName(t *testing.T) {
	req, ok := RequestByName("soc")
	require.True(t, ok)
	assert.Equal(t, SOCRequest.Command, req.Command)

	req, ok = RequestByName("Voltages")
	require.True(t, ok)
	assert.Equal(t, VoltagesRequest.Command, req.Command)

	_, ok = RequestByName("cells")
	assert.False(t, ok)
}
