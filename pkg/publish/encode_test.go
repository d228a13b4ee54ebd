// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/batteread/pkg/bms"
)

func sampleState() bms.BatteryState {
	return bms.NewBatteryState(
		bms.SOCRecord{StateOfChargePct: 87, ResidualCapacityCAh: 34812, CyclesCount: 42},
		bms.VoltagesRecord{CellVoltageMV: []uint16{3454, 3452, 3435, 3449}, BatteryVoltageCV: 1379},
		time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"cbor", FormatCBOR, false},
		{"xml", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_JSONFieldNames(t *testing.T) {
	data, err := Encode(sampleState(), FormatJSON)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, float64(87), fields["state_of_charge_pct"])
	assert.Equal(t, float64(1379), fields["battery_voltage_cv"])
	assert.Len(t, fields["cell_voltage_mv"], 4)
	assert.Equal(t, "2025-06-01T12:00:00Z", fields["fetched_at"])
}

func TestEncode_CBORDecodes(t *testing.T) {
	want := sampleState()
	data, err := Encode(want, FormatCBOR)
	require.NoError(t, err)

	got, err := Decode(data, FormatCBOR)
	require.NoError(t, err)
	assert.Equal(t, want.StateOfChargePct, got.StateOfChargePct)
	assert.Equal(t, want.CellVoltageMV, got.CellVoltageMV)
	assert.Equal(t, want.BatteryVoltageCV, got.BatteryVoltageCV)
	assert.True(t, want.FetchedAt.Equal(got.FetchedAt), "fetched_at %v != %v", got.FetchedAt, want.FetchedAt)
}

func TestEncode_Text(t *testing.T) {
	data, err := Encode(sampleState(), FormatText)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SOC 87%")
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte("{"), FormatJSON)
	assert.Error(t, err)
	_, err = Decode(nil, FormatText)
	assert.Error(t, err)
}
