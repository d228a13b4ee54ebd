// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

import "time"

// BatteryState is one telemetry snapshot. It is built once per successful
// fetch and must not be modified afterwards.
type BatteryState struct {
	// State of charge in %
	StateOfChargePct uint16 `json:"state_of_charge_pct" cbor:"1,keyasint"`
	// Residual capacity in Ah/100
	ResidualCapacityCAh uint16 `json:"residual_capacity_cah" cbor:"2,keyasint"`
	// Lifetime number of battery cycles
	CyclesCount uint16 `json:"cycles_count" cbor:"3,keyasint"`
	// Voltage of each populated cell in mV
	CellVoltageMV []uint16 `json:"cell_voltage_mv" cbor:"4,keyasint"`
	// Battery voltage in V/100
	BatteryVoltageCV uint16 `json:"battery_voltage_cv" cbor:"5,keyasint"`

	FetchedAt time.Time `json:"fetched_at" cbor:"6,keyasint"`
}

// NewBatteryState merges the two decoded records into a snapshot
func NewBatteryState(soc SOCRecord, volts VoltagesRecord, at time.Time) BatteryState {
	return BatteryState{
		StateOfChargePct:    soc.StateOfChargePct,
		ResidualCapacityCAh: soc.ResidualCapacityCAh,
		CyclesCount:         soc.CyclesCount,
		CellVoltageMV:       append([]uint16(nil), volts.CellVoltageMV...),
		BatteryVoltageCV:    volts.BatteryVoltageCV,
		FetchedAt:           at,
	}
}

// BatteryVoltage returns the pack voltage in volts
func (s BatteryState) BatteryVoltage() float64 {
	return float64(s.BatteryVoltageCV) / 100
}

// ResidualCapacityAh returns the residual capacity in Ah
func (s BatteryState) ResidualCapacityAh() float64 {
	return float64(s.ResidualCapacityCAh) / 100
}

// CellCount returns the number of populated cells
func (s BatteryState) CellCount() int {
	return len(s.CellVoltageMV)
}

// MinCellMV returns the lowest cell voltage, or 0 without cells
func (s BatteryState) MinCellMV() uint16 {
	if len(s.CellVoltageMV) == 0 {
		return 0
	}
	lo := s.CellVoltageMV[0]
	for _, v := range s.CellVoltageMV[1:] {
		if v < lo {
			lo = v
		}
	}
	return lo
}

// MaxCellMV returns the highest cell voltage, or 0 without cells
func (s BatteryState) MaxCellMV() uint16 {
	var hi uint16
	for _, v := range s.CellVoltageMV {
		if v > hi {
			hi = v
		}
	}
	return hi
}

// CellSpreadMV returns the difference between the highest and lowest cell
func (s BatteryState) CellSpreadMV() uint16 {
	return s.MaxCellMV() - s.MinCellMV()
}
