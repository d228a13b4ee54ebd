// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

import "encoding/binary"

// Words reinterprets a payload as big-endian unsigned 16-bit words
func Words(payload []byte) ([]uint16, error) {
	if len(payload)%2 != 0 {
		return nil, &DecodeError{Record: "word", Length: len(payload)}
	}
	words := make([]uint16, len(payload)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(payload[i*2:])
	}
	return words, nil
}

func recordWords(record string, payload []byte, need int) ([]uint16, error) {
	if len(payload)%2 != 0 {
		return nil, &DecodeError{Record: record, Length: len(payload), Need: need * 2}
	}
	if len(payload) < need*2 {
		return nil, &DecodeError{Record: record, Length: len(payload), Need: need * 2}
	}
	return Words(payload)
}

// SOCRecord holds the fields decoded from the state-of-charge response
type SOCRecord struct {
	StateOfChargePct    uint16
	ResidualCapacityCAh uint16
	CyclesCount         uint16
}

// DecodeSOC decodes the state-of-charge response payload
func DecodeSOC(payload []byte) (SOCRecord, error) {
	words, err := recordWords("SOC", payload, socWordCycles+1)
	if err != nil {
		return SOCRecord{}, err
	}
	return SOCRecord{
		StateOfChargePct:    words[socWordStateOfCharge],
		ResidualCapacityCAh: words[socWordResidualCapacity],
		CyclesCount:         words[socWordCycles],
	}, nil
}

// CellSlot is one of the fixed cell positions of the voltages response
type CellSlot struct {
	Index     int
	VoltageMV uint16
	Populated bool
}

// VoltagesRecord holds the fields decoded from the voltages response
type VoltagesRecord struct {
	// CellVoltageMV lists populated cells only; slots reporting
	// CellVoltageNA are dropped, so positions are not preserved.
	CellVoltageMV    []uint16
	BatteryVoltageCV uint16

	// Slots keeps every cell position, populated or not
	Slots []CellSlot
}

// DecodeVoltages decodes the voltages response payload
func DecodeVoltages(payload []byte) (VoltagesRecord, error) {
	words, err := recordWords("voltages", payload, voltagesWordBattery+1)
	if err != nil {
		return VoltagesRecord{}, err
	}

	rec := VoltagesRecord{
		CellVoltageMV:    make([]uint16, 0, CellSlots),
		BatteryVoltageCV: words[voltagesWordBattery],
		Slots:            make([]CellSlot, CellSlots),
	}
	for i, v := range words[:CellSlots] {
		populated := v != CellVoltageNA
		rec.Slots[i] = CellSlot{Index: i, VoltageMV: v, Populated: populated}
		if populated {
			rec.CellVoltageMV = append(rec.CellVoltageMV, v)
		}
	}
	return rec, nil
}
