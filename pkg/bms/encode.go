// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

import (
	"encoding/binary"
	"fmt"
)

// socRecordWords is the word count of a SOC response as sent by the device
const socRecordWords = 25

// EncodeSOC builds a SOC payload in the device layout. Words the decoder
// does not interpret are left zero.
func EncodeSOC(rec SOCRecord) []byte {
	words := make([]uint16, socRecordWords)
	words[socWordStateOfCharge] = rec.StateOfChargePct
	words[socWordResidualCapacity] = rec.ResidualCapacityCAh
	words[socWordCycles] = rec.CyclesCount
	return putWords(words)
}

// EncodeVoltages builds a voltages payload in the device layout. Cells fill
// the leading slots and the remaining slots carry CellVoltageNA.
func EncodeVoltages(rec VoltagesRecord) ([]byte, error) {
	if len(rec.CellVoltageMV) > CellSlots {
		return nil, fmt.Errorf("%d cells exceed %d slots", len(rec.CellVoltageMV), CellSlots)
	}
	words := make([]uint16, voltagesWordBattery+1)
	for i := 0; i < CellSlots; i++ {
		words[i] = CellVoltageNA
		if i < len(rec.CellVoltageMV) {
			words[i] = rec.CellVoltageMV[i]
		}
	}
	words[voltagesWordBattery] = rec.BatteryVoltageCV
	return putWords(words), nil
}

func putWords(words []uint16) []byte {
	b := make([]byte, len(words)*2)
	for i, w := range words {
		binary.BigEndian.PutUint16(b[i*2:], w)
	}
	return b
}
