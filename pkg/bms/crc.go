// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

import "github.com/sigurn/crc16"

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Checksum computes the CRC-16/MODBUS checksum for the given data
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// checksumBytes returns the on-wire encoding of a checksum.
// The BMS sends the low byte first: 0x90BC is transmitted as BC 90.
func checksumBytes(crc uint16) [ChecksumSize]byte {
	return [ChecksumSize]byte{byte(crc), byte(crc >> 8)}
}
