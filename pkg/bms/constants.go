// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bms implements the request/response protocol spoken by LiFePO4 battery
// management units that expose a Nordic UART service over Bluetooth Low Energy.
//
// The protocol is undocumented. Every response is framed as
//
//	[2 bytes header 01 03] [1 byte payload length P] [P bytes payload] [2 bytes CRC16/MODBUS]
//
// and may arrive split over several notifications, with duplicates and truncation
// observed in practice. This package provides frame parsing, response assembly,
// payload decoding and a client that sequences the two known requests.
package bms

import "time"

// Frame layout
const (
	HeaderSize     = 2
	LengthSize     = 1
	ChecksumSize   = 2
	FrameOverhead  = HeaderSize + LengthSize + ChecksumSize
	MaxPayloadSize = 255
	MaxFrameSize   = MaxPayloadSize + FrameOverhead
)

// Header is the constant two-byte prefix of every response.
var Header = [HeaderSize]byte{0x01, 0x03}

// Cell voltage layout of the voltages response
const (
	CellSlots     = 32
	CellVoltageNA = 61001 // slot not populated
)

// Word indices of the SOC response. Pinned against one observed firmware;
// an earlier payload revision placed these at different offsets.
const (
	socWordStateOfCharge    = 14
	socWordResidualCapacity = 16
	socWordCycles           = 19
)

// Word indices of the voltages response
const (
	voltagesWordBattery = 37
)

// Timing defaults
const (
	DefaultInactivityTimeout = 5 * time.Second
	DefaultDrainWindow       = 500 * time.Millisecond
	DefaultDiscoveryTimeout  = 30 * time.Second
	DefaultConnectAttempts   = 3
)

// Nordic UART service identifiers used by the BMS
const (
	DefaultDeviceName           = "BT_HC6172"
	NordicUARTServiceID         = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	NordicUARTWriteCharacterID  = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	NordicUARTNotifyCharacterID = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)
