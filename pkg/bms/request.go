// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

// Request is one of the fixed commands understood by the BMS together with
// the decoder that consumes its response.
//
// The command bytes were captured verbatim from the vendor app; their
// structure beyond the two-byte prefix and trailing CRC is not known.
type Request struct {
	Name    string
	Command [8]byte

	apply func(payload []byte, p *partialState) error
}

// partialState collects decoded records while a fetch is in progress
type partialState struct {
	soc   SOCRecord
	volts VoltagesRecord
}

var (
	// SOCRequest reads state of charge, residual capacity and cycle count
	SOCRequest = Request{
		Name:    "SOC",
		Command: [8]byte{0x01, 0x03, 0xd0, 0x26, 0x00, 0x19, 0x5d, 0x0b},
		apply: func(payload []byte, p *partialState) (err error) {
			p.soc, err = DecodeSOC(payload)
			return err
		},
	}

	// VoltagesRequest reads cell and pack voltages
	VoltagesRequest = Request{
		Name:    "voltages",
		Command: [8]byte{0x01, 0x03, 0xd0, 0x00, 0x00, 0x26, 0xfc, 0xd0},
		apply: func(payload []byte, p *partialState) (err error) {
			p.volts, err = DecodeVoltages(payload)
			return err
		},
	}
)

// Requests returns the exchanges of one fetch in the order they are sent
func Requests() []Request {
	return []Request{SOCRequest, VoltagesRequest}
}
