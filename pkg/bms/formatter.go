// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

import (
	"fmt"
	"strings"
)

// FormatState formats a battery snapshot into a human-readable string
func FormatState(s BatteryState) string {
	var b strings.Builder

	if !s.FetchedAt.IsZero() {
		fmt.Fprintf(&b, "[%s] ", s.FetchedAt.Format("15:04:05.000"))
	}
	fmt.Fprintf(&b, "SOC %d%%  %.2f V  %.2f Ah  %d cycles\n",
		s.StateOfChargePct, s.BatteryVoltage(), s.ResidualCapacityAh(), s.CyclesCount)

	if len(s.CellVoltageMV) == 0 {
		b.WriteString("  Cells: (none reported)\n")
		return b.String()
	}

	fmt.Fprintf(&b, "  Cells: %d  min=%d mV  max=%d mV  spread=%d mV\n",
		s.CellCount(), s.MinCellMV(), s.MaxCellMV(), s.CellSpreadMV())
	for i, v := range s.CellVoltageMV {
		if i%8 == 0 {
			b.WriteString("   ")
		}
		fmt.Fprintf(&b, " %2d:%5.3fV", i+1, float64(v)/1000)
		if i%8 == 7 || i == len(s.CellVoltageMV)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// FormatHex formats bytes as a hex dump, 16 bytes per line
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return "(empty)\n"
	}
	var b strings.Builder
	for i, v := range data {
		if i > 0 && i%16 == 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%02X ", v)
	}
	b.WriteString("\n")
	return b.String()
}

// FormatFrame describes a raw buffer: its framing fields and parse outcome
func FormatFrame(buf []byte) string {
	out := Parse(buf)

	var b strings.Builder
	fmt.Fprintf(&b, "Frame: %d bytes, %s\n", len(buf), out)
	if len(buf) >= HeaderSize+LengthSize {
		fmt.Fprintf(&b, "  Header:   %02X %02X\n", buf[0], buf[1])
		fmt.Fprintf(&b, "  Length:   %d (frame %d bytes)\n", buf[2], int(buf[2])+FrameOverhead)
	}
	if len(buf) >= FrameOverhead {
		body := buf[:len(buf)-ChecksumSize]
		want := checksumBytes(Checksum(body))
		fmt.Fprintf(&b, "  Checksum: %02X %02X (calculated %02X %02X)\n",
			buf[len(buf)-2], buf[len(buf)-1], want[0], want[1])
	}
	if out.Complete() {
		b.WriteString("  Payload:\n")
		for _, line := range strings.Split(strings.TrimRight(FormatHex(out.Payload), "\n"), "\n") {
			b.WriteString("    " + line + "\n")
		}
	}
	return b.String()
}

// FormatRecord formats a decoded payload for the given request
func FormatRecord(req Request, payload []byte) (string, error) {
	switch req.Name {
	case SOCRequest.Name:
		rec, err := DecodeSOC(payload)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("SOC: %d%%  residual=%.2f Ah  cycles=%d\n",
			rec.StateOfChargePct, float64(rec.ResidualCapacityCAh)/100, rec.CyclesCount), nil

	case VoltagesRequest.Name:
		rec, err := DecodeVoltages(payload)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Voltages: battery=%.2f V  cells=%d\n", float64(rec.BatteryVoltageCV)/100, len(rec.CellVoltageMV))
		for _, slot := range rec.Slots {
			if slot.Populated {
				fmt.Fprintf(&b, "  slot %2d: %d mV\n", slot.Index, slot.VoltageMV)
			}
		}
		return b.String(), nil

	default:
		return "", fmt.Errorf("unknown request %q", req.Name)
	}
}

// RequestByName looks up one of the fixed requests by name (case-insensitive)
func RequestByName(name string) (Request, bool) {
	for _, req := range Requests() {
		if strings.EqualFold(req.Name, name) {
			return req, true
		}
	}
	return Request{}, false
}
