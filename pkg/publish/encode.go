// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package publish encodes battery snapshots and ships them to consumers.
package publish

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/batteread/pkg/bms"
)

// Format selects a snapshot encoding
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatCBOR
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatJSON:
		return "json"
	case FormatCBOR:
		return "cbor"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat parses a format name (case-insensitive)
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "cbor":
		return FormatCBOR, nil
	default:
		return 0, fmt.Errorf("unknown format %q (use text, json or cbor)", name)
	}
}

// Encode renders a snapshot in the given format
func Encode(state bms.BatteryState, format Format) ([]byte, error) {
	switch format {
	case FormatText:
		return []byte(bms.FormatState(state)), nil
	case FormatJSON:
		data, err := json.Marshal(state)
		if err != nil {
			return nil, fmt.Errorf("failed to encode JSON: %w", err)
		}
		return data, nil
	case FormatCBOR:
		data, err := cbor.Marshal(state)
		if err != nil {
			return nil, fmt.Errorf("failed to encode CBOR: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported format %s", format)
	}
}

// Decode parses a JSON or CBOR snapshot
func Decode(data []byte, format Format) (bms.BatteryState, error) {
	var state bms.BatteryState
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &state)
	case FormatCBOR:
		err = cbor.Unmarshal(data, &state)
	default:
		return state, fmt.Errorf("cannot decode %s snapshots", format)
	}
	if err != nil {
		return bms.BatteryState{}, fmt.Errorf("failed to decode %s: %w", format, err)
	}
	return state, nil
}
