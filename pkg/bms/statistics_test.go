// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStatistics_RecordExchange(t *testing.T) {
	stats := NewStatistics()

	stats.RecordExchange(nil)
	stats.RecordExchange(nil)
	stats.RecordExchange(&ExchangeError{Request: "SOC", Err: &ProtocolError{Reason: ReasonChecksumMismatch}})
	stats.RecordExchange(&ProtocolError{Reason: ReasonUnexpectedHeader})
	stats.RecordExchange(&ProtocolError{Reason: ReasonTooLong})
	stats.RecordExchange(&AssemblyTimeoutError{Timeout: time.Second})
	stats.RecordExchange(&StreamClosedError{})
	stats.RecordExchange(&WriteError{Err: errors.New("att")})
	stats.RecordExchange(&DecodeError{Record: "SOC", Length: 4, Need: 40})
	stats.RecordExchange(errors.New("unclassified"))

	if stats.Exchanges != 10 {
		t.Errorf("Exchanges = %d, want 10", stats.Exchanges)
	}
	if stats.ValidResponses != 2 {
		t.Errorf("ValidResponses = %d, want 2", stats.ValidResponses)
	}
	counters := map[string]uint64{
		"ChecksumErrors": stats.ChecksumErrors,
		"HeaderErrors":   stats.HeaderErrors,
		"TooLongErrors":  stats.TooLongErrors,
		"Timeouts":       stats.Timeouts,
		"StreamClosures": stats.StreamClosures,
		"WriteErrors":    stats.WriteErrors,
		"DecodeErrors":   stats.DecodeErrors,
	}
	for name, got := range counters {
		if got != 1 {
			t.Errorf("%s = %d, want 1", name, got)
		}
	}
	if stats.Errors() != 8 {
		t.Errorf("Errors() = %d, want 8", stats.Errors())
	}
}

func TestStatistics_RecordFetch(t *testing.T) {
	stats := NewStatistics()
	stats.RecordFetch(nil)
	stats.RecordFetch(errors.New("failed"))
	stats.RecordFetch(nil)

	if stats.Fetches != 3 || stats.FetchFailures != 1 {
		t.Errorf("Fetches = %d, FetchFailures = %d, want 3 and 1", stats.Fetches, stats.FetchFailures)
	}
}

func TestStatistics_String(t *testing.T) {
	stats := NewStatistics()
	stats.RecordExchange(nil)
	stats.RecordExchange(&ProtocolError{Reason: ReasonChecksumMismatch})
	stats.DuplicatesDropped = 3

	s := stats.String()
	for _, want := range []string{"=== Statistics", "Valid Responses:", "(50.0%)", "Checksum Errors:", "Duplicates:", "Connects:"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, "Timeouts:") {
		t.Errorf("summary shows zero counter:\n%s", s)
	}
}

func TestStatistics_Reset(t *testing.T) {
	stats := NewStatistics()
	stats.RecordExchange(nil)
	stats.Connects = 4
	stats.Reset()

	if stats.Exchanges != 0 || stats.Connects != 0 {
		t.Errorf("Reset left counters: %+v", stats)
	}
	if stats.StartTime.IsZero() {
		t.Error("Reset cleared StartTime")
	}
}
