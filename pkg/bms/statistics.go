// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks exchange outcomes and transport anomalies for a session
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Fetch counters
	Fetches       uint64
	FetchFailures uint64

	// Exchange counters
	Exchanges      uint64
	ValidResponses uint64
	ChecksumErrors uint64
	HeaderErrors   uint64
	TooLongErrors  uint64
	DecodeErrors   uint64
	Timeouts       uint64
	StreamClosures uint64
	WriteErrors    uint64

	// Transport anomalies
	DuplicatesDropped uint64
	StaleDiscarded    uint64

	// Link
	ConnectAttempts uint64
	Connects        uint64

	// Rates (calculated)
	ExchangeRate float64 // exchanges/sec
	ErrorRate    float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// RecordExchange classifies the result of one request/response exchange
func (s *Statistics) RecordExchange(err error) {
	s.Exchanges++
	s.LastUpdateTime = time.Now()

	if err == nil {
		s.ValidResponses++
		return
	}

	var (
		protoErr   *ProtocolError
		timeoutErr *AssemblyTimeoutError
		closedErr  *StreamClosedError
		writeErr   *WriteError
		decodeErr  *DecodeError
	)
	switch {
	case errors.As(err, &protoErr):
		switch protoErr.Reason {
		case ReasonChecksumMismatch:
			s.ChecksumErrors++
		case ReasonUnexpectedHeader:
			s.HeaderErrors++
		case ReasonTooLong:
			s.TooLongErrors++
		}
	case errors.As(err, &timeoutErr):
		s.Timeouts++
	case errors.As(err, &closedErr):
		s.StreamClosures++
	case errors.As(err, &writeErr):
		s.WriteErrors++
	case errors.As(err, &decodeErr):
		s.DecodeErrors++
	}
}

// RecordFetch counts one FetchState call
func (s *Statistics) RecordFetch(err error) {
	s.Fetches++
	if err != nil {
		s.FetchFailures++
	}
}

// Errors returns the total number of failed exchanges
func (s *Statistics) Errors() uint64 {
	return s.Exchanges - s.ValidResponses
}

// CalculateRates calculates exchange and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.ExchangeRate = float64(s.Exchanges) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent float64
	if s.Exchanges > 0 {
		validPercent = float64(s.ValidResponses) * 100.0 / float64(s.Exchanges)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Fetches:         %8d (%d failed)\n", s.Fetches, s.FetchFailures)
	result += fmt.Sprintf("Exchanges:       %8d\n", s.Exchanges)
	result += fmt.Sprintf("Valid Responses: %8d (%.1f%%)\n", s.ValidResponses, validPercent)

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", s.ChecksumErrors)
	}
	if s.HeaderErrors > 0 {
		result += fmt.Sprintf("Header Errors:   %8d\n", s.HeaderErrors)
	}
	if s.TooLongErrors > 0 {
		result += fmt.Sprintf("Too Long:        %8d\n", s.TooLongErrors)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}
	if s.StreamClosures > 0 {
		result += fmt.Sprintf("Stream Closed:   %8d\n", s.StreamClosures)
	}
	if s.WriteErrors > 0 {
		result += fmt.Sprintf("Write Errors:    %8d\n", s.WriteErrors)
	}
	if s.DuplicatesDropped > 0 || s.StaleDiscarded > 0 {
		result += fmt.Sprintf("Duplicates:      %8d\n", s.DuplicatesDropped)
		result += fmt.Sprintf("Stale Chunks:    %8d\n", s.StaleDiscarded)
	}

	result += fmt.Sprintf("Connects:        %8d (%d attempts)\n", s.Connects, s.ConnectAttempts)
	result += fmt.Sprintf("Exchange Rate:   %8.2f /sec\n", s.ExchangeRate)
	result += fmt.Sprintf("Error Rate:      %8.2f /sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
