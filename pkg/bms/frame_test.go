// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bms

import (
	"bytes"
	"encoding/hex"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

const (
	// Captured SOC-style frame with a valid checksum
	vectorComplete = "010318240c000002a7000000000000000000000000000000000000bc90"
	// Same frame one byte short
	vectorShort = "010318240c000002a700000000000000000000000000000000bc"
	// Same frame with the last checksum byte changed
	vectorBadCRC = "010318240c000002a7000000000000000000000000000000000000bc91"
	// Payload of vectorComplete
	vectorPayload = "240c000002a7000000000000000000000000000000000000"
)

func mustHex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("invalid hex %q: %v", s, err)
	}
	return b
}

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// ============================================================
// Checksum Tests
// ============================================================

func TestChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0x4B37, // CRC-16/MODBUS check value
		},
		{
			name:     "captured frame body",
			data:     append([]byte{0x01, 0x03, 0x18, 0x24, 0x0c, 0x00, 0x00, 0x02, 0xa7}, make([]byte, 18)...),
			expected: 0x90BC,
		},
		{
			name:     "empty",
			data:     []byte{},
			expected: 0xFFFF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := Checksum(tt.data)
			if crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

func TestChecksum_WireOrder(t *testing.T) {
	b := checksumBytes(0x90BC)
	if b != [2]byte{0xBC, 0x90} {
		t.Errorf("expected checksum on wire as BC 90, got %02X %02X", b[0], b[1])
	}
}

func TestRequests_CommandsCarryValidChecksum(t *testing.T) {
	for _, req := range Requests() {
		t.Run(req.Name, func(t *testing.T) {
			want := checksumBytes(Checksum(req.Command[:6]))
			if !bytes.Equal(req.Command[6:], want[:]) {
				t.Errorf("command %X: trailing bytes %X, expected %X", req.Command, req.Command[6:], want)
			}
			if !bytes.Equal(req.Command[:2], Header[:]) {
				t.Errorf("command %X does not start with header", req.Command)
			}
		})
	}
}

// ============================================================
// Parse Tests
// ============================================================

func TestParse_Vectors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		status  Status
		reason  Reason
		payload string
	}{
		{"complete", vectorComplete, StatusComplete, ReasonNone, vectorPayload},
		{"header only", "0103", StatusIncomplete, ReasonNone, ""},
		{"one byte short", vectorShort, StatusIncomplete, ReasonNone, ""},
		{"bad checksum", vectorBadCRC, StatusInvalid, ReasonChecksumMismatch, ""},
		{"too long", vectorComplete + "00", StatusInvalid, ReasonTooLong, ""},
		{"wrong header", "0203180000", StatusInvalid, ReasonUnexpectedHeader, ""},
		{"empty", "", StatusIncomplete, ReasonNone, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Parse(mustHex(t, tt.input))
			if out.Status != tt.status {
				t.Fatalf("expected status %s, got %s", tt.status, out)
			}
			if out.Reason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, out.Reason)
			}
			if tt.payload != "" && hex.EncodeToString(out.Payload) != tt.payload {
				t.Errorf("payload mismatch:\n  expected %s\n  got      %s", tt.payload, hex.EncodeToString(out.Payload))
			}
		})
	}
}

func TestParse_EmptyPayload(t *testing.T) {
	frame, err := EncodeFrame(nil)
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	out := Parse(frame)
	if !out.Complete() {
		t.Fatalf("expected COMPLETE, got %s", out)
	}
	if len(out.Payload) != 0 {
		t.Errorf("expected empty payload, got %X", out.Payload)
	}
}

func TestParse_ShortBuffersIncomplete(t *testing.T) {
	inputs := [][]byte{nil, {}, {0x01}, {0x02}, {0x01, 0x03}, {0xFF, 0xFF}}
	for _, in := range inputs {
		if out := Parse(in); out.Status != StatusIncomplete {
			t.Errorf("Parse(%X): expected INCOMPLETE, got %s", in, out)
		}
	}
}

func TestParse_UnexpectedHeader(t *testing.T) {
	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b += 17 {
			if a == 0x01 && b == 0x03 {
				continue
			}
			out := Parse([]byte{byte(a), byte(b), 0x00, 0x00, 0x00})
			if out.Reason != ReasonUnexpectedHeader {
				t.Fatalf("header %02X %02X: expected unexpected header, got %s", a, b, out)
			}
		}
	}
}

func TestParse_PayloadDoesNotAlias(t *testing.T) {
	input := mustHex(t, vectorComplete)
	out := Parse(input)
	if !out.Complete() {
		t.Fatalf("expected COMPLETE, got %s", out)
	}
	input[3] = 0xAA
	if out.Payload[0] != 0x24 {
		t.Error("payload aliases the input buffer")
	}
}

func TestParse_RoundTripAllLengths(t *testing.T) {
	rng := newFuzzRng(t)
	for p := 0; p <= MaxPayloadSize; p++ {
		payload := make([]byte, p)
		rng.Read(payload)

		frame, err := EncodeFrame(payload)
		if err != nil {
			t.Fatalf("P=%d: EncodeFrame failed: %v", p, err)
		}
		if len(frame) != p+FrameOverhead {
			t.Fatalf("P=%d: frame length %d, expected %d", p, len(frame), p+FrameOverhead)
		}

		out := Parse(frame)
		if !out.Complete() {
			t.Fatalf("P=%d: expected COMPLETE, got %s", p, out)
		}
		if !bytes.Equal(out.Payload, payload) {
			t.Fatalf("P=%d: payload mismatch", p)
		}

		// Every strict prefix is incomplete
		for n := 0; n < len(frame); n++ {
			if o := Parse(frame[:n]); o.Status != StatusIncomplete {
				t.Fatalf("P=%d prefix %d: expected INCOMPLETE, got %s", p, n, o)
			}
		}
	}
}

func TestParse_CorruptionDetected(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		payload := make([]byte, 1+rng.Intn(MaxPayloadSize))
		rng.Read(payload)
		frame, err := EncodeFrame(payload)
		if err != nil {
			t.Fatalf("EncodeFrame failed: %v", err)
		}

		// Corrupt one payload byte
		corrupted := append([]byte(nil), frame...)
		pos := HeaderSize + LengthSize + rng.Intn(len(payload))
		corrupted[pos] ^= byte(1 + rng.Intn(255))
		if out := Parse(corrupted); out.Reason != ReasonChecksumMismatch {
			t.Fatalf("round %d: payload byte %d corrupted, expected checksum mismatch, got %s", i, pos, out)
		}

		// Corrupt the length byte: never accepted
		corrupted = append([]byte(nil), frame...)
		corrupted[HeaderSize] ^= byte(1 + rng.Intn(255))
		if out := Parse(corrupted); out.Complete() {
			t.Fatalf("round %d: corrupted length byte accepted", i)
		}
	}
}

func TestParse_Deterministic(t *testing.T) {
	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		buf := make([]byte, rng.Intn(64))
		rng.Read(buf)
		if rng.Intn(2) == 0 && len(buf) >= 2 {
			buf[0], buf[1] = Header[0], Header[1]
		}
		a, b := Parse(buf), Parse(buf)
		if a.Status != b.Status || a.Reason != b.Reason || !bytes.Equal(a.Payload, b.Payload) {
			t.Fatalf("Parse(%X) not deterministic: %s vs %s", buf, a, b)
		}
	}
}

func TestEncodeFrame_TooLarge(t *testing.T) {
	if _, err := EncodeFrame(make([]byte, MaxPayloadSize+1)); err == nil {
		t.Error("expected error for oversized payload")
	}
}

func TestEncodeFrame_MatchesVector(t *testing.T) {
	frame, err := EncodeFrame(mustHex(t, vectorPayload))
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	if got := hex.EncodeToString(frame); got != vectorComplete {
		t.Errorf("expected %s, got %s", vectorComplete, got)
	}
}

func TestSplitChunks_NoAdjacentRepeats(t *testing.T) {
	frame := mustHex(t, vectorVoltagesFrame)

	for _, size := range []int{1, 2, 4, 16, 20, 23, 100} {
		chunks := SplitChunks(frame, size)
		var joined []byte
		for i, c := range chunks {
			if len(c) == 0 {
				t.Fatalf("size %d: chunk %d is empty", size, i)
			}
			if i > 0 && bytes.Equal(c, chunks[i-1]) {
				t.Errorf("size %d: chunks %d and %d are both %X", size, i-1, i, c)
			}
			joined = append(joined, c...)
		}
		if !bytes.Equal(joined, frame) {
			t.Errorf("size %d: chunks do not rebuild the frame", size)
		}
	}
}

func TestSplitChunks_ShiftsBoundary(t *testing.T) {
	chunks := SplitChunks(mustHex(t, vectorVoltagesFrame), 20)

	want := []int{20, 20, 19, 20, 2}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, c := range chunks {
		if len(c) != want[i] {
			t.Errorf("chunk %d: expected %d bytes, got %d", i, want[i], len(c))
		}
	}
}
