package bitops

import (
	"testing"

	"example.com/linspector/internal/model"
)

func TestComputePIDKnownVectors(t *testing.T) {
	// ID 0x00: p0 = 0, p1 = NOT(0) = 1 -> 0x80.
	if got := ComputePID(0x00); got != 0x80 {
		t.Fatalf("ComputePID(0x00) = 0x%02X, want 0x80", got)
	}
	// ID 0x21: p0 = 1^0^0^0 = 1, p1 = NOT(0^0^0^1) = 0 -> 0x21 | 0x40 = 0x61.
	if got := ComputePID(0x21); got != 0x61 {
		t.Fatalf("ComputePID(0x21) = 0x%02X, want 0x61", got)
	}
}

func TestPIDParityOKRoundTrips(t *testing.T) {
	for id := 0; id < 64; id++ {
		pid := ComputePID(id)
		ok, expected := PIDParityOK(pid)
		if !ok {
			t.Fatalf("PIDParityOK(0x%02X) for id %d = false, want true", pid, id)
		}
		if expected != pid {
			t.Fatalf("PIDParityOK(0x%02X) expected = 0x%02X, want 0x%02X", pid, expected, pid)
		}
	}
}

func TestPIDParityOKDetectsCorruption(t *testing.T) {
	pid := ComputePID(0x10)
	corrupted := pid ^ 0x80 // flip P1
	ok, expected := PIDParityOK(corrupted)
	if ok {
		t.Fatalf("PIDParityOK(0x%02X) = true, want false", corrupted)
	}
	if expected != pid {
		t.Fatalf("expected PID 0x%02X, got 0x%02X", pid, expected)
	}
}

func TestLinChecksumClassic(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	got := LinChecksum(model.Classic, 0xFF, data)
	sum := 0x01 + 0x02 + 0x03
	want := uint8(^sum & 0xFF)
	if got != want {
		t.Fatalf("LinChecksum classic = 0x%02X, want 0x%02X", got, want)
	}
}

func TestLinChecksumEnhancedFoldsPID(t *testing.T) {
	pid := uint8(0xE1)
	data := []byte{0x10, 0x20}
	got := LinChecksum(model.Enhanced, pid, data)
	// 0xE1 + 0x10 + 0x20 = 0x111 exceeds 0xFF once; the end-around carry folds it to 0x12.
	sum := int(pid) + 0x10 + 0x20 - 0xFF
	want := uint8(^sum & 0xFF)
	if got != want {
		t.Fatalf("LinChecksum enhanced = 0x%02X, want 0x%02X", got, want)
	}
}

func TestLinChecksumCarryWraps(t *testing.T) {
	// 0xFF + 0xFF + 0x01 overflows twice; verify end-around carry, not truncation.
	data := []byte{0xFF, 0xFF, 0x01}
	got := LinChecksum(model.Classic, 0, data)
	sum := 0
	for _, b := range data {
		sum += int(b)
		if sum > 0xFF {
			sum -= 0xFF
		}
	}
	want := uint8(^sum & 0xFF)
	if got != want {
		t.Fatalf("LinChecksum carry = 0x%02X, want 0x%02X", got, want)
	}
}

func TestChecksumKindForDiagnosticIDsAlwaysClassic(t *testing.T) {
	if got := ChecksumKindFor(60, model.Enhanced); got != model.Classic {
		t.Fatalf("ChecksumKindFor(60) = %v, want Classic", got)
	}
	if got := ChecksumKindFor(61, model.Enhanced); got != model.Classic {
		t.Fatalf("ChecksumKindFor(61) = %v, want Classic", got)
	}
	if got := ChecksumKindFor(0x10, model.Enhanced); got != model.Enhanced {
		t.Fatalf("ChecksumKindFor(0x10) = %v, want Enhanced (declared)", got)
	}
}

func TestExtractBitsIntelUnsigned(t *testing.T) {
	data := []byte{0x34, 0x12} // little-endian word 0x1234
	value, ok := ExtractBits(data, 0, 16, model.Intel, false)
	if !ok {
		t.Fatal("ExtractBits failed, want ok")
	}
	if value != 0x1234 {
		t.Fatalf("value = 0x%X, want 0x1234", value)
	}
}

func TestExtractBitsIntelPartialField(t *testing.T) {
	// bits [4:11] of 0x34,0x12 = 0x1234 -> shift right 4, mask 8 bits = 0x23
	data := []byte{0x34, 0x12}
	value, ok := ExtractBits(data, 4, 8, model.Intel, false)
	if !ok {
		t.Fatal("ExtractBits failed, want ok")
	}
	if value != 0x23 {
		t.Fatalf("value = 0x%X, want 0x23", value)
	}
}

func TestExtractBitsIntelSigned(t *testing.T) {
	// 4-bit field value 0b1000 (8) sign-extends to -8.
	data := []byte{0x08}
	value, ok := ExtractBits(data, 0, 4, model.Intel, true)
	if !ok {
		t.Fatal("ExtractBits failed, want ok")
	}
	if value != -8 {
		t.Fatalf("value = %d, want -8", value)
	}
}

func TestExtractBitsMotorolaMSBFirst(t *testing.T) {
	// Motorola startbit 7 (MSB of byte 0), length 8 covers all of byte 0.
	data := []byte{0xAB, 0xCD}
	value, ok := ExtractBits(data, 7, 8, model.Motorola, false)
	if !ok {
		t.Fatal("ExtractBits failed, want ok")
	}
	if value != 0xAB {
		t.Fatalf("value = 0x%X, want 0xAB", value)
	}
}

func TestExtractBitsMotorolaCrossesByteBoundary(t *testing.T) {
	// startbit 7, length 16 spans byte 0 and byte 1 MSB-first: 0xAB, 0xCD -> 0xABCD.
	data := []byte{0xAB, 0xCD}
	value, ok := ExtractBits(data, 7, 16, model.Motorola, false)
	if !ok {
		t.Fatal("ExtractBits failed, want ok")
	}
	if value != 0xABCD {
		t.Fatalf("value = 0x%X, want 0xABCD", value)
	}
}

func TestExtractBitsOutOfBoundsFails(t *testing.T) {
	data := []byte{0x00}
	if _, ok := ExtractBits(data, 4, 8, model.Intel, false); ok {
		t.Fatal("ExtractBits should fail when window exceeds payload")
	}
	if _, ok := ExtractBits(data, -1, 4, model.Motorola, false); ok {
		t.Fatal("ExtractBits should fail on negative startbit")
	}
}

func TestExtractBitsRejectsInvalidLength(t *testing.T) {
	data := []byte{0x00, 0x00}
	if _, ok := ExtractBits(data, 0, 0, model.Intel, false); ok {
		t.Fatal("ExtractBits should reject zero length")
	}
	if _, ok := ExtractBits(data, 0, 65, model.Intel, false); ok {
		t.Fatal("ExtractBits should reject length > 64")
	}
}

func TestPhysicalValue(t *testing.T) {
	if got := PhysicalValue(100, 0.5, 10); got != 60 {
		t.Fatalf("PhysicalValue = %v, want 60", got)
	}
}

func TestStuffedBitsGrowsWithDlcAndIDWidth(t *testing.T) {
	classic8 := StuffedBits(FrameClassic, 11, 8)
	classic0 := StuffedBits(FrameClassic, 11, 0)
	if classic8 <= classic0 {
		t.Fatalf("StuffedBits should grow with dlc: dlc8=%d dlc0=%d", classic8, classic0)
	}
	extended := StuffedBits(FrameClassic, 29, 8)
	if extended <= classic8 {
		t.Fatalf("StuffedBits should grow with extended ID: extended=%d standard=%d", extended, classic8)
	}
	fd := StuffedBits(FrameFD, 11, 64)
	if fd <= classic8 {
		t.Fatalf("StuffedBits(FD, dlc=64) should exceed classic dlc=8: fd=%d classic=%d", fd, classic8)
	}
}
