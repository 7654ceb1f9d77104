// Package bitops implements the bit/byte primitives the analytic core
// builds on: LIN PID parity, LIN checksums, signed/unsigned signal
// extraction across Intel and Motorola byte orders, and a CAN bit-stuffing
// estimator. Every function here is pure.
package bitops

import "example.com/linspector/internal/model"

// ComputePID computes the protected identifier for a 6-bit unprotected LIN
// frame ID, per LIN 2.x: P0 = id0^id1^id2^id4, P1 = NOT(id1^id3^id4^id5).
func ComputePID(unprotectedID int) uint8 {
	id := unprotectedID & 0x3F
	bit := func(n int) int { return (id >> n) & 1 }
	p0 := bit(0) ^ bit(1) ^ bit(2) ^ bit(4)
	p1 := 1 - (bit(1) ^ bit(3) ^ bit(4) ^ bit(5))
	return uint8(id | (p0 << 6) | (p1 << 7))
}

// PIDParityOK reports whether the observed PID byte's parity bits match the
// unprotected ID it carries, and returns the PID that should have been
// observed.
func PIDParityOK(pidByte uint8) (ok bool, expected uint8) {
	unprotected := int(pidByte & 0x3F)
	expected = ComputePID(unprotected)
	return expected == pidByte, expected
}

// sum8WithCarry adds b into sum using LIN's unsigned 8-bit arithmetic with
// end-around carry: whenever the running total exceeds 0xFF, the excess
// above 0xFF is folded back in.
func sum8WithCarry(sum int, b byte) int {
	sum += int(b)
	if sum > 0xFF {
		sum -= 0xFF
	}
	return sum
}

// LinChecksum computes the LIN checksum byte. For Classic, data is the
// frame's data bytes and pid is ignored (pass 0). For Enhanced, pid is the
// protected ID byte and is folded into the sum before the data bytes.
func LinChecksum(kind model.ChecksumKind, pid uint8, data []byte) uint8 {
	sum := 0
	if kind == Enhanced {
		sum = sum8WithCarry(sum, pid)
	}
	for _, b := range data {
		sum = sum8WithCarry(sum, b)
	}
	return uint8(^sum & 0xFF)
}

// ChecksumKindFor resolves the checksum kind that must be used for a given
// LIN frame ID: diagnostic IDs 60 and 61 are always Classic, regardless of
// what the LDF declares for that frame.
func ChecksumKindFor(frameID int, declared model.ChecksumKind) model.ChecksumKind {
	if frameID == 60 || frameID == 61 {
		return Classic
	}
	return declared
}

// Classic and Enhanced re-exported for callers that only import bitops.
const (
	Classic  = model.Classic
	Enhanced = model.Enhanced
)

// ExtractBits extracts a length-bit field from data starting at startBit,
// per the given byte order, and sign-extends it if signed. It is total over
// its declared window: ok is false if the window exceeds len(data)*8, in
// which case value is 0.
func ExtractBits(data []byte, startBit, length int, order model.ByteOrder, signed bool) (value int64, ok bool) {
	if length <= 0 || length > 64 {
		return 0, false
	}
	if order == model.Motorola {
		return extractMotorola(data, startBit, length, signed)
	}
	return extractIntel(data, startBit, length, signed)
}

// extractIntel implements the Intel (little-endian) convention: bits are
// numbered within bytes LSB=0, and the field occupies consecutive bit
// positions beginning at startBit across the byte array treated as one
// little-endian integer.
func extractIntel(data []byte, startBit, length int, signed bool) (int64, bool) {
	highestBit := startBit + length - 1
	if startBit < 0 || highestBit >= len(data)*8 {
		return 0, false
	}
	var raw uint64
	for i, b := range data {
		if i > 7 {
			break // cap at 64 bits, matching the length guard above
		}
		raw |= uint64(b) << (8 * uint(i))
	}
	mask := uint64(1)<<uint(length) - 1
	if length == 64 {
		mask = ^uint64(0)
	}
	extracted := (raw >> uint(startBit)) & mask
	return signExtend(extracted, length, signed), true
}

// extractMotorola implements the Motorola (big-endian, DBC) convention:
// startBit names the MSB of the field, and successive bits walk downward
// within a byte, crossing to the next byte's bit 7 on underflow.
func extractMotorola(data []byte, startBit, length int, signed bool) (int64, bool) {
	if startBit < 0 {
		return 0, false
	}
	var extracted uint64
	bitIndex := 8*(startBit/8) + (7 - startBit%8)
	for i := 0; i < length; i++ {
		byteIndex := bitIndex / 8
		bitInByte := bitIndex % 8
		if byteIndex < 0 || byteIndex >= len(data) {
			return 0, false
		}
		bitValue := (data[byteIndex] >> uint(7-bitInByte)) & 1
		extracted = (extracted << 1) | uint64(bitValue)
		bitIndex++
	}
	return signExtend(extracted, length, signed), true
}

func signExtend(raw uint64, length int, signed bool) int64 {
	if !signed || length == 0 {
		return int64(raw)
	}
	signBit := uint64(1) << uint(length-1)
	if raw&signBit != 0 {
		return int64(raw) - (int64(1) << uint(length))
	}
	return int64(raw)
}

// PhysicalValue converts a raw extracted integer to its physical value.
func PhysicalValue(raw int64, factor, offset float64) float64 {
	return float64(raw)*factor + offset
}

// FrameKind distinguishes the CAN frame classes the bit-stuffing estimator
// costs differently.
type FrameKind int

const (
	FrameClassic FrameKind = iota
	FrameFD
	FrameFDBRS
)

// fixedOverheadBits returns the nominal non-data bit count (SOF, arbitration,
// control, CRC, ACK, EOF) for a frame kind, before bit-stuffing. The 3-bit
// inter-frame space is not included.
func fixedOverheadBits(kind FrameKind, idWidth int) int {
	base := 44 // SOF + 11-bit ID + RTR/IDE/r0 + control + CRC(15)+delim + ACK+delim + EOF(7)
	if idWidth == 29 {
		base += 20 // extended arbitration field
	}
	if kind != FrameClassic {
		base += 4 // FD adds BRS/ESI/res control bits, approximately
	}
	return base
}

// StuffedBits estimates the worst-case on-wire bit count for a frame whose
// payload is dlc data bytes: ceil((fixed overhead + dlc*8) * 5/4). The 5/4
// bit-stuffing allowance (a stuff bit after every 5 identical bits) is
// applied to the overhead bits as well as the data bits.
func StuffedBits(kind FrameKind, idWidth, dlc int) int {
	rawBits := fixedOverheadBits(kind, idWidth) + dlc*8
	stuffed := (rawBits*5 + 3) / 4 // ceil(rawBits * 5/4)
	return stuffed
}
