package analysis

import (
	"fmt"
	"math"

	"example.com/linspector/internal/bitops"
	"example.com/linspector/internal/model"
)

// validateLinFrame runs every C3 check that does not require schedule
// context: PID parity, frame-id lookup, payload length, checksum, and,
// when the entry carries sub-frame timing, the physical-layer checks.
func validateLinFrame(s *runState, report *AnalysisReport, f *model.LinFrame) {
	unprotectedID := int(f.PidByte & 0x3F)

	if ok, expected := bitops.PIDParityOK(f.PidByte); !ok {
		report.addFinding(Finding{
			Ts:           f.Ts,
			Channel:      f.Channel,
			Kind:         PidParityError,
			FrameID:      unprotectedID,
			Message:      fmt.Sprintf("PID byte 0x%02X fails parity, expected 0x%02X", f.PidByte, expected),
			ExpectedByte: expected,
			ObservedByte: f.PidByte,
		})
	}

	spec, known := s.a.ldf.Frames[unprotectedID]
	if !known {
		report.addFinding(Finding{
			Ts:      f.Ts,
			Channel: f.Channel,
			Kind:    UnknownFrameId,
			FrameID: unprotectedID,
			Message: fmt.Sprintf("frame id %d is not declared in the LIN description", unprotectedID),
		})
		validateLinTiming(s, report, f, unprotectedID)
		return
	}

	if len(f.Payload) != spec.Length {
		report.addFinding(Finding{
			Ts:       f.Ts,
			Channel:  f.Channel,
			Kind:     LengthMismatch,
			FrameID:  unprotectedID,
			Message:  fmt.Sprintf("frame %q declares length %d, observed %d", spec.Name, spec.Length, len(f.Payload)),
			Expected: float64(spec.Length),
			Observed: float64(len(f.Payload)),
		})
		return
	}

	kind := bitops.ChecksumKindFor(unprotectedID, spec.ChecksumKind)
	var expectedChecksum uint8
	if kind == bitops.Enhanced {
		expectedChecksum = bitops.LinChecksum(kind, f.PidByte, f.Payload)
	} else {
		expectedChecksum = bitops.LinChecksum(kind, 0, f.Payload)
	}
	if expectedChecksum != f.ChecksumByte {
		report.addFinding(Finding{
			Ts:           f.Ts,
			Channel:      f.Channel,
			Kind:         ChecksumError,
			FrameID:      unprotectedID,
			Message:      fmt.Sprintf("frame %q checksum mismatch", spec.Name),
			ExpectedByte: expectedChecksum,
			ObservedByte: f.ChecksumByte,
		})
	}

	validateLinTiming(s, report, f, unprotectedID)
}

// linSyncByteExpected is the LIN sync field's fixed value (§4.3 step 5).
const linSyncByteExpected byte = 0x55

// linPhysicalTrack is the per-channel state the header-interval checks need
// beyond what a single frame carries: specifically the previous frame's end
// time, which InterFrameSpaceTooShort measures against.
type linPhysicalTrack struct {
	haveFrameEnd bool
	frameEndS    float64 // absolute time the previous frame's payload finished
}

// validateLinTiming runs the physical-layer checks against f.Timing, when
// present. The upstream log is not obligated to carry sub-frame timing, so
// a nil Timing simply skips these checks without being an error itself.
func validateLinTiming(s *runState, report *AnalysisReport, f *model.LinFrame, unprotectedID int) {
	t := f.Timing
	if t == nil {
		return
	}
	cfg := s.a.cfg
	bitTime := 1.0 / cfg.BitRateHz

	minBreak := 13 * bitTime
	if t.BreakS < minBreak {
		report.addFinding(Finding{
			Ts: f.Ts, Channel: f.Channel, Kind: BreakTooShort, FrameID: unprotectedID,
			Message:  "break field shorter than 13 nominal bit times",
			Expected: minBreak, Observed: t.BreakS,
		})
	}

	if t.HasSyncByte && t.SyncByte != linSyncByteExpected {
		report.addFinding(Finding{
			Ts: f.Ts, Channel: f.Channel, Kind: SyncByteWrong, FrameID: unprotectedID,
			Message:      "sync field is not 0x55",
			ExpectedByte: linSyncByteExpected, ObservedByte: t.SyncByte,
		})
	}

	if t.HasHeaderSyncOffset {
		s.hso.Add(t.HeaderSyncOffsetS)
		if t.HeaderSyncOffsetS < bitTime {
			report.addFinding(Finding{
				Ts: f.Ts, Channel: f.Channel, Kind: BreakDelimiterShort, FrameID: unprotectedID,
				Message:  "break delimiter shorter than 1 nominal bit time",
				Expected: bitTime, Observed: t.HeaderSyncOffsetS,
			})
		}
	}

	// Response-sync-offset is metric only: it feeds "$rso" statistics and
	// never produces a finding on its own.
	if t.HasResponseOffset {
		s.rso.Add(t.ResponseSyncOffsetS)
	}

	if t.SyncS > 0 {
		measuredBitRate := 10.0 / t.SyncS // sync byte is one start bit, 8 data bits, one stop bit
		if math.Abs(measuredBitRate-cfg.BitRateHz) > cfg.BitRateHz*cfg.BitRateTolerance {
			report.addFinding(Finding{
				Ts: f.Ts, Channel: f.Channel, Kind: BitRateOutOfTolerance, FrameID: unprotectedID,
				Message:  "measured bit rate from sync byte falls outside tolerance",
				Expected: cfg.BitRateHz, Observed: measuredBitRate,
			})
		}
	}

	expectedFrameBits := 43 + len(f.Payload)*10
	expectedFrameDuration := float64(expectedFrameBits) * bitTime
	tolerance := math.Max(expectedFrameDuration*cfg.FrameDurationTolerance, cfg.MaxJitterS)
	if t.FrameEndS > 0 && math.Abs(t.FrameEndS-expectedFrameDuration) > tolerance {
		report.addFinding(Finding{
			Ts: f.Ts, Channel: f.Channel, Kind: FrameDurationOutOfBounds, FrameID: unprotectedID,
			Message:  "total frame duration outside the tolerance band",
			Expected: expectedFrameDuration, Observed: t.FrameEndS,
		})
	}

	nominalByteTime := 10 * bitTime
	for i := 1; i < len(t.ByteBoundariesS); i++ {
		delta := t.ByteBoundariesS[i] - t.ByteBoundariesS[i-1]
		if math.Abs(delta-nominalByteTime) > tolerance {
			report.addFinding(Finding{
				Ts: f.Ts, Channel: f.Channel, Kind: ByteTimingError, FrameID: unprotectedID,
				Message:  fmt.Sprintf("byte %d timing outside the tolerance band", i),
				Expected: nominalByteTime, Observed: delta, Detail: fmt.Sprintf("byte=%d", i),
			})
		}
	}

	// InterFrameSpaceTooShort needs the previous frame's end time on this
	// channel, so it lives against per-channel state rather than any single
	// frame's own timing record.
	track := s.linPhysical[f.Channel]
	if track == nil {
		track = &linPhysicalTrack{}
		s.linPhysical[f.Channel] = track
	}
	frameDuration := t.FrameEndS
	if frameDuration <= 0 {
		frameDuration = expectedFrameDuration
	}
	if track.haveFrameEnd {
		minIfs := float64(cfg.IfsMinBits) * bitTime
		gap := f.Ts - track.frameEndS
		if gap < minIfs {
			report.addFinding(Finding{
				Ts: f.Ts, Channel: f.Channel, Kind: InterFrameSpaceTooShort, FrameID: unprotectedID,
				Message:  "inter-frame space shorter than the configured minimum",
				Expected: minIfs, Observed: gap,
			})
		}
	}
	track.frameEndS = f.Ts + frameDuration
	track.haveFrameEnd = true
}

// networkCycleTrack accumulates a channel's sleep/wake bookkeeping (§4.2
// supplement): a cycle opens on SleepCommand and completes on the next
// WakeupFrame; a cycle still open when another SleepCommand arrives or when
// input ends counts as incomplete, and every UnexpectedWakeup counts as a
// cycle with no master response.
type networkCycleTrack struct {
	open             bool
	completed        int
	incomplete       int
	noMasterResponse int
}

func trackNetworkEvent(s *runState, e *model.NetworkEvent) {
	t := s.network[e.Channel]
	if t == nil {
		t = &networkCycleTrack{}
		s.network[e.Channel] = t
	}
	switch e.Kind {
	case model.SleepCommand:
		if t.open {
			t.incomplete++
		}
		t.open = true
	case model.WakeupFrame:
		if t.open {
			t.completed++
			t.open = false
		}
	case model.UnexpectedWakeup:
		t.noMasterResponse++
	}
}
