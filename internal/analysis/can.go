package analysis

import (
	"fmt"
	"math"

	"example.com/linspector/internal/bitops"
	"example.com/linspector/internal/model"
)

// legalFdExtra holds the DLC values above 8 that a frame may legally
// declare. dlcLegal accepts 0-8 for every frame; CAN-FD additionally
// permits these seven values.
var legalFdExtra = map[int]bool{12: true, 16: true, 20: true, 24: true, 32: true, 48: true, 64: true}

func dlcLegal(dlc int, isFD bool) bool {
	if dlc >= 0 && dlc <= 8 {
		return true
	}
	return isFD && legalFdExtra[dlc]
}

// validateCanFrame runs C4's structural checks and folds the frame into
// the channel's bus-load sliding window.
func validateCanFrame(s *runState, report *AnalysisReport, f *model.CanFrame) {
	if f.IDWidth != 11 && f.IDWidth != 29 {
		report.addFinding(Finding{
			Ts: f.Ts, Channel: f.Channel, Kind: IllegalDlc, FrameID: int(f.ID),
			Message: fmt.Sprintf("CAN identifier width %d is neither 11 nor 29 bits", f.IDWidth),
		})
	}

	dlc := f.Dlc
	if dlc == 0 && len(f.Payload) > 0 {
		dlc = len(f.Payload)
	}
	if !dlcLegal(dlc, f.IsFD) {
		report.addFinding(Finding{
			Ts: f.Ts, Channel: f.Channel, Kind: IllegalDlc, FrameID: int(f.ID),
			Message:  fmt.Sprintf("DLC %d is not legal for this frame class", dlc),
			Observed: float64(dlc),
		})
	}

	track := s.busLoad[f.Channel]
	if track == nil {
		track = newBusLoadTrack(s.a.cfg.BusLoadWindowS)
		s.busLoad[f.Channel] = track
	}
	track.observe(report, f, dlc)
}

// brsSpeedupFactor approximates the ratio between a CAN-FD frame's data-phase
// bit rate and its arbitration-phase bit rate when BRS is set.
const brsSpeedupFactor = 4.0

// effectiveStuffedBits estimates the on-wire time cost of a frame in units
// of arbitration-phase bit times, discounting the payload portion of a BRS
// frame by the data-phase speedup.
func effectiveStuffedBits(f *model.CanFrame, dlc int) float64 {
	kind := bitops.FrameClassic
	if f.IsFD {
		kind = bitops.FrameFD
	}
	total := float64(bitops.StuffedBits(kind, f.IDWidth, dlc))
	if !f.IsFD || !f.BRS {
		return total
	}
	payloadStuffed := math.Ceil(float64(dlc*8) * 5.0 / 4.0)
	overheadStuffed := total - payloadStuffed
	if overheadStuffed < 0 {
		overheadStuffed = 0
	}
	return overheadStuffed + payloadStuffed/brsSpeedupFactor
}

// busLoadTrack maintains a sliding window of (timestamp, effective bit cost)
// samples for one channel and emits a BusLoadPoint every time the window
// advances by a quarter of its width.
type busLoadTrack struct {
	windowS    float64
	stepS      float64
	nextEmitAt float64
	haveFirst  bool
	samples    []busLoadSample
}

type busLoadSample struct {
	ts   float64
	bits float64
}

func newBusLoadTrack(windowS float64) *busLoadTrack {
	return &busLoadTrack{windowS: windowS, stepS: windowS / 4}
}

func (t *busLoadTrack) observe(report *AnalysisReport, f *model.CanFrame, dlc int) {
	if !t.haveFirst {
		t.nextEmitAt = f.Ts + t.stepS
		t.haveFirst = true
	}
	t.samples = append(t.samples, busLoadSample{ts: f.Ts, bits: effectiveStuffedBits(f, dlc)})
	for f.Ts >= t.nextEmitAt {
		t.emit(report, t.nextEmitAt)
		t.nextEmitAt += t.stepS
	}
}

func (t *busLoadTrack) emit(report *AnalysisReport, windowEnd float64) {
	windowStart := windowEnd - t.windowS
	var bits float64
	kept := t.samples[:0]
	for _, sample := range t.samples {
		if sample.ts < windowStart {
			continue
		}
		if sample.ts <= windowEnd {
			bits += sample.bits
		}
		kept = append(kept, sample)
	}
	t.samples = kept

	// LoadRatio is expressed in arbitration-phase bit-times consumed per
	// second of window: no CAN bus bit rate is configured anywhere in this
	// codebase, so this is deliberately a rate rather than a unitless
	// fraction of bus capacity. A caller who knows the bus's nominal bit
	// rate can divide by it to recover a 0-1 utilization fraction.
	ratio := 0.0
	if t.windowS > 0 {
		ratio = bits / t.windowS
	}
	report.BusLoadSeries = append(report.BusLoadSeries, BusLoadPoint{
		WindowStartS: windowStart,
		LoadRatio:    ratio,
	})
}

func (t *busLoadTrack) flush(report *AnalysisReport) {
	if t.haveFirst {
		t.emit(report, t.nextEmitAt)
	}
}
