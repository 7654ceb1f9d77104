package analysis

import (
	"testing"

	"example.com/linspector/internal/bitops"
	"example.com/linspector/internal/model"
)

func TestDlcLegalClassicRange(t *testing.T) {
	for dlc := 0; dlc <= 8; dlc++ {
		if !dlcLegal(dlc, false) {
			t.Fatalf("dlcLegal(%d, false) = false, want true", dlc)
		}
	}
	if dlcLegal(9, false) {
		t.Fatal("dlcLegal(9, false) = true, want false")
	}
}

func TestDlcLegalFdExtraValues(t *testing.T) {
	for _, dlc := range []int{12, 16, 20, 24, 32, 48, 64} {
		if !dlcLegal(dlc, true) {
			t.Fatalf("dlcLegal(%d, true) = false, want true", dlc)
		}
		if dlcLegal(dlc, false) {
			t.Fatalf("dlcLegal(%d, false) = true, want false (FD-only value)", dlc)
		}
	}
	if dlcLegal(9, true) {
		t.Fatal("dlcLegal(9, true) = true, want false (9 is not a legal FD DLC)")
	}
}

func TestEffectiveStuffedBitsClassicIgnoresBRS(t *testing.T) {
	f := &model.CanFrame{IDWidth: 11, IsFD: false, BRS: false}
	want := float64(bitops.StuffedBits(bitops.FrameClassic, 11, 8))
	if got := effectiveStuffedBits(f, 8); got != want {
		t.Fatalf("effectiveStuffedBits = %v, want %v", got, want)
	}
}

func TestEffectiveStuffedBitsDiscountsBRSPayload(t *testing.T) {
	nonBRS := &model.CanFrame{IDWidth: 11, IsFD: true, BRS: false}
	brs := &model.CanFrame{IDWidth: 11, IsFD: true, BRS: true}

	full := effectiveStuffedBits(nonBRS, 8)
	discounted := effectiveStuffedBits(brs, 8)

	if full != 140.0 {
		t.Fatalf("non-BRS effective bits = %v, want 140", full)
	}
	if discounted != 80.0 {
		t.Fatalf("BRS effective bits = %v, want 80", discounted)
	}
	if discounted >= full {
		t.Fatalf("BRS discount did not reduce effective bits: %v >= %v", discounted, full)
	}
}

func TestValidateCanFrameFlagsIllegalIDWidth(t *testing.T) {
	a := newTestAnalyzer(model.LdfDescription{}, defaultTestConfig())
	s := newRunState(a)
	report := newReport()
	f := &model.CanFrame{Ts: 1.0, Channel: "CAN1", ID: 0x100, IDWidth: 16, Dlc: 8, Payload: make([]byte, 8)}
	validateCanFrame(s, report, f)
	if _, ok := findFinding(report.FrameFindings, IllegalDlc); !ok {
		t.Fatal("expected an IllegalDlc finding for the bad identifier width")
	}
}

func TestValidateCanFrameFlagsIllegalDlc(t *testing.T) {
	a := newTestAnalyzer(model.LdfDescription{}, defaultTestConfig())
	s := newRunState(a)
	report := newReport()
	f := &model.CanFrame{Ts: 1.0, Channel: "CAN1", ID: 0x100, IDWidth: 11, IsFD: false, Dlc: 9, Payload: make([]byte, 9)}
	validateCanFrame(s, report, f)
	if _, ok := findFinding(report.FrameFindings, IllegalDlc); !ok {
		t.Fatal("expected an IllegalDlc finding for DLC 9 on a classic frame")
	}
}

func TestValidateCanFrameCleanFrameHasNoFindings(t *testing.T) {
	a := newTestAnalyzer(model.LdfDescription{}, defaultTestConfig())
	s := newRunState(a)
	report := newReport()
	f := &model.CanFrame{Ts: 1.0, Channel: "CAN1", ID: 0x100, IDWidth: 11, Dlc: 8, Payload: make([]byte, 8)}
	validateCanFrame(s, report, f)
	if len(report.FrameFindings) != 0 {
		t.Fatalf("FrameFindings = %+v, want none", report.FrameFindings)
	}
}

func TestBusLoadTrackEmitsOnQuarterWindowAdvance(t *testing.T) {
	track := newBusLoadTrack(0.1)
	report := newReport()
	classic := &model.CanFrame{IsFD: false}

	track.observe(report, &model.CanFrame{Ts: 0.0, IsFD: classic.IsFD}, 8)
	if len(report.BusLoadSeries) != 0 {
		t.Fatalf("first sample should not emit yet, got %+v", report.BusLoadSeries)
	}

	track.observe(report, &model.CanFrame{Ts: 0.05, IsFD: classic.IsFD}, 8)
	if len(report.BusLoadSeries) != 2 {
		t.Fatalf("len(BusLoadSeries) = %d, want 2 after crossing two quarter-window boundaries", len(report.BusLoadSeries))
	}
	// The first boundary lies one step (window/4) after the first frame, so the
	// window starts at 0.025 - 0.1; computed at run time, as the code does, that
	// is -0.07500000000000001, not the constant -0.075.
	windowS := 0.1
	if got, want := report.BusLoadSeries[0].WindowStartS, windowS/4-windowS; got != want {
		t.Fatalf("BusLoadSeries[0].WindowStartS = %v, want %v", got, want)
	}
	if got, want := report.BusLoadSeries[0].LoadRatio, 1350.0; got != want {
		t.Fatalf("BusLoadSeries[0].LoadRatio = %v, want %v", got, want)
	}
	if got, want := report.BusLoadSeries[1].WindowStartS, -0.05; got != want {
		t.Fatalf("BusLoadSeries[1].WindowStartS = %v, want %v", got, want)
	}
	if got, want := report.BusLoadSeries[1].LoadRatio, 2700.0; got != want {
		t.Fatalf("BusLoadSeries[1].LoadRatio = %v, want %v", got, want)
	}

	track.flush(report)
	if len(report.BusLoadSeries) != 3 {
		t.Fatalf("len(BusLoadSeries) after flush = %d, want 3", len(report.BusLoadSeries))
	}
	if got, want := report.BusLoadSeries[2].LoadRatio, 2700.0; got != want {
		t.Fatalf("flushed LoadRatio = %v, want %v", got, want)
	}
}
