package analysis

import (
	"fmt"
	"math"

	"example.com/linspector/internal/bitops"
	"example.com/linspector/internal/model"
	"example.com/linspector/internal/stats"
)

// frameScheduleState tracks one LIN frame id's adherence to its schedule
// slot, anchored on the first frame observed for that id: expected
// occurrences are indexed from that anchor by round((t-t0)/period), per the
// period-anchor model.
type frameScheduleState struct {
	periodS float64

	haveAnchor   bool
	t0           float64
	expectedNext int64

	haveLast bool
	lastTs   float64
	jitter   *stats.Online

	framesExpected    int
	responsesObserved int
	faultCount        int
}

// scheduleTrack holds every frame id's schedule state for one channel.
type scheduleTrack struct {
	frames map[int]*frameScheduleState
}

func newScheduleTrack() *scheduleTrack {
	return &scheduleTrack{frames: make(map[int]*frameScheduleState)}
}

// trackSchedule implements C5: it locates f's slot in the schedule table,
// anchors or advances that slot's period model, and emits ScheduleDrift,
// JitterExceeded, MissedSlot, UnexpectedFrame, and SlaveFault findings.
func trackSchedule(s *runState, report *AnalysisReport, f *model.LinFrame) {
	unprotectedID := int(f.PidByte & 0x3F)
	if unprotectedID == 60 || unprotectedID == 61 {
		// Diagnostic frames are master-request/slave-response IDs sent
		// on demand, not against a schedule slot; §3 Invariant 1 exempts them.
		return
	}

	track := s.schedule[f.Channel]
	if track == nil {
		track = newScheduleTrack()
		s.schedule[f.Channel] = track
	}

	slot, inSchedule := findSlot(s.a.ldf.Schedule, unprotectedID)
	fs := track.frames[unprotectedID]
	if fs == nil {
		if !inSchedule {
			report.addFinding(Finding{
				Ts: f.Ts, Channel: f.Channel, Kind: UnexpectedFrame, FrameID: unprotectedID,
				Message: fmt.Sprintf("frame id %d is not present in any schedule table", unprotectedID),
			})
			return
		}
		fs = &frameScheduleState{periodS: slot.PeriodS, jitter: stats.NewOnline()}
		track.frames[unprotectedID] = fs
	}
	if !inSchedule {
		report.addFinding(Finding{
			Ts: f.Ts, Channel: f.Channel, Kind: UnexpectedFrame, FrameID: unprotectedID,
			Message: fmt.Sprintf("frame id %d is not present in any schedule table", unprotectedID),
		})
		return
	}

	tolerance := s.a.cfg.ScheduleToleranceS + s.a.ldf.MasterJitterS

	if !fs.haveAnchor {
		fs.haveAnchor = true
		fs.t0 = f.Ts
		fs.expectedNext = 1
	} else {
		expectedK := int64(math.Round((f.Ts - fs.t0) / fs.periodS))
		expectedTs := fs.t0 + float64(expectedK)*fs.periodS
		deviation := f.Ts - expectedTs
		if math.Abs(deviation) > tolerance {
			report.addFinding(Finding{
				Ts: f.Ts, Channel: f.Channel, Kind: ScheduleDrift, FrameID: unprotectedID,
				Message:  fmt.Sprintf("frame id %d drifted from its scheduled slot", unprotectedID),
				Expected: expectedTs, Observed: f.Ts,
			})
		}
		if expectedK > fs.expectedNext {
			missed := expectedK - fs.expectedNext
			report.addFinding(Finding{
				Ts: f.Ts, Channel: f.Channel, Kind: MissedSlot, FrameID: unprotectedID,
				Message:  fmt.Sprintf("frame id %d missed %d scheduled occurrence(s)", unprotectedID, missed),
				Observed: float64(missed),
			})
			fs.framesExpected += int(missed)
		}
		fs.expectedNext = expectedK + 1

		if fs.haveLast {
			jitter := (f.Ts - fs.lastTs) - fs.periodS
			fs.jitter.Add(jitter)
			if math.Abs(jitter) > s.a.cfg.MaxJitterS {
				report.addFinding(Finding{
					Ts: f.Ts, Channel: f.Channel, Kind: JitterExceeded, FrameID: unprotectedID,
					Message:  fmt.Sprintf("frame id %d inter-frame jitter exceeded tolerance", unprotectedID),
					Expected: s.a.cfg.MaxJitterS, Observed: jitter,
				})
			}
		}
	}
	fs.lastTs = f.Ts
	fs.haveLast = true
	fs.framesExpected++
	fs.responsesObserved++

	checkSlaveFault(s, report, f, unprotectedID, fs)
}

func findSlot(table model.ScheduleTable, frameID int) (model.ScheduleSlot, bool) {
	for _, slot := range table.Slots {
		if slot.FrameID == frameID {
			return slot, true
		}
	}
	return model.ScheduleSlot{}, false
}

// checkSlaveFault decodes a frame's LDF-declared error signal, when it has
// one, and records a SlaveFault finding plus a reliability fault count when
// the signal reads non-zero.
func checkSlaveFault(s *runState, report *AnalysisReport, f *model.LinFrame, unprotectedID int, fs *frameScheduleState) {
	spec, ok := s.a.ldf.Frames[unprotectedID]
	if !ok || spec.ErrorSignal == "" {
		return
	}
	for _, sig := range spec.Signals {
		if sig.Name != spec.ErrorSignal {
			continue
		}
		raw, ok := bitops.ExtractBits(f.Payload, sig.StartBit, sig.Length, model.Intel, false)
		if ok && raw != 0 {
			fs.faultCount++
			report.addFinding(Finding{
				Ts: f.Ts, Channel: f.Channel, Kind: SlaveFault, FrameID: unprotectedID,
				Message:  fmt.Sprintf("frame %q reports an internal slave fault via %q", spec.Name, sig.Name),
				Observed: float64(raw),
			})
		}
		return
	}
}
