package analysis

import (
	"fmt"

	"example.com/linspector/internal/model"
	"example.com/linspector/internal/stats"
)

// runState holds every piece of mutable, per-Run bookkeeping the C2-C7
// stages need: the last-seen timestamp for monotonicity clamping, the LIN
// schedule anchors, slave-reliability counters, per-channel network-cycle
// and header-interval tracking, the CAN bus-load sliding window, per-signal
// statistics, and the gateway correlator's pending-sample buffers. A fresh
// runState is created for every Analyzer.Run call so an Analyzer is safe
// for concurrent use across independent logs.
type runState struct {
	a *Analyzer

	haveLastTs bool
	lastTs     float64

	schedule map[string]*scheduleTrack // keyed by channel
	network  map[string]*networkCycleTrack

	linPhysical map[string]*linPhysicalTrack // keyed by channel

	busLoad map[string]*busLoadTrack

	signalStats map[string]*stats.Online

	gateway *gatewayState

	hso *stats.Online
	rso *stats.Online
}

func newRunState(a *Analyzer) *runState {
	return &runState{
		a:           a,
		schedule:    make(map[string]*scheduleTrack),
		network:     make(map[string]*networkCycleTrack),
		linPhysical: make(map[string]*linPhysicalTrack),
		busLoad:     make(map[string]*busLoadTrack),
		signalStats: make(map[string]*stats.Online),
		gateway:     newGatewayState(a),
		hso:         stats.NewOnline(),
		rso:         stats.NewOnline(),
	}
}

// normalize implements C2's log normalization: it enforces monotonic
// timestamps by clamping any entry whose timestamp regresses to the last
// accepted timestamp plus one 1µs quantum and emitting a
// NonMonotonicTimestamp finding.
func (s *runState) normalize(report *AnalysisReport, entry model.LogEntry) model.LogEntry {
	ts := entry.Timestamp()
	if s.haveLastTs && ts < s.lastTs {
		report.addFinding(Finding{
			Ts:       s.lastTs,
			Channel:  channelOf(entry),
			Kind:     NonMonotonicTimestamp,
			FrameID:  -1,
			Message:  "log entry timestamp regressed",
			Expected: s.lastTs,
			Observed: ts,
		})
		clamped := s.lastTs + 1e-6
		entry = clampTimestamp(entry, clamped)
		ts = clamped
	}
	s.lastTs = ts
	s.haveLastTs = true
	return entry
}

func channelOf(entry model.LogEntry) string {
	switch entry.Kind {
	case model.EntryLin:
		return entry.Lin.Channel
	case model.EntryCan:
		return entry.Can.Channel
	case model.EntryEvent:
		return entry.Event.Channel
	default:
		return ""
	}
}

func clampTimestamp(entry model.LogEntry, ts float64) model.LogEntry {
	switch entry.Kind {
	case model.EntryLin:
		clone := *entry.Lin
		clone.Ts = ts
		entry.Lin = &clone
	case model.EntryCan:
		clone := *entry.Can
		clone.Ts = ts
		entry.Can = &clone
	case model.EntryEvent:
		clone := *entry.Event
		clone.Ts = ts
		entry.Event = &clone
	}
	return entry
}

func (s *runState) handleLin(report *AnalysisReport, f *model.LinFrame) {
	validateLinFrame(s, report, f)
	trackSchedule(s, report, f)
	extractLinSignals(s, report, f)
	s.gateway.observeLin(report, f, s.a)
}

func (s *runState) handleCan(report *AnalysisReport, f *model.CanFrame) {
	validateCanFrame(s, report, f)
	extractCanSignals(s, report, f)
	s.gateway.observeCan(report, f, s.a)
}

func (s *runState) handleNetworkEvent(report *AnalysisReport, e *model.NetworkEvent) {
	trackNetworkEvent(s, e)
}

// markTruncated records a TruncatedInput finding at the last-seen timestamp
// and sets the report's Truncated flag, used when Run is cancelled midway.
func (s *runState) markTruncated(report *AnalysisReport) {
	report.Truncated = true
	report.addFinding(Finding{
		Ts:      s.lastTs,
		Kind:    TruncatedInput,
		FrameID: -1,
		Message: "analysis cancelled before end of input",
	})
}

// finish flushes accumulators that only produce their final values once
// input is exhausted: the hso/rso synthetic statistics, per-channel
// network-cycle summaries, and any still-open bus-load window.
func (s *runState) finish(report *AnalysisReport) {
	if s.hso.Count() > 0 {
		report.SignalStatistics["$hso"] = s.hso.Snapshot()
	}
	if s.rso.Count() > 0 {
		report.SignalStatistics["$rso"] = s.rso.Snapshot()
	}
	for name, on := range s.signalStats {
		report.SignalStatistics[name] = on.Snapshot()
	}
	for _, t := range s.network {
		if t.open {
			t.incomplete++
			t.open = false
		}
		report.NetworkCycles.CyclesCompleted += t.completed
		report.NetworkCycles.CyclesIncomplete += t.incomplete
		report.NetworkCycles.CyclesNoMasterResponse += t.noMasterResponse
	}
	for _, track := range s.schedule {
		for frameID, fs := range track.frames {
			name := fmt.Sprintf("id_%d", frameID)
			if spec, ok := s.a.ldf.Frames[frameID]; ok && spec.Name != "" {
				name = spec.Name
			}
			entry := report.SlaveReliability[name]
			entry.FramesExpected += fs.framesExpected
			entry.ResponsesObserved += fs.responsesObserved
			entry.FaultCount += fs.faultCount
			report.SlaveReliability[name] = entry
			if fs.jitter.Count() > 0 {
				report.SignalStatistics[fmt.Sprintf("$jitter_%s", name)] = fs.jitter.Snapshot()
			}
		}
	}
	for _, t := range s.busLoad {
		t.flush(report)
	}
	s.gateway.finish(report)
}
