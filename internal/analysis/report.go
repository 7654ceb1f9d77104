// Package analysis is the analytic core: it consumes an LdfDescription, a
// DbcDatabase, a GatewayMap, and a sequential iterator of model.LogEntry
// values, and produces a deterministic AnalysisReport. Nothing in this
// package performs I/O; the only external dependency is the standard
// library plus internal/model, internal/bitops, internal/stats, and
// internal/linconfig.
package analysis

import (
	"sort"

	"example.com/linspector/internal/stats"
)

// Kind enumerates every finding kind the analyzer can emit, spanning the
// specification's original taxonomy and its physical-layer/slave-fault
// supplements.
type Kind string

const (
	PidParityError          Kind = "PidParityError"
	ChecksumError           Kind = "ChecksumError"
	LengthMismatch          Kind = "LengthMismatch"
	UnknownFrameId          Kind = "UnknownFrameId"
	BreakTooShort           Kind = "BreakTooShort"
	SyncByteWrong           Kind = "SyncByteWrong"
	BreakDelimiterShort     Kind = "BreakDelimiterShort"
	BitRateOutOfTolerance   Kind = "BitRateOutOfTolerance"
	IllegalDlc              Kind = "IllegalDlc"
	NonMonotonicTimestamp   Kind = "NonMonotonicTimestamp"
	ScheduleDrift           Kind = "ScheduleDrift"
	JitterExceeded          Kind = "JitterExceeded"
	MissedSlot              Kind = "MissedSlot"
	UnexpectedFrame         Kind = "UnexpectedFrame"
	SignalFieldOutOfPayload Kind = "SignalFieldOutOfPayload"
	SignalOutOfRange        Kind = "SignalOutOfRange"
	NoLinSourceInWindow     Kind = "NoLinSourceInWindow"
	GatewayValueMismatch    Kind = "GatewayValueMismatch"
	TruncatedInput          Kind = "TruncatedInput"

	// Supplemental physical-layer and reliability finding kinds (SPEC_FULL.md §4.3, §4.5).
	FrameDurationOutOfBounds Kind = "FrameDurationOutOfBounds"
	ByteTimingError          Kind = "ByteTimingError"
	InterFrameSpaceTooShort  Kind = "InterFrameSpaceTooShort"
	SlaveFault               Kind = "SlaveFault"
)

// Finding is one in-report, non-fatal observation. Not every field is
// meaningful for every Kind; Message always carries a human-readable
// summary so a finding is self-describing even when a numeric field is
// unused for its kind.
type Finding struct {
	Seq          uint64
	Ts           float64
	Channel      string
	Kind         Kind
	FrameID      int // unprotected LIN ID or CAN arbitration ID; -1 if not applicable
	Message      string
	Expected     float64
	Observed     float64
	ExpectedByte uint8
	ObservedByte uint8
	Detail       string // free-form tag, e.g. "EncodingMismatch" on a GatewayValueMismatch
}

// BusLoadPoint is one sample of the CAN bus-load series (§4.4).
type BusLoadPoint struct {
	WindowStartS float64
	LoadRatio    float64
}

// SlaveReliabilityEntry tracks one scheduled LIN frame's response rate
// against its slots; AnalysisReport.SlaveReliability keys it by frame name,
// not by publishing node (§3, §4.5 supplement).
type SlaveReliabilityEntry struct {
	FramesExpected     int
	ResponsesObserved  int
	FaultCount         int
}

// NetworkCycleSummary tracks LIN sleep/wake cycle bookkeeping (§4.2 supplement).
type NetworkCycleSummary struct {
	CyclesCompleted        int
	CyclesIncomplete       int
	CyclesNoMasterResponse int
}

// AnalysisReport is the analyzer's final, deterministic output.
type AnalysisReport struct {
	FrameFindings    []Finding
	TimingFindings   []Finding
	PhysicalFindings []Finding
	ScheduleFindings []Finding
	GatewayFindings  []Finding

	SignalStatistics map[string]stats.Snapshot
	BusLoadSeries    []BusLoadPoint
	SlaveReliability map[string]SlaveReliabilityEntry
	NetworkCycles    NetworkCycleSummary

	TotalFramesLin   int
	TotalFramesCan   int
	ErrorCountByKind map[Kind]int
	Truncated        bool

	finalized bool
	nextSeq   uint64
}

func newReport() *AnalysisReport {
	return &AnalysisReport{
		SignalStatistics: make(map[string]stats.Snapshot),
		SlaveReliability: make(map[string]SlaveReliabilityEntry),
		ErrorCountByKind: make(map[Kind]int),
	}
}

func (r *AnalysisReport) addFinding(f Finding) {
	r.nextSeq++
	f.Seq = r.nextSeq
	switch f.Kind {
	case PidParityError, ChecksumError, LengthMismatch, UnknownFrameId, IllegalDlc:
		r.FrameFindings = append(r.FrameFindings, f)
	case NonMonotonicTimestamp, TruncatedInput:
		r.TimingFindings = append(r.TimingFindings, f)
	case BreakTooShort, SyncByteWrong, BreakDelimiterShort, BitRateOutOfTolerance,
		FrameDurationOutOfBounds, ByteTimingError, InterFrameSpaceTooShort:
		r.PhysicalFindings = append(r.PhysicalFindings, f)
	case ScheduleDrift, JitterExceeded, MissedSlot, UnexpectedFrame, SlaveFault:
		r.ScheduleFindings = append(r.ScheduleFindings, f)
	case SignalFieldOutOfPayload, SignalOutOfRange:
		r.FrameFindings = append(r.FrameFindings, f)
	case NoLinSourceInWindow, GatewayValueMismatch:
		r.GatewayFindings = append(r.GatewayFindings, f)
	default:
		r.FrameFindings = append(r.FrameFindings, f)
	}
}

// Finalize sorts every finding slice by (timestamp, kind, sequence) and
// derives the scalar summary counters. It must be called exactly once.
func (r *AnalysisReport) Finalize() {
	if r.finalized {
		return
	}
	for _, findings := range [][]Finding{
		r.FrameFindings, r.TimingFindings, r.PhysicalFindings,
		r.ScheduleFindings, r.GatewayFindings,
	} {
		sortFindings(findings)
	}
	for _, findings := range [][]Finding{
		r.FrameFindings, r.TimingFindings, r.PhysicalFindings,
		r.ScheduleFindings, r.GatewayFindings,
	} {
		for _, f := range findings {
			r.ErrorCountByKind[f.Kind]++
		}
	}
	r.finalized = true
}

func sortFindings(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Ts != fs[j].Ts {
			return fs[i].Ts < fs[j].Ts
		}
		if fs[i].Kind != fs[j].Kind {
			return fs[i].Kind < fs[j].Kind
		}
		return fs[i].Seq < fs[j].Seq
	})
}
