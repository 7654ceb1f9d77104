package analysis

import (
	"fmt"
	"math"

	"example.com/linspector/internal/bitops"
	"example.com/linspector/internal/model"
	"example.com/linspector/internal/stats"
)

// gwSample is one observation buffered (or arriving as a target) for a
// gateway rule's windowed join: the raw extracted integer, the value
// resolved into physical units, and whether the raw value has an entry in
// its signal's value table. hasLogical drives which of the two comparison
// modes joinGatewayTarget uses, mirroring original_source's
// compare_gateway_values symmetric treatment of LIN and CAN signals.
type gwSample struct {
	ts            float64
	raw           int64
	physicalValue float64
	hasLogical    bool
}

// ruleBuffer is one gateway rule's live join state: its buffered source
// samples (chronological, pruned to the rule's window) and its observed
// latency statistics.
type ruleBuffer struct {
	rule        model.MapRule
	maxLatencyS float64
	samples     []gwSample
	latency     *stats.Online
}

// gatewayState implements C7 across every rule in the gateway map,
// buffering source-side samples and joining them against target-side
// observations as they arrive.
type gatewayState struct {
	a        *Analyzer
	linToCan []*ruleBuffer // LIN is the source, CAN is the target
	canToLin []*ruleBuffer // CAN is the source, LIN is the target
}

func newGatewayState(a *Analyzer) *gatewayState {
	g := &gatewayState{a: a}
	for _, rule := range a.gw.Rules {
		maxLatency := rule.MaxLatencyS
		if maxLatency <= 0 {
			maxLatency = a.cfg.GatewayTimeWindowS
		}
		rb := &ruleBuffer{rule: rule, maxLatencyS: maxLatency, latency: stats.NewOnline()}
		if rule.LinToCan {
			g.linToCan = append(g.linToCan, rb)
		} else {
			g.canToLin = append(g.canToLin, rb)
		}
	}
	return g
}

// extractLinRuleValue resolves signalName within frameID to a gwSample's
// three comparable forms. hasLogical is true whenever the raw value has an
// entry in the signal's LinSignalEncoding table, regardless of the
// encoding's Kind, matching original_source's raw membership test.
func extractLinRuleValue(a *Analyzer, f *model.LinFrame, frameID int, signalName string) (sample gwSample, ok bool) {
	spec, known := a.ldf.Frames[frameID]
	if !known {
		return gwSample{}, false
	}
	for _, sig := range spec.Signals {
		if sig.Name != signalName {
			continue
		}
		raw, extracted := bitops.ExtractBits(f.Payload, sig.StartBit, sig.Length, model.Intel, false)
		if !extracted {
			return gwSample{}, false
		}
		_, hasLogical := sig.Encoding.Table[int(raw)]
		physicalValue := bitops.PhysicalValue(raw, sig.Encoding.Factor, sig.Encoding.Offset)
		return gwSample{raw: raw, physicalValue: physicalValue, hasLogical: hasLogical}, true
	}
	return gwSample{}, false
}

// extractCanRuleValue is extractLinRuleValue's CAN-side mirror: hasLogical
// reflects raw membership in the signal's DBC VAL_ table.
func extractCanRuleValue(a *Analyzer, f *model.CanFrame, canID uint32, idWidth int, signalName string) (sample gwSample, ok bool) {
	msg, known := a.dbc.Messages[model.DbcKey{ID: canID, IDWidth: idWidth}]
	if !known {
		return gwSample{}, false
	}
	for _, sig := range msg.Signals {
		if sig.Name != signalName {
			continue
		}
		raw, extracted := bitops.ExtractBits(f.Payload, sig.StartBit, sig.Length, sig.ByteOrder, sig.Signed)
		if !extracted {
			return gwSample{}, false
		}
		_, hasLogical := sig.ValueTable[int(raw)]
		physicalValue := bitops.PhysicalValue(raw, sig.Factor, sig.Offset)
		return gwSample{raw: raw, physicalValue: physicalValue, hasLogical: hasLogical}, true
	}
	return gwSample{}, false
}

func applyTransform(t model.Transform, value float64) float64 {
	switch t.Kind {
	case model.Linear:
		return t.A*value + t.B
	case model.Enum:
		if mapped, ok := t.Table[value]; ok {
			return mapped
		}
		return value
	default:
		return value
	}
}

// nearestSample returns the most recent buffered sample no later than
// targetTs and within maxLatencyS of it. Ties among identically-timestamped
// samples resolve to the earliest one appended.
func nearestSample(samples []gwSample, targetTs, maxLatencyS float64) (gwSample, bool) {
	for i := len(samples) - 1; i >= 0; i-- {
		s := samples[i]
		if s.ts > targetTs {
			continue
		}
		if targetTs-s.ts > maxLatencyS {
			return gwSample{}, false
		}
		j := i
		for j > 0 && samples[j-1].ts == s.ts {
			j--
		}
		return samples[j], true
	}
	return gwSample{}, false
}

func pruneBefore(samples []gwSample, cutoff float64) []gwSample {
	i := 0
	for i < len(samples) && samples[i].ts < cutoff {
		i++
	}
	return samples[i:]
}

const gatewayMismatchRelTolerance = 1e-3
const gatewayMismatchAbsFloor = 1e-6

func gatewayTolerance(expected float64) float64 {
	return math.Max(gatewayMismatchAbsFloor, gatewayMismatchRelTolerance*math.Abs(expected))
}

// observeLin buffers this frame's value for every LIN-sourced rule it
// matches, and, for every CAN-sourced rule whose target happens to be this
// same frame/signal, joins against the buffered CAN sample.
func (g *gatewayState) observeLin(report *AnalysisReport, f *model.LinFrame, a *Analyzer) {
	unprotectedID := int(f.PidByte & 0x3F)

	for _, rb := range g.linToCan {
		if rb.rule.LinFrameID != unprotectedID {
			continue
		}
		sample, ok := extractLinRuleValue(a, f, unprotectedID, rb.rule.LinSignal)
		if !ok {
			continue
		}
		sample.ts = f.Ts
		rb.samples = append(rb.samples, sample)
		rb.samples = pruneBefore(rb.samples, f.Ts-rb.maxLatencyS)
	}

	for _, rb := range g.canToLin {
		if rb.rule.LinFrameID != unprotectedID {
			continue
		}
		target, ok := extractLinRuleValue(a, f, unprotectedID, rb.rule.LinSignal)
		if !ok {
			continue
		}
		joinGatewayTarget(report, rb, f.Ts, f.Channel, unprotectedID, target)
	}
}

// observeCan is the mirror of observeLin for CAN-sourced/CAN-targeted rules.
func (g *gatewayState) observeCan(report *AnalysisReport, f *model.CanFrame, a *Analyzer) {
	for _, rb := range g.canToLin {
		if rb.rule.CanID != f.ID || rb.rule.CanIDWidth != f.IDWidth {
			continue
		}
		sample, ok := extractCanRuleValue(a, f, f.ID, f.IDWidth, rb.rule.CanSignal)
		if !ok {
			continue
		}
		sample.ts = f.Ts
		rb.samples = append(rb.samples, sample)
		rb.samples = pruneBefore(rb.samples, f.Ts-rb.maxLatencyS)
	}

	for _, rb := range g.linToCan {
		if rb.rule.CanID != f.ID || rb.rule.CanIDWidth != f.IDWidth {
			continue
		}
		target, ok := extractCanRuleValue(a, f, f.ID, f.IDWidth, rb.rule.CanSignal)
		if !ok {
			continue
		}
		joinGatewayTarget(report, rb, f.Ts, f.Channel, int(f.ID), target)
	}
}

// joinGatewayTarget performs the windowed nearest-neighbor join once a
// target-side observation arrives: it looks up the nearest buffered source
// sample and compares it against the target, choosing the comparison mode
// the same way original_source's compare_gateway_values does. When both
// sides' raw values are present in their respective value tables, the
// comparison is raw-to-raw and the rule's transform does not apply. When
// neither side has a table hit, the comparison is the rule's transformed
// physical value against the target's physical value. When exactly one side
// has a table hit, the two sides speak incompatible encodings and the join
// always reports a mismatch tagged EncodingMismatch.
func joinGatewayTarget(report *AnalysisReport, rb *ruleBuffer, targetTs float64, channel string, frameID int, target gwSample) {
	src, found := nearestSample(rb.samples, targetTs, rb.maxLatencyS)
	if !found {
		report.addFinding(Finding{
			Ts: targetTs, Channel: channel, Kind: NoLinSourceInWindow, FrameID: frameID,
			Message: fmt.Sprintf("no source sample within %.4fs for gateway rule %s/%s", rb.maxLatencyS, rb.rule.LinSignal, rb.rule.CanSignal),
		})
		return
	}
	rb.latency.Add(targetTs - src.ts)

	switch {
	case src.hasLogical && target.hasLogical:
		if src.raw != target.raw {
			report.addFinding(Finding{
				Ts: targetTs, Channel: channel, Kind: GatewayValueMismatch, FrameID: frameID,
				Message:  fmt.Sprintf("gateway raw value mismatch for %s/%s", rb.rule.LinSignal, rb.rule.CanSignal),
				Expected: float64(src.raw), Observed: float64(target.raw),
			})
		}
	case !src.hasLogical && !target.hasLogical:
		expected := applyTransform(rb.rule.Transform, src.physicalValue)
		tol := gatewayTolerance(expected)
		if math.Abs(target.physicalValue-expected) > tol {
			report.addFinding(Finding{
				Ts: targetTs, Channel: channel, Kind: GatewayValueMismatch, FrameID: frameID,
				Message:  fmt.Sprintf("gateway value mismatch for %s/%s", rb.rule.LinSignal, rb.rule.CanSignal),
				Expected: expected, Observed: target.physicalValue,
			})
		}
	default:
		expected := applyTransform(rb.rule.Transform, src.physicalValue)
		report.addFinding(Finding{
			Ts: targetTs, Channel: channel, Kind: GatewayValueMismatch, FrameID: frameID,
			Message:  fmt.Sprintf("gateway encoding mismatch for %s/%s", rb.rule.LinSignal, rb.rule.CanSignal),
			Expected: expected, Observed: target.physicalValue, Detail: "EncodingMismatch",
		})
	}
}

func (g *gatewayState) finish(report *AnalysisReport) {
	for _, rb := range g.linToCan {
		if rb.latency.Count() > 0 {
			report.SignalStatistics[fmt.Sprintf("$latency_%s_%s", rb.rule.LinSignal, rb.rule.CanSignal)] = rb.latency.Snapshot()
		}
	}
	for _, rb := range g.canToLin {
		if rb.latency.Count() > 0 {
			report.SignalStatistics[fmt.Sprintf("$latency_%s_%s", rb.rule.CanSignal, rb.rule.LinSignal)] = rb.latency.Snapshot()
		}
	}
}
