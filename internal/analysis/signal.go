package analysis

import (
	"fmt"

	"example.com/linspector/internal/bitops"
	"example.com/linspector/internal/model"
	"example.com/linspector/internal/stats"
)

func (s *runState) signalAccumulator(name string) *stats.Online {
	acc := s.signalStats[name]
	if acc == nil {
		acc = stats.NewOnline()
		s.signalStats[name] = acc
	}
	return acc
}

// resolveLinValue applies the LinSignalEncoding closed variant to a raw
// extracted integer, returning the value to accumulate/report and whether
// it should be range-checked against the encoding's declared bounds.
func resolveLinValue(enc model.LinSignalEncoding, raw int64) (value float64, checkRange bool) {
	switch enc.Kind {
	case model.EncodingPhysical:
		return bitops.PhysicalValue(raw, enc.Factor, enc.Offset), enc.HasRange
	case model.EncodingLogical:
		return float64(raw), false
	case model.EncodingHybrid:
		if _, defined := enc.Table[int(raw)]; defined {
			return float64(raw), false
		}
		return bitops.PhysicalValue(raw, enc.Factor, enc.Offset), enc.HasRange
	case model.EncodingByteArray:
		return float64(raw), false
	default:
		return float64(raw), false
	}
}

// extractLinSignals implements C6 for one LIN frame: every signal the LDF
// declares for this frame id is decoded with the Intel bit layout LIN uses,
// resolved through its LinSignalEncoding variant, and folded into that
// signal's running statistics.
func extractLinSignals(s *runState, report *AnalysisReport, f *model.LinFrame) {
	unprotectedID := int(f.PidByte & 0x3F)
	spec, known := s.a.ldf.Frames[unprotectedID]
	if !known {
		return
	}
	for _, sig := range spec.Signals {
		raw, ok := bitops.ExtractBits(f.Payload, sig.StartBit, sig.Length, model.Intel, false)
		if !ok {
			report.addFinding(Finding{
				Ts: f.Ts, Channel: f.Channel, Kind: SignalFieldOutOfPayload, FrameID: unprotectedID,
				Message: fmt.Sprintf("signal %q exceeds frame %q's payload", sig.Name, spec.Name),
			})
			continue
		}

		value, checkRange := resolveLinValue(sig.Encoding, raw)
		s.signalAccumulator(sig.Name).Add(value)

		if sig.Encoding.Kind == model.EncodingLogical && sig.Encoding.Table != nil {
			if _, defined := sig.Encoding.Table[int(raw)]; !defined {
				report.addFinding(Finding{
					Ts: f.Ts, Channel: f.Channel, Kind: SignalOutOfRange, FrameID: unprotectedID,
					Message:  fmt.Sprintf("signal %q value %d has no entry in its value table", sig.Name, raw),
					Observed: float64(raw),
				})
			}
			continue
		}
		if checkRange && (value < sig.Encoding.Min || value > sig.Encoding.Max) {
			report.addFinding(Finding{
				Ts: f.Ts, Channel: f.Channel, Kind: SignalOutOfRange, FrameID: unprotectedID,
				Message:  fmt.Sprintf("signal %q value %.4f outside [%.4f, %.4f]", sig.Name, value, sig.Encoding.Min, sig.Encoding.Max),
				Expected: sig.Encoding.Min, Observed: value,
			})
		}
	}
}

// extractCanSignals implements C6 for one CAN frame: the multiplexor
// selector, if any, is decoded first so multiplexed groups can be filtered
// to the ones actually active in this frame.
func extractCanSignals(s *runState, report *AnalysisReport, f *model.CanFrame) {
	key := model.DbcKey{ID: f.ID, IDWidth: f.IDWidth}
	msg, known := s.a.dbc.Messages[key]
	if !known {
		return
	}

	var selectorValue int64
	haveSelector := false
	for _, sig := range msg.Signals {
		if sig.Mux.Kind != model.MuxSelector {
			continue
		}
		raw, ok := bitops.ExtractBits(f.Payload, sig.StartBit, sig.Length, sig.ByteOrder, sig.Signed)
		if ok {
			selectorValue = raw
			haveSelector = true
		}
	}

	for _, sig := range msg.Signals {
		if sig.Mux.Kind == model.MuxMultiplexed {
			if !haveSelector || selectorValue != int64(sig.Mux.GroupID) {
				continue
			}
		}
		raw, ok := bitops.ExtractBits(f.Payload, sig.StartBit, sig.Length, sig.ByteOrder, sig.Signed)
		if !ok {
			report.addFinding(Finding{
				Ts: f.Ts, Channel: f.Channel, Kind: SignalFieldOutOfPayload, FrameID: int(f.ID),
				Message: fmt.Sprintf("signal %q exceeds message %q's payload", sig.Name, msg.Name),
			})
			continue
		}
		value := bitops.PhysicalValue(raw, sig.Factor, sig.Offset)
		s.signalAccumulator(sig.Name).Add(value)
		if sig.HasRange && (value < sig.Min || value > sig.Max) {
			report.addFinding(Finding{
				Ts: f.Ts, Channel: f.Channel, Kind: SignalOutOfRange, FrameID: int(f.ID),
				Message:  fmt.Sprintf("signal %q value %.4f outside [%.4f, %.4f]", sig.Name, value, sig.Min, sig.Max),
				Expected: sig.Min, Observed: value,
			})
		}
	}
}
