package analysis

import (
	"context"
	"errors"
	"io"

	"example.com/linspector/internal/linconfig"
	"example.com/linspector/internal/model"
)

// EntryIterator is the sequential event source the analyzer consumes. Next
// returns io.EOF (wrapped or bare) when input is exhausted; any other error
// is treated as InputError and aborts analysis with no partial report.
type EntryIterator interface {
	Next() (model.LogEntry, error)
}

// Analyzer runs the full C2-C8 pipeline over one log against one LDF, one
// DBC database, and one gateway map. It is immutable after construction and
// safe to Run more than once (each Run gets its own report and internal
// state), so a single Analyzer can be reused across log files that share a
// description.
type Analyzer struct {
	ldf model.LdfDescription
	dbc model.DbcDatabase
	gw  model.GatewayMap
	cfg linconfig.Config
}

// New validates the supplied descriptions and configuration and returns a
// ready-to-run Analyzer. A malformed description (a LIN frame id or length
// out of range, a signal outside its payload, overlapping signals, or a
// schedule slot naming an undeclared frame or a non-positive period) or an
// invalid configuration is a hard failure at construction time, before any
// log is touched.
func New(ldf model.LdfDescription, dbc model.DbcDatabase, gw model.GatewayMap, cfg linconfig.Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, wrapFailure(ConfigError, err, "invalid configuration")
	}
	if err := validateLdf(ldf); err != nil {
		return nil, err
	}
	if err := validateDbc(dbc); err != nil {
		return nil, err
	}
	return &Analyzer{ldf: ldf, dbc: dbc, gw: gw, cfg: cfg}, nil
}

// validateLdf enforces the structural invariants an analyzer relies on:
// every signal's bit window fits within its frame's declared byte length,
// and no signal's bit window overlaps another's within the same frame.
func validateLdf(ldf model.LdfDescription) error {
	for id, spec := range ldf.Frames {
		if id < 0 || id > 63 {
			return newFailure(MalformedDescription, "LDF frame id %d outside [0,63]", id)
		}
		if spec.Length < 0 || spec.Length > 8 {
			return newFailure(MalformedDescription, "LDF frame 0x%02X declares illegal length %d", id, spec.Length)
		}
		occupied := make([]bool, spec.Length*8)
		for _, sig := range spec.Signals {
			if sig.Length <= 0 {
				continue
			}
			hi := sig.StartBit + sig.Length
			if sig.StartBit < 0 || hi > len(occupied) {
				return newFailure(MalformedDescription, "LDF signal %q on frame 0x%02X exceeds frame payload", sig.Name, id)
			}
			for b := sig.StartBit; b < hi; b++ {
				if occupied[b] {
					return newFailure(MalformedDescription, "LDF signal %q on frame 0x%02X overlaps another signal at bit %d", sig.Name, id, b)
				}
				occupied[b] = true
			}
		}
	}
	for _, slot := range ldf.Schedule.Slots {
		if _, ok := ldf.Frames[slot.FrameID]; !ok {
			return newFailure(MalformedDescription, "schedule table references undeclared frame id %d", slot.FrameID)
		}
		if slot.PeriodS <= 0 {
			return newFailure(MalformedDescription, "schedule slot for frame %d has non-positive period", slot.FrameID)
		}
	}
	return nil
}

// validateDbc enforces analogous invariants for CAN messages: signal bit
// windows fit within the message length and do not overlap unless they
// belong to distinct multiplexor groups.
func validateDbc(dbc model.DbcDatabase) error {
	for key, msg := range dbc.Messages {
		maxBits := msg.Length * 8
		type occupant struct {
			mux  model.MuxRole
			name string
		}
		var occupied [][]occupant
		occupied = make([][]occupant, maxBits)
		for _, sig := range msg.Signals {
			if sig.Length <= 0 {
				continue
			}
			hi := sig.StartBit + sig.Length
			if sig.StartBit < 0 || hi > maxBits {
				return newFailure(MalformedDescription, "DBC signal %q on message 0x%X exceeds message payload", sig.Name, key.ID)
			}
			for b := sig.StartBit; b < hi; b++ {
				for _, other := range occupied[b] {
					if sig.Mux.Kind != model.MuxMultiplexed || other.mux.Kind != model.MuxMultiplexed || sig.Mux.GroupID == other.mux.GroupID {
						return newFailure(MalformedDescription, "DBC signal %q on message 0x%X overlaps %q at bit %d", sig.Name, key.ID, other.name, b)
					}
				}
				occupied[b] = append(occupied[b], occupant{mux: sig.Mux, name: sig.Name})
			}
		}
	}
	return nil
}

// Run executes the full pipeline over it and returns the finalized report.
// A cancelled ctx causes Run to stop consuming input and return a report
// with Truncated set, per the specification's cancellation contract; it is
// not treated as a hard failure.
func (a *Analyzer) Run(ctx context.Context, it EntryIterator) (*AnalysisReport, error) {
	report := newReport()
	state := newRunState(a)

	for {
		select {
		case <-ctx.Done():
			state.markTruncated(report)
			report.Finalize()
			return report, nil
		default:
		}

		entry, err := it.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, wrapFailure(InputError, err, "reading log entry")
		}

		entry = state.normalize(report, entry)

		switch entry.Kind {
		case model.EntryLin:
			report.TotalFramesLin++
			state.handleLin(report, entry.Lin)
		case model.EntryCan:
			report.TotalFramesCan++
			state.handleCan(report, entry.Can)
		case model.EntryEvent:
			state.handleNetworkEvent(report, entry.Event)
		}
	}

	state.finish(report)
	report.Finalize()
	return report, nil
}
