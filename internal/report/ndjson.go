// Package report renders a finished analysis.AnalysisReport as
// newline-delimited JSON, a PDF summary document, or a QR-encoded manifest
// hash for pairing a printed report with its digital artifact.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"example.com/linspector/internal/analysis"
	"example.com/linspector/internal/stats"
)

// ndjsonRecord is one line of NDJSON output. A "summary" record always
// comes first, followed by the per-signal "statistics" records, the
// "bus_load" series records, and finally one "finding" record per finding.
type ndjsonRecord struct {
	Type      string             `json:"type"`
	Component string             `json:"component,omitempty"`
	Summary   *summaryPayload    `json:"summary,omitempty"`
	Signal    string             `json:"signal,omitempty"`
	Stats     *stats.Snapshot    `json:"stats,omitempty"`
	BusLoad   *analysis.BusLoadPoint `json:"bus_load,omitempty"`
	Finding   *analysis.Finding  `json:"finding,omitempty"`
}

type summaryPayload struct {
	TotalFramesLin   int                          `json:"total_frames_lin"`
	TotalFramesCan   int                          `json:"total_frames_can"`
	Truncated        bool                         `json:"truncated"`
	ErrorCountByKind map[analysis.Kind]int        `json:"error_count_by_kind"`
	NetworkCycles    analysis.NetworkCycleSummary `json:"network_cycles"`
	SlaveReliability map[string]analysis.SlaveReliabilityEntry `json:"slave_reliability"`
}

type componentGroup struct {
	name     string
	findings []analysis.Finding
}

// components lists the report's finding groups in the same fixed order
// AnalysisReport keeps them; each group is already sorted by (timestamp,
// kind, sequence) by Finalize, so this order is what makes two identical
// input logs produce byte-identical NDJSON output.
func components(rep *analysis.AnalysisReport) []componentGroup {
	return []componentGroup{
		{"frame", rep.FrameFindings},
		{"timing", rep.TimingFindings},
		{"physical", rep.PhysicalFindings},
		{"schedule", rep.ScheduleFindings},
		{"gateway", rep.GatewayFindings},
	}
}

// WriteNDJSON streams rep to w as newline-delimited JSON.
func WriteNDJSON(w io.Writer, rep *analysis.AnalysisReport) error {
	enc := json.NewEncoder(w)
	summary := ndjsonRecord{Type: "summary", Summary: &summaryPayload{
		TotalFramesLin:   rep.TotalFramesLin,
		TotalFramesCan:   rep.TotalFramesCan,
		Truncated:        rep.Truncated,
		ErrorCountByKind: rep.ErrorCountByKind,
		NetworkCycles:    rep.NetworkCycles,
		SlaveReliability: rep.SlaveReliability,
	}}
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: writing summary record: %w", err)
	}

	signalNames := make([]string, 0, len(rep.SignalStatistics))
	for name := range rep.SignalStatistics {
		signalNames = append(signalNames, name)
	}
	sort.Strings(signalNames)
	for _, name := range signalNames {
		snap := rep.SignalStatistics[name]
		rec := ndjsonRecord{Type: "statistics", Signal: name, Stats: &snap}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("report: writing statistics record for %q: %w", name, err)
		}
	}

	for i := range rep.BusLoadSeries {
		point := rep.BusLoadSeries[i]
		rec := ndjsonRecord{Type: "bus_load", BusLoad: &point}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("report: writing bus_load record: %w", err)
		}
	}

	for _, group := range components(rep) {
		for i := range group.findings {
			f := group.findings[i]
			rec := ndjsonRecord{Type: "finding", Component: group.name, Finding: &f}
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("report: writing %s finding: %w", group.name, err)
			}
		}
	}
	return nil
}

// SaveNDJSON writes rep as NDJSON to a new file at path.
func SaveNDJSON(path string, rep *analysis.AnalysisReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: creating %s: %w", path, err)
	}
	defer f.Close()
	return WriteNDJSON(f, rep)
}
