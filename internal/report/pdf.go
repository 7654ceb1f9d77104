package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"example.com/linspector/internal/analysis"
)

// SavePDF renders rep into a PDF document at out: a summary page, a
// per-component finding-count table, and a findings appendix.
func SavePDF(rep *analysis.AnalysisReport, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("LIN/CAN Trace Analysis Report", false)
	pdf.SetAuthor("linspect", false)
	pdf.SetCreator("linspect", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "LIN/CAN Trace Analysis Report")
	addSummarySection(pdf, rep)
	addComponentTable(pdf, rep)
	addStatisticsSection(pdf, rep)
	addFindingsSection(pdf, rep)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func totalFindings(rep *analysis.AnalysisReport) int {
	total := 0
	for _, group := range components(rep) {
		total += len(group.findings)
	}
	return total
}

func addSummarySection(pdf *gofpdf.Fpdf, rep *analysis.AnalysisReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct{ label, value string }{
		{"LIN frames observed", strconv.Itoa(rep.TotalFramesLin)},
		{"CAN frames observed", strconv.Itoa(rep.TotalFramesCan)},
		{"Total findings", strconv.Itoa(totalFindings(rep))},
		{"Overall", passLabel(totalFindings(rep) == 0 && !rep.Truncated)},
		{"Truncated input", strconv.FormatBool(rep.Truncated)},
		{"Network cycles completed", strconv.Itoa(rep.NetworkCycles.CyclesCompleted)},
		{"Network cycles incomplete", strconv.Itoa(rep.NetworkCycles.CyclesIncomplete)},
		{"Cycles with no master response", strconv.Itoa(rep.NetworkCycles.CyclesNoMasterResponse)},
	}
	for _, item := range items {
		pdf.CellFormat(65, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addComponentTable(pdf *gofpdf.Fpdf, rep *analysis.AnalysisReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Findings by component")
	pdf.Ln(9)

	headers := []string{"Component", "Findings"}
	widths := []float64{100, 30}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, group := range components(rep) {
		pdf.CellFormat(widths[0], 6, capitalize(group.name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, strconv.Itoa(len(group.findings)), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

// addStatisticsSection renders the Welford per-signal statistics ($hso,
// $rso, $latency_*, and any gateway/signal entries) and the CAN bus-load
// series. Empty tables are skipped rather than printed with zero rows.
func addStatisticsSection(pdf *gofpdf.Fpdf, rep *analysis.AnalysisReport) {
	if len(rep.SignalStatistics) > 0 {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, "Signal statistics")
		pdf.Ln(9)

		headers := []string{"Signal", "Count", "Mean", "Stddev", "Min", "Max"}
		widths := []float64{55, 20, 25, 25, 25, 25}
		pdf.SetFillColor(240, 240, 240)
		pdf.SetFont("Helvetica", "B", 10)
		for i, h := range headers {
			pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)

		names := make([]string, 0, len(rep.SignalStatistics))
		for name := range rep.SignalStatistics {
			names = append(names, name)
		}
		sort.Strings(names)

		pdf.SetFont("Helvetica", "", 9)
		for _, name := range names {
			snap := rep.SignalStatistics[name]
			pdf.CellFormat(widths[0], 6, name, "1", 0, "L", false, 0, "")
			pdf.CellFormat(widths[1], 6, strconv.FormatInt(snap.Count, 10), "1", 0, "L", false, 0, "")
			pdf.CellFormat(widths[2], 6, fmt.Sprintf("%.6f", snap.Mean), "1", 0, "L", false, 0, "")
			pdf.CellFormat(widths[3], 6, fmt.Sprintf("%.6f", snap.Stddev), "1", 0, "L", false, 0, "")
			pdf.CellFormat(widths[4], 6, fmt.Sprintf("%.6f", snap.Min), "1", 0, "L", false, 0, "")
			pdf.CellFormat(widths[5], 6, fmt.Sprintf("%.6f", snap.Max), "1", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
	}

	if len(rep.BusLoadSeries) > 0 {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, "CAN bus load")
		pdf.Ln(9)

		headers := []string{"Window start (s)", "Load (bits/s)"}
		widths := []float64{60, 60}
		pdf.SetFillColor(240, 240, 240)
		pdf.SetFont("Helvetica", "B", 10)
		for i, h := range headers {
			pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Helvetica", "", 9)
		for _, point := range rep.BusLoadSeries {
			pdf.CellFormat(widths[0], 6, fmt.Sprintf("%.6f", point.WindowStartS), "1", 0, "L", false, 0, "")
			pdf.CellFormat(widths[1], 6, fmt.Sprintf("%.2f", point.LoadRatio), "1", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
	}
}

func addFindingsSection(pdf *gofpdf.Fpdf, rep *analysis.AnalysisReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Findings")
	pdf.Ln(9)

	if totalFindings(rep) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No findings recorded.", "", "L", false)
		return
	}

	n := 0
	for _, group := range components(rep) {
		for _, f := range group.findings {
			n++
			pdf.SetFont("Helvetica", "B", 10)
			header := fmt.Sprintf("%d. %s (%s)", n, f.Kind, group.name)
			pdf.MultiCell(0, 5, header, "", "L", false)

			if msg := strings.TrimSpace(f.Message); msg != "" {
				pdf.SetFont("Helvetica", "", 10)
				pdf.MultiCell(0, 5, msg, "", "L", false)
			}

			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, findingMetadata(f), "", "L", false)
			pdf.Ln(2)
		}
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func passLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

func findingMetadata(f analysis.Finding) string {
	parts := make([]string, 0, 6)
	parts = append(parts, fmt.Sprintf("t=%.6fs", f.Ts))
	if f.Channel != "" {
		parts = append(parts, "channel "+f.Channel)
	}
	if f.FrameID >= 0 {
		parts = append(parts, fmt.Sprintf("id %d", f.FrameID))
	}
	if f.Expected != 0 || f.Observed != 0 {
		parts = append(parts, fmt.Sprintf("expected=%.6f observed=%.6f", f.Expected, f.Observed))
	}
	if f.ExpectedByte != 0 || f.ObservedByte != 0 {
		parts = append(parts, fmt.Sprintf("expected=0x%02X observed=0x%02X", f.ExpectedByte, f.ObservedByte))
	}
	if f.Detail != "" {
		parts = append(parts, f.Detail)
	}
	return strings.Join(parts, "  |  ")
}
