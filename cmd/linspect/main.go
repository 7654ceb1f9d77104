// Command linspect is the one-shot CLI entrypoint: it loads a LIN
// description, one or more CAN databases, an optional gateway correlation
// map, and a trace log, runs the analyzer, and renders the resulting report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"example.com/linspector/internal/analysis"
	"example.com/linspector/internal/common"
	"example.com/linspector/internal/dbc"
	"example.com/linspector/internal/gatewaymap"
	"example.com/linspector/internal/ldf"
	"example.com/linspector/internal/linconfig"
	"example.com/linspector/internal/linlog"
	"example.com/linspector/internal/model"
	"example.com/linspector/internal/report"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// dbcAssignment implements flag.Value for a repeatable --dbc CHANNEL=path
// flag, since an analyzer run may correlate against more than one CAN
// database (one per physical channel).
type dbcAssignment struct {
	values map[string]string
}

func (d *dbcAssignment) String() string {
	if d == nil || len(d.values) == 0 {
		return ""
	}
	parts := make([]string, 0, len(d.values))
	for k, v := range d.values {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (d *dbcAssignment) Set(s string) error {
	kv := strings.SplitN(s, "=", 2)
	if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
		return fmt.Errorf("expected CHANNEL=path.dbc, got %q", s)
	}
	if d.values == nil {
		d.values = make(map[string]string)
	}
	d.values[kv[0]] = kv[1]
	return nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `linspect %s (built %s)

Validates a LIN/CAN trace log against a LIN description and CAN databases,
reports protocol, timing, schedule, and gateway-correlation findings.

Usage: linspect --log trace.log --ldf net.ldf [--dbc CHANNEL=file.dbc]... [options]

`, version, buildDate)
	fs.PrintDefaults()
}

func loadConfig(path string) (linconfig.Config, error) {
	if path == "" {
		return linconfig.New()
	}
	return linconfig.LoadYAML(path)
}

func mergeDbc(byChannel map[string]model.DbcDatabase) model.DbcDatabase {
	merged := model.DbcDatabase{Messages: make(map[model.DbcKey]model.CanMessage)}
	for _, db := range byChannel {
		for key, msg := range db.Messages {
			merged.Messages[key] = msg
		}
	}
	return merged
}

// countingIterator wraps a linlog.Reader so progress/throughput metrics
// advance alongside the analyzer's own consumption of the log.
type countingIterator struct {
	r *linlog.Reader
	m *common.Metrics
}

func (c *countingIterator) Next() (model.LogEntry, error) {
	entry, err := c.r.Next()
	if err == nil && c.m != nil {
		c.m.AddLine()
		c.m.AddFrame()
	}
	return entry, err
}

func totalFindings(rep *analysis.AnalysisReport) int {
	return len(rep.FrameFindings) + len(rep.TimingFindings) + len(rep.PhysicalFindings) +
		len(rep.ScheduleFindings) + len(rep.GatewayFindings)
}

func run(args []string) int {
	fs := flag.NewFlagSet("linspect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	logPath := fs.String("log", "", "trace log file (required)")
	ldfPath := fs.String("ldf", "", "LIN description file (required)")
	var dbcFlags dbcAssignment
	fs.Var(&dbcFlags, "dbc", "CHANNEL=path.dbc, repeatable (e.g. --dbc CAN1=powertrain.dbc)")
	gatewayPath := fs.String("gateway-map", "", "gateway correlation map JSON")
	configPath := fs.String("config", "", "YAML configuration override")
	outNDJSON := fs.String("out-ndjson", "", "NDJSON report output path")
	outPDF := fs.String("out-pdf", "", "PDF report output path")
	outQR := fs.String("out-qr", "", "QR code PNG of the PDF report's hash (requires --out-pdf)")
	logFile := fs.String("log-file", "", "rotate operational logs to this file instead of stderr")
	metricsFlag := fs.Bool("metrics", false, "print throughput metrics on completion")
	progressFlag := fs.Bool("progress", false, "print a progress line while reading the log")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Printf("linspect %s (built %s)\n", version, buildDate)
		return 0
	}

	if *logFile != "" {
		linlog.SetOutput(&lumberjack.Logger{Filename: *logFile, MaxSize: 50, MaxBackups: 5, MaxAge: 28, Compress: true})
	}

	if *logPath == "" || *ldfPath == "" {
		fmt.Fprintln(os.Stderr, "required: --log and --ldf")
		fs.Usage()
		return 2
	}
	if *outQR != "" && *outPDF == "" {
		fmt.Fprintln(os.Stderr, "--out-qr requires --out-pdf")
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		linlog.Error("config: %v", err)
		return 2
	}

	description, err := ldf.Parse(*ldfPath)
	if err != nil {
		linlog.Error("ldf: %v", err)
		return 2
	}

	dbcByChannel := make(map[string]model.DbcDatabase)
	for channel, path := range dbcFlags.values {
		db, err := dbc.Parse(path)
		if err != nil {
			linlog.Error("dbc %s: %v", channel, err)
			return 2
		}
		dbcByChannel[channel] = db
	}

	var gw model.GatewayMap
	if *gatewayPath != "" {
		gw, err = gatewaymap.Load(*gatewayPath, description, dbcByChannel)
		if err != nil {
			linlog.Error("gateway map: %v", err)
			return 2
		}
	}

	analyzer, err := analysis.New(description, mergeDbc(dbcByChannel), gw, cfg)
	if err != nil {
		linlog.Error("analyzer: %v", err)
		return 2
	}

	reader, file, err := linlog.Open(*logPath)
	if err != nil {
		linlog.Error("log: %v", err)
		return 2
	}
	defer file.Close()

	var metrics *common.Metrics
	if *metricsFlag || *progressFlag {
		metrics = common.NewMetrics()
		metrics.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var stopProgress func()
	if metrics != nil && *progressFlag {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}

	rep, err := analyzer.Run(ctx, &countingIterator{r: reader, m: metrics})
	if stopProgress != nil {
		stopProgress()
	}
	if metrics != nil {
		metrics.Stop()
	}
	if err != nil {
		var ae *analysis.AnalysisError
		if errors.As(err, &ae) {
			linlog.Error("%s: %s", ae.Kind, ae.Message)
		} else {
			linlog.Error("analysis: %v", err)
		}
		return 2
	}

	if reader.SkippedLines() > 0 {
		linlog.Warn("skipped %d unrecognized log line(s)", reader.SkippedLines())
	}

	if *outNDJSON != "" {
		if err := report.SaveNDJSON(*outNDJSON, rep); err != nil {
			linlog.Error("ndjson: %v", err)
			return 2
		}
	}
	if *outPDF != "" {
		if err := report.SavePDF(rep, *outPDF); err != nil {
			linlog.Error("pdf: %v", err)
			return 2
		}
		if *outQR != "" {
			if _, err := report.SaveManifestQR(*outPDF, *outQR, 256); err != nil {
				linlog.Error("qr: %v", err)
				return 2
			}
		}
	}

	findings := totalFindings(rep)
	fmt.Printf("frames: lin=%d can=%d, findings=%d, truncated=%v\n", rep.TotalFramesLin, rep.TotalFramesCan, findings, rep.Truncated)
	if metrics != nil && *metricsFlag {
		snap := metrics.Snapshot()
		fmt.Printf("metrics: duration=%s lines=%d throughput=%.0f lines/s\n",
			snap.Duration.Round(10*time.Millisecond), snap.Lines, snap.ThroughputLinesPerSecond())
	}

	if findings > 0 {
		return 1
	}
	return 0
}
