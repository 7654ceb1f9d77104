package linlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"example.com/linspector/internal/model"
)

// The three primary line grammars recognized here are the canonical LIN /
// CAN / CAN-FD forms:
//
//	LIN:    <ts> <Rx|Tx> <channel> 0x<PID> <dlc> <byte>{dlc} [<checksum-byte>] [key=value...]
//	CAN:    <ts> <channel> 0x<ID> <Rx|Tx> d <dlc> <byte>{dlc} [key=value...]
//	CAN-FD: <ts> <channel> 0x<ID> <Rx|Tx> f <len> <byte>{len} [BRS] [key=value...]
//
// A LIN line's byte list may carry one byte beyond dlc: when it does, the
// trailing byte is the frame's transmitted checksum rather than payload,
// matching how the tools this format is drawn from always append the
// checksum after the data field. A line with exactly dlc bytes and no
// checksum byte parses with ChecksumByte left at zero, which the validator
// then reports as a checksum mismatch against any nonzero expected value.
//
// Any of the three forms may be followed by whitespace-separated key=value
// tokens carrying sub-frame physical timing (LIN only) or the CAN-FD
// bit-rate-switch flag: BREAK, SYNC, SYNCBYTE (the observed sync field,
// hex-encoded), HEADEREND, FRAMEEND, BYTES (a comma-separated list of
// byte-boundary timestamps), HSO, RSO.
var (
	linLineRe = regexp.MustCompile(`(?i)^([0-9.]+)\s+(Rx|Tx)\s+(\S+)\s+0x([0-9A-Fa-f]+)\s+(\d+)\s*((?:[0-9A-Fa-f]{2}\s*)*)(.*)$`)
	can2LineRe = regexp.MustCompile(`(?i)^([0-9.]+)\s+(\S+)\s+0x([0-9A-Fa-f]+)\s+(Rx|Tx)\s+d\s+(\d+)\s*((?:[0-9A-Fa-f]{2}\s*)*)(.*)$`)
	canfdLineRe = regexp.MustCompile(`(?i)^([0-9.]+)\s+(\S+)\s+0x([0-9A-Fa-f]+)\s+(Rx|Tx)\s+f\s+(\d+)\s*((?:[0-9A-Fa-f]{2}\s*)*)(.*)$`)

	sleepEventRe  = regexp.MustCompile(`(?i)^([0-9.]+)\s+Li\s+SleepModeEvent\b`)
	wakeupRe      = regexp.MustCompile(`(?i)^([0-9.]+)\s+Li\s+WakeupFrame\b`)
	unexpWakeupRe = regexp.MustCompile(`(?i)^([0-9.]+)\s+Li\s+Unexpected\s+wakeup\b`)
	schedChangeRe = regexp.MustCompile(`(?i)^([0-9.]+)\s+Li\s+SchedModChng\b`)
	spikeRe       = regexp.MustCompile(`(?i)^([0-9.]+)\s+Li\s+Spike\s+Rx\b`)
	transErrRe    = regexp.MustCompile(`(?i)^([0-9.]+)\s+Li\s+\S+\s+TransmErr\b`)
	rcvErrRe      = regexp.MustCompile(`(?i)^([0-9.]+)\s+Li\s+\S*\s*RcvError\b`)
)

// Reader implements analysis.EntryIterator over a line-oriented trace file.
// A line this package cannot classify is skipped and counted rather than
// treated as a hard failure, matching the analyzer's own non-fatal-findings
// philosophy: a garbled line is evidence about the capture, not a reason to
// abandon everything after it.
type Reader struct {
	scanner *bufio.Scanner
	lineNo  int
	skipped int
}

// NewReader wraps r for line-by-line parsing. The scanner's buffer is
// enlarged up front since some captures carry long CAN-FD payloads.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Reader{scanner: sc}
}

// Open opens path and returns a Reader plus the underlying file, which the
// caller is responsible for closing.
func Open(path string) (*Reader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("linlog: opening %s: %w", path, err)
	}
	return NewReader(f), f, nil
}

// SkippedLines reports how many lines Next has discarded so far because
// they matched none of the recognized grammars.
func (r *Reader) SkippedLines() int {
	return r.skipped
}

// LineNumber reports the 1-based number of the most recently consumed line.
func (r *Reader) LineNumber() int {
	return r.lineNo
}

func (r *Reader) Next() (model.LogEntry, error) {
	for r.scanner.Scan() {
		r.lineNo++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		entry, ok := parseLine(line)
		if !ok {
			r.skipped++
			continue
		}
		return entry, nil
	}
	if err := r.scanner.Err(); err != nil {
		return model.LogEntry{}, fmt.Errorf("linlog: reading line %d: %w", r.lineNo, err)
	}
	return model.LogEntry{}, io.EOF
}

func parseLine(line string) (model.LogEntry, bool) {
	if m := sleepEventRe.FindStringSubmatch(line); m != nil {
		return networkEventEntry(m[1], "LIN", model.SleepCommand)
	}
	if m := wakeupRe.FindStringSubmatch(line); m != nil {
		return networkEventEntry(m[1], "LIN", model.WakeupFrame)
	}
	if m := unexpWakeupRe.FindStringSubmatch(line); m != nil {
		return networkEventEntry(m[1], "LIN", model.UnexpectedWakeup)
	}
	if m := schedChangeRe.FindStringSubmatch(line); m != nil {
		return networkEventEntry(m[1], "LIN", model.ScheduleChangeRequest)
	}
	if m := spikeRe.FindStringSubmatch(line); m != nil {
		return networkEventEntry(m[1], "LIN", model.BusSpike)
	}
	if m := transErrRe.FindStringSubmatch(line); m != nil {
		return networkEventEntry(m[1], "LIN", model.TransmissionError)
	}
	if m := rcvErrRe.FindStringSubmatch(line); m != nil {
		return networkEventEntry(m[1], "LIN", model.ReceiveError)
	}
	if m := linLineRe.FindStringSubmatch(line); m != nil {
		return parseLinLine(m)
	}
	if m := canfdLineRe.FindStringSubmatch(line); m != nil {
		return parseCanLine(m, true)
	}
	if m := can2LineRe.FindStringSubmatch(line); m != nil {
		return parseCanLine(m, false)
	}
	return model.LogEntry{}, false
}

func networkEventEntry(tsStr, channel string, kind model.NetworkEventKind) (model.LogEntry, bool) {
	ts, err := strconv.ParseFloat(tsStr, 64)
	if err != nil {
		return model.LogEntry{}, false
	}
	return model.LogEntry{Kind: model.EntryEvent, Event: &model.NetworkEvent{Ts: ts, Channel: channel, Kind: kind}}, true
}

func parseHexBytes(field string) ([]byte, bool) {
	fields := strings.Fields(field)
	out := make([]byte, 0, len(fields))
	for _, tok := range fields {
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return nil, false
		}
		out = append(out, byte(v))
	}
	return out, true
}

// parseAnnotations splits the free-form trailing key=value tokens a line
// may carry after its fixed fields.
func parseAnnotations(tail string) map[string]string {
	out := make(map[string]string)
	for _, tok := range strings.Fields(tail) {
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) != 2 {
			out[strings.ToUpper(tok)] = ""
			continue
		}
		out[strings.ToUpper(kv[0])] = kv[1]
	}
	return out
}

func annotationFloat(ann map[string]string, key string) (float64, bool) {
	v, ok := ann[key]
	if !ok || v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func directionFrom(tok string) model.Direction {
	if strings.EqualFold(tok, "Tx") {
		return model.Tx
	}
	return model.Rx
}

func parseLinLine(m []string) (model.LogEntry, bool) {
	ts, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return model.LogEntry{}, false
	}
	dir := directionFrom(m[2])
	pid, err := strconv.ParseUint(m[4], 16, 8)
	if err != nil {
		return model.LogEntry{}, false
	}
	dlc, err := strconv.Atoi(m[5])
	if err != nil {
		return model.LogEntry{}, false
	}
	rawBytes, ok := parseHexBytes(m[6])
	if !ok {
		return model.LogEntry{}, false
	}

	var payload []byte
	var checksum byte
	switch {
	case len(rawBytes) == dlc+1:
		payload, checksum = rawBytes[:dlc], rawBytes[dlc]
	case len(rawBytes) == dlc:
		payload = rawBytes
	default:
		return model.LogEntry{}, false
	}

	ann := parseAnnotations(m[7])
	timing := buildTiming(ann)

	return model.LogEntry{Kind: model.EntryLin, Lin: &model.LinFrame{
		Ts:           ts,
		Channel:      "LIN",
		PidByte:      uint8(pid),
		Dlc:          dlc,
		Payload:      payload,
		ChecksumByte: checksum,
		Direction:    dir,
		Timing:       timing,
	}}, true
}

func buildTiming(ann map[string]string) *model.PhysicalTiming {
	if len(ann) == 0 {
		return nil
	}
	t := &model.PhysicalTiming{}
	have := false
	if v, ok := annotationFloat(ann, "BREAK"); ok {
		t.BreakS = v
		have = true
	}
	if v, ok := annotationFloat(ann, "SYNC"); ok {
		t.SyncS = v
		have = true
	}
	if raw, ok := ann["SYNCBYTE"]; ok && raw != "" {
		if v, err := strconv.ParseUint(raw, 16, 8); err == nil {
			t.SyncByte = byte(v)
			t.HasSyncByte = true
			have = true
		}
	}
	if v, ok := annotationFloat(ann, "HEADEREND"); ok {
		t.HeaderEndS = v
		have = true
	}
	if v, ok := annotationFloat(ann, "FRAMEEND"); ok {
		t.FrameEndS = v
		have = true
	}
	if v, ok := annotationFloat(ann, "HSO"); ok {
		t.HeaderSyncOffsetS = v
		t.HasHeaderSyncOffset = true
		have = true
	}
	if v, ok := annotationFloat(ann, "RSO"); ok {
		t.ResponseSyncOffsetS = v
		t.HasResponseOffset = true
		have = true
	}
	if raw, ok := ann["BYTES"]; ok && raw != "" {
		for _, tok := range strings.Split(raw, ",") {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				continue
			}
			t.ByteBoundariesS = append(t.ByteBoundariesS, v)
			have = true
		}
	}
	if !have {
		return nil
	}
	return t
}

func canonicalCanID(rawID uint64) (id uint32, width int) {
	const extendedMask = 0x1FFFFFFF
	if rawID > 0x7FF {
		return uint32(rawID) & extendedMask, 29
	}
	return uint32(rawID), 11
}

func parseCanLine(m []string, isFD bool) (model.LogEntry, bool) {
	ts, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return model.LogEntry{}, false
	}
	rawID, err := strconv.ParseUint(m[3], 16, 32)
	if err != nil {
		return model.LogEntry{}, false
	}
	dlc, err := strconv.Atoi(m[5])
	if err != nil {
		return model.LogEntry{}, false
	}
	payload, ok := parseHexBytes(m[6])
	if !ok {
		return model.LogEntry{}, false
	}

	id, width := canonicalCanID(rawID)
	ann := parseAnnotations(m[7])
	_, brs := ann["BRS"]

	channelPrefix := "CAN"
	if isFD {
		channelPrefix = "CANFD"
	}

	return model.LogEntry{Kind: model.EntryCan, Can: &model.CanFrame{
		Ts:      ts,
		Channel: channelPrefix + m[2],
		ID:      id,
		IDWidth: width,
		IsFD:    isFD,
		BRS:     isFD && brs,
		Payload: payload,
		Dlc:     dlc,
	}}, true
}
