// Package ldf parses a LIN Description File's textual grammar into a
// model.LdfDescription: node/master jitter, signal declarations, frame
// definitions, schedule tables, encoding types, and node error-signal
// attributes.
package ldf

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"example.com/linspector/internal/model"
)

var (
	masterNodeRe = regexp.MustCompile(`(?i)Master\s*:\s*(\w+)\s*,\s*([\d.,]+)\s*ms(?:\s*,\s*([\d.,]+)\s*ms)?`)
	slavesRe     = regexp.MustCompile(`(?i)Slaves\s*:\s*([^;]+);`)

	signalLineRe = regexp.MustCompile(`^(\w+)\s*:\s*(\d+)\s*,\s*([^,]+)\s*(?:,\s*(.*))?;?$`)

	frameDefRe = regexp.MustCompile(`(?is)(\w+)\s*:\s*(0x[0-9A-Fa-f]+|\d+)\s*,\s*(\w+)\s*,\s*(\d+)\s*\{(.*?)\}`)
	frameSigRe = regexp.MustCompile(`^\s*(\w+)\s*,\s*(\d+)\s*;?\s*$`)

	encodingChunkRe   = regexp.MustCompile(`(?is)(\w+)\s*\{(.*?)\}`)
	physicalValueRe   = regexp.MustCompile(`(?i)physical_value\s*,\s*(?:0\s*,\s*\d+\s*,\s*)?([\-\d.,eE]+)\s*,\s*([\-\d.,eE]+)(?:\s*,\s*"([^"]*)")?\s*;`)
	logicalValueRe    = regexp.MustCompile(`(?i)logical_value\s*,\s*(\d+)\s*,\s*"([^"]*)"\s*;`)
	minMaxRe          = regexp.MustCompile(`\[([\d.\-eE]+)\|([\d.\-eE]+)\]`)
	representationRe  = regexp.MustCompile(`(?i)^\s*(\w+)\s*:\s*(.+?);?\s*$`)
	scheduleTableDefRe = regexp.MustCompile(`(?is)(\w+)\s*\{(.*?)\}`)
	scheduleEntryRe   = regexp.MustCompile(`(?im)^\s*(\w+)\s+delay\s+([\d.,]+)\s*ms\s*;?`)
	nodeAttrNameRe    = regexp.MustCompile(`(?m)^\s*(\w+)\s*\{`)
	responseErrorRe   = regexp.MustCompile(`(?i)response_error\s*=\s*(\w+)\s*;`)
	protocolVersionRe = regexp.MustCompile(`(?i)LIN_protocol\s*=\s*"([^"]+)"\s*;`)
)

type baseSignal struct {
	length    int
	publisher string
}

// nodeAttrs is one node's Node_attributes body, parsed once and consulted
// both for the response-error signal and the protocol version that decides
// its published frames' checksum kind.
type nodeAttrs struct {
	errorSignal     string
	protocolVersion string // e.g. "1.3" or "2.1"; empty when undeclared
}

type encodingInfo struct {
	kind     model.LinSignalEncodingKind
	factor   float64
	offset   float64
	hasRange bool
	min, max float64
	table    map[int]string
}

// Parse reads and parses the LDF at path.
func Parse(path string) (model.LdfDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.LdfDescription{}, fmt.Errorf("ldf: reading %s: %w", path, err)
	}
	return parseText(string(data))
}

func parseText(content string) (model.LdfDescription, error) {
	nodesBlock, ok := extractBlock(content, "Nodes")
	if !ok {
		return model.LdfDescription{}, fmt.Errorf("ldf: Nodes block not found")
	}
	masterJitterS := 0.0
	slaveErrorSignal := make(map[string]string)
	if m := masterNodeRe.FindStringSubmatch(nodesBlock); m != nil {
		if m[3] != "" {
			if jitterMs, err := parseLocaleFloat(m[3]); err == nil {
				masterJitterS = jitterMs / 1000.0
			}
		}
	}

	signalsBlock, _ := extractBlock(content, "Signals")
	base := parseSignalsBlock(signalsBlock)

	encodingBlock, _ := extractBlock(content, "Signal_encoding_types")
	encodings := parseEncodingBlock(encodingBlock)

	reprBlock, _ := extractBlock(content, "Signal_representation")
	signalEncodingName := parseRepresentationBlock(reprBlock)

	attrsByNode := make(map[string]nodeAttrs)
	if nodeAttrBlock, ok := extractBlock(content, "Node_attributes"); ok {
		attrsByNode = parseNodeAttributes(nodeAttrBlock)
	}

	framesBlock, ok := extractBlock(content, "Frames")
	if !ok {
		return model.LdfDescription{}, fmt.Errorf("ldf: Frames block not found")
	}
	frames, err := parseFramesBlock(framesBlock, base, encodings, signalEncodingName, attrsByNode)
	if err != nil {
		return model.LdfDescription{}, err
	}
	if len(frames) == 0 {
		return model.LdfDescription{}, fmt.Errorf("ldf: no frames found")
	}

	for name, attrs := range attrsByNode {
		if attrs.errorSignal != "" {
			slaveErrorSignal[name] = attrs.errorSignal
		}
	}
	applyErrorSignals(frames, slaveErrorSignal)

	scheduleBlock, _ := extractBlock(content, "Schedule_tables")
	schedule := parseScheduleBlock(scheduleBlock, frames)

	return model.LdfDescription{
		Frames:        frames,
		Schedule:      schedule,
		MasterJitterS: masterJitterS,
	}, nil
}

// extractBlock finds `keyword {` and returns the brace-balanced text up to
// its matching close brace, mirroring the brace-depth scan a hand-rolled
// LDF reader needs since the format has no line-oriented block terminator.
func extractBlock(text, keyword string) (string, bool) {
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(keyword) + `\s*\{`)
	loc := re.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	idx := loc[1]
	depth := 1
	start := idx
	for idx < len(text) && depth > 0 {
		switch text[idx] {
		case '{':
			depth++
		case '}':
			depth--
		}
		idx++
	}
	if depth != 0 {
		return "", false
	}
	return text[start : idx-1], true
}

func parseLocaleFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
}

func parseSignalsBlock(block string) map[string]baseSignal {
	result := make(map[string]baseSignal)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		m := signalLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[1]
		length, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		publisher := strings.TrimSpace(m[3])
		result[name] = baseSignal{length: length, publisher: publisher}
	}
	return result
}

func parseEncodingBlock(block string) map[string]encodingInfo {
	result := make(map[string]encodingInfo)
	for _, chunk := range encodingChunkRe.FindAllStringSubmatch(block, -1) {
		name, body := chunk[1], chunk[2]
		info := encodingInfo{}
		hasPhysical := false
		if pm := physicalValueRe.FindStringSubmatch(body); pm != nil {
			factor, err1 := parseLocaleFloat(pm[1])
			offset, err2 := parseLocaleFloat(pm[2])
			if err1 == nil && err2 == nil {
				info.factor, info.offset = factor, offset
				hasPhysical = true
				if mm := minMaxRe.FindStringSubmatch(body); mm != nil {
					if lo, err := parseLocaleFloat(mm[1]); err == nil {
						if hi, err2 := parseLocaleFloat(mm[2]); err2 == nil {
							info.hasRange, info.min, info.max = true, lo, hi
						}
					}
				}
			}
		}
		logicalEntries := logicalValueRe.FindAllStringSubmatch(body, -1)
		hasLogical := len(logicalEntries) > 0
		if hasLogical {
			info.table = make(map[int]string, len(logicalEntries))
			for _, le := range logicalEntries {
				if v, err := strconv.Atoi(le[1]); err == nil {
					info.table[v] = le[2]
				}
			}
		}
		switch {
		case hasPhysical && hasLogical:
			info.kind = model.EncodingHybrid
		case hasLogical:
			info.kind = model.EncodingLogical
		case hasPhysical:
			info.kind = model.EncodingPhysical
		default:
			info.kind = model.EncodingByteArray
		}
		result[name] = info
	}
	return result
}

func parseRepresentationBlock(block string) map[string]string {
	signalToEncoding := make(map[string]string)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := representationRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		encodingName := m[1]
		for _, sigName := range strings.Split(strings.TrimRight(m[2], ";"), ",") {
			sigName = strings.TrimSpace(sigName)
			if sigName != "" {
				signalToEncoding[sigName] = encodingName
			}
		}
	}
	return signalToEncoding
}

func parseFramesBlock(block string, base map[string]baseSignal, encodings map[string]encodingInfo, signalEncodingName map[string]string, attrsByNode map[string]nodeAttrs) (map[int]model.LinFrameSpec, error) {
	frames := make(map[int]model.LinFrameSpec)
	for _, m := range frameDefRe.FindAllStringSubmatch(block, -1) {
		fname, idStr, publisher, dlcStr, sigsText := m[1], m[2], m[3], m[4], m[5]
		id, err := strconv.ParseInt(idStr, 0, 32)
		if err != nil {
			continue
		}
		dlc, err := strconv.Atoi(dlcStr)
		if err != nil {
			continue
		}
		var signals []model.LdfSignal
		for _, sigLine := range strings.Split(sigsText, "\n") {
			sm := frameSigRe.FindStringSubmatch(sigLine)
			if sm == nil {
				continue
			}
			sigName := sm[1]
			startBit, err := strconv.Atoi(sm[2])
			if err != nil {
				continue
			}
			bs, known := base[sigName]
			if !known {
				continue
			}
			encName := signalEncodingName[sigName]
			enc := encodings[encName]
			signals = append(signals, model.LdfSignal{
				Name:     sigName,
				StartBit: startBit,
				Length:   bs.length,
				Encoding: model.LinSignalEncoding{
					Kind: enc.kind, Factor: enc.factor, Offset: enc.offset,
					HasRange: enc.hasRange, Min: enc.min, Max: enc.max, Table: enc.table,
				},
			})
		}
		frames[int(id)] = model.LinFrameSpec{
			FrameID:      int(id),
			Name:         fname,
			Length:       dlc,
			ChecksumKind: checksumKindForFrame(int(id), attrsByNode[publisher].protocolVersion),
			Publisher:    publisher,
			Signals:      signals,
		}
	}
	return frames, nil
}

// checksumKindForFrame resolves a frame's checksum model from its publisher
// node's declared LIN_protocol version, per §4.3 step 4 ("kind from LDF").
// Diagnostic ids 60/61 are always Classic regardless of protocol version.
// A LIN 1.x node has no enhanced-checksum capability, so every frame it
// publishes uses Classic; 2.x nodes (and nodes with no declared protocol,
// the common case for hand-authored LDFs that omit the attribute) default
// to Enhanced.
func checksumKindForFrame(id int, protocolVersion string) model.ChecksumKind {
	if id == 60 || id == 61 {
		return model.Classic
	}
	if strings.HasPrefix(strings.TrimSpace(protocolVersion), "1") {
		return model.Classic
	}
	return model.Enhanced
}

func parseNodeAttributes(block string) map[string]nodeAttrs {
	result := make(map[string]nodeAttrs)
	names := nodeAttrNameRe.FindAllStringSubmatchIndex(block, -1)
	for i, loc := range names {
		nameStart, nameEnd := loc[2], loc[3]
		bodyStart := loc[1]
		bodyEnd := len(block)
		if i+1 < len(names) {
			bodyEnd = names[i+1][0]
		}
		name := block[nameStart:nameEnd]
		body := block[bodyStart:bodyEnd]
		var attrs nodeAttrs
		if m := responseErrorRe.FindStringSubmatch(body); m != nil {
			attrs.errorSignal = m[1]
		}
		if m := protocolVersionRe.FindStringSubmatch(body); m != nil {
			attrs.protocolVersion = m[1]
		}
		result[name] = attrs
	}
	return result
}

func applyErrorSignals(frames map[int]model.LinFrameSpec, slaveErrorSignal map[string]string) {
	for id, spec := range frames {
		if sig, ok := slaveErrorSignal[spec.Publisher]; ok {
			spec.ErrorSignal = sig
			frames[id] = spec
		}
	}
}

func parseScheduleBlock(block string, frames map[int]model.LinFrameSpec) model.ScheduleTable {
	nameByFrameName := make(map[string]int, len(frames))
	for id, spec := range frames {
		nameByFrameName[spec.Name] = id
	}
	var table model.ScheduleTable
	for _, m := range scheduleTableDefRe.FindAllStringSubmatch(block, -1) {
		sname, body := m[1], m[2]
		var slots []model.ScheduleSlot
		var cumulativeS float64
		for _, em := range scheduleEntryRe.FindAllStringSubmatch(body, -1) {
			frameName, delayMsStr := em[1], em[2]
			frameID, known := nameByFrameName[frameName]
			if !known {
				continue
			}
			delayMs, err := parseLocaleFloat(delayMsStr)
			if err != nil {
				continue
			}
			delayS := delayMs / 1000.0
			slots = append(slots, model.ScheduleSlot{FrameID: frameID, DelayS: cumulativeS})
			cumulativeS += delayS
		}
		if len(slots) == 0 {
			continue
		}
		for i := range slots {
			slots[i].PeriodS = cumulativeS
		}
		if table.Name == "" {
			table = model.ScheduleTable{Name: sname, Slots: slots}
		} else {
			table.Slots = append(table.Slots, slots...)
		}
	}
	return table
}
