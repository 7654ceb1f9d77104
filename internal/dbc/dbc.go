// Package dbc parses the CAN database (.dbc) textual format: BO_ message
// definitions and SG_ signal definitions, including multiplexed signals.
package dbc

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"example.com/linspector/internal/model"
)

const (
	extendedIDFlagBit31 = 0x80000000
	standardIDMax       = 0x7FF
	extendedIDMask29Bit = 0x1FFFFFFF
)

var (
	msgDefRe  = regexp.MustCompile(`^BO_\s+(\d+)\s+(\w+)\s*:\s*(\d+)\s+(\w+)`)
	sigRe     = regexp.MustCompile(`^SG_\s+(\w+)\s*(m\d+|M)?\s*:\s*(\d+)\|(\d+)@(\d)([+-])\s*\(([^,]+),([^)]+)\)\s*\[([^|]*)\|([^\]]*)\]\s*"([^"]*)"\s*(.*)$`)
	valDefRe  = regexp.MustCompile(`^VAL_\s+(\d+)\s+(\w+)\s+(.*?)\s*;\s*$`)
	valPairRe = regexp.MustCompile(`(-?\d+)\s+"([^"]*)"`)
)

// Parse reads and parses the DBC file at path.
func Parse(path string) (model.DbcDatabase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.DbcDatabase{}, fmt.Errorf("dbc: reading %s: %w", path, err)
	}
	return parseText(string(data))
}

func canonicalID(rawID int64) (id uint32, width int) {
	if rawID&extendedIDFlagBit31 != 0 {
		return uint32(rawID) & extendedIDMask29Bit, 29
	}
	if rawID > standardIDMax {
		return uint32(rawID) & extendedIDMask29Bit, 29
	}
	return uint32(rawID), 11
}

func parseText(content string) (model.DbcDatabase, error) {
	messages := make(map[model.DbcKey]model.CanMessage)
	var currentKey model.DbcKey
	haveCurrent := false

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if m := msgDefRe.FindStringSubmatch(line); m != nil {
			rawID, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				haveCurrent = false
				continue
			}
			dlc, err := strconv.Atoi(m[3])
			if err != nil {
				haveCurrent = false
				continue
			}
			id, width := canonicalID(rawID)
			key := model.DbcKey{ID: id, IDWidth: width}
			messages[key] = model.CanMessage{ID: id, IDWidth: width, Name: m[2], Length: dlc, IsFD: dlc > 8}
			currentKey, haveCurrent = key, true
			continue
		}
		if strings.HasPrefix(line, "SG_") && haveCurrent {
			if sig, ok := parseSignalLine(line); ok {
				msg := messages[currentKey]
				msg.Signals = append(msg.Signals, sig)
				messages[currentKey] = msg
			}
			continue
		}
		if strings.HasPrefix(line, "VAL_") {
			applyValueTable(messages, line)
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return model.DbcDatabase{}, fmt.Errorf("dbc: scanning: %w", err)
	}

	if len(messages) == 0 {
		return model.DbcDatabase{}, fmt.Errorf("dbc: no messages found")
	}
	return model.DbcDatabase{Messages: messages}, nil
}

// applyValueTable attaches a VAL_ line's raw-to-label table to the named
// signal on an already-parsed message. VAL_TABLE_ shared-table lines don't
// match valDefRe (no digit immediately follows VAL_) and are ignored.
func applyValueTable(messages map[model.DbcKey]model.CanMessage, line string) {
	m := valDefRe.FindStringSubmatch(line)
	if m == nil {
		return
	}
	rawID, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return
	}
	id, width := canonicalID(rawID)
	key := model.DbcKey{ID: id, IDWidth: width}
	msg, known := messages[key]
	if !known {
		return
	}
	table := make(map[int]string)
	for _, pair := range valPairRe.FindAllStringSubmatch(m[3], -1) {
		v, err := strconv.Atoi(pair[1])
		if err != nil {
			continue
		}
		table[v] = pair[2]
	}
	if len(table) == 0 {
		return
	}
	for i := range msg.Signals {
		if msg.Signals[i].Name == m[2] {
			msg.Signals[i].ValueTable = table
			messages[key] = msg
			return
		}
	}
}

func parseSignalLine(line string) (model.DbcSignal, bool) {
	m := sigRe.FindStringSubmatch(line)
	if m == nil {
		return model.DbcSignal{}, false
	}
	name, muxTok, startBitStr, lengthStr, byteOrderChar, signChar, factorStr, offsetStr, minStr, maxStr, unit := m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8], m[9], m[10], m[11]

	startBit, err := strconv.Atoi(startBitStr)
	if err != nil {
		return model.DbcSignal{}, false
	}
	length, err := strconv.Atoi(lengthStr)
	if err != nil {
		return model.DbcSignal{}, false
	}
	factor, err := strconv.ParseFloat(strings.TrimSpace(factorStr), 64)
	if err != nil {
		return model.DbcSignal{}, false
	}
	offset, err := strconv.ParseFloat(strings.TrimSpace(offsetStr), 64)
	if err != nil {
		return model.DbcSignal{}, false
	}

	order := model.Intel
	if byteOrderChar == "0" {
		order = model.Motorola
	}
	// The DBC format's start_bit already names the field's lowest bit index
	// for Intel signals and its most-significant bit position (in the
	// byte-swapped numbering this package's Motorola extractor expects) for
	// Motorola ones, so no further translation is needed here.

	sig := model.DbcSignal{
		Name: name, StartBit: startBit, Length: length,
		ByteOrder: order, Signed: signChar == "-",
		Factor: factor, Offset: offset, Unit: strings.TrimSpace(unit),
	}
	if lo, err1 := strconv.ParseFloat(strings.TrimSpace(minStr), 64); err1 == nil {
		if hi, err2 := strconv.ParseFloat(strings.TrimSpace(maxStr), 64); err2 == nil && (lo != 0 || hi != 0) {
			sig.HasRange, sig.Min, sig.Max = true, lo, hi
		}
	}
	sig.Mux = parseMuxIndicator(muxTok)
	return sig, true
}

func parseMuxIndicator(tok string) model.MuxRole {
	if tok == "" {
		return model.MuxRole{Kind: model.MuxNone}
	}
	if tok == "M" {
		return model.MuxRole{Kind: model.MuxSelector}
	}
	if strings.HasPrefix(strings.ToLower(tok), "m") {
		if v, err := strconv.Atoi(tok[1:]); err == nil {
			return model.MuxRole{Kind: model.MuxMultiplexed, GroupID: v}
		}
	}
	return model.MuxRole{Kind: model.MuxNone}
}

