// Package gatewaymap loads a gateway correlation map from JSON. The
// on-disk format names messages and signals rather than raw identifiers, so
// Load resolves every entry against the LDF and per-channel DBC databases
// it is handed before returning a model.GatewayMap of fully-numeric rules.
package gatewaymap

import (
	"encoding/json"
	"fmt"
	"os"

	"example.com/linspector/internal/model"
)

// jsonRule mirrors one gateway map entry on disk, following the same
// source_network/source_message/source_signal/target_* shape original
// deployments already use, plus an optional transform this implementation
// adds so a mapping can declare a scale/offset or an enum table instead of
// assuming the two sides always agree on encoding.
type jsonRule struct {
	SourceNetwork string  `json:"source_network"`
	SourceMessage string  `json:"source_message"`
	SourceSignal  string  `json:"source_signal"`
	TargetNetwork string  `json:"target_network"`
	TargetMessage string  `json:"target_message"`
	TargetSignal  string  `json:"target_signal"`
	MaxLatencyS   float64 `json:"max_latency_s"`
	Transform     *struct {
		Kind  string             `json:"kind"`
		A     float64            `json:"a"`
		B     float64            `json:"b"`
		Table map[string]float64 `json:"table"`
	} `json:"transform"`
}

func isLinNetwork(network string) bool {
	return network == "LIN"
}

// Load reads path and resolves every entry against ldf and dbcByChannel
// (one DbcDatabase per CAN/CAN-FD channel name, e.g. "CAN1", "CANFD2").
func Load(path string, ldf model.LdfDescription, dbcByChannel map[string]model.DbcDatabase) (model.GatewayMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.GatewayMap{}, fmt.Errorf("gatewaymap: reading %s: %w", path, err)
	}
	var raw []jsonRule
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.GatewayMap{}, fmt.Errorf("gatewaymap: parsing %s: %w", path, err)
	}

	var gw model.GatewayMap
	for i, r := range raw {
		rule, err := resolveRule(r, ldf, dbcByChannel)
		if err != nil {
			return model.GatewayMap{}, fmt.Errorf("gatewaymap: entry %d: %w", i, err)
		}
		gw.Rules = append(gw.Rules, rule)
	}
	return gw, nil
}

func resolveRule(r jsonRule, ldf model.LdfDescription, dbcByChannel map[string]model.DbcDatabase) (model.MapRule, error) {
	linToCan := isLinNetwork(r.SourceNetwork)
	if linToCan == isLinNetwork(r.TargetNetwork) {
		return model.MapRule{}, fmt.Errorf("source_network %q and target_network %q must be one LIN and one CAN/CAN-FD", r.SourceNetwork, r.TargetNetwork)
	}

	var linFrameID int
	var linSignal string
	var canID uint32
	var canIDWidth int
	var canSignal string

	if linToCan {
		frame, ok := findLinFrameByName(ldf, r.SourceMessage)
		if !ok {
			return model.MapRule{}, fmt.Errorf("LIN frame %q not found in description", r.SourceMessage)
		}
		linFrameID = frame.FrameID
		linSignal = r.SourceSignal
		msg, ok := findCanMessageByName(dbcByChannel, r.TargetNetwork, r.TargetMessage)
		if !ok {
			return model.MapRule{}, fmt.Errorf("CAN message %q not found on channel %q", r.TargetMessage, r.TargetNetwork)
		}
		canID, canIDWidth, canSignal = msg.ID, msg.IDWidth, r.TargetSignal
	} else {
		frame, ok := findLinFrameByName(ldf, r.TargetMessage)
		if !ok {
			return model.MapRule{}, fmt.Errorf("LIN frame %q not found in description", r.TargetMessage)
		}
		linFrameID = frame.FrameID
		linSignal = r.TargetSignal
		msg, ok := findCanMessageByName(dbcByChannel, r.SourceNetwork, r.SourceMessage)
		if !ok {
			return model.MapRule{}, fmt.Errorf("CAN message %q not found on channel %q", r.SourceMessage, r.SourceNetwork)
		}
		canID, canIDWidth, canSignal = msg.ID, msg.IDWidth, r.SourceSignal
	}

	transform, err := resolveTransform(r)
	if err != nil {
		return model.MapRule{}, err
	}

	return model.MapRule{
		LinFrameID:  linFrameID,
		LinSignal:   linSignal,
		CanID:       canID,
		CanIDWidth:  canIDWidth,
		CanSignal:   canSignal,
		Transform:   transform,
		MaxLatencyS: r.MaxLatencyS,
		LinToCan:    linToCan,
	}, nil
}

func resolveTransform(r jsonRule) (model.Transform, error) {
	if r.Transform == nil {
		return model.Transform{Kind: model.Identity}, nil
	}
	switch r.Transform.Kind {
	case "", "identity":
		return model.Transform{Kind: model.Identity}, nil
	case "linear":
		return model.Transform{Kind: model.Linear, A: r.Transform.A, B: r.Transform.B}, nil
	case "enum":
		table := make(map[float64]float64, len(r.Transform.Table))
		for k, v := range r.Transform.Table {
			var key float64
			if _, err := fmt.Sscanf(k, "%g", &key); err != nil {
				return model.Transform{}, fmt.Errorf("enum transform key %q is not numeric: %w", k, err)
			}
			table[key] = v
		}
		return model.Transform{Kind: model.Enum, Table: table}, nil
	default:
		return model.Transform{}, fmt.Errorf("unknown transform kind %q", r.Transform.Kind)
	}
}

func findLinFrameByName(ldf model.LdfDescription, name string) (model.LinFrameSpec, bool) {
	for _, spec := range ldf.Frames {
		if spec.Name == name {
			return spec, true
		}
	}
	return model.LinFrameSpec{}, false
}

func findCanMessageByName(dbcByChannel map[string]model.DbcDatabase, channel, name string) (model.CanMessage, bool) {
	db, ok := dbcByChannel[channel]
	if !ok {
		return model.CanMessage{}, false
	}
	for _, msg := range db.Messages {
		if msg.Name == name {
			return msg, true
		}
	}
	return model.CanMessage{}, false
}
