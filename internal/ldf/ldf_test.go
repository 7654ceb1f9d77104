package ldf

import (
	"os"
	"path/filepath"
	"testing"

	"example.com/linspector/internal/model"
)

const sampleLDF = `
Nodes {
  Master: ECU, 5 ms, 0.1 ms;
  Slaves: DoorNode;
}

Signals {
  EngineSpeed: 16, ECU;
  DoorStatus: 8, DoorNode;
}

Signal_encoding_types {
  EngineSpeedEncoding {
    physical_value, 0, 65535, 0.05, 0, "rpm";
  }
}

Signal_representation {
  EngineSpeedEncoding: EngineSpeed;
}

Frames {
  EngineData: 0x10, ECU, 4 {
    EngineSpeed, 0;
  }
  DoorFrame: 0x21, DoorNode, 1 {
    DoorStatus, 0;
  }
}

Node_attributes {
  DoorNode {
    response_error = DoorStatus;
  }
}

Schedule_tables {
  Normal {
    EngineData delay 10 ms;
    DoorFrame delay 20 ms;
  }
}
`

func writeLDF(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "net.ldf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestParseFramesAndSignals(t *testing.T) {
	desc, err := Parse(writeLDF(t, sampleLDF))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(desc.Frames) != 2 {
		t.Fatalf("len(Frames) = %d, want 2", len(desc.Frames))
	}
	engine, ok := desc.Frames[0x10]
	if !ok {
		t.Fatal("frame 0x10 not found")
	}
	if engine.Name != "EngineData" {
		t.Fatalf("Name = %q, want EngineData", engine.Name)
	}
	if engine.Length != 4 {
		t.Fatalf("Length = %d, want 4", engine.Length)
	}
	if len(engine.Signals) != 1 || engine.Signals[0].Name != "EngineSpeed" {
		t.Fatalf("Signals = %+v, want one EngineSpeed signal", engine.Signals)
	}
	if engine.Signals[0].Encoding.Kind != model.EncodingPhysical {
		t.Fatalf("Encoding.Kind = %v, want EncodingPhysical", engine.Signals[0].Encoding.Kind)
	}
	if engine.Signals[0].Encoding.Factor != 0.05 {
		t.Fatalf("Encoding.Factor = %v, want 0.05", engine.Signals[0].Encoding.Factor)
	}
}

func TestParseOrdinaryFrameDefaultsToEnhanced(t *testing.T) {
	content := sampleLDF
	desc, err := Parse(writeLDF(t, content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// Neither declared frame is a diagnostic id and no publisher declares a
	// LIN protocol version, so the frames block applies Enhanced.
	if desc.Frames[0x10].ChecksumKind != model.Enhanced {
		t.Fatalf("ordinary frame ChecksumKind = %v, want Enhanced", desc.Frames[0x10].ChecksumKind)
	}
}

func TestParseFrameChecksumKindFollowsPublisherProtocolVersion(t *testing.T) {
	content := `
Nodes {
  Master: ECU, 5 ms;
  Slaves: LegacyNode, ModernNode;
}

Signals {
  LegacySignal: 8, LegacyNode;
  ModernSignal: 8, ModernNode;
}

Frames {
  LegacyFrame: 0x11, LegacyNode, 1 {
    LegacySignal, 0;
  }
  ModernFrame: 0x12, ModernNode, 1 {
    ModernSignal, 0;
  }
}

Node_attributes {
  LegacyNode {
    LIN_protocol = "1.3";
  }
  ModernNode {
    LIN_protocol = "2.1";
  }
}
`
	desc, err := Parse(writeLDF(t, content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if desc.Frames[0x11].ChecksumKind != model.Classic {
		t.Fatalf("LegacyFrame ChecksumKind = %v, want Classic (LIN_protocol 1.3)", desc.Frames[0x11].ChecksumKind)
	}
	if desc.Frames[0x12].ChecksumKind != model.Enhanced {
		t.Fatalf("ModernFrame ChecksumKind = %v, want Enhanced (LIN_protocol 2.1)", desc.Frames[0x12].ChecksumKind)
	}
}

func TestParseFrameChecksumKindDiagnosticIdsAlwaysClassicRegardlessOfProtocol(t *testing.T) {
	content := `
Nodes {
  Master: ECU, 5 ms;
  Slaves: ModernNode;
}

Signals {
  DiagSignal: 8, ModernNode;
}

Frames {
  DiagFrame: 60, ModernNode, 1 {
    DiagSignal, 0;
  }
}

Node_attributes {
  ModernNode {
    LIN_protocol = "2.1";
  }
}
`
	desc, err := Parse(writeLDF(t, content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if desc.Frames[60].ChecksumKind != model.Classic {
		t.Fatalf("diagnostic frame ChecksumKind = %v, want Classic even under LIN_protocol 2.1", desc.Frames[60].ChecksumKind)
	}
}

func TestParseNodeAttributesSetErrorSignal(t *testing.T) {
	desc, err := Parse(writeLDF(t, sampleLDF))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	door := desc.Frames[0x21]
	if door.ErrorSignal != "DoorStatus" {
		t.Fatalf("ErrorSignal = %q, want DoorStatus", door.ErrorSignal)
	}
}

func TestParseScheduleTableCumulativeDelays(t *testing.T) {
	desc, err := Parse(writeLDF(t, sampleLDF))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(desc.Schedule.Slots) != 2 {
		t.Fatalf("len(Slots) = %d, want 2", len(desc.Schedule.Slots))
	}
	if desc.Schedule.Slots[0].FrameID != 0x10 {
		t.Fatalf("Slots[0].FrameID = %#x, want 0x10", desc.Schedule.Slots[0].FrameID)
	}
	if desc.Schedule.Slots[0].DelayS != 0 {
		t.Fatalf("Slots[0].DelayS = %v, want 0", desc.Schedule.Slots[0].DelayS)
	}
	if desc.Schedule.Slots[1].DelayS != 0.010 {
		t.Fatalf("Slots[1].DelayS = %v, want 0.010", desc.Schedule.Slots[1].DelayS)
	}
	wantPeriod := 0.030
	if desc.Schedule.Slots[0].PeriodS != wantPeriod || desc.Schedule.Slots[1].PeriodS != wantPeriod {
		t.Fatalf("PeriodS = %v/%v, want %v", desc.Schedule.Slots[0].PeriodS, desc.Schedule.Slots[1].PeriodS, wantPeriod)
	}
}

func TestParseMasterJitter(t *testing.T) {
	desc, err := Parse(writeLDF(t, sampleLDF))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if desc.MasterJitterS != 0.0001 {
		t.Fatalf("MasterJitterS = %v, want 0.0001", desc.MasterJitterS)
	}
}

func TestParseMissingFramesBlockFails(t *testing.T) {
	broken := `
Nodes {
  Master: ECU, 5 ms;
  Slaves: DoorNode;
}
`
	if _, err := Parse(writeLDF(t, broken)); err == nil {
		t.Fatal("Parse should fail without a Frames block")
	}
}

func TestParseMissingNodesBlockFails(t *testing.T) {
	broken := `
Frames {
  EngineData: 0x10, ECU, 4 {
    EngineSpeed, 0;
  }
}
`
	if _, err := Parse(writeLDF(t, broken)); err == nil {
		t.Fatal("Parse should fail without a Nodes block")
	}
}
