package dbc

import (
	"os"
	"path/filepath"
	"testing"

	"example.com/linspector/internal/model"
)

const sampleDBC = `VERSION ""

BU_: ECU Gateway

BO_ 256 EngineStatus: 8 ECU
 SG_ EngineSpeed : 0|16@1+ (0.25,0) [0|16000] "rpm" Gateway
 SG_ CoolantTemp : 16|8@1- (1,-40) [-40|215] "degC" Gateway

BO_ 512 MuxedDiag: 8 ECU
 SG_ DiagSelector M : 0|8@1+ (1,0) [0|255] "" Gateway
 SG_ DiagValueA m0 : 8|8@1+ (1,0) [0|255] "" Gateway
 SG_ DiagValueB m1 : 8|16@0- (0.1,0) [0|0] "V" Gateway
`

func writeDBC(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "net.dbc")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestParseStandardMessage(t *testing.T) {
	db, err := Parse(writeDBC(t, sampleDBC))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	key := model.DbcKey{ID: 256, IDWidth: 11}
	msg, ok := db.Messages[key]
	if !ok {
		t.Fatalf("message 256/11 not found, have %+v", db.Messages)
	}
	if msg.Name != "EngineStatus" || msg.Length != 8 {
		t.Fatalf("msg = %+v, want Name=EngineStatus Length=8", msg)
	}
	if len(msg.Signals) != 2 {
		t.Fatalf("len(Signals) = %d, want 2", len(msg.Signals))
	}
	speed := msg.Signals[0]
	if speed.Name != "EngineSpeed" || speed.StartBit != 0 || speed.Length != 16 {
		t.Fatalf("speed = %+v", speed)
	}
	if speed.ByteOrder != model.Intel || speed.Signed {
		t.Fatalf("speed order/signed = %v/%v, want Intel/false", speed.ByteOrder, speed.Signed)
	}
	if speed.Factor != 0.25 || speed.Offset != 0 {
		t.Fatalf("speed factor/offset = %v/%v, want 0.25/0", speed.Factor, speed.Offset)
	}
	if !speed.HasRange || speed.Min != 0 || speed.Max != 16000 {
		t.Fatalf("speed range = %v %v/%v, want true 0/16000", speed.HasRange, speed.Min, speed.Max)
	}

	temp := msg.Signals[1]
	if temp.Name != "CoolantTemp" || !temp.Signed || temp.Offset != -40 {
		t.Fatalf("temp = %+v", temp)
	}
}

func TestParseMultiplexedSignals(t *testing.T) {
	db, err := Parse(writeDBC(t, sampleDBC))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	msg := db.Messages[model.DbcKey{ID: 512, IDWidth: 11}]
	if len(msg.Signals) != 3 {
		t.Fatalf("len(Signals) = %d, want 3", len(msg.Signals))
	}
	selector, valueA, valueB := msg.Signals[0], msg.Signals[1], msg.Signals[2]
	if selector.Mux.Kind != model.MuxSelector {
		t.Fatalf("selector.Mux.Kind = %v, want MuxSelector", selector.Mux.Kind)
	}
	if valueA.Mux.Kind != model.MuxMultiplexed || valueA.Mux.GroupID != 0 {
		t.Fatalf("valueA.Mux = %+v, want Multiplexed(0)", valueA.Mux)
	}
	if valueB.Mux.Kind != model.MuxMultiplexed || valueB.Mux.GroupID != 1 {
		t.Fatalf("valueB.Mux = %+v, want Multiplexed(1)", valueB.Mux)
	}
	if valueB.ByteOrder != model.Motorola {
		t.Fatalf("valueB.ByteOrder = %v, want Motorola", valueB.ByteOrder)
	}
}

func TestCanonicalIDExtendedFlagBit(t *testing.T) {
	// Bit 31 set marks an extended (29-bit) arbitration ID per the .dbc convention.
	content := `BO_ 2147484000 ExtMsg: 8 ECU
 SG_ Value : 0|8@1+ (1,0) [0|0] "" Gateway
`
	db, err := Parse(writeDBC(t, content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	found := false
	for key := range db.Messages {
		if key.IDWidth == 29 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected one 29-bit extended message key")
	}
}

func TestCanonicalIDAboveStandardMaxIsExtended(t *testing.T) {
	content := `BO_ 3000 BigStdID: 8 ECU
 SG_ Value : 0|8@1+ (1,0) [0|0] "" Gateway
`
	db, err := Parse(writeDBC(t, content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for key := range db.Messages {
		if key.IDWidth != 29 {
			t.Fatalf("id above 0x7FF should canonicalize to 29-bit width, got %d", key.IDWidth)
		}
	}
}

func TestParseNoMessagesFails(t *testing.T) {
	if _, err := Parse(writeDBC(t, "VERSION \"\"\n\nBU_: ECU\n")); err == nil {
		t.Fatal("Parse with no BO_ definitions should fail")
	}
}

func TestParseAttachesValueTableToNamedSignal(t *testing.T) {
	content := `BO_ 300 GearStatus: 1 ECU
 SG_ Gear : 0|8@1+ (1,0) [0|0] "" Gateway

VAL_ 300 Gear 0 "Park" 1 "Reverse" 2 "Neutral" 3 "Drive" ;
`
	db, err := Parse(writeDBC(t, content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	msg := db.Messages[model.DbcKey{ID: 300, IDWidth: 11}]
	if len(msg.Signals) != 1 {
		t.Fatalf("len(Signals) = %d, want 1", len(msg.Signals))
	}
	table := msg.Signals[0].ValueTable
	if len(table) != 4 || table[3] != "Drive" {
		t.Fatalf("ValueTable = %+v, want 4 entries including 3=Drive", table)
	}
}

func TestParseIgnoresValTableAndUnmatchedValLines(t *testing.T) {
	content := `BO_ 300 GearStatus: 1 ECU
 SG_ Gear : 0|8@1+ (1,0) [0|0] "" Gateway

VAL_TABLE_ GearTable 0 "Park" 1 "Reverse" ;
VAL_ 999 Missing 0 "X" ;
`
	db, err := Parse(writeDBC(t, content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	msg := db.Messages[model.DbcKey{ID: 300, IDWidth: 11}]
	if msg.Signals[0].ValueTable != nil {
		t.Fatalf("ValueTable = %+v, want nil (VAL_TABLE_ and unknown-message VAL_ lines ignored)", msg.Signals[0].ValueTable)
	}
}

func TestParseSkipsSignalsBeforeAnyMessage(t *testing.T) {
	content := ` SG_ Orphan : 0|8@1+ (1,0) [0|0] "" Gateway

BO_ 100 RealMsg: 4 ECU
 SG_ Value : 0|8@1+ (1,0) [0|0] "" Gateway
`
	db, err := Parse(writeDBC(t, content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	msg := db.Messages[model.DbcKey{ID: 100, IDWidth: 11}]
	if len(msg.Signals) != 1 {
		t.Fatalf("len(Signals) = %d, want 1 (orphan signal before any BO_ dropped)", len(msg.Signals))
	}
}
