// Package model defines the closed data types that flow through the
// analytic core: log entries, LIN/CAN network descriptions, and the
// gateway map. Every type here is immutable once constructed; nothing in
// this package performs I/O.
package model

// ByteOrder is the bit-layout convention a signal uses within its payload.
type ByteOrder int

const (
	Intel     ByteOrder = iota // little-endian, LSB-numbered
	Motorola                   // big-endian, DBC convention, MSB-start
)

// MuxRoleKind tags how a signal participates in a multiplexed message.
type MuxRoleKind int

const (
	MuxNone MuxRoleKind = iota
	MuxSelector
	MuxMultiplexed
)

// MuxRole is a closed variant: None, Multiplexor, or Multiplexed(group).
type MuxRole struct {
	Kind    MuxRoleKind
	GroupID int // valid iff Kind == MuxMultiplexed
}

// ChecksumKind selects the LIN checksum algorithm for a frame.
type ChecksumKind int

const (
	Classic ChecksumKind = iota
	Enhanced
)

// Direction records which side of the bus emitted a frame.
type Direction int

const (
	Rx Direction = iota
	Tx
)

// LinFrame is one observed LIN frame.
type LinFrame struct {
	Ts            float64
	Channel       string
	PidByte       uint8
	Dlc           int
	Payload       []byte
	ChecksumByte  uint8
	Direction     Direction
	Timing        *PhysicalTiming // nil when the log carries no sub-frame timing
}

// CanFrame is one observed CAN or CAN-FD frame.
type CanFrame struct {
	Ts      float64
	Channel string
	ID      uint32
	IDWidth int // 11 or 29
	IsFD    bool
	BRS     bool
	Payload []byte
	Dlc     int
}

// NetworkEventKind enumerates the LIN bus-level diagnostic events a richer
// log line grammar can carry, beyond ordinary frames.
type NetworkEventKind int

const (
	SleepCommand NetworkEventKind = iota
	WakeupFrame
	UnexpectedWakeup
	ScheduleChangeRequest
	BusSpike
	TransmissionError
	ReceiveError
)

// NetworkEvent is a non-frame bus event (sleep/wake/error) used by the
// network-cycle tracker.
type NetworkEvent struct {
	Ts      float64
	Channel string
	Kind    NetworkEventKind
}

// PhysicalTiming carries sub-frame timing measurements for a LIN frame,
// present only when the upstream log records them.
type PhysicalTiming struct {
	BreakS              float64
	SyncS               float64
	SyncByte            byte // observed sync field value; meaningful only when HasSyncByte
	HasSyncByte         bool
	HeaderEndS          float64
	FrameEndS           float64
	ByteBoundariesS     []float64
	HeaderSyncOffsetS   float64
	ResponseSyncOffsetS float64
	HasHeaderSyncOffset bool
	HasResponseOffset   bool
}

// EntryKind tags which variant a LogEntry holds.
type EntryKind int

const (
	EntryLin EntryKind = iota
	EntryCan
	EntryEvent
)

// LogEntry is the tagged union the core consumes from its external log
// iterator: exactly one of Lin, Can, or Event is populated, selected by Kind.
type LogEntry struct {
	Kind  EntryKind
	Lin   *LinFrame
	Can   *CanFrame
	Event *NetworkEvent
}

func (e LogEntry) Timestamp() float64 {
	switch e.Kind {
	case EntryLin:
		return e.Lin.Ts
	case EntryCan:
		return e.Can.Ts
	case EntryEvent:
		return e.Event.Ts
	default:
		return 0
	}
}

// LinSignalEncodingKind is the closed variant tag for how a LIN signal's raw
// integer maps to a reported value (§3 SPEC_FULL supplement).
type LinSignalEncodingKind int

const (
	EncodingPhysical LinSignalEncodingKind = iota
	EncodingLogical
	EncodingHybrid
	EncodingByteArray
)

// LinSignalEncoding is a closed variant: Physical carries factor/offset/min/max,
// Logical carries a value table, Hybrid carries both, ByteArray carries neither.
type LinSignalEncoding struct {
	Kind      LinSignalEncodingKind
	Factor    float64
	Offset    float64
	HasRange  bool
	Min       float64
	Max       float64
	Table     map[int]string
}

// LdfSignal is one signal within a LIN frame.
type LdfSignal struct {
	Name      string
	StartBit  int
	Length    int
	Encoding  LinSignalEncoding
}

// LinFrameSpec describes one LIN frame as declared by the LDF.
type LinFrameSpec struct {
	FrameID      int
	Name         string
	Length       int
	ChecksumKind ChecksumKind
	Publisher    string
	Subscribers  []string
	Signals      []LdfSignal
	// ErrorSignal names a signal on this frame that the publisher sets
	// non-zero to indicate an internal fault, per node attributes in the LDF.
	ErrorSignal string
}

// ScheduleSlot is one entry in a schedule table: the frame to send, its
// nominal period, and its delay offset within the table.
type ScheduleSlot struct {
	FrameID  int
	PeriodS  float64
	DelayS   float64
}

// ScheduleTable is an ordered sequence of slots.
type ScheduleTable struct {
	Name  string
	Slots []ScheduleSlot
}

// LdfDescription is the parsed LIN cluster description the core consumes.
type LdfDescription struct {
	Frames        map[int]LinFrameSpec
	Schedule      ScheduleTable
	BitRateHz     float64
	MasterJitterS float64 // 0 when the LDF declares none
}

// DbcSignal is one signal within a CAN message.
type DbcSignal struct {
	Name      string
	StartBit  int
	Length    int
	ByteOrder ByteOrder
	Signed    bool
	Factor    float64
	Offset    float64
	HasRange  bool
	Min       float64
	Max       float64
	Unit      string
	Mux       MuxRole
	// ValueTable maps a raw integer to its symbolic label, parsed from a
	// VAL_ line. Nil when the signal has none, meaning it is compared in
	// physical space rather than by raw membership.
	ValueTable map[int]string
}

// CanMessage describes one CAN message as declared by the DBC.
type CanMessage struct {
	ID      uint32
	IDWidth int
	Name    string
	Length  int
	IsFD    bool
	Signals []DbcSignal
}

// DbcKey identifies a CAN message by arbitration ID and width, since the
// same numeric ID can mean different things as an 11-bit vs. 29-bit
// identifier.
type DbcKey struct {
	ID      uint32
	IDWidth int
}

// DbcDatabase is the parsed CAN database the core consumes.
type DbcDatabase struct {
	Messages map[DbcKey]CanMessage
}

// TransformKind is the closed variant tag for a gateway mapping's value
// transform.
type TransformKind int

const (
	Identity TransformKind = iota
	Linear
	Enum
)

// Transform converts a source-side physical or raw value into the value
// expected on the target side of a gateway mapping.
type Transform struct {
	Kind  TransformKind
	A, B  float64          // valid iff Kind == Linear: expected = A*value + B
	Table map[float64]float64 // valid iff Kind == Enum
}

// MapRule is one gateway mapping between a LIN signal and a CAN signal.
type MapRule struct {
	LinFrameID  int
	LinSignal   string
	CanID       uint32
	CanIDWidth  int
	CanSignal   string
	Transform   Transform
	MaxLatencyS float64 // 0 means "use the analyzer's configured default"
	// LinToCan is true when the rule maps LIN -> CAN; false for CAN -> LIN.
	LinToCan bool
}

// GatewayMap is the ordered list of mapping rules the gateway correlator
// evaluates.
type GatewayMap struct {
	Rules []MapRule
}
