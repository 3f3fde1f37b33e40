// Package pmutypes holds the value types shared by every layer of this
// module — the Event Catalog, Per-fd Event, Event List, Ring-Buffer
// Reader, Symbol Resolver, and the public pmu package all describe events,
// samples, and symbols with these same structs. Keeping them in a leaf
// package (one with no dependencies on the rest of the module) lets the
// internal subsystems and the public pmu package share a vocabulary
// without an import cycle: pmu re-exports every name here as a type alias,
// so callers of the public API never see this package's import path.
package pmutypes

// TaskType selects one of the three measurement modes spec.md section 1
// describes.
type TaskType int

const (
	// Counting reads accumulated event counters on a schedule.
	Counting TaskType = iota
	// Sampling captures call stacks at a period/frequency via the ring buffer.
	Sampling
	// SpeSampling uses the ARM Statistical Profiling Extension.
	SpeSampling
)

func (t TaskType) String() string {
	switch t {
	case Counting:
		return "counting"
	case Sampling:
		return "sampling"
	case SpeSampling:
		return "spe-sampling"
	default:
		return "unknown-task-type"
	}
}

// EventKind is the dispatch tag the Event Catalog (C1) assigns a resolved
// event name, per spec.md section 3 "Event Specification".
type EventKind int

const (
	KindCore EventKind = iota
	KindRaw
	KindUncore
	KindUncoreRaw
	KindTracepoint
	KindSpe
	KindSoftware
)

// EventSpec is the (type, config, config1, config2, kind) tuple the Event
// Catalog (C1) resolves an event name into (spec.md section 3).
type EventSpec struct {
	Name    string
	Kind    EventKind
	Type    uint32
	Config  uint64
	Config1 uint64
	Config2 uint64
	// DeviceInstance and CPUMask are set for uncore events: the device this
	// spec is bound to and the single cpu the kernel will accept the fd on.
	DeviceInstance string
	CPUMask        []int
}

// SymbolMode controls how much symbolization work the Session does on
// sampled instruction pointers (spec.md section 4.1 task type / section
// 4.7).
type SymbolMode int

const (
	NoSymbolResolve SymbolMode = iota
	ResolveELF
	ResolveELFDwarf
)

// SpeFilter mirrors the original's SpeFilter bitmask (spec.md glossary
// "SPE"), supplemented from original_source/include/pmu.h since spec.md
// only references SPE filters narratively.
type SpeFilter uint64

const (
	SpeFilterNone   SpeFilter = 0
	SpeTSEnable     SpeFilter = 1 << 0
	SpePAEnable     SpeFilter = 1 << 1
	SpePCTEnable    SpeFilter = 1 << 2
	SpeJitter       SpeFilter = 1 << 16
	SpeBranchFilter SpeFilter = 1 << 32
	SpeLoadFilter   SpeFilter = 1 << 33
	SpeStoreFilter  SpeFilter = 1 << 34
)

// CPUTopology is a per-cpu fact produced by the Topology Probe (C2).
type CPUTopology struct {
	CoreID   int
	NumaID   int
	SocketID int
}

// DataExt carries the SPE-specific extension fields of a Sample Record
// (spec.md section 3 "Sample Record").
type DataExt struct {
	PhysAddr uint64
	VirtAddr uint64
	Event    uint64
}

// RawField describes one field of a tracepoint's raw payload, parsed from
// the kernel's format file grammar (spec.md section 6, and
// original_source/pmu/trace_pointer_parser.cpp).
type RawField struct {
	Name     string
	Offset   uint32
	Size     uint32
	IsSigned bool
}

// RawData is the raw tracepoint payload attached to a Sample Record plus
// the field map needed to interpret it.
type RawData struct {
	Data   []byte
	Fields []RawField
}

// RawField looks up one field by name in d's parsed layout, spec.md section
// 6's accessor.
func (d *RawData) RawField(name string) (*RawField, bool) {
	if d == nil {
		return nil, false
	}
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i], true
		}
	}
	return nil, false
}

// Int64 decodes f's little-endian value out of raw (RawData.Data), honoring
// Size and IsSigned. Returns false if the field doesn't fit within raw or
// has an unsupported width.
func (f RawField) Int64(raw []byte) (int64, bool) {
	if f.Size == 0 || f.Size > 8 || uint32(len(raw)) < f.Offset+f.Size {
		return 0, false
	}
	var u uint64
	for i := uint32(0); i < f.Size; i++ {
		u |= uint64(raw[f.Offset+i]) << (8 * i)
	}
	if !f.IsSigned {
		return int64(u), true
	}
	shift := 64 - f.Size*8
	return int64(u<<shift) >> shift, true
}

// Stack is the head of a deduplicated call-stack graph (spec.md section 3
// "Call-Stack Graph"). Frames holds copies of the resolved frames, not
// indices; the deduplicated node graph lives in internal/symbol/stack.go's
// Arena.
type Stack struct {
	Frames []Frame
}

// Frame names one level of a resolved call stack, top-of-stack (callee)
// first.
type Frame struct {
	Symbol Symbol
}

// Symbol is the resolved name/location of one instruction pointer (spec.md
// section 3 "Symbol").
type Symbol struct {
	Addr        uint64
	CodeMapAddr uint64
	CodeMapEnd  uint64
	Offset      uint64
	SymbolName  string
	MangledName string
	ModulePath  string
	FileName    string
	LineNum     int
}

// UnknownSymbol is the sentinel Symbol spec.md section 3 describes for
// unresolved addresses.
func UnknownSymbol(rawIP uint64) Symbol {
	return Symbol{
		Addr:        rawIP,
		SymbolName:  "UNKNOWN",
		MangledName: "UNKNOWN",
	}
}

// Data is one output record, equivalent to the original's PmuData (spec.md
// section 3 "Sample Record", supplemented with original_source/include/pmu.h
// field names since those are the public ABI this ports).
type Data struct {
	Stack        *Stack
	Evt          string
	TsNanos      int64
	Pid          int
	Tid          int
	Cpu          int
	CPUTopo      *CPUTopology
	Comm         string
	Period       uint64
	Count        uint64
	CountPercent float64
	Ext          *DataExt
	Raw          *RawData
	GroupID      int
}
