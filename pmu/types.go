// Package pmu is the public surface of the measurement session manager
// (component C8 in spec.md): it programs the Linux perf_event_open PMU
// interface to count and sample hardware/software events on behalf of other
// processes.
//
// The value types below are type aliases of internal/pmutypes, the leaf
// package every internal subsystem (Event Catalog, Per-fd Event, Event
// List, Symbol Resolver) shares so they can pass EventSpec, Symbol, and
// Data values to each other without importing this package — which would
// otherwise form an import cycle, since this package imports them.
package pmu

import "github.com/marselester/kperf/internal/pmutypes"

type (
	TaskType    = pmutypes.TaskType
	EventKind   = pmutypes.EventKind
	EventSpec   = pmutypes.EventSpec
	SymbolMode  = pmutypes.SymbolMode
	SpeFilter   = pmutypes.SpeFilter
	CPUTopology = pmutypes.CPUTopology
	DataExt     = pmutypes.DataExt
	RawField    = pmutypes.RawField
	RawData     = pmutypes.RawData
	Stack       = pmutypes.Stack
	Frame       = pmutypes.Frame
	Symbol      = pmutypes.Symbol
	Data        = pmutypes.Data
)

const (
	Counting    = pmutypes.Counting
	Sampling    = pmutypes.Sampling
	SpeSampling = pmutypes.SpeSampling

	KindCore       = pmutypes.KindCore
	KindRaw        = pmutypes.KindRaw
	KindUncore     = pmutypes.KindUncore
	KindUncoreRaw  = pmutypes.KindUncoreRaw
	KindTracepoint = pmutypes.KindTracepoint
	KindSpe        = pmutypes.KindSpe
	KindSoftware   = pmutypes.KindSoftware

	NoSymbolResolve = pmutypes.NoSymbolResolve
	ResolveELF      = pmutypes.ResolveELF
	ResolveELFDwarf = pmutypes.ResolveELFDwarf

	SpeFilterNone   = pmutypes.SpeFilterNone
	SpeTSEnable     = pmutypes.SpeTSEnable
	SpePAEnable     = pmutypes.SpePAEnable
	SpePCTEnable    = pmutypes.SpePCTEnable
	SpeJitter       = pmutypes.SpeJitter
	SpeBranchFilter = pmutypes.SpeBranchFilter
	SpeLoadFilter   = pmutypes.SpeLoadFilter
	SpeStoreFilter  = pmutypes.SpeStoreFilter
)

// UnknownSymbol is the sentinel Symbol spec.md section 3 describes for
// unresolved addresses.
func UnknownSymbol(rawIP uint64) Symbol {
	return pmutypes.UnknownSymbol(rawIP)
}
