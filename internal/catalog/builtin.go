package catalog

import (
	"github.com/marselester/kperf/internal/topology"
	"github.com/marselester/kperf/internal/pmutypes"
)

// PERF_TYPE_HARDWARE / PERF_TYPE_SOFTWARE and the PERF_COUNT_* config values
// below are duplicated from golang.org/x/sys/unix's constants (the same
// values aclements/go-perfevent's events package references via
// unix.PERF_COUNT_HW_CPU_CYCLES etc.) so this table can be unit-tested
// without a build tag restricting it to linux/amd64.
const (
	perfTypeHardware = 0
	perfTypeSoftware = 1

	hwCPUCycles      = 0
	hwInstructions   = 1
	hwCacheRefs      = 2
	hwCacheMisses    = 3
	hwBranchInstr    = 4
	hwBranchMisses   = 5
	hwBusCycles      = 6
	hwRefCPUCycles   = 9

	swCPUClock        = 0
	swTaskClock       = 1
	swPageFaults      = 2
	swContextSwitches = 3
	swCPUMigrations   = 4
	swPageFaultsMin   = 5
	swPageFaultsMaj   = 6
	swAlignmentFaults = 7
	swEmulationFaults = 8
	swDummy           = 9
)

// genericTable holds the event names every chip family resolves the same
// way: the hardware/software generalized events the kernel defines
// regardless of the underlying PMU, mirroring aclements/go-perfevent's
// events.EventCPUCycles-family basic events.
var genericTable = map[string]pmutypes.EventSpec{
	"cycles":            {Kind: pmutypes.KindCore, Type: perfTypeHardware, Config: hwCPUCycles},
	"cpu-cycles":        {Kind: pmutypes.KindCore, Type: perfTypeHardware, Config: hwCPUCycles},
	"instructions":      {Kind: pmutypes.KindCore, Type: perfTypeHardware, Config: hwInstructions},
	"cache-references":  {Kind: pmutypes.KindCore, Type: perfTypeHardware, Config: hwCacheRefs},
	"cache-misses":      {Kind: pmutypes.KindCore, Type: perfTypeHardware, Config: hwCacheMisses},
	"branch-instructions": {Kind: pmutypes.KindCore, Type: perfTypeHardware, Config: hwBranchInstr},
	"branch-misses":     {Kind: pmutypes.KindCore, Type: perfTypeHardware, Config: hwBranchMisses},
	"bus-cycles":        {Kind: pmutypes.KindCore, Type: perfTypeHardware, Config: hwBusCycles},
	"ref-cycles":        {Kind: pmutypes.KindCore, Type: perfTypeHardware, Config: hwRefCPUCycles},

	"cpu-clock":         {Kind: pmutypes.KindSoftware, Type: perfTypeSoftware, Config: swCPUClock},
	"task-clock":        {Kind: pmutypes.KindSoftware, Type: perfTypeSoftware, Config: swTaskClock},
	"page-faults":       {Kind: pmutypes.KindSoftware, Type: perfTypeSoftware, Config: swPageFaults},
	"context-switches":  {Kind: pmutypes.KindSoftware, Type: perfTypeSoftware, Config: swContextSwitches},
	"cpu-migrations":    {Kind: pmutypes.KindSoftware, Type: perfTypeSoftware, Config: swCPUMigrations},
	"minor-faults":      {Kind: pmutypes.KindSoftware, Type: perfTypeSoftware, Config: swPageFaultsMin},
	"major-faults":      {Kind: pmutypes.KindSoftware, Type: perfTypeSoftware, Config: swPageFaultsMaj},
	"alignment-faults":  {Kind: pmutypes.KindSoftware, Type: perfTypeSoftware, Config: swAlignmentFaults},
	"emulation-faults":  {Kind: pmutypes.KindSoftware, Type: perfTypeSoftware, Config: swEmulationFaults},
	"dummy":             {Kind: pmutypes.KindSoftware, Type: perfTypeSoftware, Config: swDummy},
}

// hipRawTable holds a representative subset of HiSilicon-family raw PMU
// event codes per spec.md section 4.1 branch 1 ("a compile-time table keyed
// by chip family"). The full tables live in the original's
// pmu/pfm/core.cpp; this subset holds a few representative events per
// family.
var hipRawTable = map[topology.ChipFamily]map[string]uint64{
	topology.ChipHipA: {"l1d-cache-refill": 0x08, "l1d-cache": 0x04, "inst-retired": 0x08},
	topology.ChipHipB: {"l1d-cache-refill": 0x08, "l1d-cache": 0x04, "inst-retired": 0x08},
	topology.ChipHipC: {"l1d-cache-refill": 0x08, "l1d-cache": 0x04, "inst-retired": 0x08},
	topology.ChipHipE: {"l1d-cache-refill": 0x08, "l1d-cache": 0x04, "inst-retired": 0x08},
	topology.ChipHipF: {"l1d-cache-refill": 0x08, "l1d-cache": 0x04, "inst-retired": 0x08},
}

// lookupBuiltin implements resolution branch 1.
func lookupBuiltin(chip topology.ChipFamily, name string) (pmutypes.EventSpec, bool) {
	if spec, ok := genericTable[name]; ok {
		return spec, true
	}
	if table, ok := hipRawTable[chip]; ok {
		if config, ok := table[name]; ok {
			return pmutypes.EventSpec{Kind: pmutypes.KindRaw, Type: PerfTypeRaw, Config: config}, true
		}
	}
	return pmutypes.EventSpec{}, false
}
