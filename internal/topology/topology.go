// Package topology implements the Topology Probe (component C2 in
// spec.md): it enumerates online cpus, numa nodes, cpu->socket mapping, and
// chip family, memoized per process the way spec.md section 4.2 specifies.
package topology

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ChipFamily identifies the compile-time event table a Catalog should use
// (spec.md section 4.1 "GetCpuType()").
type ChipFamily int

const (
	ChipUnknown ChipFamily = iota
	ChipHipA
	ChipHipB
	ChipHipC
	ChipHipE
	ChipHipF
	ChipX86
)

func (c ChipFamily) String() string {
	switch c {
	case ChipHipA:
		return "hipA"
	case ChipHipB:
		return "hipB"
	case ChipHipC:
		return "hipC"
	case ChipHipE:
		return "hipE"
	case ChipHipF:
		return "hipF"
	case ChipX86:
		return "x86"
	default:
		return "unknown"
	}
}

// Info is the topology snapshot produced by Probe.
type Info struct {
	OnlineCPUs []int
	// CPUTopo maps a cpu id to its (numa, socket) pair.
	CPUTopo map[int]cpuPlacement
	Chip    ChipFamily
}

type cpuPlacement struct {
	NumaID   int
	SocketID int
}

var (
	once   sync.Once
	cached *Info
	cacheErr error
)

// Probe returns the memoized topology snapshot for this process, per
// spec.md section 4.2 "Called once per process and memoized."
func Probe() (*Info, error) {
	once.Do(func() {
		cached, cacheErr = probe()
	})
	return cached, cacheErr
}

func probe() (*Info, error) {
	cpus, err := onlineCPUs("/sys/devices/system/cpu/online")
	if err != nil {
		return nil, fmt.Errorf("topology: reading online cpus: %w", err)
	}

	placement := make(map[int]cpuPlacement, len(cpus))
	for _, cpu := range cpus {
		numa := cpuNumaNode(cpu)
		socket := cpuSocketID(cpu)
		placement[cpu] = cpuPlacement{NumaID: numa, SocketID: socket}
	}

	chip := detectChipFamily()

	return &Info{OnlineCPUs: cpus, CPUTopo: placement, Chip: chip}, nil
}

// onlineCPUs parses the comma-separated union of singletons and ranges
// exposed by /sys/devices/system/cpu/online (spec.md section 6).
func onlineCPUs(path string) ([]int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := strings.TrimSpace(string(b))
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			loN, err1 := strconv.Atoi(lo)
			hiN, err2 := strconv.Atoi(hi)
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("malformed cpu range %q", part)
			}
			for i := loN; i <= hiN; i++ {
				out = append(out, i)
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("malformed cpu id %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

// cpuSocketID reads topology/physical_package_id for cpu, returning -1 if
// unavailable (spec.md section 4.2: "via ... topology/physical_package_id").
func cpuSocketID(cpu int) int {
	path := fmt.Sprintf("/sys/devices/system/cpu/cpu%d/topology/physical_package_id", cpu)
	v, err := readInt(path)
	if err != nil {
		return -1
	}
	return v
}

// cpuNumaNode finds the numa node owning cpu by scanning
// /sys/devices/system/node/node*/cpulist, in place of a cgo libnuma binding
// (spec.md section 4.2 names libnuma; this module avoids cgo so it stays a
// single pure-Go binary, matching every example repo in the pack, none of
// which link libnuma directly).
func cpuNumaNode(cpu int) int {
	nodeDirs, err := filepath.Glob("/sys/devices/system/node/node*")
	if err != nil {
		return -1
	}
	for _, dir := range nodeDirs {
		b, err := os.ReadFile(filepath.Join(dir, "cpulist"))
		if err != nil {
			continue
		}
		list := parseCPUList(strings.TrimSpace(string(b)))
		for _, c := range list {
			if c == cpu {
				base := filepath.Base(dir)
				n, err := strconv.Atoi(strings.TrimPrefix(base, "node"))
				if err == nil {
					return n
				}
			}
		}
	}
	return -1
}

func parseCPUList(s string) []int {
	var out []int
	if s == "" {
		return out
	}
	for _, part := range strings.Split(s, ",") {
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			loN, err1 := strconv.Atoi(lo)
			hiN, err2 := strconv.Atoi(hi)
			if err1 == nil && err2 == nil {
				for i := loN; i <= hiN; i++ {
					out = append(out, i)
				}
			}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(b)))
}

// detectChipFamily reads MIDR_EL1 on arm64 and maps it to a ChipFamily, or
// falls back to ChipX86 when no ARM identification register is exposed
// (spec.md section 6 "chip id" / section 4.2 "via MIDR_EL1 -> table").
func detectChipFamily() ChipFamily {
	midr, err := os.ReadFile("/sys/devices/system/cpu/cpu0/regs/identification/midr_el1")
	if err != nil {
		return ChipX86
	}
	s := strings.TrimSpace(string(midr))
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return ChipUnknown
	}
	// Bits [15:4] of MIDR_EL1 are the Part Number. HiSilicon Kunpeng/TaiShan
	// implementer code is 0x48; the part-number -> family mapping below is a
	// representative subset (the full table lives in original_source's
	// pmu/pfm/core.cpp and is out of scope to replicate exhaustively here).
	implementer := (v >> 24) & 0xff
	if implementer != 0x48 {
		return ChipUnknown
	}
	partNum := (v >> 4) & 0xfff
	switch partNum {
	case 0xd01:
		return ChipHipA
	case 0xd02:
		return ChipHipB
	case 0xd03:
		return ChipHipC
	case 0xd04:
		return ChipHipE
	case 0xd05:
		return ChipHipF
	default:
		return ChipUnknown
	}
}

// CPUFreq reads the current scaling frequency (in kHz) for cpu, a supplement
// carried from original_source/pmu/cpu_freq.cpp (see SPEC_FULL.md section 3).
func CPUFreq(cpu int) (uint64, error) {
	path := fmt.Sprintf("/sys/devices/system/cpu/cpu%d/cpufreq/scaling_cur_freq", cpu)
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, fmt.Errorf("topology: empty cpufreq file for cpu%d", cpu)
	}
	return strconv.ParseUint(strings.TrimSpace(sc.Text()), 10, 64)
}
