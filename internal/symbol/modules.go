package symbol

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/pprof/profile"
)

// Module is one mapped region backed by a real file, spec.md section 3
// "Module Map": "a sorted list of {start, end, file offset, path} kept
// per pid, refreshed on PERF_RECORD_MMAP/MMAP2."
type Module struct {
	Start, End uint64
	FileOffset uint64
	Path       string
}

// excludedPaths are the non-file backings spec.md section 4.7 says must
// never reach the ELF cache: anonymous mappings, the vdso/vsyscall pages,
// and the stack/heap pseudo-files procfs reports.
var excludedPaths = []string{
	"[stack]", "[heap]", "[vdso]", "[vsyscall]", "[vvar]", "//anon", "",
}

func isExcluded(path string) bool {
	for _, p := range excludedPaths {
		if path == p {
			return true
		}
	}
	return strings.HasPrefix(path, "/memfd:") || strings.HasPrefix(path, "anon_inode:")
}

// ModuleMap caches the sorted module list per pid, rebuilding lazily from
// /proc/<pid>/maps and incrementally from PERF_RECORD_MMAP/MMAP2 records.
type ModuleMap struct {
	mu      sync.Mutex
	byPid   map[int][]Module
}

// NewModuleMap returns an empty cache.
func NewModuleMap() *ModuleMap {
	return &ModuleMap{byPid: make(map[int][]Module)}
}

// Load parses /proc/<pid>/maps, replacing whatever was cached for pid.
// Called once at session start for every monitored process (spec.md
// section 4.7 "Module Map / initial population"). The raw parse is
// delegated to pprof's profile.ParseProcMaps; this package only adds the
// file-backed/anonymous-mapping filter on top.
func (m *ModuleMap) Load(pid int) error {
	return m.loadFrom(pid, fmt.Sprintf("/proc/%d/maps", pid))
}

// loadFrom is Load with the maps path broken out, so tests can point it at
// a fixture instead of a live /proc/<pid>/maps.
func (m *ModuleMap) loadFrom(pid int, mapsPath string) error {
	f, err := os.Open(mapsPath)
	if err != nil {
		return fmt.Errorf("symbol: opening maps for pid %d: %w", pid, err)
	}
	defer f.Close()

	mappings, err := profile.ParseProcMaps(f)
	if err != nil {
		return fmt.Errorf("symbol: parsing maps for pid %d: %w", pid, err)
	}

	mods := make([]Module, 0, len(mappings))
	for _, mm := range mappings {
		if isExcluded(mm.File) {
			continue
		}
		mods = append(mods, Module{
			Start:      mm.Start,
			End:        mm.Limit,
			FileOffset: mm.Offset,
			Path:       mm.File,
		})
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Start < mods[j].Start })

	m.mu.Lock()
	m.byPid[pid] = mods
	m.mu.Unlock()
	return nil
}

// OnMmap applies a PERF_RECORD_MMAP/MMAP2 observation to the cache
// incrementally, instead of re-reading /proc/<pid>/maps on every mapping
// change (spec.md section 4.7).
func (m *ModuleMap) OnMmap(pid int, start, length, fileOffset uint64, path string) {
	if isExcluded(path) {
		return
	}
	mod := Module{Start: start, End: start + length, FileOffset: fileOffset, Path: path}

	m.mu.Lock()
	defer m.mu.Unlock()
	mods := m.byPid[pid]
	i := sort.Search(len(mods), func(i int) bool { return mods[i].Start >= mod.Start })
	mods = append(mods, Module{})
	copy(mods[i+1:], mods[i:])
	mods[i] = mod
	m.byPid[pid] = mods
}

// Find returns the module containing addr for pid, spec.md section 4.7
// "address -> module lookup."
func (m *ModuleMap) Find(pid int, addr uint64) (Module, bool) {
	m.mu.Lock()
	mods := m.byPid[pid]
	m.mu.Unlock()

	i := sort.Search(len(mods), func(i int) bool { return mods[i].Start > addr })
	if i == 0 {
		return Module{}, false
	}
	mod := mods[i-1]
	if addr >= mod.End {
		return Module{}, false
	}
	return mod, true
}
