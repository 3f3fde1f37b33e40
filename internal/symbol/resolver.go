package symbol

import (
	"sync"

	"github.com/marselester/kperf/internal/pmutypes"
)

// Resolver turns a sample's raw IP chain into resolved pmutypes.Frame values,
// caching one ELFCache/DWARFCache pair per module path across every pid
// (spec.md section 4.7: "a shared library mapped into N processes is
// parsed once, not N times").
type Resolver struct {
	mode pmutypes.SymbolMode

	modules  *ModuleMap
	kallsyms *Kallsyms

	mu    sync.Mutex
	elf   map[string]*ELFCache
	dwarf map[string]*DWARFCache
}

// NewResolver returns a Resolver operating in mode (spec.md section 3
// "SymbolMode"). NoSymbolResolve short-circuits every call to
// UnknownSymbol, matching a caller that only wants raw addresses.
func NewResolver(mode pmutypes.SymbolMode) *Resolver {
	return &Resolver{
		mode:     mode,
		modules:  NewModuleMap(),
		kallsyms: NewKallsyms(),
		elf:      make(map[string]*ELFCache),
		dwarf:    make(map[string]*DWARFCache),
	}
}

// LoadProcess populates the module map for pid from /proc/<pid>/maps, to
// be called once per monitored process before the first Resolve (spec.md
// section 4.7 "initial population").
func (r *Resolver) LoadProcess(pid int) error {
	return r.modules.Load(pid)
}

// OnMmap forwards a PERF_RECORD_MMAP/MMAP2 observation to the module map,
// keeping it current without a full /proc re-read (spec.md section 4.6
// "Demultiplexing" -> C7 wiring).
func (r *Resolver) OnMmap(pid int, start, length, fileOffset uint64, path string) {
	r.modules.OnMmap(pid, start, length, fileOffset, path)
}

// Resolve resolves one raw instruction pointer for pid into a pmutypes.Symbol.
// isKernel selects /proc/kallsyms lookup over the process's module map,
// per spec.md section 4.7.
func (r *Resolver) Resolve(pid int, addr uint64, isKernel bool) pmutypes.Symbol {
	if r.mode == pmutypes.NoSymbolResolve {
		return pmutypes.UnknownSymbol(addr)
	}

	if isKernel {
		name, ok := r.kallsyms.Resolve(addr)
		if !ok {
			return pmutypes.UnknownSymbol(addr)
		}
		return pmutypes.Symbol{Addr: addr, SymbolName: name, ModulePath: "[kernel]"}
	}

	mod, ok := r.modules.Find(pid, addr)
	if !ok {
		return pmutypes.UnknownSymbol(addr)
	}

	ec, ok := r.elfCacheFor(mod.Path)
	if !ok {
		sym := pmutypes.UnknownSymbol(addr)
		sym.ModulePath = mod.Path
		return sym
	}

	sym := ec.Symbolize(addr, mod.Start, mod.End, mod.FileOffset)

	if r.mode == pmutypes.ResolveELFDwarf {
		if dc, ok := r.dwarfCacheFor(mod.Path); ok {
			fileOffset := addr
			if ec.isPIE {
				fileOffset = addr - mod.Start + mod.FileOffset
			}
			if file, line, ok := dc.LineForOffset(fileOffset); ok {
				sym.FileName = file
				sym.LineNum = line
			}
		}
	}
	return sym
}

// ResolveChain resolves a full IP chain for pid, spec.md section 4.7:
// frame[0] is the leaf (where the sample fired), the rest are return
// addresses from the call stack. kernelBoundary marks the index at which
// addresses stop being kernel and start being userspace (-1 if the whole
// chain is userspace, as with ExcludeKernel sessions).
func (r *Resolver) ResolveChain(pid int, ips []uint64, kernelBoundary int) []pmutypes.Symbol {
	frames := make([]pmutypes.Symbol, 0, len(ips))
	for i, ip := range ips {
		isKernel := kernelBoundary >= 0 && i < kernelBoundary
		frames = append(frames, r.Resolve(pid, ip, isKernel))
	}
	return frames
}

func (r *Resolver) elfCacheFor(path string) (*ELFCache, bool) {
	r.mu.Lock()
	if ec, ok := r.elf[path]; ok {
		r.mu.Unlock()
		return ec, ec != nil
	}
	r.mu.Unlock()

	ec, err := LoadELFCache(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.elf[path] = nil
		return nil, false
	}
	r.elf[path] = ec
	return ec, true
}

func (r *Resolver) dwarfCacheFor(path string) (*DWARFCache, bool) {
	r.mu.Lock()
	if dc, ok := r.dwarf[path]; ok {
		r.mu.Unlock()
		return dc, dc != nil
	}
	r.mu.Unlock()

	dc, err := LoadDWARFCache(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.dwarf[path] = nil
		return nil, false
	}
	r.dwarf[path] = dc
	return dc, true
}
