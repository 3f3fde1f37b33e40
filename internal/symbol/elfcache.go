// Package symbol implements the Symbol & Stack Resolver (component C7 in
// spec.md): ELF symbol lookup, DWARF line lookup, the per-pid module map,
// and the arena-backed call-stack graph that turns a sample's raw IP chain
// into resolved frames.
package symbol

import (
	"debug/elf"
	"fmt"
	"sort"

	"github.com/ianlancetaylor/demangle"

	"github.com/marselester/kperf/internal/pmutypes"
)

// elfSym is one STT_FUNC symbol, kept sorted by Addr so Resolve can binary
// search it the way cmd/addr2func.symbolizer does.
type elfSym struct {
	Addr uint64
	Size uint64
	Name string
}

// ELFCache resolves addresses within one ELF module to function names,
// adapted from cmd/addr2func's symbolizer (grounded on
// marselester-diy-parca-agent's cmd/addr2func/main.go) and extended with
// STT_FUNC filtering, symbol-size bounds checking, and C++ demangling via
// github.com/ianlancetaylor/demangle (SPEC_FULL.md section 2).
type ELFCache struct {
	path string
	syms []elfSym
	// isPIE mirrors addr2func's PIE base-subtraction rule: an ET_DYN
	// binary's symbol addresses are relative to its own base, so a
	// module-map entry's start address must be subtracted before lookup;
	// an ET_EXEC binary's symbols are looked up by the raw IP.
	isPIE bool
}

// LoadELFCache opens path and indexes its STT_FUNC symbol table.
func LoadELFCache(path string) (*ELFCache, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("symbol: opening %s: %w", path, err)
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil {
		// A module with no symtab (stripped binary) is not an error: it
		// just resolves to "unknown" for every address.
		syms = nil
	}

	cache := &ELFCache{
		path:  path,
		isPIE: f.Type == elf.ET_DYN,
	}
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Size == 0 {
			continue
		}
		cache.syms = append(cache.syms, elfSym{Addr: s.Value, Size: s.Size, Name: s.Name})
	}
	sort.Slice(cache.syms, func(i, j int) bool { return cache.syms[i].Addr < cache.syms[j].Addr })
	return cache, nil
}

// Resolve finds the function containing fileOffset (the raw IP already
// translated into module-relative file offset by the caller, spec.md
// section 4.7). It returns ok=false when the offset falls outside every
// known symbol's [Addr, Addr+Size) range.
func (c *ELFCache) Resolve(fileOffset uint64) (mangled string, base uint64, ok bool) {
	if len(c.syms) == 0 {
		return "", 0, false
	}
	i := sort.Search(len(c.syms), func(i int) bool { return c.syms[i].Addr > fileOffset })
	if i == 0 {
		return "", 0, false
	}
	s := c.syms[i-1]
	if fileOffset >= s.Addr+s.Size {
		return "", 0, false
	}
	return s.Name, s.Addr, true
}

// Symbolize builds a pmutypes.Symbol for rawIP given the module it falls in.
// mapStart/mapEnd/mapOffset come from the process's Module Map entry
// (spec.md section 3 "Module Map").
func (c *ELFCache) Symbolize(rawIP, mapStart, mapEnd, mapOffset uint64) pmutypes.Symbol {
	fileOffset := rawIP
	if c.isPIE {
		fileOffset = rawIP - mapStart + mapOffset
	}

	mangled, symStart, ok := c.Resolve(fileOffset)
	sym := pmutypes.Symbol{
		Addr:        rawIP,
		CodeMapAddr: mapStart,
		CodeMapEnd:  mapEnd,
		ModulePath:  c.path,
	}
	if !ok {
		sym.SymbolName = "UNKNOWN"
		sym.MangledName = "UNKNOWN"
		return sym
	}

	sym.Offset = fileOffset - symStart
	sym.MangledName = mangled
	sym.SymbolName = demangleName(mangled)
	return sym
}

// demangleName demangles a C++ Itanium ABI mangled name, falling back to
// the mangled form unchanged for C symbols and anything demangle rejects
// (demangle.Filter's documented behavior).
func demangleName(mangled string) string {
	return demangle.Filter(mangled, demangle.NoParams)
}
