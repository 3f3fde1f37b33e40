package symbol

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"sync"
)

// DWARFCache resolves a module-relative file offset to a source file/line,
// loading each compile unit's line table lazily (spec.md section 4.7:
// "line resolution must not pay DWARF parse cost for a module whose
// symbols were never sampled").
type DWARFCache struct {
	data *dwarf.Data

	mu      sync.Mutex
	loaded  map[dwarf.Offset]*lineTable
	reader  *dwarf.Reader
}

type lineTable struct {
	entries []lineEntry
}

type lineEntry struct {
	addr uint64
	file string
	line int
}

// LoadDWARFCache opens path's DWARF debug info, returning an error the
// caller should treat as "no line info available" rather than fatal — many
// production binaries ship without it.
func LoadDWARFCache(path string) (*DWARFCache, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("symbol: opening %s: %w", path, err)
	}
	defer f.Close()

	data, err := f.DWARF()
	if err != nil {
		return nil, fmt.Errorf("symbol: no dwarf in %s: %w", path, err)
	}

	return &DWARFCache{
		data:   data,
		loaded: make(map[dwarf.Offset]*lineTable),
		reader: data.Reader(),
	}, nil
}

// LineForOffset resolves fileOffset to a (file, line) pair, scanning
// compile units until one containing the address has its line table
// loaded. ok is false when no CU covers the address or the binary carries
// no line program for it.
func (c *DWARFCache) LineForOffset(fileOffset uint64) (file string, line int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reader.Seek(0)
	for {
		entry, err := c.reader.Next()
		if err != nil || entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}
		if rs, err := c.data.Ranges(entry); err == nil && len(rs) > 0 {
			covered := false
			for _, rg := range rs {
				if fileOffset >= rg[0] && fileOffset < rg[1] {
					covered = true
					break
				}
			}
			if !covered {
				continue
			}
		}
		lt, err := c.lineTableFor(entry)
		if err != nil || lt == nil {
			continue
		}
		if f, l, ok := lt.lookup(fileOffset); ok {
			return f, l, true
		}
	}
	return "", 0, false
}

func (c *DWARFCache) lineTableFor(cu *dwarf.Entry) (*lineTable, error) {
	if lt, ok := c.loaded[cu.Offset]; ok {
		return lt, nil
	}

	lr, err := c.data.LineReader(cu)
	if err != nil || lr == nil {
		c.loaded[cu.Offset] = nil
		return nil, err
	}

	lt := &lineTable{}
	var le dwarf.LineEntry
	for {
		if err := lr.Next(&le); err != nil {
			break
		}
		if le.IsStmt {
			lt.entries = append(lt.entries, lineEntry{addr: le.Address, file: fileName(le.File), line: le.Line})
		}
	}
	c.loaded[cu.Offset] = lt
	return lt, nil
}

func fileName(f *dwarf.LineFile) string {
	if f == nil {
		return ""
	}
	return f.Name
}

// lookup finds the line-table entry with the greatest addr <= pc, the
// standard "which line owns this instruction" rule line tables use.
func (lt *lineTable) lookup(pc uint64) (string, int, bool) {
	var best *lineEntry
	for i := range lt.entries {
		e := &lt.entries[i]
		if e.addr <= pc && (best == nil || e.addr > best.addr) {
			best = e
		}
	}
	if best == nil {
		return "", 0, false
	}
	return best.file, best.line, true
}
