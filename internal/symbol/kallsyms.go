package symbol

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// kallsymsPath is a var, not a const, so tests can point it at a fixture
// file instead of the real /proc/kallsyms.
var kallsymsPath = "/proc/kallsyms"

type kallsym struct {
	addr uint64
	name string
}

// Kallsyms resolves kernel-space addresses (the high half of the IP chain
// for a sample taken with ExcludeKernel=false) to symbol names, spec.md
// section 4.7: "a kernel IP resolves against /proc/kallsyms, never against
// a process's ELF module map."
type Kallsyms struct {
	once sync.Once
	syms []kallsym
	err  error
}

// NewKallsyms returns a lazily-loaded kernel symbol index; the file is
// only read on first Resolve call, since many sessions never sample kernel
// addresses (ExcludeKernel=true is the common case for userspace-only
// profiling).
func NewKallsyms() *Kallsyms {
	return &Kallsyms{}
}

func (k *Kallsyms) load() {
	k.once.Do(func() {
		f, err := os.Open(kallsymsPath)
		if err != nil {
			k.err = fmt.Errorf("symbol: opening %s: %w", kallsymsPath, err)
			return
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		for sc.Scan() {
			fields := strings.Fields(sc.Text())
			if len(fields) < 3 {
				continue
			}
			addr, err := strconv.ParseUint(fields[0], 16, 64)
			if err != nil || addr == 0 {
				continue
			}
			// Only function/text symbols (types T/t/W/w) resolve a sampled
			// instruction pointer meaningfully.
			switch fields[1] {
			case "T", "t", "W", "w":
			default:
				continue
			}
			k.syms = append(k.syms, kallsym{addr: addr, name: fields[2]})
		}
		sort.Slice(k.syms, func(i, j int) bool { return k.syms[i].addr < k.syms[j].addr })
	})
}

// Resolve returns the name of the last symbol at or before addr.
func (k *Kallsyms) Resolve(addr uint64) (string, bool) {
	k.load()
	if k.err != nil || len(k.syms) == 0 {
		return "", false
	}
	i := sort.Search(len(k.syms), func(i int) bool { return k.syms[i].addr > addr })
	if i == 0 {
		return "", false
	}
	return k.syms[i-1].name, true
}
