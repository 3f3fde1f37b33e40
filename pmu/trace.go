package pmu

import (
	"strings"
	"sync"

	"github.com/marselester/kperf/internal/trace"
)

// Pair is one matched syscall enter/exit observation, spec.md section 4.10
// "Trace-Sample Pair Analyzer."
type Pair = trace.Pair

// TraceAnalyzer pairs syscalls:sys_enter_<f>/sys_exit_<f> or the generic
// raw_syscalls:sys_enter/sys_exit tracepoint samples a Session collects into
// completed latency Pairs (spec.md section 4.10). It is not safe for
// concurrent Feed calls.
type TraceAnalyzer struct {
	an    *trace.Analyzer
	table *trace.SyscallTable

	mu      sync.Mutex
	funcIDs map[string]int64
	nextID  int64
}

// NewTraceAnalyzer loads the syscall number table (from
// /usr/include/asm-generic/unistd.h or /usr/include/asm/unistd.h, spec.md
// section 4.10) and returns an Analyzer ready to consume a session's
// Sampling-mode records. A missing header is returned as an error but the
// Analyzer is still usable: the generic raw_syscalls pairing falls back to
// a numeric placeholder name, per trace.SyscallTable.Name.
func NewTraceAnalyzer() (*TraceAnalyzer, error) {
	table, err := trace.LoadSyscallTable()
	ta := &TraceAnalyzer{
		an:      trace.NewAnalyzer(table),
		table:   table,
		funcIDs: make(map[string]int64),
		nextID:  -1,
	}
	return ta, err
}

// Feed scans records for syscall tracepoint samples and returns every pair
// completed by this batch. Records whose Evt isn't a syscall tracepoint are
// ignored. Call Feed with each Collect tick's Read output to get pairs as
// they complete; PendingCount/DropStale track enters still awaiting a match.
func (t *TraceAnalyzer) Feed(records []Data) []Pair {
	var pairs []Pair
	for _, d := range records {
		switch {
		case strings.HasPrefix(d.Evt, "syscalls:sys_enter_"):
			f := strings.TrimPrefix(d.Evt, "syscalls:sys_enter_")
			t.an.OnEnter(d.Tid, t.idFor(f), d.TsNanos)

		case strings.HasPrefix(d.Evt, "syscalls:sys_exit_"):
			f := strings.TrimPrefix(d.Evt, "syscalls:sys_exit_")
			p, ok := t.an.OnExit(d.Tid, t.idFor(f), d.TsNanos)
			if !ok {
				continue
			}
			p.Syscall = f
			pairs = append(pairs, p)

		case d.Evt == "raw_syscalls:sys_enter":
			nr, ok := rawFieldInt64(d.Raw, "id")
			if !ok {
				continue
			}
			t.an.OnEnter(d.Tid, nr, d.TsNanos)

		case d.Evt == "raw_syscalls:sys_exit":
			nr, ok := rawFieldInt64(d.Raw, "id")
			if !ok {
				continue
			}
			if p, ok := t.an.OnExit(d.Tid, nr, d.TsNanos); ok {
				pairs = append(pairs, p)
			}
		}
	}
	return pairs
}

// PendingCount reports syscalls seen entering but not yet exited.
func (t *TraceAnalyzer) PendingCount() int {
	return t.an.PendingCount()
}

// DropStale clears pending enters for tids no longer alive.
func (t *TraceAnalyzer) DropStale(aliveTids map[int]struct{}) {
	t.an.DropStale(aliveTids)
}

// idFor assigns a stable negative pending-key id per named syscalls:sys_enter_<f>
// function, distinct from the non-negative real syscall numbers the generic
// raw_syscalls:sys_enter/sys_exit form uses, so the two forms never collide
// in the underlying Analyzer's (tid, nr) pending map.
func (t *TraceAnalyzer) idFor(name string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.funcIDs[name]; ok {
		return id
	}
	id := t.nextID
	t.nextID--
	t.funcIDs[name] = id
	return id
}

func rawFieldInt64(raw *RawData, name string) (int64, bool) {
	if raw == nil {
		return 0, false
	}
	f, ok := raw.RawField(name)
	if !ok {
		return 0, false
	}
	return f.Int64(raw.Data)
}
