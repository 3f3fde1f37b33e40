// Package trace implements the Trace-Sample Pair Analyzer (component C10
// in spec.md): it pairs raw_syscalls:sys_enter/sys_exit tracepoint samples
// per tid into latency measurements, and resolves the generic syscall
// number each pair carries into a name.
package trace

import (
	"fmt"
)

// Pair is one matched enter/exit observation, spec.md section 4.8 "Pair
// Analyzer output."
type Pair struct {
	Tid        int
	Syscall    string
	EnterNs    int64
	ExitNs     int64
	LatencyNs  int64
}

// pendingKey identifies one in-flight enter waiting for its exit. A tid can
// only be in one syscall at a time, so tid alone is the natural key — but
// keying additionally on syscall number guards against a dropped/corrupt
// sample leaving a stale enter for the wrong call.
type pendingKey struct {
	tid int
	nr  int64
}

// Analyzer pairs enter/exit samples with a two-cursor design per tid:
// OnEnter records the open call, OnExit closes whichever open call on that
// tid has a matching number and emits the completed Pair. Spec.md section
// 4.8 calls this "two-cursor pairing" because neither side needs to see
// more than its immediate predecessor on the same tid.
type Analyzer struct {
	resolver *SyscallTable
	pending  map[pendingKey]int64 // -> enter timestamp ns
}

// NewAnalyzer returns a Pair Analyzer using table to name syscall numbers.
func NewAnalyzer(table *SyscallTable) *Analyzer {
	return &Analyzer{resolver: table, pending: make(map[pendingKey]int64)}
}

// OnEnter records a raw_syscalls:sys_enter observation.
func (a *Analyzer) OnEnter(tid int, nr int64, tsNanos int64) {
	a.pending[pendingKey{tid: tid, nr: nr}] = tsNanos
}

// OnExit records a raw_syscalls:sys_exit observation and, if a matching
// enter was seen, returns the completed Pair. A sys_exit with no matching
// sys_enter (the session started mid-syscall) is dropped, spec.md section
// 4.8 "Edge cases."
func (a *Analyzer) OnExit(tid int, nr int64, tsNanos int64) (Pair, bool) {
	key := pendingKey{tid: tid, nr: nr}
	enterTs, ok := a.pending[key]
	if !ok {
		return Pair{}, false
	}
	delete(a.pending, key)

	return Pair{
		Tid:       tid,
		Syscall:   a.resolver.Name(nr),
		EnterNs:   enterTs,
		ExitNs:    tsNanos,
		LatencyNs: tsNanos - enterTs,
	}, true
}

// PendingCount reports syscalls seen entering but not yet exited, useful
// for a session's shutdown diagnostics (spec.md section 4.8).
func (a *Analyzer) PendingCount() int {
	return len(a.pending)
}

// DropStale clears pending entries for tids no longer alive, so a thread
// that exits mid-syscall doesn't leak an entry forever.
func (a *Analyzer) DropStale(aliveTids map[int]struct{}) {
	for k := range a.pending {
		if _, ok := aliveTids[k.tid]; !ok {
			delete(a.pending, k)
		}
	}
}

func (p Pair) String() string {
	return fmt.Sprintf("tid=%d syscall=%s latency=%dns", p.Tid, p.Syscall, p.LatencyNs)
}
