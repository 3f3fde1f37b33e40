package pmu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTraceAnalyzer(t *testing.T) *TraceAnalyzer {
	t.Helper()
	// LoadSyscallTable can fail to find a unistd.h on the test host; the
	// Analyzer is still usable with numeric placeholder names in that case.
	a, _ := NewTraceAnalyzer()
	require.NotNil(t, a)
	return a
}

func TestTraceAnalyzerFeedNamedForm(t *testing.T) {
	a := newTestTraceAnalyzer(t)

	pairs := a.Feed([]Data{
		{Evt: "syscalls:sys_enter_openat", Tid: 100, TsNanos: 1000},
		{Evt: "syscalls:sys_exit_openat", Tid: 100, TsNanos: 1500},
	})

	require.Len(t, pairs, 1)
	assert.Equal(t, 100, pairs[0].Tid)
	assert.Equal(t, "openat", pairs[0].Syscall)
	assert.Equal(t, int64(500), pairs[0].LatencyNs)
}

func TestTraceAnalyzerFeedGenericFormUsesIDField(t *testing.T) {
	a := newTestTraceAnalyzer(t)

	enterRaw := &RawData{
		Data:   []byte{0, 0, 0, 0, 0, 0, 0, 0, 56, 0, 0, 0, 0, 0, 0, 0}, // id=56 at offset 8
		Fields: []RawField{{Name: "id", Offset: 8, Size: 8, IsSigned: true}},
	}
	pairs := a.Feed([]Data{
		{Evt: "raw_syscalls:sys_enter", Tid: 7, TsNanos: 2000, Raw: enterRaw},
		{Evt: "raw_syscalls:sys_exit", Tid: 7, TsNanos: 2200, Raw: enterRaw},
	})

	require.Len(t, pairs, 1)
	assert.Equal(t, int64(200), pairs[0].LatencyNs)
}

func TestTraceAnalyzerFeedDropsUnpairedExit(t *testing.T) {
	a := newTestTraceAnalyzer(t)

	pairs := a.Feed([]Data{
		{Evt: "syscalls:sys_exit_read", Tid: 3, TsNanos: 500},
	})
	assert.Empty(t, pairs)
	assert.Equal(t, 0, a.PendingCount())
}

func TestTraceAnalyzerFeedIgnoresUnrelatedEvents(t *testing.T) {
	a := newTestTraceAnalyzer(t)
	pairs := a.Feed([]Data{{Evt: "cycles", Tid: 1}})
	assert.Empty(t, pairs)
}

func TestTraceAnalyzerPendingCountTracksOpenEnters(t *testing.T) {
	a := newTestTraceAnalyzer(t)
	a.Feed([]Data{{Evt: "syscalls:sys_enter_read", Tid: 1, TsNanos: 10}})
	assert.Equal(t, 1, a.PendingCount())

	a.DropStale(map[int]struct{}{})
	assert.Equal(t, 0, a.PendingCount())
}
