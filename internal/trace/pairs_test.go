package trace

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableWith(entries map[int64]string) *SyscallTable {
	return &SyscallTable{byNr: entries}
}

func TestAnalyzerPairsMatchingEnterExit(t *testing.T) {
	tbl := tableWith(map[int64]string{0: "read"})
	a := NewAnalyzer(tbl)

	a.OnEnter(100, 0, 1000)
	pair, ok := a.OnExit(100, 0, 1500)

	require.True(t, ok)
	assert.Equal(t, "read", pair.Syscall)
	assert.Equal(t, int64(500), pair.LatencyNs)
	assert.Equal(t, 0, a.PendingCount())
}

func TestAnalyzerDropsUnmatchedExit(t *testing.T) {
	a := NewAnalyzer(tableWith(nil))
	_, ok := a.OnExit(100, 0, 1500)
	assert.False(t, ok)
}

func TestAnalyzerDropStaleRemovesDeadTids(t *testing.T) {
	a := NewAnalyzer(tableWith(nil))
	a.OnEnter(100, 0, 1000)
	a.OnEnter(200, 1, 1000)

	a.DropStale(map[int]struct{}{200: {}})

	assert.Equal(t, 1, a.PendingCount())
	_, ok := a.OnExit(100, 0, 2000)
	assert.False(t, ok)
	_, ok = a.OnExit(200, 1, 2000)
	assert.True(t, ok)
}

func TestSyscallTableNameFallback(t *testing.T) {
	tbl := tableWith(map[int64]string{63: "read"})
	assert.Equal(t, "read", tbl.Name(63))
	assert.Equal(t, "syscall_999", tbl.Name(999))
}

func TestSyscallTableParsesDefines(t *testing.T) {
	src := "#define __NR_io_setup 0\n" +
		"#define __NR3264_lseek 62\n" +
		"#define __NR_lseek __NR3264_lseek\n" +
		"// not a define\n"

	f, err := os.CreateTemp(t.TempDir(), "unistd-*.h")
	require.NoError(t, err)
	_, err = f.WriteString(src)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = os.Open(f.Name())
	require.NoError(t, err)
	defer f.Close()

	tbl := &SyscallTable{byNr: make(map[int64]string)}
	require.NoError(t, tbl.parse(f))

	assert.Equal(t, "io_setup", tbl.Name(0))
	assert.Equal(t, "lseek", tbl.Name(62))
}
