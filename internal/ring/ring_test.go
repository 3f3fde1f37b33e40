package ring

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

// TestMmapPageLayoutMatchesKernel pins the MmapPage field offsets to the
// kernel's struct perf_event_mmap_page layout (linux/perf_event.h). A
// mismatch here means DataHead/DataTail would overlay the wrong bytes of
// the mmap'd control page and every head/tail read would be silently wrong.
func TestMmapPageLayoutMatchesKernel(t *testing.T) {
	var p MmapPage
	assert.Equal(t, uintptr(0), unsafe.Offsetof(p.Version))
	assert.Equal(t, uintptr(16), unsafe.Offsetof(p.Offset))
	assert.Equal(t, uintptr(24), unsafe.Offsetof(p.TimeEnabled))
	assert.Equal(t, uintptr(32), unsafe.Offsetof(p.TimeRunning))
	assert.Equal(t, uintptr(40), unsafe.Offsetof(p.Capabilities))
	assert.Equal(t, uintptr(1024), unsafe.Offsetof(p.DataHead))
	assert.Equal(t, uintptr(1032), unsafe.Offsetof(p.DataTail))
	assert.Equal(t, uintptr(1040), unsafe.Offsetof(p.DataOffset))
	assert.Equal(t, uintptr(1048), unsafe.Offsetof(p.DataSize))
}
