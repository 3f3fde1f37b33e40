package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marselester/kperf/internal/pmutypes"
)

func TestResolveGenericEvents(t *testing.T) {
	tt := map[string]pmutypes.EventKind{
		"cycles":           pmutypes.KindCore,
		"instructions":     pmutypes.KindCore,
		"cache-misses":     pmutypes.KindCore,
		"page-faults":      pmutypes.KindSoftware,
		"context-switches": pmutypes.KindSoftware,
	}
	for name, kind := range tt {
		spec, ok := resolveGeneric(name)
		require.True(t, ok, name)
		assert.Equal(t, kind, spec.Kind, name)
		assert.Equal(t, name, spec.Name, name)
	}
}

func TestParseRawEvent(t *testing.T) {
	spec, ok := parseRawEvent("r1a8")
	require.True(t, ok)
	assert.Equal(t, pmutypes.KindRaw, spec.Kind)
	assert.Equal(t, uint64(0x1a8), spec.Config)
	assert.Equal(t, uint32(PerfTypeRaw), spec.Type)

	_, ok = parseRawEvent("cycles")
	assert.False(t, ok)

	_, ok = parseRawEvent("rzzzz")
	assert.False(t, ok)
}

func TestSplitDeviceForm(t *testing.T) {
	device, rest, ok := splitDeviceForm("hisi_sccl1_ddrc0/flux_rd/")
	require.True(t, ok)
	assert.Equal(t, "hisi_sccl1_ddrc0", device)
	assert.Equal(t, "flux_rd", rest)

	_, _, ok = splitDeviceForm("cycles")
	assert.False(t, ok)
}

func TestFormatFieldPack(t *testing.T) {
	f := formatField{word: 0, lo: 0, hi: 7}
	var spec pmutypes.EventSpec
	require.NoError(t, f.pack(&spec, 0x1a))
	assert.Equal(t, uint64(0x1a), spec.Config)

	require.Error(t, f.pack(&spec, 0x100))
}

func TestParseCPUList(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2, 8, 16, 17}, parseCPUList("0-2,8,16-17"))
	assert.Nil(t, parseCPUList(""))
}
