package evtlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marselester/kperf/internal/pmutypes"
)

func TestSpecGroupsDefaultsToUngrouped(t *testing.T) {
	cfg := Config{
		Specs: []pmutypes.EventSpec{
			{Name: "cycles", Kind: pmutypes.KindCore},
			{Name: "instructions", Kind: pmutypes.KindCore},
		},
	}
	groups, warn, err := cfg.specGroups()
	require.NoError(t, err)
	assert.Nil(t, warn)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 1)
	assert.Len(t, groups[1], 1)
}

func TestSpecGroupsMergesSharedGroupID(t *testing.T) {
	cfg := Config{
		Specs: []pmutypes.EventSpec{
			{Name: "cycles", Kind: pmutypes.KindCore},
			{Name: "instructions", Kind: pmutypes.KindCore},
			{Name: "branch-misses", Kind: pmutypes.KindCore},
		},
		GroupIDs: []int{1, 1, 2},
	}
	groups, warn, err := cfg.specGroups()
	require.NoError(t, err)
	assert.Nil(t, warn)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)
}

func TestSpecGroupsRejectsAllUncoreGroup(t *testing.T) {
	cfg := Config{
		Specs: []pmutypes.EventSpec{
			{Name: "ddr_rd", Kind: pmutypes.KindUncore},
			{Name: "ddr_wr", Kind: pmutypes.KindUncore},
		},
		GroupIDs: []int{7, 7},
	}
	_, _, err := cfg.specGroups()
	require.Error(t, err)
	var perfErr *pmutypes.Error
	require.ErrorAs(t, err, &perfErr)
	assert.Equal(t, pmutypes.CodeInvalidGroupAllUncore, perfErr.Code)
}

func TestSpecGroupsFlattensMixedUncoreGroup(t *testing.T) {
	cfg := Config{
		Specs: []pmutypes.EventSpec{
			{Name: "cycles", Kind: pmutypes.KindCore},
			{Name: "ddr_rd", Kind: pmutypes.KindUncore},
		},
		GroupIDs: []int{3, 3},
	}
	groups, warn, err := cfg.specGroups()
	require.NoError(t, err)
	require.NotNil(t, warn)
	assert.Equal(t, pmutypes.CodeInvalidGroupHasUncore, warn.Code)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 1)
	assert.Len(t, groups[1], 1)
}

func TestGroupEventNameResolvesLeaderByIndex(t *testing.T) {
	l := &List{leaderNames: []string{"cycles", "raw_syscalls:sys_enter"}}

	name, ok := l.GroupEventName(1)
	require.True(t, ok)
	assert.Equal(t, "raw_syscalls:sys_enter", name)

	_, ok = l.GroupEventName(5)
	assert.False(t, ok)

	_, ok = l.GroupEventName(-1)
	assert.False(t, ok)
}
