package pmu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithGroupsSynthesizesStandaloneIDs(t *testing.T) {
	names, ids := WithGroups([]GroupSpec{
		{EventName: "cycles"},
		{EventName: "instructions"},
	})
	assert.Equal(t, []string{"cycles", "instructions"}, names)
	assert.NotEqual(t, ids[0], ids[1])
}

func TestWithGroupsPreservesExplicitGroups(t *testing.T) {
	names, ids := WithGroups([]GroupSpec{
		{EventName: "cycles", GroupID: 5},
		{EventName: "instructions", GroupID: 5},
		{EventName: "branch-misses"},
	})
	assert.Equal(t, []string{"cycles", "instructions", "branch-misses"}, names)
	assert.Equal(t, ids[0], ids[1])
	assert.NotEqual(t, ids[0], ids[2])
}
